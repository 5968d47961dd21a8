package kernel

import (
	"net/http"
	"testing"
)

func baseHead() *RequestHead {
	return &RequestHead{
		Path: "/widgets", ProtoMajor: 1, ProtoMinor: 1,
	}
}

func TestResponseBuilderWillCloseFormula(t *testing.T) {
	cases := []struct {
		name           string
		priorWillClose bool
		status         int
		connClose      bool
		http10NoKA     bool
		want           bool
	}{
		{"all clear keeps alive", false, http.StatusOK, false, false, false},
		{"prior close forces close", true, http.StatusOK, false, false, true},
		{"non-200 forces close", false, http.StatusNotFound, false, false, true},
		{"Connection: close forces close", false, http.StatusOK, true, false, true},
		{"HTTP/1.0 without keep-alive forces close", false, http.StatusOK, false, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			head := baseHead()
			head.ConnectionClose = tc.connClose
			if tc.http10NoKA {
				head.ProtoMinor = 0
				head.KeepAliveWanted = false
			}
			b := &ResponseBuilder{SessionCookieName: "GWKSESSIONID"}
			session := NewSession()
			resp := b.Build(head, session, tc.status, nil, "", tc.priorWillClose, nil)
			if resp.WillClose != tc.want {
				t.Fatalf("WillClose = %v, want %v", resp.WillClose, tc.want)
			}
			wantHeader := "keep-alive"
			if tc.want {
				wantHeader = "close"
			}
			if got := resp.Headers.Get("Connection"); got != wantHeader {
				t.Fatalf("Connection header = %q, want %q", got, wantHeader)
			}
		})
	}
}

func TestResponseBuilderAlwaysSetsSessionCookie(t *testing.T) {
	b := &ResponseBuilder{SessionCookieName: "GWKSESSIONID"}
	session := NewSession()
	resp := b.Build(baseHead(), session, http.StatusOK, nil, "", false, nil)
	if got := resp.Headers.Get("Set-Cookie"); got == "" {
		t.Fatal("every response must carry a session Set-Cookie")
	}
}

func TestResponseBuilderEchoesValidIncomingCookie(t *testing.T) {
	b := &ResponseBuilder{SessionCookieName: "GWKSESSIONID"}
	session := NewSession()
	head := baseHead()
	head.Cookies = []Cookie{{Name: "GWKSESSIONID", Value: "existing-token"}}
	resp := b.Build(head, session, http.StatusOK, nil, "", false, nil)
	got := resp.Headers.Values("Set-Cookie")
	found := false
	for _, v := range got {
		if v == "GWKSESSIONID=existing-token; Path=/; HttpOnly" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected echoed cookie, got %v", got)
	}
}

func TestResponseBuilderEchoesEveryIncomingCookieNotJustSession(t *testing.T) {
	b := &ResponseBuilder{SessionCookieName: "GWKSESSIONID"}
	session := NewSession()
	head := baseHead()
	head.Cookies = []Cookie{
		{Name: "GWKSESSIONID", Value: "existing-token"},
		{Name: "locale", Value: "en-US"},
		{Name: "theme", Value: "dark"},
	}
	resp := b.Build(head, session, http.StatusOK, nil, "", false, nil)
	got := resp.Headers.Values("Set-Cookie")

	want := map[string]bool{
		"GWKSESSIONID=existing-token; Path=/; HttpOnly": false,
		"locale=en-US; Path=/":                          false,
		"theme=dark; Path=/":                             false,
	}
	for _, v := range got {
		if _, ok := want[v]; ok {
			want[v] = true
		}
	}
	for cookie, found := range want {
		if !found {
			t.Fatalf("missing echoed cookie %q among %v", cookie, got)
		}
	}
	if len(got) != 3 {
		t.Fatalf("Set-Cookie count = %d, want exactly 3 (no duplicate session cookie minted)", len(got))
	}
}

func TestResponseBuilderRejectsInvalidIncomingCookie(t *testing.T) {
	b := &ResponseBuilder{
		SessionCookieName: "GWKSESSIONID",
		ValidateCookie:    func(value string) bool { return false },
	}
	session := NewSession()
	head := baseHead()
	head.Cookies = []Cookie{{Name: "GWKSESSIONID", Value: "stale-token"}}
	resp := b.Build(head, session, http.StatusOK, nil, "", false, nil)
	got := resp.Headers.Values("Set-Cookie")
	for _, v := range got {
		if v == "GWKSESSIONID=stale-token; Path=/; HttpOnly" {
			t.Fatal("an invalid cookie must not be echoed back")
		}
	}
}

func TestResponseBuilderNilHeadForcesClose(t *testing.T) {
	b := &ResponseBuilder{SessionCookieName: "GWKSESSIONID"}
	resp := b.Build(nil, NewSession(), http.StatusInternalServerError, nil, "", false, nil)
	if !resp.WillClose {
		t.Fatal("a nil head (very early failure) must force close")
	}
}

func TestResponseBuilderContentHeaders(t *testing.T) {
	b := &ResponseBuilder{SessionCookieName: "GWKSESSIONID"}
	resp := b.Build(baseHead(), NewSession(), http.StatusOK, []byte("hello"), "text/plain", false, nil)
	if resp.Headers.Get("Content-Length") != "5" {
		t.Fatalf("Content-Length = %q, want 5", resp.Headers.Get("Content-Length"))
	}
	if resp.Headers.Get("Content-Type") != "text/plain" {
		t.Fatalf("Content-Type = %q, want text/plain", resp.Headers.Get("Content-Type"))
	}
}
