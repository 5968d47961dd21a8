package kernel

import (
	"fmt"
	"net/http"
)

// FullResponse is the composed response before it is written to the
// underlying net/http.ResponseWriter: status, body, and every header the
// design requires on every response.
type FullResponse struct {
	Status     int
	Body       []byte
	ContentType string
	Headers    http.Header
	WillClose  bool
}

// ResponseBuilder assembles FullResponse values from a status and body,
// applying Content-Length, Connection, Set-Cookie, and Referer exactly as
// spec.md §4.5 describes.
type ResponseBuilder struct {
	SessionCookieName string
	// ValidateCookie optionally rejects an incoming session cookie value
	// before it is echoed back, forcing a freshly minted one instead. Nil
	// means every incoming value is accepted.
	ValidateCookie func(value string) bool
}

// Build computes willClose per the formula in the design:
//
//	prior_willClose ∨ status≠200 ∨ request says Connection:close ∨ (HTTP/1.0 ∧ ¬keep-alive)
//
// and always emits a session cookie: echoed if the incoming request
// carried a valid one, minted from the Session otherwise.
func (b *ResponseBuilder) Build(head *RequestHead, session *Session, status int, body []byte, contentType string, priorWillClose bool, setCookies []Cookie) *FullResponse {
	resp := &FullResponse{Status: status, Body: body, ContentType: contentType, Headers: make(http.Header)}

	if head == nil {
		// Very early failure: no request head is known yet. Force HTTP/1.0
		// semantics and an unconditional close.
		resp.WillClose = true
		b.applyCookies(resp, nil, session)
		b.applyBody(resp)
		return resp
	}

	http10NoKeepAlive := head.ProtoMajor == 1 && head.ProtoMinor == 0 && !head.KeepAliveWanted
	resp.WillClose = priorWillClose || status != http.StatusOK || head.ConnectionClose || http10NoKeepAlive

	b.applyCookies(resp, head.Cookies, session)
	for _, c := range setCookies {
		resp.Headers.Add("Set-Cookie", EncodeSetCookie(c.Name, c.Value, false))
	}
	if head.Path != "" {
		resp.Headers.Set("Referer", head.Path)
	}
	b.applyBody(resp)

	if !resp.WillClose {
		resp.Headers.Set("Connection", "keep-alive")
	} else {
		resp.Headers.Set("Connection", "close")
	}
	return resp
}

func (b *ResponseBuilder) applyBody(resp *FullResponse) {
	if resp.Body != nil {
		resp.Headers.Set("Content-Length", fmt.Sprintf("%d", len(resp.Body)))
		if resp.ContentType != "" {
			resp.Headers.Set("Content-Type", resp.ContentType)
		}
	}
}

// applyCookies echoes every valid incoming cookie — "first echo valid
// incoming cookies" — and separately guarantees the session cookie is
// present: echoed if the incoming request carried a valid one, minted from
// the Session otherwise. Invariant 4 of spec.md §3: "cookieSession is
// present in every response."
func (b *ResponseBuilder) applyCookies(resp *FullResponse, incoming []Cookie, session *Session) {
	sessionEchoed := false
	for _, c := range incoming {
		if c.Name == b.SessionCookieName {
			if c.Value != "" && (b.ValidateCookie == nil || b.ValidateCookie(c.Value)) {
				resp.Headers.Add("Set-Cookie", EncodeSetCookie(c.Name, c.Value, true))
				sessionEchoed = true
			}
			continue
		}
		resp.Headers.Add("Set-Cookie", EncodeSetCookie(c.Name, c.Value, false))
	}
	if !sessionEchoed && session != nil {
		resp.Headers.Add("Set-Cookie", EncodeSetCookie(b.SessionCookieName, session.Cookie, true))
	}
}

// WriteTo writes the FullResponse's headers, status, and body to a stdlib
// ResponseWriter. The close decision travels in the Connection header.
func (resp *FullResponse) WriteTo(w http.ResponseWriter) {
	header := w.Header()
	for key, values := range resp.Headers {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	w.WriteHeader(resp.Status)
	if resp.Body != nil {
		_, _ = w.Write(resp.Body)
	}
}

// ForceClose renders the catastrophic-failure minimal HTML body: this path
// must never raise, so it builds the bytes with fmt.Sprintf rather than any
// template engine that could itself fail.
func ForceClose(w http.ResponseWriter, reason string) {
	body := []byte(fmt.Sprintf("<html><body>Error %s</body></html>", reason))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(body)
}
