package kernel

import "testing"

func TestDecodeCookieHeader(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   []Cookie
	}{
		{"single", "a=1", []Cookie{{"a", "1"}}},
		{"multiple", "a=1; b=2", []Cookie{{"a", "1"}, {"b", "2"}}},
		{"quoted value", `a="hello world"`, []Cookie{{"a", "hello world"}}},
		{"empty segment dropped", "a=1;; b=2", []Cookie{{"a", "1"}, {"b", "2"}}},
		{"malformed segment dropped", "a=1; nope; b=2", []Cookie{{"a", "1"}, {"b", "2"}}},
		{"empty name dropped", "=1; b=2", []Cookie{{"b", "2"}}},
		{"empty header", "", nil},
		{"whitespace tolerant", "  a = 1  ;  b = 2  ", []Cookie{{"a", "1"}, {"b", "2"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecodeCookieHeader(tc.header)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got[%d] = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestLookup(t *testing.T) {
	cookies := []Cookie{{"a", "1"}, {"b", "2"}}
	if v, ok := Lookup(cookies, "b"); !ok || v != "2" {
		t.Fatalf("Lookup(b) = %q, %v", v, ok)
	}
	if _, ok := Lookup(cookies, "missing"); ok {
		t.Fatal("Lookup(missing) should report ok=false")
	}
}

func TestEncodeSetCookie(t *testing.T) {
	got := EncodeSetCookie("sess", "abc", true)
	want := "sess=abc; Path=/; HttpOnly"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
