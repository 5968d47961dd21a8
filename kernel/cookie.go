package kernel

import (
	"net/http"
	"strings"
)

// Cookie is a decoded name/value pair. Unlike net/http.Cookie it carries no
// attributes — attributes only ever appear on outgoing Set-Cookie values in
// this kernel, never on the incoming Cookie header.
type Cookie struct {
	Name  string
	Value string
}

// DecodeCookieHeader lenently parses a `Cookie` header value into its
// cookie-pairs. It is grounded on the teacher's parseCookie state machine
// (web_http_server.go), adapted to operate on a plain string instead of
// zero-copy byte spans, since the host transport (net/http) already hands
// the kernel a parsed header string. Malformed fragments are
// dropped rather than rejected outright — "lenient decoding" per the
// design.
func DecodeCookieHeader(header string) []Cookie {
	var cookies []Cookie
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq <= 0 { // no '=' or empty name: not a valid cookie-pair, skip it
			continue
		}
		name := strings.TrimSpace(part[:eq])
		value := strings.TrimSpace(part[eq+1:])
		value = strings.Trim(value, `"`)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{Name: name, Value: value})
	}
	return cookies
}

// Lookup finds the first cookie by name; ok reports whether any cookie had
// that name. Later cookies sharing the name are ignored (the engine's
// multi-value rule only applies to query/header parameters).
func Lookup(cookies []Cookie, name string) (value string, ok bool) {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// EncodeSetCookie renders an outgoing Set-Cookie value using net/http's own
// attribute quoting (RFC 6265 edge cases around quoting and expiry
// formatting are exactly the part not worth re-deriving).
func EncodeSetCookie(name, value string, httpOnly bool) string {
	c := &http.Cookie{Name: name, Value: value, Path: "/", HttpOnly: httpOnly}
	return c.String()
}
