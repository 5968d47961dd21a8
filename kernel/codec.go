package kernel

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
)

// RequestHead is this kernel's view of a parsed HTTP request line plus
// headers — the shape spec.md assumes an external HTTP codec already
// delivers. It is built directly from *http.Request, which plays the role
// of that external codec here (see SPEC_FULL.md §1).
type RequestHead struct {
	Method          string
	Path            string
	RawQuery        string
	Headers         http.Header
	Cookies         []Cookie
	ProtoMajor      int
	ProtoMinor      int
	ConnectionClose bool
	ContentType     string
	RemoteAddr      string
	KeepAliveWanted bool // explicit "Connection: keep-alive" on an HTTP/1.0 request
}

// NewRequestHead adapts a stdlib *http.Request into a RequestHead.
func NewRequestHead(r *http.Request) *RequestHead {
	var cookies []Cookie
	if header := r.Header.Get("Cookie"); header != "" {
		cookies = DecodeCookieHeader(header)
	}
	conn := strings.ToLower(r.Header.Get("Connection"))
	return &RequestHead{
		Method:          r.Method,
		Path:            r.URL.Path,
		RawQuery:        r.URL.RawQuery,
		Headers:         r.Header,
		Cookies:         cookies,
		ProtoMajor:      r.ProtoMajor,
		ProtoMinor:      r.ProtoMinor,
		ConnectionClose: conn == "close",
		ContentType:     r.Header.Get("Content-Type"),
		RemoteAddr:      r.RemoteAddr,
		KeepAliveWanted: conn == "keep-alive",
	}
}

// HeaderValues returns every value sent for a header name, for the
// multi-value rejection rule (a header sent twice is a 400).
func HeaderValues(r *http.Request, name string) []string {
	return r.Header.Values(name)
}

// QueryValues returns every value sent for a query parameter name, for the
// same multi-value rejection rule applied to the URL query string.
func QueryValues(r *http.Request, name string) []string {
	return r.URL.Query()[name]
}

// sessionConnKey is the per-connection Session, stashed in the request
// context by ConnContext and consulted by both engines on every request on
// that connection.
type sessionConnKey struct{}

// connSessions tracks the Session minted for each live net.Conn, so the
// ConnState callback can log/clean up on StateClosed without needing the
// request context (which ConnState does not receive).
var connSessions sync.Map // net.Conn -> *Session

// ConnContext installs a fresh Session into the connection's context the
// first time net/http calls it for a given connection — "on connection
// activation: create a Session with a fresh session-cookie token; set role
// HTML."
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	if existing, ok := connSessions.Load(c); ok {
		return context.WithValue(ctx, sessionConnKey{}, existing)
	}
	session := NewSession()
	connSessions.Store(c, session)
	return context.WithValue(ctx, sessionConnKey{}, session)
}

// ConnStateHook is wired to http.Server.ConnState. On connection
// inactivation it drops the Session, matching "destroyed on connection
// inactivation."
func ConnStateHook(c net.Conn, state http.ConnState) {
	if state == http.StateClosed || state == http.StateHijacked {
		connSessions.Delete(c)
	}
}

// SessionFrom recovers the Session ConnContext attached to this request's
// connection.
func SessionFrom(ctx context.Context) *Session {
	if s, ok := ctx.Value(sessionConnKey{}).(*Session); ok {
		return s
	}
	return nil
}
