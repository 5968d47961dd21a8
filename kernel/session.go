package kernel

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// Role names the current command role a Session is operating under. Page
// roles and the HTML/MENU default both map onto this.
type Role int

const (
	RoleHTML Role = iota
	RoleMenu
	RoleGetDownload
	RolePost
	RolePostUpload
	RolePut
	RoleDelete
	RoleError
)

// sessionCookiePrefix seeds the default opaque session token. It carries no
// product name on purpose — it is just a recognizable prefix for log
// grepping.
const sessionCookiePrefix = "GWK"

// Session is bound to exactly one transport connection: created on
// connection activation, destroyed on connection inactivation. It is
// mutated only by the ProtocolEngine that owns the connection, never
// concurrently, so it carries no internal locking of its own.
type Session struct {
	Cookie    string // opaque token, default sessionCookiePrefix+hex(random int64)
	Principal string // authentication principal, empty until authenticated
	Role      Role
	Filename  string // transient filename set by upload/download handlers
	LogID     string // transient log id; the engines keep their request ids in the request context and do not set it
}

// NewSession creates a Session with a fresh session-cookie token and the
// default HTML role, mirroring "on connection activation: create a Session
// with a fresh session-cookie token; set role HTML."
func NewSession() *Session {
	return &Session{
		Cookie: mintSessionCookie(),
		Role:   RoleHTML,
	}
}

func mintSessionCookie() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is not something callers can meaningfully
		// recover from; fall back to a counter-derived value rather than
		// panicking a connection goroutine.
		return sessionCookiePrefix + fmt.Sprintf("%016x", nextFallbackToken())
	}
	return sessionCookiePrefix + fmt.Sprintf("%016x", binary.BigEndian.Uint64(buf[:]))
}

var fallbackTokenMu sync.Mutex
var fallbackToken uint64

func nextFallbackToken() uint64 {
	fallbackTokenMu.Lock()
	defer fallbackTokenMu.Unlock()
	fallbackToken++
	return fallbackToken
}
