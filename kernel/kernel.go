// Package kernel implements the per-connection HTTP request-handling core of
// a gateway: a protocol engine that turns a stream of HTTP messages into
// dispatched application actions, and turns results back into HTTP
// responses with correct keep-alive, cookie, and session behavior.
//
// Two dispatch flavors share the same engine: a page-oriented flavor where
// URL paths are bound to declarative Pages, and a REST flavor where URL
// paths are bound to MethodHandlers operating on a data-model resource.
package kernel

import "github.com/rs/zerolog"

// Logger is the package-wide structured logger. Both engines log through
// this variable directly; it defaults to a no-op logger so the package is
// usable without wiring one up.
var Logger = zerolog.Nop()

// SetLogger installs the logger every Component in this package will log
// through. Call it once during startup, before the first connection is
// activated.
func SetLogger(l zerolog.Logger) { Logger = l }
