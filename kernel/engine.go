package kernel

import (
	"strings"
)

// EngineState names the per-request points on the state machine in the
// design: IDLE -> HEAD_RECEIVED -> (FULL_BODY|STREAMING_BODY) -> DISPATCHED
// -> RESPONDED -> (IDLE|CLOSED). net/http already drives the actual
// read/write mechanics (see SPEC_FULL.md §1); this enum exists so the
// engine's own logic, tests, and logs can still talk about "what state is
// this request in" the way the design describes.
type EngineState int

const (
	StateIdle EngineState = iota
	StateHeadReceived
	StateBody
	StateDispatched
	StateResponded
	StateClosed
)

// KernelConfig is the minimum configuration both engines need: a base
// static path, a session-cookie name, and a temp directory path.
type KernelConfig struct {
	BaseStaticPath    string
	SessionCookieName string
	TempDir           string
	SpillThreshold    int64
}

// splitBaseAndArgs separates the first path segment (the base URI the
// MethodRegistry keys on) from the remaining segments (treated as
// positional IDs per spec.md §4.4: "sub-URI segments after the base are
// treated as positional IDs").
func splitBaseAndArgs(path string) (base string, args []string) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/", nil
	}
	segments := strings.Split(trimmed, "/")
	base = "/" + segments[0]
	if len(segments) > 1 {
		args = segments[1:]
	}
	return base, args
}

// checkMultiValue enforces "a parameter with more than one value is a 400"
// for a single declared field name across whichever value source supplied
// it (URL query or header).
func checkMultiValue(name string, values []string) error {
	if len(values) > 1 {
		return TooManyValues(name)
	}
	return nil
}

// firstValue is a small helper: values[0] if present, else "".
func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
