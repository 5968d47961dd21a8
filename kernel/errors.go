package kernel

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a kernel error independently of its HTTP status, so
// handlers can branch on it without parsing status codes back out.
type Kind int

const (
	KindMalformed  Kind = iota // unknown page, bad parameters, over-multivalued
	KindForbidden              // authorization failure
	KindUnauthenticated        // invalid authentication
	KindNotFound               // missing entity
	KindMethodNotAllowed
	KindNotAcceptable // decoder refused the body
	KindInternal      // unhandled internal exception
)

var kindStatus = map[Kind]int{
	KindMalformed:       http.StatusBadRequest,
	KindForbidden:       http.StatusForbidden,
	KindUnauthenticated: http.StatusUnauthorized,
	KindNotFound:        http.StatusNotFound,
	KindMethodNotAllowed: http.StatusMethodNotAllowed,
	KindNotAcceptable:    http.StatusNotAcceptable,
	KindInternal:         http.StatusInternalServerError,
}

// Status returns the HTTP status code the table in the design maps this
// Kind to.
func (k Kind) Status() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// KernelError is the single error type that flows through extraction,
// dispatch, and the handler callbacks. It always carries enough to pick an
// HTTP status and render either an error page or a JSON error envelope.
type KernelError struct {
	Kind   Kind
	Detail string
	cause  error
}

func NewError(kind Kind, detail string) *KernelError {
	return &KernelError{Kind: kind, Detail: detail}
}

// Wrap attaches a Kind to an arbitrary error, for handler code that has no
// reason to depend on this package's error type directly.
func Wrap(kind Kind, err error) *KernelError {
	if err == nil {
		return nil
	}
	return &KernelError{Kind: kind, Detail: err.Error(), cause: err}
}

func (e *KernelError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("kernel: %s", e.Kind.String())
	}
	return fmt.Sprintf("kernel: %s: %s", e.Kind.String(), e.Detail)
}

func (e *KernelError) Unwrap() error { return e.cause }

func (e *KernelError) Status() int { return e.Kind.Status() }

// AsKernelError recovers a *KernelError from an arbitrary error chain,
// defaulting to KindInternal when err was never classified. This mirrors the
// teacher's headResult/failReason pair, expressed as an idiomatic Go error
// value instead of out-parameters threaded through every call.
func AsKernelError(err error) *KernelError {
	if err == nil {
		return nil
	}
	var kerr *KernelError
	if errors.As(err, &kerr) {
		return kerr
	}
	return &KernelError{Kind: KindInternal, Detail: err.Error(), cause: err}
}

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed request"
	case KindForbidden:
		return "forbidden"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not found"
	case KindMethodNotAllowed:
		return "method not allowed"
	case KindNotAcceptable:
		return "not acceptable"
	case KindInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// TooManyValues builds the exact malformed-request error S2/invariant 4 of
// the design require: status 400, message "Too many values for <name>".
func TooManyValues(name string) *KernelError {
	return NewError(KindMalformed, fmt.Sprintf("Too many values for %s", name))
}
