package kernel

import (
	"errors"
	"net/http"
	"testing"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindMalformed:        http.StatusBadRequest,
		KindForbidden:        http.StatusForbidden,
		KindUnauthenticated:  http.StatusUnauthorized,
		KindNotFound:         http.StatusNotFound,
		KindMethodNotAllowed: http.StatusMethodNotAllowed,
		KindNotAcceptable:    http.StatusNotAcceptable,
		KindInternal:         http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.Status(); got != want {
			t.Errorf("Kind(%d).Status() = %d, want %d", kind, got, want)
		}
	}
}

func TestTooManyValues(t *testing.T) {
	err := TooManyValues("limit")
	if err.Status() != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", err.Status())
	}
	if err.Error() != "kernel: malformed request: Too many values for limit" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestAsKernelErrorPassthrough(t *testing.T) {
	original := NewError(KindNotFound, "missing")
	wrapped := errors.New("context: " + original.Error())
	if AsKernelError(wrapped).Kind != KindInternal {
		t.Fatalf("an unrelated error should classify as KindInternal")
	}
	if AsKernelError(original).Kind != KindNotFound {
		t.Fatalf("a *KernelError should round-trip through AsKernelError unchanged")
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(KindInternal, nil) != nil {
		t.Fatal("Wrap(kind, nil) must return nil")
	}
}

func TestKernelErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(KindInternal, cause)
	if !errors.Is(wrapped, cause) {
		t.Fatal("errors.Is should see through Wrap via Unwrap")
	}
}
