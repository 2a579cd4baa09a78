// Package errs defines the small, closed error taxonomy shared by every
// component: clients, media toolbox, blob store, edit operations, and the
// orchestrator all return one of these so the HTTP layer can map an error to
// a status code without a per-endpoint switch.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies which member of the taxonomy an error belongs to.
type Kind int

const (
	KindInput Kind = iota
	KindMissingPrerequisite
	KindRateLimited
	KindTimeout
	KindMedia
	KindUnsignable
	KindNotFound
	KindBackend
)

// Error is the concrete type every taxonomy member implements.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Status returns the HTTP status code this error kind surfaces as.
func (e *Error) Status() int {
	switch e.Kind {
	case KindInput, KindMissingPrerequisite:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNotFound:
		return http.StatusNotFound
	case KindMedia, KindUnsignable, KindBackend:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func InputError(format string, args ...any) error {
	return &Error{Kind: KindInput, Message: fmt.Sprintf(format, args...)}
}

func MissingPrerequisite(format string, args ...any) error {
	return &Error{Kind: KindMissingPrerequisite, Message: fmt.Sprintf(format, args...)}
}

func RateLimited(wrapped error) error {
	return &Error{Kind: KindRateLimited, Message: "rate limited by external service", Wrapped: wrapped}
}

func Timeout(format string, args ...any) error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf(format, args...)}
}

func MediaErrorf(stderr string) error {
	return &Error{Kind: KindMedia, Message: "media toolbox operation failed", Wrapped: errors.New(stderr)}
}

func Unsignable(format string, args ...any) error {
	return &Error{Kind: KindUnsignable, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Backend(wrapped error) error {
	return &Error{Kind: KindBackend, Message: "backend error", Wrapped: wrapped}
}

// Is reports whether err (or something it wraps) belongs to kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// StatusFor maps any error to an HTTP status, defaulting to 500 for errors
// that never went through this package.
func StatusFor(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status()
	}
	return http.StatusInternalServerError
}
