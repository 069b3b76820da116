// Package chaterr defines the error kinds shared by the chat core and its
// transports. Callers classify with errors.Is against the sentinels.
package chaterr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input: empty ids, empty text, a sender
	// outside the conversation. Rejected before the store is touched.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized marks a membership denial. The real-time path turns it
	// into a silent drop.
	ErrUnauthorized = errors.New("not authorized")

	// ErrStoreUnavailable marks a transient infrastructure failure. Safe to
	// retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrNotFound = errors.New("not found")
)

// Validation returns an ErrValidation carrying msg.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StoreUnavailable wraps err so that it matches both ErrStoreUnavailable
// and the original cause.
func StoreUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreUnavailable, err))
}

// NotFound returns an ErrNotFound describing what was missing.
func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// Kind names the category of err for logs and wire error codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// Retryable reports whether repeating the operation may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
