package payment

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors shared by the payment flows.
var (
	ErrNotFound      = errors.New("payment not found")
	ErrConflict      = errors.New("payment already exists")
	ErrStatusChanged = errors.New("payment status changed concurrently")

	// ErrStaleTransition is returned when an update would overwrite a
	// terminal status.
	ErrStaleTransition = errors.New("payment is already in a final state")

	// ErrInvalidSignature rejects a callback whose signature does not match
	// its body.
	ErrInvalidSignature = errors.New("invalid signature")
)

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UpstreamError wraps a failure reported by an external payment provider.
// Message is safe to pass through to API clients for diagnostics.
type UpstreamError struct {
	Provider string
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
