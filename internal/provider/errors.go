package provider

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a fetch or judgment run observes
// cooperative cancellation. Distinguishable from provider failures.
var ErrCancelled = errors.New("fetch cancelled")

// AuthError indicates credential exchange or refresh was exhausted.
// The enclosing operation aborts and is not retried.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth failed: %s", e.Op)
	}
	return fmt.Sprintf("auth failed: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProviderError is a non-auth API or protocol failure.
type ProviderError struct {
	Op     string
	Status int // HTTP status for the REST variant, 0 otherwise
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: provider error (%d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: provider error: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NotConfiguredError indicates required settings are missing, such as
// OAuth client credentials or an AI model.
type NotConfiguredError struct {
	What string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("not configured: %s", e.What)
}

// IsCancelled reports whether err is (or wraps) cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
