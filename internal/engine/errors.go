package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned when a request names an engine that is not
// registered or whose backing resources failed to initialize at start-up.
// An explicit engine request is never silently overridden.
var ErrUnavailable = errors.New("engine unavailable")

// TransientError marks a recoverable engine failure eligible for retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient engine error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a recoverable failure. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is eligible for retry. Context deadline
// expiry counts as transient (a per-attempt timeout), context cancellation
// does not (the request itself is gone).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
