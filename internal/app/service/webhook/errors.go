package webhook

import "errors"

// ErrEventInFlight signals that another invocation for the same
// (source, event id) is currently PROCESSING. The caller should answer with a
// conflict and let the provider's own retry schedule resubmit later.
var ErrEventInFlight = errors.New("event is already being processed")

// ProcessingError wraps a failure with an explicit retryability class.
type ProcessingError struct {
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string { return e.Err.Error() }
func (e *ProcessingError) Unwrap() error { return e.Err }

// NonRetryable marks err as a permanent failure.
func NonRetryable(err error) error {
	return &ProcessingError{Err: err, Retryable: false}
}

// Retryable marks err as a transient failure.
func Retryable(err error) error {
	return &ProcessingError{Err: err, Retryable: true}
}

// IsRetryable classifies an error. Unclassified errors default to retryable:
// failing open toward "try again" beats silently dropping a transaction.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}
