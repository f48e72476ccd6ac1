package consumer

import "errors"

// RetryableError wraps transient infrastructure errors that should be
// retried with backoff. All other errors are treated as permanent and go
// directly to the dead-letter channel.
//
// Use for: storage timeouts, connection loss, temporary locks.
// Don't use for: validation errors, duplicate-key hits, malformed events.
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string { return e.Err.Error() }
func (e RetryableError) Unwrap() error { return e.Err }

// Transient wraps an error to signal it should be retried.
func Transient(err error) error {
	return RetryableError{Err: err}
}

// IsRetryable returns true if the error should be retried.
func IsRetryable(err error) bool {
	var retryable RetryableError
	return errors.As(err, &retryable)
}
