package queue

import "errors"

var (
	// ErrJobNotFound is returned when a job id has no backing record
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidEnvelope is returned when a job payload cannot be decoded
	// or is missing required fields; never retried
	ErrInvalidEnvelope = errors.New("invalid job envelope")

	// ErrUnknownToken is returned for envelopes whose token matches no
	// registered job kind
	ErrUnknownToken = errors.New("unknown job token")
)

// RetryableError wraps transient failures (remote 5xx, connection loss,
// database errors) that a redelivered execution may succeed at
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is classified as retryable
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}
