package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Sentinel and typed errors surfaced by provider clients. The pipeline
// recovers only from network errors and timeouts; everything else is
// propagated to the caller.
var (
	// ErrInvalidCredentials means the provider rejected the API key.
	ErrInvalidCredentials = errors.New("invalid API credentials")

	// ErrTimeout means the provider call exceeded its hard deadline.
	ErrTimeout = errors.New("provider request timed out")
)

// RateLimitError is returned on HTTP 429. The broker surfaces it without
// retrying inside the same call.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// BadRequestError means the provider rejected the payload. Fatal: either
// a bug or malformed input.
type BadRequestError struct {
	Detail string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %s", e.Detail)
}

// NetworkError wraps transport-level failures. Eligible for the pipeline's
// fallback path.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProtocolError means the provider answered with something the client
// cannot interpret. Fatal.
type ProtocolError struct {
	StatusCode int
	Detail     string
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("unexpected provider response (status %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("unexpected provider response: %s", e.Detail)
}

// IsRetryable reports whether the pipeline may run its degraded fallback
// path for this error.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// classifyTransportError maps an http.Client error onto the typed error
// set. Context deadline expiry counts as a timeout; everything else is a
// network failure.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return &NetworkError{Err: err}
}
