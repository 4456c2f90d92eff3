package validator

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSession is returned when validation is attempted without an
// authenticated session token. It never reaches the network.
var ErrNoSession = errors.New("no authenticated session")

// ErrOriginForbidden is returned when the staging endpoint rejects the
// caller's origin (HTTP 403). Retrying does not help.
var ErrOriginForbidden = errors.New("origin forbidden")

// RateLimitedError is returned on HTTP 429. RetryAfter comes from the
// Retry-After header when present, else the configured fallback window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %d seconds", int(e.RetryAfter.Seconds()))
}

// ValidationFailedError covers every other non-2xx status and malformed
// response bodies.
type ValidationFailedError struct {
	StatusCode int
	Status     string
	Reason     string
}

func (e *ValidationFailedError) Error() string {
	if e.Reason != "" {
		return "validation failed: " + e.Reason
	}
	return "validation failed: " + e.Status
}

// NetworkError wraps transport-level failures (timeout, DNS, reset).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "validation request failed: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

func isRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

func isForbidden(err error) bool {
	return errors.Is(err, ErrOriginForbidden)
}

func isNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func isInvalidResponse(err error) bool {
	var vf *ValidationFailedError
	return errors.As(err, &vf) && vf.Reason != ""
}
