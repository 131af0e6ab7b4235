package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryableError marks an error as safe to retry for read-only queries.
// Write paths never wrap their errors in RetryableError: a retried write
// on a connection that actually succeeded but dropped its response would
// violate the at-most-one-lease guarantee.
type RetryableError struct {
	Cause error
}

func (e *RetryableError) Error() string { return e.Cause.Error() }
func (e *RetryableError) Unwrap() error { return e.Cause }

// Retryable wraps err so RetryRead recognizes it as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Cause: err}
}

// RetryRead runs fn up to 3 attempts with exponential backoff, retrying
// only when fn's error is a *RetryableError. Non-retryable errors return
// immediately on the first attempt. GetTask and QueryTasks in both
// dialects wrap their DB calls with this; write methods never do.
func RetryRead(ctx context.Context, fn func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2) // 3 total attempts
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var retryable *RetryableError
		if errors.As(err, &retryable) {
			return retryable.Cause
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}

// NewConnectionBreaker trips after repeated connection-acquisition
// failures so a database outage fails fast instead of queuing retries
// indefinitely behind a growing request backlog.
func NewConnectionBreaker(name string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
