// Package retry provides retry logic with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy holds retry configuration.
type Policy struct {
	MaxAttempts int           // Maximum number of attempts (0 = infinite)
	InitialWait time.Duration // Initial wait time
	MaxWait     time.Duration // Maximum wait time
	Multiplier  float64       // Backoff multiplier
	Jitter      float64       // Jitter factor (0-1)
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// NoRetry is a policy that makes exactly one attempt.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
}

// TransientError wraps an error that should be retried.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string {
	return e.Err.Error()
}

func (e TransientError) Unwrap() error {
	return e.Err
}

// IsTransient returns true if the error should be retried.
func IsTransient(err error) bool {
	var te TransientError
	return errors.As(err, &te)
}

// Transient wraps an error to mark it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return TransientError{Err: err}
}

func (p Policy) wait(attempt int) time.Duration {
	w := float64(p.InitialWait) * math.Pow(p.Multiplier, float64(attempt-1))
	if w > float64(p.MaxWait) {
		w = float64(p.MaxWait)
	}
	if p.Jitter > 0 {
		w += w * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(w)
}

// Do executes fn with retries. Only errors marked with Transient are
// retried; the context aborts the wait between attempts.
func Do(ctx context.Context, p Policy, fn func() error) error {
	var lastErr error

	for attempt := 1; p.MaxAttempts == 0 || attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.wait(attempt)):
		}
	}

	return lastErr
}

// DoWithResult executes fn with retries and returns a result.
func DoWithResult[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; p.MaxAttempts == 0 || attempt <= p.MaxAttempts; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(p.wait(attempt)):
		}
	}

	return zero, lastErr
}
