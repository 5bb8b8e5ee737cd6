// Package retry re-runs relay submissions that failed for transient reasons.
//
// Submissions that reached the account and were rejected by it (a nonce
// mismatch, a bad signature) must not be replayed; callers mark those with
// Permanent so the loop returns them at once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts  int           // Attempts including the first one
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound for any delay
	Multiplier   float64       // Backoff growth factor

	// OnRetry, when set, is called before each delayed re-attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig is the policy used by relay clients.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// Validate reports whether c describes a usable policy.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("retry attempts must be at least 1")
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return errors.New("retry delays must not be negative")
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1, got %v", c.Multiplier)
	}
	return nil
}

// Delay returns the wait before attempt n (1-based re-attempt count).
func (c Config) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	multiplier := c.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}
	delay := float64(c.InitialDelay)
	for i := 1; i < n; i++ {
		delay *= multiplier
		if c.MaxDelay > 0 && delay >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && time.Duration(delay) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that no retry is attempted.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Transient retries everything except permanent and context errors.
func Transient(err error) bool {
	if IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. Permanent errors are returned unwrapped.
func WithRetry[T any](
	ctx context.Context,
	config Config,
	isRetryable IsRetryable,
	fn func() (T, error),
) (T, error) {
	var zero T
	if err := config.Validate(); err != nil {
		return zero, err
	}
	if isRetryable == nil {
		isRetryable = Transient
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return zero, p.err
		}
		if !isRetryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == config.MaxAttempts {
			break
		}

		delay := config.Delay(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}

	return zero, &ExhaustedError{Attempts: config.MaxAttempts, Err: lastErr}
}

// Do is WithRetry with the Transient classifier.
func Do[T any](ctx context.Context, config Config, fn func() (T, error)) (T, error) {
	return WithRetry(ctx, config, Transient, fn)
}
