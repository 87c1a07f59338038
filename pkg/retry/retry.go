package retry

import (
	"context"
	"fmt"
	"time"
)

// Backoff returns the delay to wait before the given attempt (1-based).
type Backoff func(attempt int) time.Duration

// Linear waits base × attempt.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Exponential doubles the wait each attempt, capped at max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt && d < max; i++ {
			d *= 2
		}
		return min(d, max)
	}
}

// Config holds retry configuration
type Config struct {
	Attempts  int // total attempts including the first one
	Backoff   Backoff
	Retryable func(error) bool // nil retries every error
}

// Do runs fn until it succeeds, the error is not retryable, attempts run out
// or ctx is done. The wait between attempts honours ctx.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	attempts := max(cfg.Attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts || cfg.Backoff == nil {
			continue
		}

		timer := time.NewTimer(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("retry limit exceeded after %d attempts: %w", attempts, lastErr)
}
