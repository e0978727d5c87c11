// Package retry implements bounded exponential backoff with jitter for
// transient failures. Structural errors are never retried; callers supply a
// predicate deciding which errors are worth another attempt.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"trackforge/internal/logging"
)

// Config describes a backoff policy. Delay for attempt n (0-based) is
// BaseDelay * 2^n, capped at MaxDelay, with up to Jitter fraction of random
// spread added.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// FromSettings converts the millisecond-based configuration file values.
func FromSettings(maxAttempts, baseDelayMS, maxDelayMS int, jitter float64) Config {
	return Config{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Duration(baseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(maxDelayMS) * time.Millisecond,
		Jitter:      jitter,
	}
}

// Do runs fn until it succeeds, the error is not retryable, attempts are
// exhausted, or the context is cancelled. The last error is returned.
func Do(ctx context.Context, logger *slog.Logger, cfg Config, retryable func(error) bool, fn func(context.Context) error) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		delay := Delay(cfg, attempt)
		logger.Warn("attempt failed, retrying",
			logging.Int("attempt", attempt+1),
			logging.Int("max_attempts", attempts),
			logging.Duration("delay", delay),
			logging.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// Delay computes the backoff delay for the given 0-based attempt.
func Delay(cfg Config, attempt int) time.Duration {
	base := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && base > max {
		base = max
	}
	if cfg.Jitter > 0 {
		base += base * cfg.Jitter * rand.Float64()
	}
	return time.Duration(base)
}
