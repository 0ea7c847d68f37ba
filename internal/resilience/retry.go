package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls the per-item retry loop: exponential backoff with
// additive jitter, retrying only classified-as-transient failures.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first
	// try). A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// BaseDelay is the backoff unit: the sleep before retry n is
	// BaseDelay * 2^(n-1) plus jitter. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff sleep. Default: 30s.
	MaxDelay time.Duration

	// Jitter is the upper bound of the uniform random addition to each
	// sleep. Default: 1s.
	Jitter time.Duration

	// OnRetry is called before each retry sleep with the attempt number
	// about to run and the classified error that triggered it.
	OnRetry func(attempt int, err *StageError)
}

// DefaultRetryConfig returns the retry settings used by the stage workers.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      1 * time.Second,
	}
}

// DoVal runs fn up to cfg.MaxAttempts times, sleeping between attempts,
// and returns the last classified error on exhaustion. Non-retryable
// kinds (auth, parse) stop immediately, as does context cancellation.
// The last attempt's value is returned even on failure so callers can
// persist partial diagnostics alongside the error.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, *StageError) {
	cfg = applyDefaults(cfg)

	var last T
	var lastErr *StageError
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		last, lastErr = val, Classify(err)

		if ctx.Err() != nil {
			return last, lastErr
		}
		if !lastErr.Kind.Retryable() {
			return last, lastErr
		}
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(Backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, lastErr
		case <-timer.C:
		}
	}

	return last, lastErr
}

// Backoff computes the sleep before the retry following attempt
// (zero-based): BaseDelay * 2^attempt + uniform(0, Jitter), capped at
// MaxDelay before jitter. Delays are monotonically non-decreasing in
// expectation across attempts.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	cfg = applyDefaults(cfg)
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter > 0 {
		delay += rand.Float64() * float64(cfg.Jitter)
	}
	return time.Duration(delay)
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return cfg
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(stage, operation string) func(int, *StageError) {
	return func(attempt int, err *StageError) {
		zap.L().Warn("retrying operation",
			zap.String("stage", stage),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("kind", string(err.Kind)),
			zap.Error(err),
		)
	}
}
