package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/zl-scraper/internal/metrics"
)

// RetryConfig controls retry behavior with exponential backoff and jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay after the first failure. Default: 2s.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Default: 30s.
	MaxBackoff time.Duration

	// Multiplier scales the backoff after each attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction adds random jitter as a fraction of the computed delay
	// (0.0 = no jitter, 0.5 = ±50%). Default: 0.25.
	JitterFraction float64

	// ShouldRetry optionally overrides the default transient-error check.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnAttempt is called after every attempt, successful or not.
	OnAttempt func(AttemptInfo)
}

// AttemptInfo describes one attempt for observers.
type AttemptInfo struct {
	Attempt int
	Target  string
	Err     error
	// Wait is the backoff about to be slept, zero when no retry follows.
	Wait time.Duration
}

// DefaultRetryConfig returns the backoff schedule used for catalog fetches:
// 2s, 4s, ... capped at 30s, three attempts in total.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Do executes fn with retry logic according to cfg. Target names the
// operation in errors and observer callbacks (usually a URL).
func Do(ctx context.Context, cfg RetryConfig, target string, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, target, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal executes fn returning a value with retry logic. It retries only on
// errors deemed retryable (via ShouldRetry or IsTransient). Any failure is
// returned as a *RetryError carrying every attempt. Context cancellation stops
// retries immediately.
func DoVal[T any](ctx context.Context, cfg RetryConfig, target string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	rerr := &RetryError{Target: target}
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			notify(cfg, AttemptInfo{Attempt: attempt + 1, Target: target})
			return val, nil
		}

		rec := Attempt{Number: attempt + 1, Err: err}
		retry := ctx.Err() == nil && shouldRetry(err) && attempt < cfg.MaxAttempts-1
		if retry {
			rec.Wait = computeBackoff(attempt, cfg)
		}
		rerr.Attempts = append(rerr.Attempts, rec)
		notify(cfg, AttemptInfo{Attempt: rec.Number, Target: target, Err: err, Wait: rec.Wait})

		if !retry {
			return zero, rerr
		}

		timer := time.NewTimer(rec.Wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, rerr
		case <-timer.C:
		}
	}

	return zero, rerr
}

func notify(cfg RetryConfig, info AttemptInfo) {
	if cfg.OnAttempt != nil {
		cfg.OnAttempt(info)
	}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// computeBackoff returns InitialBackoff * Multiplier^attempt, capped at
// MaxBackoff, then perturbed by ±JitterFraction. attempt is zero-based.
func computeBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}

	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// AttemptLogger returns an OnAttempt callback that logs failed attempts and
// counts every attempt under stage.
func AttemptLogger(stage string) func(AttemptInfo) {
	return func(info AttemptInfo) {
		if info.Err == nil {
			metrics.ObserveRetry(stage, metrics.OutcomeSuccess)
			return
		}
		metrics.ObserveRetry(stage, metrics.OutcomeFailure)

		fields := []zap.Field{
			zap.String("stage", stage),
			zap.String("target", info.Target),
			zap.Int("attempt", info.Attempt),
			zap.Error(info.Err),
		}
		if info.Wait > 0 {
			zap.L().Warn("retrying after failure", append(fields, zap.Duration("wait", info.Wait))...)
			return
		}
		zap.L().Warn("giving up", fields...)
	}
}
