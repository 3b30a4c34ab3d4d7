package resilience

import (
	"time"
)

// FromRetryConfig builds a RetryConfig from flat settings. Non-positive
// values and a negative jitter keep the catalog defaults. Jitter above 1
// is clamped, and MaxBackoff never drops below InitialBackoff.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = millis(initialBackoffMs)
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = millis(maxBackoffMs)
	}
	cfg.MaxBackoff = max(cfg.MaxBackoff, cfg.InitialBackoff)
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = min(jitterFraction, 1)
	}
	return cfg
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
