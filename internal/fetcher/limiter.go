package fetcher

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/zl-scraper/internal/metrics"
)

// TierLimiter holds one token bucket per tier. Each bucket allows RPM
// requests per minute with a burst of RPM.
type TierLimiter struct {
	limiters map[Tier]*rate.Limiter
}

// NewTierLimiter builds limiters from requests-per-minute budgets. Tiers
// with a budget <= 0 or missing from the map are unlimited.
func NewTierLimiter(rpm map[Tier]int) *TierLimiter {
	limiters := make(map[Tier]*rate.Limiter, len(rpm))
	for tier, n := range rpm {
		if n <= 0 {
			limiters[tier] = rate.NewLimiter(rate.Inf, 0)
			continue
		}
		limiters[tier] = rate.NewLimiter(rate.Limit(float64(n)/60.0), n)
	}
	return &TierLimiter{limiters: limiters}
}

// Acquire blocks until a request on tier is admitted. It only fails when
// ctx is done first.
func (l *TierLimiter) Acquire(ctx context.Context, tier Tier) error {
	if l == nil {
		return nil
	}
	lim, ok := l.limiters[tier]
	if !ok {
		return nil
	}

	start := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return eris.Wrapf(err, "fetcher: rate limiter wait (%s)", tier)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(tier.String(), waited)
	}
	return nil
}
