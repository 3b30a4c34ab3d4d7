package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zl-scraper/internal/metrics"
	"github.com/sells-group/zl-scraper/internal/resilience"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 16 << 20

// WaterfallOptions configures a WaterfallClient.
type WaterfallOptions struct {
	// ProxyURLs maps each tier to its proxy endpoint. Tiers without a URL
	// are skipped during escalation.
	ProxyURLs map[Tier]string
	// StartTier is the first tier tried for every request.
	StartTier Tier
	// Limiter gates each tier attempt. Nil means unlimited.
	Limiter *TierLimiter
	// Timeout bounds a single tier attempt. Default: 10s.
	Timeout   time.Duration
	UserAgent string
	// InsecureSkipVerify disables TLS verification. Unlocker proxies
	// terminate TLS with their own certificates.
	InsecureSkipVerify bool
}

// TierAttempt records a failed attempt on one tier.
type TierAttempt struct {
	Tier       Tier
	StatusCode int
	Err        error
}

func (a TierAttempt) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%s: %v", a.Tier, a.Err)
	}
	return fmt.Sprintf("%s: status %d", a.Tier, a.StatusCode)
}

// ExhaustedError is returned when every tier failed for a request.
type ExhaustedError struct {
	URL      string
	Attempts []TierAttempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return fmt.Sprintf("fetcher: all tiers failed for %s (%s)", e.URL, strings.Join(parts, "; "))
}

// Last returns the final tier attempt.
func (e *ExhaustedError) Last() TierAttempt {
	if len(e.Attempts) == 0 {
		return TierAttempt{}
	}
	return e.Attempts[len(e.Attempts)-1]
}

// WaterfallClient fetches pages through an ordered list of proxy tiers,
// escalating to the next tier on any failure. Escalation state is per
// request; every Fetch starts again at the configured tier.
type WaterfallClient struct {
	path    []Tier
	clients map[Tier]*http.Client
	limiter *TierLimiter
	headers http.Header
}

var _ Fetcher = (*WaterfallClient)(nil)

// NewWaterfallClient validates the proxy configuration and builds one
// http.Client per tier on the escalation path.
func NewWaterfallClient(opts WaterfallOptions) (*WaterfallClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	c := &WaterfallClient{
		clients: make(map[Tier]*http.Client),
		limiter: opts.Limiter,
		headers: defaultHeaders(opts.UserAgent),
	}

	for i, tier := range opts.StartTier.Escalation() {
		raw := strings.TrimSpace(opts.ProxyURLs[tier])
		if raw == "" && i > 0 {
			continue
		}

		transport := &http.Transport{
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}, //nolint:gosec // proxy-terminated TLS
		}
		if raw != "" && tier != TierNone {
			u, err := url.Parse(raw)
			if err != nil || u.Host == "" {
				return nil, eris.Errorf("fetcher: invalid %s proxy url %q", tier, raw)
			}
			transport.Proxy = http.ProxyURL(u)
		}

		c.path = append(c.path, tier)
		c.clients[tier] = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}

	return c, nil
}

// Path returns the tiers tried for each request, in order.
func (c *WaterfallClient) Path() []Tier {
	out := make([]Tier, len(c.path))
	copy(out, c.path)
	return out
}

// Fetch tries each tier in order and returns the first 2xx response. When
// every tier fails it returns a transient *ExhaustedError so a retry
// controller can repeat the whole waterfall.
func (c *WaterfallClient) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	attempts := make([]TierAttempt, 0, len(c.path))

	for _, tier := range c.path {
		if err := c.limiter.Acquire(ctx, tier); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, attempt := c.try(ctx, tier, rawURL)
		elapsed := time.Since(start)

		if resp != nil {
			metrics.ObserveFetch(tier.String(), metrics.OutcomeSuccess, elapsed)
			zap.L().Debug("fetched",
				zap.String("url", rawURL),
				zap.String("tier", tier.String()),
				zap.Int("status", resp.StatusCode),
				zap.Duration("elapsed", elapsed),
			)
			return resp, nil
		}

		metrics.ObserveFetch(tier.String(), metrics.OutcomeFailure, elapsed)
		if ctx.Err() != nil {
			return nil, eris.Wrapf(ctx.Err(), "fetcher: fetch %s cancelled", rawURL)
		}

		zap.L().Warn("tier attempt failed",
			zap.String("url", rawURL),
			zap.String("tier", tier.String()),
			zap.Int("status", attempt.StatusCode),
			zap.Error(attempt.Err),
		)
		attempts = append(attempts, attempt)
	}

	exhausted := &ExhaustedError{URL: rawURL, Attempts: attempts}
	return nil, resilience.NewTransientError(exhausted, exhausted.Last().StatusCode)
}

// try performs one GET on tier. Exactly one of the results is meaningful.
func (c *WaterfallClient) try(ctx context.Context, tier Tier, rawURL string) (*Response, TierAttempt) {
	attempt := TierAttempt{Tier: tier}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		attempt.Err = eris.Wrap(err, "fetcher: build request")
		return nil, attempt
	}
	req.Header = c.headers.Clone()

	resp, err := c.clients[tier].Do(req)
	if err != nil {
		attempt.Err = err
		return nil, attempt
	}
	defer resp.Body.Close() //nolint:errcheck

	attempt.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, attempt
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		attempt.Err = eris.Wrap(err, "fetcher: read body")
		return nil, attempt
	}
	if block := DetectBlock(resp.StatusCode, resp.Header, raw); block != BlockNone {
		attempt.Err = eris.Errorf("fetcher: blocked by %s", block)
		return nil, attempt
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := decodeBody(raw, contentType)
	if err != nil {
		attempt.Err = err
		return nil, attempt
	}

	return &Response{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		Tier:        tier,
	}, attempt
}
