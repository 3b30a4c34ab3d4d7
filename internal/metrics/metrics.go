// Package metrics exposes Prometheus collectors for the scraper stages.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zl_fetch_attempts_total",
			Help: "Proxy tier attempts, labeled by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zl_fetch_duration_seconds",
			Help:    "Latency of single tier attempts.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"tier"},
	)

	rateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zl_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a tier rate limiter token.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tier"},
	)

	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zl_retry_attempts_total",
			Help: "Retry controller attempts, labeled by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	activeTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zl_scheduler_active_tasks",
			Help: "Tasks currently running in the scheduler.",
		},
		[]string{"stage"},
	)

	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zl_discover_pages_total",
			Help: "Search pages processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	clinicsDiscoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zl_clinics_discovered_total",
			Help: "Clinic stubs seen during discovery, labeled new or duplicate.",
		},
		[]string{"result"},
	)

	clinicsEnrichedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zl_clinics_enriched_total",
			Help: "Enrichment outcomes, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ObserveFetch records one tier attempt.
func ObserveFetch(tier, outcome string, d time.Duration) {
	fetchAttemptsTotal.WithLabelValues(tier, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(tier).Observe(d.Seconds())
}

// ObserveRateLimitWait records how long a caller was suspended by a limiter.
func ObserveRateLimitWait(tier string, d time.Duration) {
	rateLimitWaitSeconds.WithLabelValues(tier).Observe(d.Seconds())
}

// ObserveRetry records one retry controller attempt.
func ObserveRetry(stage, outcome string) {
	retryAttemptsTotal.WithLabelValues(stage, outcome).Inc()
}

// TaskStarted increments the active task gauge for stage.
func TaskStarted(stage string) {
	activeTasks.WithLabelValues(stage).Inc()
}

// TaskFinished decrements the active task gauge for stage.
func TaskFinished(stage string) {
	activeTasks.WithLabelValues(stage).Dec()
}

// ObservePage records a processed search page.
func ObservePage(outcome string) {
	pagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDiscovered records new and duplicate stubs from a page.
func ObserveDiscovered(newCount, dupCount int) {
	clinicsDiscoveredTotal.WithLabelValues("new").Add(float64(newCount))
	clinicsDiscoveredTotal.WithLabelValues("duplicate").Add(float64(dupCount))
}

// ObserveEnriched records one enrichment outcome.
func ObserveEnriched(outcome string) {
	clinicsEnrichedTotal.WithLabelValues(outcome).Inc()
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Router returns the metrics router with /metrics and /healthz.
func Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", Handler())
	return r
}

// Serve exposes the metrics router on addr until ctx is cancelled.
// An empty addr disables the server.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting metrics server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "metrics: listen")
	}
	return nil
}
