package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zl-scraper/internal/fetcher"
	"github.com/sells-group/zl-scraper/internal/metrics"
	"github.com/sells-group/zl-scraper/internal/model"
	"github.com/sells-group/zl-scraper/internal/parser"
	"github.com/sells-group/zl-scraper/internal/registry"
	"github.com/sells-group/zl-scraper/internal/resilience"
	"github.com/sells-group/zl-scraper/internal/scheduler"
	"github.com/sells-group/zl-scraper/internal/store"
)

// StageDiscover labels discover runs, logs and metrics.
const StageDiscover = "discover"

// DiscoverConfig holds the settings of the discover stage.
type DiscoverConfig struct {
	BaseURL string
	// Concurrency bounds the search pages fetched at once.
	Concurrency int
	Retry       resilience.RetryConfig
	// FacetPause is slept after a facet that produced results.
	FacetPause time.Duration
}

// DiscoverOptions select what one run covers.
type DiscoverOptions struct {
	Filter registry.Filter
	// MaxPages caps the pages fetched per facet. Zero means no cap.
	MaxPages int
}

// FacetResult summarizes one facet of a discover run.
type FacetResult struct {
	FacetID     int               `json:"facet_id"`
	Name        string            `json:"name"`
	New         int               `json:"new"`
	Duplicate   int               `json:"duplicate"`
	PagesOK     int               `json:"pages_ok"`
	PagesFailed int               `json:"pages_failed"`
	LastPage    int               `json:"last_page"`
	TotalPages  int               `json:"total_pages"`
	Status      model.FacetStatus `json:"status"`
	Skipped     bool              `json:"skipped,omitempty"`
}

// DiscoverSummary is the outcome of a discover run.
type DiscoverSummary struct {
	RunID       string        `json:"run_id"`
	Facets      []FacetResult `json:"facets"`
	New         int           `json:"new"`
	Duplicate   int           `json:"duplicate"`
	PagesOK     int           `json:"pages_ok"`
	PagesFailed int           `json:"pages_failed"`
	Skipped     int           `json:"skipped"`
}

func (s *DiscoverSummary) add(r FacetResult) {
	s.Facets = append(s.Facets, r)
	s.New += r.New
	s.Duplicate += r.Duplicate
	s.PagesOK += r.PagesOK
	s.PagesFailed += r.PagesFailed
	if r.Skipped {
		s.Skipped++
	}
}

// Discoverer walks the search pages of each facet and records the clinics
// found. Every page is checkpointed, so an interrupted run resumes where it
// stopped and a finished facet is never fetched again.
type Discoverer struct {
	store store.Store
	chain fetchChain
	cfg   DiscoverConfig
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(st store.Store, f fetcher.Fetcher, cfg DiscoverConfig) *Discoverer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Discoverer{
		store: st,
		chain: newFetchChain(f, cfg.Retry, StageDiscover),
		cfg:   cfg,
	}
}

// Run registers facets, applies the filter and discovers the selected
// facets in order. Page failures are logged and skipped; only store
// failures end the run with an error. Cancelling ctx stops admission of
// new pages and facets.
func (d *Discoverer) Run(ctx context.Context, facets []model.Facet, opts DiscoverOptions) (*DiscoverSummary, error) {
	if err := d.store.UpsertFacets(ctx, facets); err != nil {
		return nil, eris.Wrap(err, "discover: register facets")
	}

	summary := &DiscoverSummary{Facets: []FacetResult{}}
	selected := opts.Filter.Apply(facets)
	if len(selected) == 0 {
		zap.L().Warn("discover: no facets matched the filters")
		return summary, nil
	}

	run, err := d.store.CreateRun(ctx, StageDiscover)
	if err != nil {
		return nil, eris.Wrap(err, "discover: create run")
	}
	summary.RunID = run.ID

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("stage", StageDiscover))
	log.Info("discover: starting",
		zap.Int("facets", len(selected)),
		zap.Int("max_pages", opts.MaxPages),
		zap.Int("concurrency", d.cfg.Concurrency),
	)

	var runErr error
	for i, facet := range selected {
		if ctx.Err() != nil {
			break
		}
		res, err := d.discoverFacet(ctx, log, facet, opts.MaxPages)
		summary.add(res)
		if err != nil {
			runErr = err
			break
		}

		if i < len(selected)-1 && d.cfg.FacetPause > 0 && res.New+res.Duplicate > 0 {
			log.Info("discover: pausing before next facet", zap.Duration("pause", d.cfg.FacetPause))
			if !sleepCtx(ctx, d.cfg.FacetPause) {
				break
			}
		}
	}

	status := model.RunStatusComplete
	switch {
	case runErr != nil:
		status = model.RunStatusFailed
	case ctx.Err() != nil:
		status = model.RunStatusCancelled
	}
	if err := d.store.FinishRun(context.WithoutCancel(ctx), run.ID, status, summary); err != nil {
		log.Warn("discover: failed to finish run", zap.Error(err))
	}

	log.Info("discover: complete",
		zap.String("status", string(status)),
		zap.Int("facets", len(summary.Facets)),
		zap.Int("new", summary.New),
		zap.Int("duplicate", summary.Duplicate),
		zap.Int("pages_ok", summary.PagesOK),
		zap.Int("pages_failed", summary.PagesFailed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, runErr
}

func (d *Discoverer) discoverFacet(ctx context.Context, log *zap.Logger, facet model.Facet, maxPages int) (FacetResult, error) {
	log = log.With(zap.Int("facet", facet.ID), zap.String("facet_name", facet.Name))
	res := FacetResult{FacetID: facet.ID, Name: facet.Name}

	progress, err := d.store.GetProgress(ctx, facet.ID)
	if err != nil {
		return res, eris.Wrapf(err, "discover: load progress for facet %d", facet.ID)
	}
	res.Status = progress.Status
	res.LastPage = progress.LastPageScraped
	if progress.TotalPages != nil {
		res.TotalPages = *progress.TotalPages
	}

	start, ok, err := d.store.NextPageFor(ctx, facet.ID)
	if err != nil {
		return res, eris.Wrapf(err, "discover: next page for facet %d", facet.ID)
	}
	if !ok {
		log.Info("discover: facet already complete, skipping")
		res.Skipped = true
		return res, nil
	}
	if progress.Capped() && progress.Status == model.FacetDone {
		log.Info("discover: resuming capped facet",
			zap.Int("last_page", progress.LastPageScraped),
			zap.Int("total_pages", res.TotalPages),
		)
	}

	if start == 1 {
		out := scheduler.RunWith(ctx, []int{1}, scheduler.Options[int, pageResult]{Limit: 1, Stage: StageDiscover},
			func(ctx context.Context, page int) (pageResult, error) {
				return d.scrapePage(ctx, facet, page)
			})[0]
		if !out.Admitted() {
			return res, nil
		}
		if out.Err != nil {
			if errors.Is(out.Err, errPersist) {
				return res, out.Err
			}
			metrics.ObservePage(metrics.OutcomeFailure)
			res.PagesFailed++
			log.Error("discover: first page failed, facet left pending", zap.Error(out.Err))
			return res, nil
		}

		total := out.Value.total
		if err := d.store.RecordPage(context.WithoutCancel(ctx), facet.ID, 1, &total); err != nil {
			return res, eris.Wrapf(err, "discover: checkpoint facet %d page 1", facet.ID)
		}
		metrics.ObservePage(metrics.OutcomeSuccess)
		res.PagesOK++
		res.New += out.Value.saved.New
		res.Duplicate += out.Value.saved.Duplicate
		res.LastPage = 1
		res.TotalPages = total
		res.Status = model.FacetInProgress
		start = 2

		log.Info("discover: first page",
			zap.Int("total_pages", total),
			zap.Int("new", out.Value.saved.New),
			zap.Int("duplicate", out.Value.saved.Duplicate),
		)
	}

	total := res.TotalPages
	if total < 1 {
		total = 1
	}
	last := total
	if maxPages > 0 && maxPages < last {
		last = maxPages
	}

	if start <= last {
		pages := make([]int, 0, last-start+1)
		for p := start; p <= last; p++ {
			pages = append(pages, p)
		}
		if err := d.fetchPages(ctx, log, facet, pages, total, &res); err != nil {
			return res, err
		}
	}

	final, err := d.store.GetProgress(context.WithoutCancel(ctx), facet.ID)
	if err != nil {
		return res, eris.Wrapf(err, "discover: reload progress for facet %d", facet.ID)
	}
	res.LastPage = final.LastPageScraped
	res.Status = final.Status
	if final.LastPageScraped >= total && final.Status != model.FacetDone {
		if err := d.store.MarkFacetDone(context.WithoutCancel(ctx), facet.ID); err != nil {
			return res, eris.Wrapf(err, "discover: mark facet %d done", facet.ID)
		}
		res.Status = model.FacetDone
	}

	log.Info("discover: facet finished",
		zap.String("status", string(res.Status)),
		zap.Int("new", res.New),
		zap.Int("duplicate", res.Duplicate),
		zap.Int("pages_ok", res.PagesOK),
		zap.Int("pages_failed", res.PagesFailed),
		zap.Int("last_page", res.LastPage),
		zap.Int("total_pages", total),
	)
	return res, nil
}

// fetchPages scrapes pages concurrently and advances the checkpoint to the
// highest page below which every page has finished, successfully or not.
// A page that is still running or was never admitted holds the checkpoint
// back, so an interrupted run resumes from it.
func (d *Discoverer) fetchPages(ctx context.Context, log *zap.Logger, facet model.Facet, pages []int, total int, res *FacetResult) error {
	var (
		finished  = make(map[int]bool, len(pages))
		watermark = pages[0] - 1
		persisted error
		abort     atomic.Bool
	)

	opts := scheduler.Options[int, pageResult]{
		Limit: d.cfg.Concurrency,
		Stage: StageDiscover,
		Stop:  abort.Load,
		OnOutcome: func(o scheduler.Outcome[int, pageResult]) {
			switch {
			case o.Err == nil:
				metrics.ObservePage(metrics.OutcomeSuccess)
				res.PagesOK++
				res.New += o.Value.saved.New
				res.Duplicate += o.Value.saved.Duplicate
				log.Debug("discover: page saved",
					zap.Int("page", o.Task),
					zap.Int("new", o.Value.saved.New),
					zap.Int("duplicate", o.Value.saved.Duplicate),
					zap.String("tier", o.Value.tier.String()),
				)
			case errors.Is(o.Err, errPersist):
				if persisted == nil {
					persisted = o.Err
				}
				abort.Store(true)
				return
			default:
				metrics.ObservePage(metrics.OutcomeFailure)
				res.PagesFailed++
				log.Error("discover: page failed, skipping", zap.Int("page", o.Task), zap.Error(o.Err))
			}

			finished[o.Task] = true
			advanced := false
			for finished[watermark+1] {
				watermark++
				advanced = true
			}
			if !advanced || persisted != nil {
				return
			}
			if err := d.store.RecordPage(context.WithoutCancel(ctx), facet.ID, watermark, &total); err != nil {
				persisted = eris.Wrapf(err, "discover: checkpoint facet %d page %d", facet.ID, watermark)
				abort.Store(true)
			}
		},
	}

	scheduler.RunWith(ctx, pages, opts, func(ctx context.Context, page int) (pageResult, error) {
		return d.scrapePage(ctx, facet, page)
	})
	return persisted
}

type pageResult struct {
	saved store.SaveResult
	total int
	tier  fetcher.Tier
}

// scrapePage fetches, parses and stores one search page.
func (d *Discoverer) scrapePage(ctx context.Context, facet model.Facet, page int) (pageResult, error) {
	resp, err := d.chain.get(ctx, SearchURL(d.cfg.BaseURL, facet, page))
	if err != nil {
		return pageResult{}, err
	}

	stubs, err := parser.ParseSearchPage(resp.Body, d.cfg.BaseURL)
	if err != nil {
		return pageResult{}, eris.Wrapf(err, "discover: parse facet %d page %d", facet.ID, page)
	}
	total := 1
	if len(stubs) > 0 {
		total = parser.ParseTotalPages(resp.Body)
	}

	saved, err := d.store.SaveStubs(ctx, facet.ID, stubs)
	if err != nil {
		return pageResult{}, eris.Wrapf(errPersist, "facet %d page %d: %v", facet.ID, page, err)
	}
	metrics.ObserveDiscovered(saved.New, saved.Duplicate)
	return pageResult{saved: saved, total: total, tier: resp.Tier}, nil
}

// sleepCtx sleeps for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
