package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/zl-scraper/internal/fetcher"
	"github.com/sells-group/zl-scraper/internal/metrics"
	"github.com/sells-group/zl-scraper/internal/model"
	"github.com/sells-group/zl-scraper/internal/parser"
	"github.com/sells-group/zl-scraper/internal/resilience"
	"github.com/sells-group/zl-scraper/internal/scheduler"
	"github.com/sells-group/zl-scraper/internal/store"
)

// StageEnrich labels enrich runs, logs and metrics.
const StageEnrich = "enrich"

// DefaultBatchSize is the number of clinics pulled from the store at once.
const DefaultBatchSize = 30

// EnrichConfig holds the settings of the enrich stage.
type EnrichConfig struct {
	BaseURL string
	// Concurrency bounds the clinics enriched at once.
	Concurrency int
	BatchSize   int
	Retry       resilience.RetryConfig
}

// EnrichOptions tune one enrich run.
type EnrichOptions struct {
	// Limit caps the clinics attempted in this run. Zero means all.
	Limit int
}

// EnrichSummary is the outcome of an enrich run.
type EnrichSummary struct {
	RunID    string `json:"run_id"`
	Enriched int    `json:"enriched"`
	Failed   int    `json:"failed"`
	// Skipped counts clinics enriched concurrently by someone else.
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// Enricher fetches the profile page and doctors feed of every clinic not
// yet enriched and stores the result. A failed clinic stays unenriched and
// is offered again on the next run.
type Enricher struct {
	store store.Store
	chain fetchChain
	cfg   EnrichConfig
}

// NewEnricher creates an Enricher.
func NewEnricher(st store.Store, f fetcher.Fetcher, cfg EnrichConfig) *Enricher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Enricher{
		store: st,
		chain: newFetchChain(f, cfg.Retry, StageEnrich),
		cfg:   cfg,
	}
}

type enrichResult struct {
	already   bool
	locations int
	doctors   int
}

// Run enriches clinics batch by batch until none remain, the limit is
// reached or ctx is cancelled. Only store read failures end the run with an
// error.
func (e *Enricher) Run(ctx context.Context, opts EnrichOptions) (*EnrichSummary, error) {
	run, err := e.store.CreateRun(ctx, StageEnrich)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create run")
	}
	summary := &EnrichSummary{RunID: run.ID}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("stage", StageEnrich))
	log.Info("enrich: starting",
		zap.Int("limit", opts.Limit),
		zap.Int("batch_size", e.cfg.BatchSize),
		zap.Int("concurrency", e.cfg.Concurrency),
	)

	var (
		cursor int64
		runErr error
		batchN int
	)
	for ctx.Err() == nil {
		size := e.cfg.BatchSize
		if opts.Limit > 0 {
			remaining := opts.Limit - summary.Total
			if remaining <= 0 {
				break
			}
			size = min(size, remaining)
		}

		batch, err := e.store.UnenrichedEntities(ctx, size, cursor)
		if err != nil {
			if ctx.Err() == nil {
				runErr = eris.Wrap(err, "enrich: load batch")
			}
			break
		}
		if len(batch) == 0 {
			break
		}
		cursor = batch[len(batch)-1].ID
		batchN++
		log.Info("enrich: batch", zap.Int("batch", batchN), zap.Int("clinics", len(batch)))

		scheduler.RunWith(ctx, batch, scheduler.Options[model.Clinic, enrichResult]{
			Limit: e.cfg.Concurrency,
			Stage: StageEnrich,
			OnOutcome: func(o scheduler.Outcome[model.Clinic, enrichResult]) {
				summary.Total++
				c := o.Task
				switch {
				case o.Err != nil:
					summary.Failed++
					metrics.ObserveEnriched(metrics.OutcomeFailure)
					log.Error("enrich: clinic failed",
						zap.Int64("clinic_id", c.ID),
						zap.String("url", c.URL),
						zap.Error(o.Err),
					)
				case o.Value.already:
					summary.Skipped++
					log.Debug("enrich: clinic already enriched", zap.Int64("clinic_id", c.ID))
				default:
					summary.Enriched++
					metrics.ObserveEnriched(metrics.OutcomeSuccess)
					log.Info("enrich: clinic enriched",
						zap.Int64("clinic_id", c.ID),
						zap.String("name", c.Name),
						zap.Int("locations", o.Value.locations),
						zap.Int("doctors", o.Value.doctors),
					)
				}
			},
		}, e.enrichOne)
	}

	status := model.RunStatusComplete
	switch {
	case runErr != nil:
		status = model.RunStatusFailed
	case ctx.Err() != nil:
		status = model.RunStatusCancelled
	}
	if err := e.store.FinishRun(context.WithoutCancel(ctx), run.ID, status, summary); err != nil {
		log.Warn("enrich: failed to finish run", zap.Error(err))
	}

	if summary.Total == 0 && runErr == nil {
		log.Info("enrich: nothing to enrich")
	}
	log.Info("enrich: complete",
		zap.String("status", string(status)),
		zap.Int("enriched", summary.Enriched),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("total", summary.Total),
	)
	return summary, runErr
}

func (e *Enricher) enrichOne(ctx context.Context, c model.Clinic) (enrichResult, error) {
	ent, err := e.collect(ctx, c)
	if err != nil {
		return enrichResult{}, err
	}

	err = e.store.MarkEnriched(ctx, c.ID, ent)
	if errors.Is(err, store.ErrAlreadyEnriched) {
		return enrichResult{already: true}, nil
	}
	if err != nil {
		return enrichResult{}, eris.Wrapf(err, "enrich: save clinic %d", c.ID)
	}
	return enrichResult{locations: len(ent.Locations), doctors: ent.DoctorCount}, nil
}

// collect fetches and parses everything written for a clinic. When the
// profile id is already known the profile page and doctors feed are fetched
// together; otherwise the doctors feed waits for the id parsed from the
// profile.
func (e *Enricher) collect(ctx context.Context, c model.Clinic) (model.Enrichment, error) {
	var (
		profile *parser.Profile
		doctors []model.Doctor
	)

	if c.ProfileID != "" {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			p, err := e.profile(gctx, c)
			profile = p
			return err
		})
		g.Go(func() error {
			doctors = e.doctors(gctx, c.ProfileID)
			return nil
		})
		if err := g.Wait(); err != nil {
			return model.Enrichment{}, err
		}
	} else {
		p, err := e.profile(ctx, c)
		if err != nil {
			return model.Enrichment{}, err
		}
		profile = p
		if p.ProfileID != "" {
			doctors = e.doctors(ctx, p.ProfileID)
		}
	}

	ent := model.Enrichment{
		ProfileID:   profile.ProfileID,
		NIP:         profile.NIP,
		LegalName:   profile.LegalName,
		Description: profile.Description,
		ReviewCount: profile.ReviewCount,
		DoctorCount: len(doctors),
		Locations:   profile.Locations,
	}
	if ent.ProfileID == "" {
		ent.ProfileID = c.ProfileID
	}
	for _, d := range doctors {
		if d.ID > 0 {
			ent.Doctors = append(ent.Doctors, d)
		}
	}
	return ent, nil
}

func (e *Enricher) profile(ctx context.Context, c model.Clinic) (*parser.Profile, error) {
	resp, err := e.chain.get(ctx, c.URL)
	if err != nil {
		return nil, err
	}
	p, err := parser.ParseProfile(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: parse profile %s", c.URL)
	}
	return p, nil
}

// doctors returns the clinic's doctors. A failed feed counts as no doctors.
func (e *Enricher) doctors(ctx context.Context, profileID string) []model.Doctor {
	url := DoctorsURL(e.cfg.BaseURL, profileID)
	resp, err := e.chain.get(ctx, url)
	if err != nil {
		zap.L().Warn("enrich: doctors feed failed", zap.String("profile_id", profileID), zap.Error(err))
		return nil
	}
	docs, err := parser.ParseDoctors(resp.Body)
	if err != nil {
		zap.L().Warn("enrich: doctors feed unreadable", zap.String("profile_id", profileID), zap.Error(err))
		return nil
	}
	return docs
}
