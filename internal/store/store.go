// Package store persists discovery checkpoints, the clinic dedup ledger
// and enrichment results.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zl-scraper/internal/model"
)

var (
	// ErrAlreadyEnriched is returned by MarkEnriched when the clinic was
	// enriched earlier. Nothing is written.
	ErrAlreadyEnriched = eris.New("store: clinic already enriched")
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = eris.New("store: not found")
)

// SaveResult counts what SaveStubs did with a page of stubs.
type SaveResult struct {
	New       int
	Duplicate int
}

// Store defines the persistence interface for discovery and enrichment.
type Store interface {
	// Facets and checkpoints
	UpsertFacets(ctx context.Context, facets []model.Facet) error
	GetProgress(ctx context.Context, facetID int) (*model.FacetProgress, error)
	NextPageFor(ctx context.Context, facetID int) (page int, ok bool, err error)
	RecordPage(ctx context.Context, facetID, page int, totalPages *int) error
	MarkFacetDone(ctx context.Context, facetID int) error

	// Dedup ledger
	UpsertEntity(ctx context.Context, stub model.ClinicStub) (id int64, inserted bool, err error)
	LinkFacet(ctx context.Context, clinicID int64, facetID int) error
	SaveStubs(ctx context.Context, facetID int, stubs []model.ClinicStub) (SaveResult, error)

	// Enrichment
	UnenrichedEntities(ctx context.Context, limit int, afterID int64) ([]model.Clinic, error)
	MarkEnriched(ctx context.Context, clinicID int64, e model.Enrichment) error

	// Resets
	ResetDiscover(ctx context.Context) (int64, error)
	ResetEnrich(ctx context.Context) (int64, error)

	// Reporting
	Stats(ctx context.Context) (*model.Stats, error)
	FacetSummaries(ctx context.Context) ([]model.FacetSummary, error)
	EnrichedClinics(ctx context.Context) ([]model.ClinicExport, error)

	// Runs
	CreateRun(ctx context.Context, stage string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary any) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// nextPage derives the next page to fetch from a checkpoint. ok is false
// when the facet is finished.
func nextPage(p *model.FacetProgress) (int, bool) {
	if p == nil {
		return 1, true
	}
	if p.Status == model.FacetDone && !p.Capped() {
		return 0, false
	}
	return p.LastPageScraped + 1, true
}

// nullString maps the empty string to NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// groupExports attaches locations and facet names to their clinics.
func groupExports(clinics []model.ClinicExport, locs []model.Location, facets map[int64][]string) []model.ClinicExport {
	idx := make(map[int64]int, len(clinics))
	for i := range clinics {
		idx[clinics[i].ID] = i
		clinics[i].Locations = []model.Location{}
		clinics[i].Facets = facets[clinics[i].ID]
		if clinics[i].Facets == nil {
			clinics[i].Facets = []string{}
		}
	}
	for _, l := range locs {
		if i, ok := idx[l.ClinicID]; ok {
			clinics[i].Locations = append(clinics[i].Locations, l)
		}
	}
	return clinics
}
