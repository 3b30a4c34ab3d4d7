package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/zl-scraper/internal/db"
	"github.com/sells-group/zl-scraper/internal/model"
)

// PostgresStore implements Store using a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	if poolCfg == nil {
		poolCfg = &db.PoolConfig{MaxConns: 10, MinConns: 2}
	}
	pool, err := db.NewPool(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// pgQuerier is satisfied by db.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS facets (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS clinics (
	id            BIGSERIAL PRIMARY KEY,
	url           VARCHAR(512) NOT NULL UNIQUE,
	name          VARCHAR(512),
	profile_id    VARCHAR(64),
	nip           VARCHAR(32),
	legal_name    VARCHAR(512),
	description   TEXT,
	review_count  INTEGER,
	doctor_count  INTEGER,
	discovered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	enriched_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS clinic_locations (
	id            BIGSERIAL PRIMARY KEY,
	clinic_id     BIGINT NOT NULL REFERENCES clinics(id) ON DELETE CASCADE,
	address       VARCHAR(512),
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	facebook_url  VARCHAR(512),
	instagram_url VARCHAR(512),
	youtube_url   VARCHAR(512),
	linkedin_url  VARCHAR(512),
	website_url   VARCHAR(512)
);

CREATE TABLE IF NOT EXISTS doctors (
	id      BIGINT PRIMARY KEY,
	name    VARCHAR(256),
	surname VARCHAR(256),
	url     VARCHAR(512)
);

CREATE TABLE IF NOT EXISTS clinic_doctors (
	clinic_id BIGINT NOT NULL REFERENCES clinics(id) ON DELETE CASCADE,
	doctor_id BIGINT NOT NULL REFERENCES doctors(id) ON DELETE CASCADE,
	PRIMARY KEY (clinic_id, doctor_id)
);

CREATE TABLE IF NOT EXISTS clinic_facets (
	clinic_id     BIGINT NOT NULL REFERENCES clinics(id) ON DELETE CASCADE,
	facet_id      INTEGER NOT NULL REFERENCES facets(id) ON DELETE CASCADE,
	discovered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (clinic_id, facet_id)
);

CREATE TABLE IF NOT EXISTS facet_progress (
	facet_id          INTEGER PRIMARY KEY REFERENCES facets(id) ON DELETE CASCADE,
	last_page_scraped INTEGER NOT NULL DEFAULT 0,
	total_pages       INTEGER,
	status            VARCHAR(32) NOT NULL DEFAULT 'pending',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          UUID PRIMARY KEY,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	summary     JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_clinics_enriched_at ON clinics(enriched_at);
CREATE INDEX IF NOT EXISTS idx_clinic_locations_clinic_id ON clinic_locations(clinic_id);
CREATE INDEX IF NOT EXISTS idx_clinic_facets_facet_id ON clinic_facets(facet_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertFacets(ctx context.Context, facets []model.Facet) error {
	rows := make([][]any, len(facets))
	for i, f := range facets {
		rows[i] = []any{f.ID, f.Name}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "facets",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert facets")
}

func (s *PostgresStore) GetProgress(ctx context.Context, facetID int) (*model.FacetProgress, error) {
	var p model.FacetProgress
	err := s.pool.QueryRow(ctx,
		`SELECT facet_id, last_page_scraped, total_pages, status, updated_at FROM facet_progress WHERE facet_id = $1`,
		facetID,
	).Scan(&p.FacetID, &p.LastPageScraped, &p.TotalPages, &p.Status, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.FacetProgress{FacetID: facetID, Status: model.FacetPending}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get progress %d", facetID)
	}
	return &p, nil
}

func (s *PostgresStore) NextPageFor(ctx context.Context, facetID int) (int, bool, error) {
	p, err := s.GetProgress(ctx, facetID)
	if err != nil {
		return 0, false, err
	}
	page, ok := nextPage(p)
	return page, ok, nil
}

func (s *PostgresStore) RecordPage(ctx context.Context, facetID, page int, totalPages *int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO facet_progress (facet_id, last_page_scraped, total_pages, status, updated_at)
		VALUES ($1, $2, $3, 'in_progress', now())
		ON CONFLICT (facet_id) DO UPDATE SET
			last_page_scraped = GREATEST(facet_progress.last_page_scraped, EXCLUDED.last_page_scraped),
			total_pages = COALESCE(EXCLUDED.total_pages, facet_progress.total_pages),
			status = CASE WHEN facet_progress.status = 'done' THEN 'done' ELSE 'in_progress' END,
			updated_at = now()`,
		facetID, page, totalPages,
	)
	return eris.Wrapf(err, "postgres: record page %d for facet %d", page, facetID)
}

func (s *PostgresStore) MarkFacetDone(ctx context.Context, facetID int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO facet_progress (facet_id, last_page_scraped, status, updated_at)
		VALUES ($1, 0, 'done', now())
		ON CONFLICT (facet_id) DO UPDATE SET status = 'done', updated_at = now()`,
		facetID,
	)
	return eris.Wrapf(err, "postgres: mark facet %d done", facetID)
}

func (s *PostgresStore) UpsertEntity(ctx context.Context, stub model.ClinicStub) (int64, bool, error) {
	return upsertClinicPostgres(ctx, s.pool, stub)
}

func upsertClinicPostgres(ctx context.Context, q pgQuerier, stub model.ClinicStub) (int64, bool, error) {
	stub.Normalize()
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO clinics (url, name, profile_id) VALUES ($1, $2, $3) ON CONFLICT (url) DO NOTHING RETURNING id`,
		stub.URL, nullString(stub.Name), nullString(stub.ProfileID),
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, eris.Wrapf(err, "postgres: insert clinic %s", stub.URL)
	}

	if err := q.QueryRow(ctx, `SELECT id FROM clinics WHERE url = $1`, stub.URL).Scan(&id); err != nil {
		return 0, false, eris.Wrapf(err, "postgres: lookup clinic %s", stub.URL)
	}
	return id, false, nil
}

func (s *PostgresStore) LinkFacet(ctx context.Context, clinicID int64, facetID int) error {
	return linkFacetPostgres(ctx, s.pool, clinicID, facetID)
}

func linkFacetPostgres(ctx context.Context, q pgQuerier, clinicID int64, facetID int) error {
	_, err := q.Exec(ctx,
		`INSERT INTO clinic_facets (clinic_id, facet_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		clinicID, facetID,
	)
	return eris.Wrapf(err, "postgres: link clinic %d to facet %d", clinicID, facetID)
}

func (s *PostgresStore) SaveStubs(ctx context.Context, facetID int, stubs []model.ClinicStub) (SaveResult, error) {
	var res SaveResult
	if len(stubs) == 0 {
		return res, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, eris.Wrap(err, "postgres: begin save stubs")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, stub := range stubs {
		id, inserted, err := upsertClinicPostgres(ctx, tx, stub)
		if err != nil {
			return SaveResult{}, err
		}
		if inserted {
			res.New++
		} else {
			res.Duplicate++
		}
		if err := linkFacetPostgres(ctx, tx, id, facetID); err != nil {
			return SaveResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return SaveResult{}, eris.Wrap(err, "postgres: commit save stubs")
	}
	return res, nil
}

const postgresClinicColumns = `id, url, name, profile_id, nip, legal_name, description, review_count, doctor_count, discovered_at, enriched_at`

func (s *PostgresStore) UnenrichedEntities(ctx context.Context, limit int, afterID int64) ([]model.Clinic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresClinicColumns+` FROM clinics WHERE enriched_at IS NULL AND id > $1 ORDER BY id LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query unenriched")
	}
	defer rows.Close()

	var out []model.Clinic
	for rows.Next() {
		c, err := scanClinicPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate unenriched")
}

var locationColumns = []string{
	"clinic_id", "address", "latitude", "longitude",
	"facebook_url", "instagram_url", "youtube_url", "linkedin_url", "website_url",
}

func (s *PostgresStore) MarkEnriched(ctx context.Context, clinicID int64, e model.Enrichment) error {
	e.Normalize()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin mark enriched")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		UPDATE clinics SET
			profile_id = COALESCE($1, profile_id),
			nip = $2, legal_name = $3, description = $4,
			review_count = $5, doctor_count = $6, enriched_at = now()
		WHERE id = $7 AND enriched_at IS NULL`,
		nullString(e.ProfileID), nullString(e.NIP), nullString(e.LegalName), nullString(e.Description),
		e.ReviewCount, e.DoctorCount, clinicID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update clinic %d", clinicID)
	}
	if tag.RowsAffected() == 0 {
		var exists int
		err := tx.QueryRow(ctx, `SELECT 1 FROM clinics WHERE id = $1`, clinicID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: clinic %d", clinicID)
		}
		return eris.Wrapf(ErrAlreadyEnriched, "postgres: clinic %d", clinicID)
	}

	rows := make([][]any, len(e.Locations))
	for i, l := range e.Locations {
		rows[i] = []any{
			clinicID, nullString(l.Address), l.Latitude, l.Longitude,
			nullString(l.FacebookURL), nullString(l.InstagramURL), nullString(l.YouTubeURL),
			nullString(l.LinkedInURL), nullString(l.WebsiteURL),
		}
	}
	if _, err := db.CopyFrom(ctx, tx, "clinic_locations", locationColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: insert locations for clinic %d", clinicID)
	}

	for _, d := range e.Doctors {
		if _, err := tx.Exec(ctx,
			`INSERT INTO doctors (id, name, surname, url) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
			d.ID, nullString(d.Name), nullString(d.Surname), nullString(d.URL),
		); err != nil {
			return eris.Wrapf(err, "postgres: insert doctor %d", d.ID)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO clinic_doctors (clinic_id, doctor_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			clinicID, d.ID,
		); err != nil {
			return eris.Wrapf(err, "postgres: link doctor %d", d.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit mark enriched")
}

func (s *PostgresStore) ResetDiscover(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM facet_progress`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset discover")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ResetEnrich(ctx context.Context) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin reset enrich")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM clinic_locations`,
		`DELETE FROM clinic_doctors`,
		`DELETE FROM doctors`,
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, eris.Wrapf(err, "postgres: reset enrich: %s", stmt)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE clinics SET profile_id = NULL, nip = NULL, legal_name = NULL, description = NULL,
			review_count = NULL, doctor_count = NULL, enriched_at = NULL
		WHERE enriched_at IS NOT NULL`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset enrich: clear clinics")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit reset enrich")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	err := s.pool.QueryRow(ctx, statsQuery).Scan(
		&st.Facets, &st.FacetsDone, &st.FacetsActive, &st.Clinics, &st.Enriched,
		&st.Locations, &st.Doctors, &st.FacetLinks, &st.PagesScraped,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	st.Unenriched = st.Clinics - st.Enriched
	return &st, nil
}

func (s *PostgresStore) FacetSummaries(ctx context.Context) ([]model.FacetSummary, error) {
	rows, err := s.pool.Query(ctx, facetSummaryQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: facet summaries")
	}
	defer rows.Close()

	var out []model.FacetSummary
	for rows.Next() {
		var fs model.FacetSummary
		if err := rows.Scan(&fs.FacetID, &fs.Name, &fs.Status, &fs.LastPageScraped, &fs.TotalPages, &fs.Clinics, &fs.Shared); err != nil {
			return nil, eris.Wrap(err, "postgres: scan facet summary")
		}
		out = append(out, fs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate facet summaries")
}

func (s *PostgresStore) EnrichedClinics(ctx context.Context) ([]model.ClinicExport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresClinicColumns+` FROM clinics WHERE enriched_at IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query enriched clinics")
	}
	var clinics []model.ClinicExport
	for rows.Next() {
		c, err := scanClinicPostgres(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		clinics = append(clinics, model.ClinicExport{Clinic: *c})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate enriched clinics")
	}

	locRows, err := s.pool.Query(ctx, enrichedLocationsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query locations")
	}
	var locs []model.Location
	for locRows.Next() {
		l, err := scanLocation(locRows)
		if err != nil {
			locRows.Close()
			return nil, err
		}
		locs = append(locs, *l)
	}
	locRows.Close()
	if err := locRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate locations")
	}

	nameRows, err := s.pool.Query(ctx, enrichedFacetNamesQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query facet names")
	}
	defer nameRows.Close()
	facets := make(map[int64][]string)
	for nameRows.Next() {
		var id int64
		var name string
		if err := nameRows.Scan(&id, &name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan facet name")
		}
		facets[id] = append(facets[id], name)
	}
	if err := nameRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate facet names")
	}

	return groupExports(clinics, locs, facets), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, stage string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Stage:     stage,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, stage, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Stage, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary any) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run summary")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, finished_at = now() WHERE id = $3`,
		string(status), data, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, stage, status, summary, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var r model.Run
		var summary []byte
		if err := rows.Scan(&r.ID, &r.Stage, &r.Status, &summary, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(summary) > 0 {
			r.Summary = json.RawMessage(summary)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func scanClinicPostgres(row scannable) (*model.Clinic, error) {
	var c model.Clinic
	var name, profileID, nip, legalName, desc *string
	if err := row.Scan(&c.ID, &c.URL, &name, &profileID, &nip, &legalName, &desc,
		&c.ReviewCount, &c.DoctorCount, &c.DiscoveredAt, &c.EnrichedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan clinic")
	}
	c.Name = deref(name)
	c.ProfileID = deref(profileID)
	c.NIP = deref(nip)
	c.LegalName = deref(legalName)
	c.Description = deref(desc)
	return &c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
