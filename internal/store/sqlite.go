package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/zl-scraper/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// A single connection serializes writers.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS facets (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS clinics (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	url           TEXT NOT NULL UNIQUE,
	name          TEXT,
	profile_id    TEXT,
	nip           TEXT,
	legal_name    TEXT,
	description   TEXT,
	review_count  INTEGER,
	doctor_count  INTEGER,
	discovered_at DATETIME NOT NULL,
	enriched_at   DATETIME
);

CREATE TABLE IF NOT EXISTS clinic_locations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	clinic_id     INTEGER NOT NULL REFERENCES clinics(id) ON DELETE CASCADE,
	address       TEXT,
	latitude      REAL,
	longitude     REAL,
	facebook_url  TEXT,
	instagram_url TEXT,
	youtube_url   TEXT,
	linkedin_url  TEXT,
	website_url   TEXT
);

CREATE TABLE IF NOT EXISTS doctors (
	id      INTEGER PRIMARY KEY,
	name    TEXT,
	surname TEXT,
	url     TEXT
);

CREATE TABLE IF NOT EXISTS clinic_doctors (
	clinic_id INTEGER NOT NULL REFERENCES clinics(id) ON DELETE CASCADE,
	doctor_id INTEGER NOT NULL REFERENCES doctors(id) ON DELETE CASCADE,
	PRIMARY KEY (clinic_id, doctor_id)
);

CREATE TABLE IF NOT EXISTS clinic_facets (
	clinic_id     INTEGER NOT NULL REFERENCES clinics(id) ON DELETE CASCADE,
	facet_id      INTEGER NOT NULL REFERENCES facets(id) ON DELETE CASCADE,
	discovered_at DATETIME NOT NULL,
	PRIMARY KEY (clinic_id, facet_id)
);

CREATE TABLE IF NOT EXISTS facet_progress (
	facet_id          INTEGER PRIMARY KEY REFERENCES facets(id) ON DELETE CASCADE,
	last_page_scraped INTEGER NOT NULL DEFAULT 0,
	total_pages       INTEGER,
	status            TEXT NOT NULL DEFAULT 'pending',
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	summary     TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_clinics_enriched_at ON clinics(enriched_at);
CREATE INDEX IF NOT EXISTS idx_clinic_locations_clinic_id ON clinic_locations(clinic_id);
CREATE INDEX IF NOT EXISTS idx_clinic_facets_facet_id ON clinic_facets(facet_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqlExecer is satisfied by *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) UpsertFacets(ctx context.Context, facets []model.Facet) error {
	if len(facets) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert facets")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, f := range facets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO facets (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
			f.ID, f.Name,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert facet %d", f.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert facets")
}

func (s *SQLiteStore) GetProgress(ctx context.Context, facetID int) (*model.FacetProgress, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT facet_id, last_page_scraped, total_pages, status, updated_at FROM facet_progress WHERE facet_id = ?`,
		facetID,
	)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.FacetProgress{FacetID: facetID, Status: model.FacetPending}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get progress %d", facetID)
	}
	return p, nil
}

func (s *SQLiteStore) NextPageFor(ctx context.Context, facetID int) (int, bool, error) {
	p, err := s.GetProgress(ctx, facetID)
	if err != nil {
		return 0, false, err
	}
	page, ok := nextPage(p)
	return page, ok, nil
}

func (s *SQLiteStore) RecordPage(ctx context.Context, facetID, page int, totalPages *int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facet_progress (facet_id, last_page_scraped, total_pages, status, updated_at)
		VALUES (?, ?, ?, 'in_progress', ?)
		ON CONFLICT(facet_id) DO UPDATE SET
			last_page_scraped = MAX(facet_progress.last_page_scraped, excluded.last_page_scraped),
			total_pages = COALESCE(excluded.total_pages, facet_progress.total_pages),
			status = CASE WHEN facet_progress.status = 'done' THEN 'done' ELSE 'in_progress' END,
			updated_at = excluded.updated_at`,
		facetID, page, totalPages, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: record page %d for facet %d", page, facetID)
}

func (s *SQLiteStore) MarkFacetDone(ctx context.Context, facetID int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facet_progress (facet_id, last_page_scraped, status, updated_at)
		VALUES (?, 0, 'done', ?)
		ON CONFLICT(facet_id) DO UPDATE SET status = 'done', updated_at = excluded.updated_at`,
		facetID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: mark facet %d done", facetID)
}

func (s *SQLiteStore) UpsertEntity(ctx context.Context, stub model.ClinicStub) (int64, bool, error) {
	return upsertClinicSQLite(ctx, s.db, stub)
}

func upsertClinicSQLite(ctx context.Context, ex sqlExecer, stub model.ClinicStub) (int64, bool, error) {
	stub.Normalize()
	res, err := ex.ExecContext(ctx,
		`INSERT INTO clinics (url, name, profile_id, discovered_at) VALUES (?, ?, ?, ?) ON CONFLICT(url) DO NOTHING`,
		stub.URL, nullString(stub.Name), nullString(stub.ProfileID), time.Now().UTC(),
	)
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: insert clinic %s", stub.URL)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, eris.Wrap(err, "sqlite: last insert id")
		}
		return id, true, nil
	}

	var id int64
	if err := ex.QueryRowContext(ctx, `SELECT id FROM clinics WHERE url = ?`, stub.URL).Scan(&id); err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: lookup clinic %s", stub.URL)
	}
	return id, false, nil
}

func (s *SQLiteStore) LinkFacet(ctx context.Context, clinicID int64, facetID int) error {
	return linkFacetSQLite(ctx, s.db, clinicID, facetID)
}

func linkFacetSQLite(ctx context.Context, ex sqlExecer, clinicID int64, facetID int) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO clinic_facets (clinic_id, facet_id, discovered_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		clinicID, facetID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: link clinic %d to facet %d", clinicID, facetID)
}

func (s *SQLiteStore) SaveStubs(ctx context.Context, facetID int, stubs []model.ClinicStub) (SaveResult, error) {
	var res SaveResult
	if len(stubs) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, eris.Wrap(err, "sqlite: begin save stubs")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stub := range stubs {
		id, inserted, err := upsertClinicSQLite(ctx, tx, stub)
		if err != nil {
			return SaveResult{}, err
		}
		if inserted {
			res.New++
		} else {
			res.Duplicate++
		}
		if err := linkFacetSQLite(ctx, tx, id, facetID); err != nil {
			return SaveResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, eris.Wrap(err, "sqlite: commit save stubs")
	}
	return res, nil
}

const sqliteClinicColumns = `id, url, name, profile_id, nip, legal_name, description, review_count, doctor_count, discovered_at, enriched_at`

func (s *SQLiteStore) UnenrichedEntities(ctx context.Context, limit int, afterID int64) ([]model.Clinic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteClinicColumns+` FROM clinics WHERE enriched_at IS NULL AND id > ? ORDER BY id LIMIT ?`,
		afterID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query unenriched")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate unenriched")
}

func (s *SQLiteStore) MarkEnriched(ctx context.Context, clinicID int64, e model.Enrichment) error {
	e.Normalize()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin mark enriched")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE clinics SET
			profile_id = COALESCE(?, profile_id),
			nip = ?, legal_name = ?, description = ?,
			review_count = ?, doctor_count = ?, enriched_at = ?
		WHERE id = ? AND enriched_at IS NULL`,
		nullString(e.ProfileID), nullString(e.NIP), nullString(e.LegalName), nullString(e.Description),
		e.ReviewCount, e.DoctorCount, now, clinicID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update clinic %d", clinicID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM clinics WHERE id = ?`, clinicID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "sqlite: clinic %d", clinicID)
		}
		return eris.Wrapf(ErrAlreadyEnriched, "sqlite: clinic %d", clinicID)
	}

	for _, l := range e.Locations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clinic_locations
				(clinic_id, address, latitude, longitude, facebook_url, instagram_url, youtube_url, linkedin_url, website_url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			clinicID, nullString(l.Address), l.Latitude, l.Longitude,
			nullString(l.FacebookURL), nullString(l.InstagramURL), nullString(l.YouTubeURL),
			nullString(l.LinkedInURL), nullString(l.WebsiteURL),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert location for clinic %d", clinicID)
		}
	}

	for _, d := range e.Doctors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO doctors (id, name, surname, url) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			d.ID, nullString(d.Name), nullString(d.Surname), nullString(d.URL),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert doctor %d", d.ID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO clinic_doctors (clinic_id, doctor_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			clinicID, d.ID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: link doctor %d", d.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit mark enriched")
}

func (s *SQLiteStore) ResetDiscover(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facet_progress`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset discover")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) ResetEnrich(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin reset enrich")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM clinic_locations`,
		`DELETE FROM clinic_doctors`,
		`DELETE FROM doctors`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, eris.Wrapf(err, "sqlite: reset enrich: %s", stmt)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE clinics SET profile_id = NULL, nip = NULL, legal_name = NULL, description = NULL,
			review_count = NULL, doctor_count = NULL, enriched_at = NULL
		WHERE enriched_at IS NOT NULL`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset enrich: clear clinics")
	}
	n, _ := res.RowsAffected()
	return n, eris.Wrap(tx.Commit(), "sqlite: commit reset enrich")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	err := s.db.QueryRowContext(ctx, statsQuery).Scan(
		&st.Facets, &st.FacetsDone, &st.FacetsActive, &st.Clinics, &st.Enriched,
		&st.Locations, &st.Doctors, &st.FacetLinks, &st.PagesScraped,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	st.Unenriched = st.Clinics - st.Enriched
	return &st, nil
}

func (s *SQLiteStore) FacetSummaries(ctx context.Context) ([]model.FacetSummary, error) {
	rows, err := s.db.QueryContext(ctx, facetSummaryQuery)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: facet summaries")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FacetSummary
	for rows.Next() {
		var fs model.FacetSummary
		var total sql.NullInt64
		if err := rows.Scan(&fs.FacetID, &fs.Name, &fs.Status, &fs.LastPageScraped, &total, &fs.Clinics, &fs.Shared); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan facet summary")
		}
		fs.TotalPages = intPtr(total)
		out = append(out, fs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate facet summaries")
}

func (s *SQLiteStore) EnrichedClinics(ctx context.Context) ([]model.ClinicExport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteClinicColumns+` FROM clinics WHERE enriched_at IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query enriched clinics")
	}
	var clinics []model.ClinicExport
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			rows.Close() //nolint:errcheck
			return nil, err
		}
		clinics = append(clinics, model.ClinicExport{Clinic: *c})
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate enriched clinics")
	}

	locs, err := s.enrichedLocations(ctx)
	if err != nil {
		return nil, err
	}
	facets, err := s.enrichedFacetNames(ctx)
	if err != nil {
		return nil, err
	}
	return groupExports(clinics, locs, facets), nil
}

func (s *SQLiteStore) enrichedLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx, enrichedLocationsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query locations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate locations")
}

func (s *SQLiteStore) enrichedFacetNames(ctx context.Context) (map[int64][]string, error) {
	rows, err := s.db.QueryContext(ctx, enrichedFacetNamesQuery)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query facet names")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[int64][]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan facet name")
		}
		out[id] = append(out[id], name)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate facet names")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, stage string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Stage:     stage,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Stage, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary any) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run summary")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		string(status), string(data), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage, status, summary, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Run
	for rows.Next() {
		var r model.Run
		var summary sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Stage, &r.Status, &summary, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if summary.Valid {
			r.Summary = json.RawMessage(summary.String)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProgress(row scannable) (*model.FacetProgress, error) {
	var p model.FacetProgress
	var total sql.NullInt64
	if err := row.Scan(&p.FacetID, &p.LastPageScraped, &total, &p.Status, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.TotalPages = intPtr(total)
	return &p, nil
}

func scanClinic(row scannable) (*model.Clinic, error) {
	var c model.Clinic
	var name, profileID, nip, legalName, desc sql.NullString
	var reviews, doctors sql.NullInt64
	var enriched sql.NullTime

	if err := row.Scan(&c.ID, &c.URL, &name, &profileID, &nip, &legalName, &desc,
		&reviews, &doctors, &c.DiscoveredAt, &enriched); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan clinic")
	}
	c.Name = name.String
	c.ProfileID = profileID.String
	c.NIP = nip.String
	c.LegalName = legalName.String
	c.Description = desc.String
	c.ReviewCount = intPtr(reviews)
	c.DoctorCount = intPtr(doctors)
	if enriched.Valid {
		t := enriched.Time
		c.EnrichedAt = &t
	}
	return &c, nil
}

func scanLocation(row scannable) (*model.Location, error) {
	var l model.Location
	var addr, fb, ig, yt, li, web sql.NullString
	var lat, lng sql.NullFloat64
	if err := row.Scan(&l.ClinicID, &addr, &lat, &lng, &fb, &ig, &yt, &li, &web); err != nil {
		return nil, eris.Wrap(err, "scan location")
	}
	l.Address = addr.String
	l.FacebookURL = fb.String
	l.InstagramURL = ig.String
	l.YouTubeURL = yt.String
	l.LinkedInURL = li.String
	l.WebsiteURL = web.String
	if lat.Valid {
		v := lat.Float64
		l.Latitude = &v
	}
	if lng.Valid {
		v := lng.Float64
		l.Longitude = &v
	}
	return &l, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
