package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/amala-atlas/discovery-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. The default
// backend for single-node deployments and the discovery CLI.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS spots (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	lat        REAL,
	lng        REAL,
	sources    TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pending_spots (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	address              TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	image_url            TEXT NOT NULL DEFAULT '',
	rating               REAL NOT NULL DEFAULT 0,
	review_count         INTEGER NOT NULL DEFAULT 0,
	is_open              INTEGER NOT NULL DEFAULT 1,
	category             TEXT NOT NULL DEFAULT '[]',
	confidence           INTEGER NOT NULL DEFAULT 0,
	lat                  REAL,
	lng                  REAL,
	geocoded_address     TEXT NOT NULL DEFAULT '',
	geocoding_confidence REAL NOT NULL DEFAULT 0,
	geocoding_status     TEXT NOT NULL DEFAULT 'failed',
	geocode_provider     TEXT NOT NULL DEFAULT '',
	source               TEXT NOT NULL,
	source_url           TEXT NOT NULL DEFAULT '',
	scraped_at           DATETIME,
	status               TEXT NOT NULL DEFAULT 'pending',
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (name, address)
);

CREATE TABLE IF NOT EXISTS rejected_spots (
	name        TEXT NOT NULL,
	address     TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	rejected_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (name, address)
);

CREATE INDEX IF NOT EXISTS idx_pending_spots_status ON pending_spots(status);
CREATE INDEX IF NOT EXISTS idx_pending_spots_geocoding ON pending_spots(geocoding_status);
CREATE INDEX IF NOT EXISTS idx_spots_name ON spots(name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Snapshots(ctx context.Context) (model.Snapshots, error) {
	var snaps model.Snapshots
	for _, q := range []struct {
		query string
		dst   *[]model.NameAddress
	}{
		{`SELECT name, address FROM spots`, &snaps.Canonical},
		{`SELECT name, address FROM pending_spots`, &snaps.Pending},
		{`SELECT name, address FROM rejected_spots`, &snaps.Rejected},
	} {
		rows, err := s.db.QueryContext(ctx, q.query)
		if err != nil {
			return model.Snapshots{}, eris.Wrap(err, "sqlite: snapshot read")
		}
		for rows.Next() {
			var na model.NameAddress
			if err := rows.Scan(&na.Name, &na.Address); err != nil {
				rows.Close()
				return model.Snapshots{}, eris.Wrap(err, "sqlite: snapshot scan")
			}
			*q.dst = append(*q.dst, na)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return model.Snapshots{}, eris.Wrap(err, "sqlite: snapshot iterate")
		}
		rows.Close()
	}
	return snaps, nil
}

const sqliteInsertPending = `
INSERT INTO pending_spots
	(id, name, address, description, image_url, rating, review_count, is_open,
	 category, confidence, lat, lng, geocoded_address, geocoding_confidence,
	 geocoding_status, geocode_provider, source, source_url, scraped_at, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (name, address) DO UPDATE SET
	confidence = excluded.confidence,
	lat = excluded.lat,
	lng = excluded.lng,
	geocoded_address = excluded.geocoded_address,
	geocoding_confidence = excluded.geocoding_confidence,
	geocoding_status = excluded.geocoding_status,
	geocode_provider = excluded.geocode_provider,
	scraped_at = excluded.scraped_at
WHERE excluded.geocoding_status = 'success'`

func (s *SQLiteStore) InsertPending(ctx context.Context, spots []model.PendingSpot) (int, error) {
	if len(spots) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert pending")
	}
	defer tx.Rollback() //nolint:errcheck

	count := 0
	for _, sp := range spots {
		categoryJSON, err := json.Marshal(sp.Category)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal category")
		}
		var lat, lng any
		if sp.Location != nil {
			lat, lng = sp.Location.Lat, sp.Location.Lng
		}
		if _, err := tx.ExecContext(ctx, sqliteInsertPending,
			sp.ID, sp.Name, sp.Address, sp.Description, sp.ImageURL,
			sp.Rating, sp.ReviewCount, sp.IsOpen, string(categoryJSON), sp.Confidence,
			lat, lng, sp.GeocodedAddress, sp.GeocodingConfidence,
			string(sp.GeocodingStatus), sp.GeocodeProvider,
			sp.SourceName, sp.SourceURL, sp.ScrapedAt, string(sp.Status), sp.CreatedAt,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert pending %s", sp.Name)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert pending")
	}
	return count, nil
}

const sqlitePendingColumns = `id, name, address, description, image_url, rating, review_count,
	is_open, category, confidence, lat, lng, geocoded_address, geocoding_confidence,
	geocoding_status, geocode_provider, source, source_url, scraped_at, status, created_at`

func (s *SQLiteStore) ListPending(ctx context.Context, filter PendingFilter) ([]model.PendingSpot, error) {
	query := `SELECT ` + sqlitePendingColumns + ` FROM pending_spots WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.MissingCoordinates {
		query += ` AND lat IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending")
	}
	defer rows.Close()

	var spots []model.PendingSpot
	for rows.Next() {
		sp, err := scanPendingSpot(rows)
		if err != nil {
			return nil, err
		}
		spots = append(spots, *sp)
	}
	return spots, eris.Wrap(rows.Err(), "sqlite: list pending iterate")
}

func (s *SQLiteStore) GetPending(ctx context.Context, id string) (*model.PendingSpot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePendingColumns+` FROM pending_spots WHERE id = ?`, id)
	return scanPendingSpot(row)
}

func (s *SQLiteStore) UpdatePendingGeocode(ctx context.Context, id string, upd GeocodeUpdate) error {
	var lat, lng any
	if upd.Location != nil {
		lat, lng = upd.Location.Lat, upd.Location.Lng
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_spots SET lat = ?, lng = ?, geocoded_address = ?,
		 geocoding_confidence = ?, geocoding_status = ?, geocode_provider = ?
		 WHERE id = ?`,
		lat, lng, upd.GeocodedAddress, upd.Confidence, string(upd.Status), upd.Provider, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update pending geocode %s", id)
	}
	return checkRowsAffected(res, "pending_spot", id)
}

func (s *SQLiteStore) Approve(ctx context.Context, pendingID string) (*model.Spot, error) {
	pending, err := s.GetPending(ctx, pendingID)
	if err != nil {
		return nil, err
	}

	loc := pending.Location
	if loc == nil {
		fallback := FallbackLocation
		loc = &fallback
	}

	spot := &model.Spot{
		ID:        pending.ID,
		Name:      pending.Name,
		Address:   pending.Address,
		Location:  loc,
		Sources:   []string{pending.SourceName},
		CreatedAt: time.Now().UTC(),
	}
	sourcesJSON, err := json.Marshal(spot.Sources)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal sources")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin approve")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO spots (id, name, address, lat, lng, sources, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		spot.ID, spot.Name, spot.Address, loc.Lat, loc.Lng, string(sourcesJSON), spot.CreatedAt,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: approve insert spot %s", pendingID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_spots WHERE id = ?`, pendingID); err != nil {
		return nil, eris.Wrapf(err, "sqlite: approve delete pending %s", pendingID)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit approve")
	}
	return spot, nil
}

func (s *SQLiteStore) Reject(ctx context.Context, pendingID string) error {
	pending, err := s.GetPending(ctx, pendingID)
	if err != nil {
		return err
	}
	rej := model.RejectedSpot{
		Name:       pending.Name,
		Address:    pending.Address,
		SourceName: pending.SourceName,
		RejectedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin reject")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rejected_spots (name, address, source, rejected_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (name, address) DO NOTHING`,
		rej.Name, rej.Address, rej.SourceName, rej.RejectedAt,
	); err != nil {
		return eris.Wrapf(err, "sqlite: reject insert %s", pendingID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_spots WHERE id = ?`, pendingID); err != nil {
		return eris.Wrapf(err, "sqlite: reject delete pending %s", pendingID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit reject")
}

func (s *SQLiteStore) Merge(ctx context.Context, pendingID, spotID string) error {
	pending, err := s.GetPending(ctx, pendingID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback() //nolint:errcheck

	var sourcesJSON string
	err = tx.QueryRowContext(ctx, `SELECT sources FROM spots WHERE id = ?`, spotID).Scan(&sourcesJSON)
	if err == sql.ErrNoRows {
		return eris.Errorf("spot not found: %s", spotID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: merge read spot %s", spotID)
	}

	var sources []string
	if err := json.Unmarshal([]byte(sourcesJSON), &sources); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal sources")
	}
	sources = appendSource(sources, pending.SourceName)
	merged, err := json.Marshal(sources)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE spots SET sources = ? WHERE id = ?`, string(merged), spotID); err != nil {
		return eris.Wrapf(err, "sqlite: merge update spot %s", spotID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_spots WHERE id = ?`, pendingID); err != nil {
		return eris.Wrapf(err, "sqlite: merge delete pending %s", pendingID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit merge")
}

func (s *SQLiteStore) ListSpots(ctx context.Context) ([]model.Spot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, address, lat, lng, sources, created_at FROM spots ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list spots")
	}
	defer rows.Close()

	var spots []model.Spot
	for rows.Next() {
		var sp model.Spot
		var lat, lng sql.NullFloat64
		var sourcesJSON string
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Address, &lat, &lng, &sourcesJSON, &sp.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan spot")
		}
		if lat.Valid && lng.Valid {
			sp.Location = &model.LatLng{Lat: lat.Float64, Lng: lng.Float64}
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &sp.Sources); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal sources")
		}
		spots = append(spots, sp)
	}
	return spots, eris.Wrap(rows.Err(), "sqlite: list spots iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

// appendSource adds a source attribution if it is not already present.
func appendSource(sources []string, source string) []string {
	for _, s := range sources {
		if s == source {
			return sources
		}
	}
	return append(sources, source)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPendingSpot(row scannable) (*model.PendingSpot, error) {
	var sp model.PendingSpot
	var lat, lng sql.NullFloat64
	var scrapedAt sql.NullTime
	var categoryJSON, status, geocodingStatus string

	err := row.Scan(&sp.ID, &sp.Name, &sp.Address, &sp.Description, &sp.ImageURL,
		&sp.Rating, &sp.ReviewCount, &sp.IsOpen, &categoryJSON, &sp.Confidence,
		&lat, &lng, &sp.GeocodedAddress, &sp.GeocodingConfidence,
		&geocodingStatus, &sp.GeocodeProvider,
		&sp.SourceName, &sp.SourceURL, &scrapedAt, &status, &sp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("pending_spot not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan pending spot")
	}

	if lat.Valid && lng.Valid {
		sp.Location = &model.LatLng{Lat: lat.Float64, Lng: lng.Float64}
	}
	if scrapedAt.Valid {
		sp.ScrapedAt = scrapedAt.Time
	}
	sp.Status = model.SpotStatus(status)
	sp.GeocodingStatus = model.GeocodingStatus(geocodingStatus)
	if err := json.Unmarshal([]byte(categoryJSON), &sp.Category); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal category")
	}
	return &sp, nil
}
