package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/amala-atlas/discovery-cli/internal/db"
	"github.com/amala-atlas/discovery-cli/internal/model"
)

// PostgresStore implements Store using pgxpool, for deployments where the
// moderation dashboard and the discovery pipeline share one database.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	s := &PostgresStore{pool: pool, closeFn: pool.Close}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS spots (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	lat        DOUBLE PRECISION,
	lng        DOUBLE PRECISION,
	sources    JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pending_spots (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	address              TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	image_url            TEXT NOT NULL DEFAULT '',
	rating               DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_count         INTEGER NOT NULL DEFAULT 0,
	is_open              BOOLEAN NOT NULL DEFAULT true,
	category             JSONB NOT NULL DEFAULT '[]',
	confidence           INTEGER NOT NULL DEFAULT 0,
	lat                  DOUBLE PRECISION,
	lng                  DOUBLE PRECISION,
	geocoded_address     TEXT NOT NULL DEFAULT '',
	geocoding_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	geocoding_status     TEXT NOT NULL DEFAULT 'failed',
	geocode_provider     TEXT NOT NULL DEFAULT '',
	source               TEXT NOT NULL,
	source_url           TEXT NOT NULL DEFAULT '',
	scraped_at           TIMESTAMPTZ,
	status               TEXT NOT NULL DEFAULT 'pending',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, address)
);

CREATE TABLE IF NOT EXISTS rejected_spots (
	name        TEXT NOT NULL,
	address     TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	rejected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (name, address)
);

CREATE INDEX IF NOT EXISTS idx_pending_spots_status ON pending_spots(status);
CREATE INDEX IF NOT EXISTS idx_pending_spots_geocoding ON pending_spots(geocoding_status);
CREATE INDEX IF NOT EXISTS idx_spots_name ON spots(name);
`

// Ping verifies the pool can reach the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Snapshots(ctx context.Context) (model.Snapshots, error) {
	var snaps model.Snapshots
	for _, q := range []struct {
		query string
		dst   *[]model.NameAddress
	}{
		{`SELECT name, address FROM spots`, &snaps.Canonical},
		{`SELECT name, address FROM pending_spots`, &snaps.Pending},
		{`SELECT name, address FROM rejected_spots`, &snaps.Rejected},
	} {
		rows, err := s.pool.Query(ctx, q.query)
		if err != nil {
			return model.Snapshots{}, eris.Wrap(err, "postgres: snapshot read")
		}
		for rows.Next() {
			var na model.NameAddress
			if err := rows.Scan(&na.Name, &na.Address); err != nil {
				rows.Close()
				return model.Snapshots{}, eris.Wrap(err, "postgres: snapshot scan")
			}
			*q.dst = append(*q.dst, na)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return model.Snapshots{}, eris.Wrap(err, "postgres: snapshot iterate")
		}
		rows.Close()
	}
	return snaps, nil
}

var pendingColumns = []string{
	"id", "name", "address", "description", "image_url", "rating", "review_count",
	"is_open", "category", "confidence", "lat", "lng", "geocoded_address",
	"geocoding_confidence", "geocoding_status", "geocode_provider",
	"source", "source_url", "scraped_at", "status", "created_at",
}

// InsertPending writes the whole batch in one round trip. Conflicts on
// the (name, address) identity refresh the stored geocoding fields only
// when the incoming row actually geocoded; duplicate-marked rows and
// failed lookups never clobber coordinates from an earlier run.
func (s *PostgresStore) InsertPending(ctx context.Context, spots []model.PendingSpot) (int, error) {
	if len(spots) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(spots))
	for _, sp := range spots {
		categoryJSON, err := json.Marshal(sp.Category)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal category")
		}
		var lat, lng any
		if sp.Location != nil {
			lat, lng = sp.Location.Lat, sp.Location.Lng
		}
		rows = append(rows, []any{
			sp.ID, sp.Name, sp.Address, sp.Description, sp.ImageURL,
			sp.Rating, sp.ReviewCount, sp.IsOpen, categoryJSON, sp.Confidence,
			lat, lng, sp.GeocodedAddress, sp.GeocodingConfidence,
			string(sp.GeocodingStatus), sp.GeocodeProvider,
			sp.SourceName, sp.SourceURL, sp.ScrapedAt, string(sp.Status), sp.CreatedAt,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "pending_spots",
		Columns:      pendingColumns,
		ConflictKeys: []string{"name", "address"},
		UpdateCols: []string{
			"confidence", "lat", "lng", "geocoded_address",
			"geocoding_confidence", "geocoding_status", "geocode_provider", "scraped_at",
		},
		UpdateWhere: "EXCLUDED.geocoding_status = 'success'",
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert pending")
	}
	return int(n), nil
}

const postgresPendingColumns = `id, name, address, description, image_url, rating, review_count,
	is_open, category, confidence, lat, lng, geocoded_address, geocoding_confidence,
	geocoding_status, geocode_provider, source, source_url, scraped_at, status, created_at`

func (s *PostgresStore) ListPending(ctx context.Context, filter PendingFilter) ([]model.PendingSpot, error) {
	query := `SELECT ` + postgresPendingColumns + ` FROM pending_spots WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.MissingCoordinates {
		query += ` AND lat IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending")
	}
	defer rows.Close()

	var spots []model.PendingSpot
	for rows.Next() {
		sp, err := scanPostgresPending(rows)
		if err != nil {
			return nil, err
		}
		spots = append(spots, *sp)
	}
	return spots, eris.Wrap(rows.Err(), "postgres: list pending iterate")
}

func (s *PostgresStore) GetPending(ctx context.Context, id string) (*model.PendingSpot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresPendingColumns+` FROM pending_spots WHERE id = $1`, id)
	sp, err := scanPostgresPending(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("pending_spot not found: %s", id)
		}
		return nil, err
	}
	return sp, nil
}

func (s *PostgresStore) UpdatePendingGeocode(ctx context.Context, id string, upd GeocodeUpdate) error {
	var lat, lng any
	if upd.Location != nil {
		lat, lng = upd.Location.Lat, upd.Location.Lng
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_spots SET lat = $1, lng = $2, geocoded_address = $3,
		 geocoding_confidence = $4, geocoding_status = $5, geocode_provider = $6
		 WHERE id = $7`,
		lat, lng, upd.GeocodedAddress, upd.Confidence, string(upd.Status), upd.Provider, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update pending geocode %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("pending_spot not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) Approve(ctx context.Context, pendingID string) (*model.Spot, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal sources")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin approve")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO spots (id, name, address, lat, lng, sources, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		spot.ID, spot.Name, spot.Address, loc.Lat, loc.Lng, sourcesJSON, spot.CreatedAt,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: approve insert spot %s", pendingID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pending_spots WHERE id = $1`, pendingID); err != nil {
		return nil, eris.Wrapf(err, "postgres: approve delete pending %s", pendingID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit approve")
	}
	return spot, nil
}

// Reject moves the pending record's identity into the rejection log.
// Re-rejecting an identity that is already logged, for example one that
// re-entered the queue through a manual submission, is a silent no-op on
// the log side.
func (s *PostgresStore) Reject(ctx context.Context, pendingID string) error {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin reject")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO rejected_spots (name, address, source, rejected_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name, address) DO NOTHING`,
		rej.Name, rej.Address, rej.SourceName, rej.RejectedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: reject insert %s", pendingID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pending_spots WHERE id = $1`, pendingID); err != nil {
		return eris.Wrapf(err, "postgres: reject delete pending %s", pendingID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit reject")
}

func (s *PostgresStore) Merge(ctx context.Context, pendingID, spotID string) error {
	pending, err := s.GetPending(ctx, pendingID)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin merge")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var sourcesJSON []byte
	err = tx.QueryRow(ctx, `SELECT sources FROM spots WHERE id = $1`, spotID).Scan(&sourcesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Errorf("spot not found: %s", spotID)
		}
		return eris.Wrapf(err, "postgres: merge read spot %s", spotID)
	}

	var sources []string
	if err := json.Unmarshal(sourcesJSON, &sources); err != nil {
		return eris.Wrap(err, "postgres: unmarshal sources")
	}
	sources = appendSource(sources, pending.SourceName)
	merged, err := json.Marshal(sources)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources")
	}

	if _, err := tx.Exec(ctx, `UPDATE spots SET sources = $1 WHERE id = $2`, merged, spotID); err != nil {
		return eris.Wrapf(err, "postgres: merge update spot %s", spotID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pending_spots WHERE id = $1`, pendingID); err != nil {
		return eris.Wrapf(err, "postgres: merge delete pending %s", pendingID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit merge")
}

func (s *PostgresStore) ListSpots(ctx context.Context) ([]model.Spot, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, address, lat, lng, sources, created_at FROM spots ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list spots")
	}
	defer rows.Close()

	var spots []model.Spot
	for rows.Next() {
		var sp model.Spot
		var lat, lng *float64
		var sourcesJSON []byte
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Address, &lat, &lng, &sourcesJSON, &sp.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan spot")
		}
		if lat != nil && lng != nil {
			sp.Location = &model.LatLng{Lat: *lat, Lng: *lng}
		}
		if err := json.Unmarshal(sourcesJSON, &sp.Sources); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal sources")
		}
		spots = append(spots, sp)
	}
	return spots, eris.Wrap(rows.Err(), "postgres: list spots iterate")
}

func scanPostgresPending(row pgx.Row) (*model.PendingSpot, error) {
	var sp model.PendingSpot
	var lat, lng *float64
	var scrapedAt *time.Time
	var categoryJSON []byte
	var status, geocodingStatus string

	err := row.Scan(&sp.ID, &sp.Name, &sp.Address, &sp.Description, &sp.ImageURL,
		&sp.Rating, &sp.ReviewCount, &sp.IsOpen, &categoryJSON, &sp.Confidence,
		&lat, &lng, &sp.GeocodedAddress, &sp.GeocodingConfidence,
		&geocodingStatus, &sp.GeocodeProvider,
		&sp.SourceName, &sp.SourceURL, &scrapedAt, &status, &sp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, eris.Wrap(err, "postgres: scan pending spot")
	}

	if lat != nil && lng != nil {
		sp.Location = &model.LatLng{Lat: *lat, Lng: *lng}
	}
	if scrapedAt != nil {
		sp.ScrapedAt = *scrapedAt
	}
	sp.Status = model.SpotStatus(status)
	sp.GeocodingStatus = model.GeocodingStatus(geocodingStatus)
	if err := json.Unmarshal(categoryJSON, &sp.Category); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal category")
	}
	return &sp, nil
}
