package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amala-atlas/discovery-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testPendingSpot(name, address string) model.PendingSpot {
	now := time.Now().UTC().Truncate(time.Second)
	return model.PendingSpot{
		ID:              uuid.New().String(),
		Name:            name,
		Address:         address,
		Description:     "found via food blog roundup",
		Rating:          0,
		IsOpen:          true,
		Category:        model.DefaultCategories,
		Confidence:      80,
		GeocodingStatus: model.GeocodingFailed,
		SourceName:      "blog-a",
		SourceURL:       "https://blog-a.example/best-amala",
		ScrapedAt:       now,
		Status:          model.StatusPending,
		CreatedAt:       now,
	}
}

func TestSQLite_InsertAndListPending(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sp := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	sp.Location = &model.LatLng{Lat: 6.45, Lng: 3.39}
	sp.GeocodingStatus = model.GeocodingSuccess

	n, err := st.InsertPending(ctx, []model.PendingSpot{sp})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sp.ID, got[0].ID)
	assert.Equal(t, "Amala Palace", got[0].Name)
	assert.Equal(t, model.DefaultCategories, got[0].Category)
	assert.Equal(t, 80, got[0].Confidence)
	require.NotNil(t, got[0].Location)
	assert.InDelta(t, 6.45, got[0].Location.Lat, 0.0001)
	assert.Equal(t, model.GeocodingSuccess, got[0].GeocodingStatus)
	assert.Equal(t, model.StatusPending, got[0].Status)
}

func TestSQLite_InsertPending_RefreshOnConflict(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sp := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	_, err := st.InsertPending(ctx, []model.PendingSpot{sp})
	require.NoError(t, err)

	// Same identity rediscovered with coordinates this time.
	again := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	again.Location = &model.LatLng{Lat: 6.5, Lng: 3.4}
	again.GeocodingStatus = model.GeocodingSuccess
	_, err = st.InsertPending(ctx, []model.PendingSpot{again})
	require.NoError(t, err)

	got, err := st.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sp.ID, got[0].ID, "original row survives, geocode fields refresh")
	require.NotNil(t, got[0].Location)
	assert.Equal(t, model.GeocodingSuccess, got[0].GeocodingStatus)
}

func TestSQLite_InsertPending_ConflictKeepsStoredGeocode(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sp := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	sp.Location = &model.LatLng{Lat: 6.45, Lng: 3.39}
	sp.GeocodingStatus = model.GeocodingSuccess
	sp.GeocodeProvider = "google"
	_, err := st.InsertPending(ctx, []model.PendingSpot{sp})
	require.NoError(t, err)

	// Same identity rediscovered on a later run as a duplicate: no
	// coordinates, status failed. The stored geocode must survive.
	dup := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	dup.Status = model.StatusDuplicate
	_, err = st.InsertPending(ctx, []model.PendingSpot{dup})
	require.NoError(t, err)

	got, err := st.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sp.ID, got[0].ID)
	require.NotNil(t, got[0].Location)
	assert.InDelta(t, 6.45, got[0].Location.Lat, 0.0001)
	assert.Equal(t, model.GeocodingSuccess, got[0].GeocodingStatus)
	assert.Equal(t, "google", got[0].GeocodeProvider)
	assert.Equal(t, model.StatusPending, got[0].Status)
}

func TestSQLite_ListPending_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	located := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	located.Location = &model.LatLng{Lat: 6.45, Lng: 3.39}
	unlocated := testPendingSpot("Olaiya Foods", "1 Olaiya Junction, Surulere")
	dup := testPendingSpot("Iya Basira", "3 Somewhere, Lagos")
	dup.Status = model.StatusDuplicate

	_, err := st.InsertPending(ctx, []model.PendingSpot{located, unlocated, dup})
	require.NoError(t, err)

	missing, err := st.ListPending(ctx, PendingFilter{MissingCoordinates: true})
	require.NoError(t, err)
	require.Len(t, missing, 2)

	pendingOnly, err := st.ListPending(ctx, PendingFilter{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pendingOnly, 2)

	dups, err := st.ListPending(ctx, PendingFilter{Status: model.StatusDuplicate})
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, "Iya Basira", dups[0].Name)
}

func TestSQLite_Snapshots(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sp := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	_, err := st.InsertPending(ctx, []model.PendingSpot{sp})
	require.NoError(t, err)

	snaps, err := st.Snapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, snaps.Canonical)
	assert.Empty(t, snaps.Rejected)
	require.Len(t, snaps.Pending, 1)
	assert.Equal(t, "Amala Palace", snaps.Pending[0].Name)
}

func TestSQLite_UpdatePendingGeocode(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sp := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	_, err := st.InsertPending(ctx, []model.PendingSpot{sp})
	require.NoError(t, err)

	err = st.UpdatePendingGeocode(ctx, sp.ID, GeocodeUpdate{
		Location:        &model.LatLng{Lat: 6.46, Lng: 3.38},
		GeocodedAddress: "12 Example St, Lagos, Nigeria",
		Confidence:      0.95,
		Status:          model.GeocodingSuccess,
		Provider:        "google",
	})
	require.NoError(t, err)

	got, err := st.GetPending(ctx, sp.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 6.46, got.Location.Lat, 0.0001)
	assert.Equal(t, "google", got.GeocodeProvider)
	assert.Equal(t, model.GeocodingSuccess, got.GeocodingStatus)

	err = st.UpdatePendingGeocode(ctx, "missing-id", GeocodeUpdate{Status: model.GeocodingFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_Approve(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sp := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	sp.Location = &model.LatLng{Lat: 6.45, Lng: 3.39}
	_, err := st.InsertPending(ctx, []model.PendingSpot{sp})
	require.NoError(t, err)

	spot, err := st.Approve(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amala Palace", spot.Name)
	assert.Equal(t, []string{"blog-a"}, spot.Sources)
	require.NotNil(t, spot.Location)
	assert.InDelta(t, 6.45, spot.Location.Lat, 0.0001)

	// Record moved from pending to canonical.
	pending, err := st.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)

	spots, err := st.ListSpots(ctx)
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "Amala Palace", spots[0].Name)
}

func TestSQLite_Approve_FallbackLocation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sp := testPendingSpot("Olaiya Foods", "1 Olaiya Junction, Surulere")
	_, err := st.InsertPending(ctx, []model.PendingSpot{sp})
	require.NoError(t, err)

	spot, err := st.Approve(ctx, sp.ID)
	require.NoError(t, err)
	require.NotNil(t, spot.Location)
	assert.InDelta(t, FallbackLocation.Lat, spot.Location.Lat, 0.0001)
	assert.InDelta(t, FallbackLocation.Lng, spot.Location.Lng, 0.0001)
}

func TestSQLite_Reject(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sp := testPendingSpot("Fake Buka", "9 Nowhere Road, Lagos")
	_, err := st.InsertPending(ctx, []model.PendingSpot{sp})
	require.NoError(t, err)

	require.NoError(t, st.Reject(ctx, sp.ID))

	pending, err := st.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)

	snaps, err := st.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps.Rejected, 1)
	assert.Equal(t, "Fake Buka", snaps.Rejected[0].Name)
}

func TestSQLite_Reject_SameIdentityTwice(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testPendingSpot("Fake Buka", "9 Nowhere Road, Lagos")
	_, err := st.InsertPending(ctx, []model.PendingSpot{first})
	require.NoError(t, err)
	require.NoError(t, st.Reject(ctx, first.ID))

	// The identity re-enters the queue through a manual submission,
	// which bypasses dedup, and gets rejected again.
	resubmitted := testPendingSpot("Fake Buka", "9 Nowhere Road, Lagos")
	_, err = st.InsertPending(ctx, []model.PendingSpot{resubmitted})
	require.NoError(t, err)
	require.NoError(t, st.Reject(ctx, resubmitted.ID))

	pending, err := st.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)

	snaps, err := st.Snapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps.Rejected, 1)
}

func TestSQLite_Merge(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	original := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	_, err := st.InsertPending(ctx, []model.PendingSpot{original})
	require.NoError(t, err)
	spot, err := st.Approve(ctx, original.ID)
	require.NoError(t, err)

	dup := testPendingSpot("Amala Palace Restaurant", "12 Example St, Lagos")
	dup.SourceName = "blog-b"
	_, err = st.InsertPending(ctx, []model.PendingSpot{dup})
	require.NoError(t, err)

	require.NoError(t, st.Merge(ctx, dup.ID, spot.ID))

	spots, err := st.ListSpots(ctx)
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.ElementsMatch(t, []string{"blog-a", "blog-b"}, spots[0].Sources)

	pending, err := st.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLite_Merge_UnknownSpot(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sp := testPendingSpot("Amala Palace", "12 Example Street, Lagos")
	_, err := st.InsertPending(ctx, []model.PendingSpot{sp})
	require.NoError(t, err)

	err = st.Merge(ctx, sp.ID, "no-such-spot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spot not found")
}

func TestSQLite_GetPending_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetPending(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
