package store

import (
	"context"

	"github.com/amala-atlas/discovery-cli/internal/model"
)

// FallbackLocation is stamped onto an approved spot that never geocoded,
// so the map UI always has something to render. Roughly central Lagos.
var FallbackLocation = model.LatLng{Lat: 6.5244, Lng: 3.3792}

// PendingFilter specifies criteria for listing pending records.
type PendingFilter struct {
	Status             model.SpotStatus `json:"status,omitempty"`
	MissingCoordinates bool             `json:"missing_coordinates,omitempty"`
	Limit              int              `json:"limit,omitempty"`
	Offset             int              `json:"offset,omitempty"`
}

// GeocodeUpdate carries a late geocoding result onto a stored pending record.
type GeocodeUpdate struct {
	Location        *model.LatLng
	GeocodedAddress string
	Confidence      float64
	Status          model.GeocodingStatus
	Provider        string
}

// Store defines the persistence interface for the discovery pipeline and
// the moderation workflow. The canonical set, the pending queue, and the
// rejection log are three disjoint sets; records move between them only
// through the moderation methods.
type Store interface {
	// Snapshots returns one consistent read of all three sets reduced to
	// name+address, for dedup membership checks.
	Snapshots(ctx context.Context) (model.Snapshots, error)

	// Pending queue
	InsertPending(ctx context.Context, spots []model.PendingSpot) (int, error)
	ListPending(ctx context.Context, filter PendingFilter) ([]model.PendingSpot, error)
	GetPending(ctx context.Context, id string) (*model.PendingSpot, error)
	UpdatePendingGeocode(ctx context.Context, id string, upd GeocodeUpdate) error

	// Moderation. Approve promotes a pending record to the canonical set,
	// Reject moves it to the rejection log, Merge attaches its source
	// attribution to an existing canonical record. All three remove the
	// pending record.
	Approve(ctx context.Context, pendingID string) (*model.Spot, error)
	Reject(ctx context.Context, pendingID string) error
	Merge(ctx context.Context, pendingID, spotID string) error

	// Canonical records
	ListSpots(ctx context.Context) ([]model.Spot, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
