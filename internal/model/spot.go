package model

import "time"

// SpotStatus is the moderation state of a pending record.
type SpotStatus string

const (
	StatusPending SpotStatus = "pending"
	// StatusDuplicate marks a pending record that matched an existing
	// dedup key. Kept visible so a moderator can bulk-dismiss rather
	// than silently dropping it.
	StatusDuplicate SpotStatus = "duplicate"
)

// DefaultCategories are the business categories stamped onto every
// newly assembled pending record.
var DefaultCategories = []string{"Dine-in", "Takeaway"}

// PendingSpot is the pipeline's output unit: a geocoded candidate plus
// business defaults, queued for human moderation.
type PendingSpot struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Address             string          `json:"address"`
	Description         string          `json:"description"`
	ImageURL            string          `json:"image_url,omitempty"`
	Rating              float64         `json:"rating"`
	ReviewCount         int             `json:"review_count"`
	IsOpen              bool            `json:"is_open"`
	Category            []string        `json:"category"`
	Confidence          int             `json:"confidence"`
	Location            *LatLng         `json:"location"`
	GeocodedAddress     string          `json:"geocoded_address,omitempty"`
	GeocodingConfidence float64         `json:"geocoding_confidence"`
	GeocodingStatus     GeocodingStatus `json:"geocoding_status"`
	GeocodeProvider     string          `json:"geocode_provider,omitempty"`
	SourceName          string          `json:"source"`
	SourceURL           string          `json:"source_url"`
	ScrapedAt           time.Time       `json:"scraped_at"`
	Status              SpotStatus      `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Spot is a canonical, approved place record. The pipeline only ever
// reads these; promotion happens through moderation.
type Spot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Location  *LatLng   `json:"location"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

// RejectedSpot is one entry in the rejection log, keyed by
// name+address+source so a rejected place never resurfaces.
type RejectedSpot struct {
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	SourceName string    `json:"source"`
	RejectedAt time.Time `json:"rejected_at"`
}

// NameAddress is the reduced form of an existing record used for
// dedup snapshot reads.
type NameAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Snapshots holds one consistent read of the three disjoint record sets
// the deduplicator checks before admitting a new candidate.
type Snapshots struct {
	Canonical []NameAddress
	Pending   []NameAddress
	Rejected  []NameAddress
}

// RunSummary is the structured result returned to whatever triggered a
// discovery run, even on partial failure.
type RunSummary struct {
	Message            string    `json:"message"`
	Count              int       `json:"count"`
	WithCoordinates    int       `json:"with_coordinates"`
	WithoutCoordinates int       `json:"without_coordinates"`
	DuplicatesMarked   int       `json:"duplicates_marked"`
	SourcesScanned     int       `json:"sources_scanned"`
	SourcesFailed      int       `json:"sources_failed"`
	Timestamp          time.Time `json:"timestamp"`
}
