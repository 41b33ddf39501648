package model

import "time"

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeocodingStatus records the outcome of coordinate resolution for a candidate.
type GeocodingStatus string

const (
	GeocodingSuccess GeocodingStatus = "success"
	GeocodingFailed  GeocodingStatus = "failed"
)

// RawCandidate is a place extracted from a single source page. It exists
// only within one pipeline run and is never persisted directly.
type RawCandidate struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url,omitempty"`
	SourceName  string    `json:"source"`
	SourceURL   string    `json:"source_url"`
	ScrapedAt   time.Time `json:"scraped_at"`

	// Context holds up to the first 1200 characters of the surrounding
	// block text. Used for confidence scoring only, never persisted.
	Context string `json:"-"`
}

// ScoredCandidate is a RawCandidate with its plausibility score attached.
type ScoredCandidate struct {
	RawCandidate
	Confidence int `json:"confidence"`
}

// GeocodedCandidate is a ScoredCandidate with resolved coordinates.
// Location is nil when every provider failed or the result fell outside
// the service area.
type GeocodedCandidate struct {
	ScoredCandidate
	Location            *LatLng         `json:"location"`
	GeocodedAddress     string          `json:"geocoded_address,omitempty"`
	GeocodingConfidence float64         `json:"geocoding_confidence"`
	GeocodingStatus     GeocodingStatus `json:"geocoding_status"`
	Provider            string          `json:"provider,omitempty"`
}
