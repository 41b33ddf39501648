package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/amala-atlas/discovery-cli/internal/model"
)

// Assemble turns a geocoded candidate into a moderation-queue record:
// fresh identifier, business defaults, pending status. Pure; persistence
// is the caller's job.
func Assemble(gc model.GeocodedCandidate, now time.Time) model.PendingSpot {
	return model.PendingSpot{
		ID:                  uuid.New().String(),
		Name:                gc.Name,
		Address:             gc.Address,
		Description:         gc.Description,
		ImageURL:            gc.ImageURL,
		Rating:              0,
		ReviewCount:         0,
		IsOpen:              true,
		Category:            append([]string(nil), model.DefaultCategories...),
		Confidence:          gc.Confidence,
		Location:            gc.Location,
		GeocodedAddress:     gc.GeocodedAddress,
		GeocodingConfidence: gc.GeocodingConfidence,
		GeocodingStatus:     gc.GeocodingStatus,
		GeocodeProvider:     gc.Provider,
		SourceName:          gc.SourceName,
		SourceURL:           gc.SourceURL,
		ScrapedAt:           gc.ScrapedAt,
		Status:              model.StatusPending,
		CreatedAt:           now,
	}
}
