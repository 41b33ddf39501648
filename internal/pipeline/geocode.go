package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/amala-atlas/discovery-cli/internal/model"
	"github.com/amala-atlas/discovery-cli/internal/store"
)

// resolve geocodes fresh candidates strictly sequentially. Provider
// failures and out-of-bounds results degrade the candidate to
// geocoding_status=failed; they never drop it.
func (p *Pipeline) resolve(ctx context.Context, fresh []model.ScoredCandidate) []model.GeocodedCandidate {
	geocoded := make([]model.GeocodedCandidate, 0, len(fresh))
	if len(fresh) == 0 {
		return geocoded
	}

	if p.opts.Geocoder == nil {
		for _, c := range fresh {
			geocoded = append(geocoded, model.GeocodedCandidate{
				ScoredCandidate: c,
				GeocodingStatus: model.GeocodingFailed,
			})
		}
		return geocoded
	}

	addresses := make([]string, len(fresh))
	for i, c := range fresh {
		addresses[i] = c.Address
	}

	results := p.opts.Geocoder.BatchGeocode(ctx, addresses, p.opts.BatchDelay)
	for i, c := range fresh {
		gc := model.GeocodedCandidate{
			ScoredCandidate: c,
			GeocodingStatus: model.GeocodingFailed,
		}
		r := results[i]
		switch {
		case !r.Matched:
			// leave failed
		case !p.inBounds(r.Latitude, r.Longitude):
			zap.L().Warn("geocode result outside service area",
				zap.String("name", c.Name),
				zap.Float64("lat", r.Latitude),
				zap.Float64("lng", r.Longitude),
			)
		default:
			gc.Location = &model.LatLng{Lat: r.Latitude, Lng: r.Longitude}
			gc.GeocodedAddress = r.FormattedAddress
			gc.GeocodingConfidence = r.Confidence
			gc.GeocodingStatus = model.GeocodingSuccess
			gc.Provider = r.Provider
		}
		geocoded = append(geocoded, gc)
	}
	return geocoded
}

func (p *Pipeline) inBounds(lat, lng float64) bool {
	if !p.opts.EnforceBounds || p.opts.Bounds.Zero() {
		return true
	}
	return p.opts.Bounds.Contains(lat, lng)
}

// GeocodeOne re-resolves coordinates for a single stored pending record
// and returns the record as updated.
func (p *Pipeline) GeocodeOne(ctx context.Context, id string) (*model.PendingSpot, error) {
	if p.opts.Store == nil {
		return nil, eris.New("pipeline: no store configured")
	}
	if p.opts.Geocoder == nil {
		return nil, eris.New("pipeline: no geocoder configured")
	}

	sp, err := p.opts.Store.GetPending(ctx, id)
	if err != nil {
		return nil, err
	}

	upd := store.GeocodeUpdate{Status: model.GeocodingFailed}
	if r := p.opts.Geocoder.Geocode(ctx, sp.Address); r != nil && r.Matched && p.inBounds(r.Latitude, r.Longitude) {
		upd = store.GeocodeUpdate{
			Location:        &model.LatLng{Lat: r.Latitude, Lng: r.Longitude},
			GeocodedAddress: r.FormattedAddress,
			Confidence:      r.Confidence,
			Status:          model.GeocodingSuccess,
			Provider:        r.Provider,
		}
	}
	if err := p.opts.Store.UpdatePendingGeocode(ctx, id, upd); err != nil {
		return nil, err
	}
	return p.opts.Store.GetPending(ctx, id)
}

// GeocodeMissing retries coordinate resolution for stored pending records
// that have none, writing results back through the store. Returns how
// many records gained coordinates and how many still lack them.
func (p *Pipeline) GeocodeMissing(ctx context.Context, limit int) (resolved, unresolved int, err error) {
	if p.opts.Store == nil {
		return 0, 0, eris.New("pipeline: no store configured")
	}
	if p.opts.Geocoder == nil {
		return 0, 0, eris.New("pipeline: no geocoder configured")
	}

	missing, err := p.opts.Store.ListPending(ctx, store.PendingFilter{
		MissingCoordinates: true,
		Limit:              limit,
	})
	if err != nil {
		return 0, 0, eris.Wrap(err, "pipeline: list pending without coordinates")
	}
	if len(missing) == 0 {
		return 0, 0, nil
	}

	addresses := make([]string, len(missing))
	for i, sp := range missing {
		addresses[i] = sp.Address
	}

	results := p.opts.Geocoder.BatchGeocode(ctx, addresses, p.opts.BatchDelay)
	for i, sp := range missing {
		r := results[i]
		upd := store.GeocodeUpdate{Status: model.GeocodingFailed}
		if r.Matched && p.inBounds(r.Latitude, r.Longitude) {
			upd = store.GeocodeUpdate{
				Location:        &model.LatLng{Lat: r.Latitude, Lng: r.Longitude},
				GeocodedAddress: r.FormattedAddress,
				Confidence:      r.Confidence,
				Status:          model.GeocodingSuccess,
				Provider:        r.Provider,
			}
		}
		if err := p.opts.Store.UpdatePendingGeocode(ctx, sp.ID, upd); err != nil {
			zap.L().Warn("geocode update failed",
				zap.String("id", sp.ID),
				zap.Error(err),
			)
			unresolved++
			continue
		}
		if upd.Status == model.GeocodingSuccess {
			resolved++
		} else {
			unresolved++
		}
	}
	return resolved, unresolved, nil
}
