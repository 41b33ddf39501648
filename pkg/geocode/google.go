package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleProvider is the primary, keyed provider. Skipped entirely when
// no API key is configured.
type googleProvider struct {
	client *chainClient
}

func (g *googleProvider) Name() string { return "google" }

func (g *googleProvider) Available() bool { return g.client.googleKey != "" }

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress  string `json:"formatted_address"`
	AddressComponents []struct {
		LongName string   `json:"long_name"`
		Types    []string `json:"types"`
	} `json:"address_components"`
}

func (g *googleProvider) Geocode(ctx context.Context, address string) (*Result, error) {
	c := g.client
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"address": {c.query(address)},
		"key":     {c.googleKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.googleURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	if googleResp.Status != "OK" || len(googleResp.Results) == 0 {
		return &Result{Matched: false, Provider: "google"}, nil
	}

	r := googleResp.Results[0]
	quality := googleLocationTypeToQuality(r.Geometry.LocationType)
	return &Result{
		Latitude:         r.Geometry.Location.Lat,
		Longitude:        r.Geometry.Location.Lng,
		FormattedAddress: r.FormattedAddress,
		Confidence:       qualityToConfidence(quality),
		Quality:          quality,
		Provider:         "google",
		Locality:         googleLocality(r),
		Matched:          true,
	}, nil
}

// googleLocality extracts the administrative locality component.
func googleLocality(r googleResult) string {
	for _, comp := range r.AddressComponents {
		for _, t := range comp.Types {
			if t == "locality" {
				return comp.LongName
			}
		}
	}
	for _, comp := range r.AddressComponents {
		for _, t := range comp.Types {
			if t == "administrative_area_level_1" {
				return comp.LongName
			}
		}
	}
	return ""
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	case "APPROXIMATE":
		return "approximate"
	default:
		return "approximate"
	}
}

// qualityToConfidence turns a quality tier into a 0-1 confidence value.
func qualityToConfidence(quality string) float64 {
	switch quality {
	case "rooftop":
		return 0.95
	case "range":
		return 0.8
	case "centroid":
		return 0.6
	default:
		return 0.4
	}
}
