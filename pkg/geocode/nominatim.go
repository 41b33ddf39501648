package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

const nominatimBaseURL = "https://nominatim.openstreetmap.org"

// nominatimProvider is the free fallback provider. Always available; its
// usage policy is honored through the shared rate limiter and a fixed
// identifying user agent.
type nominatimProvider struct {
	client *chainClient
}

func (n *nominatimProvider) Name() string { return "nominatim" }

func (n *nominatimProvider) Available() bool { return true }

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Importance  float64 `json:"importance"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Suburb  string `json:"suburb"`
		State   string `json:"state"`
	} `json:"address"`
}

func (n *nominatimProvider) Geocode(ctx context.Context, address string) (*Result, error) {
	c := n.client
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":              {c.query(address)},
		"format":         {"json"},
		"limit":          {"1"},
		"addressdetails": {"1"},
	}
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nominatimURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(results) == 0 {
		return &Result{Matched: false, Provider: "nominatim"}, nil
	}

	r := results[0]
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lat")
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lon")
	}

	return &Result{
		Latitude:         lat,
		Longitude:        lng,
		FormattedAddress: r.DisplayName,
		Confidence:       r.Importance,
		Quality:          "approximate",
		Provider:         "nominatim",
		Locality:         nominatimLocality(r),
		Matched:          true,
	}, nil
}

// nominatimLocality picks the most specific populated-place component.
func nominatimLocality(r nominatimResult) string {
	for _, v := range []string{r.Address.City, r.Address.Town, r.Address.Village, r.Address.Suburb, r.Address.State} {
		if v != "" {
			return v
		}
	}
	return ""
}
