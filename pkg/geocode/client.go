// Package geocode resolves street addresses to coordinates via a chain
// of providers: Google Geocoding API (keyed, precise) with OpenStreetMap
// Nominatim as the free fallback.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Result holds the geocoding output for one address. Matched reports
// whether any provider produced coordinates; provider errors never
// escape the client, they degrade to unmatched results.
type Result struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	// Confidence is a 0-1 estimate of match quality. Google results map
	// quality tiers onto fixed values; Nominatim reports importance.
	Confidence float64
	Quality    string // "rooftop", "range", "centroid", "approximate"
	Provider   string // "google" or "nominatim"
	Locality   string // administrative locality, when the provider reports one
	Matched    bool
}

// Client geocodes addresses and resolves localities.
type Client interface {
	// Geocode resolves a single address. Never returns an error for
	// provider failures; those yield Matched=false.
	Geocode(ctx context.Context, address string) *Result

	// BatchGeocode resolves addresses strictly sequentially with a fixed
	// inter-call delay. Geocoding is rate-limit-bound, not CPU-bound, so
	// parallelizing would only trigger provider throttling.
	BatchGeocode(ctx context.Context, addresses []string, delay time.Duration) []Result

	// Locality returns the administrative locality for an address, or ""
	// when no provider can resolve one.
	Locality(ctx context.Context, address string) string
}

// Provider is a single geocoding backend.
type Provider interface {
	Name() string
	Available() bool
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Option configures the chain client.
type Option func(*chainClient)

// WithGoogleAPIKey enables the Google provider.
func WithGoogleAPIKey(key string) Option {
	return func(c *chainClient) { c.googleKey = key }
}

// WithHTTPClient sets a custom HTTP client for all providers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *chainClient) { c.httpClient = hc }
}

// WithNominatimBaseURL overrides the Nominatim endpoint (used in tests).
func WithNominatimBaseURL(base string) Option {
	return func(c *chainClient) { c.nominatimURL = strings.TrimRight(base, "/") }
}

// WithGoogleBaseURL overrides the Google endpoint (used in tests).
func WithGoogleBaseURL(base string) Option {
	return func(c *chainClient) { c.googleURL = strings.TrimRight(base, "/") }
}

// WithRegionSuffix appends a fixed region hint (e.g. "Lagos, Nigeria")
// to every query, matching how the sources write bare street addresses.
func WithRegionSuffix(suffix string) Option {
	return func(c *chainClient) { c.regionSuffix = suffix }
}

// WithCountryCodes restricts Nominatim results to the given ISO codes.
func WithCountryCodes(codes string) Option {
	return func(c *chainClient) { c.countryCodes = codes }
}

// WithRateLimit sets the shared requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *chainClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithUserAgent sets the User-Agent sent to providers. Nominatim's usage
// policy requires an identifying agent.
func WithUserAgent(ua string) Option {
	return func(c *chainClient) { c.userAgent = ua }
}

type chainClient struct {
	httpClient   *http.Client
	limiter      *rate.Limiter
	googleKey    string
	googleURL    string
	nominatimURL string
	regionSuffix string
	countryCodes string
	userAgent    string

	providers []Provider

	mu    sync.Mutex
	cache map[string]*Result
}

// NewClient creates a chain Client with the given options.
func NewClient(opts ...Option) Client {
	c := &chainClient{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(1, 1),
		googleURL:    googleGeocodeURL,
		nominatimURL: nominatimBaseURL,
		countryCodes: "ng",
		userAgent:    "AmalaAtlas/1.0 (Food Discovery App)",
		cache:        make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.providers = []Provider{
		&googleProvider{client: c},
		&nominatimProvider{client: c},
	}
	return c
}

// Geocode tries each provider in order until one matches. All failures
// are soft: the worst outcome is an unmatched Result.
func (c *chainClient) Geocode(ctx context.Context, address string) *Result {
	key := cacheKey(address)
	if cached := c.cacheGet(key); cached != nil {
		return cached
	}

	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		result, err := p.Geocode(ctx, address)
		if err != nil {
			zap.L().Debug("geocode provider error, trying next",
				zap.String("provider", p.Name()),
				zap.String("address", address),
				zap.Error(err),
			)
			continue
		}
		if result != nil && result.Matched {
			c.cachePut(key, result)
			return result
		}
	}

	noMatch := &Result{Matched: false}
	c.cachePut(key, noMatch)
	return noMatch
}

// BatchGeocode implements the deliberately serialized batch contract.
func (c *chainClient) BatchGeocode(ctx context.Context, addresses []string, delay time.Duration) []Result {
	results := make([]Result, len(addresses))
	for i, addr := range addresses {
		if ctx.Err() != nil {
			for j := i; j < len(addresses); j++ {
				results[j] = Result{Matched: false}
			}
			return results
		}
		results[i] = *c.Geocode(ctx, addr)

		if i < len(addresses)-1 && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
			case <-t.C:
			}
			t.Stop()
		}
	}
	return results
}

// Locality resolves the administrative locality of an address for dedup
// key construction.
func (c *chainClient) Locality(ctx context.Context, address string) string {
	r := c.Geocode(ctx, address)
	if !r.Matched {
		return ""
	}
	return r.Locality
}

func (c *chainClient) cacheGet(key string) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache[key]
}

func (c *chainClient) cachePut(key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = r
}

func cacheKey(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// query returns the provider query string with the region hint applied.
func (c *chainClient) query(address string) string {
	if c.regionSuffix == "" {
		return address
	}
	return address + ", " + c.regionSuffix
}
