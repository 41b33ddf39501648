package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/amala-atlas/discovery-cli/internal/model"
)

// maxBodyBytes caps the amount of HTML read from a single source page.
const maxBodyBytes = 2 * 1024 * 1024

// ErrRobotsDisallowed is returned when a source's robots.txt forbids the
// configured user agent from fetching the page.
var ErrRobotsDisallowed = eris.New("fetcher: disallowed by robots.txt")

// Options configures the HTTP fetcher.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	HostRPS     rate.Limit
}

// HostLimiter rate-limits requests per hostname so concurrent source
// fetches against the same publisher stay polite.
type HostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

// NewHostLimiter creates a HostLimiter with the given per-host rate.
func NewHostLimiter(rps rate.Limit, burst int) *HostLimiter {
	return &HostLimiter{
		m: make(map[string]*rate.Limiter),
		r: rps,
		b: burst,
	}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.r, hl.b)
	hl.m[host] = lim
	return lim
}

// Wait blocks until the limiter for the URL's host allows a request.
func (hl *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrap(err, "fetcher: parse url")
	}
	return hl.limiterFor(u.Host).Wait(ctx)
}

// HTTPFetcher implements Fetcher using net/http with retry, per-host rate
// limiting, and best-effort robots.txt compliance.
type HTTPFetcher struct {
	client *http.Client
	opts   Options
	hosts  *HostLimiter
	robots *robotsCache
}

// New creates an HTTPFetcher with the given options.
func New(opts Options) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "AmalaAtlas-Discovery-Bot/1.1"
	}
	if opts.HostRPS == 0 {
		opts.HostRPS = 2
	}
	client := &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return &HTTPFetcher{
		client: client,
		opts:   opts,
		hosts:  NewHostLimiter(opts.HostRPS, 2),
		robots: newRobotsCache(client, opts.UserAgent),
	}
}

// Fetch implements Fetcher. Robots compliance is best-effort: a robots.txt
// that cannot be fetched or parsed does not block the source, but a
// successful Disallow rule does.
func (f *HTTPFetcher) Fetch(ctx context.Context, src model.Source) (string, error) {
	allowed, err := f.robots.Allowed(ctx, src.URL)
	if err != nil {
		zap.L().Debug("robots.txt unavailable, proceeding",
			zap.String("source", src.Name),
			zap.Error(err),
		)
	} else if !allowed {
		zap.L().Warn("disallowed by robots.txt, skipping source",
			zap.String("source", src.Name),
			zap.String("url", src.URL),
		)
		return "", ErrRobotsDisallowed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: fetch %s", src.Name)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, src.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: read body from %s", src.URL)
	}
	return string(body), nil
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := f.hosts.Wait(ctx, req.URL.String()); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		cloned := req.Clone(ctx)
		resp, err := f.client.Do(cloned)
		if err != nil {
			lastErr = err
			zap.L().Warn("http request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			if attempt < f.opts.MaxRetries-1 {
				f.backoff(ctx, attempt)
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, req.URL.String())
			zap.L().Warn("retryable status, backing off",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			if attempt < f.opts.MaxRetries-1 {
				f.backoff(ctx, attempt)
			}
			continue
		}

		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

// backoff sleeps for base*2^attempt plus jitter, or until ctx is done.
func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	d := time.Duration(float64(f.opts.BackoffBase) * math.Pow(2, float64(attempt)))
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
