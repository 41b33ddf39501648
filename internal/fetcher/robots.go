package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
)

// robotsCache fetches and caches robots.txt per origin for the lifetime
// of one fetcher. A nil cached entry means the file was unreachable or
// unparseable, in which case fetching proceeds.
type robotsCache struct {
	client    *http.Client
	userAgent string

	mu      sync.Mutex
	byHost  map[string]*robotstxt.RobotsData
	fetched map[string]bool
}

func newRobotsCache(client *http.Client, userAgent string) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		byHost:    make(map[string]*robotstxt.RobotsData),
		fetched:   make(map[string]bool),
	}
}

// Allowed reports whether the user agent may fetch rawURL. The error is
// non-nil only when robots.txt could not be retrieved or parsed; callers
// treat that as permission to proceed.
func (rc *robotsCache) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true, eris.Wrap(err, "robots: parse url")
	}
	origin := u.Scheme + "://" + u.Host

	data, err := rc.get(ctx, origin)
	if err != nil {
		return true, err
	}
	if data == nil {
		return true, nil
	}
	return data.FindGroup(rc.userAgent).Test(u.Path), nil
}

func (rc *robotsCache) get(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	rc.mu.Lock()
	if rc.fetched[origin] {
		data := rc.byHost[origin]
		rc.mu.Unlock()
		return data, nil
	}
	rc.mu.Unlock()

	data, err := rc.fetch(ctx, origin)

	rc.mu.Lock()
	rc.fetched[origin] = true
	rc.byHost[origin] = data
	rc.mu.Unlock()

	return data, err
}

func (rc *robotsCache) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, eris.Wrap(err, "robots: create request")
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "robots: fetch %s/robots.txt", origin)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, eris.Wrap(err, "robots: read body")
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, eris.Wrap(err, "robots: parse")
	}
	return data, nil
}
