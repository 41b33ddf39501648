package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amala-atlas/discovery-cli/internal/model"
)

func testOptions() Options {
	return Options{
		UserAgent:   "AmalaAtlas-Discovery-Bot/1.1",
		Timeout:     2 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		HostRPS:     1000,
	}
}

func srcFor(url string) model.Source {
	return model.Source{
		Name: "TestSource",
		URL:  url,
		Extract: model.ExtractConfig{
			Container:    ".content",
			NameSelector: "h3",
		},
	}
}

func TestFetchSuccess(t *testing.T) {
	var sawUA atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		sawUA.Store(r.Header.Get("User-Agent"))
		w.Write([]byte("<html><body><h3>Amala Spot</h3></body></html>"))
	}))
	defer ts.Close()

	f := New(testOptions())
	html, err := f.Fetch(context.Background(), srcFor(ts.URL+"/page"))
	require.NoError(t, err)
	assert.Contains(t, html, "Amala Spot")
	assert.Equal(t, "AmalaAtlas-Discovery-Bot/1.1", sawUA.Load())
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	f := New(testOptions())
	html, err := f.Fetch(context.Background(), srcFor(ts.URL))
	require.NoError(t, err)
	assert.Equal(t, "ok", html)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	f := New(testOptions())
	_, err := f.Fetch(context.Background(), srcFor(ts.URL))
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchNoBackoffAfterFinalAttempt(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	opts := testOptions()
	opts.MaxRetries = 2
	opts.BackoffBase = 200 * time.Millisecond
	f := New(opts)

	// Two attempts mean exactly one backoff between them. With jitter the
	// single sleep stays under 300ms; sleeping again after the last
	// attempt would push past 600ms.
	start := time.Now()
	_, err := f.Fetch(context.Background(), srcFor(ts.URL))
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := New(testOptions())
	_, err := f.Fetch(context.Background(), srcFor(ts.URL))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRobotsDisallowed(t *testing.T) {
	var pageFetched atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		pageFetched.Store(true)
		w.Write([]byte("should not be reached"))
	}))
	defer ts.Close()

	f := New(testOptions())
	_, err := f.Fetch(context.Background(), srcFor(ts.URL+"/guide"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRobotsDisallowed))
	assert.False(t, pageFetched.Load())
}

func TestFetchRobotsAllowsOtherAgentsBlocked(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: OtherBot\nDisallow: /\n"))
			return
		}
		w.Write([]byte("welcome"))
	}))
	defer ts.Close()

	f := New(testOptions())
	html, err := f.Fetch(context.Background(), srcFor(ts.URL+"/guide"))
	require.NoError(t, err)
	assert.Equal(t, "welcome", html)
}

func TestFetchRobotsUnreachableProceeds(t *testing.T) {
	// robots.txt returns a 5xx: parse yields no usable rules and the
	// body fetch proceeds.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("content"))
	}))
	defer ts.Close()

	f := New(testOptions())
	html, err := f.Fetch(context.Background(), srcFor(ts.URL+"/page"))
	require.NoError(t, err)
	assert.Equal(t, "content", html)
}

func TestFetchRobotsCachedPerOrigin(t *testing.T) {
	var robotsCalls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsCalls.Add(1)
			w.Write([]byte("User-agent: *\nAllow: /\n"))
			return
		}
		w.Write([]byte("x"))
	}))
	defer ts.Close()

	f := New(testOptions())
	for range 3 {
		_, err := f.Fetch(context.Background(), srcFor(ts.URL+"/page"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), robotsCalls.Load())
}

func TestHostLimiterSharedPerHost(t *testing.T) {
	hl := NewHostLimiter(1, 1)
	a := hl.limiterFor("a.example")
	b := hl.limiterFor("b.example")
	assert.NotSame(t, a, b)
	assert.Same(t, a, hl.limiterFor("a.example"))
}

func TestFetchDefaults(t *testing.T) {
	f := New(Options{})
	assert.Equal(t, 10*time.Second, f.opts.Timeout)
	assert.Equal(t, 3, f.opts.MaxRetries)
	assert.Equal(t, 2*time.Second, f.opts.BackoffBase)
	assert.Equal(t, "AmalaAtlas-Discovery-Bot/1.1", f.opts.UserAgent)
}
