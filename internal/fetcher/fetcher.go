// Package fetcher retrieves source pages politely: robots.txt compliance,
// per-host rate limiting, and retry with exponential backoff.
package fetcher

import (
	"context"

	"github.com/amala-atlas/discovery-cli/internal/model"
)

// Fetcher downloads the HTML body of a source page.
type Fetcher interface {
	// Fetch returns the raw HTML for the source's URL. A robots.txt
	// Disallow rule yields ErrRobotsDisallowed; network and status
	// failures surface after retries are exhausted.
	Fetch(ctx context.Context, src model.Source) (string, error)
}
