// Package pipeline orchestrates one discovery run: fan out over the
// source catalog, extract and score candidates, drop everything already
// known, geocode what remains, and queue the survivors for moderation.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/amala-atlas/discovery-cli/internal/dedup"
	"github.com/amala-atlas/discovery-cli/internal/extractor"
	"github.com/amala-atlas/discovery-cli/internal/fetcher"
	"github.com/amala-atlas/discovery-cli/internal/model"
	"github.com/amala-atlas/discovery-cli/internal/scorer"
	"github.com/amala-atlas/discovery-cli/internal/store"
	"github.com/amala-atlas/discovery-cli/pkg/geocode"
)

const defaultConcurrency = 8

// Options wires the pipeline's collaborators and tuning knobs.
type Options struct {
	Sources   []model.Source
	Fetcher   fetcher.Fetcher
	Extractor *extractor.Extractor
	Scorer    *scorer.Scorer
	Deduper   *dedup.Deduper
	Geocoder  geocode.Client
	Store     store.Store

	// Concurrency bounds the source fan-out. Geocoding is always
	// serialized regardless of this value.
	Concurrency   int
	BatchDelay    time.Duration
	Bounds        geocode.Bounds
	EnforceBounds bool
}

// Pipeline runs the discovery flow end to end.
type Pipeline struct {
	opts Options
}

// New creates a Pipeline. Collaborators are injected so tests can swap
// any stage.
func New(opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Pipeline{opts: opts}
}

// Run executes one discovery run. Per-source and per-candidate failures
// are contained; only a missing store, an empty catalog, or zero
// reachable sources fail the run. The summary is populated even on
// partial failure.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	start := time.Now().UTC()

	if p.opts.Store == nil {
		return nil, eris.New("pipeline: no store configured")
	}
	if len(p.opts.Sources) == 0 {
		return nil, eris.New("pipeline: empty source catalog")
	}

	raw, failed := p.scanSources(ctx)
	summary := &model.RunSummary{
		SourcesScanned: len(p.opts.Sources) - failed,
		SourcesFailed:  failed,
		Timestamp:      start,
	}
	if failed == len(p.opts.Sources) {
		summary.Message = "all sources unreachable"
		return summary, eris.New("pipeline: zero reachable sources")
	}

	kept, dropped := p.opts.Scorer.Filter(raw)
	zap.L().Info("scored candidates",
		zap.Int("raw", len(raw)),
		zap.Int("kept", len(kept)),
		zap.Int("dropped", dropped),
	)

	snaps, err := p.opts.Store.Snapshots(ctx)
	if err != nil {
		summary.Message = "snapshot read failed"
		return summary, eris.Wrap(err, "pipeline: snapshot read")
	}

	fresh, dups := p.opts.Deduper.Partition(ctx, kept, snaps)

	geocoded := p.resolve(ctx, fresh)

	now := time.Now().UTC()
	records := make([]model.PendingSpot, 0, len(geocoded)+len(dups))
	for _, gc := range geocoded {
		rec := Assemble(gc, now)
		if rec.Location != nil {
			summary.WithCoordinates++
		} else {
			summary.WithoutCoordinates++
		}
		records = append(records, rec)
	}
	// Duplicates stay visible in the queue as low-priority entries so a
	// moderator can bulk-dismiss them.
	for _, d := range dups {
		rec := Assemble(model.GeocodedCandidate{
			ScoredCandidate: d,
			GeocodingStatus: model.GeocodingFailed,
		}, now)
		rec.Status = model.StatusDuplicate
		records = append(records, rec)
	}

	if _, err := p.opts.Store.InsertPending(ctx, records); err != nil {
		summary.Message = "persistence failed"
		return summary, eris.Wrap(err, "pipeline: insert pending")
	}

	summary.Count = len(geocoded)
	summary.DuplicatesMarked = len(dups)
	summary.Message = fmt.Sprintf("discovered %d new spots", len(geocoded))

	zap.L().Info("discovery run complete",
		zap.Int("count", summary.Count),
		zap.Int("with_coordinates", summary.WithCoordinates),
		zap.Int("without_coordinates", summary.WithoutCoordinates),
		zap.Int("duplicates_marked", summary.DuplicatesMarked),
		zap.Int("sources_failed", summary.SourcesFailed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, nil
}

// scanSources fetches and extracts every source in parallel. One bad
// source never aborts the run.
func (p *Pipeline) scanSources(ctx context.Context) ([]model.RawCandidate, int) {
	var (
		mu         sync.Mutex
		candidates []model.RawCandidate
		failed     int
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for _, src := range p.opts.Sources {
		g.Go(func() error {
			html, err := p.opts.Fetcher.Fetch(gCtx, src)
			if err != nil {
				zap.L().Warn("source fetch failed",
					zap.String("source", src.Name),
					zap.Error(err),
				)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			found, err := p.opts.Extractor.Extract(html, src, time.Now().UTC())
			if err != nil {
				zap.L().Warn("source extract failed",
					zap.String("source", src.Name),
					zap.Error(err),
				)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			candidates = append(candidates, found...)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return candidates, failed
}
