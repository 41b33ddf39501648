package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/amala-atlas/discovery-cli/internal/catalog"
	"github.com/amala-atlas/discovery-cli/internal/dedup"
	"github.com/amala-atlas/discovery-cli/internal/extractor"
	"github.com/amala-atlas/discovery-cli/internal/fetcher"
	"github.com/amala-atlas/discovery-cli/internal/pipeline"
	"github.com/amala-atlas/discovery-cli/internal/scorer"
	"github.com/amala-atlas/discovery-cli/internal/store"
	"github.com/amala-atlas/discovery-cli/pkg/geocode"
)

// pipelineEnv bundles the long-lived collaborators a command needs.
type pipelineEnv struct {
	Store    store.Store
	Geocoder geocode.Client
	Pipeline *pipeline.Pipeline
}

func (e *pipelineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func initGeocoder() geocode.Client {
	return geocode.NewClient(
		geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey),
		geocode.WithNominatimBaseURL(cfg.Geocode.NominatimURL),
		geocode.WithRegionSuffix(cfg.Geocode.RegionSuffix),
		geocode.WithCountryCodes(cfg.Geocode.CountryCodes),
		geocode.WithRateLimit(cfg.Geocode.RPS),
		geocode.WithUserAgent(cfg.Fetch.UserAgent),
	)
}

// initPipeline builds the full discovery pipeline from config: store,
// source catalog, fetcher, extractor, scorer, deduper, and geocoder.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	sources, err := catalog.Load(cfg.Sources.Path)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "load source catalog")
	}
	zap.L().Info("source catalog loaded",
		zap.String("path", cfg.Sources.Path),
		zap.Int("sources", len(sources)),
	)

	fetch := fetcher.New(fetcher.Options{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.Fetch.Timeout(),
		MaxRetries:  cfg.Fetch.MaxRetries,
		BackoffBase: time.Duration(cfg.Fetch.BackoffBaseSecs) * time.Second,
		HostRPS:     rate.Limit(cfg.Fetch.HostRPS),
	})

	ext := extractor.New(extractor.Config{
		NameKeywords:      cfg.Extract.NameKeywords,
		AddressKeywords:   cfg.Extract.AddressKeywords,
		FallbackSelectors: cfg.Extract.FallbackSelectors,
		MinNameLen:        cfg.Extract.MinNameLen,
		MaxNameLen:        cfg.Extract.MaxNameLen,
		MinAddressLen:     cfg.Extract.MinAddressLen,
		ContextChars:      cfg.Extract.ContextChars,
		DescriptionChars:  cfg.Extract.DescriptionChars,
	})

	sc := scorer.New(scorer.Weights{
		NameKeyword:     cfg.Score.NameKeyword,
		ContextKeyword:  cfg.Score.ContextKeyword,
		HasAddress:      cfg.Score.HasAddress,
		TrustedSource:   cfg.Score.TrustedSource,
		BoilerplateHit:  cfg.Score.BoilerplateHit,
		SentenceName:    cfg.Score.SentenceName,
		AcceptThreshold: cfg.Score.AcceptThreshold,
	}, cfg.Extract.NameKeywords, cfg.Score.ContextKeywords, cfg.Score.TrustedSources)

	geocoder := initGeocoder()

	// Identity keys use the address text itself rather than live locality
	// lookups; dedup runs against every snapshot row on every run and
	// cannot afford a provider round-trip per record.
	ded := dedup.New(nil, cfg.Dedup.SuffixWords)

	p := pipeline.New(pipeline.Options{
		Sources:     sources,
		Fetcher:     fetch,
		Extractor:   ext,
		Scorer:      sc,
		Deduper:     ded,
		Geocoder:    geocoder,
		Store:       st,
		Concurrency: cfg.Fetch.Concurrency,
		BatchDelay:  cfg.Geocode.BatchDelay(),
		Bounds: geocode.Bounds{
			North: cfg.Geocode.Bounds.North,
			South: cfg.Geocode.Bounds.South,
			East:  cfg.Geocode.Bounds.East,
			West:  cfg.Geocode.Bounds.West,
		},
		EnforceBounds: cfg.Geocode.EnforceBounds,
	})

	return &pipelineEnv{Store: st, Geocoder: geocoder, Pipeline: p}, nil
}
