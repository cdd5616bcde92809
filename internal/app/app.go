// Package app assembles the store, geocoder, matcher, feed and pipeline from
// configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mr1hm/go-relief-pipeline/internal/config"
	"github.com/mr1hm/go-relief-pipeline/internal/feed"
	"github.com/mr1hm/go-relief-pipeline/internal/geocode"
	"github.com/mr1hm/go-relief-pipeline/internal/matcher"
	"github.com/mr1hm/go-relief-pipeline/internal/pipeline"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
)

type App struct {
	Store    repository.Store
	Matcher  *matcher.Matcher
	Geocoder *geocode.Geocoder
	Feed     *feed.Feed
	Pipeline *pipeline.Pipeline
	Registry *prometheus.Registry
}

// New opens the SQLite store at cfg.DB.Path and wires everything on top of
// it. Offline disables the network geocoder so every lookup that misses the
// cache uses the fallback stub.
func New(cfg *config.Config, offline bool) (*App, error) {
	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	a, err := NewWithStore(cfg, db, offline)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func NewWithStore(cfg *config.Config, store repository.Store, offline bool) (*App, error) {
	catalog := matcher.DefaultCatalog()
	if cfg.Matcher.CatalogPath != "" {
		loaded, err := matcher.LoadCatalog(cfg.Matcher.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("error loading resource catalog: %w", err)
		}
		catalog = loaded
	}
	m := matcher.New(catalog)

	reg := prometheus.NewRegistry()

	var provider geocode.Provider
	if !offline {
		provider = geocode.NewNominatim(cfg.Geocoder.URL, cfg.Geocoder.UserAgent, cfg.Geocoder.Timeout)
	}
	g := geocode.New(provider, store, geocode.Config{
		MinInterval: cfg.Geocoder.MinInterval,
		BackoffStep: geocode.DefaultConfig().BackoffStep,
		Retries:     cfg.Geocoder.Retries,
		Fallback:    cfg.Geocoder.Fallback,
	}).WithMetrics(geocode.NewMetrics(reg))

	f := feed.New(feed.DefaultSize)
	p := pipeline.New(store, g, m, pipeline.Options{
		MaxHops: cfg.Pipeline.MaxHops,
		Query:   matcher.Query{RadiusKm: cfg.Matcher.RadiusKm, Limit: cfg.Matcher.Limit},
		Metrics: pipeline.NewMetrics(reg),
		Feed:    f,
	})

	slog.Info("pipeline ready",
		"resources", len(catalog),
		"offline", offline,
		"max_hops", cfg.Pipeline.MaxHops,
	)

	return &App{
		Store:    store,
		Matcher:  m,
		Geocoder: g,
		Feed:     f,
		Pipeline: p,
		Registry: reg,
	}, nil
}

// Close ends live feed subscriptions and closes the store.
func (a *App) Close() error {
	a.Feed.Close()
	return a.Store.Close()
}
