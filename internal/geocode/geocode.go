// Package geocode resolves free-text place names to coordinates. Lookups go
// through an in-process cache, the persistent cache, a minimum-interval rate
// limiter and the external provider, in that order, and fall back to a
// deterministic stub coordinate when the provider cannot answer. Provider
// requests are serialized; each starts at least MinInterval after the previous
// one finished.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
)

// ErrTransient marks provider failures worth retrying: timeouts, throttling,
// server errors. Anything else aborts the lookup immediately.
var ErrTransient = errors.New("transient geocoding failure")

var errLimiterAborted = errors.New("rate limiter wait aborted")

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Provider is the external geocoding service. A nil result with a nil error
// means the service has no match for the place.
type Provider interface {
	Search(ctx context.Context, place string) (*models.Coordinates, error)
}

type Config struct {
	MinInterval time.Duration // from the end of one external request to the start of the next
	BackoffStep time.Duration // retry n sleeps n*BackoffStep
	Retries     int
	Fallback    bool
}

func DefaultConfig() Config {
	return Config{
		MinInterval: time.Second,
		BackoffStep: 1500 * time.Millisecond,
		Retries:     2,
		Fallback:    true,
	}
}

// Options override the per-call retry and fallback policy.
type Options struct {
	Retries  int
	Fallback bool
}

type Geocoder struct {
	provider Provider
	store    repository.GeocodeCache
	memo     *gocache.Cache
	cfg      Config
	metrics  *Metrics
	sleep    func(ctx context.Context, d time.Duration) error

	callMu  sync.Mutex // held for a whole provider request; guards limiter
	limit   rate.Limit
	limiter *rate.Limiter
}

// New builds a Geocoder. store may be nil, in which case only the in-process
// cache is used.
func New(provider Provider, store repository.GeocodeCache, cfg Config) *Geocoder {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Geocoder{
		provider: provider,
		store:    store,
		memo:     gocache.New(gocache.NoExpiration, 0),
		cfg:      cfg,
		limit:    limit,
		limiter:  rate.NewLimiter(limit, 1),
		sleep:    sleepCtx,
	}
}

func (g *Geocoder) WithMetrics(m *Metrics) *Geocoder {
	g.metrics = m
	return g
}

// Geocode looks up place with the configured retry and fallback policy.
// It returns nil when no coordinate could be produced.
func (g *Geocoder) Geocode(ctx context.Context, place string) *models.Coordinates {
	return g.Lookup(ctx, place, Options{Retries: g.cfg.Retries, Fallback: g.cfg.Fallback})
}

func (g *Geocoder) Lookup(ctx context.Context, place string, opts Options) *models.Coordinates {
	if place == "" {
		return nil
	}

	if c := g.cached(ctx, place); c != nil {
		g.metrics.observe(outcomeCache)
		return c
	}

	if c := g.query(ctx, place, opts.Retries); c != nil {
		g.remember(ctx, place, *c)
		g.metrics.observe(outcomeNetwork)
		return c
	}

	if !opts.Fallback {
		g.metrics.observe(outcomeMiss)
		return nil
	}

	c := StubCoordinates(place)
	g.remember(ctx, place, c)
	g.metrics.observe(outcomeFallback)
	slog.Info("geocode fallback used", "place", place, "lat", c.Latitude, "lon", c.Longitude)
	return &c
}

// query calls the provider with rate limiting and linear backoff on transient
// errors. It returns nil on no match or when attempts are exhausted.
func (g *Geocoder) query(ctx context.Context, place string, retries int) *models.Coordinates {
	if g.provider == nil {
		return nil
	}

	for attempt := 1; attempt <= retries+1; attempt++ {
		c, err := g.search(ctx, place)
		if errors.Is(err, errLimiterAborted) {
			slog.Warn("geocode rate limiter aborted", "place", place, "error", err)
			return nil
		}
		if err == nil {
			if c == nil {
				slog.Debug("geocode no match", "place", place)
			}
			return c
		}

		if !IsTransient(err) {
			slog.Warn("geocode failed", "place", place, "error", err)
			return nil
		}
		if attempt > retries {
			slog.Warn("geocode retries exhausted", "place", place, "attempts", attempt, "error", err)
			return nil
		}

		g.metrics.observeRetry()
		backoff := time.Duration(attempt) * g.cfg.BackoffStep
		slog.Debug("geocode transient failure, retrying", "place", place, "attempt", attempt, "backoff", backoff, "error", err)
		if err := g.sleep(ctx, backoff); err != nil {
			return nil
		}
	}
	return nil
}

// search makes one provider request once the limiter allows it, then restarts
// the interval from the moment the request finished.
func (g *Geocoder) search(ctx context.Context, place string) (*models.Coordinates, error) {
	g.callMu.Lock()
	defer g.callMu.Unlock()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", errLimiterAborted, err)
	}
	c, err := g.provider.Search(ctx, place)

	g.limiter = rate.NewLimiter(g.limit, 1)
	g.limiter.AllowN(time.Now(), 1)
	return c, err
}

func (g *Geocoder) cached(ctx context.Context, place string) *models.Coordinates {
	if v, ok := g.memo.Get(place); ok {
		c := v.(models.Coordinates)
		return &c
	}
	if g.store == nil {
		return nil
	}

	c, err := g.store.GetCachedGeocode(ctx, place)
	if err != nil {
		slog.Warn("geocode cache read failed", "place", place, "error", err)
		return nil
	}
	if c != nil {
		g.memo.Set(place, *c, gocache.NoExpiration)
	}
	return c
}

func (g *Geocoder) remember(ctx context.Context, place string, c models.Coordinates) {
	g.memo.Set(place, c, gocache.NoExpiration)
	if g.store == nil {
		return
	}
	if err := g.store.CacheGeocode(ctx, place, c); err != nil {
		slog.Warn("geocode cache write failed", "place", place, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
