// Package pipeline wires the router and the four stages around one shared
// store. A report's whole traversal runs synchronously on the caller's
// goroutine; separate reports may be submitted concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr1hm/go-relief-pipeline/internal/feed"
	"github.com/mr1hm/go-relief-pipeline/internal/matcher"
	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
	"github.com/mr1hm/go-relief-pipeline/internal/router"
	"github.com/mr1hm/go-relief-pipeline/internal/stages"
)

var ErrIncidentNotFound = errors.New("incident not found after processing")

type Options struct {
	MaxHops int
	Query   matcher.Query
	Metrics *Metrics
	// Feed receives an event for every processed report. Optional.
	Feed *feed.Feed
}

type Pipeline struct {
	store   repository.Store
	matcher *matcher.Matcher
	router  *router.Router
	intake  *stages.Intake
	metrics *Metrics
	feed    *feed.Feed
}

// New registers intake, triage, coordinator and resource on a fresh router.
// geocoder may be nil.
func New(store repository.Store, geocoder stages.Geocoder, m *matcher.Matcher, opts Options) *Pipeline {
	if opts.Query.RadiusKm <= 0 {
		opts.Query.RadiusKm = matcher.DefaultQuery.RadiusKm
	}
	if opts.Query.Limit <= 0 {
		opts.Query.Limit = matcher.DefaultQuery.Limit
	}

	p := &Pipeline{
		store:   store,
		matcher: m,
		metrics: opts.Metrics,
		feed:    opts.Feed,
	}
	p.router = router.New(opts.MaxHops, p.hooks())

	p.intake = stages.NewIntake(store, geocoder, p.router, true)
	p.router.Register(stages.NameIntake, p.intake)
	p.router.Register(stages.NameTriage, stages.NewTriage(store, p.router))
	p.router.Register(stages.NameCoordinator, stages.NewCoordinator(store, p.router))
	p.router.Register(stages.NameResource, stages.NewResourceAllocator(m, p.router, opts.Query))

	return p
}

func (p *Pipeline) Router() *router.Router {
	return p.router
}

func (p *Pipeline) hooks() router.Hooks {
	var h router.Hooks
	if p.metrics != nil {
		h = p.metrics.Hooks()
	}
	countDispatch := h.OnDispatch

	h.OnDispatch = func(ctx context.Context, env *models.Envelope) {
		if err := p.store.RecordTransition(ctx, models.TransitionFor(env)); err != nil {
			slog.Error("error recording transition", "envelope_id", env.ID, "kind", env.Kind, "error", err)
		}
		if countDispatch != nil {
			countDispatch(ctx, env)
		}
	}
	return h
}

// Submit creates an incident from r and runs it through every stage before
// returning the report envelope.
func (p *Pipeline) Submit(ctx context.Context, r models.Report) (*models.Envelope, error) {
	start := time.Now()
	env, err := p.intake.Accept(ctx, r)
	if err != nil {
		return nil, err
	}
	p.observe(start)
	return env, nil
}

// Process stages r, dispatches it, then reloads the stored incident to build
// its dashboard event. The event is published to the feed when one is set.
func (p *Pipeline) Process(ctx context.Context, r models.Report, source string) (*feed.Event, error) {
	start := time.Now()
	env, err := p.intake.Prepare(ctx, r)
	if err != nil {
		return nil, err
	}
	p.router.Route(ctx, env)
	p.observe(start)

	id := env.IncidentID()
	inc, err := p.store.GetIncident(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error reloading incident %s: %w", id, err)
	}
	if inc == nil {
		return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}

	ev := feed.NewEvent(inc, feed.Resolve(inc.Allocation, p.matcher.Lookup), source)
	if p.feed != nil {
		p.feed.Publish(ev)
	}
	return ev, nil
}

func (p *Pipeline) observe(start time.Time) {
	if p.metrics != nil {
		p.metrics.ProcessDuration.Observe(time.Since(start).Seconds())
	}
}
