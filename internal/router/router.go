// Package router dispatches envelopes to stage handlers by receiver name.
// Dispatch is synchronous and recursive: a handler that routes a new envelope
// does so before returning, so one report's whole traversal runs on the
// caller's goroutine.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

const DefaultMaxHops = 8

var (
	ErrUnknownReceiver = errors.New("unknown receiver")
	ErrHopLimit        = errors.New("hop limit exceeded")
)

type Handler interface {
	Handle(ctx context.Context, env *models.Envelope) *models.Envelope
}

type HandlerFunc func(ctx context.Context, env *models.Envelope) *models.Envelope

func (f HandlerFunc) Handle(ctx context.Context, env *models.Envelope) *models.Envelope {
	return f(ctx, env)
}

// Hooks observe dispatch. Either field may be nil.
type Hooks struct {
	OnDispatch func(ctx context.Context, env *models.Envelope)
	OnDrop     func(ctx context.Context, env *models.Envelope, err error)
}

type Router struct {
	handlers map[string]Handler
	maxHops  int
	hooks    Hooks
}

func New(maxHops int, hooks Hooks) *Router {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Router{
		handlers: make(map[string]Handler),
		maxHops:  maxHops,
		hooks:    hooks,
	}
}

// Register binds name to h. The mapping is fixed at construction, so a
// duplicate name is a programming error and panics.
func (r *Router) Register(name string, h Handler) {
	if name == "" || h == nil {
		panic("router: empty name or nil handler")
	}
	if _, ok := r.handlers[name]; ok {
		panic(fmt.Sprintf("router: handler already registered for %q", name))
	}
	r.handlers[name] = h
}

type depthKey struct{}

// Depth returns how many dispatches enclose ctx.
func Depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Dispatch invokes the handler registered for env.Receiver and returns what it
// returns.
func (r *Router) Dispatch(ctx context.Context, env *models.Envelope) (*models.Envelope, error) {
	h, ok := r.handlers[env.Receiver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReceiver, env.Receiver)
	}

	depth := Depth(ctx) + 1
	if depth > r.maxHops {
		return nil, fmt.Errorf("%w: %d hops, envelope %s to %q", ErrHopLimit, depth, env.ID, env.Receiver)
	}

	if r.hooks.OnDispatch != nil {
		r.hooks.OnDispatch(ctx, env)
	}
	return h.Handle(context.WithValue(ctx, depthKey{}, depth), env), nil
}

// Route is Dispatch for stages: failures are logged and the envelope dropped.
func (r *Router) Route(ctx context.Context, env *models.Envelope) *models.Envelope {
	out, err := r.Dispatch(ctx, env)
	if err != nil {
		slog.Warn("dropping envelope",
			"envelope_id", env.ID,
			"kind", env.Kind,
			"sender", env.Sender,
			"receiver", env.Receiver,
			"error", err,
		)
		if r.hooks.OnDrop != nil {
			r.hooks.OnDrop(ctx, env, err)
		}
		return nil
	}
	return out
}
