package router

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

func TestDispatch_CallsRegisteredHandler(t *testing.T) {
	r := New(0, Hooks{})
	var got *models.Envelope
	reply := models.NewEnvelope("b", "a", models.KindTriageResult, nil)
	r.Register("b", HandlerFunc(func(_ context.Context, env *models.Envelope) *models.Envelope {
		got = env
		return reply
	}))

	env := models.NewEnvelope("a", "b", models.KindReport, nil)
	out, err := r.Dispatch(context.Background(), env)

	require.NoError(t, err)
	assert.Same(t, env, got)
	assert.Same(t, reply, out)
}

func TestDispatch_UnknownReceiver(t *testing.T) {
	r := New(0, Hooks{})
	_, err := r.Dispatch(context.Background(), models.NewEnvelope("a", "nobody", models.KindReport, nil))
	assert.True(t, errors.Is(err, ErrUnknownReceiver))
}

func TestRoute_DropsUnknownReceiver(t *testing.T) {
	var dropped error
	r := New(0, Hooks{OnDrop: func(_ context.Context, _ *models.Envelope, err error) {
		dropped = err
	}})

	out := r.Route(context.Background(), models.NewEnvelope("a", "nobody", models.KindReport, nil))
	assert.Nil(t, out)
	assert.True(t, errors.Is(dropped, ErrUnknownReceiver))
}

func TestRoute_RecursiveDispatchIsSynchronous(t *testing.T) {
	var order []string
	var r *Router
	r = New(0, Hooks{OnDispatch: func(_ context.Context, env *models.Envelope) {
		order = append(order, "dispatch:"+env.Receiver)
	}})
	r.Register("first", HandlerFunc(func(ctx context.Context, env *models.Envelope) *models.Envelope {
		out := models.NewEnvelope("first", "second", models.KindTriageResult, nil)
		r.Route(ctx, out)
		order = append(order, "first returns")
		return out
	}))
	r.Register("second", HandlerFunc(func(ctx context.Context, env *models.Envelope) *models.Envelope {
		order = append(order, "second depth="+strconv.Itoa(Depth(ctx)))
		return nil
	}))

	r.Route(context.Background(), models.NewEnvelope("ext", "first", models.KindReport, nil))

	assert.Equal(t, []string{
		"dispatch:first",
		"dispatch:second",
		"second depth=2",
		"first returns",
	}, order)
}

func TestRoute_HopLimitStopsCycles(t *testing.T) {
	var r *Router
	calls := 0
	var dropped error
	r = New(4, Hooks{OnDrop: func(_ context.Context, _ *models.Envelope, err error) {
		dropped = err
	}})
	// Misconfigured handler that addresses itself forever.
	r.Register("loop", HandlerFunc(func(ctx context.Context, env *models.Envelope) *models.Envelope {
		calls++
		return r.Route(ctx, models.NewEnvelope("loop", "loop", env.Kind, nil))
	}))

	out := r.Route(context.Background(), models.NewEnvelope("ext", "loop", models.KindReport, nil))

	assert.Nil(t, out)
	assert.Equal(t, 4, calls)
	assert.True(t, errors.Is(dropped, ErrHopLimit))
}

func TestRegister_DuplicatePanics(t *testing.T) {
	r := New(0, Hooks{})
	h := HandlerFunc(func(context.Context, *models.Envelope) *models.Envelope { return nil })
	r.Register("triage", h)
	assert.Panics(t, func() { r.Register("triage", h) })
}
