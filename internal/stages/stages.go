// Package stages holds the four pipeline stage handlers. Each consumes one
// envelope kind, re-persists the whole incident, and emits at most one
// envelope through the router. Handlers never return errors to the router:
// failures are logged and the envelope is absorbed.
package stages

import (
	"context"

	"github.com/mr1hm/go-relief-pipeline/internal/matcher"
	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

// Receiver names the router dispatches on.
const (
	NameIntake      = "intake"
	NameTriage      = "triage"
	NameCoordinator = "coordinator"
	NameResource    = "resource"
)

type Router interface {
	Route(ctx context.Context, env *models.Envelope) *models.Envelope
}

type Geocoder interface {
	Geocode(ctx context.Context, place string) *models.Coordinates
}

type Matcher interface {
	FindNearby(origin *models.Coordinates, q matcher.Query) []matcher.Nearby
}
