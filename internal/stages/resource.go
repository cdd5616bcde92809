package stages

import (
	"context"
	"log/slog"

	"github.com/mr1hm/go-relief-pipeline/internal/matcher"
	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

type ResourceAllocator struct {
	matcher Matcher
	router  Router
	query   matcher.Query
}

func NewResourceAllocator(m Matcher, router Router, q matcher.Query) *ResourceAllocator {
	return &ResourceAllocator{
		matcher: m,
		router:  router,
		query:   q,
	}
}

func (s *ResourceAllocator) Handle(ctx context.Context, env *models.Envelope) *models.Envelope {
	if env.Kind != models.KindResourceRequest {
		return nil
	}
	req, ok := env.Payload.(*models.ResourceRequest)
	if !ok || req == nil || req.Incident == nil {
		return nil
	}

	inc := req.Incident
	// Nil coordinates give an empty allocation, not a failure.
	allocation := matcher.Allocate(s.matcher.FindNearby(inc.Coordinates(), s.query))
	slog.Info("allocation proposed", "incident_id", inc.ID, "allocation", allocation)

	out := models.NewEnvelope(NameResource, NameCoordinator, models.KindResourceAllocation, &models.ResourceAllocation{
		IncidentID: inc.ID,
		Allocation: allocation,
	})
	s.router.Route(ctx, out)
	return out
}
