package stages

import (
	"context"
	"log/slog"
	"time"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
)

type Coordinator struct {
	store  repository.IncidentRepository
	router Router
}

func NewCoordinator(store repository.IncidentRepository, router Router) *Coordinator {
	return &Coordinator{
		store:  store,
		router: router,
	}
}

func (s *Coordinator) Handle(ctx context.Context, env *models.Envelope) *models.Envelope {
	switch env.Kind {
	case models.KindTriageResult:
		return s.onTriageResult(ctx, env)
	case models.KindResourceAllocation:
		s.onAllocation(ctx, env)
	}
	return nil
}

func (s *Coordinator) onTriageResult(ctx context.Context, env *models.Envelope) *models.Envelope {
	inc, ok := env.Payload.(*models.Incident)
	if !ok || inc == nil {
		return nil
	}

	if err := s.store.SaveIncident(ctx, inc); err != nil {
		slog.Error("coordinator save failed", "incident_id", inc.ID, "error", err)
		return nil
	}
	if !inc.Severity.NeedsResources() {
		slog.Debug("no resources requested", "incident_id", inc.ID, "severity", inc.Severity)
		return nil
	}

	out := models.NewEnvelope(NameCoordinator, NameResource, models.KindResourceRequest, &models.ResourceRequest{Incident: inc})
	s.router.Route(ctx, out)
	return out
}

// onAllocation folds the allocation onto the stored incident. This is the
// terminal hop of a traversal.
func (s *Coordinator) onAllocation(ctx context.Context, env *models.Envelope) {
	p, ok := env.Payload.(*models.ResourceAllocation)
	if !ok || p == nil {
		return
	}

	inc, err := s.store.GetIncident(ctx, p.IncidentID)
	if err != nil {
		slog.Error("coordinator load failed", "incident_id", p.IncidentID, "error", err)
		return
	}
	if inc == nil {
		slog.Warn("allocation for unknown incident", "incident_id", p.IncidentID)
		return
	}

	ts := time.Now().UTC()
	inc.Allocation = p.Allocation.Clone()
	inc.AllocatedAt = &ts
	if err := s.store.SaveIncident(ctx, inc); err != nil {
		slog.Error("coordinator save failed", "incident_id", inc.ID, "error", err)
		return
	}
	slog.Info("allocation recorded", "incident_id", inc.ID, "resource_types", len(inc.Allocation))
}
