package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
)

type Intake struct {
	store    repository.IncidentRepository
	geocoder Geocoder
	router   Router
	autopush bool
}

// NewIntake builds the intake stage. geocoder may be nil, in which case place
// names are never resolved.
func NewIntake(store repository.IncidentRepository, geocoder Geocoder, router Router, autopush bool) *Intake {
	return &Intake{
		store:    store,
		geocoder: geocoder,
		router:   router,
		autopush: autopush,
	}
}

// Accept creates and persists an incident from r. With autopush on, the
// report envelope is routed to triage before Accept returns; otherwise the
// caller dispatches it.
func (s *Intake) Accept(ctx context.Context, r models.Report) (*models.Envelope, error) {
	env, err := s.Prepare(ctx, r)
	if err != nil {
		return nil, err
	}

	if s.autopush {
		slog.Info("incident created", "incident_id", env.IncidentID())
		s.router.Route(ctx, env)
	} else {
		slog.Info("incident staged for manual routing", "incident_id", env.IncidentID())
	}
	return env, nil
}

// Prepare persists the incident and returns its report envelope without routing it.
func (s *Intake) Prepare(ctx context.Context, r models.Report) (*models.Envelope, error) {
	lat, lon := r.Lat, r.Lon
	if lat != nil && lon != nil && !(models.Coordinates{Latitude: *lat, Longitude: *lon}).Valid() {
		slog.Warn("dropping invalid report coordinates", "reporter", r.Reporter)
		lat, lon = nil, nil
	}
	if (lat == nil || lon == nil) && r.PlaceText != "" && s.geocoder != nil {
		lat, lon = nil, nil
		if c := s.geocoder.Geocode(ctx, r.PlaceText); c != nil {
			lat, lon = &c.Latitude, &c.Longitude
		}
	}

	raw := r.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("error encoding raw report: %w", err)
	}

	inc := &models.Incident{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Reporter:  r.Reporter,
		Text:      r.Text,
		Lat:       lat,
		Lon:       lon,
		RawJSON:   rawJSON,
	}
	if err := s.store.SaveIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("error saving incident: %w", err)
	}

	return models.NewEnvelope(NameIntake, NameTriage, models.KindReport, inc), nil
}

// Handle accepts a report envelope addressed to intake and always pushes the
// resulting incident on to triage.
func (s *Intake) Handle(ctx context.Context, env *models.Envelope) *models.Envelope {
	if env.Kind != models.KindReport {
		return nil
	}
	r, ok := env.Payload.(*models.Report)
	if !ok || r == nil {
		return nil
	}

	out, err := s.Prepare(ctx, *r)
	if err != nil {
		slog.Error("intake failed", "envelope_id", env.ID, "error", err)
		return nil
	}
	s.router.Route(ctx, out)
	return out
}
