package repository

import (
	"context"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

const DefaultListLimit = 25

// IncidentRepository stores incidents keyed by ID. SaveIncident replaces the
// whole row; there is no partial update.
type IncidentRepository interface {
	SaveIncident(ctx context.Context, inc *models.Incident) error
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	ListIncidents(ctx context.Context, limit int) ([]models.Incident, error)
}

type SeenRepository interface {
	MarkSeen(ctx context.Context, hash string) error
	IsSeen(ctx context.Context, hash string) (bool, error)
}

type GeocodeCache interface {
	CacheGeocode(ctx context.Context, place string, c models.Coordinates) error
	GetCachedGeocode(ctx context.Context, place string) (*models.Coordinates, error)
}

type TransitionRepository interface {
	RecordTransition(ctx context.Context, t *models.Transition) error
	ListTransitions(ctx context.Context, incidentID string) ([]models.Transition, error)
}

// Store is the single shared store every stage is handed at construction.
type Store interface {
	IncidentRepository
	SeenRepository
	GeocodeCache
	TransitionRepository
	Close() error
}

var (
	_ Store = (*SQLiteDB)(nil)
	_ Store = (*MemoryStore)(nil)
)
