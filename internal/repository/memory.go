package repository

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

// MemoryStore keeps everything in maps. Suitable for tests and embedded use.
// Values are copied on the way in and out, matching the row semantics of SQLiteDB.
type MemoryStore struct {
	mu          sync.RWMutex
	incidents   map[string]*models.Incident
	seen        map[string]time.Time
	geocodes    map[string]models.Coordinates
	transitions []models.Transition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents: make(map[string]*models.Incident),
		seen:      make(map[string]time.Time),
		geocodes:  make(map[string]models.Coordinates),
	}
}

func (s *MemoryStore) SaveIncident(_ context.Context, inc *models.Incident) error {
	if inc.ID == "" {
		return errors.New("incident id is required")
	}
	cp := inc.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[inc.ID] = cp
	return nil
}

func (s *MemoryStore) GetIncident(_ context.Context, id string) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, nil
	}
	return inc.Clone(), nil
}

func (s *MemoryStore) ListIncidents(_ context.Context, limit int) ([]models.Incident, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	all := make([]models.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		all = append(all, *inc.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(all, func(a, b models.Incident) int {
		return b.SortKey().Compare(a.SortKey())
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) MarkSeen(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[hash] = time.Now().UTC()
	return nil
}

func (s *MemoryStore) IsSeen(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[hash]
	return ok, nil
}

func (s *MemoryStore) CacheGeocode(_ context.Context, place string, c models.Coordinates) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geocodes[place] = c
	return nil
}

func (s *MemoryStore) GetCachedGeocode(_ context.Context, place string) (*models.Coordinates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.geocodes[place]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) RecordTransition(_ context.Context, t *models.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transitions {
		if s.transitions[i].EnvelopeID == t.EnvelopeID {
			s.transitions[i] = *t
			return nil
		}
	}
	s.transitions = append(s.transitions, *t)
	return nil
}

func (s *MemoryStore) ListTransitions(_ context.Context, incidentID string) ([]models.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Transition
	for _, t := range s.transitions {
		if t.IncidentID == incidentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
