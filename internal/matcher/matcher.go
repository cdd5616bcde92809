package matcher

import (
	"cmp"
	"errors"
	"math"
	"slices"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

const EarthRadiusKm = 6371.0

var ErrInvalidCoordinate = errors.New("invalid coordinate")

type Query struct {
	RadiusKm float64
	Limit    int
}

var DefaultQuery = Query{RadiusKm: 50, Limit: 5}

type Nearby struct {
	Resource   models.Resource
	DistanceKm float64
}

type Matcher struct {
	catalog []models.Resource
	byID    map[string]int
}

func New(catalog []models.Resource) *Matcher {
	m := &Matcher{
		catalog: slices.Clone(catalog),
		byID:    make(map[string]int, len(catalog)),
	}
	for i, r := range m.catalog {
		if _, dup := m.byID[r.ID]; !dup {
			m.byID[r.ID] = i
		}
	}
	return m
}

func (m *Matcher) Catalog() []models.Resource {
	return slices.Clone(m.catalog)
}

// Lookup returns the catalog entry with the given id. The first entry wins
// when ids repeat.
func (m *Matcher) Lookup(id string) (models.Resource, bool) {
	i, ok := m.byID[id]
	if !ok {
		return models.Resource{}, false
	}
	return m.catalog[i], true
}

// FindNearby returns catalog entries within q.RadiusKm of origin, nearest
// first, truncated to q.Limit. A nil origin yields no results.
func (m *Matcher) FindNearby(origin *models.Coordinates, q Query) []Nearby {
	if origin == nil || ValidateCoordinates(*origin) != nil {
		return nil
	}
	if q.Limit <= 0 {
		q.Limit = DefaultQuery.Limit
	}

	scored := make([]Nearby, 0, len(m.catalog))
	for _, r := range m.catalog {
		if ValidateCoordinates(r.Coordinates()) != nil {
			continue
		}
		d := HaversineKm(*origin, r.Coordinates())
		if d <= q.RadiusKm {
			scored = append(scored, Nearby{Resource: r, DistanceKm: d})
		}
	}

	slices.SortStableFunc(scored, func(a, b Nearby) int {
		return cmp.Compare(a.DistanceKm, b.DistanceKm)
	})
	if len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}
	return scored
}

// Allocate groups the nearby resources by type, keeping distance order within
// each type.
func Allocate(nearby []Nearby) models.Allocation {
	allocation := make(models.Allocation)
	for _, n := range nearby {
		allocation.Add(n.Resource.Type, n.Resource.ID)
	}
	return allocation
}

// HaversineKm is the great-circle distance between a and b on a sphere.
func HaversineKm(a, b models.Coordinates) float64 {
	phi1 := a.Latitude * math.Pi / 180
	phi2 := b.Latitude * math.Pi / 180
	dPhi := (b.Latitude - a.Latitude) * math.Pi / 180
	dLambda := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func ValidateCoordinates(c models.Coordinates) error {
	if !c.Valid() {
		return ErrInvalidCoordinate
	}
	return nil
}
