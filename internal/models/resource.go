package models

// Resource is a static catalog entry.
type Resource struct {
	ID        string  `json:"id" yaml:"id"`
	Type      string  `json:"type" yaml:"type"`
	Latitude  float64 `json:"lat" yaml:"lat"`
	Longitude float64 `json:"lon" yaml:"lon"`
	Available bool    `json:"available" yaml:"available"`
}

func (r *Resource) Coordinates() Coordinates {
	return Coordinates{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
}

// Allocation maps a resource type to resource ids, nearest first.
type Allocation map[string][]string

func (a Allocation) Add(resourceType, id string) {
	a[resourceType] = append(a[resourceType], id)
}

func (a Allocation) Clone() Allocation {
	if a == nil {
		return nil
	}
	cp := make(Allocation, len(a))
	for k, ids := range a {
		cp[k] = append([]string(nil), ids...)
	}
	return cp
}
