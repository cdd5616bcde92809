package api

import (
	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON maps located incidents to points. Incidents without coordinates
// have no geometry and are left out.
func toGeoJSON(incidents []models.Incident) FeatureCollection {
	features := make([]Feature, 0, len(incidents))

	for _, inc := range incidents {
		c := inc.Coordinates()
		if c == nil {
			continue
		}
		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{c.Longitude, c.Latitude},
			},
			Properties: map[string]any{
				"id":         inc.ID,
				"reporter":   inc.Reporter,
				"text":       inc.Text,
				"severity":   inc.Severity,
				"created_at": inc.CreatedAt,
				"triage_ts":  inc.TriageTS,
				"allocation": inc.Allocation,
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
