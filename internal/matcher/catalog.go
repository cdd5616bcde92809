package matcher

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() []models.Resource {
	return []models.Resource{
		{ID: "vol-1", Type: "volunteer", Latitude: 20.5, Longitude: 72.5, Available: true},
		{ID: "shel-1", Type: "shelter", Latitude: 20.8, Longitude: 72.7, Available: true},
		{ID: "med-1", Type: "medical_kit", Latitude: 20.6, Longitude: 72.6, Available: true},
	}
}

type catalogFile struct {
	Resources []catalogEntry `yaml:"resources"`
}

// Coordinates are decoded loosely so a bad entry can be skipped instead of
// failing the whole file.
type catalogEntry struct {
	ID        string `yaml:"id"`
	Type      string `yaml:"type"`
	Lat       any    `yaml:"lat"`
	Lon       any    `yaml:"lon"`
	Available *bool  `yaml:"available"`
}

// LoadCatalog reads a YAML resource catalog. Entries with missing or
// non-numeric coordinates are logged and skipped.
func LoadCatalog(path string) ([]models.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) ([]models.Resource, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error decoding catalog: %w", err)
	}

	resources := make([]models.Resource, 0, len(file.Resources))
	for _, e := range file.Resources {
		r, err := e.resource()
		if err != nil {
			slog.Warn("skipping catalog entry", "id", e.ID, "error", err)
			continue
		}
		resources = append(resources, r)
	}
	return resources, nil
}

func (e catalogEntry) resource() (models.Resource, error) {
	if e.ID == "" || e.Type == "" {
		return models.Resource{}, fmt.Errorf("id and type are required")
	}
	lat, err := toFloat(e.Lat)
	if err != nil {
		return models.Resource{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := toFloat(e.Lon)
	if err != nil {
		return models.Resource{}, fmt.Errorf("lon: %w", err)
	}

	r := models.Resource{
		ID:        e.ID,
		Type:      e.Type,
		Latitude:  lat,
		Longitude: lon,
		Available: e.Available == nil || *e.Available,
	}
	if err := ValidateCoordinates(r.Coordinates()); err != nil {
		return models.Resource{}, err
	}
	return r, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidCoordinate, v)
	}
}
