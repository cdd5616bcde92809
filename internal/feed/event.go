package feed

import (
	"time"

	"github.com/mr1hm/go-relief-pipeline/internal/matcher"
	"github.com/mr1hm/go-relief-pipeline/internal/models"
)

const (
	StageTriaged        = "Triaged"
	StageResourcesReady = "Resources ready"

	SourceWeb     = "web"
	SourceHistory = "history"
)

// ResourceRef is an allocated resource as shown on the dashboard.
type ResourceRef struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type TimelineEntry struct {
	Label string     `json:"label"`
	TS    *time.Time `json:"ts"`
}

// Event is one incident's dashboard view after a pass through the pipeline.
type Event struct {
	ID         string                   `json:"id"`
	Reporter   string                   `json:"reporter"`
	Text       string                   `json:"text"`
	Severity   models.Severity          `json:"severity,omitempty"`
	Lat        *float64                 `json:"lat"`
	Lon        *float64                 `json:"lon"`
	CreatedAt  time.Time                `json:"created_at"`
	TriageTS   *time.Time               `json:"triage_ts"`
	Stage      string                   `json:"stage"`
	Allocation map[string][]ResourceRef `json:"allocation"`
	Source     string                   `json:"source"`
	Timeline   []TimelineEntry          `json:"timeline"`
}

func NewEvent(inc *models.Incident, allocation map[string][]ResourceRef, source string) *Event {
	if allocation == nil {
		allocation = map[string][]ResourceRef{}
	}

	stage := StageTriaged
	var allocatedAt *time.Time
	if len(allocation) > 0 {
		stage = StageResourcesReady
		allocatedAt = inc.AllocatedAt
	}

	createdAt := inc.CreatedAt
	return &Event{
		ID:         inc.ID,
		Reporter:   inc.Reporter,
		Text:       inc.Text,
		Severity:   inc.Severity,
		Lat:        inc.Lat,
		Lon:        inc.Lon,
		CreatedAt:  inc.CreatedAt,
		TriageTS:   inc.TriageTS,
		Stage:      stage,
		Allocation: allocation,
		Source:     source,
		Timeline: []TimelineEntry{
			{Label: "Receiver", TS: &createdAt},
			{Label: "Triage", TS: inc.TriageTS},
			{Label: "Resource", TS: allocatedAt},
		},
	}
}

// Details groups matched resources by type, nearest first.
func Details(nearby []matcher.Nearby) map[string][]ResourceRef {
	out := make(map[string][]ResourceRef)
	for _, n := range nearby {
		r := n.Resource
		out[r.Type] = append(out[r.Type], ResourceRef{ID: r.ID, Lat: r.Latitude, Lon: r.Longitude})
	}
	return out
}

// Resolve expands an allocation's ids into catalog entries. Ids missing from
// the catalog are dropped.
func Resolve(a models.Allocation, lookup func(id string) (models.Resource, bool)) map[string][]ResourceRef {
	out := make(map[string][]ResourceRef)
	for typ, ids := range a {
		for _, id := range ids {
			r, ok := lookup(id)
			if !ok {
				continue
			}
			out[typ] = append(out[typ], ResourceRef{ID: r.ID, Lat: r.Latitude, Lon: r.Longitude})
		}
	}
	return out
}
