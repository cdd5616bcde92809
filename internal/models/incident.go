package models

import (
	"encoding/json"
	"math"
	"time"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// NeedsResources reports whether incidents of this severity get a resource request.
func (s Severity) NeedsResources() bool {
	return s == SeverityHigh || s == SeverityMedium
}

// Incident is mutated in place as it moves through the pipeline. Every save
// replaces the whole row, so callers always hand the store the full state.
type Incident struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Reporter  string          `json:"reporter"`
	Text      string          `json:"text"`
	Lat       *float64        `json:"lat"`
	Lon       *float64        `json:"lon"`
	Severity  Severity        `json:"severity,omitempty"` // empty until triaged
	TriageTS  *time.Time      `json:"triage_ts"`
	RawJSON   json.RawMessage `json:"raw_json,omitempty"`

	Allocation  Allocation `json:"allocation,omitempty"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty"`
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether c is a finite point within latitude and longitude bounds.
func (c Coordinates) Valid() bool {
	return validLatitude(c.Latitude) && validLongitude(c.Longitude)
}

func validLatitude(v float64) bool {
	return finite(v) && v >= -90 && v <= 90
}

func validLongitude(v float64) bool {
	return finite(v) && v >= -180 && v <= 180
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Coordinates returns nil unless both lat and lon are set.
func (i *Incident) Coordinates() *Coordinates {
	if i.Lat == nil || i.Lon == nil {
		return nil
	}
	return &Coordinates{
		Latitude:  *i.Lat,
		Longitude: *i.Lon,
	}
}

func (i *Incident) Triaged() bool {
	return i.Severity != "" && i.TriageTS != nil
}

// Clone returns a deep copy so stores never share memory with callers.
func (i *Incident) Clone() *Incident {
	cp := *i
	if i.Lat != nil {
		lat := *i.Lat
		cp.Lat = &lat
	}
	if i.Lon != nil {
		lon := *i.Lon
		cp.Lon = &lon
	}
	if i.TriageTS != nil {
		ts := *i.TriageTS
		cp.TriageTS = &ts
	}
	if i.AllocatedAt != nil {
		ts := *i.AllocatedAt
		cp.AllocatedAt = &ts
	}
	if i.RawJSON != nil {
		cp.RawJSON = append(json.RawMessage(nil), i.RawJSON...)
	}
	cp.Allocation = i.Allocation.Clone()
	return &cp
}

// SortKey is the timestamp incidents are listed by: triage time when present,
// creation time otherwise.
func (i *Incident) SortKey() time.Time {
	if i.TriageTS != nil {
		return *i.TriageTS
	}
	return i.CreatedAt
}

// Report is what an external caller hands to intake.
type Report struct {
	Reporter  string         `json:"reporter"`
	Text      string         `json:"text"`
	PlaceText string         `json:"place_text,omitempty"`
	Lat       *float64       `json:"lat,omitempty"`
	Lon       *float64       `json:"lon,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}
