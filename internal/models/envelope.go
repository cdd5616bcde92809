package models

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindReport             Kind = "report"
	KindTriageResult       Kind = "triage_result"
	KindResourceRequest    Kind = "resource_request"
	KindResourceAllocation Kind = "resource_allocation"
)

// Envelope is the unit the router dispatches between stages. Receiver selects
// the handler; Payload depends on Kind:
//
//	report               *Incident (or *Report when addressed to intake)
//	triage_result        *Incident
//	resource_request     *ResourceRequest
//	resource_allocation  *ResourceAllocation
type Envelope struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Kind      Kind      `json:"kind"`
	Payload   any       `json:"payload"`
}

type ResourceRequest struct {
	Incident *Incident `json:"incident"`
}

type ResourceAllocation struct {
	IncidentID string     `json:"incident_id"`
	Allocation Allocation `json:"allocation"`
}

func NewEnvelope(sender, receiver string, kind Kind, payload any) *Envelope {
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Sender:    sender,
		Receiver:  receiver,
		Kind:      kind,
		Payload:   payload,
	}
}

// Incident returns the incident an envelope carries, by value or wrapped in a
// resource request. It returns nil for allocations, which only reference one by id.
func (e *Envelope) Incident() *Incident {
	switch p := e.Payload.(type) {
	case *Incident:
		return p
	case *ResourceRequest:
		if p != nil {
			return p.Incident
		}
	}
	return nil
}

// IncidentID returns the id of the incident an envelope carries or references.
func (e *Envelope) IncidentID() string {
	if p, ok := e.Payload.(*ResourceAllocation); ok && p != nil {
		return p.IncidentID
	}
	if inc := e.Incident(); inc != nil {
		return inc.ID
	}
	return ""
}

// Transition is the persisted record of one dispatched envelope.
type Transition struct {
	EnvelopeID string    `json:"envelope_id"`
	IncidentID string    `json:"incident_id"`
	Kind       Kind      `json:"kind"`
	Sender     string    `json:"sender"`
	Receiver   string    `json:"receiver"`
	Timestamp  time.Time `json:"timestamp"`
}

func TransitionFor(e *Envelope) *Transition {
	return &Transition{
		EnvelopeID: e.ID,
		IncidentID: e.IncidentID(),
		Kind:       e.Kind,
		Sender:     e.Sender,
		Receiver:   e.Receiver,
		Timestamp:  e.Timestamp,
	}
}
