package pipeline

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/router"
)

// Metrics holds Prometheus metrics for envelope routing.
type Metrics struct {
	EnvelopesTotal  *prometheus.CounterVec
	DroppedTotal    *prometheus.CounterVec
	TriagedTotal    *prometheus.CounterVec
	AllocationsSize prometheus.Histogram
	ProcessDuration prometheus.Histogram
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EnvelopesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relief_envelopes_total",
			Help: "Envelopes dispatched by kind and receiving stage.",
		}, []string{"kind", "receiver"}),
		DroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relief_envelopes_dropped_total",
			Help: "Envelopes dropped by the router, by reason.",
		}, []string{"reason"}),
		TriagedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relief_incidents_triaged_total",
			Help: "Incidents leaving triage, by severity.",
		}, []string{"severity"}),
		AllocationsSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relief_allocation_resources",
			Help:    "Resources proposed per allocation.",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 .. 10
		}),
		ProcessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relief_process_duration_seconds",
			Help:    "Duration of a full report traversal in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		}),
	}

	reg.MustRegister(
		m.EnvelopesTotal,
		m.DroppedTotal,
		m.TriagedTotal,
		m.AllocationsSize,
		m.ProcessDuration,
	)

	return m
}

// Hooks returns router hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() router.Hooks {
	return router.Hooks{
		OnDispatch: func(_ context.Context, env *models.Envelope) {
			m.EnvelopesTotal.WithLabelValues(string(env.Kind), env.Receiver).Inc()
			switch env.Kind {
			case models.KindTriageResult:
				if inc := env.Incident(); inc != nil {
					m.TriagedTotal.WithLabelValues(string(inc.Severity)).Inc()
				}
			case models.KindResourceAllocation:
				if p, ok := env.Payload.(*models.ResourceAllocation); ok && p != nil {
					n := 0
					for _, ids := range p.Allocation {
						n += len(ids)
					}
					m.AllocationsSize.Observe(float64(n))
				}
			}
		},
		OnDrop: func(_ context.Context, _ *models.Envelope, err error) {
			m.DroppedTotal.WithLabelValues(dropReason(err)).Inc()
		},
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, router.ErrUnknownReceiver):
		return "unknown_receiver"
	case errors.Is(err, router.ErrHopLimit):
		return "hop_limit"
	default:
		return "other"
	}
}
