package geocode

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeCache    = "cache"
	outcomeNetwork  = "network"
	outcomeFallback = "fallback"
	outcomeMiss     = "miss"
)

// Metrics holds Prometheus metrics for geocoding lookups.
type Metrics struct {
	LookupsTotal *prometheus.CounterVec
	RetriesTotal prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relief_geocode_lookups_total",
			Help: "Geocode lookups by outcome (cache, network, fallback, miss).",
		}, []string{"outcome"}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relief_geocode_retries_total",
			Help: "Provider retries after transient failures.",
		}),
	}
	reg.MustRegister(m.LookupsTotal, m.RetriesTotal)
	return m
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}
