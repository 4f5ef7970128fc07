package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the import pipeline.
type Metrics struct {
	imports  *prometheus.CounterVec
	rows     *prometheus.CounterVec
	slots    prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		imports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jury",
			Name:      "imports_total",
			Help:      "Imports by kind and result.",
		}, []string{"kind", "result"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jury",
			Name:      "import_rows_total",
			Help:      "Imported rows by kind and outcome (accepted, rejected).",
		}, []string{"kind", "outcome"}),
		slots: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "jury",
			Name:      "slots_allocated_total",
			Help:      "Table numbers handed out and saved.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jury",
			Name:      "import_duration_seconds",
			Help:      "Import duration by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

// observe records the outcome of one import.
func (m *Metrics) observe(kind ImportKind, accepted, rejected int, slots int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.imports.WithLabelValues(string(kind), result).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	m.rows.WithLabelValues(string(kind), "accepted").Add(float64(accepted))
	m.rows.WithLabelValues(string(kind), "rejected").Add(float64(rejected))
	m.slots.Add(float64(slots))
}
