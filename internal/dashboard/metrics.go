package dashboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes recorded per task.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Metrics records collector fetches per task. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	fetches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the fetch metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netprobe",
			Subsystem: "dashboard",
			Name:      "fetch_total",
			Help:      "Collector fetches by task and outcome",
		}, []string{"task", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "netprobe",
			Subsystem: "dashboard",
			Name:      "fetch_seconds",
			Help:      "Collector fetch latency by task",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15, 60},
		}, []string{"task"}),
	}
}

func (m *Metrics) observe(task, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(task, outcome).Inc()
	m.duration.WithLabelValues(task).Observe(took.Seconds())
}
