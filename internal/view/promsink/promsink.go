// Package promsink exposes dashboard widgets as Prometheus gauges so the
// same view can be scraped as well as rendered.
package promsink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"netprobe/internal/dashboard"
)

// Sink records gauges, the newest point of every chart series and panel
// visibility. Text and select updates are ignored.
type Sink struct {
	gauges *prometheus.GaugeVec
	last   *prometheus.GaugeVec
	panels *prometheus.GaugeVec
}

var _ dashboard.Sink = (*Sink)(nil)

func New(reg prometheus.Registerer) *Sink {
	f := promauto.With(reg)
	return &Sink{
		gauges: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "netprobe",
			Subsystem: "dashboard",
			Name:      "gauge",
			Help:      "Current dashboard gauge value",
		}, []string{"id"}),
		last: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "netprobe",
			Subsystem: "dashboard",
			Name:      "series_last",
			Help:      "Newest non-gap point of a chart series",
		}, []string{"chart", "series"}),
		panels: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "netprobe",
			Subsystem: "dashboard",
			Name:      "panel_visible",
			Help:      "1 when the panel is shown",
		}, []string{"panel"}),
	}
}

func (s *Sink) SetGauge(id string, value float64) {
	s.gauges.WithLabelValues(id).Set(value)
}

func (s *Sink) SetSeries(id string, _ []string, series []dashboard.Series) {
	for _, sr := range series {
		for i := len(sr.Values) - 1; i >= 0; i-- {
			if v := sr.Values[i]; v.OK {
				s.last.WithLabelValues(id, sr.Key).Set(v.V)
				break
			}
		}
	}
}

func (s *Sink) SetText(string, string)   {}
func (s *Sink) SetSelect(string, string) {}

func (s *Sink) SetPanelVisible(id string, visible bool) {
	v := 0.0
	if visible {
		v = 1
	}
	s.panels.WithLabelValues(id).Set(v)
}
