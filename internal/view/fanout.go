package view

import "netprobe/internal/dashboard"

// Fanout forwards every call to each sink in order. Nil sinks are skipped.
type Fanout []dashboard.Sink

func NewFanout(sinks ...dashboard.Sink) Fanout {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f Fanout) SetGauge(id string, value float64) {
	for _, s := range f {
		s.SetGauge(id, value)
	}
}

func (f Fanout) SetSeries(id string, labels []string, series []dashboard.Series) {
	for _, s := range f {
		s.SetSeries(id, labels, series)
	}
}

func (f Fanout) SetText(id, text string) {
	for _, s := range f {
		s.SetText(id, text)
	}
}

func (f Fanout) SetSelect(id, value string) {
	for _, s := range f {
		s.SetSelect(id, value)
	}
}

func (f Fanout) SetPanelVisible(id string, visible bool) {
	for _, s := range f {
		s.SetPanelVisible(id, visible)
	}
}
