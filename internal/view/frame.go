package view

import (
	"sync"
	"time"

	"netprobe/internal/dashboard"
	"netprobe/internal/eventbus"
)

// Chart is the latest content of one history chart.
type Chart struct {
	Labels []string           `json:"labels"`
	Series []dashboard.Series `json:"series"`
}

// Snapshot is a point-in-time copy of a Frame.
type Snapshot struct {
	Version uint64             `json:"version"`
	Updated time.Time          `json:"updated"`
	Gauges  map[string]float64 `json:"gauges"`
	Charts  map[string]Chart   `json:"charts"`
	Texts   map[string]string  `json:"texts"`
	Selects map[string]string  `json:"selects"`
	Panels  map[string]bool    `json:"panels"`
}

// Frame keeps the most recent value of every widget. Each mutation is
// published on the bus (when one is set) under the write lock, tagged with
// the frame version it produced, so subscribers see mutations in apply order.
type Frame struct {
	bus eventbus.Bus
	now func() time.Time

	mu      sync.RWMutex
	version uint64
	updated time.Time
	gauges  map[string]float64
	charts  map[string]Chart
	texts   map[string]string
	selects map[string]string
	panels  map[string]bool
}

func NewFrame(bus eventbus.Bus) *Frame {
	return &Frame{
		bus:     bus,
		now:     time.Now,
		gauges:  map[string]float64{},
		charts:  map[string]Chart{},
		texts:   map[string]string{},
		selects: map[string]string{},
		panels:  map[string]bool{},
	}
}

var _ dashboard.Sink = (*Frame)(nil)

func (f *Frame) SetGauge(id string, value float64) {
	f.update(eventbus.TypeGauge, id, value, func() { f.gauges[id] = value })
}

func (f *Frame) SetSeries(id string, labels []string, series []dashboard.Series) {
	c := Chart{Labels: append([]string(nil), labels...), Series: cloneSeries(series)}
	f.update(eventbus.TypeSeries, id, c, func() { f.charts[id] = c })
}

func (f *Frame) SetText(id, text string) {
	f.update(eventbus.TypeText, id, text, func() { f.texts[id] = text })
}

func (f *Frame) SetSelect(id, value string) {
	f.update(eventbus.TypeSelect, id, value, func() { f.selects[id] = value })
}

func (f *Frame) SetPanelVisible(id string, visible bool) {
	f.update(eventbus.TypePanel, id, visible, func() { f.panels[id] = visible })
}

func (f *Frame) update(typ, id string, data any, apply func()) {
	now := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()
	apply()
	f.version++
	f.updated = now

	if f.bus != nil {
		f.bus.Publish(eventbus.Event{Type: typ, ID: id, Version: f.version, Time: now, Data: data})
	}
}

// Text returns the current content of a text panel.
func (f *Frame) Text(id string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.texts[id]
}

// Gauge returns the current value of a gauge.
func (f *Frame) Gauge(id string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.gauges[id]
	return v, ok
}

// Snapshot copies the frame. The copy shares no maps with the frame.
func (f *Frame) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Snapshot{
		Version: f.version,
		Updated: f.updated,
		Gauges:  make(map[string]float64, len(f.gauges)),
		Charts:  make(map[string]Chart, len(f.charts)),
		Texts:   make(map[string]string, len(f.texts)),
		Selects: make(map[string]string, len(f.selects)),
		Panels:  make(map[string]bool, len(f.panels)),
	}
	for k, v := range f.gauges {
		s.Gauges[k] = v
	}
	for k, v := range f.charts {
		s.Charts[k] = v
	}
	for k, v := range f.texts {
		s.Texts[k] = v
	}
	for k, v := range f.selects {
		s.Selects[k] = v
	}
	for k, v := range f.panels {
		s.Panels[k] = v
	}
	return s
}

func cloneSeries(in []dashboard.Series) []dashboard.Series {
	out := make([]dashboard.Series, len(in))
	for i, s := range in {
		s.Values = append([]dashboard.Value(nil), s.Values...)
		out[i] = s
	}
	return out
}
