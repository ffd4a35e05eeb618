package dashboard

import (
	"strconv"
)

// Sink receives normalized view state. It owns all rendering; the engine
// never touches a rendering surface directly.
//
// Implementations must be safe for concurrent use: tasks push
// independently.
type Sink interface {
	SetGauge(id string, value float64)
	SetSeries(id string, labels []string, series []Series)
	SetText(id, text string)
	SetSelect(id, value string)
	SetPanelVisible(id string, visible bool)
}

// Value is one point of a series. A zero Value is a gap.
type Value struct {
	V  float64
	OK bool
}

func Point(v float64) Value { return Value{V: v, OK: true} }

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.OK {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v.V, 'f', -1, 64), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value{}
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*v = Point(f)
	return nil
}

// Series is one line of a history chart.
type Series struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Values []Value `json:"values"`
	Hidden bool    `json:"hidden,omitempty"`
}

// Points builds a gap-free value slice.
func Points(vs ...float64) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = Point(v)
	}
	return out
}

// Panel, widget and control ids pushed to the sink.
const (
	PanelStatus           = "status"
	PanelNextProbe        = "next_probe"
	PanelSettings         = "settings"
	PanelSpeedtestOutput  = "speedtest_output"
	PanelSpeedtestSummary = "speedtest_summary"

	GaugeScore     = "score"
	GaugeLoss      = "loss"
	GaugeLatency   = "latency"
	GaugeJitter    = "jitter"
	GaugeDNS       = "dns"
	GaugeBandwidth = "bandwidth"

	ChartScore     = "score_history"
	ChartLoss      = "loss_history"
	ChartLatency   = "latency_history"
	ChartJitter    = "jitter_history"
	ChartDNS       = "dns_history"
	ChartSpeedtest = "speedtest_history"
)

// TextID is the text panel that accompanies a gauge.
func TextID(gauge string) string { return gauge + "_text" }

// Panels lists the show/hide-able panels, in page order.
func Panels() []string {
	return []string{
		GaugeScore, GaugeLoss, GaugeLatency, GaugeJitter, GaugeDNS,
		ChartScore, ChartLoss, ChartLatency, ChartJitter, ChartDNS,
		ChartSpeedtest, GaugeBandwidth, PanelSpeedtestOutput, PanelSettings,
	}
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) SetGauge(string, float64)             {}
func (NopSink) SetSeries(string, []string, []Series) {}
func (NopSink) SetText(string, string)               {}
func (NopSink) SetSelect(string, string)             {}
func (NopSink) SetPanelVisible(string, bool)         {}
