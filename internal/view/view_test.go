package view

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"netprobe/internal/dashboard"
	"netprobe/internal/eventbus"
)

func TestFramePublishesEveryMutation(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	f := NewFrame(bus)
	f.SetGauge(dashboard.GaugeScore, 97.5)
	f.SetText(dashboard.PanelStatus, "Last sample at 10:00:00")
	f.SetSelect("header", "24h")
	f.SetPanelVisible(dashboard.ChartDNS, false)
	f.SetSeries(dashboard.ChartScore, []string{"10:00"}, []dashboard.Series{{Key: "score", Values: dashboard.Points(97.5)}})

	want := []string{eventbus.TypeGauge, eventbus.TypeText, eventbus.TypeSelect, eventbus.TypePanel, eventbus.TypeSeries}
	for i, typ := range want {
		e := <-ch
		if e.Type != typ {
			t.Fatalf("event %d type = %q, want %q", i, e.Type, typ)
		}
		if e.Version != uint64(i+1) {
			t.Fatalf("event %d version = %d, want %d", i, e.Version, i+1)
		}
	}

	snap := f.Snapshot()
	if snap.Version != 5 {
		t.Fatalf("version = %d", snap.Version)
	}
	if snap.Gauges[dashboard.GaugeScore] != 97.5 || snap.Selects["header"] != "24h" || snap.Panels[dashboard.ChartDNS] {
		t.Fatalf("snapshot = %+v", snap)
	}
	if v, ok := f.Gauge(dashboard.GaugeScore); !ok || v != 97.5 {
		t.Fatalf("Gauge = %v, %v", v, ok)
	}
}

func TestFrameSnapshotIsDetached(t *testing.T) {
	f := NewFrame(nil)
	vals := dashboard.Points(1, 2)
	f.SetSeries("c", []string{"a", "b"}, []dashboard.Series{{Key: "k", Values: vals}})
	vals[0] = dashboard.Value{}

	snap := f.Snapshot()
	snap.Texts["x"] = "mutated"
	if f.Text("x") != "" {
		t.Fatal("snapshot shares text map with frame")
	}
	if got := snap.Charts["c"].Series[0].Values[0]; !got.OK || got.V != 1 {
		t.Fatalf("chart value = %+v, want copy taken at SetSeries", got)
	}
}

func TestSnapshotJSONKeepsGaps(t *testing.T) {
	f := NewFrame(nil)
	f.SetSeries("dns_history", []string{"a", "b"}, []dashboard.Series{{Key: "A", Label: "A", Values: []dashboard.Value{dashboard.Point(3), {}}}})

	b, err := json.Marshal(f.Snapshot().Charts["dns_history"])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"labels":["a","b"],"series":[{"key":"A","label":"A","values":[3,null]}]}`
	if string(b) != want {
		t.Fatalf("json = %s\nwant   %s", b, want)
	}
}

func TestFanoutForwards(t *testing.T) {
	a, b := NewFrame(nil), NewFrame(nil)
	fan := NewFanout(a, nil, b)
	if len(fan) != 2 {
		t.Fatalf("len = %d", len(fan))
	}
	fan.SetText("t", "hello")
	fan.SetGauge("g", 1)
	fan.SetSelect("s", "1h")
	fan.SetPanelVisible("p", true)
	fan.SetSeries("c", nil, nil)
	for _, f := range []*Frame{a, b} {
		if f.Text("t") != "hello" || f.Snapshot().Version != 5 {
			t.Fatalf("frame not updated: %+v", f.Snapshot())
		}
	}
}

func TestFrameEventsFollowApplyOrder(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(1024)
	defer unsub()

	f := NewFrame(bus)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				f.SetText(dashboard.PanelStatus, fmt.Sprintf("%d-%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	var last eventbus.Event
	for i := 0; i < 400; i++ {
		e := <-ch
		if e.Version != last.Version+1 {
			t.Fatalf("event %d version = %d after %d", i, e.Version, last.Version)
		}
		last = e
	}
	if got := f.Text(dashboard.PanelStatus); got != last.Data {
		t.Fatalf("frame text = %q, last event = %v", got, last.Data)
	}
	if snap := f.Snapshot(); snap.Version != last.Version {
		t.Fatalf("snapshot version = %d, last event = %d", snap.Version, last.Version)
	}
}
