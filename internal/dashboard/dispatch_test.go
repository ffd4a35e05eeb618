package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"netprobe/internal/collector"
	"netprobe/internal/runtime/supervisor"
	logx "netprobe/pkg/logx"
)

func newTestDispatcher(fc *fakeCollector, sink Sink) (*Dispatcher, *syncSpawner) {
	sp := &syncSpawner{}
	s := newTestSession(fc, sink)
	return NewDispatcher(s, sp, logx.Nop()), sp
}

func TestRangeChangeSyncsAllControls(t *testing.T) {
	fc := &fakeCollector{
		samples: []collector.Sample{sample(1000, 90)},
		tests:   []collector.SpeedtestResult{{TS: 1000, DownloadMbps: 10}},
	}
	sink := newRecordingSink()
	d, sp := newTestDispatcher(fc, sink)

	if err := d.Dispatch(context.Background(), RangeChanged{Control: "footer", Token: "24h"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sink.selects["header"] != "24h" || sink.selects["footer"] != "24h" {
		t.Fatalf("selects = %v", sink.selects)
	}
	if len(fc.limits) != 2 || fc.limits[0] != 2880 || fc.limits[1] != 2880 {
		t.Fatalf("fetch limits = %v, want both 2880", fc.limits)
	}
	if len(sp.names) != 2 {
		t.Fatalf("spawned = %v", sp.names)
	}
}

func TestRangeChangeRejectsUnknown(t *testing.T) {
	d, _ := newTestDispatcher(&fakeCollector{}, newRecordingSink())
	ctx := context.Background()

	if err := d.Dispatch(ctx, RangeChanged{Control: "sidebar", Token: "1h"}); !errors.Is(err, ErrUnknownControl) {
		t.Fatalf("err = %v, want ErrUnknownControl", err)
	}
	if err := d.Dispatch(ctx, RangeChanged{Token: "fortnight"}); !errors.Is(err, ErrUnknownRange) {
		t.Fatalf("err = %v, want ErrUnknownRange", err)
	}
	if got := d.Session().Ranges.Token(); got != "1h" {
		t.Fatalf("token changed to %q", got)
	}
}

func TestPanelToggledPersists(t *testing.T) {
	sink := newRecordingSink()
	d, _ := newTestDispatcher(&fakeCollector{}, sink)
	ctx := context.Background()

	if err := d.Dispatch(ctx, PanelToggled{Panel: ChartDNS, Visible: false}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sink.panels[ChartDNS] {
		t.Fatal("panel still visible")
	}
	if got := d.Session().Prefs.Load(ctx); got[ChartDNS] {
		t.Fatalf("persisted = %v", got)
	}
	if err := d.Dispatch(ctx, PanelToggled{Panel: "nope"}); !errors.Is(err, ErrUnknownPanel) {
		t.Fatalf("err = %v", err)
	}
}

func TestSeriesToggledRerenders(t *testing.T) {
	fc := &fakeCollector{samples: []collector.Sample{sample(1000, 90, srv("A", 1), srv("B", 2))}}
	sink := newRecordingSink()
	d, _ := newTestDispatcher(fc, sink)
	ctx := context.Background()

	if err := d.Dispatch(ctx, SeriesToggled{Key: "B"}); !errors.Is(err, ErrUnknownSeries) {
		t.Fatalf("toggle before discovery: %v", err)
	}
	if err := d.Session().RefreshMetrics(ctx); err != nil {
		t.Fatalf("RefreshMetrics: %v", err)
	}
	if err := d.Dispatch(ctx, SeriesToggled{Key: "B", Visible: false}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	series := sink.series[ChartDNS].series
	if len(series) != 2 || series[0].Hidden || !series[1].Hidden {
		t.Fatalf("series = %+v", series)
	}
}

func TestRunSpeedtestIsNotSerialized(t *testing.T) {
	fc := &fakeCollector{runRes: &collector.SpeedtestResult{DownloadMbps: 1}}
	var observed []string
	d, _ := newTestDispatcher(fc, newRecordingSink())
	d.Observe(func(cmd Command) { observed = append(observed, cmd.Name()) })

	for i := 0; i < 2; i++ {
		if err := d.Dispatch(context.Background(), RunSpeedtest{}); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if fc.runCalls != 2 {
		t.Fatalf("run calls = %d, want 2", fc.runCalls)
	}
	if len(observed) != 2 || observed[0] != "run-speedtest" {
		t.Fatalf("observed = %v", observed)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Command
		wantErr bool
	}{
		{name: "range", args: []string{"24h"}, want: RangeChanged{Token: "24h"}},
		{name: "range", args: []string{"24h", "footer"}, want: RangeChanged{Token: "24h", Control: "footer"}},
		{name: "panel", args: []string{"dns", "off"}, want: PanelToggled{Panel: "dns"}},
		{name: "series", args: []string{"1.1.1.1", "on"}, want: SeriesToggled{Key: "1.1.1.1", Visible: true}},
		{name: "speedtest", want: RunSpeedtest{}},
		{name: "CONFIG", want: ConfigRequested{}},
		{name: "range", wantErr: true},
		{name: "panel", args: []string{"dns", "maybe"}, wantErr: true},
		{name: "reboot", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.name, tt.args)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseCommand(%q, %v) err = %v", tt.name, tt.args, err)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseCommand(%q, %v) = %#v, want %#v", tt.name, tt.args, got, tt.want)
		}
	}
}

func TestSchedulerRunsLoopsImmediately(t *testing.T) {
	fc := &fakeCollector{
		samples: []collector.Sample{sample(time.Now().Unix(), 90)},
		config:  &collector.ConfigSnapshot{ProbeInterval: 30},
	}
	sink := newRecordingSink()
	s := newTestSession(fc, sink)

	sup := supervisor.New(context.Background())
	sc := NewScheduler(s, sup, SchedulerConfig{}, logx.Nop())
	if m, h, c := sc.Intervals(); m != 30*time.Second || h != 30*time.Second || c != time.Second {
		t.Fatalf("intervals = %v %v %v", m, h, c)
	}
	sc.Start(sup.Context())

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := sink.gauge(GaugeScore); ok && sink.text(PanelSettings) != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("loops did not run at start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sup.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSchedulerIntervalFloor(t *testing.T) {
	s := newTestSession(&fakeCollector{}, NopSink{}, func(o *Options) { o.Cadence = 2 })
	sc := NewScheduler(s, &syncSpawner{}, SchedulerConfig{SpeedtestRefresh: time.Second}, logx.Nop())
	if m, h, _ := sc.Intervals(); m != MinTaskInterval || h != MinTaskInterval {
		t.Fatalf("intervals = %v %v, want floor %v", m, h, MinTaskInterval)
	}
}
