package dashboard

import (
	"context"
	"sync"

	"netprobe/internal/collector"
)

type fakeCollector struct {
	mu sync.Mutex

	samples  []collector.Sample
	tests    []collector.SpeedtestResult
	latest   *collector.SpeedtestResult
	config   *collector.ConfigSnapshot
	runRes   *collector.SpeedtestResult
	err      error
	runErr   error
	limits   []int
	runCalls int
}

func (f *fakeCollector) RecentScores(_ context.Context, limit int) ([]collector.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	return f.samples, f.err
}

func (f *fakeCollector) Config(context.Context) (*collector.ConfigSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config, f.err
}

func (f *fakeCollector) SpeedtestHistory(_ context.Context, limit int) ([]collector.SpeedtestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	return f.tests, f.err
}

func (f *fakeCollector) SpeedtestLatest(context.Context) (*collector.SpeedtestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.err
}

func (f *fakeCollector) RunSpeedtest(context.Context) (*collector.SpeedtestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls++
	return f.runRes, f.runErr
}

func (f *fakeCollector) set(fn func(f *fakeCollector)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

type seriesCall struct {
	labels []string
	series []Series
}

type recordingSink struct {
	mu      sync.Mutex
	gauges  map[string]float64
	series  map[string]seriesCall
	texts   map[string]string
	selects map[string]string
	panels  map[string]bool
	history map[string][]string // text id -> every value written
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		gauges:  map[string]float64{},
		series:  map[string]seriesCall{},
		texts:   map[string]string{},
		selects: map[string]string{},
		panels:  map[string]bool{},
		history: map[string][]string{},
	}
}

func (r *recordingSink) SetGauge(id string, v float64) {
	r.mu.Lock()
	r.gauges[id] = v
	r.mu.Unlock()
}

func (r *recordingSink) SetSeries(id string, labels []string, series []Series) {
	r.mu.Lock()
	r.series[id] = seriesCall{labels: labels, series: series}
	r.mu.Unlock()
}

func (r *recordingSink) SetText(id, text string) {
	r.mu.Lock()
	r.texts[id] = text
	r.history[id] = append(r.history[id], text)
	r.mu.Unlock()
}

func (r *recordingSink) SetSelect(id, value string) {
	r.mu.Lock()
	r.selects[id] = value
	r.mu.Unlock()
}

func (r *recordingSink) SetPanelVisible(id string, visible bool) {
	r.mu.Lock()
	r.panels[id] = visible
	r.mu.Unlock()
}

func (r *recordingSink) text(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.texts[id]
}

func (r *recordingSink) gauge(id string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.gauges[id]
	return v, ok
}

// syncSpawner runs spawned work inline so tests observe its effects
// immediately.
type syncSpawner struct {
	mu    sync.Mutex
	names []string
}

func (s *syncSpawner) Go0(name string, fn func(ctx context.Context)) {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	fn(context.Background())
}

func sample(ts int64, score float64, dns ...collector.ServerLatency) collector.Sample {
	return collector.Sample{
		TS:           collector.Number(ts),
		Score:        collector.Number(score),
		AvgDNSMs:     collector.Number(20),
		DNSPerServer: collector.ServerLatencies(dns),
	}
}

func srv(name string, ms float64) collector.ServerLatency {
	return collector.ServerLatency{Server: name, Ms: collector.Number(ms)}
}
