package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"netprobe/internal/collector"
	"netprobe/internal/storage"
	logx "netprobe/pkg/logx"
)

// Collector is the subset of the collector API the engine consumes.
type Collector interface {
	RecentScores(ctx context.Context, limit int) ([]collector.Sample, error)
	Config(ctx context.Context) (*collector.ConfigSnapshot, error)
	SpeedtestHistory(ctx context.Context, limit int) ([]collector.SpeedtestResult, error)
	SpeedtestLatest(ctx context.Context) (*collector.SpeedtestResult, error)
	RunSpeedtest(ctx context.Context) (*collector.SpeedtestResult, error)
}

// Task names, used for goroutine names, logs and metrics.
const (
	TaskMetrics          = "metrics"
	TaskSpeedtestHistory = "speedtest.history"
	TaskSpeedtestSummary = "speedtest.summary"
	TaskSpeedtestRun     = "speedtest.run"
	TaskConfig           = "config"
	TaskCountdown        = "countdown"
)

type Options struct {
	// Cadence is the collector's nominal seconds between samples.
	Cadence       int
	Range         string
	RangeControls []string

	Store    storage.Store
	Metrics  *Metrics
	Logger   logx.Logger
	Location *time.Location
	Now      func() time.Time
}

// Session holds all mutable dashboard state for one client.
//
// Tasks run without mutual exclusion between them: each replaces its own
// view region wholesale and the last completed fetch wins. The locks here
// only keep memory access safe.
type Session struct {
	ID string

	client  Collector
	sink    Sink
	log     logx.Logger
	metrics *Metrics
	now     func() time.Time
	cadence int

	Ranges   *RangeControls
	Registry *SeriesRegistry
	Clock    *CountdownClock
	Prefs    *PreferenceStore

	mu      sync.Mutex
	loc     *time.Location
	samples []collector.Sample
	tests   []collector.SpeedtestResult
	config  *collector.ConfigSnapshot
}

func NewSession(client Collector, sink Sink, opt Options) *Session {
	log := opt.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	if sink == nil {
		sink = NopSink{}
	}
	cadence := opt.Cadence
	if cadence <= 0 {
		cadence = FallbackCadence
	}
	loc := opt.Location
	if loc == nil {
		loc = time.Local
	}
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	id := uuid.NewString()
	log = log.With(logx.String("session", id[:8]))

	return &Session{
		ID:       id,
		client:   client,
		sink:     sink,
		log:      log,
		metrics:  opt.Metrics,
		now:      now,
		cadence:  cadence,
		Ranges:   NewRangeControls(opt.RangeControls, opt.Range, cadence),
		Registry: NewSeriesRegistry(log.With(logx.String("comp", "series"))),
		Clock:    NewCountdownClock(cadence),
		Prefs:    NewPreferenceStore(opt.Store, log.With(logx.String("comp", "prefs"))),
		loc:      loc,
	}
}

func (s *Session) Cadence() int { return s.cadence }

func (s *Session) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Restore loads persisted panel preferences and pushes the initial
// control state to the sink.
func (s *Session) Restore(ctx context.Context) {
	s.Prefs.Load(ctx)
	for _, id := range Panels() {
		s.sink.SetPanelVisible(id, s.Prefs.Apply(id))
	}
	token := s.Ranges.Token()
	for _, id := range s.Ranges.IDs() {
		s.sink.SetSelect(id, token)
	}
	s.TickCountdown()
}

func (s *Session) observe(task, outcome string, start time.Time) {
	s.metrics.observe(task, outcome, time.Since(start))
}

func outcomeOf(err error, empty bool) string {
	switch {
	case err != nil:
		return OutcomeError
	case empty:
		return OutcomeEmpty
	default:
		return OutcomeOK
	}
}

// RefreshMetrics fetches recent samples at the current range limit and
// pushes gauges and history charts. An empty batch only updates the
// status text; errors leave the view untouched.
func (s *Session) RefreshMetrics(ctx context.Context) error {
	limit := s.Ranges.Limit()
	start := time.Now()
	batch, err := s.client.RecentScores(ctx, limit)
	s.observe(TaskMetrics, outcomeOf(err, len(batch) == 0), start)
	if err != nil {
		return fmt.Errorf("recent scores: %w", err)
	}
	if len(batch) == 0 {
		s.sink.SetText(PanelStatus, textNoData)
		return nil
	}

	last := batch[len(batch)-1]
	s.Clock.Observe(last.Unix())
	s.Registry.InitializeOnce(batch)

	s.mu.Lock()
	s.samples = batch
	loc := s.loc
	s.mu.Unlock()

	score := last.Score.Float()
	loss := last.AvgLossPct.Float()
	latency := last.AvgLatencyMs.Float()
	jitter := last.AvgJitterMs.Float()
	dns := last.AvgDNSMs.Float()

	s.sink.SetGauge(GaugeScore, gaugeValue(score, ScoreMax))
	s.sink.SetGauge(GaugeLoss, gaugeValue(loss, LossMax))
	s.sink.SetGauge(GaugeLatency, gaugeValue(latency, LatencyMax))
	s.sink.SetGauge(GaugeJitter, gaugeValue(jitter, JitterMax))
	s.sink.SetGauge(GaugeDNS, gaugeValue(dns, DNSMax))

	s.sink.SetText(TextID(GaugeScore), scoreText(score))
	s.sink.SetText(TextID(GaugeLoss), lossText(loss))
	s.sink.SetText(TextID(GaugeLatency), latencyText(latency))
	s.sink.SetText(TextID(GaugeJitter), jitterText(jitter))
	s.sink.SetText(TextID(GaugeDNS), dnsText(dns))

	ts := make([]int64, len(batch))
	cols := map[string][]Value{}
	for i, smp := range batch {
		ts[i] = smp.Unix()
		cols[GaugeScore] = append(cols[GaugeScore], Point(smp.Score.Float()))
		cols[GaugeLoss] = append(cols[GaugeLoss], Point(smp.AvgLossPct.Float()))
		cols[GaugeLatency] = append(cols[GaugeLatency], Point(smp.AvgLatencyMs.Float()))
		cols[GaugeJitter] = append(cols[GaugeJitter], Point(smp.AvgJitterMs.Float()))
	}
	labels := timeLabels(ts, loc)
	s.sink.SetSeries(ChartScore, labels, []Series{{Key: GaugeScore, Label: "Score", Values: cols[GaugeScore]}})
	s.sink.SetSeries(ChartLoss, labels, []Series{{Key: GaugeLoss, Label: "Loss %", Values: cols[GaugeLoss]}})
	s.sink.SetSeries(ChartLatency, labels, []Series{{Key: GaugeLatency, Label: "Latency ms", Values: cols[GaugeLatency]}})
	s.sink.SetSeries(ChartJitter, labels, []Series{{Key: GaugeJitter, Label: "Jitter ms", Values: cols[GaugeJitter]}})
	s.sink.SetSeries(ChartDNS, labels, s.Registry.Series(batch))

	s.sink.SetText(PanelStatus, lastSampleText(last.Unix(), loc))
	return nil
}

// RefreshSpeedtestHistory rebuilds the download/upload chart and the
// bandwidth gauge. Empty history changes nothing.
func (s *Session) RefreshSpeedtestHistory(ctx context.Context) error {
	limit := s.Ranges.Limit()
	start := time.Now()
	tests, err := s.client.SpeedtestHistory(ctx, limit)
	s.observe(TaskSpeedtestHistory, outcomeOf(err, len(tests) == 0), start)
	if err != nil {
		return fmt.Errorf("speedtest history: %w", err)
	}
	if len(tests) == 0 {
		return nil
	}

	s.mu.Lock()
	s.tests = tests
	loc := s.loc
	s.mu.Unlock()

	ts := make([]int64, len(tests))
	down := make([]float64, len(tests))
	up := make([]float64, len(tests))
	for i, t := range tests {
		ts[i] = int64(t.TS)
		down[i] = t.DownloadMbps.Float()
		up[i] = t.UploadMbps.Float()
	}
	s.sink.SetSeries(ChartSpeedtest, timeLabels(ts, loc), []Series{
		{Key: "download", Label: "Download Mbps", Values: Points(down...)},
		{Key: "upload", Label: "Upload Mbps", Values: Points(up...)},
	})
	s.sink.SetGauge(GaugeBandwidth, BandwidthGauge(down, up))
	return nil
}

// RefreshSpeedtestSummaryOnce fills the summary line from the latest
// result. Failures are dropped without touching the view.
func (s *Session) RefreshSpeedtestSummaryOnce(ctx context.Context) {
	start := time.Now()
	res, err := s.client.SpeedtestLatest(ctx)
	s.observe(TaskSpeedtestSummary, outcomeOf(err, res == nil), start)
	if err != nil {
		s.log.Debug("speedtest summary unavailable", logx.Err(err))
		return
	}
	if res == nil {
		s.sink.SetText(PanelSpeedtestSummary, textNoResult)
		return
	}
	s.sink.SetText(PanelSpeedtestSummary, res.Summary())
}

// RunSpeedtestNow triggers a collector speedtest and reports the outcome in
// the output panel and summary line, then refreshes the history chart.
// Concurrent runs are allowed; the last to finish owns the panels.
func (s *Session) RunSpeedtestNow(ctx context.Context) error {
	s.sink.SetText(PanelSpeedtestOutput, textRunning)
	s.sink.SetText(PanelSpeedtestSummary, textRunning)

	start := time.Now()
	res, err := s.client.RunSpeedtest(ctx)
	s.observe(TaskSpeedtestRun, outcomeOf(err, false), start)

	if err != nil {
		out, summary := speedtestFailure(err)
		s.sink.SetText(PanelSpeedtestOutput, out)
		s.sink.SetText(PanelSpeedtestSummary, summary)
		s.log.Info("speedtest failed", logx.Err(err))
	} else {
		s.sink.SetText(PanelSpeedtestOutput, res.Describe(s.Location()))
		s.sink.SetText(PanelSpeedtestSummary, res.Summary())
		s.log.Info("speedtest finished",
			logx.Float64("download_mbps", res.DownloadMbps.Float()),
			logx.Float64("upload_mbps", res.UploadMbps.Float()),
			logx.Float64("ping_ms", res.PingMs.Float()),
		)
	}

	if herr := s.RefreshSpeedtestHistory(ctx); herr != nil {
		s.log.Debug("speedtest history refresh failed", logx.Err(herr))
	}
	return err
}

func speedtestFailure(err error) (output, summary string) {
	var se *collector.ServerError
	var ae *collector.ApplicationError
	switch {
	case errors.As(err, &se):
		return "Speedtest failed: " + se.Error(), fmt.Sprintf("Speedtest failed (HTTP %d)", se.Status)
	case errors.As(err, &ae):
		if strings.TrimSpace(ae.Message) == "" {
			return collector.GenericSpeedtestFailure, collector.GenericSpeedtestFailure
		}
		return "Speedtest failed: " + ae.Message, "Speedtest failed: " + ae.Message
	case collector.IsTransport(err):
		return "Speedtest request failed: " + transportCause(err), "Speedtest failed (collector unreachable)"
	default:
		return "Speedtest failed: " + err.Error(), collector.GenericSpeedtestFailure
	}
}

func transportCause(err error) string {
	var te *collector.TransportError
	if errors.As(err, &te) && te.Err != nil {
		return te.Err.Error()
	}
	return err.Error()
}

// ReloadConfig fetches the collector settings, rebinds DNS labels and
// renders the settings panel. Transport failures are shown only for the
// initial load.
func (s *Session) ReloadConfig(ctx context.Context, initial bool) error {
	start := time.Now()
	cfg, err := s.client.Config(ctx)
	s.observe(TaskConfig, outcomeOf(err, false), start)
	if err != nil {
		if initial && collector.IsTransport(err) {
			s.sink.SetText(PanelSettings, "Failed to load collector settings: "+transportCause(err))
		}
		return fmt.Errorf("collector config: %w", err)
	}

	if s.Registry.Initialized() {
		s.log.Debug("dns labels arrived after series registration; existing labels kept")
	}
	s.Registry.SetLabels(cfg.DNSLabels())

	s.mu.Lock()
	s.config = cfg
	s.loc = cfg.Location(s.loc)
	s.mu.Unlock()

	if int(cfg.ProbeInterval) > 0 && int(cfg.ProbeInterval) != s.cadence {
		s.log.Warn("collector probe interval differs from local cadence",
			logx.Int("collector", int(cfg.ProbeInterval)),
			logx.Int("local", s.cadence),
		)
	}
	s.sink.SetText(PanelSettings, strings.Join(cfg.SettingsLines(), "\n"))
	return nil
}

// TickCountdown pushes the next-probe countdown for the current time.
func (s *Session) TickCountdown() {
	s.sink.SetText(PanelNextProbe, s.Clock.Text(s.now().Unix()))
}

// SelectRange moves every range control to token and returns the limit
// all subsequent fetches use.
func (s *Session) SelectRange(token string) int {
	limit := s.Ranges.Select(token)
	token = s.Ranges.Token()
	for _, id := range s.Ranges.IDs() {
		s.sink.SetSelect(id, token)
	}
	return limit
}

// SetPanelVisible shows or hides a panel and persists the full
// preference map.
func (s *Session) SetPanelVisible(ctx context.Context, panel string, visible bool) error {
	s.sink.SetPanelVisible(panel, visible)
	if _, err := s.Prefs.Toggle(ctx, panel, visible); err != nil {
		return fmt.Errorf("save panel preferences: %w", err)
	}
	return nil
}

// SetSeriesVisible toggles one DNS series and re-renders the DNS chart
// from the last batch.
func (s *Session) SetSeriesVisible(key string, visible bool) {
	s.Registry.SetVisible(SeriesKey(key), visible)

	s.mu.Lock()
	batch := s.samples
	loc := s.loc
	s.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	ts := make([]int64, len(batch))
	for i, smp := range batch {
		ts[i] = smp.Unix()
	}
	s.sink.SetSeries(ChartDNS, timeLabels(ts, loc), s.Registry.Series(batch))
}

// Status is a point-in-time summary of the session.
type Status struct {
	SessionID  string          `json:"session_id"`
	Range      string          `json:"range"`
	Limit      int             `json:"limit"`
	Cadence    int             `json:"cadence"`
	LastSample int64           `json:"last_sample,omitempty"`
	NextProbe  string          `json:"next_probe"`
	SeriesMode string          `json:"series_mode"`
	Series     []SeriesKey     `json:"series"`
	Panels     PanelVisibility `json:"panels"`
	Speedtests int             `json:"speedtests"`
}

func (s *Session) Status() Status {
	last, _ := s.Clock.Last()
	s.mu.Lock()
	tests := len(s.tests)
	s.mu.Unlock()
	return Status{
		SessionID:  s.ID,
		Range:      s.Ranges.Token(),
		Limit:      s.Ranges.Limit(),
		Cadence:    s.cadence,
		LastSample: last,
		NextProbe:  s.Clock.Text(s.now().Unix()),
		SeriesMode: s.Registry.Mode().String(),
		Series:     s.Registry.Keys(),
		Panels:     s.Prefs.Current(),
		Speedtests: tests,
	}
}

// LatestConfig returns the last fetched collector settings, if any.
func (s *Session) LatestConfig() *collector.ConfigSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}
