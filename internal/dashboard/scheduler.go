package dashboard

import (
	"context"
	"time"

	logx "netprobe/pkg/logx"
)

// MinTaskInterval is the floor for every periodic collector task.
const MinTaskInterval = 10 * time.Second

// Spawner runs named background work. *supervisor.Supervisor satisfies it.
type Spawner interface {
	Go0(name string, fn func(ctx context.Context))
}

type SchedulerConfig struct {
	// SpeedtestRefresh defaults to the cadence.
	SpeedtestRefresh time.Duration
	// CountdownTick defaults to one second.
	CountdownTick time.Duration
}

// Scheduler owns the periodic refresh loops of a session.
//
// Each loop runs immediately, then re-arms a fixed delay after its own
// iteration finishes, so a slow fetch only delays that loop.
type Scheduler struct {
	s     *Session
	spawn Spawner
	log   logx.Logger

	metricsEvery time.Duration
	historyEvery time.Duration
	tickEvery    time.Duration
}

func NewScheduler(s *Session, spawn Spawner, cfg SchedulerConfig, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	cadence := time.Duration(s.Cadence()) * time.Second
	refresh := cfg.SpeedtestRefresh
	if refresh <= 0 {
		refresh = cadence
	}
	tick := cfg.CountdownTick
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		s:            s,
		spawn:        spawn,
		log:          log,
		metricsEvery: floorInterval(cadence),
		historyEvery: floorInterval(refresh),
		tickEvery:    tick,
	}
}

func floorInterval(d time.Duration) time.Duration {
	if d < MinTaskInterval {
		return MinTaskInterval
	}
	return d
}

// Intervals reports the effective loop periods.
func (sc *Scheduler) Intervals() (metrics, history, countdown time.Duration) {
	return sc.metricsEvery, sc.historyEvery, sc.tickEvery
}

// Start restores the session and launches the loops plus the one-shot
// startup fetches. Everything stops when the spawner's context ends.
func (sc *Scheduler) Start(ctx context.Context) {
	sc.s.Restore(ctx)

	sc.spawn.Go0("dashboard."+TaskConfig+".initial", func(ctx context.Context) {
		if err := sc.s.ReloadConfig(ctx, true); err != nil {
			sc.log.Warn("initial collector config failed", logx.Err(err))
		}
	})
	sc.spawn.Go0("dashboard."+TaskSpeedtestSummary, sc.s.RefreshSpeedtestSummaryOnce)

	sc.spawn.Go0("dashboard."+TaskMetrics, func(ctx context.Context) {
		runEvery(ctx, sc.metricsEvery, func(ctx context.Context) {
			if err := sc.s.RefreshMetrics(ctx); err != nil {
				sc.log.Debug("metrics refresh failed", logx.Err(err))
			}
		})
	})
	sc.spawn.Go0("dashboard."+TaskSpeedtestHistory, func(ctx context.Context) {
		runEvery(ctx, sc.historyEvery, func(ctx context.Context) {
			if err := sc.s.RefreshSpeedtestHistory(ctx); err != nil {
				sc.log.Debug("speedtest history refresh failed", logx.Err(err))
			}
		})
	})
	sc.spawn.Go0("dashboard."+TaskCountdown, func(ctx context.Context) {
		runEvery(ctx, sc.tickEvery, func(context.Context) { sc.s.TickCountdown() })
	})

	sc.log.Info("dashboard scheduler started",
		logx.Duration("metrics_every", sc.metricsEvery),
		logx.Duration("history_every", sc.historyEvery),
		logx.Duration("countdown_every", sc.tickEvery),
		logx.Int("limit", sc.s.Ranges.Limit()),
	)
}

// runEvery calls fn now and then every d after fn returns, until ctx ends.
func runEvery(ctx context.Context, d time.Duration, fn func(ctx context.Context)) {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		fn(ctx)
		t.Reset(d)
	}
}
