package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netprobe/internal/collector"
	"netprobe/internal/config"
	"netprobe/internal/dashboard"
	"netprobe/internal/eventbus"
	"netprobe/internal/runtime/supervisor"
	"netprobe/internal/server"
	"netprobe/internal/storage"
	"netprobe/internal/transport/telegram"
	"netprobe/internal/view"
	"netprobe/internal/view/promsink"
	"netprobe/internal/view/wshub"
	logx "netprobe/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	res  config.Resolved

	sup  *supervisor.Supervisor
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	reg  *prometheus.Registry

	store     storage.Store
	compactor *storage.Compactor

	frame   *view.Frame
	session *dashboard.Session
	disp    *dashboard.Dispatcher
	sched   *dashboard.Scheduler
	hub     *wshub.Hub
	server  *server.Service
	tg      *telegram.Adapter
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	res, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg.Logging))
	log = log.With(logx.String("comp", "app"))

	store, err := storage.Open(mapStorage(res), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	var compactor *storage.Compactor
	if store != nil {
		log.Info("storage enabled", logx.String("driver", res.StorageDriver))
		if persistent(res.StorageDriver) {
			compactor = storage.NewCompactor(store, res.CompactSchedule, log.With(logx.String("comp", "storage.compact")))
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bus := eventbus.New()
	frame := view.NewFrame(bus)
	sink := view.NewFanout(frame, promsink.New(reg))

	client := collector.New(res.CollectorURL,
		collector.WithTimeout(res.CollectorTimeout),
		collector.WithLogger(log.With(logx.String("comp", "collector"))),
	)

	opt := mapSession(res)
	opt.Store = store
	opt.Metrics = dashboard.NewMetrics(reg)
	opt.Logger = log.With(logx.String("comp", "dashboard"))
	session := dashboard.NewSession(client, sink, opt)

	return &App{
		cfgm:      cfgm,
		res:       res,
		log:       log,
		logs:      logs,
		bus:       bus,
		reg:       reg,
		store:     store,
		compactor: compactor,
		frame:     frame,
		session:   session,
	}, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Session exposes the dashboard session (status, range state).
func (a *App) Session() *dashboard.Session { return a.session }

// Addr returns the HTTP listen address, or "" when the server is off.
func (a *App) Addr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if a.compactor != nil {
		if err := a.compactor.Start(); err != nil {
			return fmt.Errorf("storage compactor: %w", err)
		}
	}

	dlog := a.log.With(logx.String("comp", "dashboard"))
	a.disp = dashboard.NewDispatcher(a.session, a.sup, dlog)
	a.disp.Observe(func(cmd dashboard.Command) {
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeCommand, ID: cmd.Name(), Data: cmd})
	})
	a.sched = dashboard.NewScheduler(a.session, a.sup, mapScheduler(a.res), dlog)
	a.sched.Start(a.sup.Context())

	a.hub = wshub.New(a.bus, func() any { return a.frame.Snapshot() }, a.log.With(logx.String("comp", "wshub")), wshub.Options{})
	a.sup.Go0("wshub", a.hub.Run)

	a.server = server.New(mapServer(a.res), server.Deps{
		Dispatcher: a.disp,
		State:      func() any { return a.frame.Snapshot() },
		WS:         a.hub,
		Metrics:    promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}),
	}, a.log.With(logx.String("comp", "http")))
	if a.res.ServerEnabled {
		if err := a.server.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	if a.res.TelegramEnabled {
		a.startTelegram()
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts; only the newest config matters.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, last, newCfg)
				last = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("collector", a.res.CollectorURL),
		logx.Int("probe_interval", a.res.ProbeInterval),
		logx.String("range", a.res.Range),
	)
	return nil
}

func (a *App) startTelegram() {
	tcfg := mapTelegram(a.res)
	tlog := a.log.With(logx.String("comp", "telegram"))
	ctrl := telegram.NewController(a.disp, tcfg.Owners, tcfg.RatePerSec, tcfg.Burst, tlog)
	tg, err := telegram.New(tcfg, ctrl, a.bus, tlog)
	if err != nil {
		// The dashboard works without remote control.
		a.log.Error("telegram disabled", logx.Err(err))
		return
	}
	if err := tg.Start(a.sup.Context()); err != nil {
		a.log.Error("telegram start failed", logx.Err(err))
		return
	}
	a.tg = tg
}

// applyConfig applies the hot-reloadable parts of a new config: logging,
// the HTTP server and the telegram owner list and mirror chat.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	change := config.SummarizeChange(oldCfg, newCfg)
	if len(change.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	res, err := newCfg.Resolve()
	if err != nil {
		a.log.Warn("invalid config on reload; keeping previous", logx.Err(err))
		return
	}

	if change.Has("logging") {
		a.logs.Apply(mapLogging(newCfg.Logging))
	}
	if change.Has("server") {
		a.server.Reconfigure(ctx, mapServer(res))
	}
	if change.Has("telegram") && a.tg != nil {
		a.tg.Reconfigure(mapTelegram(res))
	}
	if len(change.RestartRequired) > 0 {
		a.log.Warn("config sections changed that only apply after restart",
			logx.String("sections", strings.Join(change.RestartRequired, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so loops start unwinding while the steps below run.
	a.sup.Cancel()

	// step runs fn with an upper bound so one component cannot stall the
	// whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("http", 2*time.Second, func(c context.Context) error {
		if a.server != nil {
			a.server.Stop(c)
		}
		return nil
	})
	step("telegram", 2*time.Second, func(c context.Context) error {
		if a.tg != nil {
			return a.tg.Stop(c)
		}
		return nil
	})
	step("compactor", time.Second, func(c context.Context) error {
		if a.compactor != nil {
			a.compactor.Stop(c)
		}
		return nil
	})
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
