package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logx "netprobe/pkg/logx"
)

var (
	ErrUnknownControl = errors.New("unknown range control")
	ErrUnknownRange   = errors.New("unknown range")
	ErrUnknownPanel   = errors.New("unknown panel")
	ErrUnknownSeries  = errors.New("unknown series")
)

// Command is a user action.
type Command interface {
	Name() string
}

// RangeChanged: one range control was set to Token. An empty Control
// means the first configured control.
type RangeChanged struct {
	Control string `json:"control"`
	Token   string `json:"token"`
}

type PanelToggled struct {
	Panel   string `json:"panel"`
	Visible bool   `json:"visible"`
}

type SeriesToggled struct {
	Key     string `json:"key"`
	Visible bool   `json:"visible"`
}

type RunSpeedtest struct{}

type ConfigRequested struct{}

func (RangeChanged) Name() string    { return "range-changed" }
func (PanelToggled) Name() string    { return "panel-toggled" }
func (SeriesToggled) Name() string   { return "series-toggled" }
func (RunSpeedtest) Name() string    { return "run-speedtest" }
func (ConfigRequested) Name() string { return "config-requested" }

// CommandObserver is told about every accepted command.
type CommandObserver func(cmd Command)

// Dispatcher is the single entry point for user actions. State changes are
// applied before Dispatch returns; network work is spawned and not awaited.
// Nothing prevents a second speedtest while one is in flight.
type Dispatcher struct {
	s     *Session
	spawn Spawner
	log   logx.Logger

	observers []CommandObserver
}

func NewDispatcher(s *Session, spawn Spawner, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{s: s, spawn: spawn, log: log}
}

// Observe registers fn for accepted commands. Not safe to call
// concurrently with Dispatch.
func (d *Dispatcher) Observe(fn CommandObserver) {
	if fn != nil {
		d.observers = append(d.observers, fn)
	}
}

func (d *Dispatcher) Session() *Session { return d.s }

func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return errors.New("nil command")
	}
	var err error
	switch c := cmd.(type) {
	case RangeChanged:
		err = d.rangeChanged(c)
	case PanelToggled:
		err = d.panelToggled(ctx, c)
	case SeriesToggled:
		err = d.seriesToggled(c)
	case RunSpeedtest:
		d.spawn.Go0("dashboard."+TaskSpeedtestRun, func(ctx context.Context) {
			_ = d.s.RunSpeedtestNow(ctx)
		})
	case ConfigRequested:
		d.spawn.Go0("dashboard."+TaskConfig, func(ctx context.Context) {
			if err := d.s.ReloadConfig(ctx, false); err != nil {
				d.log.Debug("collector config reload failed", logx.Err(err))
			}
		})
	default:
		err = fmt.Errorf("unsupported command %T", cmd)
	}
	if err != nil {
		d.log.Debug("command rejected", logx.String("cmd", cmd.Name()), logx.Err(err))
		return err
	}
	d.log.Debug("command accepted", logx.String("cmd", cmd.Name()))
	for _, fn := range d.observers {
		fn(cmd)
	}
	return nil
}

func (d *Dispatcher) rangeChanged(c RangeChanged) error {
	control := strings.TrimSpace(c.Control)
	if control == "" {
		control = d.s.Ranges.IDs()[0]
	}
	if !d.s.Ranges.Has(control) {
		return fmt.Errorf("%w: %q", ErrUnknownControl, control)
	}
	token, ok := NormalizeToken(c.Token)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRange, c.Token)
	}
	limit := d.s.SelectRange(token)
	d.log.Info("range changed", logx.String("control", control), logx.String("range", token), logx.Int("limit", limit))

	// Out of band; the periodic loops keep their own schedule.
	d.spawn.Go0("dashboard.range."+TaskMetrics, func(ctx context.Context) {
		if err := d.s.RefreshMetrics(ctx); err != nil {
			d.log.Debug("metrics refresh failed", logx.Err(err))
		}
	})
	d.spawn.Go0("dashboard.range."+TaskSpeedtestHistory, func(ctx context.Context) {
		if err := d.s.RefreshSpeedtestHistory(ctx); err != nil {
			d.log.Debug("speedtest history refresh failed", logx.Err(err))
		}
	})
	return nil
}

func (d *Dispatcher) panelToggled(ctx context.Context, c PanelToggled) error {
	panel := strings.TrimSpace(c.Panel)
	known := false
	for _, p := range Panels() {
		if p == panel {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %q", ErrUnknownPanel, c.Panel)
	}
	return d.s.SetPanelVisible(ctx, panel, c.Visible)
}

func (d *Dispatcher) seriesToggled(c SeriesToggled) error {
	key := strings.TrimSpace(c.Key)
	for _, k := range d.s.Registry.Keys() {
		if string(k) == key {
			d.s.SetSeriesVisible(key, c.Visible)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownSeries, c.Key)
}

// ParseCommand builds a command from a name and its arguments, as typed
// in chat: "range 24h", "panel dns off", "series 1.1.1.1 on", "speedtest",
// "config".
func ParseCommand(name string, args []string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "range":
		if len(args) < 1 {
			return nil, errors.New("usage: range <token>")
		}
		c := RangeChanged{Token: args[0]}
		if len(args) > 1 {
			c.Control = args[1]
		}
		return c, nil
	case "panel":
		if len(args) != 2 {
			return nil, errors.New("usage: panel <id> on|off")
		}
		v, err := parseOnOff(args[1])
		if err != nil {
			return nil, err
		}
		return PanelToggled{Panel: args[0], Visible: v}, nil
	case "series":
		if len(args) != 2 {
			return nil, errors.New("usage: series <key> on|off")
		}
		v, err := parseOnOff(args[1])
		if err != nil {
			return nil, err
		}
		return SeriesToggled{Key: args[0], Visible: v}, nil
	case "speedtest":
		return RunSpeedtest{}, nil
	case "config":
		return ConfigRequested{}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "show", "true", "1", "yes":
		return true, nil
	case "off", "hide", "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("expected on|off, got %q", s)
	}
}
