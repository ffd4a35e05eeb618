package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"netprobe/internal/storage"
)

const (
	DefaultProbeInterval = 30
	DefaultRange         = "1h"
	DefaultServerAddr    = "127.0.0.1:8088"
)

// Resolved is Config with defaults applied and duration strings parsed.
type Resolved struct {
	CollectorURL     string
	CollectorTimeout time.Duration

	ProbeInterval    int
	Range            string
	RangeControls    []string
	SpeedtestRefresh time.Duration
	CountdownTick    time.Duration

	StorageDriver   string
	StoragePath     string
	BusyTimeout     time.Duration
	CompactSchedule string

	ServerEnabled     bool
	ServerAddr        string
	ControlRatePerSec int
	ControlBurst      int

	TelegramEnabled     bool
	TelegramToken       string
	TelegramChatID      int64
	TelegramThreadID    int
	TelegramOwners      []int64
	TelegramPollTimeout time.Duration
}

// Resolve validates cfg and returns the effective settings.
func (c *Config) Resolve() (Resolved, error) {
	if c == nil {
		return Resolved{}, errors.New("config is nil")
	}
	var r Resolved
	var err error

	r.CollectorURL = strings.TrimRight(strings.TrimSpace(c.Collector.BaseURL), "/")
	if r.CollectorURL == "" {
		return Resolved{}, errors.New("collector.base_url is required")
	}
	if u, perr := url.Parse(r.CollectorURL); perr != nil || u.Scheme == "" || u.Host == "" {
		return Resolved{}, fmt.Errorf("collector.base_url: invalid url %q", c.Collector.BaseURL)
	}
	if r.CollectorTimeout, err = parseDuration("collector.timeout", c.Collector.Timeout, 0); err != nil {
		return Resolved{}, err
	}

	r.ProbeInterval = c.Dashboard.ProbeInterval
	if r.ProbeInterval <= 0 {
		r.ProbeInterval = DefaultProbeInterval
	}
	r.Range = strings.TrimSpace(c.Dashboard.Range)
	if r.Range == "" {
		r.Range = DefaultRange
	}
	for _, id := range c.Dashboard.RangeControls {
		if id = strings.TrimSpace(id); id != "" {
			r.RangeControls = append(r.RangeControls, id)
		}
	}
	if len(r.RangeControls) == 0 {
		r.RangeControls = []string{"header"}
	}
	cadence := time.Duration(r.ProbeInterval) * time.Second
	if r.SpeedtestRefresh, err = parseDuration("dashboard.speedtest_refresh", c.Dashboard.SpeedtestRefresh, cadence); err != nil {
		return Resolved{}, err
	}
	if r.CountdownTick, err = parseDuration("dashboard.countdown_tick", c.Dashboard.CountdownTick, time.Second); err != nil {
		return Resolved{}, err
	}

	r.StorageDriver = "none"
	if c.Storage != nil {
		r.StorageDriver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
		if r.StorageDriver == "" {
			r.StorageDriver = "none"
		}
		r.StoragePath = strings.TrimSpace(c.Storage.Path)
		r.CompactSchedule = strings.TrimSpace(c.Storage.CompactSchedule)
		if err := storage.ValidateSchedule(r.CompactSchedule); err != nil {
			return Resolved{}, fmt.Errorf("storage.compact_schedule: %w", err)
		}
		if r.BusyTimeout, err = parseDuration("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
			return Resolved{}, err
		}
	}
	switch r.StorageDriver {
	case "none", "memory":
	case "file", "sqlite", "sqlite3":
		if r.StoragePath == "" {
			return Resolved{}, fmt.Errorf("storage.path is required for driver %q", r.StorageDriver)
		}
	default:
		return Resolved{}, fmt.Errorf("storage.driver: unknown driver %q", r.StorageDriver)
	}

	r.ServerEnabled = c.Server.Enabled
	r.ServerAddr = strings.TrimSpace(c.Server.Addr)
	if r.ServerAddr == "" {
		r.ServerAddr = DefaultServerAddr
	}
	r.ControlRatePerSec = c.Server.ControlRatePerSec
	if r.ControlRatePerSec <= 0 {
		r.ControlRatePerSec = 5
	}
	r.ControlBurst = c.Server.ControlBurst
	if r.ControlBurst <= 0 {
		r.ControlBurst = 10
	}

	r.TelegramEnabled = c.Telegram.Enabled
	r.TelegramToken = strings.TrimSpace(c.Telegram.Token)
	r.TelegramChatID = c.Telegram.ChatID
	r.TelegramThreadID = c.Telegram.ThreadID
	r.TelegramOwners = append([]int64(nil), c.Telegram.OwnerUserIDs...)
	if r.TelegramPollTimeout, err = parseDuration("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second); err != nil {
		return Resolved{}, err
	}
	if r.TelegramEnabled && r.TelegramToken == "" {
		return Resolved{}, errors.New("telegram.token is required when telegram.enabled is true")
	}
	if r.TelegramEnabled && len(r.TelegramOwners) == 0 {
		return Resolved{}, errors.New("telegram.owner_user_ids is required when telegram.enabled is true")
	}

	return r, nil
}

// parseDuration parses a Go duration string; empty or zero yields def.
func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
