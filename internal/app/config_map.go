package app

import (
	"netprobe/internal/config"
	"netprobe/internal/dashboard"
	"netprobe/internal/server"
	"netprobe/internal/storage"
	"netprobe/internal/transport/telegram"
	logx "netprobe/pkg/logx"
)

func mapLogging(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}

func mapStorage(r config.Resolved) storage.Config {
	return storage.Config{Driver: r.StorageDriver, Path: r.StoragePath, BusyTimeout: r.BusyTimeout}
}

// persistent reports whether the driver keeps data across restarts and so
// benefits from compaction.
func persistent(driver string) bool {
	switch driver {
	case "file", "sqlite", "sqlite3":
		return true
	}
	return false
}

func mapServer(r config.Resolved) server.Config {
	return server.Config{
		Enabled:           r.ServerEnabled,
		Addr:              r.ServerAddr,
		ControlRatePerSec: float64(r.ControlRatePerSec),
		ControlBurst:      r.ControlBurst,
	}
}

func mapTelegram(r config.Resolved) telegram.Config {
	return telegram.Config{
		Token:       r.TelegramToken,
		ChatID:      r.TelegramChatID,
		ThreadID:    r.TelegramThreadID,
		Owners:      r.TelegramOwners,
		PollTimeout: r.TelegramPollTimeout,
		RatePerSec:  1,
		Burst:       3,
	}
}

func mapSession(r config.Resolved) dashboard.Options {
	return dashboard.Options{
		Cadence:       r.ProbeInterval,
		Range:         r.Range,
		RangeControls: r.RangeControls,
	}
}

func mapScheduler(r config.Resolved) dashboard.SchedulerConfig {
	return dashboard.SchedulerConfig{
		SpeedtestRefresh: r.SpeedtestRefresh,
		CountdownTick:    r.CountdownTick,
	}
}
