package config

import (
	"reflect"
	"strings"

	logx "netprobe/pkg/logx"
)

// Change summarizes a config reload.
type Change struct {
	// Sections lists every top-level section that changed.
	Sections []string
	// RestartRequired lists changed sections that are only read at startup
	// (collector, dashboard cadence, storage).
	RestartRequired []string
	// Attrs are safe structured log fields (never include secrets like tokens).
	Attrs []logx.Field
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if !reflect.DeepEqual(oldCfg.Collector, newCfg.Collector) {
		ch.Sections = append(ch.Sections, "collector")
		ch.RestartRequired = append(ch.RestartRequired, "collector")
		ch.Attrs = append(ch.Attrs, logx.String("collector.base_url", strings.TrimSpace(newCfg.Collector.BaseURL)))
	}

	if !reflect.DeepEqual(oldCfg.Dashboard, newCfg.Dashboard) {
		ch.Sections = append(ch.Sections, "dashboard")
		ch.RestartRequired = append(ch.RestartRequired, "dashboard")
		ch.Attrs = append(ch.Attrs,
			logx.Int("dashboard.probe_interval", newCfg.Dashboard.ProbeInterval),
			logx.String("dashboard.range", newCfg.Dashboard.Range),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		ch.Sections = append(ch.Sections, "storage")
		ch.RestartRequired = append(ch.RestartRequired, "storage")
		if newCfg.Storage != nil {
			ch.Attrs = append(ch.Attrs, logx.String("storage.driver", newCfg.Storage.Driver))
		}
	}

	if oldCfg.Server != newCfg.Server {
		ch.Sections = append(ch.Sections, "server")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("server.enabled", newCfg.Server.Enabled),
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
		)
	}

	// Telegram (never log token).
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		ch.Sections = append(ch.Sections, "telegram")
		if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.Enabled != newCfg.Telegram.Enabled {
			ch.RestartRequired = append(ch.RestartRequired, "telegram")
		}
		ch.Attrs = append(ch.Attrs,
			logx.Bool("telegram.enabled", newCfg.Telegram.Enabled),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		ch.Sections = append(ch.Sections, "logging")
		ch.Attrs = append(ch.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	return ch
}
