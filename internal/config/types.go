package config

// Config is the dashboard process configuration.
//
// Durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Collector CollectorConfig `json:"collector"`
	Dashboard DashboardConfig `json:"dashboard"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Server    ServerConfig    `json:"server"`
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
}

// CollectorConfig points the dashboard at the collector HTTP API.
//
// Timeout defaults to "0s" (disabled): a hung collector call only stalls the
// task that issued it.
type CollectorConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"`
}

// DashboardConfig controls the sync engine.
//
// Defaults (when fields are omitted/zero):
//   - probe_interval: 30 (seconds between collector samples)
//   - range: "1h"
//   - range_controls: ["header"]
//   - speedtest_refresh: probe_interval
//   - countdown_tick: "1s"
type DashboardConfig struct {
	ProbeInterval    int      `json:"probe_interval"`
	Range            string   `json:"range,omitempty"`
	RangeControls    []string `json:"range_controls,omitempty"`
	SpeedtestRefresh string   `json:"speedtest_refresh,omitempty"`
	CountdownTick    string   `json:"countdown_tick,omitempty"`
}

// StorageConfig controls where client state (panel visibility) is persisted.
//
// Example:
//
//	storage: { driver: file, path: ./data/dashboard }
//
// Driver values: "none", "memory", "file", "sqlite".
type StorageConfig struct {
	Driver          string `json:"driver"`
	Path            string `json:"path"`
	BusyTimeout     string `json:"busy_timeout,omitempty"`     // sqlite only
	CompactSchedule string `json:"compact_schedule,omitempty"` // cron spec, e.g. "@daily"
}

// ServerConfig controls the HTTP surface (state, websocket, metrics, control).
//
// Prefer binding to localhost; control endpoints are unauthenticated.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8088"

	ControlRatePerSec int `json:"control_rate_per_sec,omitempty"` // default: 5
	ControlBurst      int `json:"control_burst,omitempty"`        // default: 10
}

// TelegramConfig enables optional remote control through a Telegram bot.
type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token,omitempty"`
	ChatID       int64   `json:"chat_id,omitempty"`
	ThreadID     int     `json:"thread_id,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
