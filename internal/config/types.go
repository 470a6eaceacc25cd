// Package config loads and watches the daemon configuration. JSON is the
// canonical format; YAML files are coerced to JSON so both share one strict
// decoder (DisallowUnknownFields).
package config

import (
	"time"

	"announceq/internal/announce"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Announce holds the default queue settings applied to submissions that
	// don't carry their own. Invalid values are clamped, never fatal.
	Announce AnnounceConfig `json:"announce"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Report  *ReportConfig  `json:"report,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// DefaultChatID receives announces whose items carry no origin.
	DefaultChatID int64 `json:"default_chat_id"`
	// RatePerSec bounds outbound messages per second. Default 3.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// AnnounceConfig mirrors announce.Settings. Pointer fields distinguish
// "omitted" from an explicit zero.
type AnnounceConfig struct {
	// Mode is "individual" or "collect". Anything else means individual.
	Mode string `json:"mode,omitempty"`
	// DebounceMS is the quiet window in milliseconds. Negative clamps to 0.
	DebounceMS *int `json:"debounce_ms,omitempty"`
	// Cap is the per-key backlog capacity. Values < 1 are ignored.
	Cap *int `json:"cap,omitempty"`
	// DropPolicy is one of "reject-new", "evict-oldest",
	// "evict-oldest-and-summarize". Unknown values are ignored.
	DropPolicy string `json:"drop_policy,omitempty"`
}

// Settings converts the config block to the core's settings record.
func (a AnnounceConfig) Settings() announce.Settings {
	s := announce.Settings{
		Mode:       announce.Mode(a.Mode),
		DropPolicy: announce.DropPolicy(a.DropPolicy),
		Cap:        a.Cap,
	}
	if a.DebounceMS != nil {
		d := time.Duration(*a.DebounceMS) * time.Millisecond
		s.Debounce = &d
	}
	return s
}

type StorageConfig struct {
	// Driver is "sqlite" or "none"/empty (disabled).
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type ReportConfig struct {
	Enabled bool `json:"enabled,omitempty"`
	// Schedule is a cron spec (e.g. "*/5 * * * *").
	Schedule string `json:"schedule,omitempty"`
}
