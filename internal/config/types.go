package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Tracker  TrackerConfig  `json:"tracker"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`

	// AlertChatID is the chat that receives respawn alerts. Commands are
	// accepted from any chat; alerts go only here.
	AlertChatID   int64 `json:"alert_chat_id"`
	AlertThreadID int   `json:"alert_thread_id,omitempty"`
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

// TrackerConfig controls respawn computation and the poll loop.
//
// All durations are Go duration strings (e.g. "30s", "1m").
type TrackerConfig struct {
	// Timezone is an IANA zone name used for weekly schedule math
	// (e.g. "Asia/Jakarta"). Empty means UTC.
	Timezone string `json:"timezone,omitempty"`

	// PollInterval defaults to "1m" when omitted.
	PollInterval string `json:"poll_interval,omitempty"`

	// DefaultAlertLeadMinutes applies to bosses added without an explicit lead.
	DefaultAlertLeadMinutes int `json:"default_alert_lead_minutes,omitempty"`

	// NotifyRatePerSec caps outbound alert messages. 0 means the built-in default.
	NotifyRatePerSec int `json:"notify_rate_per_sec,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./bosses.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Validate checks invariants that must hold before the config is committed.
// It is also the hook installed on the manager for hot reload.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.AlertChatID == 0 {
		return errors.New("telegram.alert_chat_id is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("tracker.poll_interval", c.Tracker.PollInterval); err != nil {
		return err
	}
	if c.Tracker.DefaultAlertLeadMinutes < 0 {
		return errors.New("tracker.default_alert_lead_minutes must be >= 0")
	}
	if tz := strings.TrimSpace(c.Tracker.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("tracker.timezone: %w", err)
		}
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// PollInterval returns the effective poll period.
func (c *Config) PollInterval() time.Duration {
	d, err := ParseDurationOrDefault("tracker.poll_interval", c.Tracker.PollInterval, time.Minute)
	if err != nil {
		return time.Minute
	}
	return d
}

// PollTimeout returns the effective Telegram long-poll timeout.
func (c *Config) PollTimeout() time.Duration {
	d, err := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
