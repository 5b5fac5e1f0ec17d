// Package config loads, validates, and hot-reloads the bot configuration.
// Files may be JSON or YAML; both go through the same strict decoder so
// unknown keys are rejected early.
package config

import (
	"fmt"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage,omitempty"`
	Notify   NotifyConfig   `json:"notify,omitempty"`

	// Timezone is the single civil timezone for all event dates, clock
	// times, and reminder math. Default: "Europe/Moscow".
	Timezone string `json:"timezone,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
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

type StorageConfig struct {
	Driver string `json:"driver,omitempty"` // "sqlite" (default) or "memory"
	Path   string `json:"path,omitempty"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// DefaultOffsetMinutes applies to users who never set a reminder offset.
	DefaultOffsetMinutes int `json:"default_offset_minutes,omitempty"`
}

// NotifyConfig controls the reminder engine.
type NotifyConfig struct {
	// Tick is the reminder pass schedule: cron ("*/5 * * * *"), duration
	// ("1m"), or HH:MM interval ("00:05"). Default "1m".
	Tick string `json:"tick,omitempty"`
	// Grace is a Go duration string delaying one-time event retirement past
	// the event end. Default "5m".
	Grace      string  `json:"grace,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

const defaultTimezone = "Europe/Moscow"

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// Validate checks the parts that must be right before the bot can start.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token required (or set PLANBOT_TOKEN)")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("notify.grace", c.Notify.Grace); err != nil {
		return err
	}
	return nil
}
