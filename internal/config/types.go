package config

import (
	"fmt"
	"strings"
	"time"

	"dailyremind/internal/dispatch"
	"dailyremind/internal/scheduler"
	"dailyremind/internal/store"
	logx "dailyremind/pkg/logx"
)

// Config is the whole daemon configuration. It decodes strictly from JSON
// or YAML; unknown fields are rejected.
//
// All durations are Go duration strings (e.g. "30s", "10m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Dispatch  DispatchConfig  `json:"dispatch,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File != "", Path: c.File},
	}
}

type StorageConfig struct {
	// Driver is "file" or "sqlite".
	Driver string `json:"driver"`
	// Path is a directory for the file driver, a database file for sqlite.
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

func (c StorageConfig) Store() (store.Config, error) {
	bt, err := ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{Driver: c.Driver, Path: c.Path, BusyTimeout: bt}, nil
}

type DispatchConfig struct {
	Capacity   int `json:"capacity,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`

	// Telegram, when present, mirrors every delivered reminder to a chat.
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

func (c DispatchConfig) Local() dispatch.LocalConfig {
	return dispatch.LocalConfig{
		Capacity:   c.Capacity,
		RatePerSec: c.RatePerSec,
		QueueSize:  c.QueueSize,
	}
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

type SchedulerConfig struct {
	// Timezone is an IANA name; empty means the system local zone.
	Timezone       string `json:"timezone,omitempty"`
	ReconcileGrace string `json:"reconcile_grace,omitempty"`
	// SweepEvery is the reconciliation sweep interval. Default "1m".
	SweepEvery string `json:"sweep_every,omitempty"`
	MaxSnoozes int    `json:"max_snoozes,omitempty"`
	// DefaultSnooze applies when a snooze action names no duration.
	DefaultSnooze string `json:"default_snooze,omitempty"`
}

func (c SchedulerConfig) Scheduler() (scheduler.Config, error) {
	grace, err := ParseDurationField("scheduler.reconcile_grace", c.ReconcileGrace)
	if err != nil {
		return scheduler.Config{}, err
	}
	snooze, err := ParseDurationField("scheduler.default_snooze", c.DefaultSnooze)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		ReconcileGrace: grace,
		MaxSnoozes:     c.MaxSnoozes,
		DefaultSnooze:  snooze,
	}, nil
}

func (c SchedulerConfig) SweepInterval() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.sweep_every", c.SweepEvery, time.Minute)
}

func (c SchedulerConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// Validate checks the parts that must be right before the daemon starts.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
	case "", "none":
		return fmt.Errorf("storage.driver: persistence is required")
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path: required")
	}
	if _, err := c.Storage.Store(); err != nil {
		return err
	}
	if _, err := c.Scheduler.Scheduler(); err != nil {
		return err
	}
	if _, err := c.Scheduler.SweepInterval(); err != nil {
		return err
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return err
	}
	if t := c.Dispatch.Telegram; t != nil {
		if strings.TrimSpace(t.Token) == "" || t.ChatID == 0 {
			return fmt.Errorf("dispatch.telegram: token and chat_id are required")
		}
	}
	return nil
}
