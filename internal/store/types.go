package store

import (
	"context"
	"errors"
	"time"

	"dailyremind/internal/remind"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": one JSON document per collection under Path (a directory)
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", Open fails: the engine cannot run without a
// persistent store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the keyed-collection persistence API used by the engine.
//
// Collections are read and written wholesale; callers own read-modify-write
// sequencing. Every timestamp round-trips at millisecond precision.
type Store interface {
	Reminders(ctx context.Context) ([]remind.Reminder, error)
	SetReminders(ctx context.Context, rs []remind.Reminder) error

	Executions(ctx context.Context) ([]remind.Execution, error)
	SetExecutions(ctx context.Context, es []remind.Execution) error

	Stats(ctx context.Context) (map[string]remind.Stats, error)
	SetStats(ctx context.Context, st map[string]remind.Stats) error

	Preferences(ctx context.Context) (remind.Preferences, error)
	SetPreferences(ctx context.Context, p remind.Preferences) error

	// LastSync is the time of the most recent successful write.
	LastSync(ctx context.Context) (time.Time, error)

	Close() error
}
