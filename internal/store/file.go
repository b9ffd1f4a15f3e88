package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"dailyremind/internal/remind"
	logx "dailyremind/pkg/logx"
)

// fileStore keeps each collection in its own JSON document under a directory:
//
//   - reminders.json
//   - executions.json
//   - stats.json
//   - preferences.json
//   - lastsync
//
// Writes go through a temp file + rename so a crash never leaves a
// half-written collection behind.
type fileStore struct {
	log logx.Logger
	dir string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Reminders(ctx context.Context) ([]remind.Reminder, error) {
	_ = ctx
	var out []remind.Reminder
	if err := s.readJSON("reminders.json", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) SetReminders(ctx context.Context, rs []remind.Reminder) error {
	_ = ctx
	return s.writeJSON("reminders.json", emptyNotNil(rs))
}

func (s *fileStore) Executions(ctx context.Context) ([]remind.Execution, error) {
	_ = ctx
	var out []remind.Execution
	if err := s.readJSON("executions.json", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) SetExecutions(ctx context.Context, es []remind.Execution) error {
	_ = ctx
	return s.writeJSON("executions.json", emptyNotNil(es))
}

func (s *fileStore) Stats(ctx context.Context) (map[string]remind.Stats, error) {
	_ = ctx
	out := map[string]remind.Stats{}
	if err := s.readJSON("stats.json", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) SetStats(ctx context.Context, st map[string]remind.Stats) error {
	_ = ctx
	if st == nil {
		st = map[string]remind.Stats{}
	}
	return s.writeJSON("stats.json", st)
}

func (s *fileStore) Preferences(ctx context.Context) (remind.Preferences, error) {
	_ = ctx
	p := remind.DefaultPreferences()
	if err := s.readJSON("preferences.json", &p); err != nil {
		return remind.Preferences{}, err
	}
	return p, nil
}

func (s *fileStore) SetPreferences(ctx context.Context, p remind.Preferences) error {
	_ = ctx
	return s.writeJSON("preferences.json", p)
}

func (s *fileStore) LastSync(ctx context.Context) (time.Time, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(filepath.Join(s.dir, "lastsync"))
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt lastsync: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// readJSON decodes the named collection into out; a missing file leaves out
// at its zero/default value.
func (s *fileStore) readJSON(name string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("corrupt %s: %w", name, err)
	}
	return nil
}

func (s *fileStore) writeJSON(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(filepath.Join(s.dir, name), b); err != nil {
		return err
	}
	// Best-effort sync marker; the collection write already succeeded.
	ms := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := writeAtomic(filepath.Join(s.dir, "lastsync"), []byte(ms)); err != nil {
		s.log.Debug("lastsync write failed", logx.Err(err))
	}
	return nil
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func emptyNotNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
