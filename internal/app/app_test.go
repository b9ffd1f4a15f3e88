package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"dailyremind/internal/remind"
	"dailyremind/internal/reminders"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
storage:
  driver: file
  path: %s
scheduler:
  timezone: UTC
`, filepath.Join(dir, "data"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	a, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.store.Close() })
	return a
}

func TestNewWiresEverything(t *testing.T) {
	a := newTestApp(t)
	if a.Reminders() == nil || a.Scheduler() == nil || a.Stats() == nil ||
		a.Ledger() == nil || a.Store() == nil || a.Bus() == nil {
		t.Fatal("app surface incomplete")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("config without storage accepted")
	}
	if _, err := New(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing config file accepted")
	}
}

func TestUpdatePreferencesValidates(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	p, err := a.Preferences(ctx)
	if err != nil {
		t.Fatal(err)
	}
	p.SnoozeOptions = []int{-1}
	if err := a.UpdatePreferences(ctx, p); !errors.Is(err, remind.ErrValidation) {
		t.Fatalf("UpdatePreferences = %v, want ErrValidation", err)
	}

	p, _ = a.Preferences(ctx)
	p.Theme = "dark"
	if err := a.UpdatePreferences(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := a.Preferences(ctx)
	if err != nil || got.Theme != "dark" {
		t.Fatalf("preferences after update: %+v, %v", got, err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	r, err := a.Reminders().Create(ctx, remindersInput())
	if err != nil {
		t.Fatal(err)
	}

	data, err := a.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}

	b := newTestApp(t)
	if err := b.Import(ctx, data); err != nil {
		t.Fatal(err)
	}
	got, err := b.Reminders().Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != r.Title {
		t.Fatalf("imported reminder: %+v", got)
	}

	if err := b.Import(ctx, []byte(`{"executions": []}`)); err == nil {
		t.Fatal("structurally invalid import accepted")
	}
}

func remindersInput() reminders.Input {
	return reminders.Input{
		Title:    "Stretch",
		Category: remind.CategoryPosture,
		Recurrence: remind.RecurrenceConfig{
			Type:            remind.RecurInterval,
			IntervalMinutes: 45,
		},
		Enabled: true,
	}
}
