package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
logging:
  level: debug
  console: true
storage:
  driver: file
  path: /var/lib/dailyremind
scheduler:
  timezone: UTC
  reconcile_grace: 10m
  sweep_every: 30s
  max_snoozes: 3
  default_snooze: 10m
dispatch:
  capacity: 64
  rate_per_sec: 5
`

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging section: %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("storage section: %+v", cfg.Storage)
	}

	sched, err := cfg.Scheduler.Scheduler()
	if err != nil {
		t.Fatal(err)
	}
	if sched.ReconcileGrace != 10*time.Minute || sched.MaxSnoozes != 3 || sched.DefaultSnooze != 10*time.Minute {
		t.Fatalf("scheduler config: %+v", sched)
	}
	sweep, err := cfg.Scheduler.SweepInterval()
	if err != nil || sweep != 30*time.Second {
		t.Fatalf("sweep interval = %v, %v", sweep, err)
	}
	loc, err := cfg.Scheduler.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("location = %v, %v", loc, err)
	}
	if got := cfg.Dispatch.Local(); got.Capacity != 64 || got.RatePerSec != 5 {
		t.Fatalf("dispatch config: %+v", got)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit the config")
	}
}

func TestLoadJSON(t *testing.T) {
	m := NewManager(writeConfig(t, "config.json",
		`{"logging": {"level": "info"}, "storage": {"driver": "sqlite", "path": "/tmp/r.db"}}`))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	st, err := cfg.Storage.Store()
	if err != nil {
		t.Fatal(err)
	}
	if st.Driver != "sqlite" || st.Path != "/tmp/r.db" {
		t.Fatalf("storage config: %+v", st)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML+"\nsurprise: true\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown top-level field accepted")
	}
}

func TestLoadRejectsMissingStorage(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", "logging:\n  level: info\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("config without storage accepted")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Storage: StorageConfig{Driver: "file", Path: "/tmp/x"}}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("minimal config rejected: %v", err)
	}

	c := base()
	c.Storage.Driver = "redis"
	if err := c.Validate(); err == nil {
		t.Fatal("unknown storage driver accepted")
	}

	c = base()
	c.Storage.Path = ""
	if err := c.Validate(); err == nil {
		t.Fatal("empty storage path accepted")
	}

	c = base()
	c.Scheduler.Timezone = "Mars/Olympus"
	if err := c.Validate(); err == nil {
		t.Fatal("bad timezone accepted")
	}

	c = base()
	c.Scheduler.ReconcileGrace = "-5m"
	if err := c.Validate(); err == nil {
		t.Fatal("negative duration accepted")
	}

	c = base()
	c.Dispatch.Telegram = &TelegramConfig{Token: "", ChatID: 0}
	if err := c.Validate(); err == nil {
		t.Fatal("empty telegram section accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"30s", 30 * time.Second, false},
		{" 10m ", 10 * time.Minute, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q) = %v, want error", tc.raw, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseDurationField(%q) = %v, %v, want %v", tc.raw, got, err, tc.want)
		}
	}

	if d, err := ParseDurationOrDefault("f", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("ParseDurationOrDefault empty = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("f", "5s", time.Minute); err != nil || d != 5*time.Second {
		t.Fatalf("ParseDurationOrDefault set = %v, %v", d, err)
	}
}
