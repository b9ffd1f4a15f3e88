package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dailyremind/internal/remind"
	logx "dailyremind/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps each record as a JSON document column so collection
// reads round-trip byte-identically with the file driver; reminder_id and
// scheduled_ms exist as real columns only for indexing.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Reminders(ctx context.Context) ([]remind.Reminder, error) {
	return readDocs[remind.Reminder](ctx, s.db, `SELECT doc FROM reminders ORDER BY rowid`)
}

func (s *sqliteStore) SetReminders(ctx context.Context, rs []remind.Reminder) error {
	return s.replace(ctx, "reminders", len(rs), func(tx *sql.Tx, i int) error {
		doc, err := json.Marshal(rs[i])
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO reminders(id, doc) VALUES(?,?)`, rs[i].ID, string(doc))
		return err
	})
}

func (s *sqliteStore) Executions(ctx context.Context) ([]remind.Execution, error) {
	return readDocs[remind.Execution](ctx, s.db, `SELECT doc FROM executions ORDER BY scheduled_ms, rowid`)
}

func (s *sqliteStore) SetExecutions(ctx context.Context, es []remind.Execution) error {
	return s.replace(ctx, "executions", len(es), func(tx *sql.Tx, i int) error {
		doc, err := json.Marshal(es[i])
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO executions(id, reminder_id, scheduled_ms, doc) VALUES(?,?,?,?)`,
			es[i].ID, es[i].ReminderID, es[i].ScheduledTime.UnixMilli(), string(doc))
		return err
	})
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]remind.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reminder_id, doc FROM stats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]remind.Stats{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var st remind.Stats
		if err := json.Unmarshal([]byte(doc), &st); err != nil {
			return nil, fmt.Errorf("corrupt stats row %s: %w", id, err)
		}
		out[id] = st
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetStats(ctx context.Context, st map[string]remind.Stats) error {
	ids := make([]string, 0, len(st))
	for id := range st {
		ids = append(ids, id)
	}
	return s.replace(ctx, "stats", len(ids), func(tx *sql.Tx, i int) error {
		doc, err := json.Marshal(st[ids[i]])
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO stats(reminder_id, doc) VALUES(?,?)`, ids[i], string(doc))
		return err
	})
}

func (s *sqliteStore) Preferences(ctx context.Context) (remind.Preferences, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'preferences'`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return remind.DefaultPreferences(), nil
	}
	if err != nil {
		return remind.Preferences{}, err
	}
	var p remind.Preferences
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return remind.Preferences{}, fmt.Errorf("corrupt preferences: %w", err)
	}
	return p, nil
}

func (s *sqliteStore) SetPreferences(ctx context.Context, p remind.Preferences) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('preferences', ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, string(doc)); err != nil {
		return err
	}
	return s.touchLastSync(ctx)
}

func (s *sqliteStore) LastSync(ctx context.Context) (time.Time, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_sync'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt last_sync: %w", err)
	}
	return time.UnixMilli(ms), nil
}

func (s *sqliteStore) touchLastSync(ctx context.Context) error {
	ms := strconv.FormatInt(time.Now().UnixMilli(), 10)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('last_sync', ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, ms)
	return err
}

// replace rewrites a whole table inside one transaction.
func (s *sqliteStore) replace(ctx context.Context, table string, n int, insert func(tx *sql.Tx, i int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := insert(tx, i); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.touchLastSync(ctx)
}

func readDocs[T any](ctx context.Context, db *sql.DB, query string) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("corrupt row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
