// Package ledger manages the append-structured log of reminder executions.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dailyremind/internal/remind"
	"dailyremind/internal/store"
	logx "dailyremind/pkg/logx"
)

var (
	ErrNotFound   = errors.New("execution not found")
	ErrNotPending = errors.New("execution is not pending")
)

// Ledger records every due occurrence and its outcome. Executions are only
// ever appended and transitioned once to a terminal status; nothing is
// removed except through cascade deletion of the owning reminder.
//
// The ledger records what it is told. The at-most-one-pending-per-reminder
// invariant is enforced by the scheduler, not here.
type Ledger struct {
	store store.Store
	log   logx.Logger

	// Serializes read-modify-write cycles on the executions collection.
	mu sync.Mutex
}

func New(st store.Store, log logx.Logger) *Ledger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ledger{store: st, log: log}
}

// Append records a new pending execution for a resolved occurrence.
func (l *Ledger) Append(ctx context.Context, reminderID string, scheduledAt time.Time) (remind.Execution, error) {
	exec := remind.Execution{
		ID:            uuid.NewString(),
		ReminderID:    reminderID,
		ScheduledTime: remind.At(scheduledAt),
		Status:        remind.ExecPending,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	all, err := l.store.Executions(ctx)
	if err != nil {
		return remind.Execution{}, fmt.Errorf("append execution: %w", err)
	}
	all = append(all, exec)
	if err := l.store.SetExecutions(ctx, all); err != nil {
		return remind.Execution{}, fmt.Errorf("append execution: %w", err)
	}
	l.log.Debug("execution appended",
		logx.String("execution", exec.ID),
		logx.String("reminder", reminderID),
		logx.Time("at", scheduledAt))
	return exec, nil
}

// Complete transitions a pending execution to completed. response may be
// empty (a bare delivery counts as completion).
func (l *Ledger) Complete(ctx context.Context, id string, at time.Time, response remind.UserResponse) error {
	return l.transition(ctx, id, func(e *remind.Execution) {
		e.Status = remind.ExecCompleted
		e.ExecutedTime = remind.At(at)
		if response != "" {
			e.UserResponse = response
		}
	})
}

// Dismiss transitions a pending execution to dismissed.
func (l *Ledger) Dismiss(ctx context.Context, id string) error {
	return l.transition(ctx, id, func(e *remind.Execution) {
		e.Status = remind.ExecDismissed
	})
}

// MarkMissed transitions a pending execution to missed. Used by the
// reconciliation sweep for occurrences the platform dropped.
func (l *Ledger) MarkMissed(ctx context.Context, id string) error {
	return l.transition(ctx, id, func(e *remind.Execution) {
		e.Status = remind.ExecMissed
	})
}

// Snooze records a snooze on a pending execution; the execution stays
// pending and will fire again at until.
func (l *Ledger) Snooze(ctx context.Context, id string, until time.Time) error {
	return l.transition(ctx, id, func(e *remind.Execution) {
		e.UserResponse = remind.ResponseSnoozed
		e.SnoozeUntil = remind.At(until)
	})
}

func (l *Ledger) transition(ctx context.Context, id string, apply func(*remind.Execution)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	all, err := l.store.Executions(ctx)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	idx := -1
	for i := range all {
		if all[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	if all[idx].Status.Terminal() {
		return ErrNotPending
	}
	apply(&all[idx])
	if err := l.store.SetExecutions(ctx, all); err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	return nil
}

// DismissPending dismisses every pending execution of one reminder and
// returns how many were affected.
func (l *Ledger) DismissPending(ctx context.Context, reminderID string) (int, error) {
	return l.dismissWhere(ctx, func(e remind.Execution) bool {
		return e.ReminderID == reminderID && e.Status == remind.ExecPending
	})
}

// DismissAllPending dismisses every pending execution of every reminder.
func (l *Ledger) DismissAllPending(ctx context.Context) (int, error) {
	return l.dismissWhere(ctx, func(e remind.Execution) bool {
		return e.Status == remind.ExecPending
	})
}

func (l *Ledger) dismissWhere(ctx context.Context, match func(remind.Execution) bool) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all, err := l.store.Executions(ctx)
	if err != nil {
		return 0, fmt.Errorf("dismiss executions: %w", err)
	}
	n := 0
	for i := range all {
		if match(all[i]) {
			all[i].Status = remind.ExecDismissed
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := l.store.SetExecutions(ctx, all); err != nil {
		return 0, fmt.Errorf("dismiss executions: %w", err)
	}
	return n, nil
}

// DeleteForReminder removes every execution owned by the reminder. This is
// the only path that ever removes ledger entries.
func (l *Ledger) DeleteForReminder(ctx context.Context, reminderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	all, err := l.store.Executions(ctx)
	if err != nil {
		return fmt.Errorf("delete executions: %w", err)
	}
	kept := all[:0]
	for _, e := range all {
		if e.ReminderID != reminderID {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(all) {
		return nil
	}
	if err := l.store.SetExecutions(ctx, kept); err != nil {
		return fmt.Errorf("delete executions: %w", err)
	}
	return nil
}

// ---- Queries ----

// All returns every execution.
func (l *Ledger) All(ctx context.Context) ([]remind.Execution, error) {
	return l.store.Executions(ctx)
}

// Get returns one execution by id.
func (l *Ledger) Get(ctx context.Context, id string) (remind.Execution, error) {
	all, err := l.store.Executions(ctx)
	if err != nil {
		return remind.Execution{}, err
	}
	for _, e := range all {
		if e.ID == id {
			return e, nil
		}
	}
	return remind.Execution{}, ErrNotFound
}

// ForReminder returns the executions owned by one reminder.
func (l *Ledger) ForReminder(ctx context.Context, reminderID string) ([]remind.Execution, error) {
	all, err := l.store.Executions(ctx)
	if err != nil {
		return nil, err
	}
	out := []remind.Execution{}
	for _, e := range all {
		if e.ReminderID == reminderID {
			out = append(out, e)
		}
	}
	return out, nil
}

// InRange returns executions whose ScheduledTime falls in [from, to).
func (l *Ledger) InRange(ctx context.Context, from, to time.Time) ([]remind.Execution, error) {
	all, err := l.store.Executions(ctx)
	if err != nil {
		return nil, err
	}
	out := []remind.Execution{}
	for _, e := range all {
		t := e.ScheduledTime.Time
		if !t.Before(from) && t.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}
