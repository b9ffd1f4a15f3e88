package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dailyremind/internal/dispatch"
	"dailyremind/internal/ledger"
	"dailyremind/internal/remind"
	logx "dailyremind/pkg/logx"
)

// HandleFire runs when a dispatched notification is delivered. Delivery
// alone counts as completion; the chain continues with the next occurrence.
func (s *Service) HandleFire(ctx context.Context, p dispatch.Payload) {
	s.resolve(ctx, p, remind.ExecCompleted, "")
}

// HandleAction runs when the user acts on a delivered notification.
func (s *Service) HandleAction(ctx context.Context, p dispatch.Payload, response remind.UserResponse) {
	switch response {
	case remind.ResponseSnoozed:
		if err := s.SnoozeFor(ctx, p.ExecutionID, s.cfg.DefaultSnooze); err != nil {
			s.log.Debug("snooze action dropped",
				logx.String("execution", p.ExecutionID), logx.Err(err))
		}
	case remind.ResponseDismissed:
		s.resolve(ctx, p, remind.ExecDismissed, response)
	default:
		s.resolve(ctx, p, remind.ExecCompleted, response)
	}
}

// resolve finishes the callback's execution and schedules the next
// occurrence. Stale payloads (unknown, already-terminal, or superseded
// executions) are silently ignored.
func (s *Service) resolve(ctx context.Context, p dispatch.Payload, outcome remind.ExecutionStatus, response remind.UserResponse) {
	e := s.entryFor(p.ReminderID)
	e.mu.Lock()
	defer e.mu.Unlock()

	exec, err := s.ledger.Get(ctx, p.ExecutionID)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			s.log.Warn("callback lookup failed",
				logx.String("execution", p.ExecutionID), logx.Err(err))
		}
		return
	}
	if exec.ReminderID != p.ReminderID || exec.Status != remind.ExecPending {
		return
	}
	// A payload for an execution the scheduler has already replaced is
	// stale even if the ledger row is still pending.
	if e.executionID != "" && e.executionID != p.ExecutionID {
		return
	}

	switch outcome {
	case remind.ExecDismissed:
		err = s.ledger.Dismiss(ctx, p.ExecutionID)
	default:
		err = s.ledger.Complete(ctx, p.ExecutionID, s.now(), response)
	}
	if err != nil {
		if errors.Is(err, ledger.ErrNotPending) {
			return
		}
		s.log.Warn("execution transition failed",
			logx.String("execution", p.ExecutionID), logx.Err(err))
		return
	}
	e.executionID = ""
	e.snoozes = 0

	if outcome == remind.ExecDismissed {
		s.publish(EventDismissed, p)
	} else {
		s.publish(EventCompleted, p)
	}
	if _, err := s.stats.Recompute(ctx, p.ReminderID); err != nil {
		s.log.Warn("stats recompute failed",
			logx.String("reminder", p.ReminderID), logx.Err(err))
	}
	if err := s.scheduleLocked(ctx, e, p.ReminderID); err != nil {
		// Capacity or storage trouble; the reconciliation sweep or the
		// next explicit Schedule restarts the chain.
		s.log.Warn("reschedule after callback failed",
			logx.String("reminder", p.ReminderID), logx.Err(err))
	}
}

// SnoozeFor pushes the execution's outstanding request d into the future.
// The execution stays pending and keeps its ID; the dispatcher request is
// replaced in place, so the at-most-one invariant holds throughout.
func (s *Service) SnoozeFor(ctx context.Context, executionID string, d time.Duration) error {
	if d <= 0 {
		d = s.cfg.DefaultSnooze
	}
	exec, err := s.ledger.Get(ctx, executionID)
	if err != nil {
		return err
	}

	e := s.entryFor(exec.ReminderID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.executionID != executionID {
		return ErrNotOutstanding
	}
	if e.snoozes >= s.cfg.MaxSnoozes {
		return ErrSnoozeLimit
	}
	// Re-read under the entry lock; the callback path may have resolved it.
	exec, err = s.ledger.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != remind.ExecPending {
		return ledger.ErrNotPending
	}

	r, ok, err := s.findReminder(ctx, exec.ReminderID)
	if err != nil {
		return fmt.Errorf("snooze %s: %w", executionID, err)
	}
	if !ok {
		return ErrNotOutstanding
	}
	prefs, err := s.store.Preferences(ctx)
	if err != nil {
		return fmt.Errorf("snooze %s: %w", executionID, err)
	}

	until := s.now().Add(d)
	if err := s.ledger.Snooze(ctx, executionID, until); err != nil {
		return err
	}
	req := dispatch.Request{
		ID:     executionID,
		FireAt: until,
		Title:  r.Title,
		Body:   bodyFor(r),
		Sound:  r.SoundEnabled && prefs.SoundEnabled,
		Payload: dispatch.Payload{
			ReminderID:  exec.ReminderID,
			ExecutionID: executionID,
		},
	}
	if err := s.disp.Schedule(ctx, req); err != nil {
		return fmt.Errorf("snooze %s: %w", executionID, err)
	}
	e.snoozes++
	s.publish(EventSnoozed, req.Payload)
	s.log.Debug("execution snoozed",
		logx.String("execution", executionID),
		logx.Int("count", e.snoozes),
		logx.Time("until", until))
	return nil
}

// Reconcile sweeps the ledger for pending executions whose due time passed
// more than the grace period ago without a callback (process downtime,
// dropped platform request). Each is marked missed and its reminder's chain
// is restarted.
func (s *Service) Reconcile(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.cfg.ReconcileGrace)

	all, err := s.ledger.All(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	outstanding := map[string]bool{}
	if ids, err := s.disp.ListPending(ctx); err == nil {
		for _, id := range ids {
			outstanding[id] = true
		}
	} else {
		s.log.Warn("reconcile: listing pending requests failed", logx.Err(err))
	}

	var errs []error
	missed := 0
	for _, exec := range all {
		if exec.Status != remind.ExecPending {
			continue
		}
		due := exec.ScheduledTime.Time
		if !exec.SnoozeUntil.IsZero() {
			due = exec.SnoozeUntil.Time
		}
		if !due.Before(cutoff) {
			continue
		}
		// A request the dispatcher still holds will fire on its own.
		if outstanding[exec.ID] {
			continue
		}
		if err := s.reconcileOne(ctx, exec); err != nil {
			errs = append(errs, err)
			continue
		}
		missed++
	}
	if missed > 0 {
		s.log.Info("reconciliation marked executions missed", logx.Int("count", missed))
	}
	return errors.Join(errs...)
}

func (s *Service) reconcileOne(ctx context.Context, exec remind.Execution) error {
	e := s.entryFor(exec.ReminderID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ledger.MarkMissed(ctx, exec.ID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrNotPending) {
			return nil
		}
		return fmt.Errorf("reconcile %s: %w", exec.ID, err)
	}
	if e.executionID == exec.ID {
		e.executionID = ""
		e.snoozes = 0
	}
	s.publish(EventMissed, dispatch.Payload{ReminderID: exec.ReminderID, ExecutionID: exec.ID})
	if _, err := s.stats.Recompute(ctx, exec.ReminderID); err != nil {
		s.log.Warn("stats recompute failed",
			logx.String("reminder", exec.ReminderID), logx.Err(err))
	}
	if err := s.scheduleLocked(ctx, e, exec.ReminderID); err != nil {
		return fmt.Errorf("reconcile %s: %w", exec.ReminderID, err)
	}
	return nil
}
