// Package scheduler mediates between recurrence resolution, the execution
// ledger and the notification dispatcher.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dailyremind/internal/dispatch"
	"dailyremind/internal/eventbus"
	"dailyremind/internal/ledger"
	"dailyremind/internal/recurrence"
	"dailyremind/internal/remind"
	"dailyremind/internal/stats"
	"dailyremind/internal/store"
	logx "dailyremind/pkg/logx"
)

// Event types published on the bus.
const (
	EventScheduled = "reminder.scheduled"
	EventCanceled  = "reminder.canceled"
	EventCompleted = "execution.completed"
	EventDismissed = "execution.dismissed"
	EventMissed    = "execution.missed"
	EventSnoozed   = "execution.snoozed"
	EventDegraded  = "scheduler.degraded"
)

var (
	// ErrSnoozeLimit means the execution has been snoozed the maximum
	// number of times.
	ErrSnoozeLimit = errors.New("snooze limit reached")
	// ErrNotOutstanding means the execution is not the reminder's live
	// dispatch request (already fired, canceled or replaced).
	ErrNotOutstanding = errors.New("execution has no outstanding request")
)

// Config controls scheduler behavior.
type Config struct {
	// ReconcileGrace is how far past its due time a pending execution with
	// no outstanding request may drift before the sweep marks it missed.
	// Default 10m.
	ReconcileGrace time.Duration
	// MaxSnoozes caps snoozes per execution. Default 3.
	MaxSnoozes int
	// DefaultSnooze is used when a snooze action carries no duration.
	// Default 10m.
	DefaultSnooze time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconcileGrace <= 0 {
		c.ReconcileGrace = 10 * time.Minute
	}
	if c.MaxSnoozes <= 0 {
		c.MaxSnoozes = 3
	}
	if c.DefaultSnooze <= 0 {
		c.DefaultSnooze = 10 * time.Minute
	}
	return c
}

// entry is the per-reminder scheduling state: Idle when executionID is
// empty, Scheduled when it names the pending execution whose dispatch
// request is outstanding. entry.mu serializes every scheduling operation
// for its reminder; operations on different reminders run concurrently.
type entry struct {
	mu          sync.Mutex
	executionID string
	snoozes     int
}

// Service is the notification scheduler. The chain of occurrences is
// self-perpetuating: each fire completes the pending execution and
// immediately schedules the next one, keeping at most one outstanding
// dispatch request per reminder.
type Service struct {
	log      logx.Logger
	cfg      Config
	store    store.Store
	ledger   *ledger.Ledger
	stats    *stats.Aggregator
	resolver *recurrence.Resolver
	disp     dispatch.Dispatcher
	bus      eventbus.Bus
	loc      *time.Location

	// now is swappable for tests.
	now func() time.Time

	mu      sync.Mutex
	granted bool
	entries map[string]*entry
}

func New(cfg Config, st store.Store, led *ledger.Ledger, agg *stats.Aggregator,
	res *recurrence.Resolver, disp dispatch.Dispatcher, bus eventbus.Bus,
	loc *time.Location, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		cfg:      cfg.withDefaults(),
		store:    st,
		ledger:   led,
		stats:    agg,
		resolver: res,
		disp:     disp,
		bus:      bus,
		loc:      loc,
		now:      time.Now,
		entries:  map[string]*entry{},
	}
}

// Init asks the dispatcher for notification permission. When denied the
// scheduler stays inert for every reminder and signals degraded mode.
func (s *Service) Init(ctx context.Context) (bool, error) {
	granted, err := s.disp.RequestPermission(ctx)
	if err != nil {
		return false, fmt.Errorf("request permission: %w", err)
	}
	s.mu.Lock()
	s.granted = granted
	s.mu.Unlock()
	if !granted {
		s.log.Warn("notification permission denied, scheduler degraded")
		s.publish(EventDegraded, nil)
	}
	return granted, nil
}

// Granted reports whether notification permission was granted.
func (s *Service) Granted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted
}

func (s *Service) entryFor(reminderID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[reminderID]
	if !ok {
		e = &entry{}
		s.entries[reminderID] = e
	}
	return e
}

// Schedule queues the next occurrence of one reminder. Any outstanding
// request is withdrawn first, so at most one execution per reminder is ever
// pending. Preconditions unmet (permission denied, notifications off,
// reminder disabled or not active) make it a successful no-op.
func (s *Service) Schedule(ctx context.Context, reminderID string) error {
	e := s.entryFor(reminderID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.scheduleLocked(ctx, e, reminderID)
}

// scheduleLocked does the work of Schedule. Caller holds e.mu.
func (s *Service) scheduleLocked(ctx context.Context, e *entry, reminderID string) error {
	if err := s.cancelOutstandingLocked(ctx, e, reminderID); err != nil {
		return err
	}

	if !s.Granted() {
		return nil
	}
	prefs, err := s.store.Preferences(ctx)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", reminderID, err)
	}
	if !prefs.NotificationsEnabled {
		return nil
	}

	r, ok, err := s.findReminder(ctx, reminderID)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", reminderID, err)
	}
	if !ok || !r.Schedulable() {
		return nil
	}

	next, err := s.resolver.Next(r.Recurrence, r.Enabled, r.Status, s.now().In(s.loc))
	if err != nil {
		return fmt.Errorf("schedule %s: %w", reminderID, err)
	}
	if next.IsZero() {
		return nil
	}
	if prefs.QuietHours.Contains(next) {
		deferred := quietEnd(prefs.QuietHours, next)
		s.log.Debug("occurrence deferred past quiet hours",
			logx.String("reminder", reminderID),
			logx.Time("from", next), logx.Time("to", deferred))
		next = deferred
	}

	exec, err := s.ledger.Append(ctx, reminderID, next)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", reminderID, err)
	}

	req := dispatch.Request{
		ID:     exec.ID,
		FireAt: next,
		Title:  r.Title,
		Body:   bodyFor(r),
		Sound:  r.SoundEnabled && prefs.SoundEnabled,
		Payload: dispatch.Payload{
			ReminderID:  reminderID,
			ExecutionID: exec.ID,
		},
	}
	if err := s.disp.Schedule(ctx, req); err != nil {
		// The dispatcher refused (typically capacity). Roll the pending
		// execution back to dismissed and surface the error; a later
		// Schedule retries.
		if derr := s.ledger.Dismiss(ctx, exec.ID); derr != nil {
			s.log.Warn("rollback of refused execution failed",
				logx.String("execution", exec.ID), logx.Err(derr))
		}
		return fmt.Errorf("schedule %s: %w", reminderID, err)
	}

	e.executionID = exec.ID
	e.snoozes = 0
	s.publish(EventScheduled, dispatch.Payload{ReminderID: reminderID, ExecutionID: exec.ID})
	s.log.Debug("reminder scheduled",
		logx.String("reminder", reminderID),
		logx.String("execution", exec.ID),
		logx.Time("at", next))
	return nil
}

// cancelOutstandingLocked withdraws the live dispatch request, if any, and
// dismisses every pending execution of the reminder. Pending executions can
// outlive the process that appended them, so dismissal goes by reminder
// rather than by the in-memory request id. Caller holds e.mu.
func (s *Service) cancelOutstandingLocked(ctx context.Context, e *entry, reminderID string) error {
	if e.executionID != "" {
		if err := s.disp.Cancel(ctx, e.executionID); err != nil {
			return fmt.Errorf("cancel request %s: %w", e.executionID, err)
		}
		e.executionID = ""
		e.snoozes = 0
	}
	if _, err := s.ledger.DismissPending(ctx, reminderID); err != nil {
		return fmt.Errorf("dismiss pending %s: %w", reminderID, err)
	}
	return nil
}

// Cancel withdraws any outstanding request for the reminder and dismisses
// its pending executions, returning the reminder to Idle.
func (s *Service) Cancel(ctx context.Context, reminderID string) error {
	e := s.entryFor(reminderID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.cancelOutstandingLocked(ctx, e, reminderID); err != nil {
		return fmt.Errorf("cancel %s: %w", reminderID, err)
	}
	s.publish(EventCanceled, dispatch.Payload{ReminderID: reminderID})
	return nil
}

// ScheduleAll schedules every enabled active reminder. Used on startup and
// when notifications are re-enabled globally. Per-reminder failures are
// joined so one capacity refusal doesn't hide the rest.
func (s *Service) ScheduleAll(ctx context.Context) error {
	rs, err := s.store.Reminders(ctx)
	if err != nil {
		return fmt.Errorf("schedule all: %w", err)
	}
	var errs []error
	for _, r := range rs {
		if !r.Schedulable() {
			continue
		}
		if err := s.Schedule(ctx, r.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CancelAll withdraws every outstanding request and dismisses every pending
// execution. Used on global disable.
func (s *Service) CancelAll(ctx context.Context) error {
	rs, err := s.store.Reminders(ctx)
	if err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	var errs []error
	for _, r := range rs {
		if err := s.Cancel(ctx, r.ID); err != nil {
			errs = append(errs, err)
		}
	}
	// Catch pending executions whose reminder is already gone.
	if _, err := s.ledger.DismissAllPending(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) findReminder(ctx context.Context, id string) (remind.Reminder, bool, error) {
	rs, err := s.store.Reminders(ctx)
	if err != nil {
		return remind.Reminder{}, false, err
	}
	for _, r := range rs {
		if r.ID == id {
			return r, true, nil
		}
	}
	return remind.Reminder{}, false, nil
}

func (s *Service) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

func bodyFor(r remind.Reminder) string {
	if r.Description != "" {
		return r.Description
	}
	return "Time for your health reminder!"
}

// quietEnd returns the first instant at or after t's minute where the
// quiet-hours window has ended. The window is end-inclusive, so a t inside
// the end minute keeps today's end and the delivery goes out right away.
func quietEnd(q remind.QuietHours, t time.Time) time.Time {
	end := time.Date(t.Year(), t.Month(), t.Day(), q.EndTime.Hour, q.EndTime.Minute, 0, 0, t.Location())
	if end.Before(t.Truncate(time.Minute)) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}
