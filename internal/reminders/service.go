// Package reminders implements reminder definition CRUD with cascading
// cleanup and scheduler notification.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dailyremind/internal/ledger"
	"dailyremind/internal/remind"
	"dailyremind/internal/stats"
	"dailyremind/internal/store"
	logx "dailyremind/pkg/logx"
)

var ErrNotFound = errors.New("reminder not found")

// Notifier is the slice of the scheduler this service needs: (re)arm or
// withdraw the notification chain for one reminder.
type Notifier interface {
	Schedule(ctx context.Context, reminderID string) error
	Cancel(ctx context.Context, reminderID string) error
}

// Service owns the reminder collection. All mutations persist first and
// notify the scheduler second, so a scheduling failure never loses a write.
type Service struct {
	store    store.Store
	ledger   *ledger.Ledger
	stats    *stats.Aggregator
	notifier Notifier
	log      logx.Logger

	// Serializes read-modify-write cycles on the reminders collection.
	mu  sync.Mutex
	now func() time.Time
}

func New(st store.Store, led *ledger.Ledger, agg *stats.Aggregator, n Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:    st,
		ledger:   led,
		stats:    agg,
		notifier: n,
		log:      log,
		now:      time.Now,
	}
}

// Input carries the user-editable fields of a reminder.
type Input struct {
	Title        string
	Description  string
	Category     remind.Category
	Recurrence   remind.RecurrenceConfig
	Enabled      bool
	SoundEnabled bool
}

// Create validates, persists and schedules a new reminder. The reminder is
// persisted before scheduling, so on a scheduling failure (a full dispatcher,
// typically) the created reminder is returned together with the error.
func (s *Service) Create(ctx context.Context, in Input) (remind.Reminder, error) {
	now := remind.At(s.now())
	r := remind.Reminder{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		Category:     in.Category,
		Recurrence:   in.Recurrence,
		Enabled:      in.Enabled,
		SoundEnabled: in.SoundEnabled,
		Status:       remind.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.Validate(); err != nil {
		return remind.Reminder{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.store.Reminders(ctx)
	if err != nil {
		return remind.Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	all = append(all, r)
	if err := s.store.SetReminders(ctx, all); err != nil {
		return remind.Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	s.log.Info("reminder created",
		logx.String("reminder", r.ID), logx.String("title", r.Title))

	if err := s.notifier.Schedule(ctx, r.ID); err != nil {
		return r, fmt.Errorf("reminder %s created, scheduling: %w", r.ID, err)
	}
	return r, nil
}

// CreateFromTemplate instantiates one of the built-in templates.
func (s *Service) CreateFromTemplate(ctx context.Context, templateID string) (remind.Reminder, error) {
	t, ok := remind.TemplateByID(templateID)
	if !ok {
		return remind.Reminder{}, fmt.Errorf("%w: unknown template %q", remind.ErrValidation, templateID)
	}
	return s.Create(ctx, Input{
		Title:        t.Title,
		Description:  t.Description,
		Category:     t.Category,
		Recurrence:   t.Recurrence,
		Enabled:      true,
		SoundEnabled: true,
	})
}

// Update replaces the editable fields of a reminder and re-arms its chain.
func (s *Service) Update(ctx context.Context, id string, in Input) (remind.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.mutate(ctx, id, func(r *remind.Reminder) {
		r.Title = in.Title
		r.Description = in.Description
		r.Category = in.Category
		r.Recurrence = in.Recurrence
		r.Enabled = in.Enabled
		r.SoundEnabled = in.SoundEnabled
	})
	if err != nil {
		return remind.Reminder{}, err
	}
	return updated, s.reschedule(ctx, updated)
}

// Toggle flips the enabled flag.
func (s *Service) Toggle(ctx context.Context, id string) (remind.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.mutate(ctx, id, func(r *remind.Reminder) {
		r.Enabled = !r.Enabled
	})
	if err != nil {
		return remind.Reminder{}, err
	}
	return updated, s.reschedule(ctx, updated)
}

// SetStatus moves a reminder between active, paused and disabled.
func (s *Service) SetStatus(ctx context.Context, id string, status remind.Status) (remind.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.mutate(ctx, id, func(r *remind.Reminder) {
		r.Status = status
	})
	if err != nil {
		return remind.Reminder{}, err
	}
	return updated, s.reschedule(ctx, updated)
}

// Delete removes a reminder and cascades: outstanding request withdrawn,
// executions removed, stats entry dropped.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.Reminders(ctx)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	kept := all[:0]
	found := false
	for _, r := range all {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return ErrNotFound
	}

	if err := s.notifier.Cancel(ctx, id); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if err := s.store.SetReminders(ctx, kept); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if err := s.ledger.DeleteForReminder(ctx, id); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if err := s.stats.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	s.log.Info("reminder deleted", logx.String("reminder", id))
	return nil
}

// Get returns one reminder by id.
func (s *Service) Get(ctx context.Context, id string) (remind.Reminder, error) {
	all, err := s.store.Reminders(ctx)
	if err != nil {
		return remind.Reminder{}, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return remind.Reminder{}, ErrNotFound
}

// List returns every reminder, newest first.
func (s *Service) List(ctx context.Context) ([]remind.Reminder, error) {
	all, err := s.store.Reminders(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Time.After(all[j].CreatedAt.Time)
	})
	return all, nil
}

// mutate applies fn to the stored reminder, validates, stamps UpdatedAt and
// persists. Caller holds s.mu.
func (s *Service) mutate(ctx context.Context, id string, fn func(*remind.Reminder)) (remind.Reminder, error) {
	all, err := s.store.Reminders(ctx)
	if err != nil {
		return remind.Reminder{}, fmt.Errorf("update reminder: %w", err)
	}
	idx := -1
	for i := range all {
		if all[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return remind.Reminder{}, ErrNotFound
	}
	fn(&all[idx])
	all[idx].UpdatedAt = remind.At(s.now())
	if err := all[idx].Validate(); err != nil {
		return remind.Reminder{}, err
	}
	if err := s.store.SetReminders(ctx, all); err != nil {
		return remind.Reminder{}, fmt.Errorf("update reminder: %w", err)
	}
	return all[idx], nil
}

// reschedule re-arms or withdraws the chain after a mutation. Schedule
// already tears down the old request, so one call covers both directions.
// The mutation itself is committed before this runs; a non-nil return means
// the persisted reminder exists but its chain could not be re-armed.
func (s *Service) reschedule(ctx context.Context, r remind.Reminder) error {
	var err error
	if r.Schedulable() {
		err = s.notifier.Schedule(ctx, r.ID)
	} else {
		err = s.notifier.Cancel(ctx, r.ID)
	}
	if err != nil {
		return fmt.Errorf("reminder %s updated, rearming: %w", r.ID, err)
	}
	return nil
}
