package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dailyremind/internal/dispatch"
	"dailyremind/internal/ledger"
	"dailyremind/internal/remind"
	"dailyremind/internal/stats"
	"dailyremind/internal/store"
	logx "dailyremind/pkg/logx"
)

// fakeNotifier records scheduler calls.
type fakeNotifier struct {
	mu          sync.Mutex
	scheduleErr error
	scheduled   []string
	canceled    []string
}

func (f *fakeNotifier) Schedule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, id)
	return f.scheduleErr
}

func (f *fakeNotifier) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeNotifier, store.Store, *ledger.Ledger, *stats.Aggregator) {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	led := ledger.New(st, logx.Nop())
	agg := stats.New(st, led, time.UTC, logx.Nop())
	fn := &fakeNotifier{}
	return New(st, led, agg, fn, logx.Nop()), fn, st, led, agg
}

func validInput() Input {
	return Input{
		Title:    "Drink water",
		Category: remind.CategoryHydration,
		Recurrence: remind.RecurrenceConfig{
			Type:            remind.RecurInterval,
			IntervalMinutes: 60,
		},
		Enabled:      true,
		SoundEnabled: true,
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, fn, _, _, _ := newTestService(t)

	r, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if r.ID == "" || r.Status != remind.StatusActive {
		t.Fatalf("created reminder: %+v", r)
	}
	if r.CreatedAt.IsZero() || !r.CreatedAt.Equal(r.UpdatedAt.Time) {
		t.Fatalf("timestamps: created=%v updated=%v", r.CreatedAt, r.UpdatedAt)
	}

	got, err := svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Drink water" {
		t.Fatalf("persisted title = %q", got.Title)
	}
	if len(fn.scheduled) != 1 || fn.scheduled[0] != r.ID {
		t.Fatalf("scheduler calls: %+v", fn.scheduled)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	svc, fn, _, _, _ := newTestService(t)

	in := validInput()
	in.Title = ""
	if _, err := svc.Create(ctx, in); !errors.Is(err, remind.ErrValidation) {
		t.Fatalf("Create = %v, want ErrValidation", err)
	}
	if all, _ := svc.List(ctx); len(all) != 0 {
		t.Fatalf("invalid input persisted %d reminders", len(all))
	}
	if len(fn.scheduled) != 0 {
		t.Fatal("invalid input reached the scheduler")
	}
}

func TestCreateReportsSchedulingFailure(t *testing.T) {
	ctx := context.Background()
	svc, fn, st, _, _ := newTestService(t)
	fn.scheduleErr = dispatch.ErrCapacity

	r, err := svc.Create(ctx, validInput())
	if !errors.Is(err, dispatch.ErrCapacity) {
		t.Fatalf("Create = %v, want ErrCapacity", err)
	}
	if r.ID == "" {
		t.Fatal("reminder not returned alongside the scheduling error")
	}
	// Persist-first: the reminder outlives the refusal.
	all, err := st.Reminders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ID != r.ID {
		t.Fatalf("stored reminders = %+v, want the created one", all)
	}
}

func TestToggleReportsSchedulingFailure(t *testing.T) {
	ctx := context.Background()
	svc, fn, _, _, _ := newTestService(t)

	r, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Toggle(ctx, r.ID); err != nil {
		t.Fatal(err)
	}

	fn.scheduleErr = dispatch.ErrCapacity
	got, err := svc.Toggle(ctx, r.ID)
	if !errors.Is(err, dispatch.ErrCapacity) {
		t.Fatalf("Toggle = %v, want ErrCapacity", err)
	}
	if !got.Enabled {
		t.Fatal("toggle not committed before the scheduling error")
	}
}

func TestCreateFromTemplate(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, _ := newTestService(t)

	r, err := svc.CreateFromTemplate(ctx, "vision-20-20-20")
	if err != nil {
		t.Fatal(err)
	}
	if r.Category != remind.CategoryVision || !r.Enabled {
		t.Fatalf("template instance: %+v", r)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("template produced invalid reminder: %v", err)
	}

	if _, err := svc.CreateFromTemplate(ctx, "no-such-template"); !errors.Is(err, remind.ErrValidation) {
		t.Fatalf("unknown template = %v, want ErrValidation", err)
	}
}

func TestUpdateReschedules(t *testing.T) {
	ctx := context.Background()
	svc, fn, _, _, _ := newTestService(t)

	r, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	in := validInput()
	in.Title = "Drink more water"
	in.Recurrence.IntervalMinutes = 30
	got, err := svc.Update(ctx, r.ID, in)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Drink more water" || got.Recurrence.IntervalMinutes != 30 {
		t.Fatalf("update not applied: %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt.Time) && !got.UpdatedAt.Equal(got.CreatedAt.Time) {
		t.Fatalf("UpdatedAt went backwards: %+v", got)
	}
	// Create + update both re-arm the chain.
	if len(fn.scheduled) != 2 {
		t.Fatalf("scheduler calls after update: %+v", fn.scheduled)
	}

	in.Title = " "
	if _, err := svc.Update(ctx, r.ID, in); !errors.Is(err, remind.ErrValidation) {
		t.Fatalf("invalid update = %v, want ErrValidation", err)
	}
	if _, err := svc.Update(ctx, "ghost", validInput()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update of unknown = %v, want ErrNotFound", err)
	}
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	svc, fn, _, _, _ := newTestService(t)

	r, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Toggle(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Fatal("toggle did not disable")
	}
	// Disabling withdraws the chain.
	if len(fn.canceled) != 1 || fn.canceled[0] != r.ID {
		t.Fatalf("cancel calls after disable: %+v", fn.canceled)
	}

	got, err = svc.Toggle(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Enabled {
		t.Fatal("toggle did not re-enable")
	}
	if len(fn.scheduled) != 2 {
		t.Fatalf("schedule calls after re-enable: %+v", fn.scheduled)
	}
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	svc, fn, st, led, agg := newTestService(t)

	r, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	e, err := led.Append(ctx, r.ID, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := led.Complete(ctx, e.ID, now, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.Recompute(ctx, r.ID); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, r.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Get(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
	if execs, _ := led.ForReminder(ctx, r.ID); len(execs) != 0 {
		t.Fatalf("%d executions survived delete", len(execs))
	}
	if _, ok, _ := agg.Get(ctx, r.ID); ok {
		t.Fatal("stats survived delete")
	}
	if len(fn.canceled) != 1 {
		t.Fatalf("cancel calls on delete: %+v", fn.canceled)
	}
	if all, _ := st.Reminders(ctx); len(all) != 0 {
		t.Fatalf("store still holds %d reminders", len(all))
	}

	if err := svc.Delete(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, _ := newTestService(t)

	times := []time.Time{
		time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
	}
	i := 0
	svc.now = func() time.Time { t := times[i]; i++; return t }

	for range times {
		if _, err := svc.Create(ctx, validInput()); err != nil {
			t.Fatal(err)
		}
	}
	all, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("List = %d reminders, want 3", len(all))
	}
	for j := 1; j < len(all); j++ {
		if all[j].CreatedAt.After(all[j-1].CreatedAt.Time) {
			t.Fatalf("List not newest-first: %v before %v", all[j-1].CreatedAt, all[j].CreatedAt)
		}
	}
}
