package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"dailyremind/internal/remind"
	"dailyremind/internal/store"
	logx "dailyremind/pkg/logx"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, logx.Nop())
}

func TestAppendAndLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	exec, err := l.Append(ctx, "r1", at)
	if err != nil {
		t.Fatal(err)
	}
	if exec.ID == "" || exec.Status != remind.ExecPending {
		t.Fatalf("unexpected appended execution: %+v", exec)
	}
	if !exec.ScheduledTime.Equal(at) {
		t.Fatalf("scheduled time = %v, want %v", exec.ScheduledTime, at)
	}

	done := at.Add(5 * time.Minute)
	if err := l.Complete(ctx, exec.ID, done, remind.ResponseAcknowledged); err != nil {
		t.Fatal(err)
	}
	got, err := l.Get(ctx, exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != remind.ExecCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if !got.ExecutedTime.Equal(done) {
		t.Fatalf("executed time = %v, want %v", got.ExecutedTime, done)
	}
	if got.UserResponse != remind.ResponseAcknowledged {
		t.Fatalf("response = %s, want acknowledged", got.UserResponse)
	}

	// Terminal states accept no further transitions.
	if err := l.Dismiss(ctx, exec.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("dismiss of completed = %v, want ErrNotPending", err)
	}
	if err := l.Complete(ctx, exec.ID, done, ""); !errors.Is(err, ErrNotPending) {
		t.Fatalf("double complete = %v, want ErrNotPending", err)
	}
}

func TestGetUnknown(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(unknown) = %v, want ErrNotFound", err)
	}
	if err := l.MarkMissed(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkMissed(unknown) = %v, want ErrNotFound", err)
	}
}

func TestSnoozeKeepsPending(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	exec, err := l.Append(ctx, "r1", at)
	if err != nil {
		t.Fatal(err)
	}
	until := at.Add(10 * time.Minute)
	if err := l.Snooze(ctx, exec.ID, until); err != nil {
		t.Fatal(err)
	}
	got, err := l.Get(ctx, exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != remind.ExecPending {
		t.Fatalf("snoozed status = %s, want pending", got.Status)
	}
	if !got.SnoozeUntil.Equal(until) {
		t.Fatalf("snoozeUntil = %v, want %v", got.SnoozeUntil, until)
	}
	if got.UserResponse != remind.ResponseSnoozed {
		t.Fatalf("response = %s, want snoozed", got.UserResponse)
	}
}

func TestDismissPendingScopes(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	a1, _ := l.Append(ctx, "a", at)
	a2, _ := l.Append(ctx, "a", at.Add(time.Hour))
	b1, _ := l.Append(ctx, "b", at)
	if err := l.Complete(ctx, a2.ID, at.Add(time.Hour), ""); err != nil {
		t.Fatal(err)
	}

	n, err := l.DismissPending(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("DismissPending(a) = %d, want 1", n)
	}
	if got, _ := l.Get(ctx, a1.ID); got.Status != remind.ExecDismissed {
		t.Fatalf("a1 status = %s, want dismissed", got.Status)
	}
	if got, _ := l.Get(ctx, a2.ID); got.Status != remind.ExecCompleted {
		t.Fatalf("a2 status changed to %s", got.Status)
	}
	if got, _ := l.Get(ctx, b1.ID); got.Status != remind.ExecPending {
		t.Fatalf("b1 status = %s, want pending", got.Status)
	}

	n, err = l.DismissAllPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("DismissAllPending = %d, want 1", n)
	}
}

func TestDeleteForReminderCascade(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	l.Append(ctx, "a", at)
	l.Append(ctx, "a", at.Add(time.Hour))
	keep, _ := l.Append(ctx, "b", at)

	if err := l.DeleteForReminder(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	all, err := l.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ID != keep.ID {
		t.Fatalf("after cascade: %+v, want only %s", all, keep.ID)
	}
	if got, err := l.ForReminder(ctx, "a"); err != nil || len(got) != 0 {
		t.Fatalf("ForReminder(a) = %v, %v, want empty", got, err)
	}
}

func TestInRange(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	before, _ := l.Append(ctx, "r", day.Add(-time.Hour))
	in, _ := l.Append(ctx, "r", day.Add(9*time.Hour))
	edge, _ := l.Append(ctx, "r", day.AddDate(0, 0, 1))

	got, err := l.InRange(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != in.ID {
		t.Fatalf("InRange = %+v, want only %s (not %s or %s)", got, in.ID, before.ID, edge.ID)
	}
}
