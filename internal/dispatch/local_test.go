package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dailyremind/internal/remind"
	logx "dailyremind/pkg/logx"
)

type recordingHandler struct {
	mu    sync.Mutex
	fired []Payload
	ch    chan Payload
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan Payload, 16)}
}

func (h *recordingHandler) HandleFire(ctx context.Context, p Payload) {
	h.mu.Lock()
	h.fired = append(h.fired, p)
	h.mu.Unlock()
	h.ch <- p
}

func (h *recordingHandler) HandleAction(ctx context.Context, p Payload, r remind.UserResponse) {}

func req(id string, at time.Time) Request {
	return Request{
		ID:      id,
		FireAt:  at,
		Title:   "t",
		Payload: Payload{ReminderID: "r-" + id, ExecutionID: id},
	}
}

func TestScheduleCancelListPending(t *testing.T) {
	ctx := context.Background()
	d := NewLocal(LocalConfig{}, logx.Nop())
	d.SetHandler(newRecordingHandler())
	d.Start(ctx)
	defer d.Stop(ctx)

	far := time.Now().Add(time.Hour)
	if err := d.Schedule(ctx, req("a", far)); err != nil {
		t.Fatal(err)
	}
	if err := d.Schedule(ctx, req("b", far)); err != nil {
		t.Fatal(err)
	}

	ids, err := d.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("pending = %v, want 2 ids", ids)
	}
	if !d.Outstanding("a") {
		t.Fatal("a not outstanding")
	}

	if err := d.Cancel(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if d.Outstanding("a") {
		t.Fatal("a still outstanding after cancel")
	}
	// Canceling an unknown id is harmless.
	if err := d.Cancel(ctx, "ghost"); err != nil {
		t.Fatal(err)
	}
}

func TestScheduleCapacity(t *testing.T) {
	ctx := context.Background()
	d := NewLocal(LocalConfig{Capacity: 2}, logx.Nop())
	d.SetHandler(newRecordingHandler())
	d.Start(ctx)
	defer d.Stop(ctx)

	far := time.Now().Add(time.Hour)
	for i := 0; i < 2; i++ {
		if err := d.Schedule(ctx, req(fmt.Sprintf("r%d", i), far)); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Schedule(ctx, req("overflow", far)); !errors.Is(err, ErrCapacity) {
		t.Fatalf("at-capacity schedule = %v, want ErrCapacity", err)
	}
	// Replacing an outstanding id is not a capacity violation.
	if err := d.Schedule(ctx, req("r0", far.Add(time.Minute))); err != nil {
		t.Fatalf("replace at capacity = %v", err)
	}
	if ids, _ := d.ListPending(ctx); len(ids) != 2 {
		t.Fatalf("pending after replace = %v", ids)
	}
}

func TestScheduleRejectedWhenStopped(t *testing.T) {
	d := NewLocal(LocalConfig{}, logx.Nop())
	err := d.Schedule(context.Background(), req("a", time.Now().Add(time.Hour)))
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Schedule before Start = %v, want ErrStopped", err)
	}
}

func TestFireReachesHandler(t *testing.T) {
	ctx := context.Background()
	h := newRecordingHandler()
	d := NewLocal(LocalConfig{}, logx.Nop())
	d.SetHandler(h)
	d.Start(ctx)
	defer d.Stop(ctx)

	// Due immediately.
	if err := d.Schedule(ctx, req("now", time.Now())); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-h.ch:
		if p.ExecutionID != "now" {
			t.Fatalf("fired payload: %+v", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for fire")
	}
	if d.Outstanding("now") {
		t.Fatal("request still outstanding after fire")
	}
}

func TestCanceledTimerNeverFires(t *testing.T) {
	ctx := context.Background()
	h := newRecordingHandler()
	d := NewLocal(LocalConfig{}, logx.Nop())
	d.SetHandler(h)
	d.Start(ctx)
	defer d.Stop(ctx)

	if err := d.Schedule(ctx, req("soon", time.Now().Add(500*time.Millisecond))); err != nil {
		t.Fatal(err)
	}
	if err := d.Cancel(ctx, "soon"); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-h.ch:
		t.Fatalf("canceled request fired: %+v", p)
	case <-time.After(time.Second):
	}
}

func TestPermissionAlwaysGranted(t *testing.T) {
	d := NewLocal(LocalConfig{}, logx.Nop())
	granted, err := d.RequestPermission(context.Background())
	if err != nil || !granted {
		t.Fatalf("RequestPermission = %v, %v", granted, err)
	}
}
