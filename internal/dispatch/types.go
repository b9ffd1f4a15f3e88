// Package dispatch abstracts the mechanism that delivers a notification at a
// scheduled wall-clock time.
package dispatch

import (
	"context"
	"errors"
	"time"

	"dailyremind/internal/remind"
)

var (
	// ErrCapacity means the dispatcher cannot accept more outstanding
	// requests (platform ceiling). The caller owns retrying later.
	ErrCapacity = errors.New("dispatcher capacity exceeded")
	// ErrPermissionDenied means the platform refused notification capability.
	ErrPermissionDenied = errors.New("notification permission denied")
	ErrStopped          = errors.New("dispatcher stopped")
)

// Payload ties a dispatch request back to the execution it will resolve.
type Payload struct {
	ReminderID  string `json:"reminderId"`
	ExecutionID string `json:"executionId"`
}

// Request is a one-shot delivery request. ID doubles as the cancel handle;
// scheduling an ID that is already outstanding replaces the earlier request.
type Request struct {
	ID      string
	FireAt  time.Time
	Title   string
	Body    string
	Sound   bool
	Payload Payload
}

// Handler receives dispatcher callbacks. Implementations must tolerate
// payloads referencing reminders or executions that no longer exist.
type Handler interface {
	HandleFire(ctx context.Context, p Payload)
	HandleAction(ctx context.Context, p Payload, response remind.UserResponse)
}

// Dispatcher schedules one-shot alerts at absolute times.
type Dispatcher interface {
	RequestPermission(ctx context.Context) (bool, error)
	Schedule(ctx context.Context, req Request) error
	Cancel(ctx context.Context, id string) error
	ListPending(ctx context.Context) ([]string, error)
}
