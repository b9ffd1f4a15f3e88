package remind

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category groups reminders for templates and dashboard rollups.
type Category string

const (
	CategoryPosture   Category = "posture"
	CategoryVision    Category = "vision"
	CategoryJaw       Category = "jaw"
	CategoryHydration Category = "hydration"
	CategoryBreathing Category = "breathing"
	CategoryCustom    Category = "custom"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryPosture, CategoryVision, CategoryJaw,
	CategoryHydration, CategoryBreathing, CategoryCustom,
}

// Status is the user-visible lifecycle state of a reminder.
// Only active reminders ever produce occurrences.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusDisabled Status = "disabled"
)

// RecurrenceType selects the active variant of a RecurrenceConfig.
type RecurrenceType string

const (
	RecurInterval RecurrenceType = "interval" // every N minutes from "now"
	RecurDaily    RecurrenceType = "daily"    // once per day at a fixed time
	RecurMultiple RecurrenceType = "multiple" // several fixed times per day
	RecurWeekly   RecurrenceType = "weekly"   // fixed time on a set of weekdays
)

// TimeSlot is a wall-clock time of day.
type TimeSlot struct {
	Hour   int `json:"hour"`   // 0-23
	Minute int `json:"minute"` // 0-59
}

func (s TimeSlot) Minutes() int { return s.Hour*60 + s.Minute }

func (s TimeSlot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

func (s TimeSlot) valid() bool {
	return s.Hour >= 0 && s.Hour <= 23 && s.Minute >= 0 && s.Minute <= 59
}

// ParseTimeSlot parses "HH:MM" (also "H:MM") into a TimeSlot.
func ParseTimeSlot(raw string) (TimeSlot, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return TimeSlot{}, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeSlot{}, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeSlot{}, fmt.Errorf("invalid minute in %q", raw)
	}
	return TimeSlot{Hour: h, Minute: m}, nil
}

// RecurrenceConfig is a tagged union over the four recurrence variants.
// Only the fields of the active variant (per Type) are meaningful.
type RecurrenceConfig struct {
	Type RecurrenceType `json:"type"`

	// interval
	IntervalMinutes int `json:"intervalMinutes,omitempty"`
	// daily
	DailyTime *TimeSlot `json:"dailyTime,omitempty"`
	// multiple
	MultipleTimes []TimeSlot `json:"multipleTimes,omitempty"`
	// weekly (days: 0=Sunday .. 6=Saturday)
	WeeklyDays []int     `json:"weeklyDays,omitempty"`
	WeeklyTime *TimeSlot `json:"weeklyTime,omitempty"`
}

// Reminder is a user-defined recurring reminder.
type Reminder struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Category    Category         `json:"category"`
	Recurrence  RecurrenceConfig `json:"recurrence"`
	Status      Status           `json:"status"`
	Enabled     bool             `json:"isEnabled"`
	Icon        string           `json:"icon,omitempty"`

	SoundEnabled     bool `json:"soundEnabled"`
	VibrationEnabled bool `json:"vibrationEnabled"`

	CreatedAt Time `json:"createdAt"`
	UpdatedAt Time `json:"updatedAt"`
}

// Schedulable reports whether the reminder may produce occurrences at all.
func (r Reminder) Schedulable() bool {
	return r.Enabled && r.Status == StatusActive
}

// ExecutionStatus is the lifecycle state of one due occurrence.
// pending is the only non-terminal state.
type ExecutionStatus string

const (
	ExecPending   ExecutionStatus = "pending"
	ExecCompleted ExecutionStatus = "completed"
	ExecDismissed ExecutionStatus = "dismissed"
	ExecMissed    ExecutionStatus = "missed"
)

// Terminal reports whether the status allows no further transitions.
func (s ExecutionStatus) Terminal() bool { return s != ExecPending }

// UserResponse records how the user reacted to a delivered notification.
type UserResponse string

const (
	ResponseAcknowledged UserResponse = "acknowledged"
	ResponseSnoozed      UserResponse = "snoozed"
	ResponseDismissed    UserResponse = "dismissed"
)

// Execution is one concrete due occurrence of a reminder and its outcome.
type Execution struct {
	ID            string          `json:"id"`
	ReminderID    string          `json:"reminderId"`
	ScheduledTime Time            `json:"scheduledTime"`
	ExecutedTime  Time            `json:"executedTime,omitzero"`
	Status        ExecutionStatus `json:"status"`
	UserResponse  UserResponse    `json:"userResponse,omitempty"`
	SnoozeUntil   Time            `json:"snoozeUntil,omitzero"`
}

// Stats is the derived per-reminder statistics record. It is recomputed
// wholesale from the execution ledger and never hand-edited.
type Stats struct {
	ReminderID     string `json:"reminderId"`
	TotalScheduled int    `json:"totalScheduled"`
	TotalCompleted int    `json:"totalCompleted"`
	TotalDismissed int    `json:"totalDismissed"`
	TotalMissed    int    `json:"totalMissed"`
	CompletionRate int    `json:"completionRate"` // rounded percentage
	Streak         int    `json:"streak"`         // consecutive days ending today
	LastCompleted  Time   `json:"lastCompleted,omitzero"`
}

// QuietHours is a daily suppression window; it may wrap midnight
// (e.g. 22:00 to 07:00).
type QuietHours struct {
	Enabled   bool     `json:"enabled"`
	StartTime TimeSlot `json:"startTime"`
	EndTime   TimeSlot `json:"endTime"`
}

// Contains reports whether the wall-clock time of t falls inside the window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	cur := t.Hour()*60 + t.Minute()
	start := q.StartTime.Minutes()
	end := q.EndTime.Minutes()
	if start <= end {
		return cur >= start && cur <= end
	}
	// Window wraps midnight.
	return cur >= start || cur <= end
}

// Preferences are user-level settings. The scheduler reads them only to gate
// whether scheduling happens at all and to defer quiet-hours deliveries.
type Preferences struct {
	Theme                string     `json:"theme"`
	NotificationsEnabled bool       `json:"notificationsEnabled"`
	SoundEnabled         bool       `json:"soundEnabled"`
	VibrationEnabled     bool       `json:"vibrationEnabled"`
	QuietHours           QuietHours `json:"quietHours"`
	SnoozeOptions        []int      `json:"snoozeOptions"` // minutes
}

// DefaultPreferences returns the out-of-the-box settings.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:                "system",
		NotificationsEnabled: true,
		SoundEnabled:         true,
		VibrationEnabled:     true,
		QuietHours: QuietHours{
			Enabled:   false,
			StartTime: TimeSlot{Hour: 22},
			EndTime:   TimeSlot{Hour: 7},
		},
		SnoozeOptions: []int{5, 10, 15, 30},
	}
}
