package remind

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation tags every rejection of malformed user input. Callers match
// it with errors.Is.
var ErrValidation = errors.New("validation failed")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Validate checks that the fields of the active variant are present and
// in range. Fields belonging to other variants are ignored; a missing
// required field is an error, never a silent default.
func (c RecurrenceConfig) Validate() error {
	switch c.Type {
	case RecurInterval:
		if c.IntervalMinutes < 1 {
			return invalidf("interval recurrence requires intervalMinutes >= 1")
		}
	case RecurDaily:
		if c.DailyTime == nil {
			return invalidf("daily recurrence requires dailyTime")
		}
		if !c.DailyTime.valid() {
			return invalidf("daily recurrence: time %s out of range", c.DailyTime)
		}
	case RecurMultiple:
		if len(c.MultipleTimes) == 0 {
			return invalidf("multiple recurrence requires at least one time slot")
		}
		for _, s := range c.MultipleTimes {
			if !s.valid() {
				return invalidf("multiple recurrence: time %s out of range", s)
			}
		}
	case RecurWeekly:
		if len(c.WeeklyDays) == 0 {
			return invalidf("weekly recurrence requires at least one weekday")
		}
		for _, d := range c.WeeklyDays {
			if d < 0 || d > 6 {
				return invalidf("weekly recurrence: weekday %d out of range 0-6", d)
			}
		}
		if c.WeeklyTime == nil {
			return invalidf("weekly recurrence requires weeklyTime")
		}
		if !c.WeeklyTime.valid() {
			return invalidf("weekly recurrence: time %s out of range", c.WeeklyTime)
		}
	default:
		return invalidf("unknown recurrence type %q", c.Type)
	}
	return nil
}

// Validate checks reminder fields that user input can get wrong.
func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return invalidf("title required")
	}
	if !knownCategory(r.Category) {
		return invalidf("unknown category %q", r.Category)
	}
	switch r.Status {
	case StatusActive, StatusPaused, StatusDisabled:
	default:
		return invalidf("unknown status %q", r.Status)
	}
	return r.Recurrence.Validate()
}

func knownCategory(c Category) bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Validate checks preference fields that reach the scheduler.
func (p Preferences) Validate() error {
	if p.QuietHours.Enabled {
		if !p.QuietHours.StartTime.valid() || !p.QuietHours.EndTime.valid() {
			return invalidf("quiet hours window out of range")
		}
	}
	for _, m := range p.SnoozeOptions {
		if m < 1 {
			return invalidf("snooze option %d must be >= 1 minute", m)
		}
	}
	return nil
}
