// Package recurrence resolves when a reminder is next due.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"dailyremind/internal/remind"
)

// ErrInvalidRecurrence tags configs whose active variant is missing required
// fields. The resolver never guesses a fallback.
var ErrInvalidRecurrence = errors.New("invalid recurrence config")

// Resolver computes the next occurrence for a recurrence config.
//
// The wall-clock variants (daily/multiple/weekly) are compiled to cron
// schedules; cron's Next is strictly-after with seconds zeroed, which is
// exactly the tie-break we need: a reference time equal to the configured
// slot rolls over to the next day. The interval variant is plain duration
// arithmetic from the reference time, millisecond-exact, never snapped to
// wall-clock boundaries.
//
// Resolvers are pure: same config + reference time, same answer.
type Resolver struct {
	loc    *time.Location
	parser cron.Parser
}

// New returns a resolver operating in loc (nil means time.Local).
func New(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{
		loc:    loc,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Next returns the next occurrence strictly after ref, or the zero time when
// the reminder can have none (disabled or not active).
func (r *Resolver) Next(cfg remind.RecurrenceConfig, enabled bool, status remind.Status, ref time.Time) (time.Time, error) {
	if !enabled || status != remind.StatusActive {
		return time.Time{}, nil
	}

	switch cfg.Type {
	case remind.RecurInterval:
		if cfg.IntervalMinutes < 1 {
			return time.Time{}, fmt.Errorf("%w: interval requires intervalMinutes >= 1", ErrInvalidRecurrence)
		}
		return ref.Add(time.Duration(cfg.IntervalMinutes) * time.Minute), nil

	case remind.RecurDaily:
		if cfg.DailyTime == nil {
			return time.Time{}, fmt.Errorf("%w: daily requires dailyTime", ErrInvalidRecurrence)
		}
		return r.nextCron(dailySpec(*cfg.DailyTime), ref)

	case remind.RecurMultiple:
		if len(cfg.MultipleTimes) == 0 {
			return time.Time{}, fmt.Errorf("%w: multiple requires at least one time slot", ErrInvalidRecurrence)
		}
		var best time.Time
		for _, s := range cfg.MultipleTimes {
			next, err := r.nextCron(dailySpec(s), ref)
			if err != nil {
				return time.Time{}, err
			}
			if best.IsZero() || next.Before(best) {
				best = next
			}
		}
		return best, nil

	case remind.RecurWeekly:
		if len(cfg.WeeklyDays) == 0 || cfg.WeeklyTime == nil {
			return time.Time{}, fmt.Errorf("%w: weekly requires weeklyDays and weeklyTime", ErrInvalidRecurrence)
		}
		return r.nextCron(weeklySpec(cfg.WeeklyDays, *cfg.WeeklyTime), ref)

	default:
		return time.Time{}, fmt.Errorf("%w: unknown type %q", ErrInvalidRecurrence, cfg.Type)
	}
}

func (r *Resolver) nextCron(spec string, ref time.Time) (time.Time, error) {
	sched, err := r.parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	next := sched.Next(ref.In(r.loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: no next occurrence for %q", ErrInvalidRecurrence, spec)
	}
	return next, nil
}

func dailySpec(s remind.TimeSlot) string {
	return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
}

func weeklySpec(days []int, s remind.TimeSlot) string {
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)
	parts := make([]string, 0, len(sorted))
	for _, d := range sorted {
		parts = append(parts, strconv.Itoa(d))
	}
	return fmt.Sprintf("%d %d * * %s", s.Minute, s.Hour, strings.Join(parts, ","))
}
