// Package stats derives completion statistics from the execution ledger.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"dailyremind/internal/ledger"
	"dailyremind/internal/remind"
	"dailyremind/internal/store"
	logx "dailyremind/pkg/logx"
)

// Aggregator recomputes per-reminder statistics wholesale from the ledger
// and derives dashboard rollups on demand. Stats records are never
// hand-edited; the ledger is the source of truth.
type Aggregator struct {
	store  store.Store
	ledger *ledger.Ledger
	log    logx.Logger
	loc    *time.Location

	// now is swappable for tests.
	now func() time.Time
}

func New(st store.Store, led *ledger.Ledger, loc *time.Location, log logx.Logger) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{store: st, ledger: led, log: log, loc: loc, now: time.Now}
}

// Recompute rebuilds and persists the stats record for one reminder.
func (a *Aggregator) Recompute(ctx context.Context, reminderID string) (remind.Stats, error) {
	execs, err := a.ledger.ForReminder(ctx, reminderID)
	if err != nil {
		return remind.Stats{}, fmt.Errorf("recompute stats: %w", err)
	}

	st := Compute(reminderID, execs, a.now().In(a.loc))

	all, err := a.store.Stats(ctx)
	if err != nil {
		return remind.Stats{}, fmt.Errorf("recompute stats: %w", err)
	}
	all[reminderID] = st
	if err := a.store.SetStats(ctx, all); err != nil {
		return remind.Stats{}, fmt.Errorf("recompute stats: %w", err)
	}
	a.log.Debug("stats recomputed",
		logx.String("reminder", reminderID),
		logx.Int("completed", st.TotalCompleted),
		logx.Int("streak", st.Streak))
	return st, nil
}

// Get returns the stored stats record for one reminder, if any.
func (a *Aggregator) Get(ctx context.Context, reminderID string) (remind.Stats, bool, error) {
	all, err := a.store.Stats(ctx)
	if err != nil {
		return remind.Stats{}, false, err
	}
	st, ok := all[reminderID]
	return st, ok, nil
}

// Delete removes the stats record of a deleted reminder.
func (a *Aggregator) Delete(ctx context.Context, reminderID string) error {
	all, err := a.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("delete stats: %w", err)
	}
	if _, ok := all[reminderID]; !ok {
		return nil
	}
	delete(all, reminderID)
	if err := a.store.SetStats(ctx, all); err != nil {
		return fmt.Errorf("delete stats: %w", err)
	}
	return nil
}

// Compute is the pure aggregation over one reminder's executions.
// now anchors the streak walk to "today" in the caller's location.
func Compute(reminderID string, execs []remind.Execution, now time.Time) remind.Stats {
	st := remind.Stats{ReminderID: reminderID}
	var lastCompleted time.Time
	for _, e := range execs {
		st.TotalScheduled++
		switch e.Status {
		case remind.ExecCompleted:
			st.TotalCompleted++
			if t := e.ExecutedTime.Time; !t.IsZero() && t.After(lastCompleted) {
				lastCompleted = t
			}
		case remind.ExecDismissed:
			st.TotalDismissed++
		case remind.ExecMissed:
			st.TotalMissed++
		}
	}
	st.CompletionRate = rate(st.TotalCompleted, st.TotalScheduled)
	st.Streak = streak(execs, now)
	st.LastCompleted = remind.At(lastCompleted)
	return st
}

func rate(completed, scheduled int) int {
	if scheduled == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(scheduled)))
}

// streak counts consecutive calendar days with at least one completed
// execution, walking backward one day at a time starting from today.
// A day without a completion ends the chain, so no completion today means
// streak 0 regardless of history.
func streak(execs []remind.Execution, now time.Time) int {
	days := make([]time.Time, 0, len(execs))
	for _, e := range execs {
		if e.Status != remind.ExecCompleted || e.ExecutedTime.IsZero() {
			continue
		}
		days = append(days, dayOf(e.ExecutedTime.Time.In(now.Location())))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	n := 0
	cursor := dayOf(now)
	for _, d := range days {
		if d.Equal(cursor) {
			n++
			cursor = cursor.AddDate(0, 0, -1)
		} else if d.Before(cursor) {
			// Gap: chain broken.
			break
		}
		// d after cursor means another completion on an already counted
		// day; skip it.
	}
	return n
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
