package stats

import (
	"context"
	"fmt"
	"time"

	"dailyremind/internal/remind"
)

// Rollup is an aggregate completion summary over a time window.
type Rollup struct {
	Completed      int `json:"completed"`
	Total          int `json:"total"`
	CompletionRate int `json:"completionRate"`
}

// Summary is the dashboard view: window rollups plus reminder counts.
type Summary struct {
	Today           Rollup `json:"today"`
	Week            Rollup `json:"week"`
	TotalReminders  int    `json:"totalReminders"`
	ActiveReminders int    `json:"activeReminders"`
}

// Today summarizes executions scheduled today (local calendar day).
func (a *Aggregator) Today(ctx context.Context) (Rollup, error) {
	now := a.now().In(a.loc)
	start := dayOf(now)
	return a.window(ctx, start, start.AddDate(0, 0, 1))
}

// Week summarizes executions scheduled since the start of the week (Sunday).
func (a *Aggregator) Week(ctx context.Context) (Rollup, error) {
	now := a.now().In(a.loc)
	start := dayOf(now).AddDate(0, 0, -int(now.Weekday()))
	return a.window(ctx, start, dayOf(now).AddDate(0, 0, 1))
}

func (a *Aggregator) window(ctx context.Context, from, to time.Time) (Rollup, error) {
	execs, err := a.ledger.InRange(ctx, from, to)
	if err != nil {
		return Rollup{}, fmt.Errorf("rollup: %w", err)
	}
	r := Rollup{Total: len(execs)}
	for _, e := range execs {
		if e.Status == remind.ExecCompleted {
			r.Completed++
		}
	}
	r.CompletionRate = rate(r.Completed, r.Total)
	return r, nil
}

// Summarize builds the dashboard summary.
func (a *Aggregator) Summarize(ctx context.Context) (Summary, error) {
	today, err := a.Today(ctx)
	if err != nil {
		return Summary{}, err
	}
	week, err := a.Week(ctx)
	if err != nil {
		return Summary{}, err
	}
	rs, err := a.store.Reminders(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("rollup: %w", err)
	}
	sum := Summary{Today: today, Week: week, TotalReminders: len(rs)}
	for _, r := range rs {
		if r.Schedulable() {
			sum.ActiveReminders++
		}
	}
	return sum, nil
}
