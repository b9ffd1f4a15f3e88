package app

import (
	"context"
	"fmt"

	"dailyremind/internal/remind"
	"dailyremind/internal/store"
	logx "dailyremind/pkg/logx"
)

// Preferences returns the stored user preferences.
func (a *App) Preferences(ctx context.Context) (remind.Preferences, error) {
	return a.store.Preferences(ctx)
}

// UpdatePreferences validates and persists new preferences. Flipping the
// global notifications switch rebuilds or tears down every chain; changed
// quiet hours take effect on each reminder's next scheduling.
func (a *App) UpdatePreferences(ctx context.Context, p remind.Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	prev, err := a.store.Preferences(ctx)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	if err := a.store.SetPreferences(ctx, p); err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}

	switch {
	case p.NotificationsEnabled && !prev.NotificationsEnabled:
		if err := a.scheduler.ScheduleAll(ctx); err != nil {
			a.log.Warn("rescheduling after enable incomplete", logx.Err(err))
		}
	case !p.NotificationsEnabled && prev.NotificationsEnabled:
		if err := a.scheduler.CancelAll(ctx); err != nil {
			a.log.Warn("cancellation after disable incomplete", logx.Err(err))
		}
	case p.QuietHours != prev.QuietHours:
		if err := a.scheduler.ScheduleAll(ctx); err != nil {
			a.log.Warn("rescheduling after quiet-hours change incomplete", logx.Err(err))
		}
	}
	return nil
}

// Export serializes the whole engine state as one JSON document.
func (a *App) Export(ctx context.Context) ([]byte, error) {
	return store.Export(ctx, a.store)
}

// Import replaces the whole engine state from an exported document, then
// rebuilds every notification chain against the new data.
func (a *App) Import(ctx context.Context, data []byte) error {
	if err := a.scheduler.CancelAll(ctx); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := store.Import(ctx, a.store, data); err != nil {
		return err
	}
	if err := a.scheduler.Reconcile(ctx); err != nil {
		a.log.Warn("post-import reconciliation incomplete", logx.Err(err))
	}
	if err := a.scheduler.ScheduleAll(ctx); err != nil {
		a.log.Warn("post-import scheduling incomplete", logx.Err(err))
	}
	return nil
}
