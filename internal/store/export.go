package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dailyremind/internal/remind"
)

// Document is the full-state export/import format: one JSON document holding
// every collection.
type Document struct {
	Reminders   []remind.Reminder       `json:"reminders"`
	Executions  []remind.Execution      `json:"executions"`
	Stats       map[string]remind.Stats `json:"stats"`
	Preferences remind.Preferences      `json:"preferences"`
	LastSync    remind.Time             `json:"lastSync,omitzero"`
}

// Export serializes the complete store state.
func Export(ctx context.Context, s Store) ([]byte, error) {
	rs, err := s.Reminders(ctx)
	if err != nil {
		return nil, fmt.Errorf("export reminders: %w", err)
	}
	es, err := s.Executions(ctx)
	if err != nil {
		return nil, fmt.Errorf("export executions: %w", err)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("export stats: %w", err)
	}
	p, err := s.Preferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("export preferences: %w", err)
	}
	ls, err := s.LastSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("export lastSync: %w", err)
	}
	doc := Document{
		Reminders:   emptyNotNil(rs),
		Executions:  emptyNotNil(es),
		Stats:       st,
		Preferences: p,
		LastSync:    remind.At(ls),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Import replaces the store state wholesale after structural validation:
// the document must contain at least "reminders" and "preferences".
func Import(ctx context.Context, s Store, data []byte) error {
	// Structural probe first so a malformed document never half-applies.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("import: invalid JSON: %w", err)
	}
	for _, key := range []string{"reminders", "preferences"} {
		if _, ok := probe[key]; !ok {
			return fmt.Errorf("import: missing required section %q", key)
		}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := doc.Preferences.Validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	var errs []error
	for _, r := range doc.Reminders {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("reminder %s: %w", r.ID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("import: %w", errors.Join(errs...))
	}

	if err := s.SetReminders(ctx, doc.Reminders); err != nil {
		return fmt.Errorf("import reminders: %w", err)
	}
	if err := s.SetExecutions(ctx, doc.Executions); err != nil {
		return fmt.Errorf("import executions: %w", err)
	}
	if err := s.SetStats(ctx, doc.Stats); err != nil {
		return fmt.Errorf("import stats: %w", err)
	}
	if err := s.SetPreferences(ctx, doc.Preferences); err != nil {
		return fmt.Errorf("import preferences: %w", err)
	}
	return nil
}
