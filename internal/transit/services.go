// Package transit configures the managed resources of the transit domain:
// zones, stops, lines, vehicles and settings. Everything here is descriptor
// wiring and per-resource business logic; the generic engine does the rest.
package transit

import (
	"context"

	"transit-backend/internal/audit"
	"transit-backend/internal/localized"
	"transit-backend/internal/resource"
	"transit-backend/internal/storage"
	"transit-backend/internal/store"
)

// Services bundles the collaborators the composers capture at wiring time.
type Services struct {
	Store    *store.Store
	Text     *localized.Service
	Files    *storage.Service
	Audit    *audit.Recorder
	Settings *SettingsCache
}

// applyTextFields moves localized payload fields into their bundle-id
// columns, creating or rewriting text_blocks rows inside the transaction.
// fields maps payload field name to column name (e.g. name to name_id).
func (s Services) applyTextFields(ctx context.Context, q store.Querier, current, input map[string]any, fields map[string]string) error {
	for field, column := range fields {
		raw, present := input[field]
		if !present {
			continue
		}
		delete(input, field)

		if raw == nil {
			input[column] = nil
			continue
		}
		translations, ok := raw.(map[string]any)
		if !ok {
			return resource.ValidationErrorf(field, "type", "%s must be a map of language to string", field)
		}

		currentID := ""
		if current != nil {
			currentID, _ = current[column].(string)
		}
		id, err := s.Text.Upsert(ctx, q, currentID, translations)
		if err != nil {
			return err
		}
		input[column] = id
	}
	return nil
}
