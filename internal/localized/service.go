// Package localized manages shared localized text bundles. A bundle is one
// text_blocks row holding a language-to-string map; resources reference
// bundles by id and present them inline through their includes.
package localized

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"transit-backend/internal/store"
)

type Service struct {
	Dialect store.Dialect
}

func NewService(dialect store.Dialect) *Service {
	return &Service{Dialect: dialect}
}

// Create stores a new bundle and returns its id.
func (s *Service) Create(ctx context.Context, q store.Querier, translations map[string]any) (string, error) {
	encoded, err := encodeTranslations(translations)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()

	pb := s.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("INSERT INTO text_blocks (id, translations, created_at, updated_at) VALUES (%s, %s, %s, %s)",
		pb.Add(id), pb.Add(encoded), s.Dialect.NowExpr(), s.Dialect.NowExpr())
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		return "", s.Dialect.MapError(err)
	}
	return id, nil
}

// Replace overwrites an existing bundle's translations.
func (s *Service) Replace(ctx context.Context, q store.Querier, id string, translations map[string]any) error {
	encoded, err := encodeTranslations(translations)
	if err != nil {
		return err
	}

	pb := s.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("UPDATE text_blocks SET translations = %s, updated_at = %s WHERE id = %s",
		pb.Add(encoded), s.Dialect.NowExpr(), pb.Add(id))
	n, err := store.Exec(ctx, q, sql, pb.Params()...)
	if err != nil {
		return s.Dialect.MapError(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Upsert writes the translations into the bundle the record already points
// at, or creates a fresh bundle, returning the bundle id either way. A nil
// bundle id on a record with no translations yet is the create path.
func (s *Service) Upsert(ctx context.Context, q store.Querier, currentID string, translations map[string]any) (string, error) {
	if currentID == "" {
		return s.Create(ctx, q, translations)
	}
	if err := s.Replace(ctx, q, currentID, translations); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.Create(ctx, q, translations)
		}
		return "", err
	}
	return currentID, nil
}

// Delete removes a bundle, for cleanup when its owning record is purged.
func (s *Service) Delete(ctx context.Context, q store.Querier, id string) error {
	pb := s.Dialect.NewParamBuilder()
	sql := "DELETE FROM text_blocks WHERE id = " + pb.Add(id)
	_, err := store.Exec(ctx, q, sql, pb.Params()...)
	return err
}

func encodeTranslations(translations map[string]any) (string, error) {
	out := make(map[string]string, len(translations))
	for lang, v := range translations {
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("translation %s is not a string", lang)
		}
		out[lang] = s
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode translations: %w", err)
	}
	return string(raw), nil
}
