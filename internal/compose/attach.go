package compose

import (
	"context"
	"errors"
	"fmt"

	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// Upload is a new file carried inline in a write payload.
type Upload struct {
	Name string
	Mime string
	Data string // base64 content
}

// PartitionFileRefs splits a files payload field into already-stored file
// ids and new inline uploads. The payload validator has checked the shape;
// entries missing both id and data never get this far.
func PartitionFileRefs(field string, entries []any) (ids []string, uploads []Upload, err error) {
	for i, item := range entries {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, nil, resource.ValidationErrorf(field, "type", "%s[%d] must be an object", field, i)
		}
		if id, ok := entry["id"].(string); ok && id != "" {
			ids = append(ids, id)
			continue
		}
		data, _ := entry["data"].(string)
		if data == "" {
			return nil, nil, resource.ValidationErrorf(field, "format", "%s[%d] needs either an id or upload data", field, i)
		}
		name, _ := entry["name"].(string)
		mime, _ := entry["mime"].(string)
		uploads = append(uploads, Upload{Name: name, Mime: mime, Data: data})
	}
	return ids, uploads, nil
}

// ValidateFileIDs confirms every referenced file id exists.
func ValidateFileIDs(ctx context.Context, q store.Querier, dialect store.Dialect, field string, ids []string) error {
	for _, id := range ids {
		pb := dialect.NewParamBuilder()
		sql := "SELECT 1 AS ok FROM _files WHERE id = " + pb.Add(id)
		if _, err := store.QueryRow(ctx, q, sql, pb.Params()...); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return resource.ValidationErrorf(field, "reference", "%s refers to unknown file %s", field, id)
			}
			return fmt.Errorf("validate file id %s: %w", id, err)
		}
	}
	return nil
}

// ReplaceFileLinks replaces the owner's rows in a file join table with the
// given file ids, preserving payload order.
func ReplaceFileLinks(ctx context.Context, q store.Querier, dialect store.Dialect, joinTable, ownerKey, fileKey, ownerID string, fileIDs []string) error {
	pb := dialect.NewParamBuilder()
	delSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", joinTable, ownerKey, pb.Add(ownerID))
	if _, err := store.Exec(ctx, q, delSQL, pb.Params()...); err != nil {
		return fmt.Errorf("clear file links: %w", err)
	}

	for pos, fileID := range fileIDs {
		pb = dialect.NewParamBuilder()
		insSQL := fmt.Sprintf("INSERT INTO %s (%s, %s, position) VALUES (%s, %s, %s)",
			joinTable, ownerKey, fileKey, pb.Add(ownerID), pb.Add(fileID), pb.Add(pos))
		if _, err := store.Exec(ctx, q, insSQL, pb.Params()...); err != nil {
			return dialect.MapError(err)
		}
	}
	return nil
}
