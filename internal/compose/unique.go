package compose

import (
	"context"
	"errors"
	"fmt"

	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// CheckUnique pre-checks the declared unique fields inside the write
// transaction so a duplicate reports a clean conflict instead of a raw
// driver error. The database constraint stays as the backstop for races;
// the driver error is mapped to the same conflict by the dialect.
func CheckUnique(ctx context.Context, q store.Querier, dialect store.Dialect, d *resource.Descriptor, input map[string]any, excludeID string) error {
	for _, field := range d.UniqueFields {
		raw, present := input[field]
		if !present || raw == nil {
			continue
		}

		pb := dialect.NewParamBuilder()
		sql := fmt.Sprintf("SELECT 1 AS ok FROM %s WHERE %s = %s", d.Table, field, pb.Add(raw))
		if d.SoftDelete {
			sql += " AND deleted_at IS NULL"
		}
		if excludeID != "" {
			sql += fmt.Sprintf(" AND %s != %s", d.PrimaryKey, pb.Add(excludeID))
		}

		_, err := store.QueryRow(ctx, q, sql, pb.Params()...)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("uniqueness check %s.%s: %w", d.Name, field, err)
		}
		return resource.ConflictError(fmt.Sprintf("A %s with this %s already exists", d.Name, field))
	}
	return nil
}
