package compose

import (
	"context"
	"errors"
	"fmt"

	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// ValidateReferences checks every declared foreign key present in the input
// against its target table. A key that points at a missing, deleted or
// inactive row fails validation; absent keys are skipped so partial updates
// stay cheap.
func ValidateReferences(ctx context.Context, q store.Querier, dialect store.Dialect, refs []resource.Reference, input map[string]any) error {
	for _, ref := range refs {
		raw, present := input[ref.Field]
		if !present || raw == nil {
			continue
		}
		id := fmt.Sprintf("%v", raw)

		column := ref.Column
		if column == "" {
			column = "id"
		}

		pb := dialect.NewParamBuilder()
		sql := fmt.Sprintf("SELECT 1 AS ok FROM %s WHERE %s = %s", ref.Table, column, pb.Add(id))
		if ref.SoftDelete {
			sql += " AND deleted_at IS NULL"
		}
		if ref.RequireActive {
			sql += " AND is_active"
		}

		_, err := store.QueryRow(ctx, q, sql, pb.Params()...)
		if errors.Is(err, store.ErrNotFound) {
			return resource.ValidationErrorf(ref.Field, "reference",
				"%s refers to a missing or inactive row in %s", ref.Field, ref.Table)
		}
		if err != nil {
			return fmt.Errorf("validate reference %s: %w", ref.Field, err)
		}
	}
	return nil
}
