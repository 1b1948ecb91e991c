// Package compose is the toolkit resource composers are built from:
// reference validation, uniqueness pre-checks, record writes and file
// attachment plumbing. Every function takes a Querier so composers run the
// whole write inside the engine's transaction.
package compose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// InsertRecord writes a new row from the input's column-mapped keys and
// returns the stored record. The id is generated app-side unless the input
// carries one.
func InsertRecord(ctx context.Context, q store.Querier, dialect store.Dialect, d *resource.Descriptor, input map[string]any) (map[string]any, error) {
	id, _ := input[d.PrimaryKey].(string)
	if id == "" {
		id = uuid.NewString()
	}

	pb := dialect.NewParamBuilder()
	cols := []string{d.PrimaryKey}
	vals := []string{pb.Add(id)}
	for _, k := range columnKeys(d, input) {
		cols = append(cols, k)
		vals = append(vals, pb.Add(input[k]))
	}
	cols = append(cols, "created_at", "updated_at")
	vals = append(vals, dialect.NowExpr(), dialect.NowExpr())

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Table, strings.Join(cols, ", "), strings.Join(vals, ", "))
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		return nil, dialect.MapError(err)
	}
	return FetchRecord(ctx, q, dialect, d, id)
}

// UpdateRecord applies the input's column-mapped keys to an existing live
// row and returns the stored record.
func UpdateRecord(ctx context.Context, q store.Querier, dialect store.Dialect, d *resource.Descriptor, id string, input map[string]any) (map[string]any, error) {
	pb := dialect.NewParamBuilder()
	sets := make([]string, 0, len(input)+1)
	for _, k := range columnKeys(d, input) {
		sets = append(sets, fmt.Sprintf("%s = %s", k, pb.Add(input[k])))
	}
	sets = append(sets, "updated_at = "+dialect.NowExpr())

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.Table, strings.Join(sets, ", "), d.PrimaryKey, pb.Add(id))
	if d.SoftDelete {
		sql += " AND deleted_at IS NULL"
	}
	n, err := store.Exec(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, dialect.MapError(err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return FetchRecord(ctx, q, dialect, d, id)
}

// SoftDeleteRecord marks a live row deleted. A row that is already gone, or
// never existed, reports not found.
func SoftDeleteRecord(ctx context.Context, q store.Querier, dialect store.Dialect, d *resource.Descriptor, id string) error {
	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("UPDATE %s SET deleted_at = %s, updated_at = %s WHERE %s = %s AND deleted_at IS NULL",
		d.Table, dialect.NowExpr(), dialect.NowExpr(), d.PrimaryKey, pb.Add(id))
	n, err := store.Exec(ctx, q, sql, pb.Params()...)
	if err != nil {
		return dialect.MapError(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// HardDeleteRecord removes a row outright, for resources without soft
// delete.
func HardDeleteRecord(ctx context.Context, q store.Querier, dialect store.Dialect, d *resource.Descriptor, id string) error {
	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.Table, d.PrimaryKey, pb.Add(id))
	n, err := store.Exec(ctx, q, sql, pb.Params()...)
	if err != nil {
		return dialect.MapError(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// FetchRecord reads one live row by primary key.
func FetchRecord(ctx context.Context, q store.Querier, dialect store.Dialect, d *resource.Descriptor, id string) (map[string]any, error) {
	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(d.Columns, ", "), d.Table, d.PrimaryKey, pb.Add(id))
	if d.SoftDelete {
		sql += " AND deleted_at IS NULL"
	}
	return store.QueryRow(ctx, q, sql, pb.Params()...)
}

// RefuseIfChildren rejects a delete while live rows in childTable still
// reference the record.
func RefuseIfChildren(ctx context.Context, q store.Querier, dialect store.Dialect, childTable, fkColumn, id string, childSoftDelete bool, msg string) error {
	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT COUNT(*) AS total FROM %s WHERE %s = %s", childTable, fkColumn, pb.Add(id))
	if childSoftDelete {
		sql += " AND deleted_at IS NULL"
	}
	row, err := store.QueryRow(ctx, q, sql, pb.Params()...)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	var total int64
	if row != nil {
		switch n := row["total"].(type) {
		case int64:
			total = n
		case float64:
			total = int64(n)
		}
	}
	if total > 0 {
		return resource.ConflictError(msg)
	}
	return nil
}

// columnKeys returns the input keys that map to table columns, excluding
// the primary key, in deterministic order.
func columnKeys(d *resource.Descriptor, input map[string]any) []string {
	colSet := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		colSet[c] = true
	}
	keys := make([]string, 0, len(input))
	for k := range input {
		if k != d.PrimaryKey && colSet[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
