package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"transit-backend/internal/store"
)

type IncludeKind string

const (
	IncludeParent     IncludeKind = "parent"       // fk on this row points at a related row
	IncludeChildren   IncludeKind = "children"     // related rows carry a fk back to this row
	IncludeManyToMany IncludeKind = "many_to_many" // join table between this row and related rows
	IncludeText       IncludeKind = "text"         // fk on this row points at a localized text block
)

// Include is one entry of a resource's relation-inclusion spec. Includes are
// descriptor-owned and loaded on every read of the resource.
type Include struct {
	Name string
	Kind IncludeKind

	Table      string   // related table (parent, children, many_to_many)
	Columns    []string // columns to fetch from the related table
	SoftDelete bool     // related table carries deleted_at

	LocalField string // fk on this resource (parent, text)
	ForeignKey string // fk on the related table (children)

	JoinTable string // many_to_many only
	SourceKey string
	TargetKey string
}

// LoadIncludes fetches related data and attaches it to the parent rows.
func LoadIncludes(ctx context.Context, q store.Querier, dialect store.Dialect, d *Descriptor, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	for _, inc := range d.Includes {
		var err error
		switch inc.Kind {
		case IncludeParent:
			err = loadParent(ctx, q, dialect, inc, rows)
		case IncludeChildren:
			err = loadChildren(ctx, q, dialect, d, inc, rows)
		case IncludeManyToMany:
			err = loadManyToMany(ctx, q, dialect, d, inc, rows)
		case IncludeText:
			err = loadTextBlocks(ctx, q, dialect, inc, rows)
		default:
			err = fmt.Errorf("unknown include kind: %s", inc.Kind)
		}
		if err != nil {
			return fmt.Errorf("load include %s: %w", inc.Name, err)
		}
	}
	return nil
}

func loadParent(ctx context.Context, q store.Querier, dialect store.Dialect, inc Include, rows []map[string]any) error {
	fkValues := collectValues(rows, inc.LocalField)
	if len(fkValues) == 0 {
		for _, row := range rows {
			row[inc.Name] = nil
		}
		return nil
	}

	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(inc.Columns, ", "), inc.Table, dialect.InExpr("id", pb, fkValues))
	if inc.SoftDelete {
		sql += " AND deleted_at IS NULL"
	}
	parentRows, err := store.QueryRows(ctx, q, sql, pb.Params()...)
	if err != nil {
		return err
	}

	byID := indexByKey(parentRows, "id")
	for _, row := range rows {
		row[inc.Name] = byID[fmt.Sprintf("%v", row[inc.LocalField])]
	}
	return nil
}

func loadChildren(ctx context.Context, q store.Querier, dialect store.Dialect, d *Descriptor, inc Include, rows []map[string]any) error {
	parentIDs := collectValues(rows, d.PrimaryKey)
	if len(parentIDs) == 0 {
		return nil
	}

	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(inc.Columns, ", "), inc.Table, dialect.InExpr(inc.ForeignKey, pb, parentIDs))
	if inc.SoftDelete {
		sql += " AND deleted_at IS NULL"
	}
	childRows, err := store.QueryRows(ctx, q, sql, pb.Params()...)
	if err != nil {
		return err
	}

	grouped := make(map[string][]map[string]any)
	for _, child := range childRows {
		fk := fmt.Sprintf("%v", child[inc.ForeignKey])
		grouped[fk] = append(grouped[fk], child)
	}
	for _, row := range rows {
		pk := fmt.Sprintf("%v", row[d.PrimaryKey])
		children := grouped[pk]
		if children == nil {
			children = []map[string]any{}
		}
		row[inc.Name] = children
	}
	return nil
}

func loadManyToMany(ctx context.Context, q store.Querier, dialect store.Dialect, d *Descriptor, inc Include, rows []map[string]any) error {
	parentIDs := collectValues(rows, d.PrimaryKey)
	if len(parentIDs) == 0 {
		return nil
	}

	pb := dialect.NewParamBuilder()
	joinSQL := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s",
		inc.SourceKey, inc.TargetKey, inc.JoinTable, dialect.InExpr(inc.SourceKey, pb, parentIDs))
	joinRows, err := store.QueryRows(ctx, q, joinSQL, pb.Params()...)
	if err != nil {
		return err
	}

	if len(joinRows) == 0 {
		for _, row := range rows {
			row[inc.Name] = []map[string]any{}
		}
		return nil
	}

	targetIDs := make([]any, 0, len(joinRows))
	seen := make(map[string]bool)
	for _, jr := range joinRows {
		tid := fmt.Sprintf("%v", jr[inc.TargetKey])
		if !seen[tid] {
			seen[tid] = true
			targetIDs = append(targetIDs, jr[inc.TargetKey])
		}
	}

	pb = dialect.NewParamBuilder()
	targetSQL := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(inc.Columns, ", "), inc.Table, dialect.InExpr("id", pb, targetIDs))
	if inc.SoftDelete {
		targetSQL += " AND deleted_at IS NULL"
	}
	targetRows, err := store.QueryRows(ctx, q, targetSQL, pb.Params()...)
	if err != nil {
		return err
	}
	targetByID := indexByKey(targetRows, "id")

	sourceToTargets := make(map[string][]map[string]any)
	for _, jr := range joinRows {
		sid := fmt.Sprintf("%v", jr[inc.SourceKey])
		tid := fmt.Sprintf("%v", jr[inc.TargetKey])
		if target, ok := targetByID[tid]; ok {
			sourceToTargets[sid] = append(sourceToTargets[sid], target)
		}
	}
	for _, row := range rows {
		pk := fmt.Sprintf("%v", row[d.PrimaryKey])
		targets := sourceToTargets[pk]
		if targets == nil {
			targets = []map[string]any{}
		}
		row[inc.Name] = targets
	}
	return nil
}

// loadTextBlocks resolves localized text bundle ids into language maps,
// attached under the include name (e.g. name_id -> name).
func loadTextBlocks(ctx context.Context, q store.Querier, dialect store.Dialect, inc Include, rows []map[string]any) error {
	ids := collectValues(rows, inc.LocalField)
	if len(ids) == 0 {
		for _, row := range rows {
			row[inc.Name] = nil
		}
		return nil
	}

	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT id, translations FROM text_blocks WHERE %s",
		dialect.InExpr("id", pb, ids))
	blockRows, err := store.QueryRows(ctx, q, sql, pb.Params()...)
	if err != nil {
		return err
	}

	byID := make(map[string]map[string]string, len(blockRows))
	for _, br := range blockRows {
		translations, err := decodeTranslations(br["translations"])
		if err != nil {
			return err
		}
		byID[fmt.Sprintf("%v", br["id"])] = translations
	}
	for _, row := range rows {
		if block, ok := byID[fmt.Sprintf("%v", row[inc.LocalField])]; ok {
			row[inc.Name] = block
		} else {
			row[inc.Name] = nil
		}
	}
	return nil
}

func decodeTranslations(v any) (map[string]string, error) {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return map[string]string{}, nil
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		return nil, fmt.Errorf("unexpected translations type %T", v)
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode translations: %w", err)
	}
	return out, nil
}

func collectValues(rows []map[string]any, field string) []any {
	seen := make(map[string]bool)
	var values []any
	for _, row := range rows {
		v := row[field]
		if v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if !seen[s] {
			seen[s] = true
			values = append(values, v)
		}
	}
	return values
}

func indexByKey(rows []map[string]any, key string) map[string]map[string]any {
	m := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		if v := row[key]; v != nil {
			m[fmt.Sprintf("%v", v)] = row
		}
	}
	return m
}
