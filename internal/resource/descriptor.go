package resource

import (
	"context"
	"fmt"

	"transit-backend/internal/store"
)

type Operation string

const (
	OpView   Operation = "view"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Field types understood by the filter compiler and payload validator.
const (
	TypeString   = "string"
	TypeNumber   = "number"
	TypeBoolean  = "boolean"
	TypeDate     = "date"
	TypeRelation = "relation"
	TypeEnum     = "enum"
	TypeText       = "text"        // localized text bundle (payload only)
	TypeFiles      = "files"       // file attachment list (payload only)
	TypeStringList = "string_list" // list of ids (payload only)
)

// FilterOptions tunes how one field may be filtered.
type FilterOptions struct {
	MultiSelect bool
	Range       bool
	ExactMatch  bool
	Transform   string   // expr source applied to the raw value before coercion
	Operators   []string // extra comparison operators exposed as field.op keys

	transform *transformProgram
}

// FieldConfig describes one filterable/searchable attribute of a resource.
type FieldConfig struct {
	Type          string
	Searchable    bool
	RelationField string // set iff Type == TypeRelation
	Enum          []string
	Filters       *FilterOptions
}

// FieldSpec is one entry of a create/update payload schema.
type FieldSpec struct {
	Name     string
	Type     string
	Required bool
	Enum     []string
}

// Reference declares a foreign key in a write payload that must resolve to a
// live row.
type Reference struct {
	Field         string // payload field holding the id
	Table         string
	Column        string // defaults to "id"
	RequireActive bool   // also require is_active
	SoftDelete    bool   // target table carries deleted_at
}

type SortSpec struct {
	Field string
	Desc  bool
}

// FieldGuard requires an extra permission when a write touches Field.
// When is optional; if set, the guard only fires when it returns true for
// the incoming value.
type FieldGuard struct {
	Field    string
	Requires string
	When     func(value any) bool
}

// Composer is the per-resource transactional business logic. All methods run
// inside the engine's transaction; any returned error rolls it back.
type Composer interface {
	Create(ctx context.Context, q store.Querier, input map[string]any) (map[string]any, error)
	Update(ctx context.Context, q store.Querier, id string, input map[string]any) (map[string]any, error)
	Delete(ctx context.Context, q store.Querier, id string) error
}

// Descriptor is the static description of one manageable resource. It is
// built once at startup and shared read-only across requests.
type Descriptor struct {
	Name       string
	Table      string
	PrimaryKey string
	SoftDelete bool

	// Columns is the ordered select list for reads.
	Columns []string

	Fields map[string]*FieldConfig

	CreateSchema []FieldSpec
	UpdateSchema []FieldSpec

	References    []Reference
	UniqueFields  []string
	ExcludeFields []string
	DefaultSort   SortSpec
	Includes      []Include

	Permissions      map[Operation]string
	PublicOperations []Operation
	FieldGuards      []FieldGuard

	Hooks    Hooks
	Composer Composer
}

// Validate checks descriptor invariants. Called at registration; a
// misconfigured descriptor is a programming error.
func (d *Descriptor) Validate() error {
	if d.Name == "" || d.Table == "" {
		return fmt.Errorf("descriptor needs name and table")
	}
	if d.PrimaryKey == "" {
		d.PrimaryKey = "id"
	}
	for name, f := range d.Fields {
		if (f.Type == TypeRelation) != (f.RelationField != "") {
			return fmt.Errorf("%s.%s: relationField must be set iff type is relation", d.Name, name)
		}
		if f.Type == TypeEnum && len(f.Enum) == 0 {
			return fmt.Errorf("%s.%s: enum field needs values", d.Name, name)
		}
		if f.Filters != nil && f.Filters.Transform != "" {
			prog, err := compileTransform(f.Filters.Transform)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", d.Name, name, err)
			}
			f.Filters.transform = prog
		}
	}
	if d.DefaultSort.Field == "" {
		d.DefaultSort = SortSpec{Field: d.PrimaryKey}
	}
	if !d.sortable(d.DefaultSort.Field) {
		return fmt.Errorf("%s: default sort field %s is not a known column", d.Name, d.DefaultSort.Field)
	}
	if d.Composer == nil {
		return fmt.Errorf("%s: composer is required", d.Name)
	}
	return nil
}

// IsPublic reports whether the operation was explicitly declared unguarded.
func (d *Descriptor) IsPublic(op Operation) bool {
	for _, p := range d.PublicOperations {
		if p == op {
			return true
		}
	}
	return false
}

// BooleanFields lists fields of boolean type, used for driver bool fixes.
func (d *Descriptor) BooleanFields() []string {
	var out []string
	for name, f := range d.Fields {
		if f.Type == TypeBoolean {
			out = append(out, name)
		}
	}
	return out
}

func (d *Descriptor) sortable(field string) bool {
	for _, c := range d.Columns {
		if c == field {
			return true
		}
	}
	return false
}
