package transit

import (
	"context"
	"fmt"

	"transit-backend/internal/compose"
	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// LineDescriptor configures the transit-line resource. The mode filter
// normalizes its raw value through an expression so clients may send any
// casing; the stops payload field replaces the line_stops route as a set.
func LineDescriptor(s Services) *resource.Descriptor {
	modes := []string{"bus", "tram", "express"}
	d := &resource.Descriptor{
		Name:       "lines",
		Table:      "lines",
		SoftDelete: true,
		Columns:    []string{"id", "number", "mode", "color", "name_id", "description_id", "is_active", "created_at", "updated_at"},
		Fields: map[string]*resource.FieldConfig{
			"number": {Type: resource.TypeString, Searchable: true, Filters: &resource.FilterOptions{ExactMatch: true}},
			"mode": {Type: resource.TypeEnum, Enum: modes, Filters: &resource.FilterOptions{
				MultiSelect: true,
				Transform:   "lower(trim(value))",
			}},
			"color":      {Type: resource.TypeString},
			"is_active":  {Type: resource.TypeBoolean},
			"created_at": {Type: resource.TypeDate, Filters: &resource.FilterOptions{Range: true}},
		},
		CreateSchema: []resource.FieldSpec{
			{Name: "number", Type: resource.TypeString, Required: true},
			{Name: "mode", Type: resource.TypeEnum, Enum: modes, Required: true},
			{Name: "color", Type: resource.TypeString},
			{Name: "name", Type: resource.TypeText, Required: true},
			{Name: "description", Type: resource.TypeText},
			{Name: "stops", Type: resource.TypeStringList},
			{Name: "is_active", Type: resource.TypeBoolean},
		},
		UpdateSchema: []resource.FieldSpec{
			{Name: "number", Type: resource.TypeString},
			{Name: "mode", Type: resource.TypeEnum, Enum: modes},
			{Name: "color", Type: resource.TypeString},
			{Name: "name", Type: resource.TypeText},
			{Name: "description", Type: resource.TypeText},
			{Name: "stops", Type: resource.TypeStringList},
			{Name: "is_active", Type: resource.TypeBoolean},
		},
		UniqueFields: []string{"number"},
		DefaultSort:  resource.SortSpec{Field: "number"},
		Includes: []resource.Include{
			{Name: "name", Kind: resource.IncludeText, LocalField: "name_id"},
			{Name: "description", Kind: resource.IncludeText, LocalField: "description_id"},
			{Name: "stops", Kind: resource.IncludeManyToMany, Table: "stops",
				JoinTable: "line_stops", SourceKey: "line_id", TargetKey: "stop_id",
				Columns: []string{"id", "code", "zone_id", "lat", "lng", "is_active"}, SoftDelete: true},
		},
		Permissions: map[resource.Operation]string{
			resource.OpView:   "lines.view",
			resource.OpCreate: "lines.create",
			resource.OpUpdate: "lines.update",
			resource.OpDelete: "lines.delete",
		},
		PublicOperations: []resource.Operation{resource.OpView},
		Hooks:            s.Audit.Hooks("lines"),
	}
	d.Composer = &lineComposer{
		GenericComposer: *compose.NewGenericComposer(d, s.Store.Dialect),
		svc:             s,
	}
	return d
}

type lineComposer struct {
	compose.GenericComposer
	svc Services
}

var lineTextFields = map[string]string{"name": "name_id", "description": "description_id"}

func (lc *lineComposer) Create(ctx context.Context, q store.Querier, input map[string]any) (map[string]any, error) {
	stops, replaceStops := takeStringList(input, "stops")
	if err := lc.svc.applyTextFields(ctx, q, nil, input, lineTextFields); err != nil {
		return nil, err
	}
	record, err := lc.GenericComposer.Create(ctx, q, input)
	if err != nil {
		return nil, err
	}
	if replaceStops {
		id, _ := record["id"].(string)
		if err := lc.replaceRoute(ctx, q, id, stops); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (lc *lineComposer) Update(ctx context.Context, q store.Querier, id string, input map[string]any) (map[string]any, error) {
	stops, replaceStops := takeStringList(input, "stops")
	current, err := compose.FetchRecord(ctx, q, lc.Dialect, lc.Desc, id)
	if err != nil {
		return nil, err
	}
	if err := lc.svc.applyTextFields(ctx, q, current, input, lineTextFields); err != nil {
		return nil, err
	}
	record, err := lc.GenericComposer.Update(ctx, q, id, input)
	if err != nil {
		return nil, err
	}
	if replaceStops {
		if err := lc.replaceRoute(ctx, q, id, stops); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (lc *lineComposer) Delete(ctx context.Context, q store.Querier, id string) error {
	if err := compose.RefuseIfChildren(ctx, q, lc.Dialect, "vehicles", "line_id", id, true,
		"Line still has vehicles assigned to it"); err != nil {
		return err
	}
	pb := lc.Dialect.NewParamBuilder()
	if _, err := store.Exec(ctx, q, "DELETE FROM line_stops WHERE line_id = "+pb.Add(id), pb.Params()...); err != nil {
		return fmt.Errorf("clear line route: %w", err)
	}
	return lc.GenericComposer.Delete(ctx, q, id)
}

// replaceRoute swaps the line's ordered stop set. Every referenced stop must
// be a live, active stop.
func (lc *lineComposer) replaceRoute(ctx context.Context, q store.Querier, lineID string, stopIDs []string) error {
	for _, stopID := range stopIDs {
		ref := []resource.Reference{{Field: "stops", Table: "stops", RequireActive: true, SoftDelete: true}}
		if err := compose.ValidateReferences(ctx, q, lc.Dialect, ref, map[string]any{"stops": stopID}); err != nil {
			return err
		}
	}

	pb := lc.Dialect.NewParamBuilder()
	if _, err := store.Exec(ctx, q, "DELETE FROM line_stops WHERE line_id = "+pb.Add(lineID), pb.Params()...); err != nil {
		return fmt.Errorf("clear line route: %w", err)
	}
	for pos, stopID := range stopIDs {
		pb = lc.Dialect.NewParamBuilder()
		sql := fmt.Sprintf("INSERT INTO line_stops (line_id, stop_id, position) VALUES (%s, %s, %s)",
			pb.Add(lineID), pb.Add(stopID), pb.Add(pos))
		if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
			return lc.Dialect.MapError(err)
		}
	}
	return nil
}

// takeStringList pops a string-list payload field. The validator has already
// checked the element types.
func takeStringList(input map[string]any, field string) ([]string, bool) {
	raw, present := input[field]
	if !present {
		return nil, false
	}
	delete(input, field)
	items, _ := raw.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}
