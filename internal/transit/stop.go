package transit

import (
	"context"

	"transit-backend/internal/compose"
	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// StopDescriptor configures the stop resource. Stops hang off a zone; the
// zone filter accepts a comma-separated set and lat/lng take range bounds
// for map viewport queries.
func StopDescriptor(s Services) *resource.Descriptor {
	d := &resource.Descriptor{
		Name:       "stops",
		Table:      "stops",
		SoftDelete: true,
		Columns:    []string{"id", "code", "zone_id", "name_id", "lat", "lng", "is_active", "created_at", "updated_at"},
		Fields: map[string]*resource.FieldConfig{
			"code":      {Type: resource.TypeString, Searchable: true},
			"zone":      {Type: resource.TypeRelation, RelationField: "zone_id", Filters: &resource.FilterOptions{MultiSelect: true}},
			"lat":       {Type: resource.TypeNumber, Filters: &resource.FilterOptions{Range: true}},
			"lng":       {Type: resource.TypeNumber, Filters: &resource.FilterOptions{Range: true}},
			"is_active": {Type: resource.TypeBoolean},
		},
		CreateSchema: []resource.FieldSpec{
			{Name: "code", Type: resource.TypeString, Required: true},
			{Name: "zone_id", Type: resource.TypeRelation},
			{Name: "name", Type: resource.TypeText, Required: true},
			{Name: "lat", Type: resource.TypeNumber},
			{Name: "lng", Type: resource.TypeNumber},
			{Name: "is_active", Type: resource.TypeBoolean},
		},
		UpdateSchema: []resource.FieldSpec{
			{Name: "code", Type: resource.TypeString},
			{Name: "zone_id", Type: resource.TypeRelation},
			{Name: "name", Type: resource.TypeText},
			{Name: "lat", Type: resource.TypeNumber},
			{Name: "lng", Type: resource.TypeNumber},
			{Name: "is_active", Type: resource.TypeBoolean},
		},
		References: []resource.Reference{
			{Field: "zone_id", Table: "zones", RequireActive: true, SoftDelete: true},
		},
		UniqueFields: []string{"code"},
		DefaultSort:  resource.SortSpec{Field: "code"},
		Includes: []resource.Include{
			{Name: "name", Kind: resource.IncludeText, LocalField: "name_id"},
			{Name: "zone", Kind: resource.IncludeParent, Table: "zones", LocalField: "zone_id",
				Columns: []string{"id", "code", "color", "is_active"}, SoftDelete: true},
		},
		Permissions: map[resource.Operation]string{
			resource.OpView:   "stops.view",
			resource.OpCreate: "stops.create",
			resource.OpUpdate: "stops.update",
			resource.OpDelete: "stops.delete",
		},
		PublicOperations: []resource.Operation{resource.OpView},
		Hooks:            s.Audit.Hooks("stops"),
	}
	d.Composer = &stopComposer{
		GenericComposer: *compose.NewGenericComposer(d, s.Store.Dialect),
		svc:             s,
	}
	return d
}

type stopComposer struct {
	compose.GenericComposer
	svc Services
}

func (sc *stopComposer) Create(ctx context.Context, q store.Querier, input map[string]any) (map[string]any, error) {
	if err := sc.svc.applyTextFields(ctx, q, nil, input, map[string]string{"name": "name_id"}); err != nil {
		return nil, err
	}
	return sc.GenericComposer.Create(ctx, q, input)
}

func (sc *stopComposer) Update(ctx context.Context, q store.Querier, id string, input map[string]any) (map[string]any, error) {
	current, err := compose.FetchRecord(ctx, q, sc.Dialect, sc.Desc, id)
	if err != nil {
		return nil, err
	}
	if err := sc.svc.applyTextFields(ctx, q, current, input, map[string]string{"name": "name_id"}); err != nil {
		return nil, err
	}
	return sc.GenericComposer.Update(ctx, q, id, input)
}

func (sc *stopComposer) Delete(ctx context.Context, q store.Querier, id string) error {
	if err := compose.RefuseIfChildren(ctx, q, sc.Dialect, "line_stops", "stop_id", id, false,
		"Stop is still part of a line route"); err != nil {
		return err
	}
	return sc.GenericComposer.Delete(ctx, q, id)
}
