package transit

import (
	"context"

	"transit-backend/internal/compose"
	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// ZoneDescriptor configures the fare-zone resource. Zone reads are public
// so passenger-facing clients can resolve zone codes without a session.
func ZoneDescriptor(s Services) *resource.Descriptor {
	d := &resource.Descriptor{
		Name:       "zones",
		Table:      "zones",
		SoftDelete: true,
		Columns:    []string{"id", "code", "color", "name_id", "is_active", "created_at", "updated_at"},
		Fields: map[string]*resource.FieldConfig{
			"code":       {Type: resource.TypeString, Searchable: true},
			"color":      {Type: resource.TypeString},
			"is_active":  {Type: resource.TypeBoolean},
			"created_at": {Type: resource.TypeDate, Filters: &resource.FilterOptions{Range: true}},
		},
		CreateSchema: []resource.FieldSpec{
			{Name: "code", Type: resource.TypeString, Required: true},
			{Name: "color", Type: resource.TypeString},
			{Name: "name", Type: resource.TypeText, Required: true},
			{Name: "is_active", Type: resource.TypeBoolean},
		},
		UpdateSchema: []resource.FieldSpec{
			{Name: "code", Type: resource.TypeString},
			{Name: "color", Type: resource.TypeString},
			{Name: "name", Type: resource.TypeText},
			{Name: "is_active", Type: resource.TypeBoolean},
		},
		UniqueFields: []string{"code"},
		DefaultSort:  resource.SortSpec{Field: "code"},
		Includes: []resource.Include{
			{Name: "name", Kind: resource.IncludeText, LocalField: "name_id"},
		},
		Permissions: map[resource.Operation]string{
			resource.OpView:   "zones.view",
			resource.OpCreate: "zones.create",
			resource.OpUpdate: "zones.update",
			resource.OpDelete: "zones.delete",
		},
		PublicOperations: []resource.Operation{resource.OpView},
		Hooks:            s.Audit.Hooks("zones"),
	}
	d.Composer = &zoneComposer{
		GenericComposer: *compose.NewGenericComposer(d, s.Store.Dialect),
		svc:             s,
	}
	return d
}

type zoneComposer struct {
	compose.GenericComposer
	svc Services
}

func (z *zoneComposer) Create(ctx context.Context, q store.Querier, input map[string]any) (map[string]any, error) {
	if err := z.svc.applyTextFields(ctx, q, nil, input, map[string]string{"name": "name_id"}); err != nil {
		return nil, err
	}
	return z.GenericComposer.Create(ctx, q, input)
}

func (z *zoneComposer) Update(ctx context.Context, q store.Querier, id string, input map[string]any) (map[string]any, error) {
	current, err := compose.FetchRecord(ctx, q, z.Dialect, z.Desc, id)
	if err != nil {
		return nil, err
	}
	if err := z.svc.applyTextFields(ctx, q, current, input, map[string]string{"name": "name_id"}); err != nil {
		return nil, err
	}
	return z.GenericComposer.Update(ctx, q, id, input)
}

func (z *zoneComposer) Delete(ctx context.Context, q store.Querier, id string) error {
	if err := compose.RefuseIfChildren(ctx, q, z.Dialect, "stops", "zone_id", id, true,
		"Zone still has stops assigned to it"); err != nil {
		return err
	}
	return z.GenericComposer.Delete(ctx, q, id)
}
