package transit

import (
	"context"

	"transit-backend/internal/compose"
	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// VehicleDescriptor configures the vehicle resource. The tracker token is a
// credential and never leaves the API; photos are file attachments replaced
// as a set on every write that names them.
func VehicleDescriptor(s Services) *resource.Descriptor {
	statuses := []string{"active", "maintenance", "retired"}
	d := &resource.Descriptor{
		Name:       "vehicles",
		Table:      "vehicles",
		SoftDelete: true,
		Columns:    []string{"id", "plate", "line_id", "status", "tracker_token", "is_active", "created_at", "updated_at"},
		Fields: map[string]*resource.FieldConfig{
			"plate": {Type: resource.TypeString, Searchable: true, Filters: &resource.FilterOptions{
				Transform: "upper(trim(value))",
			}},
			"line": {Type: resource.TypeRelation, RelationField: "line_id", Filters: &resource.FilterOptions{MultiSelect: true}},
			"status": {Type: resource.TypeEnum, Enum: statuses, Filters: &resource.FilterOptions{
				MultiSelect: true,
				Operators:   []string{"in", "not_in"},
			}},
			"is_active":  {Type: resource.TypeBoolean},
			"created_at": {Type: resource.TypeDate, Filters: &resource.FilterOptions{Range: true}},
		},
		CreateSchema: []resource.FieldSpec{
			{Name: "plate", Type: resource.TypeString, Required: true},
			{Name: "line_id", Type: resource.TypeRelation},
			{Name: "status", Type: resource.TypeEnum, Enum: statuses},
			{Name: "tracker_token", Type: resource.TypeString},
			{Name: "photos", Type: resource.TypeFiles},
			{Name: "is_active", Type: resource.TypeBoolean},
		},
		UpdateSchema: []resource.FieldSpec{
			{Name: "plate", Type: resource.TypeString},
			{Name: "line_id", Type: resource.TypeRelation},
			{Name: "status", Type: resource.TypeEnum, Enum: statuses},
			{Name: "tracker_token", Type: resource.TypeString},
			{Name: "photos", Type: resource.TypeFiles},
			{Name: "is_active", Type: resource.TypeBoolean},
		},
		References: []resource.Reference{
			{Field: "line_id", Table: "lines", RequireActive: true, SoftDelete: true},
		},
		UniqueFields:  []string{"plate"},
		ExcludeFields: []string{"tracker_token"},
		DefaultSort:   resource.SortSpec{Field: "plate"},
		Includes: []resource.Include{
			{Name: "line", Kind: resource.IncludeParent, Table: "lines", LocalField: "line_id",
				Columns: []string{"id", "number", "mode", "color", "is_active"}, SoftDelete: true},
			{Name: "photos", Kind: resource.IncludeManyToMany, Table: "_files",
				JoinTable: "vehicle_files", SourceKey: "vehicle_id", TargetKey: "file_id",
				Columns: []string{"id", "filename", "mime_type", "size"}},
		},
		Permissions: map[resource.Operation]string{
			resource.OpView:   "vehicles.view",
			resource.OpCreate: "vehicles.create",
			resource.OpUpdate: "vehicles.update",
			resource.OpDelete: "vehicles.delete",
		},
		Hooks: s.Audit.Hooks("vehicles"),
	}
	d.Composer = &vehicleComposer{
		GenericComposer: *compose.NewGenericComposer(d, s.Store.Dialect),
		svc:             s,
	}
	return d
}

type vehicleComposer struct {
	compose.GenericComposer
	svc Services
}

func (vc *vehicleComposer) Create(ctx context.Context, q store.Querier, input map[string]any) (map[string]any, error) {
	photos, replacePhotos := takeFileList(input, "photos")
	record, err := vc.GenericComposer.Create(ctx, q, input)
	if err != nil {
		return nil, err
	}
	if replacePhotos {
		id, _ := record["id"].(string)
		if err := vc.replacePhotos(ctx, q, id, photos); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (vc *vehicleComposer) Update(ctx context.Context, q store.Querier, id string, input map[string]any) (map[string]any, error) {
	photos, replacePhotos := takeFileList(input, "photos")
	record, err := vc.GenericComposer.Update(ctx, q, id, input)
	if err != nil {
		return nil, err
	}
	if replacePhotos {
		if err := vc.replacePhotos(ctx, q, id, photos); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (vc *vehicleComposer) Delete(ctx context.Context, q store.Querier, id string) error {
	pb := vc.Dialect.NewParamBuilder()
	if _, err := store.Exec(ctx, q, "DELETE FROM vehicle_files WHERE vehicle_id = "+pb.Add(id), pb.Params()...); err != nil {
		return err
	}
	return vc.GenericComposer.Delete(ctx, q, id)
}

// replacePhotos materializes inline uploads, validates referenced files and
// swaps the vehicle's attachment set.
func (vc *vehicleComposer) replacePhotos(ctx context.Context, q store.Querier, vehicleID string, entries []any) error {
	ids, uploads, err := compose.PartitionFileRefs("photos", entries)
	if err != nil {
		return err
	}
	if err := compose.ValidateFileIDs(ctx, q, vc.Dialect, "photos", ids); err != nil {
		return err
	}
	for _, up := range uploads {
		rec, err := vc.svc.Files.SaveBase64(ctx, q, up.Name, up.Mime, up.Data)
		if err != nil {
			return err
		}
		ids = append(ids, rec.ID)
	}
	return compose.ReplaceFileLinks(ctx, q, vc.Dialect, "vehicle_files", "vehicle_id", "file_id", vehicleID, ids)
}

// takeFileList pops a files payload field; shape is validator-checked.
func takeFileList(input map[string]any, field string) ([]any, bool) {
	raw, present := input[field]
	if !present {
		return nil, false
	}
	delete(input, field)
	items, _ := raw.([]any)
	return items, true
}
