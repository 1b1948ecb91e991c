package transit

import (
	"context"
	"fmt"
	"log"

	"transit-backend/internal/compose"
	"transit-backend/internal/resource"
)

// FareBasePriceKey is the guarded fare setting; writing it takes a second
// permission on top of the ordinary settings write permission.
const FareBasePriceKey = "fare.base_price"

const farePermission = "settings.fares.manage"

// SettingDescriptor configures the settings resource. A locked setting
// refuses value changes until it is unlocked, and fare keys are guarded by
// an extra permission.
func SettingDescriptor(s Services) *resource.Descriptor {
	d := &resource.Descriptor{
		Name:       "settings",
		Table:      "settings",
		SoftDelete: true,
		Columns:    []string{"id", "key", "value", "is_locked", "created_at", "updated_at"},
		Fields: map[string]*resource.FieldConfig{
			"key":       {Type: resource.TypeString, Searchable: true, Filters: &resource.FilterOptions{ExactMatch: true}},
			"is_locked": {Type: resource.TypeBoolean},
		},
		CreateSchema: []resource.FieldSpec{
			{Name: "key", Type: resource.TypeString, Required: true},
			{Name: "value", Type: resource.TypeString},
			{Name: "is_locked", Type: resource.TypeBoolean},
		},
		UpdateSchema: []resource.FieldSpec{
			{Name: "value", Type: resource.TypeString},
			{Name: "is_locked", Type: resource.TypeBoolean},
		},
		UniqueFields: []string{"key"},
		DefaultSort:  resource.SortSpec{Field: "key"},
		Permissions: map[resource.Operation]string{
			resource.OpView:   "settings.view",
			resource.OpCreate: "settings.create",
			resource.OpUpdate: "settings.update",
			resource.OpDelete: "settings.delete",
		},
		FieldGuards: []resource.FieldGuard{
			{Field: "key", Requires: farePermission, When: func(v any) bool {
				key, _ := v.(string)
				return key == FareBasePriceKey
			}},
		},
	}

	auditHooks := s.Audit.Hooks("settings")
	refresh := func(ctx context.Context) {
		if err := s.Settings.Refresh(ctx); err != nil {
			log.Printf("settings cache refresh: %v", err)
		}
	}
	d.Hooks = resource.Hooks{
		BeforeUpdate: func(ctx context.Context, wc *resource.WriteContext) error {
			return vetoLockedWrite(wc)
		},
		BeforeDelete: func(ctx context.Context, dc *resource.DeleteContext) error {
			if isLocked(dc.Current) {
				return resource.ForbiddenError(fmt.Sprintf("Setting %s is locked", settingKey(dc.Current)))
			}
			return nil
		},
		AfterCreate: func(ctx context.Context, record map[string]any, p *resource.Principal) error {
			refresh(ctx)
			return auditHooks.AfterCreate(ctx, record, p)
		},
		AfterUpdate: func(ctx context.Context, record map[string]any, p *resource.Principal) error {
			refresh(ctx)
			return auditHooks.AfterUpdate(ctx, record, p)
		},
		AfterDelete: func(ctx context.Context, id string, p *resource.Principal) error {
			refresh(ctx)
			return auditHooks.AfterDelete(ctx, id, p)
		},
	}
	d.Composer = compose.NewGenericComposer(d, s.Store.Dialect)
	return d
}

// vetoLockedWrite rejects writes against a locked setting. The only write a
// locked setting accepts is the unlock itself. Fare keys additionally need
// the fare permission even when the update omits the key field.
func vetoLockedWrite(wc *resource.WriteContext) error {
	if settingKey(wc.Current) == FareBasePriceKey {
		p := wc.Principal
		if p == nil {
			return resource.UnauthorizedError("Authentication required")
		}
		if !p.IsSuperAdmin() && !p.Can(farePermission) {
			return resource.ForbiddenError(fmt.Sprintf("Changing %s requires %s", FareBasePriceKey, farePermission))
		}
	}

	if !isLocked(wc.Current) {
		return nil
	}
	if unlock, ok := wc.Input["is_locked"].(bool); ok && !unlock && len(wc.Input) == 1 {
		return nil
	}
	return resource.ForbiddenError(fmt.Sprintf("Setting %s is locked", settingKey(wc.Current)))
}

func isLocked(record map[string]any) bool {
	switch v := record["is_locked"].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

func settingKey(record map[string]any) string {
	k, _ := record["key"].(string)
	return k
}
