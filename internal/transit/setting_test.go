package transit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

func TestVetoLockedWrite(t *testing.T) {
	admin := &resource.Principal{ID: "u1", Roles: []string{"SUPER_ADMIN"}}

	// Unlocked settings accept any write.
	err := vetoLockedWrite(&resource.WriteContext{
		Principal: admin,
		Current:   map[string]any{"key": "ui.theme", "is_locked": false},
		Input:     map[string]any{"value": "dark"},
	})
	if err != nil {
		t.Fatalf("unexpected veto: %v", err)
	}

	// Locked settings refuse value changes.
	err = vetoLockedWrite(&resource.WriteContext{
		Principal: admin,
		Current:   map[string]any{"key": "ui.theme", "is_locked": true},
		Input:     map[string]any{"value": "dark"},
	})
	appErr, ok := err.(*resource.AppError)
	if !ok || appErr.Status != 403 {
		t.Fatalf("expected 403 veto, got %v", err)
	}

	// The unlock itself is the one write a locked setting accepts.
	err = vetoLockedWrite(&resource.WriteContext{
		Principal: admin,
		Current:   map[string]any{"key": "ui.theme", "is_locked": true},
		Input:     map[string]any{"is_locked": false},
	})
	if err != nil {
		t.Fatalf("unlock should pass, got %v", err)
	}

	// Unlock bundled with a value change is still refused.
	err = vetoLockedWrite(&resource.WriteContext{
		Principal: admin,
		Current:   map[string]any{"key": "ui.theme", "is_locked": true},
		Input:     map[string]any{"is_locked": false, "value": "dark"},
	})
	if err == nil {
		t.Fatal("expected veto for unlock bundled with a change")
	}

	// SQLite represents the lock flag as an integer.
	err = vetoLockedWrite(&resource.WriteContext{
		Principal: admin,
		Current:   map[string]any{"key": "ui.theme", "is_locked": int64(1)},
		Input:     map[string]any{"value": "dark"},
	})
	if err == nil {
		t.Fatal("expected veto for integer-locked setting")
	}
}

func TestVetoFareKeyRequiresPermission(t *testing.T) {
	current := map[string]any{"key": FareBasePriceKey, "is_locked": false}

	plain := &resource.Principal{ID: "u2", Permissions: []string{"settings.update"}}
	err := vetoLockedWrite(&resource.WriteContext{
		Principal: plain,
		Current:   current,
		Input:     map[string]any{"value": "2.50"},
	})
	appErr, ok := err.(*resource.AppError)
	if !ok || appErr.Status != 403 {
		t.Fatalf("expected 403 for fare write without permission, got %v", err)
	}

	manager := &resource.Principal{ID: "u3", Permissions: []string{"settings.update", farePermission}}
	if err := vetoLockedWrite(&resource.WriteContext{
		Principal: manager,
		Current:   current,
		Input:     map[string]any{"value": "2.50"},
	}); err != nil {
		t.Fatalf("expected fare manager to pass, got %v", err)
	}

	admin := &resource.Principal{ID: "u1", Roles: []string{"SUPER_ADMIN"}}
	if err := vetoLockedWrite(&resource.WriteContext{
		Principal: admin,
		Current:   current,
		Input:     map[string]any{"value": "2.50"},
	}); err != nil {
		t.Fatalf("expected super admin to pass, got %v", err)
	}
}

func TestSettingsCacheRefresh(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	st := &store.Store{DB: db, Dialect: &store.PostgresDialect{}}
	cache := NewSettingsCache(st)

	if _, ok := cache.Get("fare.base_price"); ok {
		t.Fatal("fresh cache must be empty")
	}

	mock.ExpectQuery("SELECT key, value FROM settings WHERE deleted_at IS NULL").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("fare.base_price", "2.50").
			AddRow("ui.theme", "dark"))

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if v, ok := cache.Get("fare.base_price"); !ok || v != "2.50" {
		t.Fatalf("unexpected cached value: %q %v", v, ok)
	}
	if got := cache.GetDefault("missing.key", "fallback"); got != "fallback" {
		t.Fatalf("unexpected default: %q", got)
	}

	// A refresh replaces the whole snapshot; removed keys disappear.
	mock.ExpectQuery("SELECT key, value FROM settings").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).AddRow("ui.theme", "light"))
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := cache.Get("fare.base_price"); ok {
		t.Fatal("expected removed key to vanish after refresh")
	}
}
