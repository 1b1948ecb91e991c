package transit

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"transit-backend/internal/audit"
	"transit-backend/internal/localized"
	"transit-backend/internal/resource"
	"transit-backend/internal/storage"
	"transit-backend/internal/store"
)

func testServices(t *testing.T) Services {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dialect := &store.PostgresDialect{}
	st := &store.Store{DB: db, Dialect: dialect}
	return Services{
		Store:    st,
		Text:     localized.NewService(dialect),
		Files:    storage.NewService(storage.NewLocalBackend(t.TempDir()), dialect),
		Audit:    audit.NewRecorder(st),
		Settings: NewSettingsCache(st),
	}
}

// BuildRegistry runs full descriptor validation, including filter transform
// compilation, so this catches wiring mistakes at test time instead of boot.
func TestBuildRegistry(t *testing.T) {
	reg, err := BuildRegistry(testServices(t))
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	for _, name := range []string{"zones", "stops", "lines", "vehicles", "settings"} {
		d := reg.Get(name)
		if d == nil {
			t.Fatalf("missing resource %s", name)
		}
		if d.Composer == nil {
			t.Fatalf("%s has no composer", name)
		}
	}

	if reg.Get("vehicles").IsPublic(resource.OpView) {
		t.Fatal("vehicles must not be public")
	}
	if !reg.Get("zones").IsPublic(resource.OpView) {
		t.Fatal("zone reads should be public")
	}

	found := false
	for _, f := range reg.Get("vehicles").ExcludeFields {
		if f == "tracker_token" {
			found = true
		}
	}
	if !found {
		t.Fatal("tracker_token must be redacted from vehicle responses")
	}
}
