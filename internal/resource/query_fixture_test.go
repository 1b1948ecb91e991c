package resource

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"testing"

	"transit-backend/internal/store"
)

// The sqlite driver is registered by the store package's blank import.

type vehicleRow struct {
	id     string
	plate  string
	model  string
	lineID string
	status string
	seats  int
}

var vehicleFixtures = []vehicleRow{
	{"v1", "AB123CD", "Solaris Urbino", "l1", "active", 40},
	{"v2", "EF456GH", "Volvo 7900", "l1", "retired", 20},
	{"v3", "IJ789KL", "Solaris Trollino", "l2", "active", 60},
	{"v4", "MN012OP", "Mercedes Citaro", "l2", "active", 30},
	{"v5", "QR345ST", "Volvo 8900", "l3", "retired", 50},
	{"v6", "UV678WX", "Scania Citywide", "l3", "active", 25},
}

func openFixtureDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE vehicles (
		id TEXT PRIMARY KEY,
		plate TEXT NOT NULL,
		model TEXT NOT NULL,
		line_id TEXT NOT NULL,
		status TEXT NOT NULL,
		seats INTEGER NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL DEFAULT '2026-01-01T00:00:00Z',
		deleted_at TEXT
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	for _, r := range vehicleFixtures {
		_, err = db.ExecContext(ctx,
			"INSERT INTO vehicles (id, plate, model, line_id, status, seats) VALUES (?1, ?2, ?3, ?4, ?5, ?6)",
			r.id, r.plate, r.model, r.lineID, r.status, r.seats)
		if err != nil {
			t.Fatalf("insert %s: %v", r.id, err)
		}
	}
	// A soft-deleted row that must never surface.
	_, err = db.ExecContext(ctx,
		"INSERT INTO vehicles (id, plate, model, line_id, status, seats, deleted_at) VALUES ('v7', 'YZ901AB', 'Solaris Urbino', 'l1', 'active', 55, '2026-02-01T00:00:00Z')")
	if err != nil {
		t.Fatalf("insert deleted row: %v", err)
	}
	return db
}

func listIDs(t *testing.T, db *sql.DB, d *Descriptor, params map[string]string) []string {
	t.Helper()
	qc, err := ParseQuery(params, d, nil, 100)
	if err != nil {
		t.Fatalf("parse query %v: %v", params, err)
	}
	q := BuildSelectSQL(qc, &store.SQLiteDialect{})
	rows, err := store.QueryRows(context.Background(), db, q.SQL, q.Params...)
	if err != nil {
		t.Fatalf("query %q: %v", q.SQL, err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row["id"].(string))
	}
	return ids
}

// refIDs evaluates the reference predicate in memory, sorted by plate like
// the descriptor's default sort.
func refIDs(pred func(vehicleRow) bool) []string {
	live := make([]vehicleRow, len(vehicleFixtures))
	copy(live, vehicleFixtures)
	sort.Slice(live, func(i, j int) bool { return live[i].plate < live[j].plate })
	ids := make([]string, 0, len(live))
	for _, r := range live {
		if pred(r) {
			ids = append(ids, r.id)
		}
	}
	return ids
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Every compiled filter must select exactly the rows the equivalent in-memory
// predicate selects, in default sort order.
func TestCompiledFiltersMatchReferencePredicate(t *testing.T) {
	db := openFixtureDB(t)
	d := testDescriptor(t)

	cases := []struct {
		name   string
		params map[string]string
		pred   func(vehicleRow) bool
	}{
		{"enum single", map[string]string{"status": "active"},
			func(r vehicleRow) bool { return r.status == "active" }},
		{"enum multi-select", map[string]string{"status": "active,retired"},
			func(r vehicleRow) bool { return r.status == "active" || r.status == "retired" }},
		{"relation", map[string]string{"line": "l1"},
			func(r vehicleRow) bool { return r.lineID == "l1" }},
		{"relation multi-select", map[string]string{"line": "l1,l3"},
			func(r vehicleRow) bool { return r.lineID == "l1" || r.lineID == "l3" }},
		{"number range", map[string]string{"seats_min": "25", "seats_max": "50"},
			func(r vehicleRow) bool { return r.seats >= 25 && r.seats <= 50 }},
		{"string contains", map[string]string{"plate": "3"},
			func(r vehicleRow) bool { return containsFold(r.plate, "3") }},
		{"search fan-out", map[string]string{"search": "solaris"},
			func(r vehicleRow) bool { return containsFold(r.model, "solaris") || containsFold(r.plate, "solaris") }},
		{"operator not_in", map[string]string{"status.not_in": "retired"},
			func(r vehicleRow) bool { return r.status != "retired" }},
		{"conjunction", map[string]string{"status": "active", "seats_min": "30"},
			func(r vehicleRow) bool { return r.status == "active" && r.seats >= 30 }},
		{"no filters", map[string]string{},
			func(r vehicleRow) bool { return true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := listIDs(t, db, d, tc.params)
			want := refIDs(tc.pred)
			if fmt.Sprint(got) != fmt.Sprint(want) {
				t.Fatalf("compiled filter diverged from reference:\n got %v\nwant %v", got, want)
			}
		})
	}
}

// Walking every page must reproduce the full sorted set exactly once, with
// no duplicates, no gaps, and nothing past the last page.
func TestPaginationWalksWholeSetExactlyOnce(t *testing.T) {
	db := openFixtureDB(t)
	d := testDescriptor(t)
	dialect := &store.SQLiteDialect{}
	ctx := context.Background()

	qc, err := ParseQuery(map[string]string{"limit": "2"}, d, nil, 100)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	count := BuildCountSQL(qc, dialect)
	row, err := store.QueryRow(ctx, db, count.SQL, count.Params...)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	total := row["total"].(int64)
	if total != int64(len(vehicleFixtures)) {
		t.Fatalf("expected %d live rows, got %d", len(vehicleFixtures), total)
	}

	result := NewPaginatedResult(nil, total, 1, 2)
	var got []string
	for page := 1; page <= int(result.TotalPages); page++ {
		ids := listIDs(t, db, d, map[string]string{"limit": "2", "page": fmt.Sprint(page)})
		if len(ids) == 0 || len(ids) > 2 {
			t.Fatalf("page %d has %d rows", page, len(ids))
		}
		got = append(got, ids...)
	}

	want := refIDs(func(vehicleRow) bool { return true })
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("page concatenation diverged:\n got %v\nwant %v", got, want)
	}
	seen := map[string]bool{}
	for _, id := range got {
		if seen[id] {
			t.Fatalf("row %s appeared on more than one page", id)
		}
		seen[id] = true
	}

	past := listIDs(t, db, d, map[string]string{"limit": "2", "page": fmt.Sprint(result.TotalPages + 1)})
	if len(past) != 0 {
		t.Fatalf("expected empty page past the end, got %v", past)
	}
}
