package resource

import (
	"strings"
	"testing"

	"transit-backend/internal/store"
)

func TestBuildSelectSQLPostgres(t *testing.T) {
	d := testDescriptor(t)
	dialect := &store.PostgresDialect{}

	qc, err := ParseQuery(map[string]string{
		"status": "active",
		"sort":   "-created_at",
		"page":   "2",
		"limit":  "10",
	}, d, nil, 100)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}

	q := BuildSelectSQL(qc, dialect)
	want := "SELECT id, plate, line_id, status, seats, is_active, created_at FROM vehicles" +
		" WHERE deleted_at IS NULL AND status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3"
	if q.SQL != want {
		t.Fatalf("unexpected SQL:\n got: %s\nwant: %s", q.SQL, want)
	}
	if len(q.Params) != 3 || q.Params[0] != "active" || q.Params[1] != 10 || q.Params[2] != 10 {
		t.Fatalf("unexpected params: %+v", q.Params)
	}
}

func TestBuildSelectSQLSQLitePlaceholders(t *testing.T) {
	d := testDescriptor(t)
	dialect := &store.SQLiteDialect{}

	qc, err := ParseQuery(map[string]string{"status": "active,retired"}, d, nil, 100)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}

	q := BuildSelectSQL(qc, dialect)
	if !strings.Contains(q.SQL, "status IN (?1, ?2)") {
		t.Fatalf("expected expanded IN list, got: %s", q.SQL)
	}
	if len(q.Params) != 4 { // 2 values + limit + offset
		t.Fatalf("unexpected params: %+v", q.Params)
	}
}

func TestBuildCountSQLSharesFilters(t *testing.T) {
	d := testDescriptor(t)
	dialect := &store.PostgresDialect{}

	qc, err := ParseQuery(map[string]string{"is_active": "true", "page": "7"}, d, nil, 100)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}

	q := BuildCountSQL(qc, dialect)
	want := "SELECT COUNT(*) AS total FROM vehicles WHERE deleted_at IS NULL AND is_active = $1"
	if q.SQL != want {
		t.Fatalf("unexpected SQL:\n got: %s\nwant: %s", q.SQL, want)
	}
	if len(q.Params) != 1 || q.Params[0] != true {
		t.Fatalf("unexpected params: %+v", q.Params)
	}
}

func TestBuildSelectSQLSearchGroup(t *testing.T) {
	d := testDescriptor(t)
	dialect := &store.PostgresDialect{}

	qc, err := ParseQuery(map[string]string{"search": "12"}, d, nil, 100)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}

	q := BuildSelectSQL(qc, dialect)
	if !strings.Contains(q.SQL, "(model ILIKE $1 OR plate ILIKE $2)") {
		t.Fatalf("expected parenthesized OR group, got: %s", q.SQL)
	}
	if q.Params[0] != "%12%" || q.Params[1] != "%12%" {
		t.Fatalf("unexpected params: %+v", q.Params)
	}
}

func TestNewPaginatedResult(t *testing.T) {
	cases := []struct {
		total      int64
		limit      int
		totalPages int64
	}{
		{0, 25, 0},
		{1, 25, 1},
		{25, 25, 1},
		{26, 25, 2},
		{100, 10, 10},
		{101, 10, 11},
	}
	for _, tc := range cases {
		r := NewPaginatedResult(nil, tc.total, 1, tc.limit)
		if r.TotalPages != tc.totalPages {
			t.Fatalf("total=%d limit=%d: expected %d pages, got %d", tc.total, tc.limit, tc.totalPages, r.TotalPages)
		}
		if r.Items == nil {
			t.Fatal("items must never be nil")
		}
	}
}
