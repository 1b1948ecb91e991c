package resource

import (
	"strings"
	"testing"
	"time"
)

func testDescriptor(t *testing.T) *Descriptor {
	t.Helper()
	d := &Descriptor{
		Name:       "vehicles",
		Table:      "vehicles",
		SoftDelete: true,
		Columns:    []string{"id", "plate", "line_id", "status", "seats", "is_active", "created_at"},
		Fields: map[string]*FieldConfig{
			"plate": {Type: TypeString, Searchable: true, Filters: &FilterOptions{
				Transform: "upper(trim(value))",
			}},
			"model": {Type: TypeString, Searchable: true},
			"line":  {Type: TypeRelation, RelationField: "line_id", Filters: &FilterOptions{MultiSelect: true}},
			"status": {Type: TypeEnum, Enum: []string{"active", "retired"}, Filters: &FilterOptions{
				MultiSelect: true,
				Operators:   []string{"in", "not_in"},
			}},
			"seats":      {Type: TypeNumber, Filters: &FilterOptions{Range: true}},
			"is_active":  {Type: TypeBoolean},
			"created_at": {Type: TypeDate, Filters: &FilterOptions{Range: true}},
		},
		DefaultSort: SortSpec{Field: "plate"},
		Composer:    nopComposer{},
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("descriptor validate: %v", err)
	}
	return d
}

func findPredicates(node *FilterNode) []*Predicate {
	if node == nil {
		return nil
	}
	if node.Kind == NodePredicate {
		return []*Predicate{node.Pred}
	}
	var out []*Predicate
	for _, child := range node.Children {
		out = append(out, findPredicates(child)...)
	}
	return out
}

func TestCompileFiltersIgnoresUnknownParams(t *testing.T) {
	d := testDescriptor(t)
	node, err := CompileFilters(map[string]string{"nonsense": "x", "page": "3"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node != nil {
		t.Fatalf("expected nil filter, got %+v", node)
	}
}

func TestCompileFiltersSearchFansOutToOr(t *testing.T) {
	d := testDescriptor(t)
	node, err := CompileFilters(map[string]string{"search": "tram"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.Kind != NodeAnd || len(node.Children) != 1 {
		t.Fatalf("expected AND root with one child, got %+v", node)
	}
	or := node.Children[0]
	if or.Kind != NodeOr {
		t.Fatalf("expected OR group, got kind %d", or.Kind)
	}
	// Both searchable string fields, sorted: model then plate.
	if len(or.Children) != 2 {
		t.Fatalf("expected 2 search predicates, got %d", len(or.Children))
	}
	if or.Children[0].Pred.Field != "model" || or.Children[1].Pred.Field != "plate" {
		t.Fatalf("unexpected search fields: %s, %s", or.Children[0].Pred.Field, or.Children[1].Pred.Field)
	}
	for _, p := range findPredicates(or) {
		if p.Operator != "contains" || p.Value != "tram" {
			t.Fatalf("unexpected search predicate: %+v", p)
		}
	}
}

func TestCompileFiltersStringDefaultsToContains(t *testing.T) {
	d := testDescriptor(t)
	node, err := CompileFilters(map[string]string{"model": "Solaris"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds := findPredicates(node)
	if len(preds) != 1 || preds[0].Operator != "contains" || preds[0].Value != "Solaris" {
		t.Fatalf("unexpected predicates: %+v", preds)
	}
}

func TestCompileFiltersExactMatchRequestOverride(t *testing.T) {
	d := testDescriptor(t)

	node, err := CompileFilters(map[string]string{"model": "Solaris", "model_exactMatch": "true"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds := findPredicates(node)
	if len(preds) != 1 || preds[0].Operator != "eq" {
		t.Fatalf("expected eq after exactMatch override, got %+v", preds)
	}

	if _, err := CompileFilters(map[string]string{"model": "x", "model_exactMatch": "banana"}, d); err == nil {
		t.Fatal("expected validation error for malformed exactMatch flag")
	}
}

func TestCompileFiltersTransformAppliesBeforeCoercion(t *testing.T) {
	d := testDescriptor(t)
	node, err := CompileFilters(map[string]string{"plate": "  ab123cd ", "plate_exactMatch": "true"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds := findPredicates(node)
	if len(preds) != 1 || preds[0].Value != "AB123CD" {
		t.Fatalf("expected transformed value AB123CD, got %+v", preds)
	}
}

func TestCompileFiltersMultiSelectBecomesIn(t *testing.T) {
	d := testDescriptor(t)
	node, err := CompileFilters(map[string]string{"status": "active,retired"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds := findPredicates(node)
	if len(preds) != 1 || preds[0].Operator != "in" {
		t.Fatalf("expected in predicate, got %+v", preds)
	}
	values, ok := preds[0].Value.([]any)
	if !ok || len(values) != 2 {
		t.Fatalf("expected 2 values, got %+v", preds[0].Value)
	}
}

func TestCompileFiltersEmptyMultiSelectIgnored(t *testing.T) {
	d := testDescriptor(t)
	for _, params := range []map[string]string{
		{"line": ""},
		{"status": ""},
		{"status": ",,"},
	} {
		node, err := CompileFilters(params, d)
		if err != nil {
			t.Fatalf("unexpected error for %v: %v", params, err)
		}
		if node != nil {
			t.Fatalf("expected empty multi-select %v to be ignored, got %+v", params, node)
		}
	}
}

func TestCompileFiltersEnumRejectsUnknownValue(t *testing.T) {
	d := testDescriptor(t)
	_, err := CompileFilters(map[string]string{"status": "scrapped"}, d)
	appErr, ok := err.(*AppError)
	if !ok || appErr.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCompileFiltersRelationTargetsRelationField(t *testing.T) {
	d := testDescriptor(t)
	node, err := CompileFilters(map[string]string{"line": "l1,l2"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds := findPredicates(node)
	if len(preds) != 1 || preds[0].Field != "line_id" || preds[0].Operator != "in" {
		t.Fatalf("expected in over line_id, got %+v", preds)
	}
}

func TestCompileFiltersRangeBounds(t *testing.T) {
	d := testDescriptor(t)
	node, err := CompileFilters(map[string]string{"seats_min": "20", "seats_max": "60"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds := findPredicates(node)
	if len(preds) != 2 {
		t.Fatalf("expected 2 bounds, got %+v", preds)
	}
	ops := map[string]float64{}
	for _, p := range preds {
		ops[p.Operator] = p.Value.(float64)
	}
	if ops["gte"] != 20 || ops["lte"] != 60 {
		t.Fatalf("unexpected bounds: %+v", ops)
	}
}

func TestCompileFiltersMalformedRangeFails(t *testing.T) {
	d := testDescriptor(t)
	if _, err := CompileFilters(map[string]string{"seats_min": "lots"}, d); err == nil {
		t.Fatal("expected validation error for malformed range bound")
	}
}

func TestCompileFiltersRangeOnNonRangeFieldIgnored(t *testing.T) {
	d := testDescriptor(t)
	node, err := CompileFilters(map[string]string{"model_min": "a"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node != nil {
		t.Fatalf("expected bound on non-range field to be ignored, got %+v", node)
	}
}

func TestCompileFiltersDateRange(t *testing.T) {
	d := testDescriptor(t)
	node, err := CompileFilters(map[string]string{"created_at_min": "2026-01-15"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds := findPredicates(node)
	if len(preds) != 1 || preds[0].Operator != "gte" {
		t.Fatalf("unexpected predicates: %+v", preds)
	}
	if _, ok := preds[0].Value.(time.Time); !ok {
		t.Fatalf("expected time.Time value, got %T", preds[0].Value)
	}
}

func TestCompileFiltersOperatorSuffix(t *testing.T) {
	d := testDescriptor(t)
	node, err := CompileFilters(map[string]string{"status.not_in": "retired"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds := findPredicates(node)
	if len(preds) != 1 || preds[0].Operator != "not_in" {
		t.Fatalf("expected not_in predicate, got %+v", preds)
	}

	// Operators outside the allow-list are ignored.
	node, err = CompileFilters(map[string]string{"seats.gt": "10"}, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node != nil {
		t.Fatalf("expected unlisted operator to be ignored, got %+v", node)
	}
}

func TestParseQueryPagination(t *testing.T) {
	d := testDescriptor(t)

	qc, err := ParseQuery(map[string]string{}, d, nil, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qc.Page != 1 || qc.Limit != DefaultPageSize {
		t.Fatalf("unexpected defaults: page=%d limit=%d", qc.Page, qc.Limit)
	}

	qc, err = ParseQuery(map[string]string{"limit": "500"}, d, nil, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qc.Limit != 100 {
		t.Fatalf("expected limit clamped to 100, got %d", qc.Limit)
	}

	for _, bad := range []map[string]string{
		{"page": "0"}, {"page": "x"}, {"limit": "-1"},
	} {
		if _, err := ParseQuery(bad, d, nil, 100); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestParseQuerySort(t *testing.T) {
	d := testDescriptor(t)

	qc, err := ParseQuery(map[string]string{"sort": "-created_at,plate"}, d, nil, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []SortSpec{{Field: "created_at", Desc: true}, {Field: "plate"}}
	if len(qc.Sort) != 2 || qc.Sort[0] != want[0] || qc.Sort[1] != want[1] {
		t.Fatalf("unexpected sort: %+v", qc.Sort)
	}

	if _, err := ParseQuery(map[string]string{"sort": "password_hash"}, d, nil, 100); err == nil {
		t.Fatal("expected error for unknown sort field")
	}

	qc, err = ParseQuery(map[string]string{}, d, nil, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(qc.Sort) != 1 || qc.Sort[0].Field != "plate" {
		t.Fatalf("expected default sort, got %+v", qc.Sort)
	}
}

func TestTransformFailureIsValidationError(t *testing.T) {
	d := testDescriptor(t)
	d.Fields["plate"].Filters.Transform = `string(int(value))`
	if err := d.Validate(); err != nil {
		t.Fatalf("descriptor validate: %v", err)
	}

	_, err := CompileFilters(map[string]string{"plate": "not-a-number"}, d)
	appErr, ok := err.(*AppError)
	if !ok || appErr.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(appErr.Details) != 1 || !strings.Contains(appErr.Details[0].Field, "plate") {
		t.Fatalf("unexpected details: %+v", appErr.Details)
	}
}
