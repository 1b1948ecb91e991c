package resource

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DefaultPageSize = 25

// QueryContext is the per-request bundle for list operations. It is built
// fresh per request and discarded at response time.
type QueryContext struct {
	Resource  *Descriptor
	Filter    *FilterNode
	Page      int
	Limit     int
	Sort      []SortSpec
	Principal *Principal
}

type NodeKind int

const (
	NodePredicate NodeKind = iota
	NodeAnd
	NodeOr
)

// Predicate is one store-agnostic comparison.
type Predicate struct {
	Field    string
	Operator string // eq, neq, gt, gte, lt, lte, in, not_in, contains
	Value    any
}

// FilterNode is a predicate or a boolean combination of predicates.
type FilterNode struct {
	Kind     NodeKind
	Pred     *Predicate
	Children []*FilterNode
}

func pred(field, op string, value any) *FilterNode {
	return &FilterNode{Kind: NodePredicate, Pred: &Predicate{Field: field, Operator: op, Value: value}}
}

// reservedParams are documented pagination/sort keys, never filter fields.
var reservedParams = map[string]bool{
	"page":    true,
	"limit":   true,
	"sort":    true,
	"order":   true,
	"search":  true,
	"include": true,
}

// ParseQuery builds a QueryContext from raw query parameters: pagination,
// sort (validated against the resource's columns) and the compiled filter
// tree.
func ParseQuery(params map[string]string, d *Descriptor, p *Principal, maxLimit int) (*QueryContext, error) {
	qc := &QueryContext{
		Resource:  d,
		Page:      1,
		Limit:     DefaultPageSize,
		Principal: p,
	}

	if raw, ok := params["page"]; ok && raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return nil, ValidationErrorf("page", "format", "page must be a positive integer")
		}
		qc.Page = v
	}
	if raw, ok := params["limit"]; ok && raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return nil, ValidationErrorf("limit", "format", "limit must be a positive integer")
		}
		qc.Limit = v
	}
	if maxLimit > 0 && qc.Limit > maxLimit {
		qc.Limit = maxLimit
	}

	if raw, ok := params["sort"]; ok && raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			spec := SortSpec{Field: part}
			if strings.HasPrefix(part, "-") {
				spec = SortSpec{Field: part[1:], Desc: true}
			}
			if !d.sortable(spec.Field) {
				return nil, ValidationErrorf("sort", "unknown", "unknown sort field: %s", spec.Field)
			}
			qc.Sort = append(qc.Sort, spec)
		}
	}
	if len(qc.Sort) == 0 {
		qc.Sort = []SortSpec{d.DefaultSort}
	}

	filter, err := CompileFilters(params, d)
	if err != nil {
		return nil, err
	}
	qc.Filter = filter

	return qc, nil
}

// CompileFilters turns raw query parameters and the resource's field
// metadata into a filter tree (an AND over per-parameter predicates, plus
// one OR group for free-text search). Unknown parameter names are ignored.
func CompileFilters(params map[string]string, d *Descriptor) (*FilterNode, error) {
	root := &FilterNode{Kind: NodeAnd}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := params[key]
		switch {
		case reservedParams[key]:
			if key == "search" && raw != "" {
				if node := searchNode(d, raw); node != nil {
					root.Children = append(root.Children, node)
				}
			}

		case strings.HasSuffix(key, "_exactMatch"):
			// Consumed together with the base field parameter.
			continue

		case strings.HasSuffix(key, "_min") || strings.HasSuffix(key, "_max"):
			node, err := rangeBound(d, key, raw)
			if err != nil {
				return nil, err
			}
			if node != nil {
				root.Children = append(root.Children, node)
			}

		case strings.Contains(key, "."):
			node, err := operatorFilter(d, key, raw)
			if err != nil {
				return nil, err
			}
			if node != nil {
				root.Children = append(root.Children, node)
			}

		default:
			cfg, ok := d.Fields[key]
			if !ok {
				continue
			}
			node, err := fieldFilter(d, key, cfg, raw, params)
			if err != nil {
				return nil, err
			}
			if node != nil {
				root.Children = append(root.Children, node)
			}
		}
	}

	if len(root.Children) == 0 {
		return nil, nil
	}
	return root, nil
}

// searchNode fans the free-text search out into an OR of case-insensitive
// substring predicates over all searchable string fields.
func searchNode(d *Descriptor, raw string) *FilterNode {
	or := &FilterNode{Kind: NodeOr}
	fields := make([]string, 0, len(d.Fields))
	for name, cfg := range d.Fields {
		if cfg.Searchable && cfg.Type == TypeString {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	for _, name := range fields {
		or.Children = append(or.Children, pred(name, "contains", raw))
	}
	if len(or.Children) == 0 {
		return nil
	}
	return or
}

// fieldFilter compiles one field=value parameter.
func fieldFilter(d *Descriptor, field string, cfg *FieldConfig, raw string, params map[string]string) (*FilterNode, error) {
	multi := cfg.Filters != nil && cfg.Filters.MultiSelect

	exact := cfg.Filters != nil && cfg.Filters.ExactMatch
	if toggle, ok := params[field+"_exactMatch"]; ok {
		// The request-supplied flag wins over the static default for this
		// request only.
		b, err := strconv.ParseBool(toggle)
		if err != nil {
			return nil, ValidationErrorf(field, "format", "%s_exactMatch must be a boolean", field)
		}
		exact = b
	}

	values := []string{raw}
	if multi {
		values = splitList(raw)
		if len(values) == 0 {
			// An empty multi-select (?zone= or ?status=,,) constrains
			// nothing; treat it like an absent parameter.
			return nil, nil
		}
	}
	coerced := make([]any, 0, len(values))
	for _, v := range values {
		if cfg.Filters != nil && cfg.Filters.transform != nil {
			mapped, appErr := cfg.Filters.transform.apply(field, v)
			if appErr != nil {
				return nil, appErr
			}
			v = mapped
		}
		cv, err := coerceScalar(field, cfg, v)
		if err != nil {
			return nil, err
		}
		coerced = append(coerced, cv)
	}

	target := field
	if cfg.Type == TypeRelation {
		target = cfg.RelationField
	}

	if multi && len(coerced) > 1 {
		return pred(target, "in", coerced), nil
	}

	value := coerced[0]
	if cfg.Type == TypeString && !exact {
		s, _ := value.(string)
		return pred(target, "contains", s), nil
	}
	return pred(target, "eq", value), nil
}

// rangeBound compiles a <field>_min / <field>_max parameter into an
// inclusive bound. Malformed bounds fail validation rather than being
// silently dropped.
func rangeBound(d *Descriptor, key, raw string) (*FilterNode, error) {
	op := "gte"
	field := strings.TrimSuffix(key, "_min")
	if strings.HasSuffix(key, "_max") {
		op = "lte"
		field = strings.TrimSuffix(key, "_max")
	}

	cfg, ok := d.Fields[field]
	if !ok || cfg.Filters == nil || !cfg.Filters.Range {
		return nil, nil
	}
	if cfg.Type != TypeNumber && cfg.Type != TypeDate {
		return nil, nil
	}

	value, err := coerceScalar(field, cfg, raw)
	if err != nil {
		return nil, err
	}
	return pred(field, op, value), nil
}

// operatorFilter compiles a field.op=value parameter for fields that expose
// a custom operator set.
func operatorFilter(d *Descriptor, key, raw string) (*FilterNode, error) {
	parts := strings.SplitN(key, ".", 2)
	field, op := parts[0], parts[1]

	cfg, ok := d.Fields[field]
	if !ok || cfg.Filters == nil {
		return nil, nil
	}
	allowed := false
	for _, o := range cfg.Filters.Operators {
		if o == op {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, nil
	}

	if op == "in" || op == "not_in" {
		var values []any
		for _, v := range splitList(raw) {
			cv, err := coerceScalar(field, cfg, v)
			if err != nil {
				return nil, err
			}
			values = append(values, cv)
		}
		return pred(field, op, values), nil
	}

	value, err := coerceScalar(field, cfg, raw)
	if err != nil {
		return nil, err
	}
	return pred(field, op, value), nil
}

// coerceScalar converts a raw string to the field's Go type.
func coerceScalar(field string, cfg *FieldConfig, raw string) (any, *AppError) {
	switch cfg.Type {
	case TypeNumber:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, ValidationErrorf(field, "format", "%s must be a number", field)
		}
		return v, nil
	case TypeBoolean:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, ValidationErrorf(field, "format", "%s must be a boolean", field)
		}
		return v, nil
	case TypeDate:
		v, err := parseDate(raw)
		if err != nil {
			return nil, ValidationErrorf(field, "format", "%s must be a date", field)
		}
		return v, nil
	case TypeEnum:
		for _, allowed := range cfg.Enum {
			if raw == allowed {
				return raw, nil
			}
		}
		return nil, ValidationErrorf(field, "enum", "%s must be one of %s", field, strings.Join(cfg.Enum, ", "))
	default:
		return raw, nil
	}
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable date: %s", raw)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
