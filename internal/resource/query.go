package resource

import (
	"fmt"
	"strings"

	"transit-backend/internal/store"
)

// PaginatedResult is the uniform list response shape.
type PaginatedResult struct {
	Items      []map[string]any `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int64            `json:"totalPages"`
}

func NewPaginatedResult(items []map[string]any, total int64, page, limit int) PaginatedResult {
	if items == nil {
		items = []map[string]any{}
	}
	totalPages := (total + int64(limit) - 1) / int64(limit)
	return PaginatedResult{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}

type QueryResult struct {
	SQL    string
	Params []any
}

// BuildSelectSQL builds the parameterized SELECT for a list request.
func BuildSelectSQL(qc *QueryContext, dialect store.Dialect) QueryResult {
	d := qc.Resource
	pb := dialect.NewParamBuilder()

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(d.Columns, ", "), d.Table)

	if where := buildWhere(qc, dialect, pb); where != "" {
		sql += " WHERE " + where
	}

	orderParts := make([]string, 0, len(qc.Sort))
	for _, s := range qc.Sort {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		orderParts = append(orderParts, fmt.Sprintf("%s %s", s.Field, dir))
	}
	sql += " ORDER BY " + strings.Join(orderParts, ", ")

	limit := pb.Add(qc.Limit)
	offset := pb.Add((qc.Page - 1) * qc.Limit)
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)

	return QueryResult{SQL: sql, Params: pb.Params()}
}

// BuildCountSQL builds the COUNT query with the same filters as the select.
func BuildCountSQL(qc *QueryContext, dialect store.Dialect) QueryResult {
	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT COUNT(*) AS total FROM %s", qc.Resource.Table)
	if where := buildWhere(qc, dialect, pb); where != "" {
		sql += " WHERE " + where
	}
	return QueryResult{SQL: sql, Params: pb.Params()}
}

func buildWhere(qc *QueryContext, dialect store.Dialect, pb store.ParamBuilder) string {
	var conjuncts []string
	if qc.Resource.SoftDelete {
		conjuncts = append(conjuncts, "deleted_at IS NULL")
	}
	if qc.Filter != nil {
		if clause := compileNode(qc.Filter, dialect, pb); clause != "" {
			conjuncts = append(conjuncts, clause)
		}
	}
	return strings.Join(conjuncts, " AND ")
}

// compileNode renders a filter tree into a SQL fragment through the dialect's
// parameter builder.
func compileNode(node *FilterNode, dialect store.Dialect, pb store.ParamBuilder) string {
	switch node.Kind {
	case NodePredicate:
		return compilePredicate(node.Pred, dialect, pb)
	case NodeAnd, NodeOr:
		parts := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			if clause := compileNode(child, dialect, pb); clause != "" {
				parts = append(parts, clause)
			}
		}
		if len(parts) == 0 {
			return ""
		}
		if len(parts) == 1 {
			return parts[0]
		}
		joiner := " AND "
		if node.Kind == NodeOr {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")"
	default:
		return ""
	}
}

func compilePredicate(p *Predicate, dialect store.Dialect, pb store.ParamBuilder) string {
	switch p.Operator {
	case "eq", "":
		return fmt.Sprintf("%s = %s", p.Field, pb.Add(p.Value))
	case "neq":
		return fmt.Sprintf("%s != %s", p.Field, pb.Add(p.Value))
	case "gt":
		return fmt.Sprintf("%s > %s", p.Field, pb.Add(p.Value))
	case "gte":
		return fmt.Sprintf("%s >= %s", p.Field, pb.Add(p.Value))
	case "lt":
		return fmt.Sprintf("%s < %s", p.Field, pb.Add(p.Value))
	case "lte":
		return fmt.Sprintf("%s <= %s", p.Field, pb.Add(p.Value))
	case "in":
		return dialect.InExpr(p.Field, pb, toSlice(p.Value))
	case "not_in":
		return dialect.NotInExpr(p.Field, pb, toSlice(p.Value))
	case "contains":
		s, _ := p.Value.(string)
		return dialect.ContainsExpr(p.Field, pb, s)
	default:
		return fmt.Sprintf("%s = %s", p.Field, pb.Add(p.Value))
	}
}

func toSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return []any{v}
}
