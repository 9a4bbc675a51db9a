// Package query implements the Query model and the Normalizer (spec.md §4.1):
// the rewrite of a user-shaped Query into one or two NormalFormQuery stages
// such that no stage mixes projections and aggregates that cannot be
// evaluated in a single pass.
//
// This is the Go port of original_source's Query::normalize /
// Query::extract_aggregators (LocustDB, src/engine/planning/query.rs),
// grounded in the shape of the teacher's Phase-extraction helpers
// (datalog/planner/phase_predicates.go) for the "walk, rewrite, collect"
// pattern.
package query

import (
	"fmt"

	"github.com/colquery/colquery/expr"
	"github.com/colquery/colquery/qerrors"
)

// Query is the user-shaped request: a mix of scalar projections and
// aggregates over a single table, with an optional filter, ORDER BY list,
// and LIMIT/OFFSET.
type Query struct {
	Select  []Expr
	Table   string
	Filter  Expr
	OrderBy []OrderByExpr
	Limit   LimitClause
}

// aggregateExtraction is one (Aggregator, Expr) pair pulled out of a select
// or order-by shell during normalization.
type aggregateExtraction struct {
	agg  expr.Aggregator
	expr Expr
}

// Normalize rewrites q into (stage1, stage2). stage2 is nil unless a final
// pass is required (spec.md §4.1): when some select shell is not a bare
// ColName, or both aggregate and order_by would otherwise be non-empty.
func (q *Query) Normalize() (*NormalFormQuery, *NormalFormQuery, error) {
	var finalProjection []Expr
	var stage1Select []Expr
	var aggregate []AggregateExpr
	selectColnames := 0
	aggregateColnames := 0

	for _, e := range q.Select {
		full, extracted, err := extractAggregators(e, &aggregateColnames)
		if err != nil {
			return nil, nil, err
		}
		if len(extracted) == 0 {
			name := fmt.Sprintf("_cs%d", selectColnames)
			selectColnames++
			stage1Select = append(stage1Select, full)
			finalProjection = append(finalProjection, expr.ColName{Name: name})
		} else {
			aggregate = append(aggregate, toAggregateExprs(extracted)...)
			finalProjection = append(finalProjection, full)
		}
	}

	requireFinalPass := len(aggregate) > 0 && len(q.OrderBy) > 0
	if !requireFinalPass {
		for _, e := range finalProjection {
			if _, ok := expr.IsColName(e); !ok {
				requireFinalPass = true
				break
			}
		}
	}

	if !requireFinalPass {
		return &NormalFormQuery{
			Projection: stage1Select,
			Filter:     q.Filter,
			Aggregate:  aggregate,
			OrderBy:    q.OrderBy,
			Limit:      q.Limit,
		}, nil, nil
	}

	var finalOrderBy []OrderByExpr
	for _, ob := range q.OrderBy {
		full, extracted, err := extractAggregators(ob.Expr, &aggregateColnames)
		if err != nil {
			return nil, nil, err
		}
		if len(extracted) == 0 {
			name := fmt.Sprintf("_cs%d", selectColnames)
			selectColnames++
			stage1Select = append(stage1Select, full)
			finalOrderBy = append(finalOrderBy, OrderByExpr{Expr: expr.ColName{Name: name}, Desc: ob.Desc})
		} else {
			aggregate = append(aggregate, toAggregateExprs(extracted)...)
			finalOrderBy = append(finalOrderBy, OrderByExpr{Expr: full, Desc: ob.Desc})
		}
	}

	stage1 := &NormalFormQuery{
		Projection: stage1Select,
		Filter:     q.Filter,
		Aggregate:  aggregate,
		OrderBy:    nil,
		Limit:      q.Limit,
	}
	stage2 := &NormalFormQuery{
		Projection: finalProjection,
		Filter:     expr.Const{Value: expr.Int(1)},
		Aggregate:  nil,
		OrderBy:    finalOrderBy,
		Limit:      q.Limit,
	}
	return stage1, stage2, nil
}

func toAggregateExprs(extracted []aggregateExtraction) []AggregateExpr {
	out := make([]AggregateExpr, len(extracted))
	for i, e := range extracted {
		out[i] = AggregateExpr{Aggregator: e.agg, Expr: e.expr}
	}
	return out
}

// extractAggregators recursively extracts every Aggregate subterm of e,
// replacing it in-place with a freshly named column reference ("_ca{k}",
// k taken from counter; all calls for one query share one counter, so the
// names stay unique across its expressions), and returning the extracted
// (aggregator, inner expr) pairs in pre-order.
//
// Nested aggregates are rejected with qerrors.NotImplemented: spec.md §9
// Open Question (i) notes the original extractor does not enforce this; this
// port does, since a nested Aggregate has no defined evaluation semantics.
func extractAggregators(e Expr, counter *int) (Expr, []aggregateExtraction, error) {
	return extractAggregatorsNamed(e, counter)
}

func extractAggregatorsNamed(e Expr, counter *int) (Expr, []aggregateExtraction, error) {
	switch v := e.(type) {
	case expr.Aggregate:
		if expr.ContainsAggregate(v.Child) {
			return nil, nil, qerrors.New(qerrors.NotImplemented, "nested aggregates are not supported: %s", v)
		}
		name := fmt.Sprintf("_ca%d", *counter)
		*counter++
		return expr.ColName{Name: name}, []aggregateExtraction{{agg: v.Aggregator, expr: v.Child}}, nil
	case expr.Func1:
		child, extracted, err := extractAggregatorsNamed(v.Child, counter)
		if err != nil {
			return nil, nil, err
		}
		return expr.Func1{Op: v.Op, Child: child}, extracted, nil
	case expr.Func2:
		left, extracted1, err := extractAggregatorsNamed(v.Left, counter)
		if err != nil {
			return nil, nil, err
		}
		right, extracted2, err := extractAggregatorsNamed(v.Right, counter)
		if err != nil {
			return nil, nil, err
		}
		return expr.Func2{Op: v.Op, Left: left, Right: right}, append(extracted1, extracted2...), nil
	case expr.Const, expr.ColName:
		return v, nil, nil
	default:
		return nil, nil, qerrors.New(qerrors.FatalError, "unknown expression variant %T", e)
	}
}

// IsSelectStar reports whether q is the trivial "SELECT *" form.
func (q *Query) IsSelectStar() bool {
	if len(q.Select) != 1 {
		return false
	}
	c, ok := expr.IsColName(q.Select[0])
	return ok && c.Name == "*"
}

// FindReferencedCols walks select/filter/order-by expressions and returns
// the set of column names needed from storage.
func (q *Query) FindReferencedCols() map[string]struct{} {
	cols := make(map[string]struct{})
	for _, e := range q.Select {
		e.AddColNames(cols)
	}
	for _, ob := range q.OrderBy {
		ob.Expr.AddColNames(cols)
	}
	if q.Filter != nil {
		q.Filter.AddColNames(cols)
	}
	return cols
}

// ResultColumnNames yields the final result column names for q, by
// normalizing and delegating to whichever stage produces the final output.
func (q *Query) ResultColumnNames() ([]string, error) {
	stage1, stage2, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	if stage2 != nil {
		return stage2.ResultColumnNames(), nil
	}
	return stage1.ResultColumnNames(), nil
}
