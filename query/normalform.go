package query

import (
	"fmt"

	"github.com/colquery/colquery/expr"
)

// OrderByExpr pairs an ordering key with its direction.
type OrderByExpr struct {
	Expr Expr
	Desc bool
}

// Expr is a re-export so callers of this package rarely need to import
// github.com/colquery/colquery/expr directly for the common case.
type Expr = expr.Expr

// AggregateExpr pairs an aggregator with the expression it reduces.
type AggregateExpr struct {
	Aggregator expr.Aggregator
	Expr       Expr
}

// NormalFormQuery is the canonical form the planner accepts.
//
// Invariants (spec.md §3):
//   - none of Projection, Filter, OrderBy (and their sub-expressions)
//     contain an Aggregate node;
//   - Aggregate and OrderBy are not both non-empty.
type NormalFormQuery struct {
	Projection []Expr
	Filter     Expr
	Aggregate  []AggregateExpr
	OrderBy    []OrderByExpr
	Limit      LimitClause
}

// ResultColumnNames yields stable, collision-free names for the final
// columns this stage produces: projection columns use the bare ColName when
// available, else col_{k}; aggregate columns use count_{k}/sum_{k}.
func (n *NormalFormQuery) ResultColumnNames() []string {
	names := make([]string, 0, len(n.Projection)+len(n.Aggregate))
	anon := -1
	for _, e := range n.Projection {
		if c, ok := expr.IsColName(e); ok {
			names = append(names, c.Name)
			continue
		}
		anon++
		names = append(names, fmt.Sprintf("col_%d", anon))
	}
	anonAgg := -1
	for _, a := range n.Aggregate {
		anonAgg++
		names = append(names, fmt.Sprintf("%s_%d", a.Aggregator.ResultPrefix(), anonAgg))
	}
	return names
}

// Validate checks the two invariants documented above.
func (n *NormalFormQuery) Validate() error {
	for _, e := range n.Projection {
		if expr.ContainsAggregate(e) {
			return fmt.Errorf("normal form projection contains an Aggregate node: %s", e)
		}
	}
	if expr.ContainsAggregate(n.Filter) {
		return fmt.Errorf("normal form filter contains an Aggregate node: %s", n.Filter)
	}
	for _, o := range n.OrderBy {
		if expr.ContainsAggregate(o.Expr) {
			return fmt.Errorf("normal form order_by contains an Aggregate node: %s", o.Expr)
		}
	}
	if len(n.Aggregate) > 0 && len(n.OrderBy) > 0 {
		return fmt.Errorf("normal form has both aggregate and order_by non-empty")
	}
	return nil
}
