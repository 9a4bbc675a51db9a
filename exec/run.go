package exec

import (
	"github.com/colquery/colquery/expr"
	"github.com/colquery/colquery/explain"
	"github.com/colquery/colquery/planner"
	"github.com/colquery/colquery/qerrors"
	"github.com/colquery/colquery/qlog"
	"github.com/colquery/colquery/query"
	"github.com/colquery/colquery/storage"
)

// Run executes a non-aggregating NormalFormQuery against one partition
// (spec.md §4.4), the Go port of original_source's NormalFormQuery::run
// (src/engine/planning/query.rs).
//
// Steps: build an identity index list sized to the partition, narrow it by
// the compiled filter, compile the projection and ORDER BY expressions
// under that filter, sort (decoding any non-order-preserving ORDER BY key
// first), apply LIMIT/OFFSET, then gather the final columns.
func Run(nfq *query.NormalFormQuery, columns storage.ColumnSet, explainPlan, show bool, partition, partitionLength int) (*BatchResult, string, error) {
	log := qlog.ForPartition(partition, partitionLength)
	if err := nfq.Validate(); err != nil {
		return nil, "", qerrors.Wrap(qerrors.FatalError, err, "exec.Run: invalid normal form query")
	}
	if len(nfq.Aggregate) > 0 {
		return nil, "", qerrors.New(qerrors.FatalError, "exec.Run called on a query with aggregates; use RunAggregate")
	}
	log.Debug("scan path: compiling filter and projections")

	var p planner.QueryPlanner
	n := columns.RowCount(partitionLength)
	identity := p.Indices(p.NullVec(n))

	filter, err := compileScanFilter(nfq.Filter, identity, columns, &p)
	if err != nil {
		return nil, "", err
	}

	projectionBufs := make([]planner.TypedBufferRef, len(nfq.Projection))
	for i, e := range nfq.Projection {
		buf, typ, err := planner.CompileExpr(e, filter, columns, &p)
		if err != nil {
			return nil, "", err
		}
		if typ.Codec != nil {
			buf = typ.Codec.Decode(&p, buf)
		}
		projectionBufs[i] = buf
	}

	orderByBufs := make([]planner.TypedBufferRef, len(nfq.OrderBy))
	for i, ob := range nfq.OrderBy {
		buf, typ, err := planner.CompileExpr(ob.Expr, filter, columns, &p)
		if err != nil {
			return nil, "", err
		}
		// spec.md §9: a sort key whose encoding does not preserve logical
		// order must be decoded before it can be used as a sort key.
		if !typ.OrderPreserving && typ.Codec != nil {
			buf = typ.Codec.Decode(&p, buf)
		}
		orderByBufs[i] = buf
	}

	// filter.Indices holds row numbers in the *unfiltered* partition's
	// domain, but projectionBufs/orderByBufs were already gathered down to
	// "position among passing rows" by applyFilter (compile.go), a distinct,
	// smaller domain. Re-deriving the identity over filter.Indices itself
	// (length == passing-row count) gives sortIndices the matching domain,
	// the same idiom limitBuffer (run_aggregate.go) uses via p.Indices.
	sortIndices := p.Indices(filter.Indices)
	for i := len(nfq.OrderBy) - 1; i >= 0; i-- {
		// Applying a stable sort per key from least- to most-significant
		// yields a lexicographic multi-key order (spec.md §4.4 step 4).
		sortIndices = p.SortBy(orderByBufs[i], sortIndices, nfq.OrderBy[i].Desc, true)
	}
	if nfq.Limit.Limit > 0 || nfq.Limit.Offset > 0 {
		sortIndices = p.Truncate(sortIndices, nfq.Limit.Offset, nfq.Limit.Limit)
	}

	needsReorder := len(nfq.OrderBy) > 0 || nfq.Limit.Limit > 0 || nfq.Limit.Offset > 0
	finalProjection := make([]planner.TypedBufferRef, len(projectionBufs))
	for i, buf := range projectionBufs {
		if needsReorder {
			finalProjection[i] = p.Select(buf, sortIndices)
		} else {
			finalProjection[i] = buf
		}
	}
	finalOrderBy := make([]planner.TypedBufferRef, len(orderByBufs))
	for i, buf := range orderByBufs {
		finalOrderBy[i] = p.Select(buf, sortIndices)
	}

	executor, err := p.Prepare(p.RawBuffers())
	if err != nil {
		return nil, "", err
	}
	results := executor.Prepare(columns)
	executor.Run(n, results, show)

	allRefs := make([]planner.TypedBufferRef, 0, len(finalProjection)+len(finalOrderBy))
	allRefs = append(allRefs, finalProjection...)
	allRefs = append(allRefs, finalOrderBy...)
	cols, indices, err := results.CollectAliased(allRefs)
	if err != nil {
		return nil, "", err
	}
	if show {
		if extended, err := results.CollectShowBuffers(p.Nodes()); err != nil {
			return nil, "", err
		} else if extended != nil {
			cols = extended
		}
	}
	pinned, err := results.CollectPinned()
	if err != nil {
		return nil, "", err
	}

	batch := &BatchResult{
		Columns:                 cols,
		ColumnName:              nfq.ResultColumnNames(),
		Projection:              indices[:len(finalProjection)],
		OrderBy:                 indices[len(finalProjection):],
		Level:                   0,
		BatchCount:              1,
		Show:                    show,
		UnsafeReferencedBuffers: pinned,
	}
	if err := batch.Validate(); err != nil {
		return nil, "", err
	}

	var explainText string
	if explainPlan {
		explainText = explain.DAG(&p, allRefs)
	}
	log.WithField("rows", n).Debug("scan path complete")
	return batch, explainText, nil
}

// compileScanFilter narrows identity to the rows nfq.Filter selects
// (spec.md §4.4 steps 2-3). A trivial "true" filter (the default when a
// query has no WHERE clause) short-circuits to the identity list.
func compileScanFilter(filterExpr query.Expr, identity planner.TypedBufferRef, columns storage.ColumnSet, p *planner.QueryPlanner) (planner.Filter, error) {
	if isTrivialTrue(filterExpr) {
		return planner.Filter{Kind: planner.FilterIndices, Indices: identity}, nil
	}
	maskBuf, maskType, err := planner.CompileExpr(filterExpr, planner.NoFilter, columns, p)
	if err != nil {
		return planner.Filter{}, err
	}
	var filteredIndices planner.TypedBufferRef
	if maskType.Enc == planner.EncNullableU8 {
		filteredIndices = p.NullableFilter(identity, maskBuf)
	} else {
		filteredIndices = p.FilterOp(identity, maskBuf)
	}
	return planner.Filter{Kind: planner.FilterIndices, Indices: filteredIndices}, nil
}

func isTrivialTrue(e query.Expr) bool {
	if e == nil {
		return true
	}
	c, ok := e.(expr.Const)
	if !ok {
		return false
	}
	switch c.Value.Kind {
	case expr.KindBool:
		return c.Value.Bool
	case expr.KindInt:
		return c.Value.Int != 0
	default:
		return false
	}
}
