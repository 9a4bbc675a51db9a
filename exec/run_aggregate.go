package exec

import (
	"github.com/colquery/colquery/explain"
	"github.com/colquery/colquery/expr"
	"github.com/colquery/colquery/planner"
	"github.com/colquery/colquery/qerrors"
	"github.com/colquery/colquery/qlog"
	"github.com/colquery/colquery/query"
	"github.com/colquery/colquery/storage"
)

// RunAggregate executes an aggregating NormalFormQuery against one
// partition (spec.md §4.5), the Go port of original_source's
// NormalFormQuery::run_aggregate (src/engine/planning/query.rs).
//
// nfq.Projection holds the GROUP BY expressions (any non-aggregate
// expressions, not only bare ColNames), which are packed into one grouping
// key; nfq.Aggregate holds the (Aggregator, expr) pairs to reduce per group.
func RunAggregate(nfq *query.NormalFormQuery, columns storage.ColumnSet, explainPlan, show bool, partition, partitionLength int) (*BatchResult, string, error) {
	log := qlog.ForPartition(partition, partitionLength)
	if err := nfq.Validate(); err != nil {
		return nil, "", qerrors.Wrap(qerrors.FatalError, err, "exec.RunAggregate: invalid normal form query")
	}
	if len(nfq.Aggregate) == 0 {
		return nil, "", qerrors.New(qerrors.FatalError, "exec.RunAggregate called on a query with no aggregates; use Run")
	}
	log.Debug("aggregate path: compiling grouping key")

	var p planner.QueryPlanner
	n := columns.RowCount(partitionLength)
	identity := p.Indices(p.NullVec(n))

	filter, err := compileScanFilter(nfq.Filter, identity, columns, &p)
	if err != nil {
		return nil, "", err
	}

	gk, err := planner.CompileGroupingKey(nfq.Projection, filter, columns, &p)
	if err != nil {
		return nil, "", err
	}

	dense := planner.ChooseGroupingStrategy(gk)
	log.WithField("strategy", strategyName(dense)).WithField("max_key", gk.MaxKey).Debug("grouping strategy chosen")

	var groupingKey, cardinality, encodedGroupBy planner.TypedBufferRef

	if dense {
		domainLen := p.NullVec(int(gk.MaxKey + 1))
		denseIdentity := p.RangeI64(domainLen)
		p.Connect(denseIdentity, gk.Placeholder)
		groupingKey = gk.Raw
		cardinality = p.ScalarI64(gk.MaxKey + 1)
	} else {
		hk, hc := planner.PrepareHashmapGrouping(gk, &p)
		groupingKey, cardinality = hk, hc
		encodedGroupBy = planner.HashmapEncodedGroupByColumn(hk, &p)
		p.Connect(encodedGroupBy, gk.Placeholder)
	}

	aggBufs := make([]planner.TypedBufferRef, len(nfq.Aggregate))
	countIdx := -1
	for i, agg := range nfq.Aggregate {
		plan, _, err := planner.CompileExpr(agg.Expr, filter, columns, &p)
		if err != nil {
			return nil, "", err
		}
		aggBufs[i] = planner.PrepareAggregation(plan, groupingKey, cardinality, agg.Aggregator, &p)
		if agg.Aggregator == expr.Count {
			countIdx = i
		}
	}

	decodeBufs := make([]planner.TypedBufferRef, len(gk.DecodePlans))
	for i, dp := range gk.DecodePlans {
		decodeBufs[i] = dp.Buf
	}

	if dense {
		var selector planner.TypedBufferRef
		if countIdx >= 0 {
			selector = aggBufs[countIdx]
		} else {
			selector = p.Exists(groupingKey, cardinality)
		}
		for i, buf := range aggBufs {
			aggBufs[i] = p.Compact(buf, selector)
		}
		for i, buf := range decodeBufs {
			decodeBufs[i] = p.Compact(buf, selector)
		}
	}

	// spec.md §4.5 step 9 / §9: when the result rows do not come out in the
	// grouping key's logical order (every hashmap result, and a dense result
	// over a non-order-preserving key), re-sort the output by whichever
	// value still carries that order.
	if !dense || !gk.Type.OrderPreserving {
		var sortKey planner.TypedBufferRef
		if gk.Type.OrderPreserving {
			sortKey = encodedGroupBy
		} else if len(decodeBufs) == 1 {
			sortKey = decodeBufs[0]
		} else {
			return nil, "", qerrors.New(qerrors.NotImplemented,
				"grouping result needs reordering but its non-order-preserving key has more than one grouping column")
		}
		sortIdx := p.SortBy(sortKey, p.Indices(sortKey), false, false)
		for i, buf := range aggBufs {
			aggBufs[i] = p.Select(buf, sortIdx)
		}
		for i, buf := range decodeBufs {
			decodeBufs[i] = p.Select(buf, sortIdx)
		}
	}

	if nfq.Limit.Limit > 0 || nfq.Limit.Offset > 0 {
		for i, buf := range aggBufs {
			aggBufs[i] = limitBuffer(buf, nfq.Limit, &p)
		}
		for i, buf := range decodeBufs {
			decodeBufs[i] = limitBuffer(buf, nfq.Limit, &p)
		}
	}

	executor, err := p.Prepare(p.RawBuffers())
	if err != nil {
		return nil, "", err
	}
	results := executor.Prepare(columns)
	executor.Run(n, results, show)

	allRefs := make([]planner.TypedBufferRef, 0, len(decodeBufs)+len(aggBufs))
	allRefs = append(allRefs, decodeBufs...)
	allRefs = append(allRefs, aggBufs...)
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
		Projection:              indices[:len(decodeBufs)],
		Aggregate:               indices[len(decodeBufs):],
		Level:                   1,
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
	log.Debug("aggregate path complete")
	return batch, explainText, nil
}

func strategyName(dense bool) string {
	if dense {
		return "dense"
	}
	return "hashmap"
}

func limitBuffer(buf planner.TypedBufferRef, limit query.LimitClause, p *planner.QueryPlanner) planner.TypedBufferRef {
	idx := p.Indices(buf)
	sliced := p.Truncate(idx, limit.Offset, limit.Limit)
	return p.Select(buf, sliced)
}
