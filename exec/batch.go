// Package exec is the outer scan/aggregate entry points (spec.md §4.4,
// §4.5): Run and RunAggregate each take one partition's NormalFormQuery and
// ColumnSet and drive the planner package to build and execute a DAG,
// returning a BatchResult for the caller to merge across partitions
// (cross-partition merge itself is out of this module's scope, spec.md
// §1). The Executor and its operator arena live in package planner, not
// here, so planner never needs to import exec — exec is the one-directional
// consumer (spec.md §9 resolution of the Go package-cycle the original
// Rust engine module does not have to worry about).
package exec

import (
	"github.com/colquery/colquery/planner"
	"github.com/colquery/colquery/qerrors"
)

// BatchResult is one partition's query output: the materialized result
// columns, named, plus bookkeeping a cross-partition merge needs (spec.md §7).
type BatchResult struct {
	Columns    []planner.Value
	ColumnName []string
	Projection []int // indices into Columns, in SELECT order
	Aggregate  []int // indices into Columns producing aggregate results, in order
	OrderBy    []int // indices into Columns used for final ordering
	Level      int   // 0 for a scan result, 1 for an aggregate result (spec.md §7)

	// BatchCount counts the partition results a log-structured merge has
	// already folded into this one; Run/RunAggregate always produce 1, a
	// merger combining two batches sums theirs (spec.md §1, §3).
	BatchCount int

	// Show records whether this batch's Columns also carries the DAG's
	// intermediate buffers (beyond what Projection/Aggregate/OrderBy
	// reference), for a --show caller to inspect (spec.md §6).
	Show bool

	// UnsafeReferencedBuffers pins the zero-copy buffers Columns may point
	// into directly (the raw open(col) reads, compile.go), keeping them
	// alive for the batch's lifetime (spec.md §3).
	UnsafeReferencedBuffers []planner.Value
}

// Validate checks the structural invariants a cross-partition merge relies
// on (spec.md §7): every index is in range, and only one of Aggregate /
// OrderBy is non-empty (a result is either a group-by or an order-by
// result, never both, mirroring NormalFormQuery.Validate).
func (b *BatchResult) Validate() error {
	n := len(b.Columns)
	check := func(indices []int, name string) error {
		for _, i := range indices {
			if i < 0 || i >= n {
				return qerrors.New(qerrors.FatalError, "batch result: %s index %d out of range [0,%d)", name, i, n)
			}
		}
		return nil
	}
	if err := check(b.Projection, "projection"); err != nil {
		return err
	}
	if err := check(b.Aggregate, "aggregate"); err != nil {
		return err
	}
	if err := check(b.OrderBy, "order_by"); err != nil {
		return err
	}
	if len(b.Aggregate) > 0 && len(b.OrderBy) > 0 {
		return qerrors.New(qerrors.FatalError, "batch result has both aggregate and order_by results")
	}
	return nil
}
