package planner

import (
	"github.com/colquery/colquery/qerrors"
	"github.com/colquery/colquery/storage"
)

func errUnconnectedPlaceholder(node *opNode) error {
	return qerrors.New(qerrors.FatalError, "planner: buffer %d (%s) has no producer; Connect was never called", node.id, node.kind)
}

// environment is the per-run memoization cache for a QueryPlanner's lazy,
// on-demand evaluation: opNode.eval calls env.get on its inputs, which
// computes and caches them recursively. This lets Connect's back-edges
// resolve correctly regardless of allocation order (spec.md §9).
type environment struct {
	p       *QueryPlanner
	cache   map[int]Value
	columns storage.ColumnSet
	nRows   int
	show    bool
}

func (e *environment) get(id int) (Value, error) {
	if v, ok := e.cache[id]; ok {
		return v, nil
	}
	node := e.p.nodeByID(id)
	if node.eval == nil {
		return Value{}, errUnconnectedPlaceholder(node)
	}
	v, err := node.eval(e)
	if err != nil {
		return Value{}, err
	}
	e.cache[id] = v
	return v, nil
}

// Executor binds a prepared QueryPlanner to nothing yet; Prepare(columns)
// binds a partition's column storage and returns a Results collector
// (spec.md §4.6).
type Executor struct {
	planner *QueryPlanner
	pinned  []TypedBufferRef
}

// Prepare binds columns for this run and returns a Results collector.
func (e *Executor) Prepare(columns storage.ColumnSet) *Results {
	return &Results{
		exec: e,
		env: &environment{
			p:       e.planner,
			cache:   make(map[int]Value),
			columns: columns,
		},
	}
}

// Run executes the DAG against nRows rows. Evaluation itself is lazy
// (triggered by CollectAliased/CollectPinned pulling specific buffers); Run
// records the row-count/explain context those pulls need.
func (e *Executor) Run(nRows int, results *Results, show bool) {
	results.env.nRows = nRows
	results.env.show = show
}

// Results collects the materialized output of a run: CollectAliased
// resolves a set of buffer references into a deduplicated column list plus
// per-request indices into it, so a buffer referenced from both the
// projection and an ORDER BY shares one materialization (spec.md §4.6).
type Results struct {
	exec    *Executor
	env     *environment
	columns []Value
	index   map[int]int
}

func (r *Results) alias(ref TypedBufferRef) (int, error) {
	if r.index == nil {
		r.index = make(map[int]int)
	}
	if i, ok := r.index[ref.id]; ok {
		return i, nil
	}
	v, err := r.env.get(ref.id)
	if err != nil {
		return 0, err
	}
	i := len(r.columns)
	r.columns = append(r.columns, v)
	r.index[ref.id] = i
	return i, nil
}

// CollectAliased materializes every ref in refs (deduplicating identical
// buffer ids) and returns the resulting column list alongside refs'
// indices into it, in the same order as refs.
func (r *Results) CollectAliased(refs []TypedBufferRef) ([]Value, []int, error) {
	indices := make([]int, len(refs))
	for i, ref := range refs {
		idx, err := r.alias(ref)
		if err != nil {
			return nil, nil, err
		}
		indices[i] = idx
	}
	return r.columns, indices, nil
}

// CollectShowBuffers materializes every node in nodes (typically
// p.Nodes()) into r.columns, in addition to whatever CollectAliased
// already pulled in, giving a show=true caller the whole DAG's
// intermediate values, not just the final projected/ordered ones, for
// display or debugging (spec.md §4.6, §9: "show" toggles collection of
// intermediate buffers). A no-op returning nil when show was false on Run.
func (r *Results) CollectShowBuffers(nodes []NodeInfo) ([]Value, error) {
	if !r.env.show {
		return nil, nil
	}
	for _, n := range nodes {
		if _, err := r.alias(TypedBufferRef{id: n.ID, Tag: n.Tag}); err != nil {
			return nil, err
		}
	}
	return r.columns, nil
}

// CollectPinned returns the executor's pinned buffer set, materialized
// (the zero-copy buffers Prepare was given, spec.md §4.6).
func (r *Results) CollectPinned() ([]Value, error) {
	out := make([]Value, 0, len(r.exec.pinned))
	for _, ref := range r.exec.pinned {
		v, err := r.env.get(ref.id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
