package planner

import (
	"fmt"
	"sort"

	"github.com/colquery/colquery/qerrors"
)

type evalFunc func(env *environment) (Value, error)

// opNode is one operator in the arena: a typed buffer allocation plus the
// closure that computes it. Back-edges (the grouping placeholder) are
// handled by mutating eval in place via Connect, after the node producing
// the real value has already been allocated elsewhere in the arena — no
// node is required to appear before its dependents, since evaluation is a
// memoized, on-demand walk (environment.get), not a single linear pass.
type opNode struct {
	id     int
	tag    EncodingType
	kind   string
	inputs []int // informational only, used by package explain
	eval   evalFunc
}

// QueryPlanner accumulates an operator DAG. The zero value is ready to use.
//
// Grounded on the teacher's handle/metadata-map idiom for QueryPlan/Phase
// (datalog/planner/types.go): nodes are addressed by small integer handles
// (TypedBufferRef.id) rather than pointers, and the planner owns the arena.
type QueryPlanner struct {
	nodes      []*opNode
	rawBuffers []TypedBufferRef
}

func (p *QueryPlanner) nodeByID(id int) *opNode {
	return p.nodes[id]
}

func (p *QueryPlanner) alloc(tag EncodingType, kind string, inputs []TypedBufferRef, eval evalFunc) TypedBufferRef {
	id := len(p.nodes)
	ids := make([]int, len(inputs))
	for i, in := range inputs {
		ids[i] = in.id
	}
	p.nodes = append(p.nodes, &opNode{id: id, tag: tag, kind: kind, inputs: ids, eval: eval})
	return TypedBufferRef{id: id, Tag: tag}
}

// placeholder allocates a buffer with no producer yet; Connect must be
// called on it before the DAG is run. Used for the encoded_group_by
// back-edge (spec.md §4.5 step 6, §9).
func (p *QueryPlanner) placeholder(tag EncodingType, kind string) TypedBufferRef {
	return p.alloc(tag, kind, nil, nil)
}

// Connect rewires a previously allocated placeholder so it resolves to src.
func (p *QueryPlanner) Connect(src, placeholder TypedBufferRef) {
	node := p.nodeByID(placeholder.id)
	node.eval = func(env *environment) (Value, error) {
		return env.get(src.id)
	}
	node.inputs = []int{src.id}
}

// Indices materializes the identity index list [0, len(buf)).
func (p *QueryPlanner) Indices(buf TypedBufferRef) TypedBufferRef {
	return p.alloc(EncUsize, "indices", []TypedBufferRef{buf}, func(env *environment) (Value, error) {
		v, err := env.get(buf.id)
		if err != nil {
			return Value{}, err
		}
		n := v.Len()
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return Value{Tag: EncUsize, Usize: out}, nil
	})
}

// NullVec allocates an n-long placeholder buffer carrying no real data,
// used to seed Indices with a partition's row count (spec.md §4.4 step 1).
func (p *QueryPlanner) NullVec(n int) TypedBufferRef {
	return p.alloc(EncNull, "null_vec", nil, func(env *environment) (Value, error) {
		return Value{Tag: EncNull, NullLen: n}, nil
	})
}

// RangeI64 materializes the identity sequence [0, len(sizedLike)) as an I64
// buffer (as opposed to Indices, which produces a Usize row-index list),
// used to seed the dense grouping strategy's encoded_group_by_column back-edge.
func (p *QueryPlanner) RangeI64(sizedLike TypedBufferRef) TypedBufferRef {
	return p.alloc(EncI64, "range_i64", []TypedBufferRef{sizedLike}, func(env *environment) (Value, error) {
		v, err := env.get(sizedLike.id)
		if err != nil {
			return Value{}, err
		}
		n := v.Len()
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(i)
		}
		return Value{Tag: EncI64, I64: out}, nil
	})
}

// ScalarI64 injects a scalar int64 constant into the arena.
func (p *QueryPlanner) ScalarI64(v int64) TypedBufferRef {
	return p.alloc(EncScalarI64, fmt.Sprintf("scalar_i64(%d)", v), nil, func(env *environment) (Value, error) {
		return Value{Tag: EncScalarI64, Scalar: v}, nil
	})
}

// FilterOp gathers the row positions of indices whose corresponding mask
// entry is nonzero (spec.md §4.4 step 3, dense U8 mask case).
func (p *QueryPlanner) FilterOp(indices, mask TypedBufferRef) TypedBufferRef {
	return p.alloc(EncUsize, "filter", []TypedBufferRef{indices, mask}, func(env *environment) (Value, error) {
		idxV, err := env.get(indices.id)
		if err != nil {
			return Value{}, err
		}
		maskV, err := env.get(mask.id)
		if err != nil {
			return Value{}, err
		}
		idx := idxV.AsUsize()
		out := make([]int, 0, len(idx))
		for _, row := range idx {
			if maskV.U8[row] != 0 {
				out = append(out, row)
			}
		}
		return Value{Tag: EncUsize, Usize: out}, nil
	})
}

// NullableFilter is FilterOp for a nullable mask: a null entry excludes the row.
func (p *QueryPlanner) NullableFilter(indices, mask TypedBufferRef) TypedBufferRef {
	return p.alloc(EncUsize, "nullable_filter", []TypedBufferRef{indices, mask}, func(env *environment) (Value, error) {
		idxV, err := env.get(indices.id)
		if err != nil {
			return Value{}, err
		}
		maskV, err := env.get(mask.id)
		if err != nil {
			return Value{}, err
		}
		idx := idxV.AsUsize()
		out := make([]int, 0, len(idx))
		for _, row := range idx {
			if maskV.NullableU8.Valid[row] && maskV.NullableU8.Vals[row] != 0 {
				out = append(out, row)
			}
		}
		return Value{Tag: EncUsize, Usize: out}, nil
	})
}

// Select gathers values at the given row indices, preserving values' tag.
func (p *QueryPlanner) Select(values, indices TypedBufferRef) TypedBufferRef {
	return p.alloc(values.Tag, "select", []TypedBufferRef{values, indices}, func(env *environment) (Value, error) {
		valsV, err := env.get(values.id)
		if err != nil {
			return Value{}, err
		}
		idxV, err := env.get(indices.id)
		if err != nil {
			return Value{}, err
		}
		idx := idxV.AsUsize()
		return gather(valsV, idx)
	})
}

func gather(v Value, idx []int) (Value, error) {
	switch v.Tag {
	case EncI64:
		out := make([]int64, len(idx))
		for i, r := range idx {
			out[i] = v.I64[r]
		}
		return Value{Tag: EncI64, I64: out}, nil
	case EncU8:
		out := make([]uint8, len(idx))
		for i, r := range idx {
			out[i] = v.U8[r]
		}
		return Value{Tag: EncU8, U8: out}, nil
	case EncStr:
		out := make([]string, len(idx))
		for i, r := range idx {
			out[i] = v.Str[r]
		}
		return Value{Tag: EncStr, Str: out}, nil
	case EncUsize:
		out := make([]int, len(idx))
		for i, r := range idx {
			out[i] = v.Usize[r]
		}
		return Value{Tag: EncUsize, Usize: out}, nil
	case EncNullableU8:
		vals := make([]uint8, len(idx))
		valid := make([]bool, len(idx))
		for i, r := range idx {
			vals[i] = v.NullableU8.Vals[r]
			valid[i] = v.NullableU8.Valid[r]
		}
		return Value{Tag: EncNullableU8, NullableU8: NullableU8Data{Vals: vals, Valid: valid}}, nil
	default:
		return Value{}, qerrors.New(qerrors.FatalError, "select: unsupported value tag %s", v.Tag)
	}
}

// SortBy reorders a row-index list by the corresponding key values.
func (p *QueryPlanner) SortBy(key, indices TypedBufferRef, desc, stable bool) TypedBufferRef {
	return p.alloc(EncUsize, "sort_by", []TypedBufferRef{key, indices}, func(env *environment) (Value, error) {
		keyV, err := env.get(key.id)
		if err != nil {
			return Value{}, err
		}
		idxV, err := env.get(indices.id)
		if err != nil {
			return Value{}, err
		}
		idx := append([]int(nil), idxV.AsUsize()...)
		less, err := lessFunc(keyV, idx, desc)
		if err != nil {
			return Value{}, err
		}
		if stable {
			sort.SliceStable(idx, less)
		} else {
			sort.Slice(idx, less)
		}
		return Value{Tag: EncUsize, Usize: idx}, nil
	})
}

// TopN is SortBy truncated to the first limit entries. The partial-select
// algorithm an optimized kernel would use (e.g. a bounded heap) is out of
// this core's scope (spec.md §1, "operator kernel bodies"); this
// implementation sorts the whole key first, which is correct but not the
// performance a production top_n would deliver.
func (p *QueryPlanner) TopN(key, indices TypedBufferRef, limit uint64, desc bool) TypedBufferRef {
	sorted := p.SortBy(key, indices, desc, false)
	return p.Truncate(sorted, 0, limit)
}

// Truncate applies LIMIT/OFFSET to a row-index list.
func (p *QueryPlanner) Truncate(indices TypedBufferRef, offset, limit uint64) TypedBufferRef {
	return p.alloc(EncUsize, fmt.Sprintf("truncate(offset=%d,limit=%d)", offset, limit), []TypedBufferRef{indices}, func(env *environment) (Value, error) {
		v, err := env.get(indices.id)
		if err != nil {
			return Value{}, err
		}
		idx := v.Usize
		off := offset
		if off > uint64(len(idx)) {
			off = uint64(len(idx))
		}
		idx = idx[off:]
		if limit > 0 && limit < uint64(len(idx)) {
			idx = idx[:limit]
		}
		return Value{Tag: EncUsize, Usize: idx}, nil
	})
}

func lessFunc(keyV Value, idx []int, desc bool) (func(i, j int) bool, error) {
	switch keyV.Tag {
	case EncI64, EncU8, EncUsize, EncScalarI64:
		vals := keyV.AsI64()
		return func(i, j int) bool {
			a, b := vals[idx[i]], vals[idx[j]]
			if desc {
				return a > b
			}
			return a < b
		}, nil
	case EncStr:
		return func(i, j int) bool {
			a, b := keyV.Str[idx[i]], keyV.Str[idx[j]]
			if desc {
				return a > b
			}
			return a < b
		}, nil
	default:
		return nil, qerrors.New(qerrors.FatalError, "sort_by: unsupported key tag %s", keyV.Tag)
	}
}

// Compact keeps entries of values whose corresponding selector entry is
// nonzero, in ascending position order (spec.md §4.5 step 7, Sum case).
func (p *QueryPlanner) Compact(values, selector TypedBufferRef) TypedBufferRef {
	return p.alloc(values.Tag, "compact", []TypedBufferRef{values, selector}, func(env *environment) (Value, error) {
		valsV, err := env.get(values.id)
		if err != nil {
			return Value{}, err
		}
		selV, err := env.get(selector.id)
		if err != nil {
			return Value{}, err
		}
		sel := selV.AsI64()
		idx := make([]int, 0, len(sel))
		for i, s := range sel {
			if s != 0 {
				idx = append(idx, i)
			}
		}
		return gather(valsV, idx)
	})
}

// NonzeroCompact keeps entries of values that are themselves nonzero,
// self-selecting (spec.md §4.5 step 7, Count case: the count is its own
// presence signal).
func (p *QueryPlanner) NonzeroCompact(values TypedBufferRef) TypedBufferRef {
	return p.Compact(values, values)
}

// NonzeroIndices returns the positions where vec is nonzero. Over a dense
// presence/count vector a position IS its raw grouping key, so this yields
// the raw keys of the populated groups (spec.md §4.5 step 6); the dense
// path in exec.RunAggregate gets the same keys from RangeI64 plus Compact.
func (p *QueryPlanner) NonzeroIndices(vec TypedBufferRef) TypedBufferRef {
	return p.alloc(EncI64, "nonzero_indices", []TypedBufferRef{vec}, func(env *environment) (Value, error) {
		v, err := env.get(vec.id)
		if err != nil {
			return Value{}, err
		}
		vals := v.AsI64()
		out := make([]int64, 0, len(vals))
		for i, x := range vals {
			if x != 0 {
				out = append(out, int64(i))
			}
		}
		return Value{Tag: EncI64, I64: out}, nil
	})
}

// Exists builds a presence vector of size cardinality over groupingKey,
// used when no Count aggregate is already available to serve as selector
// (spec.md §4.5 step 4).
func (p *QueryPlanner) Exists(groupingKey, cardinality TypedBufferRef) TypedBufferRef {
	return p.alloc(EncI64, "exists", []TypedBufferRef{groupingKey, cardinality}, func(env *environment) (Value, error) {
		gkV, err := env.get(groupingKey.id)
		if err != nil {
			return Value{}, err
		}
		cardV, err := env.get(cardinality.id)
		if err != nil {
			return Value{}, err
		}
		card := cardV.AsScalarI64()
		presence := make([]int64, card)
		for _, k := range gkV.AsI64() {
			presence[k] = 1
		}
		return Value{Tag: EncI64, I64: presence}, nil
	})
}

// Prepare finalizes the plan and returns an Executor bound to it. pinned
// names buffers the caller expects collect_pinned to surface separately
// from the aliased result columns (spec.md §4.6); the scan and aggregate
// paths pass RawBuffers so the zero-copy open(col) reads stay pinned for
// BatchResult.UnsafeReferencedBuffers (spec.md §3).
func (p *QueryPlanner) Prepare(pinned []TypedBufferRef) (*Executor, error) {
	return &Executor{planner: p, pinned: pinned}, nil
}

// RawBuffers returns every buffer opened directly against column storage
// (openColumn, compile.go) without an intervening gather: the zero-copy
// allocations a BatchResult must pin for its lifetime (spec.md §3).
func (p *QueryPlanner) RawBuffers() []TypedBufferRef {
	return p.rawBuffers
}

// NodeInfo is a read-only view of one arena node, for package explain to
// render a DAG without reaching into planner internals.
type NodeInfo struct {
	ID     int
	Tag    EncodingType
	Kind   string
	Inputs []int
}

// Nodes returns a read-only snapshot of every node allocated so far, in
// allocation order.
func (p *QueryPlanner) Nodes() []NodeInfo {
	out := make([]NodeInfo, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = NodeInfo{ID: n.id, Tag: n.tag, Kind: n.kind, Inputs: append([]int(nil), n.inputs...)}
	}
	return out
}
