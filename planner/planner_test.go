package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colquery/colquery/storage"
)

func collect(t *testing.T, p *QueryPlanner, columns storage.ColumnSet, refs ...TypedBufferRef) []Value {
	t.Helper()
	executor, err := p.Prepare(nil)
	require.NoError(t, err)
	results := executor.Prepare(columns)
	executor.Run(columns.RowCount(0), results, false)
	cols, indices, err := results.CollectAliased(refs)
	require.NoError(t, err)
	out := make([]Value, len(indices))
	for i, idx := range indices {
		out[i] = cols[idx]
	}
	return out
}

func intVec(p *QueryPlanner, vals []int64) TypedBufferRef {
	return p.alloc(EncI64, "literal", nil, func(env *environment) (Value, error) {
		return Value{Tag: EncI64, I64: vals}, nil
	})
}

func TestSortByAscendingAndDescending(t *testing.T) {
	var p QueryPlanner
	key := intVec(&p, []int64{3, 1, 2})
	idx := p.Indices(key)

	asc := p.SortBy(key, idx, false, false)
	desc := p.SortBy(key, idx, true, false)

	vals := collect(t, &p, nil, asc, desc)
	require.Equal(t, []int{1, 2, 0}, vals[0].Usize)
	require.Equal(t, []int{0, 2, 1}, vals[1].Usize)
}

func TestSortByStrings(t *testing.T) {
	var p QueryPlanner
	key := p.alloc(EncStr, "literal_str", nil, func(env *environment) (Value, error) {
		return Value{Tag: EncStr, Str: []string{"zeta", "alpha", "mu"}}, nil
	})
	idx := p.Indices(key)
	sorted := p.SortBy(key, idx, false, false)

	vals := collect(t, &p, nil, sorted)
	require.Equal(t, []int{1, 2, 0}, vals[0].Usize)
}

func TestTopN(t *testing.T) {
	var p QueryPlanner
	key := intVec(&p, []int64{5, 1, 9, 3})
	idx := p.Indices(key)
	top2 := p.TopN(key, idx, 2, true)

	vals := collect(t, &p, nil, top2)
	require.Equal(t, []int{2, 0}, vals[0].Usize)
}

func TestTruncateOffsetAndLimit(t *testing.T) {
	var p QueryPlanner
	key := intVec(&p, []int64{0, 1, 2, 3, 4})
	idx := p.Indices(key)
	sliced := p.Truncate(idx, 1, 2)

	vals := collect(t, &p, nil, sliced)
	require.Equal(t, []int{1, 2}, vals[0].Usize)
}

func TestTruncateOffsetBeyondLengthYieldsEmpty(t *testing.T) {
	var p QueryPlanner
	key := intVec(&p, []int64{0, 1})
	idx := p.Indices(key)
	sliced := p.Truncate(idx, 10, 5)

	vals := collect(t, &p, nil, sliced)
	require.Empty(t, vals[0].Usize)
}

func TestCompactKeepsNonzeroSelectorPositions(t *testing.T) {
	var p QueryPlanner
	values := intVec(&p, []int64{10, 20, 30, 40})
	selector := intVec(&p, []int64{0, 1, 0, 1})
	compacted := p.Compact(values, selector)

	vals := collect(t, &p, nil, compacted)
	require.Equal(t, []int64{20, 40}, vals[0].I64)
}

func TestNonzeroCompactSelfSelects(t *testing.T) {
	var p QueryPlanner
	counts := intVec(&p, []int64{0, 3, 0, 7})
	compacted := p.NonzeroCompact(counts)

	vals := collect(t, &p, nil, compacted)
	require.Equal(t, []int64{3, 7}, vals[0].I64)
}

func TestSelectGathersByIndex(t *testing.T) {
	var p QueryPlanner
	values := intVec(&p, []int64{100, 200, 300})
	idx := p.alloc(EncUsize, "literal_idx", nil, func(env *environment) (Value, error) {
		return Value{Tag: EncUsize, Usize: []int{2, 0}}, nil
	})
	gathered := p.Select(values, idx)

	vals := collect(t, &p, nil, gathered)
	require.Equal(t, []int64{300, 100}, vals[0].I64)
}

func TestCollectAliasedDeduplicatesSharedBuffer(t *testing.T) {
	var p QueryPlanner
	values := intVec(&p, []int64{1, 2, 3})

	executor, err := p.Prepare(nil)
	require.NoError(t, err)
	results := executor.Prepare(nil)
	executor.Run(3, results, false)

	cols, indices, err := results.CollectAliased([]TypedBufferRef{values, values})
	require.NoError(t, err)
	require.Len(t, cols, 1, "the same buffer referenced twice should materialize once")
	require.Equal(t, indices[0], indices[1])
}

func TestUnconnectedPlaceholderErrors(t *testing.T) {
	var p QueryPlanner
	ph := p.placeholder(EncI64, "test_placeholder")

	executor, err := p.Prepare(nil)
	require.NoError(t, err)
	results := executor.Prepare(nil)
	executor.Run(0, results, false)

	_, _, err = results.CollectAliased([]TypedBufferRef{ph})
	require.Error(t, err)
}
