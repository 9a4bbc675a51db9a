package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colquery/colquery/expr"
	"github.com/colquery/colquery/storage"
)

func TestChooseGroupingStrategyDense(t *testing.T) {
	var p QueryPlanner
	columns := testColumns()
	gk, err := CompileGroupingKey([]expr.Expr{expr.ColName{Name: "b"}}, NoFilter, columns, &p)
	require.NoError(t, err)
	require.True(t, ChooseGroupingStrategy(gk), "b's small cardinality should pick dense grouping")
}

func TestChooseGroupingStrategyHashmapForLargeDomain(t *testing.T) {
	var p QueryPlanner
	columns := storage.ColumnSet{
		"huge": &storage.Int64Column{Values: []int64{5, 9, 5, 1 << 20}, Max: 1 << 20},
	}
	gk, err := CompileGroupingKey([]expr.Expr{expr.ColName{Name: "huge"}}, NoFilter, columns, &p)
	require.NoError(t, err)
	require.False(t, ChooseGroupingStrategy(gk), "a domain above DenseGroupingThreshold must pick hashmap grouping")
}

func TestCompileGroupingKeySingleColumnPacksIdentity(t *testing.T) {
	var p QueryPlanner
	columns := testColumns()
	gk, err := CompileGroupingKey([]expr.Expr{expr.ColName{Name: "a"}}, NoFilter, columns, &p)
	require.NoError(t, err)
	require.Equal(t, int64(4), gk.MaxKey)

	executor, err := p.Prepare(nil)
	require.NoError(t, err)
	results := executor.Prepare(columns)
	executor.Run(columns.RowCount(0), results, false)

	// a single grouping column's packed key equals the raw column value.
	cols, indices, err := results.CollectAliased([]TypedBufferRef{gk.Raw})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4, 1, 2}, cols[indices[0]].AsI64())
}

func TestCompileGroupingKeyMultiColumnMixedRadix(t *testing.T) {
	var p QueryPlanner
	columns := testColumns()
	gk, err := CompileGroupingKey(
		[]expr.Expr{expr.ColName{Name: "a"}, expr.ColName{Name: "label"}},
		NoFilter, columns, &p,
	)
	require.NoError(t, err)
	// a has cardinality 5 (Max=4 -> 0..4), label has cardinality 3: domain = 5*3 = 15.
	require.Equal(t, int64(14), gk.MaxKey)

	// decode_plans unpack a row's own packed key, so feed the per-row raw
	// key straight back through the placeholder (as the dense strategy does
	// when position == raw key, here position is simply identity).
	p.Connect(gk.Raw, gk.Placeholder)

	executor, err := p.Prepare(nil)
	require.NoError(t, err)
	results := executor.Prepare(columns)
	executor.Run(columns.RowCount(0), results, false)

	refs := []TypedBufferRef{gk.Raw, gk.DecodePlans[0].Buf, gk.DecodePlans[1].Buf}
	cols, indices, err := results.CollectAliased(refs)
	require.NoError(t, err)

	raw := cols[indices[0]].AsI64()
	decodedA := cols[indices[1]].AsI64()
	decodedLabel := cols[indices[2]].Str

	a := []int64{1, 2, 3, 4, 1, 2}
	label := []string{"zeta", "alpha", "mu", "zeta", "alpha", "mu"}
	for i := range a {
		require.Equal(t, a[i], decodedA[i], "row %d", i)
		require.Equal(t, label[i], decodedLabel[i], "row %d", i)
		require.Equal(t, a[i]*3+int64(i%3), raw[i], "row %d packed key", i)
	}
}

func TestPrepareAggregationCountAndSum(t *testing.T) {
	var p QueryPlanner
	columns := testColumns()
	gk, err := CompileGroupingKey([]expr.Expr{expr.ColName{Name: "b"}}, NoFilter, columns, &p)
	require.NoError(t, err)

	domainLen := p.NullVec(int(gk.MaxKey + 1))
	denseIdentity := p.RangeI64(domainLen)
	p.Connect(denseIdentity, gk.Placeholder)
	cardinality := p.ScalarI64(gk.MaxKey + 1)

	aPlan, _, err := CompileExpr(expr.ColName{Name: "a"}, NoFilter, columns, &p)
	require.NoError(t, err)

	countBuf := PrepareAggregation(aPlan, gk.Raw, cardinality, expr.Count, &p)
	sumBuf := PrepareAggregation(aPlan, gk.Raw, cardinality, expr.Sum, &p)

	executor, err := p.Prepare(nil)
	require.NoError(t, err)
	results := executor.Prepare(columns)
	executor.Run(columns.RowCount(0), results, false)

	cols, indices, err := results.CollectAliased([]TypedBufferRef{countBuf, sumBuf})
	require.NoError(t, err)

	// b = [10,20,10,20,10,20], a = [1,2,3,4,1,2]
	// group 10 (rows 0,2,4): count=3, sum=1+3+1=5
	// group 20 (rows 1,3,5): count=3, sum=2+4+2=8
	require.Equal(t, int64(3), cols[indices[0]].AsI64()[10])
	require.Equal(t, int64(3), cols[indices[0]].AsI64()[20])
	require.Equal(t, int64(5), cols[indices[1]].AsI64()[10])
	require.Equal(t, int64(8), cols[indices[1]].AsI64()[20])
}

func TestExistsSelector(t *testing.T) {
	var p QueryPlanner
	groupingKey := p.alloc(EncI64, "test_keys", nil, func(env *environment) (Value, error) {
		return Value{Tag: EncI64, I64: []int64{0, 2, 2, 4}}, nil
	})
	cardinality := p.ScalarI64(5)
	existsBuf := p.Exists(groupingKey, cardinality)

	executor, err := p.Prepare(nil)
	require.NoError(t, err)
	results := executor.Prepare(storage.ColumnSet{})
	executor.Run(4, results, false)

	cols, indices, err := results.CollectAliased([]TypedBufferRef{existsBuf})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 0, 1, 0, 1}, cols[indices[0]].AsI64())
}
