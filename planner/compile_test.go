package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colquery/colquery/expr"
	"github.com/colquery/colquery/storage"
)

func testColumns() storage.ColumnSet {
	return storage.ColumnSet{
		"a": &storage.Int64Column{Values: []int64{1, 2, 3, 4, 1, 2}, Max: 4},
		"b": &storage.Int64Column{Values: []int64{10, 20, 10, 20, 10, 20}, Max: 20},
		"label": &storage.DictStrColumn{
			Codes: []uint32{0, 1, 2, 0, 1, 2},
			Dict:  []string{"zeta", "alpha", "mu"},
		},
	}
}

// runScalar compiles e with no filter and materializes it against columns,
// returning the resulting Value.
func runScalar(t *testing.T, e expr.Expr, columns storage.ColumnSet) Value {
	t.Helper()
	var p QueryPlanner
	buf, _, err := CompileExpr(e, NoFilter, columns, &p)
	require.NoError(t, err)
	executor, err := p.Prepare(nil)
	require.NoError(t, err)
	results := executor.Prepare(columns)
	executor.Run(columns.RowCount(0), results, false)
	cols, indices, err := results.CollectAliased([]TypedBufferRef{buf})
	require.NoError(t, err)
	return cols[indices[0]]
}

func TestCompileColName(t *testing.T) {
	v := runScalar(t, expr.ColName{Name: "a"}, testColumns())
	require.Equal(t, []int64{1, 2, 3, 4, 1, 2}, v.AsI64())
}

func TestCompileColNameUnknown(t *testing.T) {
	var p QueryPlanner
	_, _, err := CompileExpr(expr.ColName{Name: "nope"}, NoFilter, testColumns(), &p)
	require.Error(t, err)
}

func TestCompileConstInt(t *testing.T) {
	v := runScalar(t, expr.Const{Value: expr.Int(7)}, testColumns())
	require.Equal(t, int64(7), v.AsScalarI64())
}

func TestCompileConstBool(t *testing.T) {
	v := runScalar(t, expr.Const{Value: expr.Bool(true)}, testColumns())
	require.Equal(t, int64(1), v.AsScalarI64())
}

func TestCompileNegate(t *testing.T) {
	v := runScalar(t, expr.Func1{Op: expr.Negate, Child: expr.ColName{Name: "a"}}, testColumns())
	require.Equal(t, []int64{-1, -2, -3, -4, -1, -2}, v.AsI64())
}

func TestCompileArithAdd(t *testing.T) {
	e := expr.Func2{Op: expr.Add, Left: expr.ColName{Name: "a"}, Right: expr.ColName{Name: "b"}}
	v := runScalar(t, e, testColumns())
	require.Equal(t, []int64{11, 22, 13, 24, 11, 22}, v.AsI64())
}

func TestCompileArithWithScalarBroadcast(t *testing.T) {
	e := expr.Func2{Op: expr.Multiply, Left: expr.ColName{Name: "a"}, Right: expr.Const{Value: expr.Int(10)}}
	v := runScalar(t, e, testColumns())
	require.Equal(t, []int64{10, 20, 30, 40, 10, 20}, v.AsI64())
}

func TestCompileCompareOps(t *testing.T) {
	cases := []struct {
		op   expr.Op2
		want []uint8
	}{
		{expr.Equals, []uint8{0, 0, 0, 1, 0, 0}},
		{expr.NotEquals, []uint8{1, 1, 1, 0, 1, 1}},
		{expr.LessThan, []uint8{1, 1, 1, 0, 1, 1}},
		{expr.LessThanEquals, []uint8{1, 1, 1, 1, 1, 1}},
		{expr.GreaterThan, []uint8{0, 0, 0, 0, 0, 0}},
		{expr.GreaterThanEquals, []uint8{0, 0, 0, 1, 0, 0}},
	}
	for _, c := range cases {
		e := expr.Func2{Op: c.op, Left: expr.ColName{Name: "a"}, Right: expr.Const{Value: expr.Int(4)}}
		v := runScalar(t, e, testColumns())
		require.Equal(t, c.want, v.U8, "op %s", c.op)
	}
}

func TestCompileCompareStrings(t *testing.T) {
	e := expr.Func2{Op: expr.Equals, Left: expr.ColName{Name: "label"}, Right: expr.Const{Value: expr.Str("alpha")}}
	v := runScalar(t, e, testColumns())
	require.Equal(t, []uint8{0, 1, 0, 0, 1, 0}, v.U8)
}

func TestCompileBoolOps(t *testing.T) {
	left := expr.Func2{Op: expr.GreaterThan, Left: expr.ColName{Name: "a"}, Right: expr.Const{Value: expr.Int(1)}}
	right := expr.Func2{Op: expr.Equals, Left: expr.ColName{Name: "b"}, Right: expr.Const{Value: expr.Int(20)}}

	and := runScalar(t, expr.Func2{Op: expr.And, Left: left, Right: right}, testColumns())
	require.Equal(t, []uint8{0, 1, 0, 1, 0, 1}, and.U8)

	or := runScalar(t, expr.Func2{Op: expr.Or, Left: left, Right: right}, testColumns())
	require.Equal(t, []uint8{0, 1, 1, 1, 0, 1}, or.U8)
}

func TestCompileAggregateOutsideAggregatePathErrors(t *testing.T) {
	var p QueryPlanner
	_, _, err := CompileExpr(expr.Aggregate{Aggregator: expr.Count, Child: expr.ColName{Name: "a"}}, NoFilter, testColumns(), &p)
	require.Error(t, err)
}

func TestDictStrColumnOpensAndDecodes(t *testing.T) {
	var p QueryPlanner
	columns := testColumns()
	buf, typ, err := CompileExpr(expr.ColName{Name: "label"}, NoFilter, columns, &p)
	require.NoError(t, err)
	require.True(t, typ.IsEncoded())
	require.False(t, typ.OrderPreserving)

	decoded := typ.Codec.Decode(&p, buf)
	executor, err := p.Prepare(nil)
	require.NoError(t, err)
	results := executor.Prepare(columns)
	executor.Run(columns.RowCount(0), results, false)
	cols, indices, err := results.CollectAliased([]TypedBufferRef{decoded})
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "alpha", "mu", "zeta", "alpha", "mu"}, cols[indices[0]].Str)
}
