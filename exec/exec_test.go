package exec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colquery/colquery/expr"
	"github.com/colquery/colquery/query"
	"github.com/colquery/colquery/storage"
)

// fixtureColumns builds the table spec.md's end-to-end scenarios describe:
// a:i64 in {1,2,3,4}, b:i64 in {10,20}, label:str dictionary-coded with a
// first-seen (non-lexicographic) dictionary order.
func fixtureColumns() storage.ColumnSet {
	const n = 12
	a := make([]int64, n)
	b := make([]int64, n)
	codes := make([]uint32, n)
	dict := []string{"zeta", "alpha", "mu"}
	for i := 0; i < n; i++ {
		a[i] = int64(i%4) + 1
		b[i] = int64((i%2)+1) * 10
		codes[i] = uint32(i % len(dict))
	}
	return storage.ColumnSet{
		"a":     &storage.Int64Column{Values: a, Max: 4},
		"b":     &storage.Int64Column{Values: b, Max: 20},
		"label": &storage.DictStrColumn{Codes: codes, Dict: dict},
	}
}

func TestRunFilterProjectAndLimit(t *testing.T) {
	nfq := &query.NormalFormQuery{
		Projection: []query.Expr{expr.ColName{Name: "a"}, expr.ColName{Name: "b"}},
		Filter:     expr.Func2{Op: expr.GreaterThan, Left: expr.ColName{Name: "a"}, Right: expr.Const{Value: expr.Int(2)}},
		Limit:      query.LimitClause{Limit: 3},
	}
	batch, _, err := Run(nfq, fixtureColumns(), false, false, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 0, batch.Level)
	require.Len(t, batch.Aggregate, 0)

	aCol := batch.Columns[batch.Projection[0]]
	require.Len(t, aCol.AsI64(), 3)
	for _, v := range aCol.AsI64() {
		require.Greater(t, v, int64(2))
	}
}

func TestRunOrderByDescending(t *testing.T) {
	nfq := &query.NormalFormQuery{
		Projection: []query.Expr{expr.ColName{Name: "a"}},
		OrderBy:    []query.OrderByExpr{{Expr: expr.ColName{Name: "a"}, Desc: true}},
	}
	batch, _, err := Run(nfq, fixtureColumns(), false, false, 0, 0)
	require.NoError(t, err)

	vals := batch.Columns[batch.Projection[0]].AsI64()
	for i := 1; i < len(vals); i++ {
		require.LessOrEqual(t, vals[i], vals[i-1])
	}
}

func TestRunRejectsAggregateQuery(t *testing.T) {
	nfq := &query.NormalFormQuery{
		Aggregate: []query.AggregateExpr{{Aggregator: expr.Count, Expr: expr.ColName{Name: "a"}}},
	}
	_, _, err := Run(nfq, fixtureColumns(), false, false, 0, 0)
	require.Error(t, err)
}

func TestRunAggregateCountByDense(t *testing.T) {
	nfq := &query.NormalFormQuery{
		Projection: []query.Expr{expr.ColName{Name: "b"}},
		Aggregate:  []query.AggregateExpr{{Aggregator: expr.Count, Expr: expr.ColName{Name: "a"}}},
	}
	batch, _, err := RunAggregate(nfq, fixtureColumns(), false, false, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Level)

	groups := batch.Columns[batch.Projection[0]].AsI64()
	counts := batch.Columns[batch.Aggregate[0]].AsI64()
	require.Len(t, groups, 2, "b has two distinct values: 10 and 20")

	got := map[int64]int64{}
	for i, g := range groups {
		got[g] = counts[i]
	}
	require.Equal(t, int64(6), got[10])
	require.Equal(t, int64(6), got[20])
}

func TestRunAggregateSumByDense(t *testing.T) {
	nfq := &query.NormalFormQuery{
		Projection: []query.Expr{expr.ColName{Name: "b"}},
		Aggregate:  []query.AggregateExpr{{Aggregator: expr.Sum, Expr: expr.ColName{Name: "a"}}},
	}
	batch, _, err := RunAggregate(nfq, fixtureColumns(), false, false, 0, 0)
	require.NoError(t, err)

	groups := batch.Columns[batch.Projection[0]].AsI64()
	sums := batch.Columns[batch.Aggregate[0]].AsI64()
	got := map[int64]int64{}
	for i, g := range groups {
		got[g] = sums[i]
	}
	// a cycles 1,2,3,4 over 12 rows; b=10 on even i, b=20 on odd i.
	// rows with b==10: i=0,2,4,6,8,10 -> a=1,3,1,3,1,3 -> sum=12
	// rows with b==20: i=1,3,5,7,9,11 -> a=2,4,2,4,2,4 -> sum=18
	require.Equal(t, int64(12), got[10])
	require.Equal(t, int64(18), got[20])
}

func TestRunAggregateGroupByDictStringDecodesAndSorts(t *testing.T) {
	nfq := &query.NormalFormQuery{
		Projection: []query.Expr{expr.ColName{Name: "label"}},
		Aggregate:  []query.AggregateExpr{{Aggregator: expr.Sum, Expr: expr.ColName{Name: "a"}}},
	}
	batch, _, err := RunAggregate(nfq, fixtureColumns(), false, false, 0, 0)
	require.NoError(t, err)

	labels := batch.Columns[batch.Projection[0]].Str
	require.Len(t, labels, 3)
	// dense grouping packs the raw dictionary code (first-seen order:
	// zeta=0, alpha=1, mu=2), which does not preserve the strings' logical
	// order, so the result is re-sorted by the decoded label.
	require.Equal(t, []string{"alpha", "mu", "zeta"}, labels)
}

func TestRunAggregateForcesHashmapStrategyOnLargeDomain(t *testing.T) {
	columns := storage.ColumnSet{
		"huge": &storage.Int64Column{Values: []int64{5, 1 << 19, 5, 9}, Max: 1 << 20},
		"a":    &storage.Int64Column{Values: []int64{1, 2, 3, 4}, Max: 4},
	}
	nfq := &query.NormalFormQuery{
		Projection: []query.Expr{expr.ColName{Name: "huge"}},
		Aggregate:  []query.AggregateExpr{{Aggregator: expr.Sum, Expr: expr.ColName{Name: "a"}}},
	}
	batch, _, err := RunAggregate(nfq, columns, false, false, 0, 0)
	require.NoError(t, err)

	groups := batch.Columns[batch.Projection[0]].AsI64()
	sums := batch.Columns[batch.Aggregate[0]].AsI64()
	require.Len(t, groups, 3, "three distinct huge values: 5, 1<<19, 9")

	got := map[int64]int64{}
	for i, g := range groups {
		got[g] = sums[i]
	}
	require.Equal(t, int64(1+3), got[5])
	require.Equal(t, int64(2), got[1<<19])
	require.Equal(t, int64(4), got[9])

	// spec.md §4.5 step 9: the hashmap strategy must still come back in
	// the grouping key's logical (here, numeric) order.
	for i := 1; i < len(groups); i++ {
		require.Less(t, groups[i-1], groups[i])
	}
}

func TestRunAggregateMultiColumnGroupBy(t *testing.T) {
	nfq := &query.NormalFormQuery{
		Projection: []query.Expr{expr.ColName{Name: "a"}, expr.ColName{Name: "b"}},
		Aggregate:  []query.AggregateExpr{{Aggregator: expr.Count, Expr: expr.ColName{Name: "a"}}},
	}
	batch, _, err := RunAggregate(nfq, fixtureColumns(), false, false, 0, 0)
	require.NoError(t, err)

	as := batch.Columns[batch.Projection[0]].AsI64()
	bs := batch.Columns[batch.Projection[1]].AsI64()
	counts := batch.Columns[batch.Aggregate[0]].AsI64()
	// fixtureColumns correlates a and b through the row index (a cycles on
	// i%4, b on i%2), so only 4 of the 8 possible (a,b) pairs ever occur:
	// (1,10), (3,10), (2,20), (4,20), each 3 times.
	require.Len(t, as, 4)

	total := int64(0)
	got := map[[2]int64]int64{}
	for i := range as {
		total += counts[i]
		got[[2]int64{as[i], bs[i]}] = counts[i]
	}
	require.Equal(t, int64(12), total)
	for _, pair := range [][2]int64{{1, 10}, {3, 10}, {2, 20}, {4, 20}} {
		require.Equal(t, int64(3), got[pair], "pair %v", pair)
	}
}

func TestRunAggregateRejectsNonAggregateQuery(t *testing.T) {
	nfq := &query.NormalFormQuery{
		Projection: []query.Expr{expr.ColName{Name: "a"}},
	}
	_, _, err := RunAggregate(nfq, fixtureColumns(), false, false, 0, 0)
	require.Error(t, err)
}
