// Command colquery is a small demo driver for the query-planning/execution
// core: it builds an in-memory demo table, runs a fixed set of demo
// queries against it, and prints each result as a markdown table
// (optionally with its operator DAG). A SQL front end is out of this
// module's scope (spec.md §1, Non-goals), so queries here are built
// directly as query.Query values rather than parsed from text.
//
// Grounded on the teacher's cmd/datalog/main.go: flag-based CLI, a
// runDemo that seeds data and runs a fixed query list, and markdown-table
// result printing.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/colquery/colquery/exec"
	"github.com/colquery/colquery/expr"
	"github.com/colquery/colquery/explain"
	"github.com/colquery/colquery/planner"
	"github.com/colquery/colquery/qlog"
	"github.com/colquery/colquery/query"
	"github.com/colquery/colquery/storage"
)

func main() {
	var showExplain bool
	var showTable bool
	var verbose bool
	var which int

	flag.BoolVar(&showExplain, "explain", false, "print the operator DAG for each query")
	flag.BoolVar(&showTable, "show", true, "print results as a markdown table")
	flag.BoolVar(&verbose, "verbose", false, "enable debug-level logging")
	flag.IntVar(&which, "query", -1, "run only the demo query at this index (default: run all)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Runs a fixed set of demo queries against an in-memory table.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if verbose {
		qlog.Log.SetLevel(logrus.DebugLevel)
	}

	columns := demoTable()
	queries := demoQueries()

	for i, q := range queries {
		if which >= 0 && i != which {
			continue
		}
		fmt.Printf("=== Query %d ===\n", i)
		runOne(q, columns, showExplain, showTable)
	}
}

func runOne(q *query.Query, columns storage.ColumnSet, showExplain, showTable bool) {
	stage1, stage2, err := q.Normalize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "normalize error: %v\n", err)
		return
	}

	batch, explainText, err := runStage(stage1, columns, showExplain, showTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "execution error: %v\n", err)
		return
	}
	if stage2 != nil {
		intermediate := intermediateColumns(stage1, batch)
		batch, explainText, err = runStage(stage2, intermediate, showExplain, showTable)
		if err != nil {
			fmt.Fprintf(os.Stderr, "execution error (final pass): %v\n", err)
			return
		}
	}

	if showExplain {
		fmt.Println(explainText)
	}
	if showTable {
		fmt.Println(renderBatch(batch))
	}
}

func runStage(nfq *query.NormalFormQuery, columns storage.ColumnSet, showExplain, showTable bool) (*exec.BatchResult, string, error) {
	if len(nfq.Aggregate) > 0 {
		return exec.RunAggregate(nfq, columns, showExplain, showTable, 0, columns.RowCount(0))
	}
	return exec.Run(nfq, columns, showExplain, showTable, 0, columns.RowCount(0))
}

// intermediateColumns adapts a stage-1 BatchResult into the ColumnSet
// stage-2 reads from, one plain in-memory column per stage-1 result
// column, keyed by the "_cs{k}"/"_ca{k}" synthetic names the Normalizer
// assigned (spec.md §4.1): stage-1 projection k is "_cs{k}", stage-1
// aggregate k is "_ca{k}".
func intermediateColumns(stage1 *query.NormalFormQuery, batch *exec.BatchResult) storage.ColumnSet {
	out := make(storage.ColumnSet, len(batch.Projection)+len(batch.Aggregate))
	for k, idx := range batch.Projection {
		out[fmt.Sprintf("_cs%d", k)] = columnFromValue(batch.Columns[idx])
	}
	for k, idx := range batch.Aggregate {
		out[fmt.Sprintf("_ca%d", k)] = columnFromValue(batch.Columns[idx])
	}
	return out
}

func columnFromValue(v planner.Value) storage.Column {
	switch v.Tag {
	case planner.EncStr:
		codes := make([]uint32, len(v.Str))
		dict := make([]string, 0, len(v.Str))
		seen := make(map[string]uint32, len(v.Str))
		for i, s := range v.Str {
			code, ok := seen[s]
			if !ok {
				code = uint32(len(dict))
				dict = append(dict, s)
				seen[s] = code
			}
			codes[i] = code
		}
		return &storage.DictStrColumn{Codes: codes, Dict: dict}
	default:
		vals := v.AsI64()
		max := int64(0)
		for _, x := range vals {
			if x > max {
				max = x
			}
		}
		return &storage.Int64Column{Values: vals, Max: max}
	}
}

func renderBatch(batch *exec.BatchResult) string {
	indices := batch.Projection
	if len(batch.Aggregate) > 0 {
		indices = append(append([]int{}, batch.Projection...), batch.Aggregate...)
	}
	rowCount := 0
	if len(indices) > 0 {
		rowCount = batch.Columns[indices[0]].Len()
	}
	rows := make([][]string, rowCount)
	for r := 0; r < rowCount; r++ {
		row := make([]string, len(indices))
		for c, idx := range indices {
			row[c] = formatCell(batch.Columns[idx], r)
		}
		rows[r] = row
	}
	return explain.Table(batch.ColumnName, rows)
}

func formatCell(v planner.Value, row int) string {
	switch v.Tag {
	case planner.EncStr:
		return v.Str[row]
	case planner.EncScalarI64:
		return strconv.FormatInt(v.Scalar, 10)
	default:
		vals := v.AsI64()
		if len(vals) == 1 {
			return strconv.FormatInt(vals[0], 10)
		}
		return strconv.FormatInt(vals[row], 10)
	}
}

// demoTable builds the fixture spec.md's end-to-end scenarios describe: a
// table T with a:i64 in {1,2,3,4}, b:i64 in {10,20}, and a dictionary-coded
// label:str column, 1000 rows.
func demoTable() storage.ColumnSet {
	const n = 1000
	a := make([]int64, n)
	b := make([]int64, n)
	labelCodes := make([]uint32, n)
	labels := []string{"zeta", "alpha", "mu"}
	for i := 0; i < n; i++ {
		a[i] = int64(i%4) + 1
		b[i] = int64((i % 2) + 1) * 10
		labelCodes[i] = uint32(i % len(labels))
	}
	return storage.ColumnSet{
		"a":     &storage.Int64Column{Values: a, Max: 4},
		"b":     &storage.Int64Column{Values: b, Max: 20},
		"label": &storage.DictStrColumn{Codes: labelCodes, Dict: labels},
	}
}

func demoQueries() []*query.Query {
	return []*query.Query{
		{
			Select: []query.Expr{expr.ColName{Name: "a"}, expr.ColName{Name: "b"}},
			Filter: expr.Func2{Op: expr.GreaterThan, Left: expr.ColName{Name: "a"}, Right: expr.Const{Value: expr.Int(2)}},
			Limit:  query.LimitClause{Limit: 10},
		},
		{
			Select: []query.Expr{
				expr.ColName{Name: "b"},
				expr.Aggregate{Aggregator: expr.Count, Child: expr.ColName{Name: "a"}},
			},
		},
		{
			Select: []query.Expr{
				expr.ColName{Name: "label"},
				expr.Aggregate{Aggregator: expr.Sum, Child: expr.ColName{Name: "a"}},
			},
		},
	}
}
