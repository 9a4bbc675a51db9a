// Package explain renders a planner.QueryPlanner's operator DAG and a
// BatchResult's columns as human-readable text: a color-coded node list
// for --explain, and a markdown table for --show.
//
// Grounded on the teacher's TableFormatter
// (datalog/executor/table_formatter.go, tablewriter+markdown renderer) and
// its fatih/color use in Relation.String() (datalog/executor/relation.go).
package explain

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/colquery/colquery/planner"
)

// DAG renders every node p has allocated, in allocation order, as a
// color-coded operator list: id, kind, output encoding, and its inputs.
// roots marks the buffers the caller actually collects, highlighted so a
// reader can tell live nodes from ones kept only as intermediate steps.
func DAG(p *planner.QueryPlanner, roots []planner.TypedBufferRef) string {
	rootSet := make(map[int]bool, len(roots))
	for _, r := range roots {
		rootSet[r.ID()] = true
	}

	var b strings.Builder
	for _, n := range p.Nodes() {
		marker := " "
		if rootSet[n.ID] {
			marker = color.YellowString("*")
		}
		fmt.Fprintf(&b, "%s buf%d %s  %s%s\n",
			marker,
			n.ID,
			color.CyanString("%s", n.Tag),
			color.GreenString("%s", n.Kind),
			formatInputs(n.Inputs),
		)
	}
	return b.String()
}

func formatInputs(inputs []int) string {
	if len(inputs) == 0 {
		return ""
	}
	parts := make([]string, len(inputs))
	for i, id := range inputs {
		parts[i] = fmt.Sprintf("buf%d", id)
	}
	return color.BlueString("  <- %s", strings.Join(parts, ", "))
}

// Table renders a result set as a markdown table, grounded on the
// teacher's TableFormatter.formatTable.
func Table(columnNames []string, rows [][]string) string {
	if len(rows) == 0 {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", columnNames)
	}

	var sb strings.Builder
	alignment := make([]tw.Align, len(columnNames))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(&sb,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(columnNames)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	fmt.Fprintf(&sb, "\n_%d rows_\n", len(rows))
	return sb.String()
}
