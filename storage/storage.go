// Package storage defines the read-only contract this core expects from the
// physical storage layer (spec.md §6): a DataSource exposes Len and
// DataSections for a column, both immutable and safe to share across
// partitions running in parallel (spec.md §5).
//
// Physical storage and column decoding are explicitly out of scope for this
// module; this package carries just enough of an in-memory reference
// implementation to let the planner/executor be exercised and tested.
package storage

import "github.com/colquery/colquery/qerrors"

// Data is one typed data section of a column. A column may be split across
// several sections (e.g. one per on-disk block); this core only ever reads
// whole columns at a time, so the reference implementation always returns a
// single section.
type Data struct {
	Int64  []int64
	Dict   []uint32 // dictionary codes, one per row, each an index into Values
	Values []string // the dictionary's code -> string table, when Dict != nil
}

// Len reports how many logical rows this section holds.
func (d Data) Len() int {
	if d.Dict != nil {
		return len(d.Dict)
	}
	return len(d.Int64)
}

// Column is one named, read-only column of a partition.
type Column interface {
	// Len reports the number of rows in this column.
	Len() int
	// DataSections returns the column's data, read-only for the caller's
	// lifetime.
	DataSections() []Data
	// Cardinality reports the number of distinct encoded values the column
	// can take (its domain size), used by grouping-key packing. 0 means
	// unknown/unbounded.
	Cardinality() int
	// Positive reports whether the column's encoded values are known to be
	// non-negative (a precondition for dense grouping and for Type.Positive).
	Positive() bool
	// OrderPreserving reports whether the column's encoded ordering matches
	// its logical ordering (spec.md §9).
	OrderPreserving() bool
}

// Int64Column is a plain, order-preserving, non-negative-by-construction
// integer column.
type Int64Column struct {
	Values []int64
	Max    int64 // declared upper bound (inclusive), used for grouping-key packing
}

func (c *Int64Column) Len() int { return len(c.Values) }
func (c *Int64Column) DataSections() []Data {
	return []Data{{Int64: c.Values}}
}
func (c *Int64Column) Cardinality() int    { return int(c.Max) + 1 }
func (c *Int64Column) Positive() bool      { return true }
func (c *Int64Column) OrderPreserving() bool { return true }

// DictStrColumn is a dictionary-encoded string column: each row stores a
// code into Dict, assigned in first-seen order rather than sorted order, so
// the encoding does NOT preserve the logical (lexicographic) ordering of
// the decoded strings. This is the concrete encoding that exercises the
// order-preserving decode-before-sort path (spec.md §4.4 step 2, §9).
type DictStrColumn struct {
	Codes []uint32
	Dict  []string // Dict[code] -> decoded string
}

func (c *DictStrColumn) Len() int { return len(c.Codes) }
func (c *DictStrColumn) DataSections() []Data {
	return []Data{{Dict: c.Codes, Values: c.Dict}}
}
func (c *DictStrColumn) Cardinality() int      { return len(c.Dict) }
func (c *DictStrColumn) Positive() bool        { return true }
func (c *DictStrColumn) OrderPreserving() bool { return false }

// ColumnSet is the read-only map of column name to Column handle a
// partition exposes, equivalent to the Rust side's
// HashMap<String, Arc<DataSource>>.
type ColumnSet map[string]Column

// Resolve looks up a column by name, returning qerrors.NoSuchColumn when absent.
func (cs ColumnSet) Resolve(name string) (Column, error) {
	col, ok := cs[name]
	if !ok {
		return nil, qerrors.New(qerrors.NoSuchColumn, "no such column %q", name)
	}
	return col, nil
}

// RowCount derives the partition's row count the way spec.md §9 Open
// Question (iii) resolves: prefer an arbitrary column's length, falling
// back to the caller-supplied partition length when there are no columns.
func (cs ColumnSet) RowCount(partitionLength int) int {
	for _, col := range cs {
		return col.Len()
	}
	return partitionLength
}
