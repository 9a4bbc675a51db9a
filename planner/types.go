// Package planner implements the QueryPlanner (spec.md §4.3): a
// typed-buffer-referencing builder that accumulates a directed acyclic
// graph of vectorized operators, plus the expression compiler (§4.2), the
// grouping-key/aggregation helpers (§4.5), and the Executor that runs a
// prepared DAG against one partition (§4.6).
//
// The operator arena is grounded on the teacher's handle-based Phase
// representation (datalog/planner/types.go), generalized from "patterns in
// a query phase" to "vectorized operators in a DAG with back-edges"
// (spec.md §9).
package planner

import "fmt"

// EncodingType tags the physical representation a TypedBufferRef carries.
type EncodingType int

const (
	EncNull EncodingType = iota
	EncU8
	EncNullableU8
	EncI64
	EncStr
	EncUsize
	EncScalarI64
)

func (e EncodingType) String() string {
	switch e {
	case EncNull:
		return "Null"
	case EncU8:
		return "U8"
	case EncNullableU8:
		return "NullableU8"
	case EncI64:
		return "I64"
	case EncStr:
		return "Str"
	case EncUsize:
		return "Usize"
	case EncScalarI64:
		return "ScalarI64"
	default:
		return "Unknown"
	}
}

// Codec decodes a buffer from its physical encoding to its logical type.
type Codec struct {
	Name   string
	Decode func(p *QueryPlanner, encoded TypedBufferRef) TypedBufferRef
}

// Type carries a buffer's encoding tag plus the order-preservation and
// positivity flags the planner uses to choose strategies (spec.md §3, §9).
type Type struct {
	Enc             EncodingType
	Codec           *Codec
	OrderPreserving bool
	Positive        bool
	// Cardinality is the size of the value's domain (max value + 1), used
	// by grouping-key packing. 0 means "unknown" and is treated as 1.
	Cardinality int64
}

// IsEncoded reports whether the type carries a codec to decode to logical form.
func (t Type) IsEncoded() bool { return t.Codec != nil }

// IsPositiveInteger reports whether t is known to hold non-negative
// integers, the precondition for dense grouping (spec.md §4.5 step 3).
func (t Type) IsPositiveInteger() bool {
	return t.Positive && (t.Enc == EncI64 || t.Enc == EncUsize || t.Enc == EncScalarI64)
}

// TypedBufferRef names an allocation in a QueryPlanner's operator arena and
// carries its encoding tag.
type TypedBufferRef struct {
	id  int
	Tag EncodingType
}

func (r TypedBufferRef) String() string {
	return fmt.Sprintf("buf%d:%s", r.id, r.Tag)
}

// ID returns the buffer's arena handle, for callers (e.g. package explain)
// that need to correlate a TypedBufferRef with a planner.NodeInfo.
func (r TypedBufferRef) ID() int { return r.id }

// FilterKind is the closed set of ambient row-selection contexts (spec.md §3).
type FilterKind int

const (
	FilterNone FilterKind = iota
	FilterU8
	FilterNullableU8
	FilterIndices
)

// Filter communicates the ambient row-selection context to expression
// compilation. At most one Filter value is live per compilation frame;
// Indices is terminal (spec.md §3) — once chosen, further order-preserving
// transformations must feed through the index list, never construct
// another mask.
type Filter struct {
	Kind    FilterKind
	Mask    TypedBufferRef // valid when Kind is FilterU8 or FilterNullableU8
	Indices TypedBufferRef // valid when Kind is FilterIndices
}

// NoFilter is the "every row participates" filter.
var NoFilter = Filter{Kind: FilterNone}
