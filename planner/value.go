package planner

// Value is a materialized typed buffer: the runtime counterpart of a
// TypedBufferRef, produced by evaluating one operator node. Exactly the
// fields matching Tag are meaningful; the rest are left zero.
//
// A tagged struct of typed slices is the columnar/vectorized analogue of
// the teacher's row-oriented Tuple ([]interface{} per row, see
// datalog/query/types.go) — one value per column here, not one value per
// row, per spec.md's typed-buffer contract.
type Value struct {
	Tag EncodingType

	I64        []int64
	U8         []uint8
	Str        []string
	Usize      []int
	NullableU8 NullableU8Data
	Scalar     int64
	NullLen    int // length of a placeholder EncNull buffer with no real data

	HashBuild *hashBuildResult // only set on the internal hashmap-build node
}

// NullableU8Data is a nullable dense byte vector: Valid[i] false means the
// row at i is null regardless of Vals[i].
type NullableU8Data struct {
	Vals  []uint8
	Valid []bool
}

// Len reports the row count this value holds, independent of its Tag.
func (v Value) Len() int {
	switch v.Tag {
	case EncU8:
		return len(v.U8)
	case EncNullableU8:
		return len(v.NullableU8.Vals)
	case EncI64:
		return len(v.I64)
	case EncStr:
		return len(v.Str)
	case EncUsize:
		return len(v.Usize)
	case EncNull:
		return v.NullLen
	case EncScalarI64:
		return 1
	default:
		return 0
	}
}

// AsI64 views v as an []int64, converting from U8/Usize as needed. It
// panics on Str/NullableU8/Null, which callers must not feed into integer
// kernels (a planner-internal invariant, not a user-facing error path).
func (v Value) AsI64() []int64 {
	switch v.Tag {
	case EncI64:
		return v.I64
	case EncScalarI64:
		return []int64{v.Scalar}
	case EncU8:
		out := make([]int64, len(v.U8))
		for i, b := range v.U8 {
			out[i] = int64(b)
		}
		return out
	case EncUsize:
		out := make([]int64, len(v.Usize))
		for i, u := range v.Usize {
			out[i] = int64(u)
		}
		return out
	default:
		panic("planner: AsI64 called on non-integer value tag " + v.Tag.String())
	}
}

// AsUsize views v as an []int row-index list.
func (v Value) AsUsize() []int {
	switch v.Tag {
	case EncUsize:
		return v.Usize
	case EncI64:
		out := make([]int, len(v.I64))
		for i, x := range v.I64 {
			out[i] = int(x)
		}
		return out
	default:
		panic("planner: AsUsize called on non-index value tag " + v.Tag.String())
	}
}

// AsScalarI64 extracts a 1-element scalar buffer's value.
func (v Value) AsScalarI64() int64 {
	switch v.Tag {
	case EncScalarI64:
		return v.Scalar
	case EncI64:
		return v.I64[0]
	default:
		panic("planner: AsScalarI64 called on non-scalar value tag " + v.Tag.String())
	}
}

type hashBuildResult struct {
	// groupingKeyRows[r] is the dense remapped group id for row r.
	groupingKeyRows []int64
	// encodedGroupByColumn[g] is the original raw grouping key for unique group g.
	encodedGroupByColumn []int64
	cardinality          int64
}
