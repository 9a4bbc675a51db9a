package planner

import (
	"github.com/colquery/colquery/expr"
	"github.com/colquery/colquery/qerrors"
	"github.com/colquery/colquery/storage"
)

// CompileExpr lowers a single expr.Expr into a TypedBufferRef plus its
// Type, under the ambient filter (spec.md §4.2).
//
// A ColName opens the named storage column and materializes it in its
// *native* encoding (codec is carried on Type, not applied here) — the
// codec is applied later, on demand, by whichever caller needs the logical
// value (e.g. grouping-key reconstruction, final projection). This mirrors
// how LocustDB's compile_expr defers codec.decode to its callers
// (original_source/src/engine/planning/query.rs).
func CompileExpr(e expr.Expr, filter Filter, columns storage.ColumnSet, p *QueryPlanner) (TypedBufferRef, Type, error) {
	switch v := e.(type) {
	case expr.ColName:
		return compileColName(v, filter, columns, p)
	case expr.Const:
		return compileConst(v, p)
	case expr.Func1:
		return compileFunc1(v, filter, columns, p)
	case expr.Func2:
		return compileFunc2(v, filter, columns, p)
	case expr.Aggregate:
		return TypedBufferRef{}, Type{}, qerrors.New(qerrors.NotImplemented, "compile_expr called on an Aggregate node outside the aggregate path: %s", v)
	default:
		return TypedBufferRef{}, Type{}, qerrors.New(qerrors.FatalError, "compile_expr: unknown expression variant %T", e)
	}
}

func compileColName(c expr.ColName, filter Filter, columns storage.ColumnSet, p *QueryPlanner) (TypedBufferRef, Type, error) {
	col, err := columns.Resolve(c.Name)
	if err != nil {
		return TypedBufferRef{}, Type{}, err
	}
	raw := p.openColumn(col, c.Name)
	typ := typeOfColumn(col)
	buf := p.applyFilter(raw, typ.Enc, filter)
	return buf, typ, nil
}

// openColumn allocates the node that reads a column's sole data section
// into an in-memory typed buffer. Physical decoding beyond this point
// (e.g. dictionary code -> string) is the codec's job, not this op's
// (spec.md §6: DataSource is read-only, decoding is out of core scope
// except as the minimal concrete realization this package needs to be
// testable end to end).
func (p *QueryPlanner) openColumn(col storage.Column, name string) TypedBufferRef {
	data := col.DataSections()[0]
	if data.Dict != nil {
		ref := p.alloc(EncI64, "open("+name+")", nil, func(env *environment) (Value, error) {
			out := make([]int64, len(data.Dict))
			for i, code := range data.Dict {
				out[i] = int64(code)
			}
			return Value{Tag: EncI64, I64: out}, nil
		})
		p.rawBuffers = append(p.rawBuffers, ref)
		return ref
	}
	ref := p.alloc(EncI64, "open("+name+")", nil, func(env *environment) (Value, error) {
		return Value{Tag: EncI64, I64: data.Int64}, nil
	})
	p.rawBuffers = append(p.rawBuffers, ref)
	return ref
}

func typeOfColumn(col storage.Column) Type {
	t := Type{
		Enc:             EncI64,
		OrderPreserving: col.OrderPreserving(),
		Positive:        col.Positive(),
		Cardinality:     int64(col.Cardinality()),
	}
	if dc, ok := col.(*storage.DictStrColumn); ok {
		dict := append([]string(nil), dc.Dict...)
		t.Codec = &Codec{
			Name: "dict_str",
			Decode: func(p *QueryPlanner, encoded TypedBufferRef) TypedBufferRef {
				return p.alloc(EncStr, "decode(dict_str)", []TypedBufferRef{encoded}, func(env *environment) (Value, error) {
					codes, err := env.get(encoded.id)
					if err != nil {
						return Value{}, err
					}
					out := make([]string, len(codes.I64))
					for i, c := range codes.I64 {
						if int(c) < 0 || int(c) >= len(dict) {
							return Value{}, qerrors.New(qerrors.FatalError, "dict_str decode: code %d out of range", c)
						}
						out[i] = dict[c]
					}
					return Value{Tag: EncStr, Str: out}, nil
				})
			},
		}
	}
	return t
}

// applyFilter narrows buf to the ambient filter's row set (spec.md §4.2):
// an index filter gathers directly; a mask filter is deferred (the raw
// buffer is returned unfiltered) since dense masks are only consumed by
// FilterOp/NullableFilter at the point the scan path turns them into an
// index list — applying a mask here would double-apply it.
func (p *QueryPlanner) applyFilter(buf TypedBufferRef, tag EncodingType, filter Filter) TypedBufferRef {
	if filter.Kind == FilterIndices {
		return p.Select(buf, filter.Indices)
	}
	return buf
}

func compileConst(c expr.Const, p *QueryPlanner) (TypedBufferRef, Type, error) {
	switch c.Value.Kind {
	case expr.KindInt:
		ref := p.ScalarI64(c.Value.Int)
		return ref, Type{Enc: EncScalarI64, OrderPreserving: true, Positive: c.Value.Int >= 0, Cardinality: 1}, nil
	case expr.KindBool:
		n := int64(0)
		if c.Value.Bool {
			n = 1
		}
		ref := p.ScalarI64(n)
		return ref, Type{Enc: EncScalarI64, OrderPreserving: true, Positive: true, Cardinality: 2}, nil
	case expr.KindStr:
		str := c.Value.Str
		ref := p.alloc(EncStr, "const_str", nil, func(env *environment) (Value, error) {
			return Value{Tag: EncStr, Str: []string{str}}, nil
		})
		return ref, Type{Enc: EncStr, OrderPreserving: true}, nil
	default:
		return TypedBufferRef{}, Type{}, qerrors.New(qerrors.NotImplemented, "unsupported constant kind %v", c.Value.Kind)
	}
}

func compileFunc1(f expr.Func1, filter Filter, columns storage.ColumnSet, p *QueryPlanner) (TypedBufferRef, Type, error) {
	child, childType, err := CompileExpr(f.Child, filter, columns, p)
	if err != nil {
		return TypedBufferRef{}, Type{}, err
	}
	switch f.Op {
	case expr.Negate:
		out := p.alloc(EncI64, "negate", []TypedBufferRef{child}, func(env *environment) (Value, error) {
			v, err := env.get(child.id)
			if err != nil {
				return Value{}, err
			}
			vals := v.AsI64()
			res := make([]int64, len(vals))
			for i, x := range vals {
				res[i] = -x
			}
			return Value{Tag: EncI64, I64: res}, nil
		})
		return out, Type{Enc: EncI64, OrderPreserving: false, Positive: false}, nil
	case expr.IsNull:
		out := p.alloc(EncU8, "is_null", []TypedBufferRef{child}, func(env *environment) (Value, error) {
			v, err := env.get(child.id)
			if err != nil {
				return Value{}, err
			}
			n := v.Len()
			res := make([]uint8, n)
			if v.Tag == EncNullableU8 {
				for i, valid := range v.NullableU8.Valid {
					if !valid {
						res[i] = 1
					}
				}
			}
			return Value{Tag: EncU8, U8: res}, nil
		})
		_ = childType
		return out, Type{Enc: EncU8, OrderPreserving: true, Positive: true, Cardinality: 2}, nil
	default:
		return TypedBufferRef{}, Type{}, qerrors.New(qerrors.NotImplemented, "unsupported unary operator %s", f.Op)
	}
}

func compileFunc2(f expr.Func2, filter Filter, columns storage.ColumnSet, p *QueryPlanner) (TypedBufferRef, Type, error) {
	left, leftType, err := CompileExpr(f.Left, filter, columns, p)
	if err != nil {
		return TypedBufferRef{}, Type{}, err
	}
	right, rightType, err := CompileExpr(f.Right, filter, columns, p)
	if err != nil {
		return TypedBufferRef{}, Type{}, err
	}
	// Operators work on logical values, unlike grouping-key packing, which
	// deliberately stays in the encoded domain (see CompileExpr's doc
	// comment): decode any codec-carrying operand here, on demand.
	if leftType.Codec != nil {
		left = leftType.Codec.Decode(p, left)
		leftType.Enc = left.Tag
		leftType.Codec = nil
	}
	if rightType.Codec != nil {
		right = rightType.Codec.Decode(p, right)
		rightType.Enc = right.Tag
		rightType.Codec = nil
	}
	switch f.Op {
	case expr.Add, expr.Subtract, expr.Multiply:
		return compileArith(f.Op, left, right, leftType, rightType, p)
	case expr.Equals, expr.NotEquals, expr.LessThan, expr.LessThanEquals, expr.GreaterThan, expr.GreaterThanEquals:
		return compileCompare(f.Op, left, right, p)
	case expr.And, expr.Or:
		return compileBoolOp(f.Op, left, right, p)
	default:
		return TypedBufferRef{}, Type{}, qerrors.New(qerrors.NotImplemented, "unsupported binary operator %s", f.Op)
	}
}

func compileArith(op expr.Op2, left, right TypedBufferRef, leftType, rightType Type, p *QueryPlanner) (TypedBufferRef, Type, error) {
	out := p.alloc(EncI64, op.String(), []TypedBufferRef{left, right}, func(env *environment) (Value, error) {
		l, err := env.get(left.id)
		if err != nil {
			return Value{}, err
		}
		r, err := env.get(right.id)
		if err != nil {
			return Value{}, err
		}
		lv, rv := l.AsI64(), r.AsI64()
		n := len(lv)
		if len(rv) > n {
			n = len(rv)
		}
		res := make([]int64, n)
		for i := 0; i < n; i++ {
			a := broadcastAt(lv, i)
			b := broadcastAt(rv, i)
			switch op {
			case expr.Add:
				res[i] = a + b
			case expr.Subtract:
				res[i] = a - b
			case expr.Multiply:
				res[i] = a * b
			}
		}
		return Value{Tag: EncI64, I64: res}, nil
	})
	card := int64(0)
	if leftType.Cardinality > 0 && rightType.Cardinality > 0 {
		card = leftType.Cardinality * rightType.Cardinality
	}
	return out, Type{Enc: EncI64, OrderPreserving: false, Positive: leftType.Positive && rightType.Positive, Cardinality: card}, nil
}

func broadcastAt(vals []int64, i int) int64 {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals[i]
}

func compileCompare(op expr.Op2, left, right TypedBufferRef, p *QueryPlanner) (TypedBufferRef, Type, error) {
	out := p.alloc(EncU8, op.String(), []TypedBufferRef{left, right}, func(env *environment) (Value, error) {
		l, err := env.get(left.id)
		if err != nil {
			return Value{}, err
		}
		r, err := env.get(right.id)
		if err != nil {
			return Value{}, err
		}
		return evalCompare(op, l, r)
	})
	return out, Type{Enc: EncU8, OrderPreserving: true, Positive: true, Cardinality: 2}, nil
}

func evalCompare(op expr.Op2, l, r Value) (Value, error) {
	if l.Tag == EncStr || r.Tag == EncStr {
		lv, rv := broadcastStr(l), broadcastStr(r)
		n := len(lv)
		if len(rv) > n {
			n = len(rv)
		}
		res := make([]uint8, n)
		for i := 0; i < n; i++ {
			a := strAt(lv, i)
			b := strAt(rv, i)
			if compareStrOp(op, a, b) {
				res[i] = 1
			}
		}
		return Value{Tag: EncU8, U8: res}, nil
	}
	lv, rv := l.AsI64(), r.AsI64()
	n := len(lv)
	if len(rv) > n {
		n = len(rv)
	}
	res := make([]uint8, n)
	for i := 0; i < n; i++ {
		a, b := broadcastAt(lv, i), broadcastAt(rv, i)
		if compareIntOp(op, a, b) {
			res[i] = 1
		}
	}
	return Value{Tag: EncU8, U8: res}, nil
}

func broadcastStr(v Value) []string {
	if v.Tag == EncStr {
		return v.Str
	}
	return nil
}

func strAt(vals []string, i int) string {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals[i]
}

func compareIntOp(op expr.Op2, a, b int64) bool {
	switch op {
	case expr.Equals:
		return a == b
	case expr.NotEquals:
		return a != b
	case expr.LessThan:
		return a < b
	case expr.LessThanEquals:
		return a <= b
	case expr.GreaterThan:
		return a > b
	case expr.GreaterThanEquals:
		return a >= b
	default:
		return false
	}
}

func compareStrOp(op expr.Op2, a, b string) bool {
	switch op {
	case expr.Equals:
		return a == b
	case expr.NotEquals:
		return a != b
	case expr.LessThan:
		return a < b
	case expr.LessThanEquals:
		return a <= b
	case expr.GreaterThan:
		return a > b
	case expr.GreaterThanEquals:
		return a >= b
	default:
		return false
	}
}

func compileBoolOp(op expr.Op2, left, right TypedBufferRef, p *QueryPlanner) (TypedBufferRef, Type, error) {
	out := p.alloc(EncU8, op.String(), []TypedBufferRef{left, right}, func(env *environment) (Value, error) {
		l, err := env.get(left.id)
		if err != nil {
			return Value{}, err
		}
		r, err := env.get(right.id)
		if err != nil {
			return Value{}, err
		}
		lv, rv := l.AsI64(), r.AsI64()
		n := len(lv)
		if len(rv) > n {
			n = len(rv)
		}
		res := make([]uint8, n)
		for i := 0; i < n; i++ {
			a, b := broadcastAt(lv, i) != 0, broadcastAt(rv, i) != 0
			var ok bool
			if op == expr.And {
				ok = a && b
			} else {
				ok = a || b
			}
			if ok {
				res[i] = 1
			}
		}
		return Value{Tag: EncU8, U8: res}, nil
	})
	return out, Type{Enc: EncU8, OrderPreserving: true, Positive: true, Cardinality: 2}, nil
}
