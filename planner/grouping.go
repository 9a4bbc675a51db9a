package planner

import (
	"fmt"

	"github.com/colquery/colquery/expr"
	"github.com/colquery/colquery/qerrors"
	"github.com/colquery/colquery/storage"
)

// DecodePlan pairs a grouping column's final (decoded, if the component
// carried a codec) buffer with its Type, used to reconstruct the original
// GROUP BY columns after aggregation (spec.md §4.5 step 8).
type DecodePlan struct {
	Buf  TypedBufferRef
	Type Type
}

// GroupingKey is the result of compiling a query's GROUP BY column list
// into one packed integer key (spec.md §4.5 steps 1-2, §9).
type GroupingKey struct {
	Raw         TypedBufferRef // the per-row packed integer key
	Type        Type
	MaxKey      int64
	DecodePlans []DecodePlan
	// Placeholder is the encoded_group_by_column back-edge: once the
	// grouping strategy (dense or hashmap) has been chosen, the caller must
	// Connect it to a buffer holding one raw grouping key per result group
	// (dense: the identity sequence over the key domain; hashmap: the hash
	// build's encoded_group_by column; see CompileGroupingKey's doc below)
	// before Prepare.
	Placeholder TypedBufferRef
}

// CompileGroupingKey compiles a list of GROUP BY expressions into a single
// packed integer key via mixed-radix packing: key = sum(value[i] *
// product(cardinality[i+1:])). This both bounds the dense-grouping space
// (spec.md §4.5 step 3) and gives decode_plans a uniform div/mod recipe to
// recover each original component from any row's raw key — dense or
// hashmap, since both strategies ultimately expose a per-row "raw grouping
// key" buffer through GroupingKey.Placeholder (dense: row's position IS
// its raw key; hashmap: the remapped dense id's encoded_group_by_column
// entry holds the raw key verbatim).
//
// Ported from original_source's compile_grouping_key
// (src/engine/planning/query.rs), generalized from its single-column
// fast-path to N columns via mixed-radix packing (spec.md §9 Open Question
// resolution: the original only special-cases one grouping column).
type groupingComponent struct {
	buf TypedBufferRef
	typ Type
}

// CompileGroupingKey is the exported entry point exec.RunAggregate uses.
func CompileGroupingKey(exprs []expr.Expr, filter Filter, columns storage.ColumnSet, p *QueryPlanner) (GroupingKey, error) {
	comps := make([]groupingComponent, len(exprs))
	for i, e := range exprs {
		buf, typ, err := CompileExpr(e, filter, columns, p)
		if err != nil {
			return GroupingKey{}, err
		}
		comps[i] = groupingComponent{buf, typ}
	}

	cards := make([]int64, len(comps))
	for i, c := range comps {
		card := c.typ.Cardinality
		if card <= 0 {
			card = 1
		}
		cards[i] = card
	}
	divisors := make([]int64, len(comps))
	running := int64(1)
	for i := len(comps) - 1; i >= 0; i-- {
		divisors[i] = running
		running *= cards[i]
	}
	maxKey := running - 1
	if maxKey < 0 {
		maxKey = 0
	}

	packed := p.alloc(EncI64, "pack_grouping_key", bufsOf(comps), func(env *environment) (Value, error) {
		n := 0
		colVals := make([][]int64, len(comps))
		for i, c := range comps {
			v, err := env.get(c.buf.id)
			if err != nil {
				return Value{}, err
			}
			colVals[i] = v.AsI64()
			if len(colVals[i]) > n {
				n = len(colVals[i])
			}
		}
		out := make([]int64, n)
		for row := 0; row < n; row++ {
			var key int64
			for i := range comps {
				key += broadcastAt(colVals[i], row) * divisors[i]
			}
			out[row] = key
		}
		return Value{Tag: EncI64, I64: out}, nil
	})

	allOrderPreserving := true
	for _, c := range comps {
		if !c.typ.OrderPreserving {
			allOrderPreserving = false
			break
		}
	}

	placeholder := p.placeholder(EncI64, "encoded_group_by_column")

	decodePlans := make([]DecodePlan, len(comps))
	for i, c := range comps {
		divisor, modulus := divisors[i], cards[i]
		unpacked := p.alloc(EncI64, fmt.Sprintf("unpack_grouping_component(%d)", i), []TypedBufferRef{placeholder}, func(env *environment) (Value, error) {
			raw, err := env.get(placeholder.id)
			if err != nil {
				return Value{}, err
			}
			keys := raw.AsI64()
			out := make([]int64, len(keys))
			for r, k := range keys {
				out[r] = (k / divisor) % modulus
			}
			return Value{Tag: EncI64, I64: out}, nil
		})
		decoded := unpacked
		decodedType := c.typ
		decodedType.Codec = nil
		if c.typ.Codec != nil {
			decoded = c.typ.Codec.Decode(p, unpacked)
			decodedType.Enc = decoded.Tag
		}
		decodePlans[i] = DecodePlan{Buf: decoded, Type: decodedType}
	}

	return GroupingKey{
		Raw:         packed,
		Type:        Type{Enc: EncI64, OrderPreserving: allOrderPreserving, Positive: true, Cardinality: maxKey + 1},
		MaxKey:      maxKey,
		DecodePlans: decodePlans,
		Placeholder: placeholder,
	}, nil
}

func bufsOf(comps []groupingComponent) []TypedBufferRef {
	out := make([]TypedBufferRef, len(comps))
	for i, c := range comps {
		out[i] = c.buf
	}
	return out
}

// DenseGroupingThreshold is the maximum grouping-key domain size this
// planner will address directly rather than through a hashmap (spec.md
// §4.5 step 3, §9).
const DenseGroupingThreshold = 1 << 16

// ChooseGroupingStrategy decides dense-vs-hashmap per spec.md §4.5 step 3:
// dense requires a positive-integer raw key whose maximum value is below
// DenseGroupingThreshold (a domain of at most DenseGroupingThreshold keys).
func ChooseGroupingStrategy(gk GroupingKey) bool {
	return gk.Type.IsPositiveInteger() && gk.MaxKey < DenseGroupingThreshold
}

// PrepareHashmapGrouping implements spec.md §4.5 steps 3-6 for the hashmap
// path: rawKey's distinct values are assigned dense ids in first-seen
// (hash-bucket) order, which is NOT the raw key's logical order — hence a
// result computed this way always needs the order-preservation fixup at
// spec.md §4.5 step 9, regardless of the grouping components' own
// encodings.
func PrepareHashmapGrouping(gk GroupingKey, p *QueryPlanner) (groupingKey, cardinality TypedBufferRef) {
	build := p.alloc(EncI64, "hashmap_build", []TypedBufferRef{gk.Raw}, func(env *environment) (Value, error) {
		raw, err := env.get(gk.Raw.id)
		if err != nil {
			return Value{}, err
		}
		rawKeys := raw.AsI64()
		ids := make(map[int64]int64)
		order := make([]int64, 0)
		rows := make([]int64, len(rawKeys))
		for i, k := range rawKeys {
			id, ok := ids[k]
			if !ok {
				id = int64(len(order))
				ids[k] = id
				order = append(order, k)
			}
			rows[i] = id
		}
		return Value{Tag: EncI64, HashBuild: &hashBuildResult{
			groupingKeyRows:      rows,
			encodedGroupByColumn: order,
			cardinality:          int64(len(order)),
		}}, nil
	})
	groupingKey = p.alloc(EncI64, "hashmap_grouping_key", []TypedBufferRef{build}, func(env *environment) (Value, error) {
		v, err := env.get(build.id)
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: EncI64, I64: v.HashBuild.groupingKeyRows}, nil
	})
	cardinality = p.alloc(EncScalarI64, "hashmap_cardinality", []TypedBufferRef{build}, func(env *environment) (Value, error) {
		v, err := env.get(build.id)
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: EncScalarI64, Scalar: v.HashBuild.cardinality}, nil
	})
	return groupingKey, cardinality
}

// HashmapEncodedGroupByColumn extracts the per-unique-group raw key column
// that the hashmap build computed, used as the source buffer for
// Connect(_, gk.Placeholder) in the hashmap strategy.
func HashmapEncodedGroupByColumn(groupingKey TypedBufferRef, p *QueryPlanner) TypedBufferRef {
	// groupingKey here is the op allocated by PrepareHashmapGrouping whose
	// single input is the shared hashmap_build node; reuse that input.
	node := p.nodeByID(groupingKey.id)
	buildID := node.inputs[0]
	return p.alloc(EncI64, "hashmap_encoded_group_by_column", []TypedBufferRef{{id: buildID, Tag: EncI64}}, func(env *environment) (Value, error) {
		v, err := env.get(buildID)
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: EncI64, I64: v.HashBuild.encodedGroupByColumn}, nil
	})
}

// PrepareAggregation implements spec.md §4.5 step 7: reduce plan (one
// value per source row) into one value per group, sized to cardinality.
func PrepareAggregation(plan TypedBufferRef, groupingKey, cardinality TypedBufferRef, aggregator expr.Aggregator, p *QueryPlanner) TypedBufferRef {
	kind := "aggregate_" + aggregator.String()
	return p.alloc(EncI64, kind, []TypedBufferRef{plan, groupingKey, cardinality}, func(env *environment) (Value, error) {
		planV, err := env.get(plan.id)
		if err != nil {
			return Value{}, err
		}
		gkV, err := env.get(groupingKey.id)
		if err != nil {
			return Value{}, err
		}
		cardV, err := env.get(cardinality.id)
		if err != nil {
			return Value{}, err
		}
		card := cardV.AsScalarI64()
		out := make([]int64, card)
		gk := gkV.AsI64()
		switch aggregator {
		case expr.Count:
			for _, k := range gk {
				out[k]++
			}
		case expr.Sum:
			planVals := planV.AsI64()
			for i, k := range gk {
				out[k] += broadcastAt(planVals, i)
			}
		default:
			return Value{}, qerrors.New(qerrors.NotImplemented, "unsupported aggregator %s", aggregator)
		}
		return Value{Tag: EncI64, I64: out}, nil
	})
}
