package expr

// Aggregator is the closed enumeration of supported aggregation functions.
// Extending this set (spec.md §9) is a local change to two places: this
// enum and planner.PrepareAggregation (exec.RunAggregate compacts every
// aggregate the same way, against one selector).
type Aggregator int

const (
	Count Aggregator = iota
	Sum
)

func (a Aggregator) String() string {
	switch a {
	case Count:
		return "count"
	case Sum:
		return "sum"
	default:
		return "unknown_aggregator"
	}
}

// ResultPrefix is the naming convention result_column_names uses for
// synthesized aggregate columns ("count_0", "sum_1", ...).
func (a Aggregator) ResultPrefix() string {
	switch a {
	case Count:
		return "count"
	case Sum:
		return "sum"
	default:
		return "agg"
	}
}
