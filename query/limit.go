package query

// LimitClause is the LIMIT/OFFSET pair attached to a Query or NormalFormQuery.
type LimitClause struct {
	Limit  uint64
	Offset uint64
}
