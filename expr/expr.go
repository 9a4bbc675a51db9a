package expr

import "fmt"

// Op1 is the closed set of unary operators.
type Op1 int

const (
	Negate Op1 = iota
	IsNull
)

func (o Op1) String() string {
	switch o {
	case Negate:
		return "negate"
	case IsNull:
		return "is_null"
	default:
		return "unknown_op1"
	}
}

// Op2 is the closed set of binary operators: comparison, arithmetic, boolean.
type Op2 int

const (
	Equals Op2 = iota
	NotEquals
	LessThan
	LessThanEquals
	GreaterThan
	GreaterThanEquals
	Add
	Subtract
	Multiply
	And
	Or
)

func (o Op2) String() string {
	switch o {
	case Equals:
		return "="
	case NotEquals:
		return "!="
	case LessThan:
		return "<"
	case LessThanEquals:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanEquals:
		return ">="
	case Add:
		return "+"
	case Subtract:
		return "-"
	case Multiply:
		return "*"
	case And:
		return "and"
	case Or:
		return "or"
	default:
		return "unknown_op2"
	}
}

// Expr is the recursive expression algebra described in spec.md §3. It has
// exactly five variants: ColName, Const, Func1, Func2, Aggregate.
type Expr interface {
	fmt.Stringer
	isExpr()
	// AddColNames walks the expression and inserts every referenced column
	// name into the given set.
	AddColNames(cols map[string]struct{})
}

// ColName resolves against the partition's column map.
type ColName struct {
	Name string
}

func (ColName) isExpr() {}
func (c ColName) String() string {
	return c.Name
}
func (c ColName) AddColNames(cols map[string]struct{}) {
	cols[c.Name] = struct{}{}
}

// Const is a literal of a primitive type.
type Const struct {
	Value RawVal
}

func (Const) isExpr() {}
func (c Const) String() string {
	return c.Value.String()
}
func (c Const) AddColNames(map[string]struct{}) {}

// Func1 is a unary operator applied to a child expression.
type Func1 struct {
	Op    Op1
	Child Expr
}

func (Func1) isExpr() {}
func (f Func1) String() string {
	return fmt.Sprintf("(%s %s)", f.Op, f.Child)
}
func (f Func1) AddColNames(cols map[string]struct{}) {
	f.Child.AddColNames(cols)
}

// Func2 is a binary operator applied to two child expressions.
type Func2 struct {
	Op          Op2
	Left, Right Expr
}

func (Func2) isExpr() {}
func (f Func2) String() string {
	return fmt.Sprintf("(%s %s %s)", f.Left, f.Op, f.Right)
}
func (f Func2) AddColNames(cols map[string]struct{}) {
	f.Left.AddColNames(cols)
	f.Right.AddColNames(cols)
}

// Aggregate applies one of the closed set of aggregators to a child
// expression. No Aggregate node may transitively contain another Aggregate.
type Aggregate struct {
	Aggregator Aggregator
	Child      Expr
}

func (Aggregate) isExpr() {}
func (a Aggregate) String() string {
	return fmt.Sprintf("%s(%s)", a.Aggregator, a.Child)
}
func (a Aggregate) AddColNames(cols map[string]struct{}) {
	a.Child.AddColNames(cols)
}

// IsColName reports whether e is a bare ColName, and returns it.
func IsColName(e Expr) (ColName, bool) {
	c, ok := e.(ColName)
	return c, ok
}

// ContainsAggregate reports whether e transitively contains an Aggregate node.
func ContainsAggregate(e Expr) bool {
	switch v := e.(type) {
	case Aggregate:
		return true
	case Func1:
		return ContainsAggregate(v.Child)
	case Func2:
		return ContainsAggregate(v.Left) || ContainsAggregate(v.Right)
	default:
		return false
	}
}
