package expr

import "fmt"

// ValKind is the closed set of literal kinds a Const expression may carry.
type ValKind int

const (
	KindNull ValKind = iota
	KindInt
	KindStr
	KindBool
)

// RawVal is a literal value attached to a Const node.
type RawVal struct {
	Kind ValKind
	Int  int64
	Str  string
	Bool bool
}

// Int builds an integer literal.
func Int(v int64) RawVal { return RawVal{Kind: KindInt, Int: v} }

// Str builds a string literal.
func Str(v string) RawVal { return RawVal{Kind: KindStr, Str: v} }

// Bool builds a boolean literal.
func Bool(v bool) RawVal { return RawVal{Kind: KindBool, Bool: v} }

// Null builds the null literal.
func Null() RawVal { return RawVal{Kind: KindNull} }

func (v RawVal) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindStr:
		return fmt.Sprintf("%q", v.Str)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return "null"
	}
}

// Truthy reports whether the literal evaluates to a non-narrowing filter,
// i.e. whether it behaves like a constant true in a WHERE clause.
func (v RawVal) Truthy() bool {
	switch v.Kind {
	case KindInt:
		return v.Int != 0
	case KindBool:
		return v.Bool
	case KindNull:
		return false
	default:
		return true
	}
}
