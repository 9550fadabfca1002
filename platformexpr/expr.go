// Package platformexpr implements the boolean platform-expression
// language of spec.md §4.1.3/§9: identifiers, "!", "&", "|", parens,
// evaluated against a cmake-var map with unknown identifiers treated as
// false (never an error — the Open Question spec.md §9 resolves
// explicitly).
package platformexpr

import (
	"sort"
	"strings"
)

// Kind discriminates the tagged tree spec.md §9 describes.
type Kind int

const (
	KindVar Kind = iota
	KindNot
	KindAnd
	KindOr
)

// Expr is the tagged tree produced by Parse. The zero Expr is the
// "always true" empty expression, matching original_source's
// Expr::always_true default.
type Expr struct {
	Kind     Kind
	Var      string // valid when Kind == KindVar
	Operand  *Expr  // valid when Kind == KindNot
	Operands []Expr // valid when Kind == KindAnd or KindOr
}

// IsEmpty reports whether e is the always-true empty expression.
func (e *Expr) IsEmpty() bool {
	return e == nil || (e.Kind == KindVar && e.Var == "" && e.Operand == nil && e.Operands == nil)
}

// Eval evaluates e against context, a map of cmake-variable name to value.
// An identifier is "true" iff it is present in context with a non-empty
// value; an identifier absent from context evaluates to false, never an
// error, per spec.md §9.
func (e *Expr) Eval(context map[string]string) bool {
	if e.IsEmpty() {
		return true
	}
	switch e.Kind {
	case KindVar:
		return context[e.Var] != ""
	case KindNot:
		return !e.Operand.Eval(context)
	case KindAnd:
		for i := range e.Operands {
			if !e.Operands[i].Eval(context) {
				return false
			}
		}
		return true
	case KindOr:
		for i := range e.Operands {
			if e.Operands[i].Eval(context) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// String renders e back into the surface syntax, used for diagnostics and
// for the stable ordering in Less.
func (e *Expr) String() string {
	if e.IsEmpty() {
		return ""
	}
	switch e.Kind {
	case KindVar:
		return e.Var
	case KindNot:
		return "!" + wrapIfCompound(e.Operand)
	case KindAnd:
		return joinOperands(e.Operands, " & ")
	case KindOr:
		return joinOperands(e.Operands, " | ")
	default:
		return ""
	}
}

func wrapIfCompound(e *Expr) string {
	if e.Kind == KindAnd || e.Kind == KindOr {
		return "(" + e.String() + ")"
	}
	return e.String()
}

func joinOperands(operands []Expr, sep string) string {
	parts := make([]string, len(operands))
	for i := range operands {
		op := operands[i]
		s := op.String()
		if op.Kind == KindOr && sep == " & " {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}

// Complexity implements original_source's Expr::complexity(): 0 for
// empty, 1 for an identifier, 1+complexity(inner) for a negation, and
// 1+sum(complexity(inner)) for conjunctions/disjunctions. Used only to
// order diagnostics deterministically; it has no bearing on evaluation.
func (e *Expr) Complexity() int {
	if e.IsEmpty() {
		return 0
	}
	switch e.Kind {
	case KindVar:
		return 1
	case KindNot:
		return 1 + e.Operand.Complexity()
	case KindAnd, KindOr:
		sum := 1
		for i := range e.Operands {
			sum += e.Operands[i].Complexity()
		}
		return sum
	default:
		return 0
	}
}

// Less orders expressions for stable diagnostic output, per
// original_source's comparator: by complexity, then by rendered-string
// length, then lexicographically.
func Less(a, b *Expr) bool {
	ca, cb := a.Complexity(), b.Complexity()
	if ca != cb {
		return ca < cb
	}
	sa, sb := a.String(), b.String()
	if len(sa) != len(sb) {
		return len(sa) < len(sb)
	}
	return sa < sb
}

// SortExprs sorts a slice of expressions using Less, for deterministic
// diagnostic rendering (e.g. listing every failing supports-expression).
func SortExprs(exprs []Expr) {
	sort.SliceStable(exprs, func(i, j int) bool { return Less(&exprs[i], &exprs[j]) })
}
