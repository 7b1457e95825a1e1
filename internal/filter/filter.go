// Package filter implements the closed filter AST: a small sum type
// that every tenant/scope predicate and caller-supplied query filter is
// built from, plus the per-backend Compiler interface. Callers only ever
// build Expr values; only a Compiler implementation knows a backend's
// wire DSL. RawDSL is reserved for emergency pass-through, not routine
// use.
package filter

import "fmt"

// Expr is the closed sum type. The unexported marker method keeps the set
// of variants fixed to this package, mirroring a tagged union.
type Expr interface {
	isExpr()
}

// And is the conjunction of conds. An empty And compiles to "match
// everything"; a single-element And collapses to its one child.
type And struct{ Conds []Expr }

// Or is the disjunction of conds, with the same collapsing rules as And.
type Or struct{ Conds []Expr }

// Eq matches Field == Value exactly.
type Eq struct {
	Field string
	Value interface{}
}

// In matches Field ∈ Values.
type In struct {
	Field  string
	Values []interface{}
}

// Prefix matches string fields starting with Prefix.
type Prefix struct {
	Field  string
	Prefix string
}

// Range matches a numeric/orderable field against optional bounds. A nil
// bound means "unbounded" on that side.
type Range struct {
	Field             string
	Gt, Gte, Lt, Lte  interface{}
}

// Contains matches Field containing Substring.
type Contains struct {
	Field     string
	Substring string
}

// Regex matches Field against Pattern.
type Regex struct {
	Field   string
	Pattern string
}

// TimeRange matches a time-valued field between Start and End (either may
// be nil for unbounded).
type TimeRange struct {
	Field      string
	Start, End interface{}
}

// RawDSL is an escape hatch carrying a backend-specific payload verbatim.
// It MUST be reserved for cases the AST genuinely cannot express; routine
// call sites build typed nodes.
type RawDSL struct {
	Payload interface{}
}

func (And) isExpr()       {}
func (Or) isExpr()        {}
func (Eq) isExpr()        {}
func (In) isExpr()        {}
func (Prefix) isExpr()    {}
func (Range) isExpr()     {}
func (Contains) isExpr()  {}
func (Regex) isExpr()     {}
func (TimeRange) isExpr() {}
func (RawDSL) isExpr()    {}

// Simplify applies the And/Or collapsing contracts:
// empty And/Or becomes nil (the empty filter, matches everything);
// single-element And/Or collapses to its one child. Order of conds is
// always preserved. Simplify does not recurse into Eq/In/etc. leaves;
// they have no children to collapse.
func Simplify(e Expr) Expr {
	switch v := e.(type) {
	case And:
		switch len(v.Conds) {
		case 0:
			return nil
		case 1:
			return Simplify(v.Conds[0])
		default:
			simplified := make([]Expr, 0, len(v.Conds))
			for _, c := range v.Conds {
				simplified = append(simplified, Simplify(c))
			}
			return And{Conds: simplified}
		}
	case Or:
		switch len(v.Conds) {
		case 0:
			return nil
		case 1:
			return Simplify(v.Conds[0])
		default:
			simplified := make([]Expr, 0, len(v.Conds))
			for _, c := range v.Conds {
				simplified = append(simplified, Simplify(c))
			}
			return Or{Conds: simplified}
		}
	default:
		return e
	}
}

// Compiler is implemented once per vector/FS backend driver. It is a
// single-dispatch method: callers never branch on node type themselves.
type Compiler interface {
	// Compile translates a (possibly nil, meaning "match everything") Expr
	// into the backend's native filter representation. An unsupported node
	// for this backend MUST be surfaced as ovterrors.InvalidArgument.
	Compile(e Expr) (interface{}, error)
}

// UnsupportedNodeError is returned by a Compiler when it encounters an
// Expr variant it cannot translate.
type UnsupportedNodeError struct {
	Backend string
	Node    Expr
}

func (e *UnsupportedNodeError) Error() string {
	return fmt.Sprintf("backend %q does not support filter node %T", e.Backend, e.Node)
}
