// Package plan compiles GraphQL field selections into IR expressions.
//
// A query is compiled in one or two passes. The pushdown pass produces an expression the
// data source can execute on its own; fields that need an in-process service are left
// out, but the inputs those fields read are carried as hidden columns. When services are
// required, the full pass rebuilds the selection over the materialized pushdown result
// and attaches the service calls.
package plan

import (
	"github.com/hanpama/gqlplan/internal/expr"
)

// Selection is one requested field. It is implemented by *Scalar, *List and *Object.
type Selection interface {
	SelectionName() string
	selection()
}

// Literal is a constant argument that has not been coerced yet.
type Literal struct {
	Value any
	Type  *expr.Type
}

// Scalar is a leaf field. Expr computes its value from Param.
type Scalar struct {
	Name      string
	Expr      expr.Expr
	Param     *expr.Param
	Constants map[*expr.Param]Literal
}

// List is a list-valued field. Expr yields the collection from Param; Children are
// written against Elem, the element variable.
type List struct {
	Name      string
	Field     string // Field identity "Type.field", the extension key
	Expr      expr.Expr
	Param     *expr.Param
	Elem      *expr.Param
	Children  []Selection
	Constants map[*expr.Param]Literal
}

// Object is a single nested record. Children are written against Elem. An Object whose
// Expr is its own Param is a query root.
type Object struct {
	Name      string
	Field     string
	Expr      expr.Expr
	Param     *expr.Param
	Elem      *expr.Param
	Children  []Selection
	Constants map[*expr.Param]Literal
}

func (s *Scalar) SelectionName() string { return s.Name }
func (s *List) SelectionName() string   { return s.Name }
func (s *Object) SelectionName() string { return s.Name }

func (*Scalar) selection() {}
func (*List) selection()   {}
func (*Object) selection() {}

// NewRoot returns the root object of a query whose value is bound to p.
func NewRoot(p *expr.Param, children ...Selection) *Object {
	return &Object{Expr: p, Param: p, Elem: p, Children: children}
}

func (o *Object) isRoot() bool { return o.Expr == expr.Expr(o.Param) }

// RequiredServices returns the services sel or any descendant calls, sorted.
func RequiredServices(sel Selection) []string {
	set := map[string]struct{}{}
	collectServices(sel, set)
	return expr.SortedSet(set)
}

func collectServices(sel Selection, set map[string]struct{}) {
	add := func(e expr.Expr) {
		for _, s := range expr.Services(e) {
			set[s] = struct{}{}
		}
	}
	switch s := sel.(type) {
	case *Scalar:
		add(s.Expr)
	case *List:
		add(s.Expr)
		for _, c := range s.Children {
			collectServices(c, set)
		}
	case *Object:
		add(s.Expr)
		for _, c := range s.Children {
			collectServices(c, set)
		}
	}
}

// nodeExpr returns the defining expression and context parameter of sel.
func nodeExpr(sel Selection) (expr.Expr, *expr.Param) {
	switch s := sel.(type) {
	case *Scalar:
		return s.Expr, s.Param
	case *List:
		return s.Expr, s.Param
	case *Object:
		return s.Expr, s.Param
	}
	return nil, nil
}
