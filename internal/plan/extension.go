package plan

import (
	"fmt"

	"github.com/hanpama/gqlplan/internal/expr"
)

// Extension rewrites a list field right before its elements are projected. It receives
// the list expression, the record fields about to be built and the element parameter
// those fields are written against, and returns replacements for all three.
type Extension interface {
	BeforeListProjection(list expr.Expr, fields []expr.NewField, param *expr.Param) (expr.Expr, []expr.NewField, *expr.Param, error)
}

// Extensions maps a field identity such as "Query.people" to its extension.
type Extensions map[string]Extension

// ExtensionFunc adapts a function to Extension.
type ExtensionFunc func(list expr.Expr, fields []expr.NewField, param *expr.Param) (expr.Expr, []expr.NewField, *expr.Param, error)

func (f ExtensionFunc) BeforeListProjection(list expr.Expr, fields []expr.NewField, param *expr.Param) (expr.Expr, []expr.NewField, *expr.Param, error) {
	return f(list, fields, param)
}

// Limit caps a list at N elements.
type Limit struct {
	N int64
}

func (l Limit) BeforeListProjection(list expr.Expr, fields []expr.NewField, param *expr.Param) (expr.Expr, []expr.NewField, *expr.Param, error) {
	if l.N < 0 {
		return nil, nil, nil, fmt.Errorf("negative limit %d", l.N)
	}
	take, err := expr.NewTake(list, expr.NewConst(l.N, expr.Int64Type))
	if err != nil {
		return nil, nil, nil, err
	}
	return take, fields, param, nil
}

// DefaultOrder sorts a list by one element field unless the list is already ordered.
// The sort is placed below any Skip and Take of the list, so pagination applies to
// the sorted elements.
type DefaultOrder struct {
	Field string
	Desc  bool
}

func (d DefaultOrder) BeforeListProjection(list expr.Expr, fields []expr.NewField, param *expr.Param) (expr.Expr, []expr.NewField, *expr.Param, error) {
	if ordered(list) {
		return list, fields, param, nil
	}
	var pages []expr.Expr // Skip and Take nodes, outermost first
	inner := list
	for {
		switch n := inner.(type) {
		case *expr.Take:
			pages, inner = append(pages, n), n.X
			continue
		case *expr.Skip:
			pages, inner = append(pages, n), n.X
			continue
		}
		break
	}
	o := expr.NewParam("o", inner.Type().ElemType())
	key, err := expr.NewMember(o, d.Field)
	if err != nil {
		return nil, nil, nil, err
	}
	var sorted expr.Expr
	sorted, err = expr.NewOrderBy(inner, expr.SortKey{Key: expr.NewLambda(o, key), Desc: d.Desc})
	if err != nil {
		return nil, nil, nil, err
	}
	for i := len(pages) - 1; i >= 0; i-- {
		switch n := pages[i].(type) {
		case *expr.Take:
			sorted, err = expr.NewTake(sorted, n.N)
		case *expr.Skip:
			sorted, err = expr.NewSkip(sorted, n.N)
		}
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return sorted, fields, param, nil
}

// ordered reports whether the combinator chain of list already sorts it.
func ordered(list expr.Expr) bool {
	for {
		switch n := list.(type) {
		case *expr.OrderBy:
			return true
		case *expr.Where:
			list = n.X
		case *expr.Take:
			list = n.X
		case *expr.Skip:
			list = n.X
		default:
			return false
		}
	}
}

// Chain applies its extensions in order, each to the output of the previous one.
type Chain []Extension

func (c Chain) BeforeListProjection(list expr.Expr, fields []expr.NewField, param *expr.Param) (expr.Expr, []expr.NewField, *expr.Param, error) {
	var err error
	for _, ext := range c {
		if list, fields, param, err = ext.BeforeListProjection(list, fields, param); err != nil {
			return nil, nil, nil, err
		}
	}
	return list, fields, param, nil
}
