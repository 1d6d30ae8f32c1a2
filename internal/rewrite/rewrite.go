// Package rewrite substitutes sub-expressions of an IR tree.
//
// Every rewrite returns a new tree built through the expr constructors, so a
// replacement whose type does not fit its position fails with expr.ErrTypeMismatch.
// Unchanged subtrees are shared with the input; trees are immutable.
package rewrite

import (
	"fmt"

	"github.com/hanpama/gqlplan/internal/expr"
)

// Mode selects which nodes ReplaceByType rebinds.
type Mode int

const (
	// FreeParams replaces only parameter leaves of the target type that are not bound by
	// a lambda inside the rewritten expression.
	FreeParams Mode = iota
	// AllNodes replaces every node of the target type, including member accesses, calls
	// and lambda-bound parameters. Two independent sub-expressions of the same type are
	// both replaced.
	AllNodes
)

func (m Mode) String() string {
	if m == AllNodes {
		return "all-nodes"
	}
	return "free-params"
}

// matcher decides whether n is replaced. bound lists the lambda parameters in scope.
type matcher func(n expr.Expr, bound []*expr.Param) (expr.Expr, bool)

// ReplaceParam replaces every free occurrence of from with to.
func ReplaceParam(e expr.Expr, from *expr.Param, to expr.Expr) (expr.Expr, error) {
	if e == nil || from == to {
		return e, nil
	}
	if !from.T.Compatible(to.Type()) {
		return nil, fmt.Errorf("%w: cannot replace %s of type %s with %s", expr.ErrTypeMismatch, from.Name, from.T, to.Type())
	}
	return walk(e, nil, func(n expr.Expr, bound []*expr.Param) (expr.Expr, bool) {
		p, ok := n.(*expr.Param)
		if !ok || p != from || isBound(p, bound) {
			return nil, false
		}
		return to, true
	})
}

// ReplaceByType replaces nodes whose type equals t, ignoring nullability, with to.
func ReplaceByType(e expr.Expr, t *expr.Type, to expr.Expr, mode Mode) (expr.Expr, error) {
	if e == nil {
		return nil, nil
	}
	if !t.Compatible(to.Type()) {
		return nil, fmt.Errorf("%w: cannot replace nodes of type %s with %s", expr.ErrTypeMismatch, t, to.Type())
	}
	return walk(e, nil, func(n expr.Expr, bound []*expr.Param) (expr.Expr, bool) {
		if n == to {
			return nil, false
		}
		switch n := n.(type) {
		case *expr.Lambda:
			return nil, false
		case *expr.Param:
			if mode == FreeParams && isBound(n, bound) {
				return nil, false
			}
		default:
			if mode == FreeParams {
				return nil, false
			}
		}
		if !n.Type().Same(t) {
			return nil, false
		}
		return to, true
	})
}

// ReplaceExpr replaces every sub-expression structurally equal to target with to.
func ReplaceExpr(e, target, to expr.Expr) (expr.Expr, error) {
	if e == nil {
		return nil, nil
	}
	if !target.Type().Compatible(to.Type()) {
		return nil, fmt.Errorf("%w: cannot replace %s with %s", expr.ErrTypeMismatch, target.Type(), to.Type())
	}
	return walk(e, nil, func(n expr.Expr, _ []*expr.Param) (expr.Expr, bool) {
		if _, ok := n.(*expr.Lambda); ok || !expr.Equal(n, target) {
			return nil, false
		}
		return to, true
	})
}

func isBound(p *expr.Param, bound []*expr.Param) bool {
	for _, b := range bound {
		if b == p {
			return true
		}
	}
	return false
}

func walk(e expr.Expr, bound []*expr.Param, m matcher) (expr.Expr, error) {
	if r, ok := m(e, bound); ok {
		return r, nil
	}
	switch n := e.(type) {
	case *expr.Param, *expr.Const:
		return e, nil
	case *expr.Member:
		x, err := walk(n.X, bound, m)
		if err != nil || x == n.X {
			return e, err
		}
		return expr.NewMember(x, n.Name)
	case *expr.Call:
		args, changed, err := walkAll(n.Args, bound, m)
		if err != nil || !changed {
			return e, err
		}
		return expr.NewCall(n.Service, n.Method, n.T, args...), nil
	case *expr.Unary:
		x, err := walk(n.X, bound, m)
		if err != nil || x == n.X {
			return e, err
		}
		return expr.NewUnary(n.Op, x)
	case *expr.Binary:
		xs, changed, err := walkAll([]expr.Expr{n.X, n.Y}, bound, m)
		if err != nil || !changed {
			return e, err
		}
		return expr.NewBinary(n.Op, xs[0], xs[1])
	case *expr.Cond:
		xs, changed, err := walkAll([]expr.Expr{n.Test, n.Then, n.Else}, bound, m)
		if err != nil || !changed {
			return e, err
		}
		return expr.NewCond(xs[0], xs[1], xs[2])
	case *expr.Lambda:
		return walkLambda(n, bound, m)
	case *expr.Where:
		x, err := walk(n.X, bound, m)
		if err != nil {
			return nil, err
		}
		pred, err := walkLambda(n.Pred, bound, m)
		if err != nil {
			return nil, err
		}
		if x == n.X && pred == n.Pred {
			return e, nil
		}
		return expr.NewWhere(x, pred)
	case *expr.OrderBy:
		x, err := walk(n.X, bound, m)
		if err != nil {
			return nil, err
		}
		changed := x != n.X
		keys := make([]expr.SortKey, len(n.Keys))
		for i, k := range n.Keys {
			fn, err := walkLambda(k.Key, bound, m)
			if err != nil {
				return nil, err
			}
			changed = changed || fn != k.Key
			keys[i] = expr.SortKey{Key: fn, Desc: k.Desc}
		}
		if !changed {
			return e, nil
		}
		return expr.NewOrderBy(x, keys...)
	case *expr.Select:
		x, err := walk(n.X, bound, m)
		if err != nil {
			return nil, err
		}
		fn, err := walkLambda(n.Fn, bound, m)
		if err != nil {
			return nil, err
		}
		if x == n.X && fn == n.Fn {
			return e, nil
		}
		return expr.NewSelect(x, fn)
	case *expr.New:
		changed := false
		fields := make([]expr.NewField, len(n.Fields))
		for i, f := range n.Fields {
			x, err := walk(f.X, bound, m)
			if err != nil {
				return nil, err
			}
			changed = changed || x != f.X
			fields[i] = expr.NewField{Name: f.Name, X: x}
		}
		if !changed {
			return e, nil
		}
		return expr.NewNew(fields...)
	case *expr.Take:
		xs, changed, err := walkAll([]expr.Expr{n.X, n.N}, bound, m)
		if err != nil || !changed {
			return e, err
		}
		return expr.NewTake(xs[0], xs[1])
	case *expr.Skip:
		xs, changed, err := walkAll([]expr.Expr{n.X, n.N}, bound, m)
		if err != nil || !changed {
			return e, err
		}
		return expr.NewSkip(xs[0], xs[1])
	case *expr.ToList:
		x, err := walk(n.X, bound, m)
		if err != nil || x == n.X {
			return e, err
		}
		return expr.NewToList(x)
	}
	return nil, fmt.Errorf("rewrite: unsupported node %T", e)
}

func walkAll(xs []expr.Expr, bound []*expr.Param, m matcher) ([]expr.Expr, bool, error) {
	out := make([]expr.Expr, len(xs))
	changed := false
	for i, x := range xs {
		r, err := walk(x, bound, m)
		if err != nil {
			return nil, false, err
		}
		changed = changed || r != x
		out[i] = r
	}
	return out, changed, nil
}

func walkLambda(fn *expr.Lambda, bound []*expr.Param, m matcher) (*expr.Lambda, error) {
	body, err := walk(fn.Body, append(bound[:len(bound):len(bound)], fn.Param), m)
	if err != nil {
		return nil, err
	}
	if body == fn.Body {
		return fn, nil
	}
	return expr.NewLambda(fn.Param, body), nil
}
