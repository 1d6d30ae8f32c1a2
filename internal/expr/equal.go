package expr

import (
	"reflect"
)

// Equal reports whether a and b are structurally equal. Lambda parameters are compared
// up to renaming; free parameters must be the same variable.
func Equal(a, b Expr) bool {
	return equal(a, b, nil)
}

type paramPair struct {
	a, b *Param
	next *paramPair
}

func (p *paramPair) lookup(a, b *Param) (bound, same bool) {
	for ; p != nil; p = p.next {
		if p.a == a || p.b == b {
			return true, p.a == a && p.b == b
		}
	}
	return false, false
}

func equal(a, b Expr, env *paramPair) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *Param:
		y, ok := b.(*Param)
		if !ok {
			return false
		}
		if bound, same := env.lookup(x, y); bound {
			return same
		}
		return x == y
	case *Const:
		y, ok := b.(*Const)
		return ok && x.T.Equal(y.T) && reflect.DeepEqual(x.Value, y.Value)
	case *Member:
		y, ok := b.(*Member)
		return ok && x.Name == y.Name && equal(x.X, y.X, env)
	case *Call:
		y, ok := b.(*Call)
		if !ok || x.Service != y.Service || x.Method != y.Method || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !equal(x.Args[i], y.Args[i], env) {
				return false
			}
		}
		return x.T.Equal(y.T)
	case *Unary:
		y, ok := b.(*Unary)
		return ok && x.Op == y.Op && equal(x.X, y.X, env)
	case *Binary:
		y, ok := b.(*Binary)
		return ok && x.Op == y.Op && equal(x.X, y.X, env) && equal(x.Y, y.Y, env)
	case *Cond:
		y, ok := b.(*Cond)
		return ok && equal(x.Test, y.Test, env) && equal(x.Then, y.Then, env) && equal(x.Else, y.Else, env)
	case *Lambda:
		y, ok := b.(*Lambda)
		if !ok || !x.Param.T.Equal(y.Param.T) {
			return false
		}
		return equal(x.Body, y.Body, &paramPair{a: x.Param, b: y.Param, next: env})
	case *Where:
		y, ok := b.(*Where)
		return ok && equal(x.X, y.X, env) && equal(x.Pred, y.Pred, env)
	case *OrderBy:
		y, ok := b.(*OrderBy)
		if !ok || len(x.Keys) != len(y.Keys) || !equal(x.X, y.X, env) {
			return false
		}
		for i := range x.Keys {
			if x.Keys[i].Desc != y.Keys[i].Desc || !equal(x.Keys[i].Key, y.Keys[i].Key, env) {
				return false
			}
		}
		return true
	case *Select:
		y, ok := b.(*Select)
		return ok && equal(x.X, y.X, env) && equal(x.Fn, y.Fn, env)
	case *New:
		y, ok := b.(*New)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if x.Fields[i].Name != y.Fields[i].Name || !equal(x.Fields[i].X, y.Fields[i].X, env) {
				return false
			}
		}
		return true
	case *Take:
		y, ok := b.(*Take)
		return ok && equal(x.X, y.X, env) && equal(x.N, y.N, env)
	case *Skip:
		y, ok := b.(*Skip)
		return ok && equal(x.X, y.X, env) && equal(x.N, y.N, env)
	case *ToList:
		y, ok := b.(*ToList)
		return ok && equal(x.X, y.X, env)
	}
	return false
}
