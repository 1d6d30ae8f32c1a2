// Package extract finds the field accesses that filter and sort clauses make on a
// list element, so the pushdown projection can carry them as plain columns.
package extract

import (
	"strings"

	"github.com/hanpama/gqlplan/internal/expr"
)

// Extract returns the member chains that Where and OrderBy clauses of e read from a
// parameter of ctxParam's type, keyed by Key of the accessed path. Chains are maximal:
// p.address.city yields "address.city" and not "address". With topLevelOnly only
// the combinator chain of e itself is searched; otherwise clauses nested anywhere in e
// are included. The returned chains are rooted at the clause's own parameter.
func Extract(e expr.Expr, ctxParam *expr.Param, topLevelOnly bool) map[string]expr.Expr {
	out := map[string]expr.Expr{}
	if e == nil || ctxParam == nil {
		return out
	}
	visit := func(fn *expr.Lambda) {
		if fn.Param.T.Same(ctxParam.T) {
			chains(fn.Body, fn.Param.T, []*expr.Param{}, out)
		}
	}
	clauses := func(n expr.Expr) {
		switch n := n.(type) {
		case *expr.Where:
			visit(n.Pred)
		case *expr.OrderBy:
			for _, k := range n.Keys {
				visit(k.Key)
			}
		}
	}
	if topLevelOnly {
		for n := e; n != nil; n = source(n) {
			clauses(n)
		}
		return out
	}
	expr.Inspect(e, func(n expr.Expr) bool {
		clauses(n)
		return true
	})
	return out
}

// source steps down the combinator chain of a list expression.
func source(e expr.Expr) expr.Expr {
	switch n := e.(type) {
	case *expr.Where:
		return n.X
	case *expr.OrderBy:
		return n.X
	case *expr.Select:
		return n.X
	case *expr.Take:
		return n.X
	case *expr.Skip:
		return n.X
	case *expr.ToList:
		return n.X
	}
	return nil
}

// chains collects member chains rooted at free parameters of type t.
func chains(e expr.Expr, t *expr.Type, bound []*expr.Param, out map[string]expr.Expr) {
	expr.Inspect(e, func(n expr.Expr) bool {
		switch n := n.(type) {
		case *expr.Member:
			root, path := expr.MemberPath(n)
			p, ok := root.(*expr.Param)
			if !ok {
				return true
			}
			if p.T.Same(t) && !contains(bound, p) {
				key := Key(path)
				if _, dup := out[key]; !dup {
					out[key] = n
				}
			}
			return false
		case *expr.Lambda:
			chains(n.Body, t, append(bound[:len(bound):len(bound)], n.Param), out)
			return false
		}
		return true
	})
}

// Members returns the member chains rooted at p that occur free in e, keyed like
// Extract. Bare uses of p are not reported.
func Members(e expr.Expr, p *expr.Param) map[string]expr.Expr {
	out := map[string]expr.Expr{}
	if e == nil || p == nil {
		return out
	}
	expr.Inspect(e, func(n expr.Expr) bool {
		switch n := n.(type) {
		case *expr.Member:
			root, path := expr.MemberPath(n)
			if root == expr.Expr(p) {
				key := Key(path)
				if _, dup := out[key]; !dup {
					out[key] = n
				}
				return false
			}
		case *expr.Lambda:
			return n.Param != p
		}
		return true
	})
	return out
}

// Key names a member path. GraphQL names cannot contain ".", so distinct paths never
// share a key: address.city and address_city stay apart.
func Key(path []string) string { return strings.Join(path, ".") }

func contains(ps []*expr.Param, p *expr.Param) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}
