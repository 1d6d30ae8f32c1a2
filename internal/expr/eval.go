package expr

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strings"
)

// Seq is the lazy sequence produced by Select, Where, Take and Skip. An element error
// ends the iteration.
type Seq = iter.Seq2[any, error]

// Caller dispatches service calls during evaluation.
type Caller interface {
	Call(ctx context.Context, service, method string, args []any) (any, error)
}

// Env binds free parameters for Eval.
type Env struct {
	Params map[*Param]any
	Caller Caller
}

// Bind returns a copy of env with p bound to v.
func (env *Env) Bind(p *Param, v any) *Env {
	out := &Env{Params: make(map[*Param]any, len(env.Params)+1), Caller: env.Caller}
	for k, x := range env.Params {
		out.Params[k] = x
	}
	out.Params[p] = v
	return out
}

type scope struct {
	p    *Param
	v    any
	next *scope
}

type evaluator struct {
	ctx context.Context
	env *Env
}

// Eval evaluates e. Sequences in the result may still be lazy; use Materialize or wrap
// the expression in ToList to force them.
func Eval(ctx context.Context, e Expr, env *Env) (any, error) {
	if env == nil {
		env = &Env{}
	}
	ev := &evaluator{ctx: ctx, env: env}
	return ev.eval(e, nil)
}

func (ev *evaluator) lookup(p *Param, s *scope) (any, error) {
	for ; s != nil; s = s.next {
		if s.p == p {
			return s.v, nil
		}
	}
	if v, ok := ev.env.Params[p]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("unbound parameter %s", p.Name)
}

func (ev *evaluator) apply(fn *Lambda, arg any, s *scope) (any, error) {
	return ev.eval(fn.Body, &scope{p: fn.Param, v: arg, next: s})
}

func (ev *evaluator) eval(e Expr, s *scope) (any, error) {
	if err := ev.ctx.Err(); err != nil {
		return nil, err
	}
	switch n := e.(type) {
	case *Param:
		return ev.lookup(n, s)
	case *Const:
		return n.Value, nil
	case *Member:
		x, err := ev.eval(n.X, s)
		if err != nil {
			return nil, err
		}
		return member(x, n.Name)
	case *Call:
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			v, err := ev.eval(a, s)
			if err != nil {
				return nil, err
			}
			if v, err = Materialize(v); err != nil {
				return nil, err
			}
			args[i] = v
		}
		if n.Service == "" {
			return callBuiltin(n.Method, args)
		}
		if ev.env.Caller == nil {
			return nil, fmt.Errorf("service %q is not available", n.Service)
		}
		return ev.env.Caller.Call(ev.ctx, n.Service, n.Method, args)
	case *Unary:
		x, err := ev.eval(n.X, s)
		if err != nil {
			return nil, err
		}
		return unary(n.Op, x)
	case *Binary:
		return ev.binary(n, s)
	case *Cond:
		t, err := ev.eval(n.Test, s)
		if err != nil {
			return nil, err
		}
		if truthy(t) {
			return ev.eval(n.Then, s)
		}
		return ev.eval(n.Else, s)
	case *Lambda:
		return nil, fmt.Errorf("lambda %s cannot be evaluated as a value", n.Param.Name)
	case *Where:
		src, err := ev.seq(n.X, s)
		if err != nil || src == nil {
			return nil, err
		}
		return Seq(func(yield func(any, error) bool) {
			for v, err := range src {
				if err != nil {
					yield(nil, err)
					return
				}
				ok, err := ev.apply(n.Pred, v, s)
				if err != nil {
					yield(nil, err)
					return
				}
				if truthy(ok) && !yield(v, nil) {
					return
				}
			}
		}), nil
	case *OrderBy:
		return ev.orderBy(n, s)
	case *Select:
		src, err := ev.seq(n.X, s)
		if err != nil || src == nil {
			return nil, err
		}
		return Seq(func(yield func(any, error) bool) {
			for v, err := range src {
				if err != nil {
					yield(nil, err)
					return
				}
				out, err := ev.apply(n.Fn, v, s)
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(out, nil) {
					return
				}
			}
		}), nil
	case *New:
		rec := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			v, err := ev.eval(f.X, s)
			if err != nil {
				return nil, err
			}
			rec[f.Name] = v
		}
		return rec, nil
	case *Take:
		return ev.window(n.X, n.N, s, true)
	case *Skip:
		return ev.window(n.X, n.N, s, false)
	case *ToList:
		x, err := ev.eval(n.X, s)
		if err != nil || x == nil {
			return nil, err
		}
		src, ok := toSeq(x)
		if !ok {
			return nil, fmt.Errorf("cannot materialize %T", x)
		}
		return collect(src)
	}
	return nil, fmt.Errorf("cannot evaluate %T", e)
}

func (ev *evaluator) seq(e Expr, s *scope) (Seq, error) {
	x, err := ev.eval(e, s)
	if err != nil || x == nil {
		return nil, err
	}
	src, ok := toSeq(x)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", x)
	}
	return src, nil
}

func (ev *evaluator) window(x, n Expr, s *scope, take bool) (any, error) {
	src, err := ev.seq(x, s)
	if err != nil || src == nil {
		return nil, err
	}
	nv, err := ev.eval(n, s)
	if err != nil {
		return nil, err
	}
	count, ok := toInt64(nv)
	if !ok {
		return nil, fmt.Errorf("expected an integer count, got %T", nv)
	}
	return Seq(func(yield func(any, error) bool) {
		var i int64
		for v, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			if take && i >= count {
				return
			}
			i++
			if !take && i <= count {
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}), nil
}

func (ev *evaluator) orderBy(n *OrderBy, s *scope) (any, error) {
	src, err := ev.seq(n.X, s)
	if err != nil || src == nil {
		return nil, err
	}
	items, err := collect(src)
	if err != nil {
		return nil, err
	}
	keys := make([][]any, len(items))
	for i, item := range items {
		keys[i] = make([]any, len(n.Keys))
		for j, k := range n.Keys {
			if keys[i][j], err = ev.apply(k.Key, item, s); err != nil {
				return nil, err
			}
		}
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for j, k := range n.Keys {
			c := Compare(keys[idx[a]][j], keys[idx[b]][j])
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	out := make([]any, len(items))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out, nil
}

func (ev *evaluator) binary(n *Binary, s *scope) (any, error) {
	x, err := ev.eval(n.X, s)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case OpAnd:
		if !truthy(x) {
			return false, nil
		}
		y, err := ev.eval(n.Y, s)
		return truthy(y), err
	case OpOr:
		if truthy(x) {
			return true, nil
		}
		y, err := ev.eval(n.Y, s)
		return truthy(y), err
	}
	y, err := ev.eval(n.Y, s)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case OpEq:
		return Compare(x, y) == 0 && (x == nil) == (y == nil), nil
	case OpNe:
		return Compare(x, y) != 0 || (x == nil) != (y == nil), nil
	case OpLt, OpLe, OpGt, OpGe:
		if x == nil || y == nil {
			return false, nil
		}
		c := Compare(x, y)
		switch n.Op {
		case OpLt:
			return c < 0, nil
		case OpLe:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	return arith(n.Op, x, y)
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func member(x any, name string) (any, error) {
	switch v := x.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v[name], nil
	}
	rv := reflect.ValueOf(x)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			mv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if !mv.IsValid() {
				return nil, nil
			}
			return mv.Interface(), nil
		}
	case reflect.Struct:
		f := rv.FieldByNameFunc(func(s string) bool { return strings.EqualFold(s, name) })
		if f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("cannot read field %q of %T", name, x)
}

func toSeq(x any) (Seq, bool) {
	switch v := x.(type) {
	case Seq:
		return v, true
	case []any:
		return func(yield func(any, error) bool) {
			for _, item := range v {
				if !yield(item, nil) {
					return
				}
			}
		}, true
	}
	rv := reflect.ValueOf(x)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	return func(yield func(any, error) bool) {
		for i := 0; i < rv.Len(); i++ {
			if !yield(rv.Index(i).Interface(), nil) {
				return
			}
		}
	}, true
}

func collect(src Seq) ([]any, error) {
	out := []any{}
	for v, err := range src {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Materialize forces every lazy sequence reachable from v, returning plain maps and
// []any slices. Records are copied, never modified in place.
func Materialize(v any) (any, error) {
	switch x := v.(type) {
	case Seq:
		items, err := collect(x)
		if err != nil {
			return nil, err
		}
		return materializeList(items)
	case []any:
		return materializeList(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			m, err := Materialize(item)
			if err != nil {
				return nil, err
			}
			out[k] = m
		}
		return out, nil
	}
	return v, nil
}

func materializeList(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		m, err := Materialize(item)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

func callBuiltin(name string, args []any) (any, error) {
	str := func(i int) (string, bool) {
		if i >= len(args) {
			return "", false
		}
		s, ok := args[i].(string)
		return s, ok
	}
	switch name {
	case "startsWith", "endsWith", "contains":
		a, ok1 := str(0)
		b, ok2 := str(1)
		if !ok1 || !ok2 {
			return false, nil
		}
		switch name {
		case "startsWith":
			return strings.HasPrefix(a, b), nil
		case "endsWith":
			return strings.HasSuffix(a, b), nil
		}
		return strings.Contains(a, b), nil
	case "lower", "upper":
		a, ok := str(0)
		if !ok {
			return nil, nil
		}
		if name == "lower" {
			return strings.ToLower(a), nil
		}
		return strings.ToUpper(a), nil
	case "size":
		if len(args) != 1 || args[0] == nil {
			return nil, nil
		}
		if s, ok := args[0].(string); ok {
			return int64(len([]rune(s))), nil
		}
		src, ok := toSeq(args[0])
		if !ok {
			return nil, fmt.Errorf("size of %T", args[0])
		}
		items, err := collect(src)
		return int64(len(items)), err
	}
	return nil, fmt.Errorf("unknown function %q", name)
}
