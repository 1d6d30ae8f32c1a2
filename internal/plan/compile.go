package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hanpama/gqlplan/internal/coerce"
	"github.com/hanpama/gqlplan/internal/expr"
	"github.com/hanpama/gqlplan/internal/extract"
	"github.com/hanpama/gqlplan/internal/rewrite"
)

// Pass selects what a compilation may emit.
type Pass int

const (
	// PushdownOnly leaves out every subtree that requires a service.
	PushdownOnly Pass = iota
	// Full compiles every requested field.
	Full
)

func (p Pass) String() string {
	if p == Full {
		return "full"
	}
	return "pushdown"
}

// hiddenPrefix marks columns the pushdown pass adds for its own use. GraphQL names
// cannot contain "$", so hidden columns never collide with requested fields, __typename
// included.
const hiddenPrefix = "$"

// Context is the ambient value a selection is compiled against.
type Context struct {
	Expr expr.Expr
	// Materialized marks Expr as the materialized pushdown result of the selection
	// being compiled. Fields found on it are read instead of derived again.
	Materialized bool
}

// Result is the outcome of compiling one selection. A result without an expression is
// empty: nothing was requested, or everything requested is deferred to a service.
type Result struct {
	Expr      expr.Expr
	Services  []string
	Constants map[*expr.Param]any
}

func (r Result) Empty() bool { return r.Expr == nil }

// Compiler turns selections into IR. It holds no per-query state and is safe for
// concurrent use once built.
type Compiler struct {
	registry   *coerce.Registry
	extensions Extensions
}

func NewCompiler(registry *coerce.Registry, extensions Extensions) *Compiler {
	if registry == nil {
		registry = coerce.NewRegistry()
	}
	return &Compiler{registry: registry, extensions: extensions}
}

// Compile compiles sel against ctx.
func (c *Compiler) Compile(sel Selection, pass Pass, ctx Context) (Result, error) {
	return c.compile(sel, pass, ctx, false)
}

// compile with force set emits a projection even when no requested field survives, so
// that deferred fields keep their inputs and their list cardinality.
func (c *Compiler) compile(sel Selection, pass Pass, ctx Context, force bool) (Result, error) {
	var (
		res Result
		err error
	)
	switch s := sel.(type) {
	case *Scalar:
		res, err = c.scalar(s, pass, ctx)
	case *List:
		res, err = c.list(s, pass, ctx, force)
	case *Object:
		res, err = c.object(s, pass, ctx, force)
	default:
		return Result{}, fmt.Errorf("unknown selection %T", sel)
	}
	if err != nil {
		if name := sel.SelectionName(); name != "" {
			return Result{}, fmt.Errorf("%s: %w", name, err)
		}
		return Result{}, err
	}
	return res, nil
}

func (c *Compiler) scalar(s *Scalar, pass Pass, ctx Context) (Result, error) {
	consts, err := c.coerceConstants(s.Constants)
	if err != nil {
		return Result{}, err
	}
	res := Result{Services: expr.Services(s.Expr), Constants: consts}
	if pass == PushdownOnly && len(res.Services) > 0 {
		return res, nil
	}
	if ctx.Materialized && len(res.Services) == 0 && hasField(ctx.Expr, s.Name) {
		res.Expr, err = expr.NewMember(ctx.Expr, s.Name)
		return res, err
	}
	res.Expr, err = rebase(s.Expr, s.Param, ctx)
	return res, err
}

func (c *Compiler) list(l *List, pass Pass, ctx Context, force bool) (Result, error) {
	consts, err := c.coerceConstants(l.Constants)
	if err != nil {
		return Result{}, err
	}
	res := Result{Services: RequiredServices(l), Constants: consts}
	if pass == PushdownOnly && len(expr.Services(l.Expr)) > 0 {
		return res, nil
	}

	var (
		listCtx  expr.Expr
		elem     = l.Elem
		childCtx = Context{Expr: l.Elem}
	)
	fromResult := ctx.Materialized && hasField(ctx.Expr, l.Name)
	if fromResult {
		if listCtx, err = expr.NewMember(ctx.Expr, l.Name); err != nil {
			return Result{}, err
		}
		elem = expr.NewParam(l.Elem.Name, listCtx.Type().ElemType())
		childCtx = Context{Expr: elem, Materialized: true}
	} else if listCtx, err = rebase(l.Expr, l.Param, ctx); err != nil {
		return Result{}, err
	}

	fields, deferred, err := c.fields(l.Children, pass, childCtx, &res)
	if err != nil {
		return Result{}, err
	}
	if pass == PushdownOnly && (len(fields) > 0 || force) {
		hidden := map[string]expr.Expr{}
		for key, chain := range extract.Extract(l.Expr, l.Elem, true) {
			if hidden[key], err = rewrite.ReplaceByType(chain, l.Elem.T, l.Elem, rewrite.FreeParams); err != nil {
				return Result{}, err
			}
		}
		if fields, err = c.withDependencies(fields, hidden, deferred, childCtx, &res); err != nil {
			return Result{}, err
		}
	}
	if len(fields) == 0 && !force {
		return res, nil
	}

	// Paging and other extensions already shaped a list read from the pushdown result.
	if ext := c.extensions[l.Field]; ext != nil && !fromResult {
		if listCtx, fields, elem, err = ext.BeforeListProjection(listCtx, fields, elem); err != nil {
			return Result{}, err
		}
	}
	rec, err := expr.NewNew(fields...)
	if err != nil {
		return Result{}, err
	}
	sel, err := expr.NewSelect(listCtx, expr.NewLambda(elem, rec))
	if err != nil {
		return Result{}, err
	}
	res.Expr = sel
	if pass == Full && ctx.Materialized {
		res.Expr, err = expr.NewToList(sel)
	}
	return res, err
}

func (c *Compiler) object(o *Object, pass Pass, ctx Context, force bool) (Result, error) {
	consts, err := c.coerceConstants(o.Constants)
	if err != nil {
		return Result{}, err
	}
	res := Result{Services: RequiredServices(o), Constants: consts}
	if pass == PushdownOnly && len(expr.Services(o.Expr)) > 0 {
		return res, nil
	}

	var childCtx Context
	switch {
	case o.isRoot():
		childCtx = ctx
	case ctx.Materialized && hasField(ctx.Expr, o.Name):
		m, err := expr.NewMember(ctx.Expr, o.Name)
		if err != nil {
			return Result{}, err
		}
		childCtx = Context{Expr: m, Materialized: true}
	default:
		x, err := rebase(o.Expr, o.Param, ctx)
		if err != nil {
			return Result{}, err
		}
		childCtx = Context{Expr: x}
	}

	fields, deferred, err := c.fields(o.Children, pass, childCtx, &res)
	if err != nil {
		return Result{}, err
	}
	if pass == PushdownOnly && (len(fields) > 0 || force) {
		if fields, err = c.withDependencies(fields, nil, deferred, childCtx, &res); err != nil {
			return Result{}, err
		}
	}
	if len(fields) == 0 && !force {
		return res, nil
	}
	rec, err := expr.NewNew(fields...)
	if err != nil {
		return Result{}, err
	}
	res.Expr = rec
	if !o.isRoot() && childCtx.Expr.Type().Nullable {
		present, err := expr.NewBinary(expr.OpNe, childCtx.Expr, expr.Null())
		if err != nil {
			return Result{}, err
		}
		res.Expr, err = expr.NewCond(present, rec, expr.Null())
		return res, err
	}
	return res, nil
}

// fields compiles sels and returns the non-empty ones as record fields together with
// the selections deferred to a service.
func (c *Compiler) fields(sels []Selection, pass Pass, ctx Context, res *Result) ([]expr.NewField, []Selection, error) {
	var (
		fields   []expr.NewField
		deferred []Selection
	)
	for _, sel := range sels {
		r, err := c.compile(sel, pass, ctx, false)
		if err != nil {
			return nil, nil, err
		}
		res.Constants = mergeConstants(res.Constants, r.Constants)
		if r.Empty() {
			if len(r.Services) > 0 {
				deferred = append(deferred, sel)
			}
			continue
		}
		fields = append(fields, expr.NewField{Name: sel.SelectionName(), X: r.Expr})
	}
	return fields, deferred, nil
}

// withDependencies appends the hidden columns of a pushdown projection: the given
// extracted accesses, the inputs of deferred service fields and, for deferred lists and
// objects, a projection of their own dependencies under their response name.
func (c *Compiler) withDependencies(fields []expr.NewField, hidden map[string]expr.Expr, deferred []Selection, ctx Context, res *Result) ([]expr.NewField, error) {
	if hidden == nil {
		hidden = map[string]expr.Expr{}
	}
	var projections []expr.NewField
	for _, sel := range deferred {
		e, p := nodeExpr(sel)
		_, scalar := sel.(*Scalar)
		if !scalar && len(expr.Services(e)) == 0 {
			r, err := c.compile(sel, PushdownOnly, ctx, true)
			if err != nil {
				return nil, err
			}
			res.Constants = mergeConstants(res.Constants, r.Constants)
			projections = append(projections, expr.NewField{Name: sel.SelectionName(), X: r.Expr})
			continue
		}
		for key, m := range extract.Members(e, p) {
			if _, ok := hidden[key]; ok {
				continue
			}
			x, err := rebase(m, p, ctx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", sel.SelectionName(), err)
			}
			hidden[key] = x
		}
	}

	out := append([]expr.NewField(nil), fields...)
	for _, key := range sortedKeys(hidden) {
		out = append(out, expr.NewField{Name: hiddenColumn(key), X: hidden[key]})
	}
	return append(out, projections...), nil
}

// rebase rewrites e, written against p, to read from ctx. Over a materialized context
// the member chains of p that were pushed down are read from their columns.
func rebase(e expr.Expr, p *expr.Param, ctx Context) (expr.Expr, error) {
	if e == nil || p == nil || ctx.Expr == expr.Expr(p) {
		return e, nil
	}
	if ctx.Materialized {
		deps := extract.Members(e, p)
		keys := sortedKeys(deps)
		sort.SliceStable(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
		for _, key := range keys {
			col := columnName(ctx.Expr.Type(), key)
			if col == "" {
				return nil, fmt.Errorf("%s is not carried by the pushdown result", expr.String(deps[key]))
			}
			m, err := expr.NewMember(ctx.Expr, col)
			if err != nil {
				return nil, err
			}
			if e, err = rewrite.ReplaceExpr(e, deps[key], m); err != nil {
				return nil, err
			}
		}
	}
	return rewrite.ReplaceParam(e, p, ctx.Expr)
}

// hiddenColumn names the column carrying the member path key.
func hiddenColumn(key string) string { return hiddenPrefix + key }

// columnName returns the hidden column of a materialized record holding the member path
// key, or "" when the pushdown did not carry it. Requested fields are never used: a
// field of the same name may be an alias of another expression.
func columnName(t *expr.Type, key string) string {
	if t.Kind != expr.KindRecord || t.FieldType(hiddenColumn(key)) == nil {
		return ""
	}
	return hiddenColumn(key)
}

func hasField(e expr.Expr, name string) bool {
	t := e.Type()
	return t.Kind == expr.KindRecord && t.FieldType(name) != nil
}

func (c *Compiler) coerceConstants(lits map[*expr.Param]Literal) (map[*expr.Param]any, error) {
	if len(lits) == 0 {
		return nil, nil
	}
	out := make(map[*expr.Param]any, len(lits))
	for p, lit := range lits {
		t := lit.Type
		if t == nil {
			t = p.T
		}
		v, err := c.registry.Coerce(lit.Value, t)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", strings.TrimPrefix(p.Name, "$"), err)
		}
		out[p] = v
	}
	return out, nil
}

// mergeConstants returns a new map holding the bindings of a and b.
func mergeConstants(a, b map[*expr.Param]any) map[*expr.Param]any {
	if len(b) == 0 {
		return a
	}
	out := make(map[*expr.Param]any, len(a)+len(b))
	for p, v := range a {
		out[p] = v
	}
	for p, v := range b {
		out[p] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
