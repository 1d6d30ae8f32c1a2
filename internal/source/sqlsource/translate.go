package sqlsource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanpama/gqlplan/internal/expr"
)

// ErrUnsupported reports an expression that has no SQL rendition. The source evaluates
// such expressions in memory over the rows of the tables they read.
var ErrUnsupported = errors.New("not expressible in SQL")

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// Column is one column of a statement result.
type Column struct {
	Name string
	Type *expr.Type
}

// Statement is a SELECT over one table.
type Statement struct {
	SQL  string
	Args []any

	Columns []Column
	// Fixed holds projected fields that do not depend on the row; they are added to
	// every result row.
	Fixed map[string]any
	// Scalar marks a projection to a single unnamed value: rows are returned as the
	// value of Columns[0] instead of records.
	Scalar bool
}

// listChain is a list expression split into the clauses of a SELECT.
type listChain struct {
	table  string
	elem   *expr.Type
	wheres []*expr.Lambda
	order  *expr.OrderBy
	skip   expr.Expr
	take   expr.Expr
	sel    *expr.Select
}

func (src *Source) chain(e expr.Expr, root *expr.Param) (*listChain, error) {
	c := &listChain{}
	x := e
	if n, ok := x.(*expr.ToList); ok {
		x = n.X
	}
	if n, ok := x.(*expr.Select); ok {
		c.sel, x = n, n.X
	}
	if n, ok := x.(*expr.Take); ok {
		c.take, x = n.N, n.X
	}
	if n, ok := x.(*expr.Skip); ok {
		c.skip, x = n.N, n.X
	}
	if n, ok := x.(*expr.OrderBy); ok {
		c.order, x = n, n.X
	}
	for {
		n, ok := x.(*expr.Where)
		if !ok {
			break
		}
		c.wheres = append(c.wheres, n.Pred)
		x = n.X
	}
	m, ok := x.(*expr.Member)
	if !ok || m.X != expr.Expr(root) {
		return nil, unsupported("%s is not a table scan", expr.String(x))
	}
	table, ok := src.tables[m.Name]
	if !ok {
		return nil, unsupported("root field %s has no table", m.Name)
	}
	c.table, c.elem = table, m.Type().ElemType()
	return c, nil
}

// Translate renders a list expression reading a root table field as one SELECT. It
// returns an error wrapping ErrUnsupported when some clause has no SQL rendition.
func (src *Source) Translate(ctx context.Context, e expr.Expr, root *expr.Param, consts map[*expr.Param]any) (*Statement, error) {
	c, err := src.chain(e, root)
	if err != nil {
		return nil, err
	}
	a := &args{d: src.dialect}
	st := &Statement{}

	var b strings.Builder
	b.WriteString("SELECT ")
	var cols []string
	switch {
	case c.sel == nil:
		cols, st.Columns = recordColumns(c.elem)
	default:
		w := &writer{d: src.dialect, args: a, elem: c.sel.Fn.Param, consts: consts}
		cols, err = src.projection(ctx, w, c.sel.Fn, consts, st)
		if err != nil {
			return nil, err
		}
	}
	if len(cols) == 0 {
		cols = []string{"1"}
	}
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(c.table))

	// Placeholders are numbered in text order, so clauses are rendered in order.
	if len(c.wheres) > 0 {
		conds := make([]string, len(c.wheres))
		for i := len(c.wheres) - 1; i >= 0; i-- {
			pred := c.wheres[i]
			w := &writer{d: src.dialect, args: a, elem: pred.Param, consts: consts}
			s, err := w.write(pred.Body)
			if err != nil {
				return nil, err
			}
			conds[len(c.wheres)-1-i] = s
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	if c.order != nil {
		keys := make([]string, len(c.order.Keys))
		for i, k := range c.order.Keys {
			w := &writer{d: src.dialect, args: a, elem: k.Key.Param, consts: consts}
			s, err := w.write(k.Key.Body)
			if err != nil {
				return nil, err
			}
			// Nulls sort before every value.
			if k.Desc {
				s += " DESC NULLS LAST"
			} else {
				s += " ASC NULLS FIRST"
			}
			keys[i] = s
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(keys, ", "))
	}
	if c.take != nil || c.skip != nil {
		b.WriteString(" LIMIT ")
		if c.take != nil {
			s, err := countArg(a, c.take, consts)
			if err != nil {
				return nil, err
			}
			b.WriteString(s)
		} else {
			b.WriteString(src.dialect.Unlimited)
		}
		if c.skip != nil {
			s, err := countArg(a, c.skip, consts)
			if err != nil {
				return nil, err
			}
			b.WriteString(" OFFSET ")
			b.WriteString(s)
		}
	}
	st.SQL, st.Args = b.String(), a.vals
	return st, nil
}

// recordColumns selects every scalar field of a record.
func recordColumns(t *expr.Type) ([]string, []Column) {
	var cols []string
	var out []Column
	for _, f := range t.Fields {
		if !isScalar(f.Type) {
			continue
		}
		cols = append(cols, quoteIdent(f.Name))
		out = append(out, Column{Name: f.Name, Type: f.Type})
	}
	return cols, out
}

// projection renders the select list of a Select. Fields that do not read the row
// are evaluated once and kept out of the statement.
func (src *Source) projection(ctx context.Context, w *writer, fn *expr.Lambda, consts map[*expr.Param]any, st *Statement) ([]string, error) {
	if fn.Body == expr.Expr(fn.Param) {
		cols, columns := recordColumns(fn.Param.T)
		st.Columns = columns
		return cols, nil
	}
	n, ok := fn.Body.(*expr.New)
	if !ok {
		s, err := w.write(fn.Body)
		if err != nil {
			return nil, err
		}
		st.Scalar = true
		st.Columns = []Column{{Name: "value", Type: fn.Body.Type()}}
		return []string{s + " AS " + quoteIdent("value")}, nil
	}
	var cols []string
	for _, f := range n.Fields {
		if !expr.References(f.X, fn.Param) {
			v, err := expr.Eval(ctx, f.X, &expr.Env{Params: consts})
			if err != nil {
				return nil, err
			}
			if v, err = expr.Materialize(v); err != nil {
				return nil, err
			}
			if st.Fixed == nil {
				st.Fixed = map[string]any{}
			}
			st.Fixed[f.Name] = v
			continue
		}
		if !isScalar(f.X.Type()) {
			return nil, unsupported("field %s of type %s", f.Name, f.X.Type())
		}
		s, err := w.write(f.X)
		if err != nil {
			return nil, err
		}
		cols = append(cols, s+" AS "+quoteIdent(f.Name))
		st.Columns = append(st.Columns, Column{Name: f.Name, Type: f.X.Type()})
	}
	return cols, nil
}

func countArg(a *args, n expr.Expr, consts map[*expr.Param]any) (string, error) {
	var v any
	switch n := n.(type) {
	case *expr.Const:
		v = n.Value
	case *expr.Param:
		var ok bool
		if v, ok = consts[n]; !ok {
			return "", unsupported("unbound count %s", n.Name)
		}
	default:
		return "", unsupported("count %s", expr.String(n))
	}
	var count int64
	switch c := v.(type) {
	case int64:
		count = c
	case int32:
		count = int64(c)
	case int16:
		count = int64(c)
	case int:
		count = int64(c)
	default:
		return "", fmt.Errorf("expected an integer count, got %T", v)
	}
	return a.add(max(count, 0), expr.Int64Type), nil
}

func isScalar(t *expr.Type) bool {
	switch t.Kind {
	case expr.KindRecord, expr.KindList, expr.KindAny:
		return false
	}
	return true
}

// writer renders scalar expressions over the columns of one row.
type writer struct {
	d      *Dialect
	args   *args
	elem   *expr.Param
	consts map[*expr.Param]any
}

var sqlOps = map[expr.Op]string{
	expr.OpEq: "=", expr.OpNe: "<>", expr.OpLt: "<", expr.OpLe: "<=", expr.OpGt: ">", expr.OpGe: ">=",
	expr.OpAnd: "AND", expr.OpOr: "OR",
	expr.OpAdd: "+", expr.OpSub: "-", expr.OpMul: "*", expr.OpDiv: "/", expr.OpMod: "%",
}

func (w *writer) write(e expr.Expr) (string, error) {
	switch n := e.(type) {
	case *expr.Const:
		if n.Value == nil {
			return "NULL", nil
		}
		return w.args.add(n.Value, n.T), nil
	case *expr.Param:
		v, ok := w.consts[n]
		if !ok {
			return "", unsupported("parameter %s", n.Name)
		}
		if v == nil {
			return "NULL", nil
		}
		return w.args.add(v, n.T), nil
	case *expr.Member:
		if n.X != expr.Expr(w.elem) || !isScalar(n.T) {
			return "", unsupported("member %s", expr.String(n))
		}
		return quoteIdent(n.Name), nil
	case *expr.Unary:
		if n.Op == expr.OpNot {
			return w.concat("(NOT ", n.X, ")")
		}
		return w.concat("(-", n.X, ")")
	case *expr.Binary:
		return w.binary(n)
	case *expr.Cond:
		return w.concat("(CASE WHEN ", n.Test, " THEN ", n.Then, " ELSE ", n.Else, " END)")
	case *expr.Call:
		if n.Service != "" {
			return "", unsupported("service call %s.%s", n.Service, n.Method)
		}
		return w.builtin(n)
	}
	return "", unsupported("%s", expr.String(e))
}

func (w *writer) isNull(e expr.Expr) bool {
	switch n := e.(type) {
	case *expr.Const:
		return n.Value == nil
	case *expr.Param:
		v, ok := w.consts[n]
		return ok && v == nil
	}
	return false
}

func (w *writer) binary(n *expr.Binary) (string, error) {
	// Comparisons with null follow the in-memory semantics: null equals only null and
	// orders against nothing.
	if n.Op == expr.OpEq || n.Op == expr.OpNe {
		for _, pair := range [][2]expr.Expr{{n.X, n.Y}, {n.Y, n.X}} {
			if w.isNull(pair[1]) {
				x, err := w.write(pair[0])
				if err != nil {
					return "", err
				}
				if n.Op == expr.OpEq {
					return "(" + x + " IS NULL)", nil
				}
				return "(" + x + " IS NOT NULL)", nil
			}
		}
	}
	nullable := n.X.Type().Nullable || n.Y.Type().Nullable
	switch n.Op {
	case expr.OpEq:
		if nullable {
			return w.concat("(", n.X, " "+w.d.Same+" ", n.Y, ")")
		}
	case expr.OpNe:
		if nullable {
			return w.concat("(", n.X, " "+w.d.Distinct+" ", n.Y, ")")
		}
	case expr.OpLt, expr.OpLe, expr.OpGt, expr.OpGe:
		if nullable {
			parts := []any{"("}
			for _, x := range []expr.Expr{n.X, n.Y} {
				if x.Type().Nullable {
					parts = append(parts, x, " IS NOT NULL AND ")
				}
			}
			parts = append(parts, n.X, " "+sqlOps[n.Op]+" ", n.Y, ")")
			return w.concat(parts...)
		}
	case expr.OpAdd:
		if n.T.Kind == expr.KindString {
			return w.concat("(", n.X, " || ", n.Y, ")")
		}
	}
	op, ok := sqlOps[n.Op]
	if !ok {
		return "", unsupported("operator %s", n.Op)
	}
	return w.concat("(", n.X, " "+op+" ", n.Y, ")")
}

var builtinArity = map[string]int{"startsWith": 2, "endsWith": 2, "contains": 2, "lower": 1, "upper": 1, "size": 1}

// builtin renders a built-in function. An argument used twice is rendered twice so
// that positional placeholders stay in order.
func (w *writer) builtin(n *expr.Call) (string, error) {
	if want, ok := builtinArity[n.Method]; !ok || want != len(n.Args) {
		return "", unsupported("function %s/%d", n.Method, len(n.Args))
	}
	a := n.Args
	switch n.Method {
	case "startsWith":
		return w.concat("(substr(", a[0], ", 1, length(", a[1], ")) = ", a[1], ")")
	case "endsWith":
		return w.concat("(length(", a[0], ") >= length(", a[1], ") AND substr(", a[0], ", length(", a[0], ") - length(", a[1], ") + 1) = ", a[1], ")")
	case "contains":
		h, err := w.write(a[0])
		if err != nil {
			return "", err
		}
		needle, err := w.write(a[1])
		if err != nil {
			return "", err
		}
		return "(" + w.d.Position(h, needle) + " > 0)", nil
	case "lower", "upper":
		return w.concat(n.Method+"(", a[0], ")")
	}
	if a[0].Type().Kind != expr.KindString {
		return "", unsupported("size of %s", a[0].Type())
	}
	return w.concat("length(", a[0], ")")
}

// concat renders parts in order: strings verbatim and expressions through write.
func (w *writer) concat(parts ...any) (string, error) {
	var b strings.Builder
	for _, p := range parts {
		switch p := p.(type) {
		case string:
			b.WriteString(p)
		case expr.Expr:
			s, err := w.write(p)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
	}
	return b.String(), nil
}
