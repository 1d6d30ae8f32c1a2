package binder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/overloads"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/hanpama/gqlplan/internal/coerce"
	"github.com/hanpama/gqlplan/internal/expr"
)

// filterCompiler compiles CEL predicates over the fields of a record into IR. Each
// record field is declared as a top-level variable, so "age >= 18 && city == 'Seoul'"
// filters people by their age and city.
type filterCompiler struct {
	registry *coerce.Registry

	mu   sync.Mutex
	envs map[string]*cel.Env // keyed by record type name
}

func newFilterCompiler() *filterCompiler {
	return &filterCompiler{registry: coerce.NewRegistry(), envs: map[string]*cel.Env{}}
}

func (fc *filterCompiler) env(t *expr.Type) (*cel.Env, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if env, ok := fc.envs[t.Name]; ok && t.Name != "" {
		return env, nil
	}
	opts := make([]cel.EnvOption, 0, len(t.Fields))
	for _, f := range t.Fields {
		opts = append(opts, cel.Variable(f.Name, celType(f.Type)))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, err
	}
	if t.Name != "" {
		fc.envs[t.Name] = env
	}
	return env, nil
}

// compile type-checks src and returns its predicate over p.
func (fc *filterCompiler) compile(src string, p *expr.Param) (expr.Expr, error) {
	if p.T.Kind != expr.KindRecord {
		return nil, fmt.Errorf("cannot filter elements of type %s", p.T)
	}
	env, err := fc.env(p.T)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(src)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%q is of type %s, not bool", src, ast.OutputType())
	}
	checked, err := cel.AstToCheckedExpr(ast)
	if err != nil {
		return nil, err
	}
	con := &celConverter{param: p, registry: fc.registry}
	return con.visit(checked.Expr)
}

func celType(t *expr.Type) *cel.Type {
	switch t.Kind {
	case expr.KindString, expr.KindUUID:
		return cel.StringType
	case expr.KindInt16, expr.KindInt32, expr.KindInt64:
		return cel.IntType
	case expr.KindFloat, expr.KindDecimal:
		return cel.DoubleType
	case expr.KindBool:
		return cel.BoolType
	case expr.KindList:
		return cel.ListType(celType(t.ElemType()))
	case expr.KindRecord:
		return cel.MapType(cel.StringType, cel.DynType)
	}
	return cel.DynType
}

var errUnsupportedFilter = errors.New("unsupported filter expression")

type celConverter struct {
	param    *expr.Param
	registry *coerce.Registry
}

var celBinary = map[string]expr.Op{
	operators.LogicalAnd:    expr.OpAnd,
	operators.LogicalOr:     expr.OpOr,
	operators.Equals:        expr.OpEq,
	operators.NotEquals:     expr.OpNe,
	operators.Less:          expr.OpLt,
	operators.LessEquals:    expr.OpLe,
	operators.Greater:       expr.OpGt,
	operators.GreaterEquals: expr.OpGe,
	operators.Add:           expr.OpAdd,
	operators.Subtract:      expr.OpSub,
	operators.Multiply:      expr.OpMul,
	operators.Divide:        expr.OpDiv,
	operators.Modulo:        expr.OpMod,
}

func (con *celConverter) visit(e *exprpb.Expr) (expr.Expr, error) {
	switch e.ExprKind.(type) {
	case *exprpb.Expr_CallExpr:
		return con.visitCall(e)
	case *exprpb.Expr_ConstExpr:
		return con.visitConst(e)
	case *exprpb.Expr_IdentExpr:
		return expr.NewMember(con.param, e.GetIdentExpr().GetName())
	case *exprpb.Expr_SelectExpr:
		return con.visitSelect(e)
	}
	return nil, fmt.Errorf("%w: %T", errUnsupportedFilter, e.ExprKind)
}

func (con *celConverter) visitCall(e *exprpb.Expr) (expr.Expr, error) {
	c := e.GetCallExpr()
	fun := c.GetFunction()
	if op, ok := celBinary[fun]; ok {
		x, y, err := con.operands(c.GetArgs())
		if err != nil {
			return nil, err
		}
		return expr.NewBinary(op, x, y)
	}
	switch fun {
	case operators.LogicalNot, operators.Negate:
		x, err := con.visit(c.GetArgs()[0])
		if err != nil {
			return nil, err
		}
		if fun == operators.Negate {
			return expr.NewUnary(expr.OpNeg, x)
		}
		return expr.NewUnary(expr.OpNot, x)
	case operators.Conditional:
		var parts [3]expr.Expr
		for i, a := range c.GetArgs() {
			x, err := con.visit(a)
			if err != nil {
				return nil, err
			}
			parts[i] = x
		}
		return expr.NewCond(parts[0], parts[1], parts[2])
	case operators.In, operators.OldIn:
		return con.visitIn(c.GetArgs())
	case overloads.StartsWith, overloads.EndsWith, overloads.Contains:
		target, err := con.visit(c.GetTarget())
		if err != nil {
			return nil, err
		}
		arg, err := con.visit(c.GetArgs()[0])
		if err != nil {
			return nil, err
		}
		return expr.NewCall("", fun, expr.BoolType, target, arg), nil
	case overloads.Size:
		arg := c.GetTarget()
		if arg == nil {
			arg = c.GetArgs()[0]
		}
		x, err := con.visit(arg)
		if err != nil {
			return nil, err
		}
		return expr.NewCall("", "size", expr.Int64Type, x), nil
	}
	return nil, fmt.Errorf("%w: function %s", errUnsupportedFilter, fun)
}

// operands converts the operands of a binary operator. A string literal compared with
// a field of another scalar type is coerced to that type, so ids can be written as
// text.
func (con *celConverter) operands(args []*exprpb.Expr) (expr.Expr, expr.Expr, error) {
	x, err := con.visit(args[0])
	if err != nil {
		return nil, nil, err
	}
	y, err := con.visit(args[1])
	if err != nil {
		return nil, nil, err
	}
	if x, err = con.literalAs(x, y.Type()); err != nil {
		return nil, nil, err
	}
	if y, err = con.literalAs(y, x.Type()); err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func (con *celConverter) literalAs(x expr.Expr, t *expr.Type) (expr.Expr, error) {
	c, ok := x.(*expr.Const)
	if !ok || c.Value == nil || c.T.Kind == t.Kind {
		return x, nil
	}
	switch t.Kind {
	case expr.KindUUID, expr.KindDecimal:
	default:
		return x, nil
	}
	v, err := con.registry.Coerce(c.Value, t.NonNull())
	if err != nil {
		return nil, err
	}
	return expr.NewConst(v, t.NonNull()), nil
}

// visitIn expands "x in [a, b]" into "x == a || x == b".
func (con *celConverter) visitIn(args []*exprpb.Expr) (expr.Expr, error) {
	list := args[1].GetListExpr()
	if list == nil {
		return nil, fmt.Errorf("%w: in requires a list literal", errUnsupportedFilter)
	}
	x, err := con.visit(args[0])
	if err != nil {
		return nil, err
	}
	var out expr.Expr = expr.NewConst(false, expr.BoolType)
	for i, el := range list.GetElements() {
		y, err := con.visit(el)
		if err != nil {
			return nil, err
		}
		if y, err = con.literalAs(y, x.Type()); err != nil {
			return nil, err
		}
		eq, err := expr.NewBinary(expr.OpEq, x, y)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			out = eq
			continue
		}
		if out, err = expr.NewBinary(expr.OpOr, out, eq); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (con *celConverter) visitSelect(e *exprpb.Expr) (expr.Expr, error) {
	sel := e.GetSelectExpr()
	operand, err := con.visit(sel.GetOperand())
	if err != nil {
		return nil, err
	}
	m, err := expr.NewMember(operand, sel.GetField())
	if err != nil {
		return nil, err
	}
	if sel.GetTestOnly() {
		return expr.NewBinary(expr.OpNe, m, expr.Null())
	}
	return m, nil
}

func (con *celConverter) visitConst(e *exprpb.Expr) (expr.Expr, error) {
	c := e.GetConstExpr()
	switch c.ConstantKind.(type) {
	case *exprpb.Constant_BoolValue:
		return expr.NewConst(c.GetBoolValue(), expr.BoolType), nil
	case *exprpb.Constant_Int64Value:
		return expr.NewConst(c.GetInt64Value(), expr.Int64Type), nil
	case *exprpb.Constant_Uint64Value:
		return expr.NewConst(int64(c.GetUint64Value()), expr.Int64Type), nil
	case *exprpb.Constant_DoubleValue:
		return expr.NewConst(c.GetDoubleValue(), expr.FloatType), nil
	case *exprpb.Constant_StringValue:
		return expr.NewConst(c.GetStringValue(), expr.StringType), nil
	case *exprpb.Constant_NullValue:
		return expr.Null(), nil
	}
	return nil, fmt.Errorf("%w: constant %v", errUnsupportedFilter, c)
}
