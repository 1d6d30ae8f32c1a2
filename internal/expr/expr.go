// Package expr defines the expression IR that selection plans are compiled into.
//
// Expressions are immutable trees. Every node carries its static type, computed by the
// New* constructors, which reject ill-typed trees with ErrTypeMismatch. Parameters are
// compared by identity: two *Param values with the same name are distinct variables.
package expr

import (
	"errors"
	"fmt"
	"sort"
)

// ErrTypeMismatch reports an expression whose operand type does not fit its position.
var ErrTypeMismatch = errors.New("ir type mismatch")

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTypeMismatch, fmt.Sprintf(format, args...))
}

// Expr is an IR expression. The interface is sealed to this package so that
// consumers can switch exhaustively over node types.
type Expr interface {
	Type() *Type
	exprNode()
}

type Param struct {
	Name string
	T    *Type
}

type Const struct {
	Value any
	T     *Type
}

// Member is a property access X.Name.
type Member struct {
	X    Expr
	Name string
	T    *Type
}

// Call applies a function. A non-empty Service marks a value that only an external
// service can compute; such calls are never pushed down to the data source.
type Call struct {
	Service string
	Method  string
	Args    []Expr
	T       *Type
}

type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNot
	OpNeg
)

var opNames = map[Op]string{
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "&&", OpOr: "||", OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpNot: "!", OpNeg: "-",
}

func (o Op) String() string { return opNames[o] }

// IsComparison reports whether the operator yields a boolean from two operands.
func (o Op) IsComparison() bool { return o <= OpGe }

type Unary struct {
	Op Op
	X  Expr
}

type Binary struct {
	Op   Op
	X, Y Expr
	T    *Type
}

// Cond evaluates Then when Test holds and Else otherwise.
type Cond struct {
	Test, Then, Else Expr
	T                *Type
}

type Lambda struct {
	Param *Param
	Body  Expr
}

type Where struct {
	X    Expr
	Pred *Lambda
}

type SortKey struct {
	Key  *Lambda
	Desc bool
}

type OrderBy struct {
	X    Expr
	Keys []SortKey
}

// Select projects every element of X through Fn.
type Select struct {
	X  Expr
	Fn *Lambda
	T  *Type
}

type NewField struct {
	Name string
	X    Expr
}

// New builds an anonymous record.
type New struct {
	Fields []NewField
	T      *Type
}

type Take struct{ X, N Expr }
type Skip struct{ X, N Expr }

// ToList forces a lazy sequence into a concrete list.
type ToList struct{ X Expr }

func (*Param) exprNode()   {}
func (*Const) exprNode()   {}
func (*Member) exprNode()  {}
func (*Call) exprNode()    {}
func (*Unary) exprNode()   {}
func (*Binary) exprNode()  {}
func (*Cond) exprNode()    {}
func (*Lambda) exprNode()  {}
func (*Where) exprNode()   {}
func (*OrderBy) exprNode() {}
func (*Select) exprNode()  {}
func (*New) exprNode()     {}
func (*Take) exprNode()    {}
func (*Skip) exprNode()    {}
func (*ToList) exprNode()  {}

func (e *Param) Type() *Type  { return e.T }
func (e *Const) Type() *Type  { return e.T }
func (e *Member) Type() *Type { return e.T }
func (e *Call) Type() *Type   { return e.T }
func (e *Unary) Type() *Type {
	if e.Op == OpNot {
		return BoolType
	}
	return e.X.Type()
}
func (e *Binary) Type() *Type  { return e.T }
func (e *Cond) Type() *Type    { return e.T }
func (e *Lambda) Type() *Type  { return e.Body.Type() }
func (e *Where) Type() *Type   { return e.X.Type() }
func (e *OrderBy) Type() *Type { return e.X.Type() }
func (e *Select) Type() *Type  { return e.T }
func (e *New) Type() *Type     { return e.T }
func (e *Take) Type() *Type    { return e.X.Type() }
func (e *Skip) Type() *Type    { return e.X.Type() }
func (e *ToList) Type() *Type  { return e.X.Type().NonNull() }

func NewParam(name string, t *Type) *Param {
	if t == nil {
		t = AnyType
	}
	return &Param{Name: name, T: t}
}

func NewConst(v any, t *Type) *Const {
	if t == nil {
		t = AnyType
	}
	return &Const{Value: v, T: t}
}

// Null is the untyped null constant.
func Null() *Const { return &Const{T: AnyType} }

func NewMember(x Expr, name string) (*Member, error) {
	xt := x.Type()
	switch xt.Kind {
	case KindAny:
		return &Member{X: x, Name: name, T: AnyType}, nil
	case KindRecord:
		ft := xt.FieldType(name)
		if ft == nil {
			return nil, mismatch("type %s has no field %q", xt, name)
		}
		if xt.Nullable {
			ft = ft.OrNull()
		}
		return &Member{X: x, Name: name, T: ft}, nil
	}
	return nil, mismatch("cannot access %q on %s", name, xt)
}

func NewCall(service, method string, t *Type, args ...Expr) *Call {
	if t == nil {
		t = AnyType
	}
	return &Call{Service: service, Method: method, Args: args, T: t}
}

func NewUnary(op Op, x Expr) (*Unary, error) {
	k := x.Type().Kind
	switch op {
	case OpNot:
		if k != KindBool && k != KindAny {
			return nil, mismatch("operator ! on %s", x.Type())
		}
	case OpNeg:
		if !k.IsNumeric() && k != KindAny {
			return nil, mismatch("operator - on %s", x.Type())
		}
	default:
		return nil, mismatch("%s is not a unary operator", op)
	}
	return &Unary{Op: op, X: x}, nil
}

func NewBinary(op Op, x, y Expr) (*Binary, error) {
	xt, yt := x.Type(), y.Type()
	nullable := xt.Nullable || yt.Nullable
	switch {
	case op.IsComparison():
		if !xt.Compatible(yt) {
			return nil, mismatch("cannot compare %s %s %s", xt, op, yt)
		}
		return &Binary{Op: op, X: x, Y: y, T: BoolType}, nil
	case op == OpAnd || op == OpOr:
		for _, t := range []*Type{xt, yt} {
			if t.Kind != KindBool && t.Kind != KindAny {
				return nil, mismatch("operator %s on %s", op, t)
			}
		}
		return &Binary{Op: op, X: x, Y: y, T: BoolType}, nil
	case op == OpAdd && xt.Kind == KindString && yt.Kind == KindString:
		return &Binary{Op: op, X: x, Y: y, T: &Type{Kind: KindString, Nullable: nullable}}, nil
	case op >= OpAdd && op <= OpMod:
		if xt.Kind == KindAny || yt.Kind == KindAny {
			return &Binary{Op: op, X: x, Y: y, T: AnyType}, nil
		}
		if !xt.Kind.IsNumeric() || !yt.Kind.IsNumeric() {
			return nil, mismatch("operator %s on %s and %s", op, xt, yt)
		}
		return &Binary{Op: op, X: x, Y: y, T: &Type{Kind: widerKind(xt.Kind, yt.Kind), Nullable: nullable}}, nil
	}
	return nil, mismatch("%s is not a binary operator", op)
}

func widerKind(a, b Kind) Kind {
	if a == KindDecimal || b == KindDecimal {
		return KindDecimal
	}
	if a == KindFloat || b == KindFloat {
		return KindFloat
	}
	if a > b {
		return a
	}
	return b
}

func NewCond(test, then, els Expr) (*Cond, error) {
	if k := test.Type().Kind; k != KindBool && k != KindAny {
		return nil, mismatch("condition of type %s", test.Type())
	}
	t := then.Type()
	if c, ok := els.(*Const); ok && c.Value == nil {
		t = t.OrNull()
	} else if !t.Compatible(els.Type()) {
		return nil, mismatch("branches of type %s and %s", t, els.Type())
	}
	return &Cond{Test: test, Then: then, Else: els, T: t}, nil
}

func NewLambda(p *Param, body Expr) *Lambda { return &Lambda{Param: p, Body: body} }

func checkList(x Expr, what string) error {
	if k := x.Type().Kind; k != KindList && k != KindAny {
		return mismatch("%s over %s", what, x.Type())
	}
	return nil
}

func checkLambda(x Expr, fn *Lambda, what string) error {
	if !x.Type().ElemType().Compatible(fn.Param.T) {
		return mismatch("%s parameter %s does not accept %s", what, fn.Param.T, x.Type().ElemType())
	}
	return nil
}

func NewWhere(x Expr, pred *Lambda) (*Where, error) {
	if err := checkList(x, "filter"); err != nil {
		return nil, err
	}
	if err := checkLambda(x, pred, "filter"); err != nil {
		return nil, err
	}
	if k := pred.Body.Type().Kind; k != KindBool && k != KindAny {
		return nil, mismatch("filter predicate of type %s", pred.Body.Type())
	}
	return &Where{X: x, Pred: pred}, nil
}

func NewOrderBy(x Expr, keys ...SortKey) (*OrderBy, error) {
	if err := checkList(x, "order"); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, mismatch("order without keys")
	}
	for _, k := range keys {
		if err := checkLambda(x, k.Key, "order"); err != nil {
			return nil, err
		}
	}
	return &OrderBy{X: x, Keys: keys}, nil
}

func NewSelect(x Expr, fn *Lambda) (*Select, error) {
	if err := checkList(x, "select"); err != nil {
		return nil, err
	}
	if err := checkLambda(x, fn, "select"); err != nil {
		return nil, err
	}
	t := ListOf(fn.Body.Type())
	t.Nullable = x.Type().Nullable
	return &Select{X: x, Fn: fn, T: t}, nil
}

func NewNew(fields ...NewField) (*New, error) {
	t := RecordOf()
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate record field %q", f.Name)
		}
		seen[f.Name] = true
		t.AddField(f.Name, f.X.Type())
	}
	return &New{Fields: fields, T: t}, nil
}

func checkCount(n Expr, what string) error {
	if k := n.Type().Kind; k != KindInt16 && k != KindInt32 && k != KindInt64 && k != KindAny {
		return mismatch("%s count of type %s", what, n.Type())
	}
	return nil
}

func NewTake(x, n Expr) (*Take, error) {
	if err := checkList(x, "take"); err != nil {
		return nil, err
	}
	if err := checkCount(n, "take"); err != nil {
		return nil, err
	}
	return &Take{X: x, N: n}, nil
}

func NewSkip(x, n Expr) (*Skip, error) {
	if err := checkList(x, "skip"); err != nil {
		return nil, err
	}
	if err := checkCount(n, "skip"); err != nil {
		return nil, err
	}
	return &Skip{X: x, N: n}, nil
}

func NewToList(x Expr) (*ToList, error) {
	if err := checkList(x, "materialize"); err != nil {
		return nil, err
	}
	return &ToList{X: x}, nil
}

// Children returns the direct sub-expressions of e in evaluation order.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *Member:
		return []Expr{n.X}
	case *Call:
		return n.Args
	case *Unary:
		return []Expr{n.X}
	case *Binary:
		return []Expr{n.X, n.Y}
	case *Cond:
		return []Expr{n.Test, n.Then, n.Else}
	case *Lambda:
		return []Expr{n.Body}
	case *Where:
		return []Expr{n.X, n.Pred}
	case *OrderBy:
		out := []Expr{n.X}
		for _, k := range n.Keys {
			out = append(out, k.Key)
		}
		return out
	case *Select:
		return []Expr{n.X, n.Fn}
	case *New:
		out := make([]Expr, len(n.Fields))
		for i, f := range n.Fields {
			out[i] = f.X
		}
		return out
	case *Take:
		return []Expr{n.X, n.N}
	case *Skip:
		return []Expr{n.X, n.N}
	case *ToList:
		return []Expr{n.X}
	}
	return nil
}

// Inspect traverses e depth-first, calling f for every node. When f returns false the
// children of that node are skipped.
func Inspect(e Expr, f func(Expr) bool) {
	if e == nil || !f(e) {
		return
	}
	for _, c := range Children(e) {
		Inspect(c, f)
	}
}

// Services returns the sorted set of service ids called anywhere in e.
func Services(e Expr) []string {
	set := map[string]struct{}{}
	Inspect(e, func(n Expr) bool {
		if c, ok := n.(*Call); ok && c.Service != "" {
			set[c.Service] = struct{}{}
		}
		return true
	})
	return SortedSet(set)
}

// SortedSet returns the keys of set in ascending order; nil for an empty set.
func SortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// References reports whether p occurs free in e.
func References(e Expr, p *Param) bool {
	found := false
	Inspect(e, func(n Expr) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *Param:
			found = n == p
		case *Lambda:
			return n.Param != p
		}
		return true
	})
	return found
}

// MemberPath unwinds a chain of member accesses. It returns the root expression and the
// accessed names from outermost to innermost, e.g. p.address.city yields (p, [address city]).
func MemberPath(e Expr) (Expr, []string) {
	var path []string
	for {
		m, ok := e.(*Member)
		if !ok {
			break
		}
		path = append(path, m.Name)
		e = m.X
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return e, path
}
