// Package binder turns a parsed GraphQL query into a plan selection tree.
//
// Data fields become member accesses on their parent record and fields marked with
// @service become service calls. List fields read from a data source accept the
// arguments filter (a CEL predicate over the element fields), orderBy, first and skip;
// every other argument filters the elements on the field of the same name.
package binder

import (
	"strings"
	"unicode"

	"github.com/hanpama/gqlplan/internal/expr"
	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/plan"
	"github.com/hanpama/gqlplan/internal/schema"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// RootName names the parameter holding the query root.
const RootName = "ctx"

// Arguments with a fixed meaning on data source lists.
const (
	ArgFilter  = "filter"
	ArgOrderBy = "orderBy"
	ArgFirst   = "first"
	ArgSkip    = "skip"
)

type Binder struct {
	schema  *schema.Schema
	filters *filterCompiler
}

func New(s *schema.Schema) *Binder {
	return &Binder{schema: s, filters: newFilterCompiler()}
}

type bindState struct {
	document  *language.QueryDocument
	variables map[string]any
	errors    gqlerror.List
}

func (st *bindState) errorf(pos *language.Position, format string, args ...any) {
	st.errors = append(st.errors, gqlerror.ErrorPosf(pos, format, args...))
}

// Bind binds the named operation of doc. The returned error is a gqlerror.List when
// the query itself is at fault.
func (b *Binder) Bind(doc *language.QueryDocument, operationName string, variables map[string]any) (*plan.Object, error) {
	op := doc.Operations.ForName(operationName)
	if op == nil {
		return nil, gqlerror.List{gqlerror.Errorf("operation %q not found", operationName)}
	}
	if op.Operation != language.Query {
		return nil, gqlerror.List{gqlerror.ErrorPosf(op.Position, "%s operations are not supported", op.Operation)}
	}
	vars, err := coerceVariableValues(op, variables)
	if err != nil {
		return nil, gqlerror.List{gqlerror.ErrorPosf(op.Position, "%s", err.Error())}
	}

	queryType := b.schema.GetQueryType()
	rootType, err := b.schema.RootType()
	if err != nil {
		return nil, err
	}
	root := expr.NewParam(RootName, rootType)
	st := &bindState{document: doc, variables: vars}
	children := b.bindSelectionSet(st, queryType, root, op.SelectionSet)
	if len(st.errors) > 0 {
		return nil, st.errors
	}
	return plan.NewRoot(root, children...), nil
}

func (b *Binder) bindSelectionSet(st *bindState, objectType *schema.Type, parent *expr.Param, set language.SelectionSet) []plan.Selection {
	var out []plan.Selection
	for _, group := range collectFields(st, objectType, set).orderedFields() {
		if sel := b.bindField(st, objectType, parent, group); sel != nil {
			out = append(out, sel)
		}
	}
	return out
}

func (b *Binder) bindField(st *bindState, parentType *schema.Type, parent *expr.Param, group collectedField) plan.Selection {
	field := group.Fields[0]
	if field.Name == "__typename" {
		return &plan.Scalar{Name: group.ResponseName, Expr: expr.NewConst(parentType.Name, expr.StringType), Param: parent}
	}
	def := parentType.Field(field.Name)
	if def == nil {
		st.errorf(field.Position, "cannot query field %q on type %q", field.Name, parentType.Name)
		return nil
	}
	t, err := b.schema.ExprType(def.Type)
	if err != nil {
		st.errorf(field.Position, "%s: %v", field.Name, err)
		return nil
	}
	args, err := argumentValues(st, def, field.Arguments)
	if err != nil {
		st.errorf(field.Position, "%s: %v", field.Name, err)
		return nil
	}
	identity := parentType.Name + "." + def.Name

	consts := map[*expr.Param]plan.Literal{}
	var value expr.Expr
	if def.Service != nil {
		value, err = b.serviceCall(def, t, parent, args, consts)
	} else {
		value, err = expr.NewMember(parent, def.Name)
	}
	if err != nil {
		st.errorf(field.Position, "%s: %v", field.Name, err)
		return nil
	}

	target := b.schema.Types[def.Type.NamedType()]
	composite := target.Kind == schema.TypeKindObject || target.Kind == schema.TypeKindInterface
	if !composite {
		if len(field.SelectionSet) > 0 {
			st.errorf(field.Position, "field %q of type %s must not have a selection set", field.Name, def.Type)
			return nil
		}
		return &plan.Scalar{Name: group.ResponseName, Expr: value, Param: parent, Constants: nonEmpty(consts)}
	}
	if len(field.SelectionSet) == 0 {
		st.errorf(field.Position, "field %q of type %s must have a selection set", field.Name, def.Type)
		return nil
	}
	merged := mergeSelectionSets(group.Fields)

	if def.Type.IsList() {
		elemType := t.ElemType()
		if def.Service == nil {
			value, err = b.shapeList(value, elemType, args, consts)
			if err != nil {
				st.errorf(field.Position, "%s: %v", field.Name, err)
				return nil
			}
		}
		elem := expr.NewParam(paramName(target.Name), elemType)
		return &plan.List{
			Name:      group.ResponseName,
			Field:     identity,
			Expr:      value,
			Param:     parent,
			Elem:      elem,
			Children:  b.bindSelectionSet(st, target, elem, merged),
			Constants: nonEmpty(consts),
		}
	}

	elem := expr.NewParam(paramName(target.Name), value.Type())
	return &plan.Object{
		Name:      group.ResponseName,
		Field:     identity,
		Expr:      value,
		Param:     parent,
		Elem:      elem,
		Children:  b.bindSelectionSet(st, target, elem, merged),
		Constants: nonEmpty(consts),
	}
}

// serviceCall builds the call of a service field: the parent fields named by the
// binding, then the field arguments in declaration order.
func (b *Binder) serviceCall(def *schema.Field, t *expr.Type, parent *expr.Param, args map[string]any, consts map[*expr.Param]plan.Literal) (expr.Expr, error) {
	var callArgs []expr.Expr
	for _, w := range def.Service.With {
		m, err := expr.NewMember(parent, w)
		if err != nil {
			return nil, err
		}
		callArgs = append(callArgs, m)
	}
	for _, a := range def.Arguments {
		raw, ok := args[a.Name]
		if !ok {
			callArgs = append(callArgs, expr.Null())
			continue
		}
		at, err := b.schema.ExprType(a.Type)
		if err != nil {
			return nil, err
		}
		p := expr.NewParam("$"+a.Name, at)
		consts[p] = plan.Literal{Value: raw, Type: at}
		callArgs = append(callArgs, p)
	}
	return expr.NewCall(def.Service.Name, def.Service.Method, t, callArgs...), nil
}

// paramName derives a lambda parameter name from a type name: Person binds p and
// __Type binds t.
func paramName(typeName string) string {
	for _, r := range typeName {
		if unicode.IsLetter(r) {
			return string(unicode.ToLower(r))
		}
	}
	return "x"
}

func nonEmpty(m map[*expr.Param]plan.Literal) map[*expr.Param]plan.Literal {
	if len(m) == 0 {
		return nil
	}
	return m
}

func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

func trimVariable(name string) string { return strings.TrimPrefix(name, "$") }
