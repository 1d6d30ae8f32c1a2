package binder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hanpama/gqlplan/internal/expr"
	"github.com/hanpama/gqlplan/internal/plan"
)

// shapeList applies the list arguments of a data field to its collection: one Where
// for the filter and the equality arguments, then OrderBy, Skip and Take.
func (b *Binder) shapeList(list expr.Expr, elemType *expr.Type, args map[string]any, consts map[*expr.Param]plan.Literal) (expr.Expr, error) {
	name := paramName(elemType.Name)
	var err error

	p := expr.NewParam(name, elemType)
	var preds []expr.Expr
	if src, ok := args[ArgFilter].(string); ok && strings.TrimSpace(src) != "" {
		pred, err := b.filters.compile(src, p)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		preds = append(preds, pred)
	}
	for _, argName := range sortedArgs(args) {
		raw := args[argName]
		if raw == nil {
			continue
		}
		m, err := expr.NewMember(p, argName)
		if err != nil {
			return nil, fmt.Errorf("argument %q does not match a field of %s", argName, elemType)
		}
		c := expr.NewParam("$"+argName, m.Type().NonNull())
		consts[c] = plan.Literal{Value: raw, Type: c.T}
		eq, err := expr.NewBinary(expr.OpEq, m, c)
		if err != nil {
			return nil, err
		}
		preds = append(preds, eq)
	}
	if len(preds) > 0 {
		pred := preds[0]
		for _, next := range preds[1:] {
			if pred, err = expr.NewBinary(expr.OpAnd, pred, next); err != nil {
				return nil, err
			}
		}
		if list, err = expr.NewWhere(list, expr.NewLambda(p, pred)); err != nil {
			return nil, err
		}
	}

	if keys, err := orderKeys(args[ArgOrderBy], name, elemType); err != nil {
		return nil, err
	} else if len(keys) > 0 {
		if list, err = expr.NewOrderBy(list, keys...); err != nil {
			return nil, err
		}
	}

	if raw, ok := args[ArgSkip]; ok && raw != nil {
		c := expr.NewParam("$"+ArgSkip, expr.Int64Type)
		consts[c] = plan.Literal{Value: raw, Type: expr.Int64Type}
		if list, err = expr.NewSkip(list, c); err != nil {
			return nil, err
		}
	}
	if raw, ok := args[ArgFirst]; ok && raw != nil {
		c := expr.NewParam("$"+ArgFirst, expr.Int64Type)
		consts[c] = plan.Literal{Value: raw, Type: expr.Int64Type}
		if list, err = expr.NewTake(list, c); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// sortedArgs returns the equality filter arguments in name order.
func sortedArgs(args map[string]any) []string {
	var names []string
	for name := range args {
		switch name {
		case ArgFilter, ArgOrderBy, ArgFirst, ArgSkip:
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// orderKeys parses orderBy terms such as "name", "age desc" or "address.city asc".
func orderKeys(raw any, name string, elemType *expr.Type) ([]expr.SortKey, error) {
	var terms []string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		terms = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("orderBy: %v is not a string", item)
			}
			terms = append(terms, s)
		}
	default:
		return nil, fmt.Errorf("orderBy: unsupported value %v", raw)
	}

	var keys []expr.SortKey
	for _, term := range terms {
		parts := strings.Fields(term)
		if len(parts) == 0 || len(parts) > 2 {
			return nil, fmt.Errorf("orderBy: invalid term %q", term)
		}
		desc := false
		if len(parts) == 2 {
			switch strings.ToLower(parts[1]) {
			case "asc":
			case "desc":
				desc = true
			default:
				return nil, fmt.Errorf("orderBy: invalid direction %q", parts[1])
			}
		}
		o := expr.NewParam(name, elemType)
		var key expr.Expr = o
		for _, seg := range strings.Split(parts[0], ".") {
			m, err := expr.NewMember(key, seg)
			if err != nil {
				return nil, fmt.Errorf("orderBy: %w", err)
			}
			key = m
		}
		keys = append(keys, expr.SortKey{Key: expr.NewLambda(o, key), Desc: desc})
	}
	return keys, nil
}
