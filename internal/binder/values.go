package binder

import (
	"fmt"
	"strconv"

	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/schema"
)

// coerceVariableValues applies defaults and checks required variables. Scalar values
// stay raw; they are coerced when the plan is compiled.
func coerceVariableValues(operation *language.OperationDefinition, values map[string]any) (map[string]any, error) {
	coerced := make(map[string]any)
	for _, def := range operation.VariableDefinitions {
		name := def.Variable
		val, ok := values[name]
		if !ok {
			val, ok = values[trimVariable(name)]
		}
		if !ok {
			if def.DefaultValue != nil {
				val = valueFromAST(def.DefaultValue, nil)
			} else if def.Type.NonNull {
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, def.Type.String())
			} else {
				continue
			}
		}
		if val == nil && def.Type.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, def.Type.String())
		}
		coerced[name] = val
	}
	return coerced, nil
}

// argumentValues resolves the arguments given to a field, falling back to declared
// defaults. Arguments the field does not declare are rejected.
func argumentValues(st *bindState, def *schema.Field, arguments language.ArgumentList) (map[string]any, error) {
	out := make(map[string]any)
	for _, arg := range arguments {
		argDef := def.Argument(arg.Name)
		if argDef == nil {
			return nil, fmt.Errorf("unknown argument %q", arg.Name)
		}
		if arg.Value.Kind == language.Variable {
			if _, ok := st.variables[arg.Value.Raw]; !ok {
				continue
			}
		}
		out[arg.Name] = valueFromAST(arg.Value, st.variables)
	}
	for _, argDef := range def.Arguments {
		if _, ok := out[argDef.Name]; ok {
			continue
		}
		if argDef.DefaultValue != nil {
			out[argDef.Name] = argDef.DefaultValue
		} else if argDef.Type.IsNonNull() {
			return nil, fmt.Errorf("argument %q of required type %s was not provided", argDef.Name, argDef.Type)
		}
	}
	return out, nil
}

// valueFromAST converts an AST value to a runtime value with variable substitution
func valueFromAST(value *language.Value, variables map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		return variables[value.Raw]
	case language.IntValue:
		iv, err := strconv.ParseInt(value.Raw, 10, 64)
		if err != nil {
			return value.Raw
		}
		return iv
	case language.FloatValue:
		fv, err := strconv.ParseFloat(value.Raw, 64)
		if err != nil {
			return value.Raw
		}
		return fv
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = valueFromAST(c.Value, variables)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			m[f.Name] = valueFromAST(f.Value, variables)
		}
		return m
	}
	return nil
}
