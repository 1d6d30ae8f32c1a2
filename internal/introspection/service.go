package introspection

import (
	"context"
	"maps"
	"slices"
	"sort"

	"github.com/hanpama/gqlplan/internal/executor"
	"github.com/hanpama/gqlplan/internal/schema"
)

// Register installs the introspection service describing s, which should be the
// schema returned by Extend.
func Register(services *executor.ServiceRegistry, s *schema.Schema) error {
	d := newDescriber(s)
	methods := map[string]executor.ServiceFunc{
		"schema": func(context.Context, []any) (any, error) {
			return d.schema, nil
		},
		"type": func(_ context.Context, args []any) (any, error) {
			name, _ := arg(args, 0).(string)
			if t, ok := d.named[name]; ok {
				return t, nil
			}
			return nil, nil
		},
		"fields": func(_ context.Context, args []any) (any, error) {
			name, _ := arg(args, 0).(string)
			return d.fields(name, includeDeprecated(args)), nil
		},
		"enumValues": func(_ context.Context, args []any) (any, error) {
			name, _ := arg(args, 0).(string)
			return d.enumValues(name, includeDeprecated(args)), nil
		},
	}
	for _, name := range slices.Sorted(maps.Keys(methods)) {
		if err := services.Register(ServiceName, name, methods[name]); err != nil {
			return err
		}
	}
	return nil
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func includeDeprecated(args []any) bool {
	b, _ := arg(args, 1).(bool)
	return b
}

// describer holds the introspection records of a schema. Named types are built once
// and shared, so the records of types referring to each other form a graph.
type describer struct {
	s      *schema.Schema
	named  map[string]map[string]any
	schema map[string]any
}

func newDescriber(s *schema.Schema) *describer {
	d := &describer{s: s, named: make(map[string]map[string]any, len(s.Types))}
	for name, t := range s.Types {
		d.named[name] = map[string]any{
			"kind":           string(t.Kind),
			"name":           t.Name,
			"description":    optional(t.Description),
			"specifiedByURL": nil,
			"interfaces":     nil,
			"possibleTypes":  nil,
			"inputFields":    nil,
			"ofType":         nil,
			"isOneOf":        nil,
		}
	}
	for name, t := range s.Types {
		rec := d.named[name]
		switch t.Kind {
		case schema.TypeKindObject, schema.TypeKindInterface:
			rec["interfaces"] = d.namedList(t.Interfaces)
			if t.Kind == schema.TypeKindInterface {
				rec["possibleTypes"] = d.namedList(d.implementations(name))
			}
		case schema.TypeKindUnion:
			rec["possibleTypes"] = d.namedList(t.PossibleTypes)
		case schema.TypeKindInputObject:
			rec["inputFields"] = d.inputValues(t.InputFields)
			rec["isOneOf"] = false
		}
	}

	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	directives := make([]string, 0, len(s.Directives))
	for name := range s.Directives {
		directives = append(directives, name)
	}
	sort.Strings(directives)

	d.schema = map[string]any{
		"description":      optional(s.Description),
		"types":            d.namedList(names),
		"queryType":        d.named[s.QueryType],
		"mutationType":     nil,
		"subscriptionType": nil,
		"directives":       d.directives(directives),
	}
	return d
}

// implementations returns the object types implementing the interface name.
func (d *describer) implementations(name string) []string {
	var out []string
	for _, t := range d.s.Types {
		if t.Kind == schema.TypeKindObject && slices.Contains(t.Interfaces, name) {
			out = append(out, t.Name)
		}
	}
	sort.Strings(out)
	return out
}

func (d *describer) namedList(names []string) []any {
	out := make([]any, 0, len(names))
	for _, name := range names {
		if rec, ok := d.named[name]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// typeRef describes a possibly wrapped type reference.
func (d *describer) typeRef(ref *schema.TypeRef) any {
	switch ref.Kind {
	case schema.TypeRefKindList, schema.TypeRefKindNonNull:
		return map[string]any{
			"kind":   string(ref.Kind),
			"name":   nil,
			"ofType": d.typeRef(ref.OfType),
		}
	}
	if rec, ok := d.named[ref.Named]; ok {
		return rec
	}
	return nil
}

func (d *describer) fields(typeName string, deprecated bool) any {
	t := d.s.Types[typeName]
	if t == nil || (t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface) {
		return nil
	}
	out := []any{}
	for _, f := range t.Fields {
		if isIntrospectionName(f.Name) || (f.IsDeprecated && !deprecated) {
			continue
		}
		out = append(out, map[string]any{
			"name":              f.Name,
			"description":       optional(f.Description),
			"args":              d.inputValues(f.Arguments),
			"type":              d.typeRef(f.Type),
			"isDeprecated":      f.IsDeprecated,
			"deprecationReason": deprecationReason(f.IsDeprecated, f.DeprecationReason),
		})
	}
	return out
}

func (d *describer) enumValues(typeName string, deprecated bool) any {
	t := d.s.Types[typeName]
	if t == nil || t.Kind != schema.TypeKindEnum {
		return nil
	}
	out := []any{}
	for _, v := range t.EnumValues {
		if v.IsDeprecated && !deprecated {
			continue
		}
		out = append(out, map[string]any{
			"name":              v.Name,
			"description":       optional(v.Description),
			"isDeprecated":      v.IsDeprecated,
			"deprecationReason": deprecationReason(v.IsDeprecated, v.DeprecationReason),
		})
	}
	return out
}

func (d *describer) inputValues(values []*schema.InputValue) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		var def any
		if v.DefaultValue != nil {
			def = schema.RenderValue(v.DefaultValue)
		}
		out = append(out, map[string]any{
			"name":              v.Name,
			"description":       optional(v.Description),
			"type":              d.typeRef(v.Type),
			"defaultValue":      def,
			"isDeprecated":      false,
			"deprecationReason": nil,
		})
	}
	return out
}

func (d *describer) directives(names []string) []any {
	out := make([]any, 0, len(names))
	for _, name := range names {
		dir := d.s.Directives[name]
		locations := make([]any, len(dir.Locations))
		for i, l := range dir.Locations {
			locations[i] = l
		}
		out = append(out, map[string]any{
			"name":         dir.Name,
			"description":  optional(dir.Description),
			"isRepeatable": dir.IsRepeatable,
			"locations":    locations,
			"args":         d.inputValues(dir.Arguments),
		})
	}
	return out
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deprecationReason(deprecated bool, reason string) any {
	if !deprecated {
		return nil
	}
	if reason == "" {
		return "No longer supported"
	}
	return reason
}
