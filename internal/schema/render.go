package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render produces SDL from the Schema. Types and directives are sorted by name; built-in
// scalars and directives are omitted.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	if s.QueryType != "Query" {
		fmt.Fprintf(&b, "schema {\n  query: %s\n}\n\n", s.QueryType)
	}
	for _, name := range sortedNames(s.Types) {
		t := s.Types[name]
		if isBuiltinType(t) {
			continue
		}
		renderType(&b, t)
	}
	for _, name := range sortedNames(s.Directives) {
		d := s.Directives[name]
		if isBuiltinDirective(d) {
			continue
		}
		renderDirective(&b, d)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func renderType(b *strings.Builder, t *Type) {
	renderDescription(b, "", t.Description)
	switch t.Kind {
	case TypeKindScalar:
		fmt.Fprintf(b, "scalar %s\n\n", t.Name)
		return
	case TypeKindUnion:
		fmt.Fprintf(b, "union %s = %s\n\n", t.Name, strings.Join(t.PossibleTypes, " | "))
		return
	case TypeKindEnum:
		fmt.Fprintf(b, "enum %s {\n", t.Name)
		for _, v := range t.EnumValues {
			renderDescription(b, "  ", v.Description)
			b.WriteString("  " + v.Name)
			renderDeprecated(b, v.IsDeprecated, v.DeprecationReason)
			b.WriteString("\n")
		}
	case TypeKindInputObject:
		fmt.Fprintf(b, "input %s {\n", t.Name)
		for _, f := range t.InputFields {
			renderDescription(b, "  ", f.Description)
			b.WriteString("  " + renderInputValue(f) + "\n")
		}
	default:
		keyword := "type"
		if t.Kind == TypeKindInterface {
			keyword = "interface"
		}
		fmt.Fprintf(b, "%s %s", keyword, t.Name)
		if len(t.Interfaces) > 0 {
			b.WriteString(" implements " + strings.Join(t.Interfaces, " & "))
		}
		b.WriteString(" {\n")
		for _, f := range t.Fields {
			renderField(b, f)
		}
	}
	b.WriteString("}\n\n")
}

func renderDescription(b *strings.Builder, indent, desc string) {
	if desc == "" {
		return
	}
	fmt.Fprintf(b, "%s\"\"\"\n%s%s\n%s\"\"\"\n", indent, indent, strings.ReplaceAll(desc, `"""`, `\"""`), indent)
}

func renderDeprecated(b *strings.Builder, deprecated bool, reason string) {
	if !deprecated {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "" {
		fmt.Fprintf(b, "(reason: %s)", strconv.Quote(reason))
	}
}

func renderInputValue(v *InputValue) string {
	s := v.Name + ": " + v.Type.String()
	if v.DefaultValue != nil {
		s += " = " + RenderValue(v.DefaultValue)
	}
	return s
}

func renderArguments(b *strings.Builder, args []*InputValue) {
	if len(args) == 0 {
		return
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = renderInputValue(a)
	}
	b.WriteString("(" + strings.Join(parts, ", ") + ")")
}

func renderField(b *strings.Builder, f *Field) {
	renderDescription(b, "  ", f.Description)
	b.WriteString("  " + f.Name)
	renderArguments(b, f.Arguments)
	b.WriteString(": " + f.Type.String())
	if f.Service != nil {
		fmt.Fprintf(b, " @service(name: %s", strconv.Quote(f.Service.Name))
		if f.Service.Method != f.Name {
			fmt.Fprintf(b, ", method: %s", strconv.Quote(f.Service.Method))
		}
		if len(f.Service.With) > 0 {
			with := make([]any, len(f.Service.With))
			for i, w := range f.Service.With {
				with[i] = w
			}
			fmt.Fprintf(b, ", with: %s", RenderValue(with))
		}
		b.WriteString(")")
	}
	if f.Table != "" {
		fmt.Fprintf(b, " @source(table: %s)", strconv.Quote(f.Table))
	}
	renderDeprecated(b, f.IsDeprecated, f.DeprecationReason)
	b.WriteString("\n")
}

func renderDirective(b *strings.Builder, d *Directive) {
	renderDescription(b, "", d.Description)
	b.WriteString("directive @" + d.Name)
	renderArguments(b, d.Arguments)
	if d.IsRepeatable {
		b.WriteString(" repeatable")
	}
	b.WriteString(" on " + strings.Join(d.Locations, " | ") + "\n\n")
}

// RenderValue renders a default or directive argument value as a GraphQL literal.
func RenderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = RenderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := sortedNames(v)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + RenderValue(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(value)
}
