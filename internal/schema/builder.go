package schema

import (
	"errors"
	"fmt"

	"github.com/hanpama/gqlplan/internal/language"
)

// BuildFromSDL builds a schema from SDL sources. Type extensions are merged into their
// base definitions, and the @service and @source directives are lifted into Field.
func BuildFromSDL(sources ...*language.Source) (*Schema, error) {
	doc, err := language.ParseSchema(sources...)
	if err != nil {
		return nil, err
	}
	return BuildFromDocument(doc)
}

// BuildFromDocument builds a schema from a parsed SDL document.
func BuildFromDocument(doc *language.SchemaDocument) (*Schema, error) {
	b := &builder{s: &Schema{
		QueryType:  "Query",
		Types:      map[string]*Type{},
		Directives: map[string]*Directive{},
	}}
	for _, t := range builtinTypes {
		b.s.Types[t.Name] = t
	}
	for _, d := range builtinDirectives {
		b.s.Directives[d.Name] = d
	}

	for _, def := range doc.Schema {
		b.s.Description = def.Description
		for _, op := range def.OperationTypes {
			if op.Operation == language.Query {
				b.s.QueryType = op.Type
			}
		}
	}
	for _, def := range doc.Definitions {
		if existing, ok := b.s.Types[def.Name]; ok {
			if isBuiltinType(existing) && def.Kind == language.Scalar {
				continue
			}
			b.errorf(def.Position, "type %s is defined more than once", def.Name)
			continue
		}
		b.s.Types[def.Name] = b.buildType(def)
	}
	for _, ext := range doc.Extensions {
		b.extend(ext)
	}
	for _, def := range doc.Directives {
		if existing, ok := b.s.Directives[def.Name]; ok {
			if !isBuiltinDirective(existing) {
				b.errorf(def.Position, "directive @%s is defined more than once", def.Name)
			}
			continue
		}
		b.s.Directives[def.Name] = b.buildDirective(def)
	}
	b.validate()

	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return b.s, nil
}

type builder struct {
	s    *Schema
	errs []error
}

func (b *builder) errorf(pos *language.Position, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if pos != nil && pos.Src != nil {
		msg = fmt.Sprintf("%s:%d: %s", pos.Src.Name, pos.Line, msg)
	}
	b.errs = append(b.errs, errors.New(msg))
}

func (b *builder) buildType(def *language.Definition) *Type {
	t := &Type{
		Name:          def.Name,
		Kind:          TypeKind(def.Kind),
		Description:   def.Description,
		Interfaces:    def.Interfaces,
		PossibleTypes: def.Types,
	}
	b.addMembers(t, def)
	return t
}

func (b *builder) extend(ext *language.Definition) {
	t, ok := b.s.Types[ext.Name]
	if !ok {
		b.errorf(ext.Position, "cannot extend undefined type %s", ext.Name)
		return
	}
	if isBuiltinType(t) {
		b.errorf(ext.Position, "cannot extend built-in type %s", ext.Name)
		return
	}
	if t.Kind != TypeKind(ext.Kind) {
		b.errorf(ext.Position, "cannot extend %s %s as %s", t.Kind, t.Name, ext.Kind)
		return
	}
	t.Interfaces = append(t.Interfaces, ext.Interfaces...)
	t.PossibleTypes = append(t.PossibleTypes, ext.Types...)
	b.addMembers(t, ext)
}

func (b *builder) addMembers(t *Type, def *language.Definition) {
	for _, fd := range def.Fields {
		if t.Kind == TypeKindInputObject {
			t.InputFields = append(t.InputFields, b.inputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue))
			continue
		}
		if t.Field(fd.Name) != nil {
			b.errorf(fd.Position, "field %s.%s is defined more than once", t.Name, fd.Name)
			continue
		}
		t.Fields = append(t.Fields, b.buildField(t, fd))
	}
	for _, ev := range def.EnumValues {
		v := &EnumValue{Name: ev.Name, Description: ev.Description}
		v.IsDeprecated, v.DeprecationReason = deprecation(ev.Directives)
		t.EnumValues = append(t.EnumValues, v)
	}
}

func (b *builder) buildField(parent *Type, fd *language.FieldDefinition) *Field {
	f := &Field{
		Name:        fd.Name,
		Description: fd.Description,
		Type:        typeRef(fd.Type),
	}
	for _, a := range fd.Arguments {
		f.Arguments = append(f.Arguments, b.inputValue(a.Name, a.Description, a.Type, a.DefaultValue))
	}
	f.IsDeprecated, f.DeprecationReason = deprecation(fd.Directives)

	if d := fd.Directives.ForName("service"); d != nil {
		ref := &ServiceRef{Method: fd.Name}
		ref.Name, _ = stringArgument(d, "name")
		if ref.Name == "" {
			b.errorf(fd.Position, "%s.%s: @service requires a name", parent.Name, fd.Name)
		}
		if m, ok := stringArgument(d, "method"); ok && m != "" {
			ref.Method = m
		}
		ref.With = listArgument(d, "with")
		f.Service = ref
	}
	if d := fd.Directives.ForName("source"); d != nil {
		f.Table, _ = stringArgument(d, "table")
		if f.Table == "" {
			b.errorf(fd.Position, "%s.%s: @source requires a table", parent.Name, fd.Name)
		}
	}
	return f
}

func (b *builder) inputValue(name, description string, t *language.Type, def *language.Value) *InputValue {
	v := &InputValue{Name: name, Description: description, Type: typeRef(t)}
	if def != nil {
		raw, err := def.Value(nil)
		if err != nil {
			b.errorf(def.Position, "default value of %s: %v", name, err)
		}
		v.DefaultValue = raw
	}
	return v
}

func (b *builder) buildDirective(def *language.DirectiveDefinition) *Directive {
	d := &Directive{Name: def.Name, Description: def.Description, IsRepeatable: def.IsRepeatable}
	for _, loc := range def.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, a := range def.Arguments {
		d.Arguments = append(d.Arguments, b.inputValue(a.Name, a.Description, a.Type, a.DefaultValue))
	}
	return d
}

func (b *builder) validate() {
	q := b.s.GetQueryType()
	if q == nil || q.Kind != TypeKindObject {
		b.errs = append(b.errs, fmt.Errorf("query type %s is not defined as an object type", b.s.QueryType))
	}
	for _, name := range sortedNames(b.s.Types) {
		t := b.s.Types[name]
		for _, f := range t.Fields {
			target, ok := b.s.Types[f.Type.NamedType()]
			if !ok {
				b.errs = append(b.errs, fmt.Errorf("%s.%s: unknown type %s", t.Name, f.Name, f.Type.NamedType()))
				continue
			}
			if target.Kind == TypeKindInputObject {
				b.errs = append(b.errs, fmt.Errorf("%s.%s: input type %s cannot be an output", t.Name, f.Name, target.Name))
			}
			if f.Table != "" && (t != q || !f.Type.IsList() || target.Kind != TypeKindObject) {
				b.errs = append(b.errs, fmt.Errorf("%s.%s: @source is only allowed on root list fields of object type", t.Name, f.Name))
			}
			if f.Service != nil && f.Table != "" {
				b.errs = append(b.errs, fmt.Errorf("%s.%s: a field cannot have both @service and @source", t.Name, f.Name))
			}
			if f.Service != nil {
				for _, w := range f.Service.With {
					if in := t.Field(w); in == nil || in.Service != nil {
						b.errs = append(b.errs, fmt.Errorf("%s.%s: @service input %q is not a data field of %s", t.Name, f.Name, w, t.Name))
					}
				}
			}
			for _, a := range f.Arguments {
				if _, ok := b.s.Types[a.Type.NamedType()]; !ok {
					b.errs = append(b.errs, fmt.Errorf("%s.%s(%s): unknown type %s", t.Name, f.Name, a.Name, a.Type.NamedType()))
				}
			}
		}
		for _, iface := range t.Interfaces {
			if _, ok := b.s.Types[iface]; !ok {
				b.errs = append(b.errs, fmt.Errorf("%s implements unknown interface %s", t.Name, iface))
			}
		}
	}
}

func typeRef(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(typeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

func deprecation(dirs language.DirectiveList) (bool, string) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return false, ""
	}
	reason, _ := stringArgument(d, "reason")
	return true, reason
}

func stringArgument(d *language.Directive, name string) (string, bool) {
	a := d.Arguments.ForName(name)
	if a == nil || a.Value == nil {
		return "", false
	}
	v, err := a.Value.Value(nil)
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func listArgument(d *language.Directive, name string) []string {
	a := d.Arguments.ForName(name)
	if a == nil || a.Value == nil {
		return nil
	}
	v, err := a.Value.Value(nil)
	if err != nil {
		return nil
	}
	switch v := v.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
