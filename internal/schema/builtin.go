package schema

var stringType = &Type{
	Name:        "String",
	Kind:        TypeKindScalar,
	Description: "The `String` scalar type represents textual data, represented as UTF-8 character sequences.",
}

var intType = &Type{
	Name:        "Int",
	Kind:        TypeKindScalar,
	Description: "The `Int` scalar type represents non-fractional signed whole numeric values.",
}

var floatType = &Type{
	Name:        "Float",
	Kind:        TypeKindScalar,
	Description: "The `Float` scalar type represents signed double-precision fractional values.",
}

var booleanType = &Type{
	Name:        "Boolean",
	Kind:        TypeKindScalar,
	Description: "The `Boolean` scalar type represents `true` or `false`.",
}

var idType = &Type{
	Name:        "ID",
	Kind:        TypeKindScalar,
	Description: "The `ID` scalar type represents a unique identifier.",
}

// Scalars every schema can use without declaring them.
var (
	uuidType    = &Type{Name: "UUID", Kind: TypeKindScalar, Description: "RFC 4122 identifier in its canonical text form."}
	decimalType = &Type{Name: "Decimal", Kind: TypeKindScalar, Description: "Arbitrary precision decimal number, serialized as a string."}
	longType    = &Type{Name: "Long", Kind: TypeKindScalar, Description: "64-bit signed integer."}
	shortType   = &Type{Name: "Short", Kind: TypeKindScalar, Description: "16-bit signed integer."}
)

var builtinTypes = []*Type{stringType, intType, floatType, booleanType, idType, uuidType, decimalType, longType, shortType}

func ifArgument(description string) []*InputValue {
	return []*InputValue{{
		Name:        "if",
		Description: description,
		Type:        NonNullType(NamedType("Boolean")),
	}}
}

var includeDirective = &Directive{
	Name:        "include",
	Description: "Directs the executor to include this field or fragment only when the `if` argument is true.",
	Arguments:   ifArgument("Included when true."),
	Locations:   []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
}

var skipDirective = &Directive{
	Name:        "skip",
	Description: "Directs the executor to skip this field or fragment when the `if` argument is true.",
	Arguments:   ifArgument("Skipped when true."),
	Locations:   []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
}

var serviceDirective = &Directive{
	Name:        "service",
	Description: "Resolves the field by calling a registered service method.",
	Arguments: []*InputValue{
		{Name: "name", Type: NonNullType(NamedType("String"))},
		{Name: "method", Type: NamedType("String")},
		{Name: "with", Type: ListType(NonNullType(NamedType("String")))},
	},
	Locations: []string{"FIELD_DEFINITION"},
}

var sourceDirective = &Directive{
	Name:        "source",
	Description: "Names the table a root list field is read from.",
	Arguments:   []*InputValue{{Name: "table", Type: NonNullType(NamedType("String"))}},
	Locations:   []string{"FIELD_DEFINITION"},
}

var builtinDirectives = []*Directive{includeDirective, skipDirective, serviceDirective, sourceDirective}

func isBuiltinType(t *Type) bool {
	for _, b := range builtinTypes {
		if t == b {
			return true
		}
	}
	return false
}

func isBuiltinDirective(d *Directive) bool {
	for _, b := range builtinDirectives {
		if d == b {
			return true
		}
	}
	return false
}
