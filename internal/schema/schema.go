package schema

import "sync"

// Schema is a GraphQL schema whose fields are backed either by a data source or by an
// in-process service.
type Schema struct {
	QueryType   string
	Types       map[string]*Type // All named types keyed by name
	Directives  map[string]*Directive
	Description string

	recordsOnce sync.Once
	records     *records
}

// GetQueryType returns the root query type (may be nil if absent)
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// Type is a named GraphQL type (object, interface, union, scalar, enum, input)
type Type struct {
	Name          string
	Kind          TypeKind
	Description   string
	Fields        []*Field      // For OBJECT and INTERFACE
	Interfaces    []string      // For OBJECT and INTERFACE
	PossibleTypes []string      // For UNION
	EnumValues    []*EnumValue  // For ENUM
	InputFields   []*InputValue // For INPUT_OBJECT
}

// Field returns the named field or nil.
func (t *Type) Field(name string) *Field {
	if t == nil {
		return nil
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Field is a field on an object or interface.
//
// A field with a Service is computed by calling that service; every other field is read
// from the parent record. Table names the relational table a root list field reads.
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	Service           *ServiceRef
	Table             string
	IsDeprecated      bool
	DeprecationReason string
}

// Argument returns the named argument definition or nil.
func (f *Field) Argument(name string) *InputValue {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// ServiceRef binds a field to a service method. With lists the parent fields passed as
// leading arguments; the field's own arguments follow in declaration order.
type ServiceRef struct {
	Name   string
	Method string
	With   []string
}

// TypeKind represents the kind of GraphQL type
type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef represents a reference to a type (can be wrapped)
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef // For List and NonNull
	Named  string   // For named types
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

func (t *TypeRef) IsNonNull() bool {
	return t != nil && t.Kind == TypeRefKindNonNull
}

// IsList reports whether t is a list, possibly wrapped in Non-Null.
func (t *TypeRef) IsList() bool {
	if t == nil {
		return false
	}
	if t.Kind == TypeRefKindNonNull {
		return t.OfType != nil && t.OfType.Kind == TypeRefKindList
	}
	return t.Kind == TypeRefKindList
}

func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindNonNull || t.Kind == TypeRefKindList {
		return t.OfType
	}
	return t
}

// NamedType returns the innermost type name.
func (t *TypeRef) NamedType() string {
	for cur := t; cur != nil; cur = cur.OfType {
		if cur.Named != "" {
			return cur.Named
		}
	}
	return ""
}

func (t *TypeRef) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindList:
		return "[" + t.OfType.String() + "]"
	case TypeRefKindNonNull:
		return t.OfType.String() + "!"
	}
	return t.Named
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

type InputValue struct {
	Name         string
	Description  string
	Type         *TypeRef
	DefaultValue any
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }

// IsNonNull reports whether the type is wrapped with Non-Null.
func IsNonNull(t *TypeRef) bool { return t.IsNonNull() }

// IsList reports whether the type is (or is wrapped by) a list type.
func IsList(t *TypeRef) bool { return t.IsList() }
