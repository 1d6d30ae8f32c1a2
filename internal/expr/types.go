package expr

import (
	"strings"
)

// Kind identifies the shape of an IR value.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt16
	KindInt32
	KindInt64
	KindFloat
	KindDecimal
	KindBool
	KindUUID
	KindRecord
	KindList
)

var kindNames = map[Kind]string{
	KindAny:     "Any",
	KindString:  "String",
	KindInt16:   "Int16",
	KindInt32:   "Int32",
	KindInt64:   "Int64",
	KindFloat:   "Float",
	KindDecimal: "Decimal",
	KindBool:    "Bool",
	KindUUID:    "UUID",
	KindRecord:  "Record",
	KindList:    "List",
}

func (k Kind) String() string { return kindNames[k] }

// IsNumeric reports whether values of the kind take part in arithmetic.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindInt16, KindInt32, KindInt64, KindFloat, KindDecimal:
		return true
	}
	return false
}

// Type is the static type of an expression.
type Type struct {
	Kind     Kind
	Nullable bool
	Elem     *Type        // For KindList
	Fields   []*FieldType // For KindRecord, in declaration order
	Name     string       // Named record types; anonymous projections leave it empty
}

// FieldType is one member of a record type.
type FieldType struct {
	Name string
	Type *Type
}

var (
	AnyType     = &Type{Kind: KindAny, Nullable: true}
	StringType  = &Type{Kind: KindString}
	Int16Type   = &Type{Kind: KindInt16}
	Int32Type   = &Type{Kind: KindInt32}
	Int64Type   = &Type{Kind: KindInt64}
	FloatType   = &Type{Kind: KindFloat}
	DecimalType = &Type{Kind: KindDecimal}
	BoolType    = &Type{Kind: KindBool}
	UUIDType    = &Type{Kind: KindUUID}
)

func ListOf(elem *Type) *Type { return &Type{Kind: KindList, Elem: elem} }

// RecordOf returns an anonymous record type.
func RecordOf(fields ...*FieldType) *Type { return &Type{Kind: KindRecord, Fields: fields} }

// NamedRecord returns an empty named record type. Fields are added with AddField so
// that recursive types can be built.
func NamedRecord(name string) *Type { return &Type{Kind: KindRecord, Name: name} }

func (t *Type) AddField(name string, ft *Type) *Type {
	t.Fields = append(t.Fields, &FieldType{Name: name, Type: ft})
	return t
}

// OrNull returns a nullable copy of t.
func (t *Type) OrNull() *Type {
	if t.Nullable {
		return t
	}
	c := *t
	c.Nullable = true
	return &c
}

// NonNull returns a non-nullable copy of t.
func (t *Type) NonNull() *Type {
	if !t.Nullable {
		return t
	}
	c := *t
	c.Nullable = false
	return &c
}

// FieldType returns the type of the named record field, or nil when t has no such field.
func (t *Type) FieldType(name string) *Type {
	if t == nil {
		return nil
	}
	if t.Kind == KindAny {
		return AnyType
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type
		}
	}
	return nil
}

// ElemType returns the element type of a list type, or AnyType.
func (t *Type) ElemType() *Type {
	if t != nil && t.Kind == KindList && t.Elem != nil {
		return t.Elem
	}
	return AnyType
}

// Equal reports structural equality. Named records compare by name, which keeps
// recursive schema types finite.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	if t.Kind != o.Kind || t.Nullable != o.Nullable {
		return false
	}
	switch t.Kind {
	case KindList:
		return t.ElemType().Equal(o.ElemType())
	case KindRecord:
		if t.Name != "" || o.Name != "" {
			return t.Name == o.Name
		}
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
	}
	return true
}

// Same reports equality ignoring nullability.
func (t *Type) Same(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.NonNull().Equal(o.NonNull())
}

// Compatible reports whether a value of type o may stand where t is expected.
// Records are always compatible with records; member accesses are checked where
// they are built.
func (t *Type) Compatible(o *Type) bool {
	if t == nil || o == nil {
		return false
	}
	if t.Kind == KindAny || o.Kind == KindAny {
		return true
	}
	if t.Kind.IsNumeric() && o.Kind.IsNumeric() {
		return true
	}
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind == KindList {
		return t.ElemType().Compatible(o.ElemType())
	}
	return true
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var b strings.Builder
	switch t.Kind {
	case KindList:
		b.WriteString("[")
		b.WriteString(t.ElemType().String())
		b.WriteString("]")
	case KindRecord:
		if t.Name != "" {
			b.WriteString(t.Name)
			break
		}
		b.WriteString("{")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			b.WriteString(f.Type.String())
		}
		b.WriteString("}")
	default:
		b.WriteString(t.Kind.String())
	}
	if t.Nullable && t.Kind != KindAny {
		b.WriteString("?")
	}
	return b.String()
}
