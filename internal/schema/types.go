package schema

import (
	"fmt"

	"github.com/hanpama/gqlplan/internal/expr"
)

var scalarKinds = map[string]*expr.Type{
	"String":  expr.StringType,
	"ID":      expr.StringType,
	"Int":     expr.Int32Type,
	"Float":   expr.FloatType,
	"Boolean": expr.BoolType,
	"UUID":    expr.UUIDType,
	"Decimal": expr.DecimalType,
	"Long":    expr.Int64Type,
	"Short":   expr.Int16Type,
}

type records struct {
	byName map[string]*expr.Type
	err    error
}

// RootType returns the record type of the query root.
func (s *Schema) RootType() (*expr.Type, error) {
	return s.RecordType(s.QueryType)
}

// RecordType returns the record type of an object or interface. The record holds the
// data fields only; service fields are computed and never read from a record.
func (s *Schema) RecordType(name string) (*expr.Type, error) {
	r := s.buildRecords()
	if r.err != nil {
		return nil, r.err
	}
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%s is not an object type", name)
	}
	return t, nil
}

// ExprType maps a GraphQL type reference to the IR type of its values. GraphQL types
// are nullable unless wrapped in Non-Null.
func (s *Schema) ExprType(ref *TypeRef) (*expr.Type, error) {
	r := s.buildRecords()
	if r.err != nil {
		return nil, r.err
	}
	return s.exprType(ref, r.byName)
}

func (s *Schema) buildRecords() *records {
	s.recordsOnce.Do(func() {
		r := &records{byName: map[string]*expr.Type{}}
		// Field slots are allocated before any field type is computed so that recursive
		// references share them.
		for name, t := range s.Types {
			if t.Kind != TypeKindObject && t.Kind != TypeKindInterface {
				continue
			}
			rec := expr.NamedRecord(name)
			for _, f := range t.Fields {
				if f.Service == nil {
					rec.Fields = append(rec.Fields, &expr.FieldType{Name: f.Name})
				}
			}
			r.byName[name] = rec
		}
		for name, rec := range r.byName {
			for _, ft := range rec.Fields {
				t, err := s.exprType(s.Types[name].Field(ft.Name).Type, r.byName)
				if err != nil {
					r.err = fmt.Errorf("%s.%s: %w", name, ft.Name, err)
					return
				}
				ft.Type = t
			}
		}
		s.records = r
	})
	return s.records
}

func (s *Schema) exprType(ref *TypeRef, recs map[string]*expr.Type) (*expr.Type, error) {
	if ref == nil {
		return nil, fmt.Errorf("missing type")
	}
	var t *expr.Type
	switch ref.Kind {
	case TypeRefKindNonNull:
		inner, err := s.exprType(ref.OfType, recs)
		if err != nil {
			return nil, err
		}
		return inner.NonNull(), nil
	case TypeRefKindList:
		elem, err := s.exprType(ref.OfType, recs)
		if err != nil {
			return nil, err
		}
		t = expr.ListOf(elem)
	default:
		named, ok := s.Types[ref.Named]
		if !ok {
			return nil, fmt.Errorf("unknown type %s", ref.Named)
		}
		switch named.Kind {
		case TypeKindScalar:
			t = scalarKinds[named.Name]
			if t == nil {
				t = expr.AnyType
			}
		case TypeKindEnum:
			t = expr.StringType
		case TypeKindObject, TypeKindInterface:
			t = recs[named.Name]
		default:
			t = expr.AnyType
		}
	}
	return t.OrNull(), nil
}
