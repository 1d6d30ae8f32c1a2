// Package coerce converts untyped literals into the runtime values of IR scalar types.
//
// A Registry is a table from expr.Kind to Converter. It is populated at startup and
// read-only afterwards; Coerce may then be called concurrently.
package coerce

import (
	"errors"
	"fmt"

	"github.com/hanpama/gqlplan/internal/expr"
)

var (
	// ErrUnsupportedConversion reports a target type without a registered converter.
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	// ErrConversionFailed reports a converter that rejected its input.
	ErrConversionFailed = errors.New("conversion failed")
)

// Converter turns a raw literal (usually a string or a decoded JSON value) into the
// runtime representation of one scalar kind. It is never called with nil.
type Converter func(raw any) (any, error)

type Registry struct {
	converters map[expr.Kind]Converter
}

// NewRegistry returns a registry holding the built-in scalar converters.
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[expr.Kind]Converter, len(builtins))}
	for k, c := range builtins {
		r.converters[k] = c
	}
	return r
}

// Register adds a converter for kind. Composite kinds cannot be registered and each
// kind may be registered once.
func (r *Registry) Register(kind expr.Kind, c Converter) error {
	if c == nil {
		return fmt.Errorf("register %s: nil converter", kind)
	}
	switch kind {
	case expr.KindRecord, expr.KindList, expr.KindAny:
		return fmt.Errorf("register %s: not a scalar kind", kind)
	}
	if _, ok := r.converters[kind]; ok {
		return fmt.Errorf("register %s: converter already registered", kind)
	}
	r.converters[kind] = c
	return nil
}

// Coerce converts raw to a value of type t. Nullable types are unwrapped before the
// converter runs; nil coerced into a nullable type yields nil.
func (r *Registry) Coerce(raw any, t *expr.Type) (any, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: no target type", ErrUnsupportedConversion)
	}
	if t.Kind == expr.KindAny {
		return raw, nil
	}
	c, ok := r.converters[t.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConversion, t)
	}
	if raw == nil {
		if t.Nullable {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: null for non-null %s", ErrConversionFailed, t)
	}
	v, err := c(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v to %s: %w", ErrConversionFailed, raw, t.NonNull(), err)
	}
	return v, nil
}

// CoerceValue converts a decoded document value to type t, descending into lists and
// records. Record fields missing from raw are coerced from nil; keys the record does
// not declare are dropped.
func (r *Registry) CoerceValue(raw any, t *expr.Type) (any, error) {
	if raw == nil && (t.Kind == expr.KindList || t.Kind == expr.KindRecord) {
		if t.Nullable {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: null for non-null %s", ErrConversionFailed, t)
	}
	switch t.Kind {
	case expr.KindList:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %T to %s", ErrConversionFailed, raw, t)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := r.CoerceValue(item, t.ElemType())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case expr.KindRecord:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %T to %s", ErrConversionFailed, raw, t)
		}
		out := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			v, err := r.CoerceValue(m[f.Name], f.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			out[f.Name] = v
		}
		return out, nil
	}
	return r.Coerce(raw, t)
}
