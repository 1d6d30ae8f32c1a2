// Package memsource serves pushdown expressions from data held in memory.
//
// Data is loaded from a YAML document whose top-level keys name the root data fields
// of the query type, or their @source table when one is declared:
//
//	people:
//	  - id: 1
//	    name: Ada
//	count: 1
//
// Values are coerced to the types the schema declares when the data is loaded.
package memsource

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hanpama/gqlplan/internal/coerce"
	"github.com/hanpama/gqlplan/internal/expr"
	"github.com/hanpama/gqlplan/internal/schema"
)

// Source evaluates pushdown expressions over an in-memory root record.
type Source struct {
	root map[string]any
}

// New builds a source from decoded tables. A table missing from tables reads as an empty
// list when its field is a non-null list, and as null otherwise. A nil registry uses the
// built-in converters.
func New(s *schema.Schema, tables map[string]any, registry *coerce.Registry) (*Source, error) {
	if registry == nil {
		registry = coerce.NewRegistry()
	}
	rootType, err := s.RootType()
	if err != nil {
		return nil, err
	}
	queryType := s.GetQueryType()
	root := make(map[string]any, len(rootType.Fields))
	for _, f := range rootType.Fields {
		key := f.Name
		if def := queryType.Field(f.Name); def != nil && def.Table != "" {
			key = def.Table
		}
		raw, ok := tables[key]
		if !ok && f.Type.Kind == expr.KindList && !f.Type.Nullable {
			raw = []any{}
		}
		v, err := registry.CoerceValue(raw, f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		root[f.Name] = v
	}
	return &Source{root: root}, nil
}

// Load reads a YAML document of tables from r.
func Load(s *schema.Schema, r io.Reader, registry *coerce.Registry) (*Source, error) {
	var tables map[string]any
	if err := yaml.NewDecoder(r).Decode(&tables); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return New(s, tables, registry)
}

// LoadFile reads a YAML document of tables from path.
func LoadFile(s *schema.Schema, path string, registry *coerce.Registry) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(s, f, registry)
}

func (*Source) Name() string { return "memory" }

// Query evaluates pushdown with root bound to the loaded data.
func (src *Source) Query(ctx context.Context, pushdown expr.Expr, root *expr.Param, consts map[*expr.Param]any) (any, error) {
	env := (&expr.Env{Params: consts}).Bind(root, src.root)
	return expr.Eval(ctx, pushdown, env)
}
