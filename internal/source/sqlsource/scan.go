package sqlsource

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"

	"github.com/hanpama/gqlplan/internal/expr"
)

// run executes st and converts its rows to records, or to values for a scalar
// projection.
func (src *Source) run(ctx context.Context, st *Statement) ([]any, error) {
	rows, err := src.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", st.SQL, err)
	}
	defer rows.Close()

	n := len(st.Columns)
	if n == 0 {
		n = 1 // SELECT 1
	}
	vals := make([]any, n)
	ptrs := make([]any, n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	out := []any{}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", st.SQL, err)
		}
		if st.Scalar {
			v, err := src.value(vals[0], st.Columns[0].Type)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			continue
		}
		rec := make(map[string]any, len(st.Columns)+len(st.Fixed))
		for i, c := range st.Columns {
			v, err := src.value(vals[i], c.Type)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			rec[c.Name] = v
		}
		for k, v := range st.Fixed {
			rec[k] = v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// value converts a scanned column to the runtime value of t.
func (src *Source) value(raw any, t *expr.Type) (any, error) {
	if v, ok := raw.(driver.Valuer); ok {
		var err error
		if raw, err = v.Value(); err != nil {
			return nil, err
		}
	}
	switch v := raw.(type) {
	case []byte:
		if t.Kind == expr.KindUUID && len(v) == 16 {
			return uuid.FromBytes(v)
		}
		raw = string(v)
	case [16]byte:
		if t.Kind == expr.KindUUID {
			return uuid.UUID(v), nil
		}
	case int64:
		if t.Kind == expr.KindBool {
			return v != 0, nil
		}
	}
	if raw == nil {
		// NULL reads as null even in a column declared non-null.
		return nil, nil
	}
	return src.registry.Coerce(raw, t)
}
