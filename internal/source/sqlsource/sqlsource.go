// Package sqlsource serves pushdown expressions from a relational database.
//
// Each root list field of the query type reads the table named by its @source
// directive, or the table of the same name. A root field whose expression is a chain
// of Where, OrderBy, Skip, Take and Select over such a table is translated into one
// SELECT statement. Any other root field is evaluated in memory over the full rows
// of the tables it reads.
//
// Only scalar columns are read; record and list fields of a row are null.
package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/hanpama/gqlplan/internal/coerce"
	"github.com/hanpama/gqlplan/internal/expr"
	"github.com/hanpama/gqlplan/internal/extract"
	"github.com/hanpama/gqlplan/internal/schema"
)

type Source struct {
	db       *sql.DB
	dialect  *Dialect
	registry *coerce.Registry
	tables   map[string]string // root field name -> table
}

// Open connects to the database at dsn and checks the connection.
func Open(ctx context.Context, d *Dialect, dsn string) (*sql.DB, error) {
	var db *sql.DB
	switch d {
	case Postgres:
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, err
		}
		db = stdlib.OpenDB(*cfg)
	default:
		var err error
		if db, err = sql.Open(d.Driver, dsn); err != nil {
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", d.Name, err)
	}
	return db, nil
}

// New creates a source reading the root tables of s from db. A nil registry uses the
// built-in converters.
func New(db *sql.DB, d *Dialect, s *schema.Schema, registry *coerce.Registry) (*Source, error) {
	if registry == nil {
		registry = coerce.NewRegistry()
	}
	rootType, err := s.RootType()
	if err != nil {
		return nil, err
	}
	queryType := s.GetQueryType()
	tables := map[string]string{}
	for _, f := range rootType.Fields {
		if f.Type.Kind != expr.KindList || f.Type.ElemType().Kind != expr.KindRecord {
			continue
		}
		table := f.Name
		if def := queryType.Field(f.Name); def != nil && def.Table != "" {
			table = def.Table
		}
		tables[f.Name] = table
	}
	return &Source{db: db, dialect: d, registry: registry, tables: tables}, nil
}

func (src *Source) Name() string { return src.dialect.Name }

func (src *Source) Close() error { return src.db.Close() }

// Query runs every translatable root field as its own statement and evaluates the
// rest in memory.
func (src *Source) Query(ctx context.Context, pushdown expr.Expr, root *expr.Param, consts map[*expr.Param]any) (any, error) {
	n, ok := pushdown.(*expr.New)
	if !ok {
		return src.evaluate(ctx, pushdown, root, consts)
	}
	out := make(map[string]any, len(n.Fields))
	for _, f := range n.Fields {
		st, err := src.Translate(ctx, f.X, root, consts)
		if errors.Is(err, ErrUnsupported) {
			v, err := src.evaluate(ctx, f.X, root, consts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			out[f.Name] = v
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		rows, err := src.run(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out[f.Name] = rows
	}
	return out, nil
}

// evaluate loads the tables e reads and evaluates e over them.
func (src *Source) evaluate(ctx context.Context, e expr.Expr, root *expr.Param, consts map[*expr.Param]any) (any, error) {
	data := map[string]any{}
	for _, m := range extract.Members(e, root) {
		_, path := expr.MemberPath(m)
		name := path[0]
		if _, done := data[name]; done {
			continue
		}
		data[name] = nil
		if _, ok := src.tables[name]; !ok {
			continue
		}
		scan, err := expr.NewMember(root, name)
		if err != nil {
			return nil, err
		}
		st, err := src.Translate(ctx, scan, root, consts)
		if err != nil {
			return nil, err
		}
		if data[name], err = src.run(ctx, st); err != nil {
			return nil, err
		}
	}
	env := (&expr.Env{Params: consts}).Bind(root, data)
	v, err := expr.Eval(ctx, e, env)
	if err != nil {
		return nil, err
	}
	return expr.Materialize(v)
}
