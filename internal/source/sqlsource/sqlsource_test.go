package sqlsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlplan/internal/binder"
	"github.com/hanpama/gqlplan/internal/expr"
	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/plan"
	"github.com/hanpama/gqlplan/internal/schema"
)

const sdl = `
type Query {
  people(filter: String, orderBy: [String!], first: Int, skip: Int, city: String): [Person!]! @source(table: "person")
  motto: String
}

type Person {
  id: ID!
  name: String!
  age: Int
  city: String
  active: Boolean
  score: Float @service(name: "scoring", with: ["id"])
}
`

const fixture = `
CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL, age INTEGER, city TEXT, active INTEGER);
INSERT INTO person VALUES ('1', 'Ada', 36, 'Seoul', 1);
INSERT INTO person VALUES ('2', 'Grace', 85, 'Busan', 0);
INSERT INTO person VALUES ('3', 'Linus', 12, NULL, NULL);
INSERT INTO person VALUES ('4', 'Alan', 41, 'Seoul', 1);
`

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL(&language.Source{Name: "test.graphql", Input: sdl})
	require.NoError(t, err)
	return s
}

func openSQLite(t *testing.T, s *schema.Schema) *Source {
	t.Helper()
	db, err := Open(context.Background(), SQLite, ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range splitStatements(fixture) {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	src, err := New(db, SQLite, s, nil)
	require.NoError(t, err)
	return src
}

func splitStatements(script string) []string {
	var out []string
	start := 0
	for i, r := range script {
		if r == ';' {
			out = append(out, script[start:i])
			start = i + 1
		}
	}
	return out
}

type fixtureExprs struct {
	root        *expr.Param
	people      *expr.Member
	p           *expr.Param
	first, skip *expr.Param
	name, age   *expr.Member
	city, id    *expr.Member
	consts      map[*expr.Param]any
}

func exprs(t *testing.T, s *schema.Schema) fixtureExprs {
	t.Helper()
	rootType, err := s.RootType()
	require.NoError(t, err)
	f := fixtureExprs{root: expr.NewParam(binder.RootName, rootType)}
	f.people = must(expr.NewMember(f.root, "people"))
	f.p = expr.NewParam("p", f.people.Type().ElemType())
	f.name = must(expr.NewMember(f.p, "name"))
	f.age = must(expr.NewMember(f.p, "age"))
	f.city = must(expr.NewMember(f.p, "city"))
	f.id = must(expr.NewMember(f.p, "id"))
	f.first = expr.NewParam("$first", expr.Int64Type)
	f.skip = expr.NewParam("$skip", expr.Int64Type)
	f.consts = map[*expr.Param]any{f.first: int64(2), f.skip: int64(1)}
	return f
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestTranslate(t *testing.T) {
	s := testSchema(t)
	f := exprs(t, s)
	src, err := New(nil, SQLite, s, nil)
	require.NoError(t, err)

	pred := must(expr.NewBinary(expr.OpAnd,
		must(expr.NewBinary(expr.OpGe, f.age, expr.NewConst(int64(18), expr.Int64Type))),
		must(expr.NewBinary(expr.OpNe, f.city, expr.NewConst("Busan", expr.StringType)))))
	chain := expr.Expr(must(expr.NewWhere(f.people, expr.NewLambda(f.p, pred))))
	chain = must(expr.NewOrderBy(chain, expr.SortKey{Key: expr.NewLambda(f.p, f.name), Desc: true}))
	chain = must(expr.NewSkip(chain, f.skip))
	chain = must(expr.NewTake(chain, f.first))
	proj := must(expr.NewNew(expr.NewField{Name: "name", X: f.name}, expr.NewField{Name: "age", X: f.age}))
	chain = must(expr.NewSelect(chain, expr.NewLambda(f.p, proj)))

	tests := []struct {
		name string
		e    expr.Expr
		sql  string
		args []any
	}{
		{
			name: "table scan",
			e:    f.people,
			sql:  `SELECT "id", "name", "age", "city", "active" FROM "person"`,
		},
		{
			name: "full chain",
			e:    chain,
			sql:  `SELECT "name" AS "name", "age" AS "age" FROM "person" WHERE (("age" IS NOT NULL AND "age" >= ?) AND ("city" IS NOT ?)) ORDER BY "name" DESC NULLS LAST LIMIT ? OFFSET ?`,
			args: []any{int64(18), "Busan", int64(2), int64(1)},
		},
		{
			name: "offset only",
			e:    must(expr.NewSkip(f.people, f.skip)),
			sql:  `SELECT "id", "name", "age", "city", "active" FROM "person" LIMIT -1 OFFSET ?`,
			args: []any{int64(1)},
		},
		{
			name: "null test",
			e:    must(expr.NewWhere(f.people, expr.NewLambda(f.p, must(expr.NewBinary(expr.OpEq, f.city, expr.Null()))))),
			sql:  `SELECT "id", "name", "age", "city", "active" FROM "person" WHERE ("city" IS NULL)`,
		},
		{
			name: "scalar projection",
			e:    must(expr.NewSelect(f.people, expr.NewLambda(f.p, expr.NewCall("", "upper", expr.StringType, f.name)))),
			sql:  `SELECT upper("name") AS "value" FROM "person"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := src.Translate(context.Background(), tt.e, f.root, f.consts)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, st.SQL)
			assert.Equal(t, tt.args, st.Args)
		})
	}
}

func TestTranslatePostgres(t *testing.T) {
	s := testSchema(t)
	f := exprs(t, s)
	src, err := New(nil, Postgres, s, nil)
	require.NoError(t, err)

	name := expr.NewParam("$name", expr.StringType)
	f.consts[name] = "Ada"
	prefix := expr.NewConst("A", expr.StringType)
	pred := must(expr.NewBinary(expr.OpOr,
		must(expr.NewBinary(expr.OpEq, f.name, name)),
		expr.NewCall("", "startsWith", expr.BoolType, f.name, prefix)))
	e := must(expr.NewTake(must(expr.NewWhere(f.people, expr.NewLambda(f.p, pred))), f.first))

	st, err := src.Translate(context.Background(), e, f.root, f.consts)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "name", "age", "city", "active" FROM "person" WHERE (("name" = $1::text) OR (substr("name", 1, length($2::text)) = $3::text)) LIMIT $4::bigint`, st.SQL)
	assert.Equal(t, []any{"Ada", "A", "A", int64(2)}, st.Args)
}

func TestTranslateUnsupported(t *testing.T) {
	s := testSchema(t)
	f := exprs(t, s)
	src, err := New(nil, SQLite, s, nil)
	require.NoError(t, err)

	call := expr.NewCall("scoring", "score", expr.FloatType.OrNull(), f.id)
	tests := map[string]expr.Expr{
		"service call":     must(expr.NewSelect(f.people, expr.NewLambda(f.p, call))),
		"where after take": must(expr.NewWhere(must(expr.NewTake(f.people, f.first)), expr.NewLambda(f.p, must(expr.NewBinary(expr.OpGt, f.age, expr.NewConst(int64(1), expr.Int64Type)))))),
		"not a table":      must(expr.NewMember(f.root, "motto")),
	}
	for name, e := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := src.Translate(context.Background(), e, f.root, f.consts)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func run(t *testing.T, src *Source, query string) any {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	root, err := binder.New(testSchema(t)).Bind(doc, "", nil)
	require.NoError(t, err)
	p, err := plan.NewCompiler(nil, nil).Build(root)
	require.NoError(t, err)
	v, err := src.Query(context.Background(), p.Pushdown, p.Root, p.Constants)
	require.NoError(t, err)
	return v
}

func TestQuery(t *testing.T) {
	s := testSchema(t)
	src := openSQLite(t, s)

	got := run(t, src, `{ people(filter: "age >= 18 && city != 'Busan'", orderBy: ["name desc"]) { name age active } motto }`)
	assert.Equal(t, map[string]any{
		"people": []any{
			map[string]any{"name": "Alan", "age": int32(41), "active": true},
			map[string]any{"name": "Ada", "age": int32(36), "active": true},
		},
		"motto": nil,
	}, got)

	got = run(t, src, `{ people(orderBy: ["id"], first: 2, skip: 1) { __typename name } }`)
	assert.Equal(t, map[string]any{
		"people": []any{
			map[string]any{"__typename": "Person", "name": "Grace"},
			map[string]any{"__typename": "Person", "name": "Linus"},
		},
	}, got)

	got = run(t, src, `{ people(city: "Seoul", orderBy: ["age desc"]) { id } }`)
	assert.Equal(t, map[string]any{
		"people": []any{map[string]any{"id": "4"}, map[string]any{"id": "1"}},
	}, got)
}

func TestQueryNullOrdering(t *testing.T) {
	s := testSchema(t)
	src := openSQLite(t, s)
	got := run(t, src, `{ people(orderBy: ["city", "id"]) { id } }`)
	assert.Equal(t, map[string]any{
		"people": []any{
			map[string]any{"id": "3"},
			map[string]any{"id": "2"},
			map[string]any{"id": "1"},
			map[string]any{"id": "4"},
		},
	}, got)
}

func TestQueryFallsBackToMemory(t *testing.T) {
	s := testSchema(t)
	src := openSQLite(t, s)
	f := exprs(t, s)

	older := must(expr.NewBinary(expr.OpGt, f.age, expr.NewConst(int64(30), expr.Int64Type)))
	first := must(expr.NewTake(f.people, expr.NewConst(int64(1), expr.Int64Type)))
	names := must(expr.NewSelect(must(expr.NewWhere(first, expr.NewLambda(f.p, older))), expr.NewLambda(f.p, f.name)))
	pushdown := must(expr.NewNew(expr.NewField{Name: "names", X: names}))

	got, err := src.Query(context.Background(), pushdown, f.root, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"names": []any{"Ada"}}, got)
}

func TestQueryScalarProjection(t *testing.T) {
	s := testSchema(t)
	src := openSQLite(t, s)
	f := exprs(t, s)

	ordered := must(expr.NewOrderBy(f.people, expr.SortKey{Key: expr.NewLambda(f.p, f.id)}))
	names := must(expr.NewSelect(ordered, expr.NewLambda(f.p, f.name)))
	pushdown := must(expr.NewNew(expr.NewField{Name: "names", X: names}))

	got, err := src.Query(context.Background(), pushdown, f.root, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"names": []any{"Ada", "Grace", "Linus", "Alan"}}, got)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &Dialect{Name: "nope", Driver: "nope"}, "")
	require.Error(t, err)
	_, err = DialectFor("oracle")
	require.Error(t, err)
}
