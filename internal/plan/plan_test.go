package plan

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/gqlplan/internal/coerce"
	"github.com/hanpama/gqlplan/internal/expr"
	"github.com/hanpama/gqlplan/internal/rewrite"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	personT = expr.NamedRecord("Person").
		AddField("id", expr.Int32Type).
		AddField("name", expr.StringType).
		AddField("fullName", expr.StringType).
		AddField("age", expr.Int32Type).
		AddField("city", expr.StringType)
	queryT = expr.NamedRecord("Query").
		AddField("people", expr.ListOf(personT)).
		AddField("Person", personT).
		AddField("best", personT.OrNull())
)

func member(t *testing.T, x expr.Expr, path ...string) expr.Expr {
	t.Helper()
	for _, name := range path {
		m, err := expr.NewMember(x, name)
		require.NoError(t, err)
		x = m
	}
	return x
}

// fixture holds the parameters one test query is written against.
type fixture struct {
	t   *testing.T
	ctx *expr.Param
	p   *expr.Param
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, ctx: expr.NewParam("ctx", queryT), p: expr.NewParam("p", personT)}
}

func (f *fixture) field(name string) *Scalar {
	return &Scalar{Name: name, Expr: member(f.t, f.p, name), Param: f.p}
}

func (f *fixture) score() *Scalar {
	return &Scalar{Name: "score", Expr: expr.NewCall("scoring", "score", expr.Int32Type, member(f.t, f.p, "id")), Param: f.p}
}

func (f *fixture) people(source expr.Expr, children ...Selection) *List {
	if source == nil {
		source = member(f.t, f.ctx, "people")
	}
	return &List{Name: "people", Field: "Query.people", Expr: source, Param: f.ctx, Elem: f.p, Children: children}
}

func (f *fixture) root(children ...Selection) *Object {
	return NewRoot(f.ctx, children...)
}

func testData() map[string]any {
	return map[string]any{
		"people": []any{
			map[string]any{"id": int32(1), "name": "Ann", "age": int32(34), "city": "Oslo"},
			map[string]any{"id": int32(2), "name": "Bob", "age": int32(12), "city": "Rome"},
			map[string]any{"id": int32(3), "name": "Cid", "age": int32(18), "city": "Oslo"},
		},
		"Person": map[string]any{"id": int32(9), "name": "Dee", "fullName": "Dee Dow"},
	}
}

type scoring struct{ calls int }

func (s *scoring) Call(_ context.Context, service, method string, args []any) (any, error) {
	s.calls++
	if len(args) == 0 {
		return int64(s.calls), nil
	}
	if id, ok := args[0].(int32); ok {
		return int64(id) * 10, nil
	}
	return nil, nil
}

// run executes a plan the way the executor does: pushdown against the data, then the
// post expression over the materialized result.
func run(t *testing.T, plan *Plan, data any, caller expr.Caller) any {
	t.Helper()
	env := &expr.Env{Params: map[*expr.Param]any{plan.Root: data}, Caller: caller}
	for p, v := range plan.Constants {
		env = env.Bind(p, v)
	}
	out, err := expr.Eval(context.Background(), plan.Pushdown, env)
	require.NoError(t, err)
	out, err = expr.Materialize(out)
	require.NoError(t, err)
	if !plan.TwoPass() {
		return out
	}
	out, err = expr.Eval(context.Background(), plan.Post, env.Bind(plan.Materialized, out))
	require.NoError(t, err)
	out, err = expr.Materialize(out)
	require.NoError(t, err)
	return out
}

func TestFlatScalarSelection(t *testing.T) {
	f := newFixture(t)
	x := expr.NewParam("x", personT)
	person := &Object{
		Name:     "person",
		Field:    "Query.Person",
		Expr:     member(t, f.ctx, "Person"),
		Param:    f.ctx,
		Elem:     x,
		Children: []Selection{&Scalar{Name: "fullName", Expr: member(t, x, "fullName"), Param: x}},
	}
	c := NewCompiler(nil, nil)

	res, err := c.Compile(person, Full, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t, "new {fullName = ctx.Person.fullName}", expr.String(res.Expr))
	assert.Empty(t, res.Services)

	plan, err := c.Build(f.root(person))
	require.NoError(t, err)
	assert.False(t, plan.TwoPass())
	want := map[string]any{"person": map[string]any{"fullName": "Dee Dow"}}
	if diff := cmp.Diff(want, run(t, plan, testData(), nil)); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestListWithPureFields(t *testing.T) {
	f := newFixture(t)
	list := f.people(nil, f.field("id"), f.field("name"))
	c := NewCompiler(nil, nil)

	pushdown, err := c.Compile(list, PushdownOnly, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t, "ctx.people.Select(p => new {id = p.id, name = p.name})", expr.String(pushdown.Expr))
	assert.Empty(t, pushdown.Services)

	full, err := c.Compile(list, Full, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.True(t, expr.Equal(pushdown.Expr, full.Expr), "full pass differs: %s", expr.String(full.Expr))
}

func TestListWithServiceField(t *testing.T) {
	f := newFixture(t)
	list := f.people(nil, f.field("id"), f.field("name"), f.score())
	c := NewCompiler(nil, nil)

	pushdown, err := c.Compile(list, PushdownOnly, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t, "ctx.people.Select(p => new {id = p.id, name = p.name})", expr.String(pushdown.Expr))
	assert.Equal(t, []string{"scoring"}, pushdown.Services)

	rec, err := expr.NewNew(expr.NewField{Name: "people", X: pushdown.Expr})
	require.NoError(t, err)
	r := expr.NewParam("r", rec.Type())
	full, err := c.Compile(list, Full, Context{Expr: r, Materialized: true})
	require.NoError(t, err)
	assert.Equal(t, "r.people.Select(p => new {id = p.id, name = p.name, score = @scoring.score(p.id)}).ToList()", expr.String(full.Expr))
	assert.Equal(t, []string{"scoring"}, full.Services)
	assert.False(t, expr.References(full.Expr, f.ctx), "full pass reads the original source")
}

func TestPushdownEmptiness(t *testing.T) {
	f := newFixture(t)
	list := f.people(nil, f.score())

	res, err := NewCompiler(nil, nil).Compile(list, PushdownOnly, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, []string{"scoring"}, res.Services)
	assert.Equal(t, []string{"scoring"}, RequiredServices(list))

	empty, err := NewCompiler(nil, nil).Compile(f.people(nil), Full, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.True(t, empty.Empty(), "a list without selections contributes nothing")
	assert.Empty(t, empty.Services)
}

func TestBuildTwoPassGolden(t *testing.T) {
	f := newFixture(t)
	plan, err := NewCompiler(nil, nil).Build(f.root(f.people(nil, f.field("id"), f.field("name"), f.score())))
	require.NoError(t, err)
	require.True(t, plan.TwoPass())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "two_pass_plan", []byte(plan.String()))
}

func TestBuildTwoPassMatchesSinglePass(t *testing.T) {
	f := newFixture(t)
	root := f.root(f.people(nil, f.field("id"), f.field("name"), f.score()))
	c := NewCompiler(nil, nil)

	plan, err := c.Build(root)
	require.NoError(t, err)
	svc := &scoring{}
	got := run(t, plan, testData(), svc)

	want := map[string]any{"people": []any{
		map[string]any{"id": int32(1), "name": "Ann", "score": int64(10)},
		map[string]any{"id": int32(2), "name": "Bob", "score": int64(20)},
		map[string]any{"id": int32(3), "name": "Cid", "score": int64(30)},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("two-pass result mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, svc.calls)

	single, err := c.Compile(root, Full, Context{Expr: f.ctx})
	require.NoError(t, err)
	out, err := expr.Eval(context.Background(), single.Expr, &expr.Env{Params: map[*expr.Param]any{f.ctx: testData()}, Caller: &scoring{}})
	require.NoError(t, err)
	out, err = expr.Materialize(out)
	require.NoError(t, err)
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("single-pass result mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDeferredListKeepsInputs(t *testing.T) {
	f := newFixture(t)
	plan, err := NewCompiler(nil, nil).Build(f.root(f.people(nil, f.score())))
	require.NoError(t, err)

	assert.Equal(t, "new {people = ctx.people.Select(p => new {$id = p.id})}", expr.String(plan.Pushdown))
	assert.Equal(t, "new {people = r.people.Select(p => new {score = @scoring.score(p.$id)}).ToList()}", expr.String(plan.Post))

	want := map[string]any{"people": []any{
		map[string]any{"score": int64(10)},
		map[string]any{"score": int64(20)},
		map[string]any{"score": int64(30)},
	}}
	if diff := cmp.Diff(want, run(t, plan, testData(), &scoring{})); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildServiceWithoutInputs(t *testing.T) {
	f := newFixture(t)
	now := &Scalar{Name: "tick", Expr: expr.NewCall("clock", "tick", expr.Int64Type), Param: f.p}
	plan, err := NewCompiler(nil, nil).Build(f.root(f.people(nil, now)))
	require.NoError(t, err)

	assert.Equal(t, "new {people = ctx.people.Select(p => new {})}", expr.String(plan.Pushdown))
	got := run(t, plan, testData(), &scoring{})
	require.Len(t, got.(map[string]any)["people"], 3, "list cardinality survives the pushdown")
}

func hiddenFixture(t *testing.T, f *fixture) expr.Expr {
	t.Helper()
	x := expr.NewParam("x", personT)
	adult, err := expr.NewBinary(expr.OpGt, member(t, x, "age"), expr.NewConst(int32(18), expr.Int32Type))
	require.NoError(t, err)
	where, err := expr.NewWhere(member(t, f.ctx, "people"), expr.NewLambda(x, adult))
	require.NoError(t, err)
	o := expr.NewParam("o", personT)
	ordered, err := expr.NewOrderBy(where, expr.SortKey{Key: expr.NewLambda(o, member(t, o, "city"))})
	require.NoError(t, err)
	return ordered
}

func TestPushdownAddsFilterAndSortColumns(t *testing.T) {
	f := newFixture(t)
	c := NewCompiler(nil, nil)

	res, err := c.Compile(f.people(hiddenFixture(t, f), f.field("name")), PushdownOnly, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t,
		"ctx.people.Where(x => (x.age > 18)).OrderBy(o => o.city).Select(p => new {name = p.name, $age = p.age, $city = p.city})",
		expr.String(res.Expr))

	// Hidden columns are carried even next to a requested field of the same value.
	res, err = c.Compile(f.people(hiddenFixture(t, f), f.field("name"), f.field("age")), PushdownOnly, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t,
		"ctx.people.Where(x => (x.age > 18)).OrderBy(o => o.city).Select(p => new {name = p.name, age = p.age, $age = p.age, $city = p.city})",
		expr.String(res.Expr))

	// An alias that reads another field does not shadow the hidden column.
	alias := &Scalar{Name: "age", Expr: member(t, f.p, "city"), Param: f.p}
	res, err = c.Compile(f.people(hiddenFixture(t, f), alias), PushdownOnly, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t,
		"ctx.people.Where(x => (x.age > 18)).OrderBy(o => o.city).Select(p => new {age = p.city, $age = p.age, $city = p.city})",
		expr.String(res.Expr))
}

func TestServiceReadsHiddenColumn(t *testing.T) {
	f := newFixture(t)
	byAge := &Scalar{Name: "score", Expr: expr.NewCall("scoring", "byAge", expr.Int32Type, member(t, f.p, "age")), Param: f.p}
	alias := &Scalar{Name: "age", Expr: member(t, f.p, "city"), Param: f.p}
	plan, err := NewCompiler(nil, nil).Build(f.root(f.people(hiddenFixture(t, f), alias, byAge)))
	require.NoError(t, err)

	assert.Equal(t,
		"new {people = ctx.people.Where(x => (x.age > 18)).OrderBy(o => o.city).Select(p => new {age = p.city, $age = p.age, $city = p.city})}",
		expr.String(plan.Pushdown))
	assert.Equal(t,
		"new {people = r.people.Select(p => new {age = p.age, score = @scoring.byAge(p.$age)}).ToList()}",
		expr.String(plan.Post))

	want := map[string]any{"people": []any{
		map[string]any{"age": "Oslo", "score": int64(340)},
	}}
	if diff := cmp.Diff(want, run(t, plan, testData(), &scoring{})); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestIdempotence(t *testing.T) {
	f := newFixture(t)
	root := f.root(f.people(hiddenFixture(t, f), f.field("id"), f.score()))
	c := NewCompiler(nil, Extensions{"Query.people": Limit{N: 2}})

	a, err := c.Build(root)
	require.NoError(t, err)
	b, err := c.Build(root)
	require.NoError(t, err)
	assert.True(t, expr.Equal(a.Pushdown, b.Pushdown))
	post, err := rewrite.ReplaceParam(b.Post, b.Materialized, a.Materialized)
	require.NoError(t, err)
	assert.True(t, expr.Equal(a.Post, post), "post passes differ:\n%s\n%s", expr.String(a.Post), expr.String(b.Post))

	for _, pass := range []Pass{PushdownOnly, Full} {
		x, err := c.Compile(root, pass, Context{Expr: f.ctx})
		require.NoError(t, err)
		y, err := c.Compile(root, pass, Context{Expr: f.ctx})
		require.NoError(t, err)
		assert.True(t, expr.Equal(x.Expr, y.Expr), "%s pass is not idempotent", pass)
	}
}

func TestExtensions(t *testing.T) {
	f := newFixture(t)
	c := NewCompiler(nil, Extensions{"Query.people": Limit{N: 2}})

	plan, err := c.Build(f.root(f.people(nil, f.field("name"), f.score())))
	require.NoError(t, err)
	assert.Equal(t, "new {people = ctx.people.Take(2).Select(p => new {name = p.name, $id = p.id})}", expr.String(plan.Pushdown))
	assert.Equal(t, "new {people = r.people.Select(p => new {name = p.name, score = @scoring.score(p.$id)}).ToList()}", expr.String(plan.Post),
		"the limit is not applied twice")
	got := run(t, plan, testData(), &scoring{})
	assert.Len(t, got.(map[string]any)["people"], 2)

	ordered := NewCompiler(nil, Extensions{"Query.people": DefaultOrder{Field: "name", Desc: true}})
	res, err := ordered.Compile(f.people(nil, f.field("name")), Full, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t, "ctx.people.OrderBy(o => o.name desc).Select(p => new {name = p.name})", expr.String(res.Expr))

	res, err = ordered.Compile(f.people(hiddenFixture(t, f), f.field("name")), Full, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t, "ctx.people.Where(x => (x.age > 18)).OrderBy(o => o.city).Select(p => new {name = p.name})", expr.String(res.Expr))

	swap := ExtensionFunc(func(list expr.Expr, fields []expr.NewField, param *expr.Param) (expr.Expr, []expr.NewField, *expr.Param, error) {
		return list, append(fields, expr.NewField{Name: "tag", X: expr.NewConst("x", expr.StringType)}), param, nil
	})
	res, err = NewCompiler(nil, Extensions{"Query.people": swap}).Compile(f.people(nil, f.field("name")), Full, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t, `ctx.people.Select(p => new {name = p.name, tag = "x"})`, expr.String(res.Expr))

	chained := NewCompiler(nil, Extensions{"Query.people": Chain{DefaultOrder{Field: "name"}, Limit{N: 1}}})
	res, err = chained.Compile(f.people(nil, f.field("name")), Full, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t, "ctx.people.OrderBy(o => o.name).Take(1).Select(p => new {name = p.name})", expr.String(res.Expr))

	n := expr.NewParam("$n", expr.Int64Type)
	var paged expr.Expr
	paged, err = expr.NewTake(member(t, f.ctx, "people"), n)
	require.NoError(t, err)
	if paged, err = expr.NewSkip(paged, expr.NewConst(int64(1), expr.Int64Type)); err != nil {
		t.Fatal(err)
	}
	res, err = ordered.Compile(f.people(paged, f.field("name")), Full, Context{Expr: f.ctx})
	require.NoError(t, err)
	assert.Equal(t, "ctx.people.OrderBy(o => o.name desc).Take($n).Skip(1).Select(p => new {name = p.name})", expr.String(res.Expr))
}

func TestConstants(t *testing.T) {
	f := newFixture(t)
	minAge := expr.NewParam("$minAge", expr.Int32Type)
	x := expr.NewParam("x", personT)
	gt, err := expr.NewBinary(expr.OpGe, member(t, x, "age"), minAge)
	require.NoError(t, err)
	where, err := expr.NewWhere(member(t, f.ctx, "people"), expr.NewLambda(x, gt))
	require.NoError(t, err)

	list := f.people(where, f.field("name"))
	list.Constants = map[*expr.Param]Literal{minAge: {Value: "18"}}

	plan, err := NewCompiler(coerce.NewRegistry(), nil).Build(f.root(list))
	require.NoError(t, err)
	assert.Equal(t, map[*expr.Param]any{minAge: int32(18)}, plan.Constants)
	want := map[string]any{"people": []any{map[string]any{"name": "Ann"}, map[string]any{"name": "Cid"}}}
	if diff := cmp.Diff(want, run(t, plan, testData(), nil)); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}

	list.Constants = map[*expr.Param]Literal{minAge: {Value: "eighteen"}}
	_, err = NewCompiler(nil, nil).Build(f.root(list))
	assert.ErrorIs(t, err, coerce.ErrConversionFailed)
	assert.ErrorContains(t, err, "people: argument minAge")
}

func TestNullableObject(t *testing.T) {
	f := newFixture(t)
	x := expr.NewParam("x", personT)
	best := &Object{
		Name:     "best",
		Field:    "Query.best",
		Expr:     member(t, f.ctx, "best"),
		Param:    f.ctx,
		Elem:     x,
		Children: []Selection{&Scalar{Name: "name", Expr: member(t, x, "name"), Param: x}},
	}
	plan, err := NewCompiler(nil, nil).Build(f.root(best))
	require.NoError(t, err)
	assert.Equal(t, "new {best = ((ctx.best != null) ? new {name = ctx.best.name} : null)}", expr.String(plan.Pushdown))

	if diff := cmp.Diff(map[string]any{"best": nil}, run(t, plan, testData(), nil)); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	data := testData()
	data["best"] = map[string]any{"name": "Eve"}
	if diff := cmp.Diff(map[string]any{"best": map[string]any{"name": "Eve"}}, run(t, plan, data, nil)); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestDeferredObject(t *testing.T) {
	f := newFixture(t)
	x := expr.NewParam("x", personT)
	person := &Object{
		Name:  "person",
		Expr:  member(t, f.ctx, "Person"),
		Param: f.ctx,
		Elem:  x,
		Children: []Selection{
			&Scalar{Name: "score", Expr: expr.NewCall("scoring", "score", expr.Int32Type, member(t, x, "id")), Param: x},
		},
	}
	plan, err := NewCompiler(nil, nil).Build(f.root(person))
	require.NoError(t, err)
	assert.Equal(t, "new {person = new {$id = ctx.Person.id}}", expr.String(plan.Pushdown))
	assert.Equal(t, "new {person = new {score = @scoring.score(r.person.$id)}}", expr.String(plan.Post))
	if diff := cmp.Diff(map[string]any{"person": map[string]any{"score": int64(90)}}, run(t, plan, testData(), &scoring{})); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeMismatch(t *testing.T) {
	f := newFixture(t)
	other := expr.NewParam("o", expr.RecordOf(&expr.FieldType{Name: "title", Type: expr.StringType}))
	_, err := NewCompiler(nil, nil).Compile(f.field("id"), Full, Context{Expr: other})
	assert.ErrorIs(t, err, expr.ErrTypeMismatch)
	assert.ErrorContains(t, err, "id: ")
}

func TestBuildRejectsNonRoot(t *testing.T) {
	f := newFixture(t)
	_, err := NewCompiler(nil, nil).Build(&Object{Name: "x", Expr: member(t, f.ctx, "Person"), Param: f.ctx, Elem: f.p})
	assert.Error(t, err)
}

type echo struct{}

func (echo) Call(_ context.Context, _, _ string, args []any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], nil
}

// singlePass evaluates root in one full pass, the reference a two-pass plan must match.
func singlePass(t *testing.T, c *Compiler, root *Object, data any, caller expr.Caller) any {
	t.Helper()
	res, err := c.Compile(root, Full, Context{Expr: root.Param})
	require.NoError(t, err)
	env := &expr.Env{Params: map[*expr.Param]any{root.Param: data}, Caller: caller}
	for p, v := range res.Constants {
		env = env.Bind(p, v)
	}
	out, err := expr.Eval(context.Background(), res.Expr, env)
	require.NoError(t, err)
	out, err = expr.Materialize(out)
	require.NoError(t, err)
	return out
}

func TestHiddenColumnsKeepPathsApart(t *testing.T) {
	addressT := expr.NamedRecord("Address").AddField("city", expr.StringType)
	memberT := expr.NamedRecord("Member").
		AddField("address", addressT).
		AddField("address_city", expr.StringType).
		AddField("typename", expr.StringType)
	ctx := expr.NewParam("ctx", expr.NamedRecord("Query").AddField("members", expr.ListOf(memberT)))
	m := expr.NewParam("m", memberT)
	svc := func(name string, path ...string) *Scalar {
		return &Scalar{Name: name, Expr: expr.NewCall("svc", "echo", expr.StringType, member(t, m, path...)), Param: m}
	}
	root := NewRoot(ctx, &List{
		Name:  "members",
		Field: "Query.members",
		Expr:  member(t, ctx, "members"),
		Param: ctx,
		Elem:  m,
		Children: []Selection{
			&Scalar{Name: "__typename", Expr: expr.NewConst("Member", expr.StringType), Param: m},
			svc("a", "address", "city"),
			svc("b", "address_city"),
			svc("kind", "typename"),
		},
	})
	data := map[string]any{"members": []any{
		map[string]any{"address": map[string]any{"city": "Oslo"}, "address_city": "Rome", "typename": "admin"},
	}}

	c := NewCompiler(nil, nil)
	plan, err := c.Build(root)
	require.NoError(t, err)
	assert.Equal(t,
		"new {members = r.members.Select(m => new {__typename = m.__typename, a = @svc.echo(m.$address.city), b = @svc.echo(m.$address_city), kind = @svc.echo(m.$typename)}).ToList()}",
		expr.String(plan.Post))

	want := map[string]any{"members": []any{
		map[string]any{"__typename": "Member", "a": "Oslo", "b": "Rome", "kind": "admin"},
	}}
	if diff := cmp.Diff(want, run(t, plan, data, echo{})); diff != "" {
		t.Fatalf("two-pass result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, singlePass(t, c, root, data, echo{})); diff != "" {
		t.Fatalf("single-pass result mismatch (-want +got):\n%s", diff)
	}
}

func TestAliasDoesNotFeedService(t *testing.T) {
	f := newFixture(t)
	alias := &Scalar{Name: "id", Expr: member(t, f.p, "age"), Param: f.p}
	root := f.root(f.people(nil, alias, f.score()))
	c := NewCompiler(nil, nil)

	plan, err := c.Build(root)
	require.NoError(t, err)
	assert.Equal(t, "new {people = ctx.people.Select(p => new {id = p.age, $id = p.id})}", expr.String(plan.Pushdown))

	want := map[string]any{"people": []any{
		map[string]any{"id": int32(34), "score": int64(10)},
		map[string]any{"id": int32(12), "score": int64(20)},
		map[string]any{"id": int32(18), "score": int64(30)},
	}}
	if diff := cmp.Diff(want, run(t, plan, testData(), &scoring{})); diff != "" {
		t.Fatalf("two-pass result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, singlePass(t, c, root, testData(), &scoring{})); diff != "" {
		t.Fatalf("single-pass result mismatch (-want +got):\n%s", diff)
	}
}

func TestExtensionsApplyOnceAcrossPasses(t *testing.T) {
	f := newFixture(t)
	root := f.root(f.people(nil, f.field("name"), f.score()))
	c := NewCompiler(nil, Extensions{"Query.people": Chain{DefaultOrder{Field: "name", Desc: true}, Limit{N: 2}}})

	plan, err := c.Build(root)
	require.NoError(t, err)
	assert.Equal(t,
		"new {people = ctx.people.OrderBy(o => o.name desc).Take(2).Select(p => new {name = p.name, $id = p.id})}",
		expr.String(plan.Pushdown))
	assert.Equal(t,
		"new {people = r.people.Select(p => new {name = p.name, score = @scoring.score(p.$id)}).ToList()}",
		expr.String(plan.Post))

	want := map[string]any{"people": []any{
		map[string]any{"name": "Cid", "score": int64(30)},
		map[string]any{"name": "Bob", "score": int64(20)},
	}}
	if diff := cmp.Diff(want, run(t, plan, testData(), &scoring{})); diff != "" {
		t.Fatalf("two-pass result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, singlePass(t, c, root, testData(), &scoring{})); diff != "" {
		t.Fatalf("single-pass result mismatch (-want +got):\n%s", diff)
	}
}
