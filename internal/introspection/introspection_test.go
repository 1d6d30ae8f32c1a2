package introspection

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlplan/internal/executor"
	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/schema"
	"github.com/hanpama/gqlplan/internal/source/memsource"
)

const testSDL = `
type Query {
  people: [Person!]! @source(table: "people")
}

interface Node {
  id: ID!
}

type Person implements Node {
  "Unique id."
  id: ID!
  name: String!
  nickname: String @deprecated(reason: "use name")
  role: Role
}

enum Role {
  ADMIN
  MEMBER
  GUEST @deprecated
}
`

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL(&language.Source{Name: "test.graphql", Input: testSDL})
	require.NoError(t, err)
	return s
}

func newExecutor(t *testing.T) *executor.Executor {
	t.Helper()
	s, err := Extend(mustSchema(t))
	require.NoError(t, err)
	src, err := memsource.Load(s, strings.NewReader("people: []\n"), nil)
	require.NoError(t, err)
	services := executor.NewServiceRegistry()
	require.NoError(t, Register(services, s))
	return executor.New(s, src, services)
}

func run(t *testing.T, e *executor.Executor, query string) string {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	res := e.ExecuteRequest(context.Background(), doc, "", nil)
	require.Empty(t, res.Errors)
	out, err := json.Marshal(res.Data)
	require.NoError(t, err)
	return string(out)
}

func TestExtendLeavesSchemaUntouched(t *testing.T) {
	s := mustSchema(t)
	ext, err := Extend(s)
	require.NoError(t, err)

	assert.Nil(t, s.GetQueryType().Field("__schema"))
	assert.NotContains(t, s.Types, "__Type")
	require.NotNil(t, ext.GetQueryType().Field("__schema"))
	assert.Equal(t, ServiceName, ext.GetQueryType().Field("__type").Service.Name)

	_, err = Extend(ext)
	assert.ErrorContains(t, err, "reserved for introspection")
}

func TestSchemaTypes(t *testing.T) {
	got := run(t, newExecutor(t), `{ __schema { queryType { name } mutationType { name } types { name } } }`)
	want := `{"__schema": {
	  "queryType": {"name": "Query"},
	  "mutationType": null,
	  "types": [
	    {"name": "Boolean"}, {"name": "Decimal"}, {"name": "Float"}, {"name": "ID"},
	    {"name": "Int"}, {"name": "Long"}, {"name": "Node"}, {"name": "Person"},
	    {"name": "Query"}, {"name": "Role"}, {"name": "Short"}, {"name": "String"},
	    {"name": "UUID"}, {"name": "__Directive"}, {"name": "__DirectiveLocation"},
	    {"name": "__EnumValue"}, {"name": "__Field"}, {"name": "__InputValue"},
	    {"name": "__Schema"}, {"name": "__Type"}, {"name": "__TypeKind"}
	  ]
	}}`
	assert.JSONEq(t, want, got)
}

func TestTypeFields(t *testing.T) {
	got := run(t, newExecutor(t), `{
	  __type(name: "Person") {
	    kind name description
	    interfaces { name possibleTypes { name } }
	    fields { name description isDeprecated type { kind name ofType { kind name } } }
	  }
	}`)
	want := `{"__type": {
	  "kind": "OBJECT", "name": "Person", "description": null,
	  "interfaces": [{"name": "Node", "possibleTypes": [{"name": "Person"}]}],
	  "fields": [
	    {"name": "id", "description": "Unique id.", "isDeprecated": false,
	     "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "ID"}}},
	    {"name": "name", "description": null, "isDeprecated": false,
	     "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "String"}}},
	    {"name": "role", "description": null, "isDeprecated": false,
	     "type": {"kind": "ENUM", "name": "Role", "ofType": null}}
	  ]
	}}`
	assert.JSONEq(t, want, got)
}

func TestDeprecatedMembers(t *testing.T) {
	e := newExecutor(t)
	got := run(t, e, `{
	  role: __type(name: "Role") {
	    enumValues { name }
	    all: enumValues(includeDeprecated: true) { name isDeprecated deprecationReason }
	  }
	  person: __type(name: "Person") {
	    fields(includeDeprecated: true) { name deprecationReason }
	  }
	}`)
	want := `{
	  "role": {
	    "enumValues": [{"name": "ADMIN"}, {"name": "MEMBER"}],
	    "all": [
	      {"name": "ADMIN", "isDeprecated": false, "deprecationReason": null},
	      {"name": "MEMBER", "isDeprecated": false, "deprecationReason": null},
	      {"name": "GUEST", "isDeprecated": true, "deprecationReason": "No longer supported"}
	    ]
	  },
	  "person": {
	    "fields": [
	      {"name": "id", "deprecationReason": null},
	      {"name": "name", "deprecationReason": null},
	      {"name": "nickname", "deprecationReason": "use name"},
	      {"name": "role", "deprecationReason": null}
	    ]
	  }
	}`
	assert.JSONEq(t, want, got)
}

func TestQueryTypeHidesIntrospectionFields(t *testing.T) {
	got := run(t, newExecutor(t), `{ __type(name: "Query") { fields { name } } missing: __type(name: "Nope") { name } }`)
	assert.JSONEq(t, `{"__type": {"fields": [{"name": "people"}]}, "missing": null}`, got)
}

func TestDirectives(t *testing.T) {
	got := run(t, newExecutor(t), `{ __schema { directives { name } } __type(name: "__Type") { fields { name args { name defaultValue } } } }`)

	var data struct {
		Schema struct {
			Directives []struct{ Name string }
		} `json:"__schema"`
		Type struct {
			Fields []struct {
				Name string
				Args []struct {
					Name         string
					DefaultValue *string
				}
			}
		} `json:"__type"`
	}
	require.NoError(t, json.Unmarshal([]byte(got), &data))

	var names []string
	for _, d := range data.Schema.Directives {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"include", "service", "skip", "source"}, names)

	for _, f := range data.Type.Fields {
		if f.Name != "fields" {
			continue
		}
		require.Len(t, f.Args, 1)
		assert.Equal(t, "includeDeprecated", f.Args[0].Name)
		require.NotNil(t, f.Args[0].DefaultValue)
		assert.Equal(t, "false", *f.Args[0].DefaultValue)
		return
	}
	t.Fatal("__Type.fields not described")
}

func TestPlanIsTwoPass(t *testing.T) {
	e := newExecutor(t)
	doc, err := language.ParseQuery(`{ __type(name: "Role") { name } }`)
	require.NoError(t, err)
	p, err := e.Plan(context.Background(), doc, "", nil)
	require.NoError(t, err)
	assert.True(t, p.TwoPass())
	assert.Equal(t, []string{ServiceName}, p.Services)
}
