// Package introspection serves the GraphQL introspection fields __schema and __type.
//
// Both fields are declared as service fields of the query type and answered by an
// in-process service, so an introspection query compiles into an ordinary two-pass
// plan. The lists of fields and enum values take includeDeprecated and are service
// fields of __Type bound to the type name.
package introspection

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/schema"
)

// ServiceName is the service answering introspection fields.
const ServiceName = "__introspection"

const introspectionSDL = `
type Query {
  __schema: __Schema! @service(name: "__introspection", method: "schema")
  __type(name: String!): __Type @service(name: "__introspection", method: "type")
}

"A GraphQL Schema defines the capabilities of a GraphQL server."
type __Schema {
  description: String
  "A list of all types supported by this server."
  types: [__Type!]!
  "The type that query operations will be rooted at."
  queryType: __Type!
  mutationType: __Type
  subscriptionType: __Type
  "A list of all directives supported by this server."
  directives: [__Directive!]!
}

"The fundamental unit of any GraphQL Schema is the type."
type __Type {
  kind: __TypeKind!
  name: String
  description: String
  specifiedByURL: String
  fields(includeDeprecated: Boolean = false): [__Field!] @service(name: "__introspection", method: "fields", with: ["name"])
  interfaces: [__Type!]
  possibleTypes: [__Type!]
  enumValues(includeDeprecated: Boolean = false): [__EnumValue!] @service(name: "__introspection", method: "enumValues", with: ["name"])
  inputFields: [__InputValue!]
  ofType: __Type
  isOneOf: Boolean
}

type __Field {
  name: String!
  description: String
  args: [__InputValue!]!
  type: __Type!
  isDeprecated: Boolean!
  deprecationReason: String
}

type __InputValue {
  name: String!
  description: String
  type: __Type!
  "A GraphQL-formatted string representing the default value for this input value."
  defaultValue: String
  isDeprecated: Boolean!
  deprecationReason: String
}

type __EnumValue {
  name: String!
  description: String
  isDeprecated: Boolean!
  deprecationReason: String
}

type __Directive {
  name: String!
  description: String
  isRepeatable: Boolean!
  locations: [__DirectiveLocation!]!
  args: [__InputValue!]!
}

enum __TypeKind {
  SCALAR
  OBJECT
  INTERFACE
  UNION
  ENUM
  INPUT_OBJECT
  LIST
  NON_NULL
}

enum __DirectiveLocation {
  QUERY
  MUTATION
  SUBSCRIPTION
  FIELD
  FRAGMENT_DEFINITION
  FRAGMENT_SPREAD
  INLINE_FRAGMENT
  VARIABLE_DEFINITION
  SCHEMA
  SCALAR
  OBJECT
  FIELD_DEFINITION
  ARGUMENT_DEFINITION
  INTERFACE
  UNION
  ENUM
  ENUM_VALUE
  INPUT_OBJECT
  INPUT_FIELD_DEFINITION
}
`

// Extend returns a copy of s with the introspection types added and the __schema and
// __type fields appended to its query type. s itself is not modified.
func Extend(s *schema.Schema) (*schema.Schema, error) {
	intro, err := schema.BuildFromSDL(&language.Source{Name: "introspection.graphql", Input: introspectionSDL, BuiltIn: true})
	if err != nil {
		return nil, fmt.Errorf("introspection schema: %w", err)
	}
	queryType := s.GetQueryType()
	if queryType == nil {
		return nil, fmt.Errorf("query type %s is not defined", s.QueryType)
	}

	out := &schema.Schema{
		QueryType:   s.QueryType,
		Types:       maps.Clone(s.Types),
		Directives:  s.Directives,
		Description: s.Description,
	}
	for name, t := range intro.Types {
		if !strings.HasPrefix(name, "__") {
			continue
		}
		if _, exists := out.Types[name]; exists {
			return nil, fmt.Errorf("type %s is reserved for introspection", name)
		}
		out.Types[name] = t
	}

	q := *queryType
	q.Fields = slices.Clone(q.Fields)
	for _, f := range intro.GetQueryType().Fields {
		if q.Field(f.Name) != nil {
			return nil, fmt.Errorf("field %s.%s is reserved for introspection", q.Name, f.Name)
		}
		q.Fields = append(q.Fields, f)
	}
	out.Types[q.Name] = &q
	return out, nil
}

// isIntrospectionName reports whether name is reserved for introspection.
func isIntrospectionName(name string) bool { return strings.HasPrefix(name, "__") }
