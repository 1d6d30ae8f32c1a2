package language

import "github.com/vektah/gqlparser/v2/ast"

// Executable documents.
type (
	QueryDocument       = ast.QueryDocument
	OperationDefinition = ast.OperationDefinition
	SelectionSet        = ast.SelectionSet
	Field               = ast.Field
	InlineFragment      = ast.InlineFragment
	FragmentSpread      = ast.FragmentSpread
	FragmentDefinition  = ast.FragmentDefinition
	Directive           = ast.Directive
	DirectiveList       = ast.DirectiveList
	ArgumentList        = ast.ArgumentList
	Value               = ast.Value
	Position            = ast.Position
	Source              = ast.Source
)

// Type system documents.
type (
	SchemaDocument      = ast.SchemaDocument
	Definition          = ast.Definition
	DefinitionKind      = ast.DefinitionKind
	FieldDefinition     = ast.FieldDefinition
	ArgumentDefinition  = ast.ArgumentDefinition
	EnumValueDefinition = ast.EnumValueDefinition
	DirectiveDefinition = ast.DirectiveDefinition
	Type                = ast.Type
)

type (
	Operation = ast.Operation
	ValueKind = ast.ValueKind
)

const (
	Query        = ast.Query
	Mutation     = ast.Mutation
	Subscription = ast.Subscription
)

const (
	Object      = ast.Object
	Interface   = ast.Interface
	Union       = ast.Union
	Scalar      = ast.Scalar
	Enum        = ast.Enum
	InputObject = ast.InputObject
)

const (
	Variable     = ast.Variable
	IntValue     = ast.IntValue
	FloatValue   = ast.FloatValue
	StringValue  = ast.StringValue
	BlockValue   = ast.BlockValue
	BooleanValue = ast.BooleanValue
	NullValue    = ast.NullValue
	EnumValue    = ast.EnumValue
	ListValue    = ast.ListValue
	ObjectValue  = ast.ObjectValue
)
