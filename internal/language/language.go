// Package language parses GraphQL documents. Its types are aliases of the gqlparser AST.
package language

import (
	"fmt"
	"os"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

// Error is a located GraphQL syntax error.
type Error = gqlerror.Error

// ParseQuery parses an executable document sent without a file name.
func ParseQuery(input string) (*QueryDocument, error) {
	return ParseQuerySource(&ast.Source{Name: "query", Input: input})
}

// ParseQuerySource parses an executable document; errors carry the source name.
func ParseQuerySource(src *Source) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(src)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseSchema parses SDL sources into one document. Definitions keep the name of the
// source they came from in their positions.
func ParseSchema(sources ...*Source) (*SchemaDocument, error) {
	doc, err := parser.ParseSchemas(sources...)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ReadSources reads each file into a Source named after its path.
func ReadSources(paths ...string) ([]*Source, error) {
	sources := make([]*Source, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		sources[i] = &Source{Name: p, Input: string(data)}
	}
	return sources, nil
}
