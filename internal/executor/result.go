package executor

import (
	"errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/gqlplan/internal/plan"
)

// Location is a position in the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError represents an error that occurred while binding or executing a query.
type GraphQLError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// ExecutionResult represents the result of executing a GraphQL query.
type ExecutionResult struct {
	Data   any            `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`

	// Plan is the compiled plan the result was executed from, nil when binding or
	// compilation failed.
	Plan *plan.Plan `json:"-"`
}

// HasErrors reports whether the result carries any error.
func (r *ExecutionResult) HasErrors() bool { return len(r.Errors) > 0 }

// failed builds a result without data from err. Query errors keep their locations.
func failed(err error, code string) *ExecutionResult {
	return &ExecutionResult{Errors: graphQLErrors(err, code)}
}

func graphQLErrors(err error, code string) []GraphQLError {
	var list gqlerror.List
	if !errors.As(err, &list) {
		var single *gqlerror.Error
		if !errors.As(err, &single) {
			return []GraphQLError{{Message: err.Error(), Extensions: map[string]any{"code": code}}}
		}
		list = gqlerror.List{single}
	}
	out := make([]GraphQLError, 0, len(list))
	for _, e := range list {
		ge := GraphQLError{Message: e.Message, Extensions: map[string]any{"code": code}}
		for _, l := range e.Locations {
			if l.Line <= 0 {
				continue
			}
			ge.Locations = append(ge.Locations, Location{Line: l.Line, Column: l.Column})
		}
		for _, p := range e.Path {
			switch v := p.(type) {
			case ast.PathName:
				ge.Path = append(ge.Path, string(v))
			case ast.PathIndex:
				ge.Path = append(ge.Path, int(v))
			}
		}
		out = append(out, ge)
	}
	return out
}
