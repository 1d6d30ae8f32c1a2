// Package reqid carries a per-request identifier through contexts so that events
// published during one request can be correlated.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

type key struct{}

// NewContext returns a copy of parent carrying a fresh request ID, and the ID.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(parent, key{}, id), id
}

// WithID returns a copy of parent carrying id, for requests that arrive with an ID
// assigned upstream.
func WithID(parent context.Context, id string) context.Context {
	return context.WithValue(parent, key{}, id)
}

// FromContext extracts the request ID from ctx.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}
