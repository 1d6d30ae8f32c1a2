package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRegistry(t *testing.T) {
	reg := NewServiceRegistry()
	echo := func(_ context.Context, args []any) (any, error) { return args, nil }

	require.NoError(t, reg.Register("b", "echo", echo))
	require.NoError(t, reg.Register("a", "echo", echo))
	assert.ErrorContains(t, reg.Register("a", "echo", echo), "already registered")
	assert.Error(t, reg.Register("", "echo", echo))
	assert.Error(t, reg.Register("a", "nil", nil))

	assert.True(t, reg.Has("a"))
	assert.False(t, reg.Has("c"))
	assert.Equal(t, []string{"a", "b"}, reg.Services())

	got, err := reg.Call(context.Background(), "a", "echo", []any{1, "x"})
	require.NoError(t, err)
	assert.Equal(t, []any{1, "x"}, got)

	_, err = reg.Call(context.Background(), "a", "missing", nil)
	assert.ErrorContains(t, err, "service a has no method missing")
}
