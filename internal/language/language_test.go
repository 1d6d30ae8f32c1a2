package language

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "people.graphql")
	require.NoError(t, os.WriteFile(path, []byte("type Query { n: Int }"), 0o644))

	sources, err := ReadSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, path, sources[0].Name)

	doc, err := ParseSchema(sources...)
	require.NoError(t, err)
	require.Len(t, doc.Definitions, 1)
	assert.Equal(t, path, doc.Definitions[0].Position.Src.Name)

	_, err = ReadSources(filepath.Join(dir, "missing.graphql"))
	assert.ErrorContains(t, err, "missing.graphql")
}

func TestParseQuerySource(t *testing.T) {
	doc, err := ParseQuerySource(&Source{Name: "q.graphql", Input: "{ people { id } }"})
	require.NoError(t, err)
	require.Len(t, doc.Operations, 1)
	assert.Equal(t, "q.graphql", doc.Operations[0].Position.Src.Name)

	_, err = ParseQuery("{ people { id }")
	require.Error(t, err)
}
