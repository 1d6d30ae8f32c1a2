package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlplan/internal/plan"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
schema: [schema.graphql]
server:
  addr: :9090
  cors: ["*"]
`))
	require.NoError(t, err)

	want := Default()
	want.Schema = []string{"schema.graphql"}
	want.Server.Addr = ":9090"
	want.Server.CORS = []string{"*"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFull(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
schema: [a.graphql, b.graphql]
source:
  kind: postgres
  dsn: postgres://localhost/people
services:
  package: people.v1
  endpoints:
    "*": [localhost:9000]
    scoring: [localhost:9001, localhost:9002]
  rpcTimeout: 500ms
fields:
  Query.people: {limit: 100, orderBy: "name desc"}
  Query.cities: {limit: 5}
server:
  timeout: 2s
  pretty: true
  maxBodyBytes: 1024
  exposePlan: true
  introspection: false
otel:
  endpoint: localhost:4317
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, SourcePostgres, cfg.Source.Kind)
	assert.Equal(t, "people.v1", cfg.Services.Package)
	assert.Equal(t, 500*time.Millisecond, cfg.Services.RPCTimeout)
	assert.Equal(t, 2, cfg.Services.MaxConnsPerEndpoint)
	assert.Equal(t, []string{"localhost:9001", "localhost:9002"}, cfg.Services.Endpoints["scoring"])
	assert.Equal(t, 2*time.Second, cfg.Server.Timeout)
	assert.Equal(t, "/graphql", cfg.Server.Path)
	assert.True(t, cfg.Server.ExposePlan)
	assert.False(t, cfg.Server.Introspection)
	assert.Equal(t, "localhost:4317", cfg.Otel.Endpoint)
	assert.Equal(t, "gqlplan", cfg.Otel.Service)

	lvl, err := cfg.Log.Leveler()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	want := plan.Extensions{
		"Query.people": plan.Chain{plan.DefaultOrder{Field: "name", Desc: true}, plan.Limit{N: 100}},
		"Query.cities": plan.Limit{N: 5},
	}
	assert.Equal(t, want, cfg.Extensions())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "sources: {}", "field sources not found"},
		{"unknown source", "source: {kind: mongo}", `unknown kind "mongo"`},
		{"sql without dsn", "source: {kind: sqlite}", "sqlite requires a dsn"},
		{"memory with dsn", "source: {kind: memory, dsn: x}", "dsn is not used"},
		{"empty endpoints", "services: {endpoints: {directory: []}}", `invalid endpoints for "directory"`},
		{"field identity", "fields: {people: {limit: 1}}", "not of the form Type.field"},
		{"negative limit", "fields: {Query.people: {limit: -1}}", "negative limit"},
		{"bad order", "fields: {Query.people: {orderBy: name up}}", `invalid orderBy "name up"`},
		{"log level", "log: {level: loud}", "log:"},
		{"log format", "log: {format: xml}", `unknown format "xml"`},
		{"bad duration", "server: {timeout: soon}", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Nil(t, cfg.Extensions())
}

func TestLoadResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "schema"), 0o755))
	for _, name := range []string{"b.graphql", "a.graphql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "schema", name), []byte("type Query { x: Int }"), 0o644))
	}
	path := filepath.Join(dir, "gqlplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schema: [schema/*.graphql, /abs/other.graphql]
source: {kind: memory, data: data/people.yaml}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "schema/*.graphql"), "/abs/other.graphql"}, cfg.Schema)
	assert.Equal(t, filepath.Join(dir, "data/people.yaml"), cfg.Source.Data)

	cfg.Schema = cfg.Schema[:1]
	files, err := cfg.SchemaFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "schema", "a.graphql"),
		filepath.Join(dir, "schema", "b.graphql"),
	}, files)

	cfg.Schema = []string{filepath.Join(dir, "missing", "*.graphql")}
	_, err = cfg.SchemaFiles()
	assert.ErrorContains(t, err, "matches no files")

	_, err = Load(filepath.Join(dir, "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}
