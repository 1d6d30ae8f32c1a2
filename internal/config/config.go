// Package config loads the YAML configuration of a gqlplan server.
//
//	schema: [schema/*.graphql]
//	source:
//	  kind: sqlite
//	  dsn: file:people.db
//	services:
//	  package: people.v1
//	  endpoints:
//	    "*": [localhost:9000]
//	fields:
//	  Query.people: {limit: 100, orderBy: "name desc"}
//	server:
//	  addr: :8080
//	  timeout: 10s
//	  introspection: false
//
// Relative paths are resolved against the directory of the configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hanpama/gqlplan/internal/plan"
)

// Source kinds.
const (
	SourceMemory   = "memory"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

type Config struct {
	// Schema lists the SDL files of the schema. Entries may be glob patterns.
	Schema   []string         `yaml:"schema"`
	Source   Source           `yaml:"source"`
	Services Services         `yaml:"services,omitempty"`
	Fields   map[string]Field `yaml:"fields,omitempty"`
	Server   Server           `yaml:"server,omitempty"`
	Otel     Otel             `yaml:"otel,omitempty"`
	Log      Log              `yaml:"log,omitempty"`
}

type Source struct {
	Kind string `yaml:"kind"`
	// Data is the YAML data file of a memory source.
	Data string `yaml:"data,omitempty"`
	// DSN is the data source name of a SQL source.
	DSN string `yaml:"dsn,omitempty"`
}

// Services maps @service names to gRPC backends.
type Services struct {
	Package             string              `yaml:"package,omitempty"`
	Endpoints           map[string][]string `yaml:"endpoints,omitempty"`
	MaxConnsPerEndpoint int                 `yaml:"maxConnsPerEndpoint,omitempty"`
	RPCTimeout          time.Duration       `yaml:"rpcTimeout,omitempty"`
}

// Field holds the static extensions of one list field, keyed by its identity such as
// "Query.people".
type Field struct {
	Limit *int64 `yaml:"limit,omitempty"`
	// OrderBy is the default order: a field name optionally followed by asc or desc.
	OrderBy string `yaml:"orderBy,omitempty"`
}

type Server struct {
	Addr         string        `yaml:"addr,omitempty"`
	Path         string        `yaml:"path,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	Pretty       bool          `yaml:"pretty,omitempty"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes,omitempty"`
	CORS         []string      `yaml:"cors,omitempty"`
	ExposePlan   bool          `yaml:"exposePlan,omitempty"`
	// Introspection answers __schema and __type queries. It is on unless set to false.
	Introspection bool `yaml:"introspection"`
}

type Otel struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Service  string `yaml:"service,omitempty"`
}

type Log struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // "text" | "json"
}

// Default returns the configuration used for omitted settings.
func Default() *Config {
	return &Config{
		Source: Source{Kind: SourceMemory},
		Services: Services{
			MaxConnsPerEndpoint: 2,
			RPCTimeout:          3 * time.Second,
		},
		Server: Server{
			Addr:          ":8080",
			Path:          "/graphql",
			Timeout:       10 * time.Second,
			Introspection: true,
		},
		Otel: Otel{Service: "gqlplan"},
		Log:  Log{Level: "info", Format: "text"},
	}
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes a configuration over the defaults and validates it. Unknown keys are
// rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) resolvePaths(base string) {
	for i, p := range c.Schema {
		c.Schema[i] = resolve(base, p)
	}
	c.Source.Data = resolve(base, c.Source.Data)
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceMemory:
		if c.Source.DSN != "" {
			return errors.New("source: dsn is not used by a memory source")
		}
	case SourceSQLite, SourcePostgres:
		if c.Source.DSN == "" {
			return fmt.Errorf("source: %s requires a dsn", c.Source.Kind)
		}
	default:
		return fmt.Errorf("source: unknown kind %q", c.Source.Kind)
	}
	for svc, eps := range c.Services.Endpoints {
		if strings.TrimSpace(svc) == "" || len(eps) == 0 {
			return fmt.Errorf("services: invalid endpoints for %q", svc)
		}
	}
	for _, id := range sortedKeys(c.Fields) {
		if !strings.Contains(id, ".") {
			return fmt.Errorf("fields: %q is not of the form Type.field", id)
		}
		f := c.Fields[id]
		if f.Limit != nil && *f.Limit < 0 {
			return fmt.Errorf("fields: %s: negative limit", id)
		}
		if _, _, err := parseOrder(f.OrderBy); err != nil {
			return fmt.Errorf("fields: %s: %w", id, err)
		}
	}
	if _, err := c.Log.Leveler(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}

// Extensions builds the plan extensions of the configured fields. A default order is
// applied before a limit.
func (c *Config) Extensions() plan.Extensions {
	if len(c.Fields) == 0 {
		return nil
	}
	out := plan.Extensions{}
	for id, f := range c.Fields {
		var chain plan.Chain
		if field, desc, _ := parseOrder(f.OrderBy); field != "" {
			chain = append(chain, plan.DefaultOrder{Field: field, Desc: desc})
		}
		if f.Limit != nil {
			chain = append(chain, plan.Limit{N: *f.Limit})
		}
		switch len(chain) {
		case 0:
		case 1:
			out[id] = chain[0]
		default:
			out[id] = chain
		}
	}
	return out
}

func parseOrder(s string) (field string, desc bool, err error) {
	parts := strings.Fields(s)
	switch len(parts) {
	case 0:
		return "", false, nil
	case 1:
		return parts[0], false, nil
	case 2:
		switch strings.ToLower(parts[1]) {
		case "asc":
			return parts[0], false, nil
		case "desc":
			return parts[0], true, nil
		}
	}
	return "", false, fmt.Errorf("invalid orderBy %q", s)
}

// Leveler returns the slog level named by Level.
func (l Log) Leveler() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log: %w", err)
	}
	return lvl, nil
}

// SchemaFiles expands the schema patterns into a sorted list of files.
func (c *Config) SchemaFiles() ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, pattern := range c.Schema {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("schema: %s matches no files", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
