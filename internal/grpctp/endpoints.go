package grpctp

import (
	"context"
	"maps"
	"slices"
)

// EndpointProvider resolves the host:port endpoints of a service named in @service.
// Implementations must be safe for concurrent use.
type EndpointProvider interface {
	Endpoints(ctx context.Context, service string) ([]string, error)
}

// Wildcard is the service key whose endpoints serve every service without its own entry.
const Wildcard = "*"

// StaticEndpoints resolves services from a fixed table, usually services.endpoints of
// the configuration file. It is immutable after construction.
type StaticEndpoints struct {
	table map[string][]string
}

// NewStaticEndpoints copies m. Entries without endpoints are dropped so they fall back
// to the Wildcard entry.
func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	table := make(map[string][]string, len(m))
	for service, eps := range m {
		if len(eps) > 0 {
			table[service] = slices.Clone(eps)
		}
	}
	return &StaticEndpoints{table: table}
}

func (s *StaticEndpoints) Endpoints(_ context.Context, service string) ([]string, error) {
	eps, ok := s.table[service]
	if !ok {
		eps, ok = s.table[Wildcard]
	}
	if !ok {
		return nil, ErrNoEndpoints
	}
	return slices.Clone(eps), nil
}

// Services returns the service names with their own entry, Wildcard included, sorted.
func (s *StaticEndpoints) Services() []string {
	return slices.Sorted(maps.Keys(s.table))
}
