package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hanpama/gqlplan/internal/eventbus"
	"github.com/hanpama/gqlplan/internal/events"
)

// ServiceFunc implements one service method. Args are the materialized values of the
// call arguments: the parent fields named by the binding followed by the field
// arguments in declaration order, nil when omitted.
type ServiceFunc func(ctx context.Context, args []any) (any, error)

// ServiceRegistry dispatches service calls made by post expressions.
type ServiceRegistry struct {
	mu      sync.RWMutex
	methods map[string]map[string]ServiceFunc
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{methods: map[string]map[string]ServiceFunc{}}
}

// Register installs fn as service.method.
func (r *ServiceRegistry) Register(service, method string, fn ServiceFunc) error {
	if service == "" || method == "" {
		return fmt.Errorf("register: service and method names are required")
	}
	if fn == nil {
		return fmt.Errorf("register %s.%s: nil function", service, method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ms := r.methods[service]
	if ms == nil {
		ms = map[string]ServiceFunc{}
		r.methods[service] = ms
	}
	if _, dup := ms[method]; dup {
		return fmt.Errorf("register %s.%s: already registered", service, method)
	}
	ms[method] = fn
	return nil
}

// Has reports whether any method of service is registered.
func (r *ServiceRegistry) Has(service string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.methods[service]) > 0
}

// Services returns the registered service names in order.
func (r *ServiceRegistry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call implements expr.Caller.
func (r *ServiceRegistry) Call(ctx context.Context, service, method string, args []any) (any, error) {
	r.mu.RLock()
	fn := r.methods[service][method]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("service %s has no method %s", service, method)
	}

	eventbus.Publish(ctx, events.ServiceCallStart{Service: service, Method: method})
	start := time.Now()
	out, err := fn(ctx, args)
	eventbus.Publish(ctx, events.ServiceCallFinish{Service: service, Method: method, Err: err, Duration: time.Since(start)})
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", service, method, err)
	}
	return out, nil
}
