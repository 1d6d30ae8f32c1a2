// Package grpctp calls service methods on remote gRPC backends.
//
// Calls use the well-known struct types as their messages: the arguments travel as a
// google.protobuf.ListValue and the result comes back as a google.protobuf.Value, so a
// backend needs no generated code of this repository. Service "directory" with
// method "lookup" is invoked as "/directory/lookup", or "/<package>.directory/lookup"
// when a package is configured.
package grpctp

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/gqlplan/internal/coerce"
	"github.com/hanpama/gqlplan/internal/executor"
	"github.com/hanpama/gqlplan/internal/reqid"
	"github.com/hanpama/gqlplan/internal/schema"
)

// RequestIDMetadata is the outgoing metadata key carrying the request ID.
const RequestIDMetadata = "x-request-id"

// Transport is a gRPC transport with connection pooling and deadline propagation.
// Endpoints of a service are resolved per call through the configured EndpointProvider.
type Transport struct {
	opts *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: endpoint
	closed atomic.Bool
}

func New(opts ...Option) *Transport {
	return &Transport{
		opts:  buildOptions(opts),
		pools: make(map[string]*connPool),
	}
}

// FullMethod returns the gRPC method name of a service method.
func (t *Transport) FullMethod(service, method string) string {
	if t.opts.Package != "" {
		service = t.opts.Package + "." + service
	}
	return "/" + service + "/" + method
}

// Call invokes method of service with args and returns the decoded result: nil, bool,
// float64, string, []any or map[string]any.
func (t *Transport) Call(ctx context.Context, service, method string, args []any) (any, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if t.opts.Provider == nil {
		return nil, errNoProvider
	}
	req, err := structpb.NewList(plainList(args))
	if err != nil {
		return nil, fmt.Errorf("grpctp: encode arguments: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
		defer cancel()
	}
	if rid, ok := reqid.FromContext(ctx); ok {
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDMetadata, rid)
	}

	endpoints, err := t.opts.Provider.Endpoints(ctx, service)
	if err != nil {
		return nil, err
	}
	endpoint := endpoints[rand.Intn(len(endpoints))]

	cc, err := t.getConn(endpoint)
	if err != nil {
		return nil, err
	}
	defer t.returnConn(endpoint, cc)

	resp := new(structpb.Value)
	if err := cc.Invoke(ctx, t.FullMethod(service, method), req, resp); err != nil {
		return nil, err
	}
	return resp.AsInterface(), nil
}

// Register registers every @service method of s on services, calling it through t.
// Results are coerced to the type of the first field declaring the method.
func (t *Transport) Register(services *executor.ServiceRegistry, s *schema.Schema, registry *coerce.Registry) error {
	if registry == nil {
		registry = coerce.NewRegistry()
	}
	seen := map[string]bool{}
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, f := range s.Types[name].Fields {
			if f.Service == nil {
				continue
			}
			key := f.Service.Name + "." + f.Service.Method
			if seen[key] {
				continue
			}
			seen[key] = true
			rt, err := s.ExprType(f.Type)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", name, f.Name, err)
			}
			service, method := f.Service.Name, f.Service.Method
			err = services.Register(service, method, func(ctx context.Context, args []any) (any, error) {
				v, err := t.Call(ctx, service, method, args)
				if err != nil {
					return nil, err
				}
				return registry.CoerceValue(v, rt)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

// plainList converts argument values to the types structpb accepts. Values with a
// text form, such as UUIDs and decimals, are sent as strings.
func plainList(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = plain(a)
	}
	return out
}

func plain(v any) any {
	switch x := v.(type) {
	case []any:
		return plainList(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = plain(item)
		}
		return out
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}
	return v
}

// ---------------- internals ----------------

type connPool struct {
	endpoint string
	opts     *Options
	conns    chan *grpc.ClientConn
	closed   atomic.Bool
}

func newConnPool(endpoint string, opts *Options) *connPool {
	return &connPool{
		endpoint: endpoint,
		opts:     opts,
		conns:    make(chan *grpc.ClientConn, opts.MaxConnsPerEndpoint),
	}
}

func (p *connPool) get() (*grpc.ClientConn, error) {
	if p.closed.Load() {
		return nil, errPoolClosed
	}
	select {
	case cc := <-p.conns:
		return cc, nil
	default:
		return grpc.NewClient(p.endpoint, p.opts.DialOptions...)
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if p.closed.Load() {
		_ = cc.Close()
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (t *Transport) getConn(endpoint string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.opts)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	return pool.get()
}

func (t *Transport) returnConn(endpoint string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}
