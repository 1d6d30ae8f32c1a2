package grpctp

import (
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	// ErrNoEndpoints is returned when no endpoint serves the called service.
	ErrNoEndpoints = errors.New("grpctp: no endpoints available")

	// ErrClosed is returned by calls on a closed transport.
	ErrClosed = errors.New("grpctp: closed")

	errNoProvider = errors.New("grpctp: provider not configured")
	errPoolClosed = errors.New("grpctp: pool closed")
)

const (
	defaultConnsPerEndpoint = 2
	defaultRPCTimeout       = 3 * time.Second
)

// Options configures a Transport. Zero values select the defaults: two pooled
// connections per endpoint, a 3s deadline for calls whose context has none, and
// insecure credentials with the default reconnect backoff.
type Options struct {
	Provider EndpointProvider

	// Package prefixes service names in method paths, so with "people.v1" the
	// method scoring.score is called as "/people.v1.scoring/score".
	Package string

	MaxConnsPerEndpoint int
	RPCTimeout          time.Duration
	DialOptions         []grpc.DialOption
}

// Option sets one field of Options.
type Option func(*Options)

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithPackage(pkg string) Option          { return func(o *Options) { o.Package = pkg } }
func WithMaxConnsPerEndpoint(n int) Option   { return func(o *Options) { o.MaxConnsPerEndpoint = n } }
func WithRPCTimeout(d time.Duration) Option  { return func(o *Options) { o.RPCTimeout = d } }

// WithDialOptions replaces the default dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}

func buildOptions(opts []Option) *Options {
	o := &Options{}
	for _, f := range opts {
		f(o)
	}
	if o.MaxConnsPerEndpoint <= 0 {
		o.MaxConnsPerEndpoint = defaultConnsPerEndpoint
	}
	if o.RPCTimeout <= 0 {
		o.RPCTimeout = defaultRPCTimeout
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return o
}
