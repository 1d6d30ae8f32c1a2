package grpctp

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/gqlplan/internal/executor"
	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/reqid"
	"github.com/hanpama/gqlplan/internal/schema"
	"github.com/hanpama/gqlplan/internal/source/memsource"
)

const endpoint = "passthrough:///bufnet"

// backend answers every method with a generic handler and records what it received.
type backend struct {
	mu         sync.Mutex
	methods    []string
	requestIDs []string
}

func (b *backend) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	md, _ := metadata.FromIncomingContext(stream.Context())
	b.mu.Lock()
	b.methods = append(b.methods, method)
	b.requestIDs = append(b.requestIDs, md.Get(RequestIDMetadata)...)
	b.mu.Unlock()

	req := new(structpb.ListValue)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	args := req.AsSlice()

	var out any
	switch method {
	case "/people.v1.directory/lookup":
		if args[0] == "404" {
			out = nil
			break
		}
		out = map[string]any{"id": args[0], "name": "Person " + args[0].(string), "age": 36, "extra": true}
	case "/people.v1.scoring/score":
		bonus, _ := args[1].(float64)
		out = float64(len(args[0].(string))*10) + bonus
	case "/people.v1.echo/args":
		out = args
	default:
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
	v, err := structpb.NewValue(out)
	if err != nil {
		return err
	}
	return stream.SendMsg(v)
}

func newTransport(t *testing.T, endpoints map[string][]string) (*Transport, *backend) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	b := &backend{}
	srv := grpc.NewServer(grpc.UnknownServiceHandler(b.handle))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	tp := New(
		WithProvider(NewStaticEndpoints(endpoints)),
		WithPackage("people.v1"),
		WithDialOptions(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		),
	)
	t.Cleanup(func() { _ = tp.Close() })
	return tp, b
}

func TestCall(t *testing.T) {
	tp, b := newTransport(t, map[string][]string{Wildcard: {endpoint}})
	ctx := reqid.WithID(context.Background(), "req-1")

	id := uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	got, err := tp.Call(ctx, "echo", "args", []any{int32(3), id, nil, []any{"a", int64(2)}, map[string]any{"k": true}})
	require.NoError(t, err)
	want := []any{3.0, id.String(), nil, []any{"a", 2.0}, map[string]any{"k": true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("echo mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"/people.v1.echo/args"}, b.methods)
	assert.Equal(t, []string{"req-1"}, b.requestIDs)
}

func TestCallErrors(t *testing.T) {
	tp, _ := newTransport(t, map[string][]string{"directory": {endpoint}})

	_, err := tp.Call(context.Background(), "directory", "missing", nil)
	require.Error(t, err)
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	_, err = tp.Call(context.Background(), "scoring", "score", nil)
	assert.ErrorIs(t, err, ErrNoEndpoints)

	require.NoError(t, tp.Close())
	_, err = tp.Call(context.Background(), "directory", "lookup", []any{"1"})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = New().Call(context.Background(), "directory", "lookup", nil)
	assert.ErrorContains(t, err, "provider not configured")
}

func TestFullMethod(t *testing.T) {
	assert.Equal(t, "/directory/lookup", New().FullMethod("directory", "lookup"))
	assert.Equal(t, "/a.b.directory/lookup", New(WithPackage("a.b")).FullMethod("directory", "lookup"))
}

func TestStaticEndpoints(t *testing.T) {
	p := NewStaticEndpoints(map[string][]string{"a": {"h1:1"}, Wildcard: {"h2:2"}})
	got, err := p.Endpoints(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"h1:1"}, got)
	got, err = p.Endpoints(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"h2:2"}, got)

	_, err = NewStaticEndpoints(nil).Endpoints(context.Background(), "a")
	assert.True(t, errors.Is(err, ErrNoEndpoints))

	p = NewStaticEndpoints(map[string][]string{"a": nil, Wildcard: {"h2:2"}})
	got, err = p.Endpoints(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"h2:2"}, got)
	assert.Equal(t, []string{Wildcard}, p.Services())
}

func TestOptionDefaults(t *testing.T) {
	o := buildOptions([]Option{WithMaxConnsPerEndpoint(0), WithRPCTimeout(0)})
	assert.Equal(t, defaultConnsPerEndpoint, o.MaxConnsPerEndpoint)
	assert.Equal(t, defaultRPCTimeout, o.RPCTimeout)
	assert.Len(t, o.DialOptions, 2)

	o = buildOptions([]Option{WithMaxConnsPerEndpoint(5), WithPackage("people.v1")})
	assert.Equal(t, 5, o.MaxConnsPerEndpoint)
	assert.Equal(t, "people.v1", o.Package)
}

const testSDL = `
type Query {
  people: [Person!]!
  person(id: ID!): Person @service(name: "directory", method: "lookup")
}

type Person {
  id: ID!
  name: String!
  age: Int
  score(bonus: Int): Float @service(name: "scoring", with: ["id"])
}
`

func TestRegisterExecutesThroughBackend(t *testing.T) {
	tp, _ := newTransport(t, map[string][]string{Wildcard: {endpoint}})
	s, err := schema.BuildFromSDL(&language.Source{Name: "test.graphql", Input: testSDL})
	require.NoError(t, err)
	src, err := memsource.Load(s, strings.NewReader(`people: [{id: "12", name: Ada, age: 36}]`), nil)
	require.NoError(t, err)

	services := executor.NewServiceRegistry()
	require.NoError(t, tp.Register(services, s, nil))
	assert.Equal(t, []string{"directory", "scoring"}, services.Services())

	doc, err := language.ParseQuery(`{ person(id: "7") { name age } missing: person(id: "404") { name } people { score(bonus: 1) } }`)
	require.NoError(t, err)
	res := executor.New(s, src, services).ExecuteRequest(context.Background(), doc, "", nil)
	require.False(t, res.HasErrors(), "%v", res.Errors)

	want := map[string]any{
		"person":  map[string]any{"name": "Person 7", "age": int32(36)},
		"missing": nil,
		"people":  []any{map[string]any{"score": 21.0}},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	assert.Error(t, tp.Register(services, s, nil), "methods are registered once")
}
