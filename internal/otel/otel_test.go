package otel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hanpama/gqlplan/internal/eventbus"
	"github.com/hanpama/gqlplan/internal/events"
	"github.com/hanpama/gqlplan/internal/reqid"
)

func TestAttachRecordsRequestSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	b := eventbus.New()
	detach := Attach(b, tp)
	defer detach()

	ctx, _ := reqid.NewContext(context.Background())
	req := httptest.NewRequest("POST", "/graphql", nil)

	eventbus.Emit(ctx, b, events.HTTPStart{Request: req})
	eventbus.Emit(ctx, b, events.GraphQLStart{OperationName: "Q", OperationType: "query"})
	eventbus.Emit(ctx, b, events.PlanBuilt{OperationName: "Q", Services: []string{"scoring"}, TwoPass: true, Duration: time.Millisecond})
	eventbus.Emit(ctx, b, events.SourceQueryStart{Source: "memory", Pushdown: "new {}"})
	eventbus.Emit(ctx, b, events.SourceQueryFinish{Source: "memory", Err: errors.New("boom")})
	eventbus.Emit(ctx, b, events.ServiceCallStart{Service: "scoring", Method: "score"})
	eventbus.Emit(ctx, b, events.ServiceCallFinish{Service: "scoring", Method: "score"})
	eventbus.Emit(ctx, b, events.GraphQLFinish{OperationName: "Q"})
	eventbus.Emit(ctx, b, events.HTTPFinish{Request: req, Status: 200})

	ended := rec.Ended()
	require.Len(t, ended, 5)
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range ended {
		byName[s.Name()] = s
	}
	httpSpan, gqlSpan := byName["http.request"], byName["graphql.operation"]
	require.NotNil(t, httpSpan)
	require.NotNil(t, gqlSpan)

	assert.Equal(t, httpSpan.SpanContext().SpanID(), gqlSpan.Parent().SpanID())
	for _, name := range []string{"gqlplan.plan", "gqlplan.source", "gqlplan.service"} {
		s := byName[name]
		require.NotNil(t, s, name)
		assert.Equal(t, gqlSpan.SpanContext().SpanID(), s.Parent().SpanID(), name)
		assert.Equal(t, httpSpan.SpanContext().TraceID(), s.SpanContext().TraceID(), name)
	}
	assert.Equal(t, codes.Error, byName["gqlplan.source"].Status().Code)
	assert.Equal(t, codes.Unset, byName["gqlplan.service"].Status().Code)
}

func TestDetach(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	b := eventbus.New()
	Attach(b, tp)()

	ctx, _ := reqid.NewContext(context.Background())
	eventbus.Emit(ctx, b, events.ServiceCallStart{Service: "s", Method: "m"})
	eventbus.Emit(ctx, b, events.ServiceCallFinish{Service: "s", Method: "m"})
	assert.Empty(t, rec.Ended())
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), eventbus.New(), "", "gqlplan")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
