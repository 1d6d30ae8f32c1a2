// Package otel turns the events published on an eventbus into OpenTelemetry spans.
package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/hanpama/gqlplan/internal/eventbus"
	"github.com/hanpama/gqlplan/internal/events"
	"github.com/hanpama/gqlplan/internal/reqid"
)

const instrumentationName = "github.com/hanpama/gqlplan"

// Setup exports spans for the events of b to an OTLP collector at endpoint.
// If endpoint is empty, no telemetry is configured.
func Setup(ctx context.Context, b *eventbus.Bus, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	detach := Attach(b, tp)
	return func(ctx context.Context) error {
		detach()
		return tp.Shutdown(ctx)
	}, nil
}

// Attach subscribes span recording handlers to b. Spans of one request are keyed
// by its request ID, so events without one are parented to the context only.
func Attach(b *eventbus.Bus, tp trace.TracerProvider) (detach func()) {
	s := &subscriber{tracer: tp.Tracer(instrumentationName)}
	return s.register(b)
}

type subscriber struct {
	tracer      trace.Tracer
	httpSpans   sync.Map // rid -> trace.Span
	gqlSpans    sync.Map // rid -> trace.Span
	sourceSpans sync.Map // rid -> trace.Span
	callSpans   sync.Map // rid -> trace.Span
}

// parent returns ctx carrying the innermost open span of the request.
func (s *subscriber) parent(ctx context.Context, rid string) context.Context {
	for _, m := range []*sync.Map{&s.gqlSpans, &s.httpSpans} {
		if v, ok := m.Load(rid); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func (s *subscriber) start(ctx context.Context, m *sync.Map, name string, opts ...trace.SpanStartOption) trace.Span {
	rid, _ := reqid.FromContext(ctx)
	_, span := s.tracer.Start(s.parent(ctx, rid), name, opts...)
	m.Store(rid, span)
	return span
}

func (s *subscriber) finish(ctx context.Context, m *sync.Map, err error, attrs ...attribute.KeyValue) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := m.LoadAndDelete(rid)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *subscriber) register(b *eventbus.Bus) func() {
	unsubscribe := []func(){
		eventbus.On(b, func(ctx context.Context, e events.HTTPStart) {
			s.start(ctx, &s.httpSpans, "http.request", trace.WithAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path),
			))
		}),
		eventbus.On(b, func(ctx context.Context, e events.HTTPFinish) {
			s.finish(ctx, &s.httpSpans, nil, semconv.HTTPStatusCodeKey.Int(e.Status))
		}),
		eventbus.On(b, func(ctx context.Context, e events.GraphQLStart) {
			s.start(ctx, &s.gqlSpans, "graphql.operation", trace.WithAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType),
			))
		}),
		eventbus.On(b, func(ctx context.Context, e events.GraphQLFinish) {
			s.finish(ctx, &s.gqlSpans, nil, attribute.Int("graphql.error_count", len(e.Errors)))
		}),
		eventbus.On(b, func(ctx context.Context, e events.PlanBuilt) {
			rid, _ := reqid.FromContext(ctx)
			end := time.Now()
			_, span := s.tracer.Start(s.parent(ctx, rid), "gqlplan.plan",
				trace.WithTimestamp(end.Add(-e.Duration)),
				trace.WithAttributes(
					attribute.String("graphql.operation.name", e.OperationName),
					attribute.StringSlice("gqlplan.services", e.Services),
					attribute.Bool("gqlplan.two_pass", e.TwoPass),
				))
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End(trace.WithTimestamp(end))
		}),
		eventbus.On(b, func(ctx context.Context, e events.SourceQueryStart) {
			s.start(ctx, &s.sourceSpans, "gqlplan.source", trace.WithAttributes(
				attribute.String("gqlplan.source", e.Source),
				attribute.String("gqlplan.pushdown", e.Pushdown),
			))
		}),
		eventbus.On(b, func(ctx context.Context, e events.SourceQueryFinish) {
			s.finish(ctx, &s.sourceSpans, e.Err)
		}),
		eventbus.On(b, func(ctx context.Context, e events.ServiceCallStart) {
			s.start(ctx, &s.callSpans, "gqlplan.service", trace.WithAttributes(
				semconv.RPCServiceKey.String(e.Service),
				semconv.RPCMethodKey.String(e.Method),
			))
		}),
		eventbus.On(b, func(ctx context.Context, e events.ServiceCallFinish) {
			s.finish(ctx, &s.callSpans, e.Err)
		}),
	}
	return func() {
		for _, u := range unsubscribe {
			u()
		}
	}
}
