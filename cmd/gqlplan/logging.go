package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hanpama/gqlplan/internal/config"
	"github.com/hanpama/gqlplan/internal/eventbus"
	"github.com/hanpama/gqlplan/internal/events"
	"github.com/hanpama/gqlplan/internal/reqid"
)

func newLogger(cfg config.Log, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.Leveler()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", cfg.Format)
}

// logEvents writes the events of b to log.
func logEvents(b *eventbus.Bus, log *slog.Logger) (detach func()) {
	with := func(ctx context.Context) *slog.Logger {
		if rid, ok := reqid.FromContext(ctx); ok {
			return log.With("request_id", rid)
		}
		return log
	}
	unsubscribe := []func(){
		eventbus.On(b, func(ctx context.Context, e events.HTTPFinish) {
			with(ctx).Info("request",
				"method", e.Request.Method,
				"path", e.Request.URL.Path,
				"status", e.Status,
				"duration", e.Duration)
		}),
		eventbus.On(b, func(ctx context.Context, e events.GraphQLFinish) {
			with(ctx).Debug("operation",
				"name", e.OperationName,
				"type", e.OperationType,
				"errors", len(e.Errors),
				"duration", e.Duration)
		}),
		eventbus.On(b, func(ctx context.Context, e events.PlanBuilt) {
			if e.Err != nil {
				with(ctx).Debug("plan failed", "operation", e.OperationName, "error", e.Err)
				return
			}
			with(ctx).Debug("plan built",
				"operation", e.OperationName,
				"two_pass", e.TwoPass,
				"services", e.Services,
				"duration", e.Duration)
		}),
		eventbus.On(b, func(ctx context.Context, e events.SourceQueryFinish) {
			if e.Err != nil {
				with(ctx).Warn("source query failed", "source", e.Source, "error", e.Err)
				return
			}
			with(ctx).Debug("source query", "source", e.Source, "duration", e.Duration)
		}),
		eventbus.On(b, func(ctx context.Context, e events.ServiceCallFinish) {
			if e.Err != nil {
				with(ctx).Warn("service call failed", "service", e.Service, "method", e.Method, "error", e.Err)
			}
		}),
	}
	return func() {
		for _, u := range unsubscribe {
			u()
		}
	}
}
