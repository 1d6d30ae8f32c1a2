package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hanpama/gqlplan/internal/coerce"
	"github.com/hanpama/gqlplan/internal/config"
	"github.com/hanpama/gqlplan/internal/executor"
	"github.com/hanpama/gqlplan/internal/grpctp"
	"github.com/hanpama/gqlplan/internal/introspection"
	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/schema"
	"github.com/hanpama/gqlplan/internal/source/memsource"
	"github.com/hanpama/gqlplan/internal/source/sqlsource"
)

// app holds the components assembled from a configuration.
type app struct {
	schema   *schema.Schema
	registry *coerce.Registry
	exec     *executor.Executor
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func loadSchema(cfg *config.Config) (*schema.Schema, error) {
	files, err := cfg.SchemaFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no schema files configured")
	}
	sources, err := language.ReadSources(files...)
	if err != nil {
		return nil, err
	}
	s, err := schema.BuildFromSDL(sources...)
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	return s, nil
}

// exposed returns the schema queries are bound against: s itself, or s extended
// with the introspection fields when they are enabled.
func exposed(cfg *config.Config, s *schema.Schema) (*schema.Schema, error) {
	if !cfg.Server.Introspection {
		return s, nil
	}
	return introspection.Extend(s)
}

// compiler assembles an executor without a data source or services; it can plan
// queries but not run them.
func compiler(cfg *config.Config) (*app, error) {
	s, err := loadSchema(cfg)
	if err != nil {
		return nil, err
	}
	if s, err = exposed(cfg, s); err != nil {
		return nil, err
	}
	registry := coerce.NewRegistry()
	exec := executor.New(s, nil, nil,
		executor.WithCoercion(registry),
		executor.WithExtensions(cfg.Extensions()))
	return &app{schema: s, registry: registry, exec: exec}, nil
}

// build assembles the schema, data source, services and executor of cfg.
func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	s, err := loadSchema(cfg)
	if err != nil {
		return nil, err
	}
	base := s
	if s, err = exposed(cfg, base); err != nil {
		return nil, err
	}
	a := &app{schema: s, registry: coerce.NewRegistry()}

	var src executor.Source
	switch cfg.Source.Kind {
	case config.SourceMemory:
		if cfg.Source.Data == "" {
			src, err = memsource.New(s, nil, a.registry)
		} else {
			src, err = memsource.LoadFile(s, cfg.Source.Data, a.registry)
		}
		if err != nil {
			return nil, fmt.Errorf("memory source: %w", err)
		}
	default:
		d, err := sqlsource.DialectFor(cfg.Source.Kind)
		if err != nil {
			return nil, err
		}
		db, err := sqlsource.Open(ctx, d, cfg.Source.DSN)
		if err != nil {
			return nil, err
		}
		sql, err := sqlsource.New(db, d, s, a.registry)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.closers = append(a.closers, sql.Close)
		src = sql
	}
	log.Info("data source ready", "kind", cfg.Source.Kind)

	services := executor.NewServiceRegistry()
	if s != base {
		if err := introspection.Register(services, s); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	if len(cfg.Services.Endpoints) > 0 {
		endpoints := grpctp.NewStaticEndpoints(cfg.Services.Endpoints)
		tp := grpctp.New(
			grpctp.WithProvider(endpoints),
			grpctp.WithPackage(cfg.Services.Package),
			grpctp.WithMaxConnsPerEndpoint(cfg.Services.MaxConnsPerEndpoint),
			grpctp.WithRPCTimeout(cfg.Services.RPCTimeout),
		)
		a.closers = append(a.closers, tp.Close)
		if err := tp.Register(services, base, a.registry); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("register services: %w", err)
		}
		log.Info("remote services registered", "services", services.Services(), "endpoints", endpoints.Services())
	}

	a.exec = executor.New(s, src, services,
		executor.WithCoercion(a.registry),
		executor.WithExtensions(cfg.Extensions()))
	return a, nil
}
