package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hanpama/gqlplan/internal/config"
	"github.com/hanpama/gqlplan/internal/eventbus"
	"github.com/hanpama/gqlplan/internal/otel"
	"github.com/hanpama/gqlplan/internal/server"
)

type serveOptions struct {
	*rootOptions
	addr         string
	source       string
	dsn          string
	data         string
	otelEndpoint string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP GraphQL endpoint",
		Long: `Run the HTTP GraphQL endpoint over the configured data source and services.

Example:
  gqlplan serve -c gqlplan.yaml
  gqlplan serve --schema 'schema/*.graphql' --source sqlite --dsn file:people.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	opts.bindFlags(cmd.Flags())
	return cmd
}

func (o *serveOptions) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.addr, "addr", "", "HTTP listen address")
	fs.StringVar(&o.source, "source", "", "data source kind (memory|sqlite|postgres)")
	fs.StringVar(&o.dsn, "dsn", "", "data source name of a SQL source")
	fs.StringVar(&o.data, "data", "", "YAML data file of a memory source")
	fs.StringVar(&o.otelEndpoint, "otel-endpoint", "", "OTLP collector endpoint")
}

// load applies the flags that were set over the configuration.
func (o *serveOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := o.rootOptions.load()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = o.addr
	}
	if flags.Changed("source") {
		cfg.Source.Kind = o.source
	}
	if flags.Changed("dsn") {
		cfg.Source.DSN = o.dsn
	}
	if flags.Changed("data") {
		cfg.Source.Data = o.data
	}
	if flags.Changed("otel-endpoint") {
		cfg.Otel.Endpoint = o.otelEndpoint
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serverOptions(cfg config.Server) []server.Option {
	opts := []server.Option{
		server.WithTimeout(cfg.Timeout),
		server.WithExposePlan(cfg.ExposePlan),
	}
	if cfg.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if cfg.MaxBodyBytes > 0 {
		opts = append(opts, server.WithMaxBodyBytes(cfg.MaxBodyBytes))
	}
	if len(cfg.CORS) > 0 {
		opts = append(opts, server.WithCORS(cfg.CORS...))
	}
	return opts
}

func runServe(parent context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)
	defer logEvents(bus, log)()

	shutdown, err := otel.Setup(ctx, bus, cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, server.New(a.exec, serverOptions(cfg.Server)...))
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("GraphQL server listening", "addr", cfg.Server.Addr, "path", cfg.Server.Path)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
