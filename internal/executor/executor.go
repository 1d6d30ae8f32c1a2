package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hanpama/gqlplan/internal/binder"
	"github.com/hanpama/gqlplan/internal/coerce"
	"github.com/hanpama/gqlplan/internal/eventbus"
	"github.com/hanpama/gqlplan/internal/events"
	"github.com/hanpama/gqlplan/internal/expr"
	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/plan"
	"github.com/hanpama/gqlplan/internal/schema"
)

// Error codes reported in the extensions of a GraphQLError.
const (
	CodeValidation = "GRAPHQL_VALIDATION_FAILED"
	CodePlan       = "PLAN_FAILED"
	CodeExecution  = "EXECUTION_FAILED"
)

// Source evaluates pushdown expressions against stored data.
type Source interface {
	// Name identifies the source in events.
	Name() string

	// Query evaluates pushdown with root standing for the query root. The constant
	// parameters the expression references are bound in consts. The result may hold
	// lazy sequences; the executor materializes it.
	Query(ctx context.Context, pushdown expr.Expr, root *expr.Param, consts map[*expr.Param]any) (any, error)
}

// Executor compiles and runs queries for one schema.
type Executor struct {
	schema   *schema.Schema
	binder   *binder.Binder
	compiler *plan.Compiler
	source   Source
	services *ServiceRegistry

	registry   *coerce.Registry
	extensions plan.Extensions
}

type Option func(*Executor)

// WithExtensions installs static rewrites applied to list fields by identity.
func WithExtensions(ext plan.Extensions) Option { return func(e *Executor) { e.extensions = ext } }

// WithCoercion replaces the registry used to coerce constant values.
func WithCoercion(r *coerce.Registry) Option { return func(e *Executor) { e.registry = r } }

// New creates an executor reading data from source. services may be nil when the
// schema declares no @service field.
func New(s *schema.Schema, source Source, services *ServiceRegistry, opts ...Option) *Executor {
	if services == nil {
		services = NewServiceRegistry()
	}
	e := &Executor{schema: s, binder: binder.New(s), source: source, services: services}
	for _, opt := range opts {
		opt(e)
	}
	e.compiler = plan.NewCompiler(e.registry, e.extensions)
	return e
}

// Services returns the registry the executor dispatches service calls to.
func (e *Executor) Services() *ServiceRegistry { return e.services }

// Plan binds and compiles an operation without running it.
func (e *Executor) Plan(ctx context.Context, document *language.QueryDocument, operationName string, variableValues map[string]any) (*plan.Plan, error) {
	start := time.Now()
	root, err := e.binder.Bind(document, operationName, variableValues)
	if err != nil {
		return nil, err
	}
	p, err := e.compiler.Build(root)
	ev := events.PlanBuilt{OperationName: operationName, Err: err, Duration: time.Since(start)}
	if p != nil {
		ev.Services, ev.TwoPass = p.Services, p.TwoPass()
	}
	eventbus.Publish(ctx, ev)
	if err != nil {
		return nil, &planError{err}
	}
	return p, nil
}

type planError struct{ err error }

func (e *planError) Error() string { return e.err.Error() }
func (e *planError) Unwrap() error { return e.err }

// ExecuteRequest binds, compiles and runs an operation.
func (e *Executor) ExecuteRequest(ctx context.Context, document *language.QueryDocument, operationName string, variableValues map[string]any) *ExecutionResult {
	p, err := e.Plan(ctx, document, operationName, variableValues)
	if err != nil {
		var pe *planError
		if errors.As(err, &pe) {
			return failed(err, CodePlan)
		}
		return failed(err, CodeValidation)
	}
	data, err := e.Execute(ctx, p)
	if err != nil {
		res := failed(err, CodeExecution)
		res.Plan = p
		return res
	}
	return &ExecutionResult{Data: data, Plan: p}
}

// Execute runs a compiled plan. The pushdown goes to the source; a two-pass plan then
// evaluates its post expression over the materialized pushdown result.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan) (any, error) {
	for _, s := range p.Services {
		if !e.services.Has(s) {
			return nil, fmt.Errorf("service %q is not registered", s)
		}
	}
	if e.source == nil {
		return nil, errors.New("no data source configured")
	}

	pushdown := expr.String(p.Pushdown)
	eventbus.Publish(ctx, events.SourceQueryStart{Source: e.source.Name(), Pushdown: pushdown})
	start := time.Now()
	v, err := e.source.Query(ctx, p.Pushdown, p.Root, p.Constants)
	if err == nil {
		v, err = expr.Materialize(v)
	}
	eventbus.Publish(ctx, events.SourceQueryFinish{Source: e.source.Name(), Pushdown: pushdown, Err: err, Duration: time.Since(start)})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.source.Name(), err)
	}
	if !p.TwoPass() {
		return v, nil
	}

	env := (&expr.Env{Params: p.Constants, Caller: e.services}).Bind(p.Materialized, v)
	out, err := expr.Eval(ctx, p.Post, env)
	if err != nil {
		return nil, err
	}
	return expr.Materialize(out)
}
