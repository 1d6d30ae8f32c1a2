// Package server exposes an Executor over HTTP following the GraphQL-over-HTTP
// conventions: GET with query parameters, POST with a JSON body, and batched POSTs
// of JSON arrays.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/gqlplan/internal/eventbus"
	"github.com/hanpama/gqlplan/internal/events"
	"github.com/hanpama/gqlplan/internal/executor"
	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/reqid"
)

// RequestIDHeader carries the request ID. An incoming value is kept; otherwise a new
// ID is generated. The ID is echoed on the response.
const RequestIDHeader = "X-Request-ID"

// Handler is an http.Handler that serves a GraphQL endpoint.
type Handler struct {
	exec *executor.Executor
	opt  Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses.
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// ExposePlan adds the compiled plan to the response extensions of requests
	// whose extensions set "plan" to true.
	ExposePlan bool
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithExposePlan(enable bool) Option { return func(o *Options) { o.ExposePlan = enable } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a GraphQL HTTP handler running queries on exec.
func New(exec *executor.Executor, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{exec: exec, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	var rid string
	if rid = r.Header.Get(RequestIDHeader); rid != "" {
		ctx = reqid.WithID(ctx, rid)
	} else {
		ctx, rid = reqid.NewContext(ctx)
	}
	w.Header().Set(RequestIDHeader, rid)

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse("method not allowed"), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if errors.Is(berr, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(berr.Error()), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		out := make([]*Response, len(batch))
		for i := range batch {
			out[i] = h.executeOne(ctx, batch[i])
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	writeJSON(w, status, h.executeOne(ctx, req), h.opt.Pretty)
}

// Response is the JSON body of one GraphQL result.
type Response struct {
	Data       any                     `json:"data"`
	Errors     []executor.GraphQLError `json:"errors,omitempty"`
	Extensions map[string]any          `json:"extensions,omitempty"`
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) *Response {
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		return syntaxError(err)
	}

	opDef := doc.Operations.ForName(req.OperationName)
	opType := ""
	if opDef != nil {
		opType = string(opDef.Operation)
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	result := h.exec.ExecuteRequest(ctx, doc, req.OperationName, req.Variables)
	errs := make([]error, len(result.Errors))
	for i := range result.Errors {
		errs[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})

	res := &Response{Data: result.Data, Errors: result.Errors}
	if h.opt.ExposePlan && req.Extensions["plan"] == true && result.Plan != nil && !result.HasErrors() {
		res.Extensions = map[string]any{"plan": result.Plan.String()}
	}
	return res
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

var errBodyTooLarge = errors.New("body too large")

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, errors.New("missing 'query'")
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, errors.New("invalid 'variables' JSON")
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return GraphQLRequest{}, nil, errors.New("unsupported Content-Type")
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, errors.New("failed to read body")
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, errBodyTooLarge
	}

	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, errors.New("invalid JSON")
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, errors.New("empty batch")
		}
		return GraphQLRequest{}, arr, nil
	}
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, errors.New("invalid JSON")
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, errors.New("missing 'query'")
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

func errorResponse(message string) *Response {
	return &Response{Errors: []executor.GraphQLError{{Message: message}}}
}

func syntaxError(err error) *Response {
	var ge *gqlerror.Error
	if !errors.As(err, &ge) {
		return errorResponse(err.Error())
	}
	out := executor.GraphQLError{Message: ge.Message, Extensions: map[string]any{"code": "GRAPHQL_PARSE_FAILED"}}
	for _, l := range ge.Locations {
		out.Locations = append(out.Locations, executor.Location{Line: l.Line, Column: l.Column})
	}
	return &Response{Errors: []executor.GraphQLError{out}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	wildcard, allowed := false, false
	for _, o := range opts.AllowedOrigins {
		wildcard = wildcard || o == "*"
		allowed = allowed || o == "*" || o == origin
	}
	if !allowed {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}
