package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

// Request is the concrete call handed to a Transport.
type Request struct {
	// API names the gateway the call is sent to.
	API    string
	Method calldef.Method
	// Path is the operation path with path parameters appended.
	Path string
	// OperationPath and PathValues are the parts Path is joined from. Each
	// path value travels as exactly one URL segment.
	OperationPath string
	PathValues    []string
	// Query and Body are calldef.NoFields when nothing is sent.
	Query *calldef.Fields
	Body  *calldef.Fields
}

// Segments returns the unescaped URL path segments of the call. A request
// built without an operation path is split on "/".
func (r *Request) Segments() []string {
	base := r.OperationPath
	if base == "" {
		base = r.Path
	}
	var segs []string
	for _, s := range strings.Split(base, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if r.OperationPath != "" {
		segs = append(segs, r.PathValues...)
	}
	return segs
}

// Transport issues one call and returns the raw payload. Failures should be
// *calldef.ResponseError, *calldef.NoResponseError or *calldef.SetupError.
type Transport interface {
	Call(ctx context.Context, req *Request) (json.RawMessage, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (json.RawMessage, error)

// Call implements Transport.
func (f TransportFunc) Call(ctx context.Context, req *Request) (json.RawMessage, error) {
	return f(ctx, req)
}

// Dispatcher builds and issues calls. It keeps no state between dispatches.
type Dispatcher struct {
	registry  *registry.Registry
	transport Transport
	now       func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a Dispatcher. reg may be nil when only Dispatch is used.
func NewDispatcher(reg *registry.Registry, transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: reg, transport: transport, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher resolves names against.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// BuildRequest validates path parameters and partitions params into the
// concrete call. It does no I/O.
func BuildRequest(api string, desc *calldef.Descriptor, params calldef.Params) (*Request, error) {
	if desc == nil {
		return nil, &calldef.SetupError{Message: "nil descriptor"}
	}
	for _, name := range desc.PathParams {
		if !params.Defined(name) {
			return nil, &calldef.MissingPathParameterError{Operation: desc.OperationPath, Param: name}
		}
	}
	values, err := desc.PathValues(params)
	if err != nil {
		return nil, err
	}
	path := desc.OperationPath
	if len(values) > 0 {
		path += "/" + strings.Join(values, "/")
	}
	return &Request{
		API:           api,
		Method:        desc.Method,
		Path:          path,
		OperationPath: desc.OperationPath,
		PathValues:    values,
		Query:         desc.Query(params),
		Body:          desc.Body(params),
	}, nil
}

// Dispatch issues one call for desc. A missing or invalid path parameter is
// returned as an error before the transport is touched; every other outcome,
// including transport failures, is returned as a Result.
func (d *Dispatcher) Dispatch(ctx context.Context, api string, desc *calldef.Descriptor, params calldef.Params) (*Result, error) {
	req, err := BuildRequest(api, desc, params)
	if err != nil {
		if calldef.KindOf(err).Local() {
			slog.Debug(fmt.Sprintf("%s - rejected before transport: %v", logPrefix, err))
			return nil, err
		}
		return d.Fail(err), nil
	}

	return d.Send(ctx, req), nil
}

// Send issues a request built by BuildRequest. Every outcome is a Result.
func (d *Dispatcher) Send(ctx context.Context, req *Request) *Result {
	slog.Debug(fmt.Sprintf("%s - api=%s method=%s path=%s query=%v body=%v",
		logPrefix, req.API, req.Method, req.Path, req.Query.Keys(), req.Body.Keys()))

	if d.transport == nil {
		return d.Fail(&calldef.SetupError{Message: "no transport configured"})
	}
	payload, err := d.transport.Call(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && calldef.KindOf(err) == calldef.KindTransportSetup {
			err = &calldef.NoResponseError{Message: "call abandoned", Cause: err}
		}
		return d.Fail(err)
	}
	return Success(payload, d.now())
}

// DispatchOperation looks name up in the registry and dispatches it.
func (d *Dispatcher) DispatchOperation(ctx context.Context, api, name string, params calldef.Params) (*Result, error) {
	entry, err := d.registry.Lookup(name)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - %v", logPrefix, err))
		return nil, err
	}
	return d.Dispatch(ctx, api, entry.Descriptor, params)
}

// Fail classifies err into a failed Result stamped with the dispatcher's clock.
func (d *Dispatcher) Fail(err error) *Result {
	info := Classify(err)
	slog.Warn(fmt.Sprintf("%s - call failed code=%s message=%s", logPrefix, info.Code, info.Message))
	return Failure(info, d.now())
}

// Call runs a typed call definition: args are converted to parameters, the
// call is dispatched, and a successful payload is decoded into R and
// converted into T. The Result is always returned when err is nil.
func Call[A any, P calldef.ParamSource, R any, T any](ctx context.Context, d *Dispatcher, api string, def *calldef.CallDef[A, P, R, T], args A) (T, *Result, error) {
	var zero T
	if err := def.Validate(); err != nil {
		return zero, nil, err
	}
	res, err := d.Dispatch(ctx, api, def.Descriptor, def.ArgsToParams(args).Params())
	if err != nil || !res.IsSuccess {
		return zero, res, err
	}
	var raw R
	if err := res.Decode(&raw); err != nil {
		return zero, res, err
	}
	return def.ResponseToResult(raw), res, nil
}

// unwrapTaxonomy returns the first taxonomy error in err's chain, or err.
func unwrapTaxonomy(err error) error {
	var (
		response *calldef.ResponseError
		noResp   *calldef.NoResponseError
		setup    *calldef.SetupError
	)
	switch {
	case errors.As(err, &response):
		return response
	case errors.As(err, &noResp):
		return noResp
	case errors.As(err, &setup):
		return setup
	}
	return err
}
