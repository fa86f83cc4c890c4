package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/commsutil"
	"github.com/morezero/calldef/pkg/dispatcher"
)

const commsLogPrefix = "transport:comms"

// CommsCall is the envelope sent to a gateway worker over COMMS.
type CommsCall struct {
	API           string          `json:"api"`
	Method        calldef.Method  `json:"method"`
	Path          string          `json:"path"`
	OperationPath string          `json:"operationPath,omitempty"`
	PathValues    []string        `json:"pathValues,omitempty"`
	Query         *calldef.Fields `json:"query"`
	Body          *calldef.Fields `json:"body"`
	Authorization string          `json:"authorization,omitempty"`
}

// CommsReply is the envelope a gateway worker answers with.
type CommsReply struct {
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *CommsFault     `json:"error,omitempty"`
}

// CommsFault describes a gateway failure response.
type CommsFault struct {
	Status   int             `json:"status"`
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response,omitempty"`
}

// CommsTransport sends calls as COMMS requests to calldef.<api>.<path>.
type CommsTransport struct {
	nc      *comms.Conn
	timeout time.Duration
	auth    AuthProvider
}

// NewCommsTransport creates a CommsTransport. timeout applies when the
// caller's context has no deadline.
func NewCommsTransport(nc *comms.Conn, timeout time.Duration, auth AuthProvider) *CommsTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommsTransport{nc: nc, timeout: timeout, auth: auth}
}

// Call implements dispatcher.Transport.
func (t *CommsTransport) Call(ctx context.Context, req *dispatcher.Request) (json.RawMessage, error) {
	if t.nc == nil || t.nc.IsClosed() {
		return nil, &calldef.SetupError{Message: "no COMMS connection"}
	}
	token, err := authorization(ctx, t.auth)
	if err != nil {
		return nil, &calldef.SetupError{Message: "acquiring authorization", Cause: err}
	}
	call := CommsCall{
		API:           req.API,
		Method:        req.Method,
		Path:          req.Path,
		OperationPath: req.OperationPath,
		PathValues:    req.PathValues,
		Query:         req.Query,
		Body:          req.Body,
		Authorization: token,
	}
	subjectPath := req.OperationPath
	if subjectPath == "" {
		subjectPath = req.Path
	}
	subject := commsutil.BuildCallSubject(req.API, subjectPath)

	var reply CommsReply
	err = commsutil.Request(ctx, t.nc, subject, call, &reply, t.timeout)
	switch {
	case err == nil:
	case commsutil.IsNoResponse(err):
		return nil, &calldef.NoResponseError{Message: fmt.Sprintf("no response on %s", subject), Cause: err}
	case errors.Is(err, comms.ErrConnectionClosed), errors.Is(err, comms.ErrBadSubject):
		return nil, &calldef.SetupError{Message: "sending request", Cause: err}
	default:
		return nil, &calldef.NoResponseError{Message: "unreadable reply", Cause: err}
	}

	slog.Debug(fmt.Sprintf("%s - %s ok=%v", commsLogPrefix, subject, reply.Ok))
	if !reply.Ok {
		fault := reply.Error
		if fault == nil {
			fault = &CommsFault{Message: "gateway reported failure"}
		}
		return nil, &calldef.ResponseError{Status: fault.Status, Message: fault.Message, Response: fault.Response}
	}
	return reply.Result, nil
}

// ServeComms answers COMMS calls for api by forwarding them to next, which
// is typically an HTTPTransport. It bridges workers that cannot reach the
// gateways directly.
func ServeComms(nc *comms.Conn, api string, next dispatcher.Transport) (*comms.Subscription, error) {
	subject := fmt.Sprintf("calldef.%s.>", api)
	return nc.Subscribe(subject, func(msg *comms.Msg) {
		reply := handleCommsCall(msg.Data, next)
		data, err := commsutil.EncodePayload(reply)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - encode reply: %v", commsLogPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error(fmt.Sprintf("%s - respond: %v", commsLogPrefix, err))
		}
	})
}

type wireCall struct {
	API           string          `json:"api"`
	Method        calldef.Method  `json:"method"`
	Path          string          `json:"path"`
	OperationPath string          `json:"operationPath"`
	PathValues    []string        `json:"pathValues"`
	Query         json.RawMessage `json:"query"`
	Body          json.RawMessage `json:"body"`
	Authorization string          `json:"authorization"`
}

func handleCommsCall(data []byte, next dispatcher.Transport) *CommsReply {
	var wc wireCall
	if err := commsutil.DecodePayload(data, &wc); err != nil {
		return &CommsReply{Error: &CommsFault{Status: 400, Message: err.Error()}}
	}
	query, err := decodeFields(wc.Query)
	if err != nil {
		return &CommsReply{Error: &CommsFault{Status: 400, Message: err.Error()}}
	}
	body, err := decodeFields(wc.Body)
	if err != nil {
		return &CommsReply{Error: &CommsFault{Status: 400, Message: err.Error()}}
	}

	req := &dispatcher.Request{
		API:           wc.API,
		Method:        wc.Method,
		Path:          wc.Path,
		OperationPath: wc.OperationPath,
		PathValues:    wc.PathValues,
		Query:         query,
		Body:          body,
	}
	ctx := context.Background()
	if wc.Authorization != "" {
		ctx = withForwardedAuth(ctx, wc.Authorization)
	}
	result, err := next.Call(ctx, req)
	if err == nil {
		return &CommsReply{Ok: true, Result: result}
	}

	fault := &CommsFault{Status: 502, Message: err.Error()}
	var re *calldef.ResponseError
	if errors.As(err, &re) {
		fault = &CommsFault{Status: re.Status, Message: re.Message, Response: re.Response}
	}
	return &CommsReply{Error: fault}
}

func decodeFields(raw json.RawMessage) (*calldef.Fields, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return calldef.NoFields, nil
	}
	var m map[string]any
	if err := commsutil.DecodePayload(raw, &m); err != nil {
		return nil, err
	}
	return calldef.NewFields(m), nil
}

type forwardedAuthKey struct{}

func withForwardedAuth(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, forwardedAuthKey{}, token)
}

// ForwardedAuth returns a provider that prefers the token forwarded with a
// COMMS call and falls back to fallback.
func ForwardedAuth(fallback AuthProvider) AuthProvider {
	return AuthFunc(func(ctx context.Context) (string, error) {
		if token, ok := ctx.Value(forwardedAuthKey{}).(string); ok && token != "" {
			return token, nil
		}
		return authorization(ctx, fallback)
	})
}
