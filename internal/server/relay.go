package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/db"
	"github.com/morezero/calldef/pkg/dispatcher"
	"github.com/morezero/calldef/pkg/events"
	"github.com/morezero/calldef/pkg/opref"
	"github.com/morezero/calldef/pkg/registry"
)

const relayLogPrefix = "server:relay"

// Relay error codes for requests that never reached a transport.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInvalidArgument = "INVALID_ARGUMENT"
)

// Subscribe answers CallRequests on subject until the subscription is dropped.
func (s *Server) Subscribe(ctx context.Context, subject string) (*comms.Subscription, error) {
	sub, err := s.nc.Subscribe(subject, func(msg *comms.Msg) {
		resp := s.handleRelayMsg(ctx, msg.Data)
		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode response: %v", relayLogPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error(fmt.Sprintf("%s - respond: %v", relayLogPrefix, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", relayLogPrefix, subject, err)
	}
	return sub, nil
}

func (s *Server) handleRelayMsg(ctx context.Context, data []byte) *dispatcher.CallResponse {
	var req dispatcher.CallRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", relayLogPrefix, err))
		return &dispatcher.CallResponse{
			Ok:    false,
			Error: &dispatcher.ErrorDetail{Code: CodeInvalidRequest, Message: "Failed to decode request"},
		}
	}

	// Per-request context with timeout; a shorter client timeout wins.
	timeout := s.requestTimeout()
	if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
		if d := time.Duration(req.Ctx.TimeoutMs) * time.Millisecond; d < timeout {
			timeout = d
		}
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return s.HandleCall(reqCtx, &req)
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg != nil && s.cfg.RequestTimeout > 0 {
		return s.cfg.RequestTimeout
	}
	return 30 * time.Second
}

func (s *Server) defaultStage() string {
	if s.cfg != nil {
		return s.cfg.GatewayStage
	}
	return ""
}

// HandleCall resolves, dispatches, journals and publishes one call.
func (s *Server) HandleCall(ctx context.Context, req *dispatcher.CallRequest) *dispatcher.CallResponse {
	slog.Debug(fmt.Sprintf("%s - id=%s operation=%s", relayLogPrefix, req.ID, req.Operation))

	ref, err := opref.Parse(req.Operation)
	if err != nil {
		return rejected(req.ID, CodeInvalidArgument, err)
	}
	resolved := ref.WithDefaultStage(req.Stage).WithDefaultStage(s.defaultStage())

	params, err := req.ToParams()
	if err != nil {
		return rejected(req.ID, CodeInvalidArgument, err)
	}

	entry, err := s.reg.Lookup(ref.Full)
	if err != nil {
		return rejected(req.ID, calldef.KindUnknownOperation.Code(), err)
	}

	started := time.Now()
	api := req.API
	var res *dispatcher.Result
	var call *dispatcher.Request
	if api == "" {
		api, err = s.endpoints.Resolve(ref.API, resolved.Stage)
	}
	if err != nil {
		res = s.disp.Fail(&calldef.SetupError{Message: "resolving gateway api", Cause: err})
	} else {
		call, err = dispatcher.BuildRequest(api, entry.Descriptor, params)
		kind := calldef.KindOf(err)
		switch {
		case err != nil && kind.Local():
			return rejected(req.ID, kind.Code(), err)
		case err != nil:
			res = s.disp.Fail(err)
		default:
			res = s.disp.Send(ctx, call)
		}
	}
	took := time.Since(started)

	s.record(ctx, req, entry, resolved, call, res, took)

	resp := &dispatcher.CallResponse{ID: req.ID, Ok: res.IsSuccess, Result: res}
	if !res.IsSuccess {
		resp.Error = &dispatcher.ErrorDetail{
			Code:      res.ErrorInfo.Code,
			Message:   res.ErrorInfo.Message,
			Retryable: res.ErrorInfo.Kind == calldef.KindTransportNoResponse,
		}
	}
	return resp
}

// record journals the call and publishes its event. Failures are logged only.
func (s *Server) record(ctx context.Context, req *dispatcher.CallRequest, entry *registry.Entry, ref opref.Ref,
	call *dispatcher.Request, res *dispatcher.Result, took time.Duration) {
	event := events.NewDispatchedEvent(entry.API, ref.Operation, ref.Stage, call, res, took)
	if req.Ctx != nil {
		event.RequestID = req.Ctx.RequestID
	}
	if event.RequestID == "" {
		event.RequestID = req.ID
	}

	// Detach from the request deadline so a timed-out call is still recorded.
	bg := context.WithoutCancel(ctx)

	if s.journal != nil {
		rec := &db.CallRecord{
			RequestID:  event.RequestID,
			Operation:  entry.Name,
			API:        event.API,
			Stage:      event.Stage,
			Method:     event.Method,
			Path:       event.Path,
			IsSuccess:  event.IsSuccess,
			DurationMs: event.DurationMs,
		}
		if event.ErrorCode != "" {
			rec.ErrorCode = &event.ErrorCode
		}
		if event.Status != 0 {
			rec.Status = &event.Status
		}
		if err := s.journal.RecordCall(bg, rec); err != nil {
			slog.Warn(fmt.Sprintf("%s - journal: %v", relayLogPrefix, err))
		}
	}
	if err := s.publisher.PublishDispatched(bg, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - publish: %v", relayLogPrefix, err))
	}
}

func rejected(id, code string, err error) *dispatcher.CallResponse {
	slog.Debug(fmt.Sprintf("%s - rejected id=%s code=%s: %v", relayLogPrefix, id, code, err))
	return &dispatcher.CallResponse{
		ID: id,
		Ok: false,
		Error: &dispatcher.ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	}
}
