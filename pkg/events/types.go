// Package events defines the dispatched-call event and its publishers.
package events

import (
	"time"

	"github.com/nats-io/nuid"

	"github.com/morezero/calldef/pkg/dispatcher"
)

// DispatchedEvent is emitted after every dispatch that reached a transport.
type DispatchedEvent struct {
	ID string `json:"id"`
	// APIType and Operation together form the qualified operation name.
	APIType   string `json:"apiType"`
	Operation string `json:"operation"`
	// API is the gateway API the call was sent to, e.g. "api-work-dev".
	API        string `json:"api"`
	Stage      string `json:"stage,omitempty"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	IsSuccess  bool   `json:"isSuccess"`
	ErrorCode  string `json:"errorCode,omitempty"`
	Status     int    `json:"status,omitempty"`
	DurationMs int64  `json:"durationMs"`
	RequestID  string `json:"requestId,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// NewDispatchedEvent summarises req and res. req may be nil when the call
// failed while it was being built.
func NewDispatchedEvent(apiType, operation, stage string, req *dispatcher.Request, res *dispatcher.Result, took time.Duration) *DispatchedEvent {
	e := &DispatchedEvent{
		ID:         nuid.Next(),
		APIType:    apiType,
		Operation:  operation,
		Stage:      stage,
		DurationMs: took.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if req != nil {
		e.API = req.API
		e.Method = string(req.Method)
		e.Path = req.Path
	}
	if res != nil {
		e.IsSuccess = res.IsSuccess
		e.Timestamp = res.Timestamp.UTC().Format(time.RFC3339Nano)
		if res.ErrorInfo != nil {
			e.ErrorCode = res.ErrorInfo.Code
			e.Status = res.ErrorInfo.Status
		}
	}
	return e
}
