// Package dispatcher turns a call descriptor and a parameter object into a
// concrete call, issues it through a Transport and wraps the outcome.
package dispatcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/language"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/locale"
)

// ErrorInfo is the classified failure carried by a failed Result.
type ErrorInfo struct {
	Kind    calldef.ErrorKind `json:"kind"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status,omitempty"`
	// Response is the raw failure payload, present for TransportResponseError.
	Response json.RawMessage `json:"response,omitempty"`
}

// Error lets an ErrorInfo travel as an error.
func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s(%s)", e.Code, e.Message)
}

// DisplayMessage renders the classification and, when present, the raw
// response payload indented with tabs.
func (e *ErrorInfo) DisplayMessage() string {
	msg := fmt.Sprintf("%s(%s)", e.Code, e.Message)
	if len(e.Response) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, e.Response, "", "\t"); err != nil {
			buf.Reset()
			buf.Write(e.Response)
		}
		msg += "\nresponse:\n" + buf.String()
	}
	return msg
}

// Result is the outcome envelope of one dispatch. Exactly one of Response
// and ErrorInfo is set.
type Result struct {
	IsSuccess bool            `json:"isSuccess"`
	Response  json.RawMessage `json:"response,omitempty"`
	ErrorInfo *ErrorInfo      `json:"errorInfo,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Success wraps a payload. A nil payload is recorded as JSON null so the
// response stays present.
func Success(payload json.RawMessage, at time.Time) *Result {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return &Result{IsSuccess: true, Response: payload, Timestamp: at}
}

// Failure wraps a classified error.
func Failure(info *ErrorInfo, at time.Time) *Result {
	if info == nil {
		info = &ErrorInfo{Kind: calldef.KindTransportSetup, Code: calldef.KindTransportSetup.Code(), Message: "unknown failure"}
	}
	return &Result{IsSuccess: false, ErrorInfo: info, Timestamp: at}
}

// Decode unmarshals the success payload into v.
func (r *Result) Decode(v any) error {
	if !r.IsSuccess {
		return r.ErrorInfo
	}
	if err := json.Unmarshal(r.Response, v); err != nil {
		return fmt.Errorf("%s - decode response: %w", logPrefix, err)
	}
	return nil
}

// DateTimeString renders the capture time for the system locale.
func (r *Result) DateTimeString() string {
	return r.DateTimeStringIn(locale.Detect())
}

// DateTimeStringIn renders the capture time for tag, in local time.
func (r *Result) DateTimeStringIn(tag language.Tag) string {
	return locale.FormatDateTime(r.Timestamp.Local(), tag)
}

// Classify maps a transport error onto the taxonomy.
func Classify(err error) *ErrorInfo {
	kind := calldef.KindOf(err)
	info := &ErrorInfo{Kind: kind, Code: kind.Code(), Message: err.Error()}
	switch e := unwrapTaxonomy(err).(type) {
	case *calldef.ResponseError:
		info.Status = e.Status
		info.Message = e.Message
		if info.Message == "" {
			info.Message = fmt.Sprintf("status %d", e.Status)
		}
		if len(e.Response) > 0 {
			info.Response = append(json.RawMessage(nil), e.Response...)
		}
	case *calldef.NoResponseError:
		info.Message = e.Message
		if e.Cause != nil {
			info.Message = fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
	case *calldef.SetupError:
		info.Message = e.Message
		if e.Cause != nil {
			info.Message = fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
	}
	return info
}

// --- relay wire envelope ---

// CallRequest is the JSON envelope a relay client sends.
type CallRequest struct {
	ID string `json:"id"`
	// Operation is an operation reference such as "work.find" or "work.find@dev".
	Operation string `json:"operation"`
	// API overrides the gateway API name resolved from the operation's type.
	API    string                     `json:"api,omitempty"`
	Stage  string                     `json:"stage,omitempty"`
	Params map[string]json.RawMessage `json:"params,omitempty"`
	// Unset names keys that are present but have no value.
	Unset []string           `json:"unset,omitempty"`
	Ctx   *InvocationContext `json:"ctx,omitempty"`
}

// ToParams rebuilds the parameter object: JSON null stays an explicit null,
// keys listed in Unset become Undefined.
func (r *CallRequest) ToParams() (calldef.Params, error) {
	p := make(calldef.Params, len(r.Params)+len(r.Unset))
	for k, raw := range r.Params {
		var v any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s - param %q: %w", logPrefix, k, err)
		}
		p[k] = v
	}
	for _, k := range r.Unset {
		p[k] = calldef.Undefined
	}
	return p, nil
}

// CallResponse is the JSON envelope a relay answers with.
type CallResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result *Result      `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information. Only a transport that
// did not answer is worth retrying.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	UserID        string `json:"userId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}
