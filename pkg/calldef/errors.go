package calldef

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed dispatch.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindMissingPathParameter
	KindUnknownOperation
	KindTransportResponse
	KindTransportNoResponse
	KindTransportSetup
	KindInvalidPathParameter
)

var kindNames = map[ErrorKind]string{
	KindNone:                 "None",
	KindMissingPathParameter: "MissingPathParameter",
	KindUnknownOperation:     "UnknownOperation",
	KindTransportResponse:    "TransportResponseError",
	KindTransportNoResponse:  "TransportNoResponseError",
	KindTransportSetup:       "TransportSetupError",
	KindInvalidPathParameter: "InvalidPathParameter",
}

var kindCodes = map[ErrorKind]string{
	KindMissingPathParameter: "MISSING_PATH_PARAMETER",
	KindUnknownOperation:     "UNKNOWN_OPERATION",
	KindTransportResponse:    "ERROR_RESPONSE",
	KindTransportNoResponse:  "NO_RESPONSE",
	KindTransportSetup:       "REQUEST_FAILED",
	KindInvalidPathParameter: "INVALID_PATH_PARAMETER",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Code returns the wire code used in envelopes and relay responses.
func (k ErrorKind) Code() string {
	return kindCodes[k]
}

// Local reports whether the kind is raised before any transport is used.
func (k ErrorKind) Local() bool {
	switch k {
	case KindMissingPathParameter, KindInvalidPathParameter, KindUnknownOperation:
		return true
	}
	return false
}

// MarshalText encodes the kind by name.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind from its name.
func (k *ErrorKind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("calldef:errors - unknown error kind %q", string(b))
}

// MissingPathParameterError reports a declared path parameter absent from the params.
type MissingPathParameterError struct {
	Operation string
	Param     string
}

func (e *MissingPathParameterError) Error() string {
	return fmt.Sprintf("missing path parameter %q for %s", e.Param, e.Operation)
}

// InvalidPathParameterError reports a path parameter whose value cannot be
// sent as a single path segment.
type InvalidPathParameterError struct {
	Operation string
	Param     string
	Value     string
}

func (e *InvalidPathParameterError) Error() string {
	return fmt.Sprintf("invalid path parameter %q=%q for %s", e.Param, e.Value, e.Operation)
}

// UnknownOperationError reports a registry miss.
type UnknownOperationError struct {
	Name string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Name)
}

// ResponseError is a non-success answer from the remote endpoint.
type ResponseError struct {
	Status   int
	Message  string
	Response json.RawMessage
}

func (e *ResponseError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("error response: status=%d %s", e.Status, e.Message)
	}
	return "error response: " + e.Message
}

// NoResponseError means the call was sent but nothing came back.
type NoResponseError struct {
	Message string
	Cause   error
}

func (e *NoResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("no response: %s: %v", e.Message, e.Cause)
	}
	return "no response: " + e.Message
}

func (e *NoResponseError) Unwrap() error {
	return e.Cause
}

// SetupError means the call could not be constructed or sent.
type SetupError struct {
	Message string
	Cause   error
}

func (e *SetupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("request failed: %s: %v", e.Message, e.Cause)
	}
	return "request failed: " + e.Message
}

func (e *SetupError) Unwrap() error {
	return e.Cause
}

// KindOf returns the taxonomy entry for err. Unrecognised errors are
// treated as setup failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var (
		missing  *MissingPathParameterError
		invalid  *InvalidPathParameterError
		unknown  *UnknownOperationError
		response *ResponseError
		noResp   *NoResponseError
	)
	switch {
	case errors.As(err, &missing):
		return KindMissingPathParameter
	case errors.As(err, &invalid):
		return KindInvalidPathParameter
	case errors.As(err, &unknown):
		return KindUnknownOperation
	case errors.As(err, &response):
		return KindTransportResponse
	case errors.As(err, &noResp):
		return KindTransportNoResponse
	}
	return KindTransportSetup
}
