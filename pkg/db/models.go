package db

import (
	"fmt"
	"time"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/registry"
)

// DescriptorRow represents a row in the call_descriptors table.
type DescriptorRow struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	APIType       string   `json:"api_type"`
	Method        string   `json:"method"`
	OperationPath string   `json:"operation_path"`
	PathParams    []string `json:"path_params"`
	// QueryParams is NULL when the operation sends no query.
	QueryParams []string `json:"query_params"`
	// BodyParams is NULL in complement mode.
	BodyParams                []string  `json:"body_params"`
	OmitKeyWhenValueUndefined bool      `json:"omit_key_when_value_undefined"`
	Description               *string   `json:"description,omitempty"`
	Revision                  int       `json:"revision"`
	Created                   time.Time `json:"created"`
	Modified                  time.Time `json:"modified"`
}

// CallRecord represents a row in the call_journal table.
type CallRecord struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Operation  string    `json:"operation"`
	API        string    `json:"api"`
	Stage      string    `json:"stage"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	IsSuccess  bool      `json:"is_success"`
	ErrorCode  *string   `json:"error_code,omitempty"`
	Status     *int      `json:"status,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Created    time.Time `json:"created"`
}

// UpsertDescriptorParams holds parameters for UpsertDescriptor.
type UpsertDescriptorParams struct {
	Name                      string
	APIType                   string
	Method                    string
	OperationPath             string
	PathParams                []string
	QueryParams               []string
	BodyParams                []string
	OmitKeyWhenValueUndefined bool
	Description               *string
}

// ParamsFromEntry converts a registry entry into upsert parameters. Undefined
// selectors become nil slices so they are stored as NULL.
func ParamsFromEntry(e registry.Entry) UpsertDescriptorParams {
	d := e.Descriptor
	p := UpsertDescriptorParams{
		Name:                      e.Name,
		APIType:                   e.API,
		Method:                    string(d.Method),
		OperationPath:             d.OperationPath,
		PathParams:                append([]string{}, d.PathParams...),
		QueryParams:               d.QueryParams.List(),
		BodyParams:                d.BodyParams.List(),
		OmitKeyWhenValueUndefined: d.OmitKeyWhenValueUndefined,
	}
	if p.APIType == "" {
		p.APIType = registry.APIOf(e.Name)
	}
	if e.Description != "" {
		p.Description = calldef.Ptr(e.Description)
	}
	return p
}

// Entry converts a stored row back into a registry entry.
func (r *DescriptorRow) Entry() (registry.Entry, error) {
	method, err := calldef.ParseMethod(r.Method)
	if err != nil {
		return registry.Entry{}, fmt.Errorf("%s - descriptor %q: %w", repoLogPrefix, r.Name, err)
	}
	d := &calldef.Descriptor{
		Method:                    method,
		OperationPath:             r.OperationPath,
		PathParams:                append([]string(nil), r.PathParams...),
		OmitKeyWhenValueUndefined: r.OmitKeyWhenValueUndefined,
	}
	if r.QueryParams != nil {
		d.QueryParams = calldef.Names(r.QueryParams...)
	}
	if r.BodyParams != nil {
		d.BodyParams = calldef.Names(r.BodyParams...)
	}
	e := registry.Entry{Name: r.Name, API: r.APIType, Descriptor: d}
	if r.Description != nil {
		e.Description = *r.Description
	}
	return e, nil
}
