package registry

import (
	"fmt"
	"log/slog"

	"github.com/morezero/calldef/pkg/calldef"
)

const describeLogPrefix = "registry:describe"

// Description is the presentation form of one registered operation, used by
// the operation pages, the OpenAPI document and the ops command.
type Description struct {
	Name          string   `json:"name"`
	API           string   `json:"api"`
	Description   string   `json:"description,omitempty"`
	Method        string   `json:"method"`
	OperationPath string   `json:"operationPath"`
	PathParams    []string `json:"pathParams"`
	// QueryParams is nil when the operation sends no query.
	QueryParams []string `json:"queryParams"`
	// BodyParams is nil in complement mode.
	BodyParams                []string `json:"bodyParams"`
	BodyMode                  string   `json:"bodyMode"`
	OmitKeyWhenValueUndefined bool     `json:"omitKeyWhenValueUndefined"`
}

// Route renders the call shape, e.g. "POST update_model_sync/{modelId}".
func (d *Description) Route() string {
	route := fmt.Sprintf("%s %s", d.Method, d.OperationPath)
	for _, p := range d.PathParams {
		route += "/{" + p + "}"
	}
	return route
}

// Describe returns the description of the operation registered under name.
func (r *Registry) Describe(name string) (*Description, error) {
	slog.Debug(fmt.Sprintf("%s - name=%s", describeLogPrefix, name))

	e, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return describeEntry(e), nil
}

// DescribeAll returns descriptions for every operation sorted by name.
func (r *Registry) DescribeAll() []Description {
	entries := r.Entries()
	out := make([]Description, 0, len(entries))
	for i := range entries {
		out = append(out, *describeEntry(&entries[i]))
	}
	return out
}

func describeEntry(e *Entry) *Description {
	d := e.Descriptor
	pathParams := d.PathParams
	if pathParams == nil {
		pathParams = []string{}
	}
	return &Description{
		Name:                      e.Name,
		API:                       e.API,
		Description:               e.Description,
		Method:                    string(d.Method),
		OperationPath:             d.OperationPath,
		PathParams:                pathParams,
		QueryParams:               d.QueryParams.List(),
		BodyParams:                d.BodyParams.List(),
		BodyMode:                  d.BodyMode().String(),
		OmitKeyWhenValueUndefined: d.OmitKeyWhenValueUndefined,
	}
}

// GroupOf reports which group a named parameter lands in for the operation:
// "path", "query", "body", or "" when it would be dropped.
func (d *Description) GroupOf(param string) string {
	for _, p := range d.PathParams {
		if p == param {
			return "path"
		}
	}
	for _, p := range d.QueryParams {
		if p == param {
			return "query"
		}
	}
	if d.BodyMode == calldef.BodyComplement.String() {
		return "body"
	}
	for _, p := range d.BodyParams {
		if p == param {
			return "body"
		}
	}
	return ""
}
