// Package catalog loads operation descriptor catalogs: named, versioned
// collections of gateway settings and call descriptors, written as JSON
// (comments allowed), YAML or TOML.
package catalog

import (
	"fmt"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/gateway"
)

// DescriptorSpec is the file form of a call descriptor.
type DescriptorSpec struct {
	Method string `json:"method" yaml:"method" toml:"method"`
	// Name is the operation path segment, e.g. "find_sync".
	Name  string   `json:"name" yaml:"name" toml:"name"`
	Path  []string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	Query []string `json:"query,omitempty" yaml:"query,omitempty" toml:"query,omitempty"`
	// Body absent or null sends every parameter not placed in the path or
	// query; a list, even an empty one, sends only the listed names.
	Body *[]string `json:"body,omitempty" yaml:"body,omitempty" toml:"body,omitempty"`
	// OmitKeyWhenValueUndefined defaults to true.
	OmitKeyWhenValueUndefined *bool  `json:"omitKeyWhenValueUndefined,omitempty" yaml:"omitKeyWhenValueUndefined,omitempty" toml:"omitKeyWhenValueUndefined,omitempty"`
	Description               string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// Catalog is the root of a catalog file.
type Catalog struct {
	Name        string                        `json:"name" yaml:"name" toml:"name"`
	Version     string                        `json:"version" yaml:"version" toml:"version"`
	Description string                        `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	APIs        map[string]gateway.APISetting `json:"apis,omitempty" yaml:"apis,omitempty" toml:"apis,omitempty"`
	// Operations is keyed by API type, then operation name.
	Operations map[string]map[string]DescriptorSpec `json:"operations" yaml:"operations" toml:"operations"`
}

// Descriptor converts the spec into a validated call descriptor.
func (s DescriptorSpec) Descriptor() (*calldef.Descriptor, error) {
	method, err := calldef.ParseMethod(s.Method)
	if err != nil {
		return nil, err
	}
	d := &calldef.Descriptor{
		Method:                    method,
		OperationPath:             s.Name,
		PathParams:                append([]string(nil), s.Path...),
		OmitKeyWhenValueUndefined: true,
	}
	if s.Query != nil {
		d.QueryParams = calldef.Names(s.Query...)
	}
	if s.Body != nil {
		d.BodyParams = calldef.Names(*s.Body...)
	}
	if s.OmitKeyWhenValueUndefined != nil {
		d.OmitKeyWhenValueUndefined = *s.OmitKeyWhenValueUndefined
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// SpecOf converts a descriptor back into its file form.
func SpecOf(d *calldef.Descriptor, description string) DescriptorSpec {
	s := DescriptorSpec{
		Method:                    string(d.Method),
		Name:                      d.OperationPath,
		Path:                      append([]string(nil), d.PathParams...),
		OmitKeyWhenValueUndefined: calldef.Ptr(d.OmitKeyWhenValueUndefined),
		Description:               description,
	}
	if len(s.Path) == 0 {
		s.Path = nil
	}
	if d.QueryParams.Defined() {
		s.Query = d.QueryParams.List()
	}
	if d.BodyParams.Defined() {
		body := d.BodyParams.List()
		if body == nil {
			body = []string{}
		}
		s.Body = &body
	}
	return s
}

func (c *Catalog) String() string {
	return fmt.Sprintf("%s@%s", c.Name, c.Version)
}
