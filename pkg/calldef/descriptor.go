package calldef

import (
	"fmt"
	"strings"
)

// Method is the verb of a remote operation.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// ParseMethod accepts a verb in any case.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return m, nil
	}
	return "", fmt.Errorf("calldef:descriptor - unsupported method %q", s)
}

// BodyMode says how the request payload is chosen.
type BodyMode int

const (
	// BodyAllowList sends only the fields named in BodyParams.
	BodyAllowList BodyMode = iota
	// BodyComplement sends every field not placed in the path or query.
	// A parameter type that grows a field later will see it land in the
	// payload without any descriptor change.
	BodyComplement
)

func (m BodyMode) String() string {
	if m == BodyComplement {
		return "complement"
	}
	return "allow-list"
}

// Descriptor maps a named remote operation onto an HTTP-like call.
// Descriptors are built once and never mutated.
type Descriptor struct {
	Method        Method
	OperationPath string
	// PathParams are appended to OperationPath in this order.
	PathParams  []string
	QueryParams Selector
	// BodyParams left undefined selects BodyComplement.
	BodyParams Selector
	// OmitKeyWhenValueUndefined drops Undefined values from every group.
	// When false they are kept, so the remote can tell "unchanged" from "cleared".
	OmitKeyWhenValueUndefined bool
}

// BodyMode reports whether the payload is an allow-list or the complement.
func (d *Descriptor) BodyMode() BodyMode {
	if d.BodyParams.Defined() {
		return BodyAllowList
	}
	return BodyComplement
}

// Validate checks that the descriptor is usable: a path, a method, and
// pairwise disjoint path, query and body names.
func (d *Descriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("calldef:descriptor - nil descriptor")
	}
	if strings.TrimSpace(d.OperationPath) == "" {
		return fmt.Errorf("calldef:descriptor - operation path is required")
	}
	if _, err := ParseMethod(string(d.Method)); err != nil {
		return err
	}

	owner := make(map[string]string)
	claim := func(group string, names []string) error {
		for _, n := range names {
			if n == "" {
				return fmt.Errorf("calldef:descriptor - %s: empty %s parameter name", d.OperationPath, group)
			}
			if prev, ok := owner[n]; ok {
				if prev == group {
					return fmt.Errorf("calldef:descriptor - %s: duplicate %s parameter %q", d.OperationPath, group, n)
				}
				return fmt.Errorf("calldef:descriptor - %s: parameter %q is both %s and %s", d.OperationPath, n, prev, group)
			}
			owner[n] = group
		}
		return nil
	}
	if err := claim("path", d.PathParams); err != nil {
		return err
	}
	if err := claim("query", d.QueryParams.List()); err != nil {
		return err
	}
	return claim("body", d.BodyParams.List())
}

// pathAndQuery returns the selector used for complement-mode bodies.
func (d *Descriptor) pathAndQuery() Selector {
	names := make([]string, 0, len(d.PathParams)+len(d.QueryParams.names))
	names = append(names, d.PathParams...)
	names = append(names, d.QueryParams.names...)
	return Names(names...)
}

// Query computes the query group of params.
func (d *Descriptor) Query(params Params) *Fields {
	return Select(params, d.QueryParams, d.OmitKeyWhenValueUndefined)
}

// Body computes the payload group of params.
func (d *Descriptor) Body(params Params) *Fields {
	if d.BodyMode() == BodyAllowList {
		return Select(params, d.BodyParams, d.OmitKeyWhenValueUndefined)
	}
	return Complement(params, d.pathAndQuery(), d.OmitKeyWhenValueUndefined)
}

// Path builds the concrete operation path. Every path parameter must be
// present and defined.
func (d *Descriptor) Path(params Params) (string, error) {
	values, err := d.PathValues(params)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(d.OperationPath)
	for _, v := range values {
		b.WriteByte('/')
		b.WriteString(v)
	}
	return b.String(), nil
}

// PathValues returns the canonical string of each path parameter in
// declaration order. Each value is one path segment, so empty values and
// dot segments are rejected.
func (d *Descriptor) PathValues(params Params) ([]string, error) {
	values := make([]string, 0, len(d.PathParams))
	for _, name := range d.PathParams {
		v, ok := params[name]
		if !ok || IsUndefined(v) {
			return nil, &MissingPathParameterError{Operation: d.OperationPath, Param: name}
		}
		s, err := CanonicalString(v)
		if err != nil {
			return nil, &SetupError{Message: fmt.Sprintf("path parameter %q", name), Cause: err}
		}
		if !ValidSegment(s) {
			return nil, &InvalidPathParameterError{Operation: d.OperationPath, Param: name, Value: s}
		}
		values = append(values, s)
	}
	return values, nil
}

// ValidSegment reports whether s can stand as one URL path segment without
// changing the path it is placed in.
func ValidSegment(s string) bool {
	return s != "" && s != "." && s != ".."
}
