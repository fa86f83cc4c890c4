// Package opref parses operation references of the form api.operation[@stage].
package opref

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "opref:opref"

// Ref holds the parsed components of an operation reference.
type Ref struct {
	// API type (e.g., "work")
	API string
	// Operation name within the API (e.g., "findClassTree")
	Operation string
	// Stage if specified (e.g., "dev"); empty means the configured default
	Stage string
	// Full qualified name without the stage (e.g., "work.findClassTree")
	Full string
	// Raw input string
	Raw string
}

var (
	apiNameRegex       = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	operationNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	stageNameRegex     = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

// Parse parses an operation reference.
//
// Supported formats:
//   - work.find            (default stage)
//   - work.find@dev        (explicit stage)
//   - handling.calcStablePoll@master
func Parse(input string) (*Ref, error) {
	raw := strings.TrimSpace(input)

	name, stage, hasStage := strings.Cut(raw, "@")
	if hasStage && stage == "" {
		return nil, fmt.Errorf("%s - empty stage: %s", logPrefix, raw)
	}

	api, op, ok := strings.Cut(name, ".")
	if !ok {
		return nil, fmt.Errorf("%s - invalid operation format, missing api: %s", logPrefix, raw)
	}
	if !ValidateAPIName(api) {
		return nil, fmt.Errorf("%s - invalid api name %q in %s", logPrefix, api, raw)
	}
	if !ValidateOperationName(op) {
		return nil, fmt.Errorf("%s - invalid operation name %q in %s", logPrefix, op, raw)
	}
	if hasStage && !stageNameRegex.MatchString(stage) {
		return nil, fmt.Errorf("%s - invalid stage %q in %s", logPrefix, stage, raw)
	}

	return &Ref{
		API:       api,
		Operation: op,
		Stage:     stage,
		Full:      name,
		Raw:       raw,
	}, nil
}

// WithDefaultStage returns a copy of r whose empty stage is replaced by stage.
func (r Ref) WithDefaultStage(stage string) Ref {
	if r.Stage == "" {
		r.Stage = stage
	}
	return r
}

// String renders the reference back to api.operation[@stage].
func (r Ref) String() string {
	return Build(r.API, r.Operation, r.Stage)
}

// Build builds a reference string from parts.
func Build(api, operation, stage string) string {
	base := api + "." + operation
	if stage != "" {
		return base + "@" + stage
	}
	return base
}

// ValidateOperationName validates an operation name (letters, digits, underscores).
func ValidateOperationName(name string) bool {
	return operationNameRegex.MatchString(name)
}

// ValidateAPIName validates an api type name (lowercase, alphanumeric, hyphens).
func ValidateAPIName(api string) bool {
	return apiNameRegex.MatchString(api)
}
