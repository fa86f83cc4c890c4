// Package handlingapi describes the handling API, which computes grasp and
// stability data for work models. Every operation is a POST whose body is
// the whole parameter object.
package handlingapi

import (
	"sort"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/registry"
)

// APIType is the gateway API type serving these operations.
const APIType = "handling"

// Operation names.
const (
	OpFindInstances          = "findInstances"
	OpFindModels             = "findModels"
	OpCalcStablePoll         = "calcStablePoll"
	OpCalcBulkCandidatePoll  = "calcBulkCandidatePoll"
	OpCalcBulkCandidate      = "calcBulkCandidate"
	OpCalcIndivCandidate     = "calcIndivCandidate"
	OpWriteFriction          = "writeFriction"
	OpWriteGravity           = "writeGravity"
	OpCalcIndivCandidatePoll = "calcIndivCandidatePoll"
)

var operationPaths = map[string]string{
	OpFindInstances:          "findInstances_sync",
	OpFindModels:             "findModels_sync",
	OpCalcStablePoll:         "calcStable_poll",
	OpCalcBulkCandidatePoll:  "calcBulkCandidate_poll",
	OpCalcBulkCandidate:      "calcBulkCandidate_request",
	OpCalcIndivCandidate:     "calcIndivCandidate_request",
	OpWriteFriction:          "writeFriction_sync",
	OpWriteGravity:           "writeGravity_sync",
	OpCalcIndivCandidatePoll: "calcIndivCandidate_poll",
}

// Descriptor returns the descriptor of op.
func Descriptor(op string) (*calldef.Descriptor, bool) {
	path, ok := operationPaths[op]
	if !ok {
		return nil, false
	}
	return &calldef.Descriptor{
		Method:                    calldef.MethodPost,
		OperationPath:             path,
		OmitKeyWhenValueUndefined: true,
	}, true
}

// Operations returns the operation names in sorted order.
func Operations() []string {
	out := make([]string, 0, len(operationPaths))
	for op := range operationPaths {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Entries returns the registry entries of every handling operation.
func Entries() []registry.Entry {
	out := make([]registry.Entry, 0, len(operationPaths))
	for _, op := range Operations() {
		d, _ := Descriptor(op)
		out = append(out, registry.Entry{
			Name:        registry.QualifiedName(APIType, op),
			API:         APIType,
			Description: "Body carries every parameter.",
			Descriptor:  d,
		})
	}
	return out
}
