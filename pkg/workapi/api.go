// Package workapi describes the work API: the stored model, instance and
// class documents, the parameters of each operation and the descriptor
// table that maps them onto gateway calls.
package workapi

import (
	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/registry"
)

// APIType is the gateway API type serving these operations.
const APIType = "work"

// Operation names.
const (
	OpFind              = "find"
	OpFindClassTree     = "findClassTree"
	OpDelete            = "delete"
	OpInsertModel       = "insertModel"
	OpInsertModelPoll   = "insertModelPoll"
	OpUpdateModel       = "updateModel"
	OpInsertInstance    = "insertInstance"
	OpUpdateInstance    = "updateInstance"
	OpInsertClass       = "insertClass"
	OpUpdateClass       = "updateClass"
	OpInsertClassFamily = "insertClassFamily"
)

type operation struct {
	description string
	descriptor  calldef.Descriptor
}

// The update operations keep undefined fields so a gateway can tell "leave
// unchanged" (key absent) from "unset" (key present without a value).
func table() map[string]operation {
	return map[string]operation{
		OpFind: {
			description: "Fetch documents matching a query.",
			descriptor: calldef.Descriptor{
				Method:                    calldef.MethodPost,
				OperationPath:             "find_sync",
				PathParams:                []string{"hierarchy"},
				QueryParams:               calldef.Names("version", "deleted", "limit", "skip"),
				BodyParams:                calldef.Names("queryAttr", "queryCalc"),
				OmitKeyWhenValueUndefined: true,
			},
		},
		OpFindClassTree: {
			description: "Fetch the class tree below a class.",
			descriptor: calldef.Descriptor{
				Method:                    calldef.MethodPost,
				OperationPath:             "findClassTree_sync",
				PathParams:                []string{"classId"},
				QueryParams:               calldef.Names("class_version", "instance_version", "model_version"),
				OmitKeyWhenValueUndefined: true,
			},
		},
		OpDelete: {
			description: "Set or clear the deleted flag of a document.",
			descriptor: calldef.Descriptor{
				Method:                    calldef.MethodGet,
				OperationPath:             "delete_sync",
				PathParams:                []string{"id"},
				QueryParams:               calldef.Names("restore"),
				OmitKeyWhenValueUndefined: true,
			},
		},
		OpInsertModel: {
			description: "Trigger a model import without waiting for it.",
			descriptor: calldef.Descriptor{
				Method:                    calldef.MethodPost,
				OperationPath:             "insertModel_request",
				PathParams:                []string{"version"},
				QueryParams:               calldef.Names("bulk", "addInstance", "addClass", "scale", "changeYZ"),
				BodyParams:                calldef.Names("instanceId", "when", "who", "s3Uri", "fileType", "groundTruth"),
				OmitKeyWhenValueUndefined: true,
			},
		},
		OpInsertModelPoll: {
			description: "Check the progress of a model import.",
			descriptor: calldef.Descriptor{
				Method:                    calldef.MethodGet,
				OperationPath:             "insertModel_poll",
				QueryParams:               calldef.Names("modelId"),
				OmitKeyWhenValueUndefined: true,
			},
		},
		OpUpdateModel: {
			description: "Update a model document.",
			descriptor: calldef.Descriptor{
				Method:        calldef.MethodPost,
				OperationPath: "updateModel_sync",
				PathParams:    []string{"modelId"},
				BodyParams:    calldef.Names("instanceId", "when", "who", "faceDirection", "upDirection", "extra"),
			},
		},
		OpInsertInstance: {
			description: "Write an instance document.",
			descriptor: calldef.Descriptor{
				Method:                    calldef.MethodPost,
				OperationPath:             "insertInstance_sync",
				PathParams:                []string{"version"},
				QueryParams:               calldef.Names(),
				BodyParams:                calldef.Names("classId", "description", "extra"),
				OmitKeyWhenValueUndefined: true,
			},
		},
		OpUpdateInstance: {
			description: "Update an instance document.",
			descriptor: calldef.Descriptor{
				Method:        calldef.MethodPost,
				OperationPath: "updateInstance_sync",
				PathParams:    []string{"instanceId"},
				QueryParams:   calldef.Names("append"),
				BodyParams:    calldef.Names("classId", "description", "extra"),
			},
		},
		OpInsertClass: {
			description: "Write a class document.",
			descriptor: calldef.Descriptor{
				Method:                    calldef.MethodPost,
				OperationPath:             "insertClass_sync",
				PathParams:                []string{"version"},
				BodyParams:                calldef.Names("parent", "nameJp", "nameEn", "extra"),
				OmitKeyWhenValueUndefined: true,
			},
		},
		OpUpdateClass: {
			description: "Update a class document.",
			descriptor: calldef.Descriptor{
				Method:        calldef.MethodPost,
				OperationPath: "updateClass_sync",
				PathParams:    []string{"classId"},
				QueryParams:   calldef.Names("append"),
				BodyParams:    calldef.Names("parent", "nameJp", "nameEn", "standingPosture", "extra"),
			},
		},
		OpInsertClassFamily: {
			description: "Write a family of classes at once.",
			descriptor: calldef.Descriptor{
				Method:                    calldef.MethodPost,
				OperationPath:             "insertClassFamily_sync",
				PathParams:                []string{"version"},
				BodyParams:                calldef.Names("nameFamily"),
				OmitKeyWhenValueUndefined: true,
			},
		},
	}
}

// Descriptor returns a fresh copy of the descriptor of op.
func Descriptor(op string) (*calldef.Descriptor, bool) {
	o, ok := table()[op]
	if !ok {
		return nil, false
	}
	d := o.descriptor
	return &d, true
}

// Entries returns the registry entries of every work operation.
func Entries() []registry.Entry {
	ops := table()
	out := make([]registry.Entry, 0, len(ops))
	for name, o := range ops {
		d := o.descriptor
		out = append(out, registry.Entry{
			Name:        registry.QualifiedName(APIType, name),
			API:         APIType,
			Description: o.description,
			Descriptor:  &d,
		})
	}
	return out
}
