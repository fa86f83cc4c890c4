package workapi

import (
	"strings"

	"github.com/morezero/calldef/pkg/calldef"
)

// FindOneArgs names a single document by id.
type FindOneArgs struct {
	// ID starts with its hierarchy, e.g. "model-0001".
	ID string
}

// HierarchyOf returns the hierarchy encoded in the prefix of id.
func HierarchyOf(id string) Hierarchy {
	prefix, _, _ := strings.Cut(id, "-")
	return Hierarchy(prefix)
}

// FindOne fetches one document of any version, deleted or not, through the
// find operation. The result is nil when nothing matches.
func FindOne() *calldef.CallDef[FindOneArgs, FindParam, FindResponse, *FoundDocument] {
	desc, _ := Descriptor(OpFind)
	return &calldef.CallDef[FindOneArgs, FindParam, FindResponse, *FoundDocument]{
		Operation:  "work.findOne",
		Descriptor: desc,
		ArgsToParams: func(args FindOneArgs) FindParam {
			h := HierarchyOf(args.ID)
			return FindParam{
				Hierarchy: h,
				Version:   calldef.Ptr("all"),
				Deleted:   calldef.Ptr(true),
				QueryAttr: map[string]any{string(h) + "-id": args.ID},
				QueryCalc: map[string]any{},
			}
		},
		ResponseToResult: func(res FindResponse) *FoundDocument {
			ids := res.IDs()
			if len(ids) == 0 {
				return nil
			}
			return &FoundDocument{ID: ids[0], Hierarchy: HierarchyOf(ids[0]), Raw: res.Items[ids[0]]}
		},
	}
}
