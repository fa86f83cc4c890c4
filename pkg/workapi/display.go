package workapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/morezero/calldef/pkg/calldef"
)

// SystemKeys marks the bookkeeping keys hidden from display.
var SystemKeys = map[string]bool{
	"_id":      true,
	"version":  false,
	"original": true,
	"creator":  false,
	"created":  true,
	"inserted": true,
	"deleted":  true,
	"updated":  true,
}

// DefaultHideKeysInCalc are hidden when showing a calc object.
var DefaultHideKeysInCalc = []string{"model-id", "instance-id", "class-id", "s3Key", "sha256"}

// Fields a user may change through the update operations.
var (
	EditableModelFields    = []string{"instance-id", "when", "who", "faceDirection", "upDirection", "extra"}
	EditableInstanceFields = []string{"class-id", "description", "extra"}
	EditableClassFields    = []string{"parent", "nameJp", "nameEn", "extra"}
)

// OmitKeys returns obj without system keys and without hideKeys.
func OmitKeys(obj map[string]any, hideKeys []string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if SystemKeys[k] || contains(hideKeys, k) {
			continue
		}
		out[k] = v
	}
	return out
}

// DisplayString renders a document value for people: lists are joined with
// commas, objects are indented JSON without hidden keys, and scalars are
// printed plainly.
func DisplayString(value any, hideKeys []string) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = DisplayString(item, hideKeys)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		data, err := json.MarshalIndent(OmitKeys(v, hideKeys), "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	case Direction:
		return DisplayString(map[string]any{"theta": v.Theta, "phi": v.Phi}, hideKeys)
	}
	if s, err := calldef.CanonicalString(value); err == nil {
		return s
	}
	return fmt.Sprint(value)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
