// Package calldef describes remote operations declaratively and splits caller
// parameters into the path, query and body groups of a concrete call.
package calldef

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type undefined struct{}

// MarshalJSON encodes the absent marker as null.
func (undefined) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (undefined) String() string {
	return "undefined"
}

// Undefined marks a parameter that is present as a key but has no value.
// It is distinct from nil, which is an explicit null.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined marker.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// Opt returns *p, or Undefined when p is nil.
func Opt[T any](p *T) any {
	if p == nil {
		return Undefined
	}
	return *p
}

// OptMap returns m, or Undefined when m is nil. An empty non-nil map is a
// value and is sent as {}.
func OptMap[K comparable, V any](m map[K]V) any {
	if m == nil {
		return Undefined
	}
	return m
}

// OptSlice returns s, or Undefined when s is nil.
func OptSlice[T any](s []T) any {
	if s == nil {
		return Undefined
	}
	return s
}

// Ptr returns a pointer to v. Handy for optional parameter fields.
func Ptr[T any](v T) *T {
	return &v
}

// CanonicalString renders a path parameter value.
// Strings are used verbatim, numbers and booleans via strconv and
// structured values as compact JSON.
func CanonicalString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case fmt.Stringer:
		if IsUndefined(v) {
			return "", fmt.Errorf("calldef:value - undefined value has no canonical form")
		}
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case json.Number:
		return x.String(), nil
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(x, &s); err == nil {
			return s, nil
		}
		return string(x), nil
	case nil:
		return "null", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("calldef:value - cannot render %T: %w", v, err)
	}
	return string(data), nil
}
