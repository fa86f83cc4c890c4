package calldef

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sort"
)

// Params is the flat parameter object supplied by a call site.
type Params map[string]any

// ParamSource is implemented by typed parameter structs.
type ParamSource interface {
	Params() Params
}

// Params lets a plain Params value be used where a ParamSource is expected.
func (p Params) Params() Params {
	return p
}

// Has reports whether name is present as a key, regardless of its value.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Defined reports whether name is present with a value other than Undefined.
func (p Params) Defined(name string) bool {
	v, ok := p[name]
	return ok && !IsUndefined(v)
}

// field is one key/value pair of a partition result.
type field struct {
	Name  string
	Value any
}

// Fields is a read-only group of parameters. A nil *Fields is NoFields:
// the group is not sent at all, which differs from an empty object.
type Fields struct {
	items []field
}

// NoFields is the sentinel returned when a partition keeps nothing.
var NoFields *Fields

// NewFields builds a group from a mapping; an empty mapping yields NoFields.
func NewFields(m map[string]any) *Fields {
	if len(m) == 0 {
		return NoFields
	}
	items := make([]field, 0, len(m))
	for k, v := range m {
		items = append(items, field{Name: k, Value: v})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return &Fields{items: items}
}

// Len returns the number of fields; NoFields has zero.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.items)
}

// Keys returns the field names in sorted order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	keys := make([]string, len(f.items))
	for i, it := range f.items {
		keys[i] = it.Name
	}
	return keys
}

// Get returns the value stored under name.
func (f *Fields) Get(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	for _, it := range f.items {
		if it.Name == name {
			return it.Value, true
		}
	}
	return nil, false
}

// Map returns the fields as a fresh mapping, or nil for NoFields.
func (f *Fields) Map() map[string]any {
	if f == nil {
		return nil
	}
	m := make(map[string]any, len(f.items))
	for _, it := range f.items {
		m[it.Name] = it.Value
	}
	return m
}

// MarshalJSON encodes the group as an object; NoFields encodes as null.
func (f *Fields) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, it := range f.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(it.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(it.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// URLValues encodes the group as query parameters. Undefined and nil values
// keep their key with an empty value.
func (f *Fields) URLValues() (url.Values, error) {
	if f == nil {
		return nil, nil
	}
	q := make(url.Values, len(f.items))
	for _, it := range f.items {
		if it.Value == nil || IsUndefined(it.Value) {
			q.Set(it.Name, "")
			continue
		}
		s, err := CanonicalString(it.Value)
		if err != nil {
			return nil, err
		}
		q.Set(it.Name, s)
	}
	return q, nil
}

// Selector is a set of parameter names. The zero value is an undefined
// selector, which is not the same as an empty one.
type Selector struct {
	names   []string
	defined bool
}

// Names returns a defined selector over names (possibly empty).
func Names(names ...string) Selector {
	cp := make([]string, len(names))
	copy(cp, names)
	return Selector{names: cp, defined: true}
}

// UndefinedSelector returns a selector with no name set at all.
func UndefinedSelector() Selector {
	return Selector{}
}

// Defined reports whether the selector carries a name set.
func (s Selector) Defined() bool {
	return s.defined
}

// Contains reports whether name is in the selector.
func (s Selector) Contains(name string) bool {
	for _, n := range s.names {
		if n == name {
			return true
		}
	}
	return false
}

// List returns a copy of the selector's names.
func (s Selector) List() []string {
	if !s.defined {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Partition filters obj by sel.
//
// Without inverse only the selected keys are kept and an undefined selector
// keeps nothing. With inverse every key outside the selector is kept and an
// undefined selector keeps everything. When omitUndefined is set, entries
// holding Undefined are dropped in both modes. An empty result is NoFields.
func Partition(obj Params, sel Selector, omitUndefined, inverse bool) *Fields {
	if obj == nil {
		return NoFields
	}
	kept := make(map[string]any)
	for k, v := range obj {
		if omitUndefined && IsUndefined(v) {
			continue
		}
		if inverse {
			if sel.defined && sel.Contains(k) {
				continue
			}
		} else if !sel.defined || !sel.Contains(k) {
			continue
		}
		kept[k] = v
	}
	return NewFields(kept)
}

// Select keeps the named keys of obj.
func Select(obj Params, sel Selector, omitUndefined bool) *Fields {
	return Partition(obj, sel, omitUndefined, false)
}

// Complement keeps every key of obj not named by sel.
func Complement(obj Params, sel Selector, omitUndefined bool) *Fields {
	return Partition(obj, sel, omitUndefined, true)
}
