// Package registry holds the Call Descriptor Registry: an immutable mapping
// from operation name to the descriptor that turns it into a concrete call.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/morezero/calldef/pkg/calldef"
)

const logPrefix = "registry:registry"

// Entry is one registered operation.
type Entry struct {
	// Name is the qualified operation name, e.g. "work.updateModel".
	Name string
	// API is the API type the operation belongs to, e.g. "work".
	API         string
	Description string
	Descriptor  *calldef.Descriptor
}

// Registry maps operation names to entries. It is built once by New and
// never mutated afterwards, so it is safe for concurrent lookups.
type Registry struct {
	entries map[string]*Entry
	names   []string
}

// New validates every entry and builds the registry.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]*Entry, len(entries))}
	for i := range entries {
		e := entries[i]
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("%s - entry %d has no name", logPrefix, i)
		}
		if _, dup := r.entries[e.Name]; dup {
			return nil, fmt.Errorf("%s - duplicate operation %q", logPrefix, e.Name)
		}
		if e.Descriptor == nil {
			return nil, fmt.Errorf("%s - operation %q has no descriptor", logPrefix, e.Name)
		}
		if err := e.Descriptor.Validate(); err != nil {
			return nil, fmt.Errorf("%s - operation %q: %w", logPrefix, e.Name, err)
		}
		if e.API == "" {
			e.API = APIOf(e.Name)
		}
		desc := *e.Descriptor
		desc.PathParams = append([]string(nil), e.Descriptor.PathParams...)
		e.Descriptor = &desc
		r.entries[e.Name] = &e
		r.names = append(r.names, e.Name)
	}
	sort.Strings(r.names)
	slog.Debug(fmt.Sprintf("%s - registered %d operations", logPrefix, len(r.names)))
	return r, nil
}

func (e *Entry) clone() Entry {
	cp := *e
	desc := *e.Descriptor
	desc.PathParams = append([]string(nil), e.Descriptor.PathParams...)
	cp.Descriptor = &desc
	return cp
}

// MustNew is New for static tables known to be valid.
func MustNew(entries ...Entry) *Registry {
	r, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (*Entry, error) {
	if r != nil {
		if e, ok := r.entries[name]; ok {
			cp := e.clone()
			return &cp, nil
		}
	}
	return nil, &calldef.UnknownOperationError{Name: name}
}

// Descriptor returns the descriptor registered under name.
func (r *Registry) Descriptor(name string) (*calldef.Descriptor, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return e.Descriptor, nil
}

// Names returns every operation name in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.names...)
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Entries returns copies of all entries sorted by name.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.entries[n].clone())
	}
	return out
}

// ByAPI returns the entries of one API type sorted by name.
func (r *Registry) ByAPI(api string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.API == api {
			out = append(out, e)
		}
	}
	return out
}

// APIs returns the distinct API types in sorted order.
func (r *Registry) APIs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.Entries() {
		if !seen[e.API] {
			seen[e.API] = true
			out = append(out, e.API)
		}
	}
	sort.Strings(out)
	return out
}

// QualifiedName joins an API type and an operation name.
func QualifiedName(api, operation string) string {
	return api + "." + operation
}

// APIOf returns the API part of a qualified name ("" when unqualified).
func APIOf(name string) string {
	if i := strings.Index(name, "."); i > 0 {
		return name[:i]
	}
	return ""
}
