package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/morezero/calldef/pkg/gateway"
	"github.com/morezero/calldef/pkg/handlingapi"
	"github.com/morezero/calldef/pkg/registry"
	"github.com/morezero/calldef/pkg/workapi"
)

const logPrefix = "catalog:loader"

// EnvFile names the environment variable consulted after explicit paths.
const EnvFile = "CATALOG_FILE"

// LoadCatalog loads a catalog from file paths or environment.
// It tries paths in order: first any paths passed in, then CATALOG_FILE env,
// then defaults. When nothing loads the builtin catalog is returned.
func LoadCatalog(paths ...string) (*Catalog, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/catalog.json", "catalog.json")

	for _, p := range all {
		cat, err := ParseFile(p)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Warn(fmt.Sprintf("%s - Failed to load catalog file %s: %v", logPrefix, p, err))
			}
			continue
		}
		slog.Info(fmt.Sprintf("%s - Loaded catalog %s from %s", logPrefix, cat, p))
		return cat, nil
	}

	slog.Info(fmt.Sprintf("%s - Using builtin catalog", logPrefix))
	return Builtin(), nil
}

// ParseFile reads and decodes one catalog file. A leading ~ is expanded.
// Read errors are returned unwrapped so os.IsNotExist works on them.
func ParseFile(path string) (*Catalog, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("%s - expand %s: %w", logPrefix, path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	return Decode(data, filepath.Ext(expanded))
}

// Decode parses catalog data in the format named by ext.
func Decode(data []byte, ext string) (*Catalog, error) {
	var cat Catalog
	switch strings.ToLower(ext) {
	case ".json", ".jsonc", ".hujson":
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("%s - parse json: %w", logPrefix, err)
		}
		dec := json.NewDecoder(bytes.NewReader(std))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cat); err != nil {
			return nil, fmt.Errorf("%s - decode json: %w", logPrefix, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("%s - decode yaml: %w", logPrefix, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("%s - decode toml: %w", logPrefix, err)
		}
	default:
		return nil, fmt.Errorf("%s - unsupported catalog format %q", logPrefix, ext)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks the version and every descriptor.
func (c *Catalog) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%s - catalog has no name", logPrefix)
	}
	if _, err := masterminds.NewVersion(c.Version); err != nil {
		return fmt.Errorf("%s - catalog %s: invalid version %q: %w", logPrefix, c.Name, c.Version, err)
	}
	_, err := c.Entries()
	return err
}

// CheckVersion reports whether the catalog version satisfies constraint.
// An empty constraint accepts every version.
func (c *Catalog) CheckVersion(constraint string) error {
	if strings.TrimSpace(constraint) == "" {
		return nil
	}
	cons, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("%s - invalid version constraint %q: %w", logPrefix, constraint, err)
	}
	v, err := masterminds.NewVersion(c.Version)
	if err != nil {
		return fmt.Errorf("%s - invalid catalog version %q: %w", logPrefix, c.Version, err)
	}
	if ok, errs := cons.Validate(v); !ok {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("%s - catalog %s does not satisfy %q: %s", logPrefix, c, constraint, strings.Join(msgs, "; "))
	}
	return nil
}

// Entries converts every operation into a registry entry, sorted by name.
func (c *Catalog) Entries() ([]registry.Entry, error) {
	var out []registry.Entry
	for api, ops := range c.Operations {
		for op, spec := range ops {
			name := registry.QualifiedName(api, op)
			d, err := spec.Descriptor()
			if err != nil {
				return nil, fmt.Errorf("%s - operation %s: %w", logPrefix, name, err)
			}
			out = append(out, registry.Entry{Name: name, API: api, Description: spec.Description, Descriptor: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Registry builds the registry of the catalog.
func (c *Catalog) Registry() (*registry.Registry, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	return registry.New(entries...)
}

// Settings returns the gateway settings of the catalog, or the defaults
// when the catalog declares none.
func (c *Catalog) Settings() map[string]gateway.APISetting {
	if len(c.APIs) == 0 {
		return gateway.DefaultSettings()
	}
	return c.APIs
}

// Builtin returns the catalog of the work and handling APIs.
func Builtin() *Catalog {
	cat := &Catalog{
		Name:        "calldef-builtin",
		Version:     "1.0.0",
		Description: "Work and handling API operations",
		APIs:        gateway.DefaultSettings(),
		Operations:  map[string]map[string]DescriptorSpec{},
	}
	for _, e := range append(workapi.Entries(), handlingapi.Entries()...) {
		if cat.Operations[e.API] == nil {
			cat.Operations[e.API] = map[string]DescriptorSpec{}
		}
		op := strings.TrimPrefix(e.Name, e.API+".")
		cat.Operations[e.API][op] = SpecOf(e.Descriptor, e.Description)
	}
	return cat
}

// Merge overlays override onto base. Operations and API settings of
// override replace those of base with the same key; name, version and
// description are taken from override when set.
func Merge(base, override *Catalog) *Catalog {
	merged := &Catalog{
		Name:        base.Name,
		Version:     base.Version,
		Description: base.Description,
		APIs:        make(map[string]gateway.APISetting, len(base.APIs)),
		Operations:  make(map[string]map[string]DescriptorSpec, len(base.Operations)),
	}
	for k, v := range base.APIs {
		merged.APIs[k] = v
	}
	for api, ops := range base.Operations {
		merged.Operations[api] = make(map[string]DescriptorSpec, len(ops))
		for op, spec := range ops {
			merged.Operations[api][op] = spec
		}
	}
	if override == nil {
		return merged
	}

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Description != "" {
		merged.Description = override.Description
	}
	for k, v := range override.APIs {
		merged.APIs[k] = v
	}
	for api, ops := range override.Operations {
		if merged.Operations[api] == nil {
			merged.Operations[api] = make(map[string]DescriptorSpec, len(ops))
		}
		for op, spec := range ops {
			merged.Operations[api][op] = spec
		}
	}
	return merged
}
