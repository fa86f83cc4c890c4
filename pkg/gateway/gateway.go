// Package gateway maps API types and deployment stages onto gateway
// endpoints.
package gateway

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Stage names understood by NameWithStage.
const (
	StageMaster = "master"
	StageDev    = "dev"
	StageTest   = "test"
)

const (
	DefaultDomain = "robocip.net"
	DefaultRegion = "ap-northeast-1"
)

// APISetting groups the gateways that serve one API type.
type APISetting struct {
	APINames   []string `json:"apiNames" yaml:"apiNames" toml:"apiNames"`
	StageNames []string `json:"stageNames" yaml:"stageNames" toml:"stageNames"`
	Type       string   `json:"type" yaml:"type" toml:"type"`
}

// DefaultSettings returns the stock API settings keyed by setting name.
func DefaultSettings() map[string]APISetting {
	all := []string{StageMaster, StageDev, StageTest}
	return map[string]APISetting{
		"work":     {APINames: []string{"pj1db-api-work"}, StageNames: all, Type: "work"},
		"handling": {APINames: []string{"pj1db-api-handling"}, StageNames: all, Type: "handling"},
		"general":  {APINames: []string{"pj1db-api-general"}, StageNames: all, Type: "general"},
		"free": {
			APINames:   []string{"pj1db-api-osaka1", "pj1db-api-tsukuba1", "pj1db-api-aist1"},
			StageNames: all,
			Type:       "free",
		},
		"template": {APINames: []string{"pj1db-api-template"}, StageNames: []string{StageMaster}, Type: "free"},
	}
}

// NameWithStage returns the display name of api deployed at stage. The
// master stage and unknown stages use the bare name.
func NameWithStage(api, stage string) string {
	switch stage {
	case StageDev, StageTest:
		return api + "-" + stage
	default:
		return api
	}
}

// Endpoint is one deployed gateway.
type Endpoint struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Region string `json:"region"`
	URL    string `json:"url"`
}

// Options controls endpoint URL construction.
type Options struct {
	Domain string
	Region string
	// BaseURL replaces the https://<api>.<domain>/<stage>/ scheme, for
	// local gateways and tests. The API name and stage are still appended.
	BaseURL string
}

// Table holds the endpoints built from a set of API settings.
type Table struct {
	endpoints map[string]Endpoint
	// byType keeps API names per type in declaration order.
	byType map[string][]string
}

// BuildEndpoints expands every API name and stage of settings into an
// endpoint keyed by its display name.
func BuildEndpoints(settings map[string]APISetting, opts Options) (*Table, error) {
	if opts.Domain == "" {
		opts.Domain = DefaultDomain
	}
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}

	t := &Table{endpoints: map[string]Endpoint{}, byType: map[string][]string{}}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		s := settings[key]
		if s.Type == "" {
			return nil, fmt.Errorf("gateway:gateway - setting %q has no type", key)
		}
		for _, api := range s.APINames {
			if api == "" {
				return nil, fmt.Errorf("gateway:gateway - setting %q has an empty api name", key)
			}
			t.byType[s.Type] = appendUnique(t.byType[s.Type], api)
			for _, stage := range s.StageNames {
				name := api
				if stage != StageMaster {
					name = api + "-" + stage
				}
				u, err := endpointURL(api, stage, opts)
				if err != nil {
					return nil, err
				}
				t.endpoints[name] = Endpoint{Name: name, Type: s.Type, Region: opts.Region, URL: u}
			}
		}
	}
	return t, nil
}

func endpointURL(api, stage string, opts Options) (string, error) {
	if opts.BaseURL == "" {
		return fmt.Sprintf("https://%s.%s/%s/", api, opts.Domain, stage), nil
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("gateway:gateway - invalid base url %q: %w", opts.BaseURL, err)
	}
	return base.JoinPath(api, stage).String() + "/", nil
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// Endpoint returns the endpoint registered under a display name.
func (t *Table) Endpoint(name string) (Endpoint, bool) {
	if t == nil {
		return Endpoint{}, false
	}
	e, ok := t.endpoints[name]
	return e, ok
}

// Resolve returns the display name of the first API of apiType at stage.
func (t *Table) Resolve(apiType, stage string) (string, error) {
	if t == nil {
		return "", fmt.Errorf("gateway:gateway - no endpoint table")
	}
	apis := t.byType[apiType]
	if len(apis) == 0 {
		return "", fmt.Errorf("gateway:gateway - no api of type %q", apiType)
	}
	name := NameWithStage(apis[0], stage)
	if _, ok := t.endpoints[name]; !ok {
		return "", fmt.Errorf("gateway:gateway - api %q is not deployed at stage %q", apis[0], stage)
	}
	return name, nil
}

// Names returns all display names, sorted.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.endpoints))
	for n := range t.endpoints {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Types returns the API types in the table, sorted.
func (t *Table) Types() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.byType))
	for k := range t.byType {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String lists the table one endpoint per line.
func (t *Table) String() string {
	var b strings.Builder
	for _, n := range t.Names() {
		e := t.endpoints[n]
		fmt.Fprintf(&b, "%s\t%s\t%s\n", n, e.Type, e.URL)
	}
	return b.String()
}
