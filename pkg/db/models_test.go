package db

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/registry"
)

const modelsTestPrefix = "db:models_test"

func TestParamsFromEntry_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		entry registry.Entry
		want  UpsertDescriptorParams
	}{
		{
			name: "allow-list body with query",
			entry: registry.Entry{
				Name:        "work.find",
				Description: "search documents",
				Descriptor: &calldef.Descriptor{
					Method:                    calldef.MethodPost,
					OperationPath:             "find_sync",
					QueryParams:               calldef.Names("version", "deleted"),
					BodyParams:                calldef.Names("queryAttr"),
					OmitKeyWhenValueUndefined: true,
				},
			},
			want: UpsertDescriptorParams{
				Name:                      "work.find",
				APIType:                   "work",
				Method:                    "POST",
				OperationPath:             "find_sync",
				PathParams:                []string{},
				QueryParams:               []string{"version", "deleted"},
				BodyParams:                []string{"queryAttr"},
				OmitKeyWhenValueUndefined: true,
				Description:               calldef.Ptr("search documents"),
			},
		},
		{
			name: "complement body without query",
			entry: registry.Entry{
				Name: "work.delete",
				API:  "work",
				Descriptor: &calldef.Descriptor{
					Method:        calldef.MethodGet,
					OperationPath: "delete_sync",
					PathParams:    []string{"id"},
				},
			},
			want: UpsertDescriptorParams{
				Name:          "work.delete",
				APIType:       "work",
				Method:        "GET",
				OperationPath: "delete_sync",
				PathParams:    []string{"id"},
			},
		},
		{
			name: "empty allow-list stays defined",
			entry: registry.Entry{
				Name: "work.ping",
				Descriptor: &calldef.Descriptor{
					Method:        calldef.MethodPost,
					OperationPath: "ping",
					QueryParams:   calldef.Names(),
					BodyParams:    calldef.Names(),
				},
			},
			want: UpsertDescriptorParams{
				Name:          "work.ping",
				APIType:       "work",
				Method:        "POST",
				OperationPath: "ping",
				PathParams:    []string{},
				QueryParams:   []string{},
				BodyParams:    []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParamsFromEntry(tt.entry)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("%s - ParamsFromEntry mismatch (-want +got):\n%s", modelsTestPrefix, diff)
			}

			row := DescriptorRow{
				Name:                      got.Name,
				APIType:                   got.APIType,
				Method:                    got.Method,
				OperationPath:             got.OperationPath,
				PathParams:                got.PathParams,
				QueryParams:               got.QueryParams,
				BodyParams:                got.BodyParams,
				OmitKeyWhenValueUndefined: got.OmitKeyWhenValueUndefined,
				Description:               got.Description,
			}
			back, err := row.Entry()
			if err != nil {
				t.Fatalf("%s - Entry: %v", modelsTestPrefix, err)
			}
			in, out := tt.entry.Descriptor, back.Descriptor
			if out.BodyMode() != in.BodyMode() {
				t.Errorf("%s - body mode = %s, want %s", modelsTestPrefix, out.BodyMode(), in.BodyMode())
			}
			if out.QueryParams.Defined() != in.QueryParams.Defined() {
				t.Errorf("%s - query defined = %v, want %v", modelsTestPrefix, out.QueryParams.Defined(), in.QueryParams.Defined())
			}
			if back.Description != tt.entry.Description {
				t.Errorf("%s - description = %q", modelsTestPrefix, back.Description)
			}
		})
	}
}

func TestDescriptorRow_EntryBadMethod(t *testing.T) {
	row := DescriptorRow{Name: "work.bad", Method: "FETCH", OperationPath: "x"}
	if _, err := row.Entry(); err == nil {
		t.Errorf("%s - expected error for unsupported method", modelsTestPrefix)
	}
}

func TestEntriesFromRows(t *testing.T) {
	rows := []DescriptorRow{
		{Name: "a.one", APIType: "a", Method: "POST", OperationPath: "one"},
		{Name: "a.two", APIType: "a", Method: "GET", OperationPath: "two", PathParams: []string{"id"}},
	}
	entries, err := EntriesFromRows(rows)
	if err != nil {
		t.Fatalf("%s - EntriesFromRows: %v", modelsTestPrefix, err)
	}
	reg, err := registry.New(entries...)
	if err != nil {
		t.Fatalf("%s - registry.New: %v", modelsTestPrefix, err)
	}
	if reg.Len() != 2 {
		t.Errorf("%s - registry has %d entries, want 2", modelsTestPrefix, reg.Len())
	}
}
