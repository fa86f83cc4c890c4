package workapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// XYZ is a point or extent in model coordinates.
type XYZ struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Document holds the bookkeeping fields shared by all stored documents.
type Document struct {
	Creator  string `json:"creator"`
	Version  string `json:"version"`
	Original bool   `json:"original"`
	Inserted int64  `json:"inserted"`
	Deleted  bool   `json:"deleted"`
	Updated  bool   `json:"updated"`
}

// ModelCalc holds values computed from the model file.
type ModelCalc struct {
	RawCenter XYZ `json:"rawCenter"`
	RawSize   XYZ `json:"rawSize"`
}

// ModelAttr is the attribute part of a model document.
type ModelAttr struct {
	Document
	Calc          ModelCalc      `json:"calc"`
	ModelID       string         `json:"model-id"`
	InstanceID    string         `json:"instance-id"`
	When          int64          `json:"when"`
	Who           string         `json:"who"`
	FaceDirection Direction      `json:"faceDirection"`
	UpDirection   Direction      `json:"upDirection"`
	Extra         map[string]any `json:"extra"`
}

// InstanceAttr is the attribute part of an instance document.
type InstanceAttr struct {
	Document
	Calc        map[string]any `json:"calc"`
	InstanceID  string         `json:"instance-id"`
	ClassID     string         `json:"class-id"`
	Description string         `json:"description"`
	Extra       map[string]any `json:"extra"`
}

// ClassAttr is the attribute part of a class document.
type ClassAttr struct {
	Document
	Calc            map[string]any `json:"calc"`
	ClassID         string         `json:"class-id"`
	Parent          string         `json:"parent"`
	NameJp          string         `json:"nameJp"`
	NameEn          string         `json:"nameEn"`
	StandingPosture map[string]any `json:"standingPosture"`
	Extra           map[string]any `json:"extra"`
	Children        []string       `json:"children"`
	Instances       []string       `json:"instances"`
}

// VariantURLs lists download URLs per mesh variant.
type VariantURLs struct {
	Original   []string `json:"original,omitempty"`
	Common     []string `json:"common,omitempty"`
	Common10k  []string `json:"common10k,omitempty"`
	Common30k  []string `json:"common30k,omitempty"`
	Candidate  []string `json:"candidate,omitempty"`
	Stable     []string `json:"stable,omitempty"`
	Simulation []string `json:"simulation,omitempty"`
	All        []string `json:"all,omitempty"`
}

// ModelURLs are the downloadable files of a model.
type ModelURLs struct {
	Obj       VariantURLs  `json:"obj"`
	ObjZip    *VariantURLs `json:"obj_zip,omitempty"`
	Glb       VariantURLs  `json:"glb"`
	Thumbnail VariantURLs  `json:"thumbnail"`
	Usdz      *VariantURLs `json:"usdz,omitempty"`
	UrdfZip   *VariantURLs `json:"urdf_zip,omitempty"`
}

// ModelDocument is a stored model.
type ModelDocument struct {
	Attr ModelAttr  `json:"attr"`
	URL  *ModelURLs `json:"url,omitempty"`
}

// InstanceDocument is a stored instance.
type InstanceDocument struct {
	Attr InstanceAttr      `json:"attr"`
	URL  map[string]string `json:"url,omitempty"`
}

// ClassDocument is a stored class.
type ClassDocument struct {
	Attr                  ClassAttr           `json:"attr"`
	URL                   map[string]string   `json:"url,omitempty"`
	InstanceModelRelation map[string][]string `json:"instanceModelRelation,omitempty"`
}

// ClassTreeDocument is one node of a class tree.
type ClassTreeDocument struct {
	Attr        ClassAttr         `json:"attr"`
	URL         map[string]string `json:"url"`
	ChildIDList []string          `json:"childIdList"`
}

// FindResponse is the answer of the find operation. Items stay raw because
// their shape depends on the hierarchy queried.
type FindResponse struct {
	TotalCount int                        `json:"total_count"`
	Items      map[string]json.RawMessage `json:"items"`

	// order holds the item ids as the gateway sent them.
	order []string
}

// UnmarshalJSON decodes the response and remembers the order of items.
func (r *FindResponse) UnmarshalJSON(data []byte) error {
	var wire struct {
		TotalCount int             `json:"total_count"`
		Items      json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.TotalCount = wire.TotalCount
	r.Items = nil
	r.order = nil
	raw := bytes.TrimSpace(wire.Items)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if tok != json.Delim('{') {
		return fmt.Errorf("workapi:documents - items: expected object, got %v", tok)
	}
	r.Items = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id := tok.(string)
		var item json.RawMessage
		if err := dec.Decode(&item); err != nil {
			return fmt.Errorf("workapi:documents - item %s: %w", id, err)
		}
		if _, dup := r.Items[id]; !dup {
			r.order = append(r.order, id)
		}
		r.Items[id] = item
	}
	_, err := dec.Token()
	return err
}

// IDs returns the item ids in the order the gateway sent them. A response
// built in code has no such order and its ids come back sorted.
func (r FindResponse) IDs() []string {
	if len(r.order) == len(r.Items) {
		return append([]string(nil), r.order...)
	}
	ids := make([]string, 0, len(r.Items))
	for id := range r.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Models decodes every item as a model document.
func (r FindResponse) Models() (map[string]ModelDocument, error) {
	return decodeItems[ModelDocument](r.Items)
}

// Instances decodes every item as an instance document.
func (r FindResponse) Instances() (map[string]InstanceDocument, error) {
	return decodeItems[InstanceDocument](r.Items)
}

// Classes decodes every item as a class document.
func (r FindResponse) Classes() (map[string]ClassDocument, error) {
	return decodeItems[ClassDocument](r.Items)
}

func decodeItems[T any](items map[string]json.RawMessage) (map[string]T, error) {
	out := make(map[string]T, len(items))
	for id, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("workapi:documents - item %s: %w", id, err)
		}
		out[id] = v
	}
	return out, nil
}

// FoundDocument is a single document of any hierarchy.
type FoundDocument struct {
	ID        string
	Hierarchy Hierarchy
	Raw       json.RawMessage
}

// Model decodes the document as a model.
func (d *FoundDocument) Model() (*ModelDocument, error) {
	return decodeAs[ModelDocument](d, HierarchyModel)
}

// Instance decodes the document as an instance.
func (d *FoundDocument) Instance() (*InstanceDocument, error) {
	return decodeAs[InstanceDocument](d, HierarchyInstance)
}

// Class decodes the document as a class.
func (d *FoundDocument) Class() (*ClassDocument, error) {
	return decodeAs[ClassDocument](d, HierarchyClass)
}

func decodeAs[T any](d *FoundDocument, want Hierarchy) (*T, error) {
	if d == nil {
		return nil, fmt.Errorf("workapi:documents - no document")
	}
	if d.Hierarchy != want {
		return nil, fmt.Errorf("workapi:documents - %s is a %s document, not a %s", d.ID, d.Hierarchy, want)
	}
	var v T
	if err := json.Unmarshal(d.Raw, &v); err != nil {
		return nil, fmt.Errorf("workapi:documents - decode %s: %w", d.ID, err)
	}
	return &v, nil
}

// DBStatus is the free-form status document of the work database.
type DBStatus map[string]any
