package workapi

import "github.com/morezero/calldef/pkg/calldef"

// Hierarchy is the document level an id or query refers to.
type Hierarchy string

const (
	HierarchyModel    Hierarchy = "model"
	HierarchyInstance Hierarchy = "instance"
	HierarchyClass    Hierarchy = "class"
)

// Direction is a unit vector in spherical coordinates.
type Direction struct {
	Theta float64 `json:"theta"`
	Phi   float64 `json:"phi"`
}

// FindParam queries documents of one hierarchy.
type FindParam struct {
	Hierarchy Hierarchy
	// Version omitted returns the stable version only, "all" returns every
	// version, and ids joined with "_" select several versions.
	Version *string
	// Deleted includes soft-deleted documents.
	Deleted   *bool
	QueryAttr map[string]any
	QueryCalc map[string]any
	Limit     *int
	Skip      *int
}

// Params implements calldef.ParamSource.
func (p FindParam) Params() calldef.Params {
	return calldef.Params{
		"hierarchy": string(p.Hierarchy),
		"version":   calldef.Opt(p.Version),
		"deleted":   calldef.Opt(p.Deleted),
		"queryAttr": calldef.OptMap(p.QueryAttr),
		"queryCalc": calldef.OptMap(p.QueryCalc),
		"limit":     calldef.Opt(p.Limit),
		"skip":      calldef.Opt(p.Skip),
	}
}

// FindClassTreeParam selects the class tree below ClassID.
type FindClassTreeParam struct {
	ClassID         string
	ClassVersion    string
	InstanceVersion string
	ModelVersion    string
}

// Params implements calldef.ParamSource.
func (p FindClassTreeParam) Params() calldef.Params {
	return calldef.Params{
		"classId":          p.ClassID,
		"class_version":    p.ClassVersion,
		"instance_version": p.InstanceVersion,
		"model_version":    p.ModelVersion,
	}
}

// DeleteParam soft-deletes or restores a document.
type DeleteParam struct {
	// ID is a model, instance or class id.
	ID      string
	Restore *bool
}

// Params implements calldef.ParamSource.
func (p DeleteParam) Params() calldef.Params {
	return calldef.Params{
		"id":      p.ID,
		"restore": calldef.Opt(p.Restore),
	}
}

// InsertModelRequestParam starts a model import from S3.
type InsertModelRequestParam struct {
	Version string
	// Bulk treats S3URI as the parent of several model folders.
	Bulk        *bool
	AddInstance *bool
	AddClass    *bool
	Scale       *float64
	ChangeYZ    *bool
	InstanceID  *string
	// When is the measurement time in Unix milliseconds.
	When        *int64
	Who         *string
	S3URI       string
	FileType    string
	GroundTruth *bool
}

// Params implements calldef.ParamSource.
func (p InsertModelRequestParam) Params() calldef.Params {
	return calldef.Params{
		"version":     p.Version,
		"bulk":        calldef.Opt(p.Bulk),
		"addInstance": calldef.Opt(p.AddInstance),
		"addClass":    calldef.Opt(p.AddClass),
		"scale":       calldef.Opt(p.Scale),
		"changeYZ":    calldef.Opt(p.ChangeYZ),
		"instanceId":  calldef.Opt(p.InstanceID),
		"when":        calldef.Opt(p.When),
		"who":         calldef.Opt(p.Who),
		"s3Uri":       p.S3URI,
		"fileType":    p.FileType,
		"groundTruth": calldef.Opt(p.GroundTruth),
	}
}

// InsertModelPollParam polls one or more imports; join ids with "_".
type InsertModelPollParam struct {
	ModelID string
}

// Params implements calldef.ParamSource.
func (p InsertModelPollParam) Params() calldef.Params {
	return calldef.Params{"modelId": p.ModelID}
}

// UpdateModelParam updates a model. Nil fields are left out and keep their
// stored value; keys named in Clear are sent as null and cleared.
type UpdateModelParam struct {
	ModelID       string
	InstanceID    *string
	When          *int64
	Who           *string
	FaceDirection *Direction
	UpDirection   *Direction
	Extra         map[string]any
	Clear         []string
}

// Params implements calldef.ParamSource.
func (p UpdateModelParam) Params() calldef.Params {
	return changes(calldef.Params{
		"modelId":       p.ModelID,
		"instanceId":    calldef.Opt(p.InstanceID),
		"when":          calldef.Opt(p.When),
		"who":           calldef.Opt(p.Who),
		"faceDirection": calldef.Opt(p.FaceDirection),
		"upDirection":   calldef.Opt(p.UpDirection),
		"extra":         calldef.OptMap(p.Extra),
	}, p.Clear)
}

// InsertInstanceParam writes an instance.
type InsertInstanceParam struct {
	Version     string
	ClassID     *string
	Description *string
	Extra       map[string]any
}

// Params implements calldef.ParamSource.
func (p InsertInstanceParam) Params() calldef.Params {
	return calldef.Params{
		"version":     p.Version,
		"classId":     calldef.Opt(p.ClassID),
		"description": calldef.Opt(p.Description),
		"extra":       calldef.OptMap(p.Extra),
	}
}

// UpdateInstanceParam updates an instance. Clear works as in UpdateModelParam.
type UpdateInstanceParam struct {
	InstanceID  string
	Append      *bool
	ClassID     *string
	Description *string
	Extra       map[string]any
	Clear       []string
}

// Params implements calldef.ParamSource.
func (p UpdateInstanceParam) Params() calldef.Params {
	return changes(calldef.Params{
		"instanceId":  p.InstanceID,
		"append":      calldef.Opt(p.Append),
		"classId":     calldef.Opt(p.ClassID),
		"description": calldef.Opt(p.Description),
		"extra":       calldef.OptMap(p.Extra),
	}, p.Clear)
}

// InsertClassParam writes a class.
type InsertClassParam struct {
	Version string
	Parent  *string
	NameJp  string
	NameEn  *string
	Extra   map[string]any
}

// Params implements calldef.ParamSource.
func (p InsertClassParam) Params() calldef.Params {
	return calldef.Params{
		"version": p.Version,
		"parent":  calldef.Opt(p.Parent),
		"nameJp":  p.NameJp,
		"nameEn":  calldef.Opt(p.NameEn),
		"extra":   calldef.OptMap(p.Extra),
	}
}

// UpdateClassParam updates a class. Clear works as in UpdateModelParam.
type UpdateClassParam struct {
	ClassID         string
	Append          *bool
	Parent          *string
	NameJp          *string
	NameEn          *string
	StandingPosture map[string]any
	Extra           map[string]any
	Clear           []string
}

// Params implements calldef.ParamSource.
func (p UpdateClassParam) Params() calldef.Params {
	return changes(calldef.Params{
		"classId":         p.ClassID,
		"append":          calldef.Opt(p.Append),
		"parent":          calldef.Opt(p.Parent),
		"nameJp":          calldef.Opt(p.NameJp),
		"nameEn":          calldef.Opt(p.NameEn),
		"standingPosture": calldef.OptMap(p.StandingPosture),
		"extra":           calldef.OptMap(p.Extra),
	}, p.Clear)
}

// changes drops the fields left unset so the gateway keeps them, then marks
// the keys in cleared as present without a value. Update operations keep such
// keys and send them as null.
func changes(p calldef.Params, cleared []string) calldef.Params {
	for k, v := range p {
		if calldef.IsUndefined(v) {
			delete(p, k)
		}
	}
	for _, k := range cleared {
		p[k] = calldef.Undefined
	}
	return p
}

// InsertClassFamilyParam writes a family of classes.
type InsertClassFamilyParam struct {
	Version    string
	NameFamily map[string]any
}

// Params implements calldef.ParamSource.
func (p InsertClassFamilyParam) Params() calldef.Params {
	return calldef.Params{
		"version":    p.Version,
		"nameFamily": calldef.OptMap(p.NameFamily),
	}
}
