package handlingapi

import "github.com/morezero/calldef/pkg/calldef"

// RegionState is the calculation state of candidate or stable regions.
type RegionState string

const (
	RegionNotCalculated      RegionState = "notcalculated"
	RegionCalculating        RegionState = "calculating"
	RegionCalculated         RegionState = "calculated"
	RegionRecalculating      RegionState = "recalculating"
	RegionNotCalculatedError RegionState = "notcalculatedError"
	RegionCalculatedError    RegionState = "calculatedError"
)

// AttrStatus reports whether an attribute has been set.
type AttrStatus string

const (
	AttrSet    AttrStatus = "set"
	AttrNotSet AttrStatus = "notset"
)

// CalcStatus is the state of a queued calculation.
type CalcStatus string

const (
	CalcNotCalc     CalcStatus = "not_calc"
	CalcQueued      CalcStatus = "queued_calc"
	CalcCalculating CalcStatus = "calculating"
	CalcCalculated  CalcStatus = "calculated"
	CalcError       CalcStatus = "error"
)

// UrdfStatus reports whether an URDF archive exists.
type UrdfStatus string

const (
	UrdfCreated    UrdfStatus = "created"
	UrdfNotCreated UrdfStatus = "notcreated"
)

// XYZ is a point or extent in model coordinates.
type XYZ struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PartialXYZ is an XYZ whose components may be unknown.
type PartialXYZ struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	Z *float64 `json:"z,omitempty"`
}

// Direction is a unit vector in spherical coordinates.
type Direction struct {
	Theta float64 `json:"theta"`
	Phi   float64 `json:"phi"`
}

// GravityInfo describes the centre of gravity of a model.
type GravityInfo struct {
	Center            *PartialXYZ `json:"center,omitempty"`
	Radius            *float64    `json:"radius,omitempty"`
	Weight            *float64    `json:"weight,omitempty"`
	StandingDirection Direction   `json:"standingDirection"`
}

// GravityWithThumbnail pairs a stable pose with its thumbnail.
type GravityWithThumbnail struct {
	Thumbnail string      `json:"thumbnail"`
	Gravity   GravityInfo `json:"gravity"`
}

// ModelStatus collects the calculation states of a model.
type ModelStatus struct {
	Gravity  AttrStatus  `json:"gravity"`
	Friction AttrStatus  `json:"friction"`
	Region   RegionState `json:"region"`
	Grasp2p  RegionState `json:"grasp2p"`
	UrdfZip  UrdfStatus  `json:"urdf_zip"`
}

// FrictionRegion is one surface region and its friction, if known.
type FrictionRegion struct {
	ID        string   `json:"id"`
	MeshCount int      `json:"meshCount"`
	Friction  *float64 `json:"friction,omitempty"`
}

// Grasp2pPosition places a two-finger grasp.
type Grasp2pPosition struct {
	Center      []float64 `json:"center"`
	Orientation []float64 `json:"orientation"`
	Radius      float64   `json:"radius"`
	Arc         float64   `json:"arc"`
}

// Grasp2p is one two-finger grasp candidate.
type Grasp2p struct {
	ID       string          `json:"id"`
	Position Grasp2pPosition `json:"position"`
	Force    float64         `json:"force"`
	Radius   float64         `json:"radius"`
}

// ModelMeta holds the computed size of the common model.
type ModelMeta struct {
	CommonModel struct {
		Size   XYZ `json:"size"`
		Center XYZ `json:"center"`
	} `json:"commonModel"`
}

// FindInstancesResponse maps instance ids to their thumbnails.
type FindInstancesResponse map[string]struct {
	ThumbnailList []string `json:"thumbnail_list"`
}

// FindModelResponse is the handling view of one model.
type FindModelResponse struct {
	ModelID               string                 `json:"modelId"`
	MetaInfo              ModelMeta              `json:"metaInfo"`
	Status                ModelStatus            `json:"status"`
	GravityWithDirections []GravityWithThumbnail `json:"gravityWithDirections"`
	RegionList            []FrictionRegion       `json:"regionList"`
	Grasp2pList           []Grasp2p              `json:"grasp2pList"`
	Weight                float64                `json:"weight"`
	URL                   struct {
		Glb struct {
			Original  []string `json:"original"`
			Common10k []string `json:"common10k"`
			Candidate []string `json:"candidate,omitempty"`
			Stable    []string `json:"stable,omitempty"`
		} `json:"glb"`
		UrdfZip *struct {
			Common10k []string `json:"common10k"`
		} `json:"urdf_zip,omitempty"`
	} `json:"url"`
}

// CalcStablePollResponse reports a stable-pose calculation.
type CalcStablePollResponse struct {
	Result string `json:"result"`
}

// CalcBulkCandidateResponse counts the queued instances.
type CalcBulkCandidateResponse struct {
	Count int `json:"count"`
}

// CalcBulkCandidatePollResponse counts the instances still running.
type CalcBulkCandidatePollResponse struct {
	CountInProgress int `json:"count_in_progress"`
}

// CalcIndivCandidateResponse counts the queued models.
type CalcIndivCandidateResponse struct {
	Count int `json:"count"`
}

// CalcIndivCandidatePollResponse reports a single candidate calculation.
type CalcIndivCandidatePollResponse struct {
	Region RegionState `json:"region"`
	Calc   CalcStatus  `json:"calc"`
}

// WriteResponse answers writeFriction and writeGravity.
type WriteResponse struct {
	QueueCalcStable string `json:"queueCalcStable"`
}

// AttrFlag selects models by attribute status.
type AttrFlag struct {
	NotSet bool `json:"notset"`
	Set    bool `json:"set"`
}

// CalcFlag selects models by region state.
type CalcFlag struct {
	NotCalculated      bool `json:"notcalculated"`
	Calculating        bool `json:"calculating"`
	Calculated         bool `json:"calculated"`
	Recalculating      bool `json:"recalculating"`
	NotCalculatedError bool `json:"notcalculatedError"`
	CalculatedError    bool `json:"calculatedError"`
}

// SearchCondition filters instances by handling state.
type SearchCondition struct {
	CandidateRegionFlag CalcFlag `json:"candidate_region_flag"`
	StableRegionFlag    CalcFlag `json:"stable_region_flag"`
	FrictionInfoFlag    AttrFlag `json:"friction_info_flag"`
	GravityInfoFlag     AttrFlag `json:"gravity_info_flag"`
}

// FindInstancesParam searches instances.
type FindInstancesParam struct {
	Version                 *string
	Deleted                 bool
	QueryAttr               *string
	QueryCalc               *string
	HandlingSearchCondition SearchCondition
}

// Params implements calldef.ParamSource.
func (p FindInstancesParam) Params() calldef.Params {
	return calldef.Params{
		"version":                 calldef.Opt(p.Version),
		"deleted":                 p.Deleted,
		"queryAttr":               calldef.Opt(p.QueryAttr),
		"queryCalc":               calldef.Opt(p.QueryCalc),
		"handlingSearchCondition": p.HandlingSearchCondition,
	}
}

// FindModelParam selects the models of an instance.
type FindModelParam struct {
	InstanceID string
}

// Params implements calldef.ParamSource.
func (p FindModelParam) Params() calldef.Params {
	return calldef.Params{"instanceId": p.InstanceID}
}

// ModelParam names a single model. It is the parameter of calcStablePoll,
// calcIndivCandidate and calcIndivCandidatePoll.
type ModelParam struct {
	ModelID string
}

// Params implements calldef.ParamSource.
func (p ModelParam) Params() calldef.Params {
	return calldef.Params{"modelId": p.ModelID}
}

// InstancesParam names several instances. It is the parameter of
// calcBulkCandidate and calcBulkCandidatePoll.
type InstancesParam struct {
	InstanceIDs []string
}

// Params implements calldef.ParamSource.
func (p InstancesParam) Params() calldef.Params {
	return calldef.Params{"instanceIds": calldef.OptSlice(p.InstanceIDs)}
}

// WriteFrictionParam stores per-region friction. A nil value clears a region.
type WriteFrictionParam struct {
	ModelID  string
	Friction map[string]*float64
	Creator  string
}

// Params implements calldef.ParamSource.
func (p WriteFrictionParam) Params() calldef.Params {
	return calldef.Params{
		"modelId":  p.ModelID,
		"friction": calldef.OptMap(p.Friction),
		"creator":  p.Creator,
	}
}

// WriteGravityParam stores the centre of gravity.
type WriteGravityParam struct {
	ModelID string
	Gravity GravityInfo
	Creator string
}

// Params implements calldef.ParamSource.
func (p WriteGravityParam) Params() calldef.Params {
	return calldef.Params{
		"modelId": p.ModelID,
		"gravity": p.Gravity,
		"creator": p.Creator,
	}
}
