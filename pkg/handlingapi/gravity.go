package handlingapi

import "math"

// Range bounds an editable value. A nil bound is open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// InitialGravity seeds a gravity editor: current values plus the bounds
// each field may take.
type InitialGravity struct {
	CenterDefault [3]*float64 `json:"centerDefault"`
	CenterMinMax  [3]Range    `json:"centerMinMax"`
	RadiusDefault *float64    `json:"radiusDefault"`
	RadiusMinMax  Range       `json:"radiusMinMax"`
	WeightDefault *float64    `json:"weightDefault"`
	WeightMinMax  Range       `json:"weightMinMax"`
}

// CalcInitialGravityInfo derives editor defaults from a stored gravity and
// the raw model size. Without a size the centre is unbounded; with one, x
// and y stay within half the bounding-sphere diameter of the largest side
// around zero and z within [0, diameter].
func CalcInitialGravityInfo(gravity *GravityInfo, rawSize *XYZ) InitialGravity {
	zero := 0.0
	info := InitialGravity{
		RadiusMinMax: Range{Min: &zero},
		WeightMinMax: Range{Min: &zero},
	}
	if gravity != nil {
		if c := gravity.Center; c != nil {
			info.CenterDefault = [3]*float64{c.X, c.Y, c.Z}
		}
		info.RadiusDefault = gravity.Radius
		info.WeightDefault = gravity.Weight
	}
	if rawSize != nil {
		maxSize := math.Max(rawSize.X, math.Max(rawSize.Y, rawSize.Z))
		limit := math.Sqrt(3) * maxSize
		lo, hi := -limit/2, limit/2
		info.CenterMinMax[0] = Range{Min: &lo, Max: &hi}
		info.CenterMinMax[1] = Range{Min: &lo, Max: &hi}
		info.CenterMinMax[2] = Range{Min: &zero, Max: &limit}
	}
	return info
}
