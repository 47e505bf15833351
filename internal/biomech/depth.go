package biomech

import (
	"fmt"
	"math"

	"github.com/kilosayaw/seqsync-sub000/internal/geom"
)

// DepthPolicy corrects raw monocular depth deltas. Raw depth is unreliable
// when the subject is not facing the camera, so the correction is an explicit,
// swappable policy rather than a side effect of classification.
type DepthPolicy interface {
	Name() string
	Adjust(delta float64, faceVisible bool) float64
}

// RawDepth passes deltas through unchanged.
type RawDepth struct{}

func (RawDepth) Name() string { return "raw" }

func (RawDepth) Adjust(delta float64, _ bool) float64 { return delta }

// FacingDepth trusts deltas while the face is visible. Otherwise it scales
// them by Scale and clamps the result to ±Limit.
type FacingDepth struct {
	Scale float64
	Limit float64
}

func (FacingDepth) Name() string { return "facing" }

func (p FacingDepth) Adjust(delta float64, faceVisible bool) float64 {
	if faceVisible {
		return delta
	}
	return geom.Clamp(delta*p.Scale, -p.Limit, p.Limit)
}

// DefaultDepthPolicy halves and clamps to ±0.15 when the face is hidden.
func DefaultDepthPolicy() DepthPolicy {
	return FacingDepth{Scale: 0.5, Limit: 0.15}
}

// DepthPolicyByName resolves a policy from configuration.
func DepthPolicyByName(name string) (DepthPolicy, error) {
	switch name {
	case "", "facing":
		return DefaultDepthPolicy(), nil
	case "raw":
		return RawDepth{}, nil
	}
	return nil, fmt.Errorf("unknown depth policy %q", name)
}

// ZDisplacement estimates forward/back motion per joint between the previous
// and current frame. Joints missing or not visible in either frame are
// skipped.
func ZDisplacement(cur, prev Joints, faceVisible bool, policy DepthPolicy, minScore float64) map[string]float64 {
	out := make(map[string]float64)
	for id := range cur {
		c, ok := cur.Visible(id, minScore)
		if !ok {
			continue
		}
		p, ok := prev.Visible(id, minScore)
		if !ok {
			continue
		}
		d := policy.Adjust(c.Vector.Z-p.Vector.Z, faceVisible)
		if math.IsNaN(d) {
			continue
		}
		out[id] = d
	}
	return out
}
