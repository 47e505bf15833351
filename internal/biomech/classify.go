// Package biomech turns raw 3-D joint positions into discrete orientation
// labels and the continuous knee safe zone.
//
// All functions are defensive on degenerate numeric input: zero-length
// vectors, NaN coordinates and missing joints resolve to NEU (or are
// skipped) so that one noisy pose-estimation frame cannot crash playback.
//
// The angular thresholds below are empirically tuned reference values kept
// for compatibility with existing recordings, not physically derived.
package biomech

import (
	"math"

	"github.com/kilosayaw/seqsync-sub000/internal/geom"
)

// Orientation is a discrete joint label.
type Orientation string

const (
	None    Orientation = ""
	In      Orientation = "IN"
	Out     Orientation = "OUT"
	Neutral Orientation = "NEU"
	Flex    Orientation = "FLEX"
	Ext     Orientation = "EXT"
)

// Valid reports whether o is one of the known labels (or unset).
func (o Orientation) Valid() bool {
	switch o {
	case None, In, Out, Neutral, Flex, Ext:
		return true
	}
	return false
}

const (
	// FlexMaxAngle: chain angles below this are FLEX.
	FlexMaxAngle = 140.0

	// ExtMinAngle: chain angles above this are EXT.
	ExtMinAngle = 165.0

	// RotationThreshold is the 2-D cross product magnitude separating IN/OUT
	// from NEU.
	RotationThreshold = 0.05

	// MinScore is the visibility threshold below which the classifier treats
	// a joint as absent.
	MinScore = 0.3
)

// Joint ids understood by the classifier.
const (
	LeftShoulder  = "LS"
	RightShoulder = "RS"
	LeftElbow     = "LE"
	RightElbow    = "RE"
	LeftWrist     = "LW"
	RightWrist    = "RW"
	LeftHip       = "LH"
	RightHip      = "RH"
	LeftKnee      = "LK"
	RightKnee     = "RK"
	LeftAnkle     = "LA"
	RightAnkle    = "RA"
	LeftFoot      = "LF"
	RightFoot     = "RF"
	Nose          = "NOSE"
)

// IsFoot reports whether id names a foot joint, the only joints that carry
// grounding notation and a pivot point.
func IsFoot(id string) bool { return id == LeftFoot || id == RightFoot }

// Angle returns the angle in degrees at mid formed by proximal and distal.
// ok is false when either limb vector has zero length or is not finite.
func Angle(proximal, mid, distal geom.Vec3) (deg float64, ok bool) {
	a := proximal.Sub(mid)
	b := distal.Sub(mid)
	la, lb := a.Len(), b.Len()
	if la == 0 || lb == 0 || math.IsNaN(la) || math.IsNaN(lb) || math.IsInf(la, 0) || math.IsInf(lb, 0) {
		return 0, false
	}
	cos := geom.Clamp(a.Dot(b)/(la*lb), -1, 1)
	return geom.Deg(math.Acos(cos)), true
}

// Flexion labels a three-joint chain FLEX, EXT or NEU.
func Flexion(proximal, mid, distal geom.Vec3) Orientation {
	deg, ok := Angle(proximal, mid, distal)
	if !ok {
		return Neutral
	}
	switch {
	case deg < FlexMaxAngle:
		return Flex
	case deg > ExtMinAngle:
		return Ext
	default:
		return Neutral
	}
}

// ShoulderRotation labels internal/external rotation from the 2-D cross
// product of (wrist - shoulder) and (elbow - shoulder). Depth is ignored.
func ShoulderRotation(shoulder, elbow, wrist geom.Vec3) Orientation {
	cross := wrist.Sub(shoulder).XY().Cross(elbow.Sub(shoulder).XY())
	switch {
	case math.IsNaN(cross):
		return Neutral
	case cross > RotationThreshold:
		return In
	case cross < -RotationThreshold:
		return Out
	default:
		return Neutral
	}
}

// Keypoint is one estimated joint position with its confidence.
type Keypoint struct {
	Vector geom.Vec3
	Score  float64
}

// Joints maps joint ids to keypoints.
type Joints map[string]Keypoint

// Visible returns the keypoint for id when its score clears min.
func (j Joints) Visible(id string, min float64) (Keypoint, bool) {
	kp, ok := j[id]
	if !ok || kp.Score < min || !kp.Vector.IsFinite() {
		return Keypoint{}, false
	}
	return kp, true
}

// Frame is the classifier input for one beat.
type Frame struct {
	Joints      Joints
	Previous    Joints // optional, enables depth estimation
	FaceVisible bool
}

// Analysis is the classifier output for one beat.
type Analysis struct {
	Orientations map[string]Orientation
	Depth        map[string]float64
}

// Classifier holds the tunable parts of classification.
type Classifier struct {
	MinScore float64
	Depth    DepthPolicy
}

// DefaultClassifier uses MinScore and the FacingDepth policy.
func DefaultClassifier() Classifier {
	return Classifier{MinScore: MinScore, Depth: DefaultDepthPolicy()}
}

type chain struct {
	label                 string
	proximal, mid, distal string
	rotation              bool
}

// Chains evaluated per frame. The label is the joint receiving the result.
var chains = []chain{
	{LeftElbow, LeftShoulder, LeftElbow, LeftWrist, false},
	{RightElbow, RightShoulder, RightElbow, RightWrist, false},
	{LeftKnee, LeftHip, LeftKnee, LeftAnkle, false},
	{RightKnee, RightHip, RightKnee, RightAnkle, false},
	{LeftHip, LeftShoulder, LeftHip, LeftKnee, false},
	{RightHip, RightShoulder, RightHip, RightKnee, false},
	{LeftShoulder, LeftShoulder, LeftElbow, LeftWrist, true},
	{RightShoulder, RightShoulder, RightElbow, RightWrist, true},
}

// Classify labels every chain whose three joints are visible and estimates
// depth displacement for joints visible in both frames.
func (c Classifier) Classify(f Frame) Analysis {
	out := Analysis{
		Orientations: make(map[string]Orientation),
		Depth:        make(map[string]float64),
	}

	for _, ch := range chains {
		p, ok1 := f.Joints.Visible(ch.proximal, c.MinScore)
		m, ok2 := f.Joints.Visible(ch.mid, c.MinScore)
		d, ok3 := f.Joints.Visible(ch.distal, c.MinScore)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		if ch.rotation {
			out.Orientations[ch.label] = ShoulderRotation(p.Vector, m.Vector, d.Vector)
		} else {
			out.Orientations[ch.label] = Flexion(p.Vector, m.Vector, d.Vector)
		}
	}

	if f.Previous != nil {
		policy := c.Depth
		if policy == nil {
			policy = DefaultDepthPolicy()
		}
		out.Depth = ZDisplacement(f.Joints, f.Previous, f.FaceVisible, policy, c.MinScore)
	}
	return out
}

// Classify runs the default classifier.
func Classify(f Frame) Analysis {
	return DefaultClassifier().Classify(f)
}
