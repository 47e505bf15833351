package biomech

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilosayaw/seqsync-sub000/internal/geom"
)

func TestFlexion_Boundaries(t *testing.T) {
	origin := geom.Vec3{}
	deg150 := geom.Vec3{X: math.Cos(geom.Rad(150)), Y: math.Sin(geom.Rad(150))}

	tests := []struct {
		name                  string
		proximal, mid, distal geom.Vec3
		expected              Orientation
	}{
		{"colinear is 180", geom.Vec3{X: 0}, geom.Vec3{X: 1}, geom.Vec3{X: 2}, Ext},
		{"right angle", geom.Vec3{X: 1}, origin, geom.Vec3{Y: 1}, Flex},
		{"exactly 150", geom.Vec3{X: 1}, origin, deg150, Neutral},
		{"zero proximal", origin, origin, geom.Vec3{X: 1}, Neutral},
		{"zero distal", geom.Vec3{X: 1}, origin, origin, Neutral},
		{"nan", geom.Vec3{X: math.NaN()}, origin, geom.Vec3{Y: 1}, Neutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Flexion(tt.proximal, tt.mid, tt.distal))
		})
	}
}

func TestAngle(t *testing.T) {
	deg, ok := Angle(geom.Vec3{X: 1}, geom.Vec3{}, geom.Vec3{Y: 1})
	require.True(t, ok)
	assert.InDelta(t, 90.0, deg, 1e-9)

	_, ok = Angle(geom.Vec3{}, geom.Vec3{}, geom.Vec3{Y: 1})
	assert.False(t, ok)
}

func TestShoulderRotation(t *testing.T) {
	shoulder := geom.Vec3{}
	elbow := geom.Vec3{X: 0, Y: -1}

	// wrist x elbow: (1,-1) x (0,-1) = 1*-1 - (-1*0) = -1
	assert.Equal(t, Out, ShoulderRotation(shoulder, elbow, geom.Vec3{X: 1, Y: -1}))
	// (-1,-1) x (0,-1) = -1*-1 - 0 = 1
	assert.Equal(t, In, ShoulderRotation(shoulder, elbow, geom.Vec3{X: -1, Y: -1}))
	// straight arm, cross 0
	assert.Equal(t, Neutral, ShoulderRotation(shoulder, elbow, geom.Vec3{X: 0, Y: -2}))
	// depth does not matter
	assert.Equal(t, Neutral, ShoulderRotation(shoulder, elbow, geom.Vec3{X: 0.01, Y: -2, Z: 5}))
}

func TestDepthPolicies(t *testing.T) {
	facing := DefaultDepthPolicy()
	assert.Equal(t, "facing", facing.Name())
	assert.Equal(t, 0.4, facing.Adjust(0.4, true))
	assert.InDelta(t, 0.1, facing.Adjust(0.2, false), 1e-12)
	assert.Equal(t, 0.15, facing.Adjust(0.8, false))
	assert.Equal(t, -0.15, facing.Adjust(-0.8, false))

	assert.Equal(t, 0.8, RawDepth{}.Adjust(0.8, false))

	p, err := DepthPolicyByName("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", p.Name())

	_, err = DepthPolicyByName("magic")
	assert.Error(t, err)
}

func TestZDisplacement_SkipsInvisible(t *testing.T) {
	cur := Joints{
		"LH": {Vector: geom.Vec3{Z: 0.5}, Score: 0.9},
		"RH": {Vector: geom.Vec3{Z: 0.5}, Score: 0.1},
		"LK": {Vector: geom.Vec3{Z: 0.2}, Score: 0.9},
	}
	prev := Joints{
		"LH": {Vector: geom.Vec3{Z: 0.1}, Score: 0.9},
		"RH": {Vector: geom.Vec3{Z: 0.1}, Score: 0.9},
	}

	out := ZDisplacement(cur, prev, true, RawDepth{}, MinScore)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.4, out["LH"], 1e-12)

	out = ZDisplacement(cur, prev, false, DefaultDepthPolicy(), MinScore)
	assert.InDelta(t, 0.15, out["LH"], 1e-12)
}

func TestClassify(t *testing.T) {
	frame := Frame{
		Joints: Joints{
			LeftShoulder: {Vector: geom.Vec3{X: 0, Y: 0}, Score: 0.9},
			LeftElbow:    {Vector: geom.Vec3{X: 0, Y: -1}, Score: 0.9},
			LeftWrist:    {Vector: geom.Vec3{X: 1, Y: -1}, Score: 0.9},
			LeftHip:      {Vector: geom.Vec3{X: 0, Y: -2}, Score: 0.9},
			LeftKnee:     {Vector: geom.Vec3{X: 0, Y: -3}, Score: 0.9},
			LeftAnkle:    {Vector: geom.Vec3{X: 0, Y: -4}, Score: 0.2},
		},
		Previous: Joints{
			LeftHip: {Vector: geom.Vec3{X: 0, Y: -2, Z: -0.1}, Score: 0.9},
		},
		FaceVisible: true,
	}

	a := Classify(frame)

	assert.Equal(t, Flex, a.Orientations[LeftElbow])
	assert.Equal(t, Out, a.Orientations[LeftShoulder])
	assert.Equal(t, Ext, a.Orientations[LeftHip])
	_, hasKnee := a.Orientations[LeftKnee]
	assert.False(t, hasKnee, "ankle below visibility threshold")
	assert.InDelta(t, 0.1, a.Depth[LeftHip], 1e-12)
}

func TestKneeSafeZone_Overlap(t *testing.T) {
	z := KneeSafeZone(0, 10)
	require.False(t, z.Fallback)
	assert.Equal(t, -25.0, z.Min)
	assert.Equal(t, 25.0, z.Max)
	require.Len(t, z.Polygon, ArcSteps+2)
	assert.Equal(t, HeelVertex, z.Polygon[0])

	first := z.Polygon[1]
	assert.InDelta(t, 0.9*math.Sin(geom.Rad(-25)), first.X, 1e-12)
	assert.InDelta(t, 0.9*math.Cos(geom.Rad(-25)), first.Y, 1e-12)
	last := z.Polygon[len(z.Polygon)-1]
	assert.InDelta(t, 0.9*math.Sin(geom.Rad(25)), last.X, 1e-12)

	assert.True(t, z.Contains(geom.Vec2{X: 0, Y: 0.5}))
	assert.False(t, z.Contains(geom.Vec2{X: 0.8, Y: 0.1}))
	assert.False(t, z.Contains(geom.Vec2{X: 0, Y: 2}))
}

func TestKneeSafeZone_FootLimitsWindow(t *testing.T) {
	z := KneeSafeZone(0, 50)
	require.False(t, z.Fallback)
	assert.Equal(t, 10.0, z.Min)
	assert.Equal(t, 25.0, z.Max)
}

func TestKneeSafeZone_WrapsFoot(t *testing.T) {
	z := KneeSafeZone(170, -170)
	require.False(t, z.Fallback)
	assert.Equal(t, 190.0, z.Foot)
	assert.Equal(t, 150.0, z.Min)
	assert.Equal(t, 195.0, z.Max)
}

func TestKneeSafeZone_DisjointFallback(t *testing.T) {
	var z SafeZone
	require.NotPanics(t, func() { z = KneeSafeZone(0, 180) })

	assert.True(t, z.Fallback)
	assert.Equal(t, 0.0, z.Min)
	assert.Equal(t, 0.0, z.Max)
	require.Len(t, z.Polygon, 2)
	assert.False(t, selfIntersecting(z.Polygon))

	_, err := StrictKneeSafeZone(0, 180)
	assert.ErrorIs(t, err, ErrEmptyIntersection)

	// clamping onto the degenerate zone lands on the hip direction
	q := z.ClampPoint(geom.Vec2{X: 0.5, Y: 0.5})
	assert.InDelta(t, 0.0, q.X, 1e-12)
	assert.InDelta(t, 0.5, q.Y, 1e-12)
	assert.Equal(t, 0.0, z.ClampAngle(90))
}

func TestKneeSafeZone_NoSelfIntersection(t *testing.T) {
	for _, pair := range [][2]float64{{0, 0}, {30, -10}, {-90, -60}, {179, -179}} {
		z := KneeSafeZone(pair[0], pair[1])
		assert.False(t, selfIntersecting(z.Polygon), "hip %v foot %v", pair[0], pair[1])
	}
}

func TestKneeSafeZone_NaNInput(t *testing.T) {
	z := KneeSafeZone(math.NaN(), math.NaN())
	assert.False(t, z.Fallback)
	assert.Equal(t, -25.0, z.Min)
}

func TestSafeZone_Clamp(t *testing.T) {
	z := KneeSafeZone(0, 0)

	inside := geom.Vec2{X: 0, Y: 0.5}
	assert.Equal(t, inside, z.ClampPoint(inside))

	// a point straight right of the fan snaps onto its boundary
	q := z.ClampPoint(geom.Vec2{X: 0.9, Y: 0.2})
	assert.True(t, z.Polygon.Contains(q) || onBoundary(z.Polygon, q))

	assert.Equal(t, 25.0, z.ClampAngle(60))
	assert.Equal(t, -25.0, z.ClampAngle(-60))
	assert.Equal(t, 10.0, z.ClampAngle(10))
	assert.Equal(t, 10.0, z.ClampAngle(370))
}

func TestPolygon_NearestBoundaryPoint(t *testing.T) {
	square := Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

	assert.Equal(t, geom.Vec2{X: 0.5, Y: 0}, square.NearestBoundaryPoint(geom.Vec2{X: 0.5, Y: -3}))
	assert.Equal(t, geom.Vec2{X: 1, Y: 1}, square.NearestBoundaryPoint(geom.Vec2{X: 4, Y: 4}))
	assert.True(t, square.Contains(geom.Vec2{X: 0.5, Y: 0.5}))
	assert.False(t, square.Contains(geom.Vec2{X: 1.5, Y: 0.5}))

	assert.Equal(t, geom.Vec2{X: 2, Y: 2}, Polygon{{X: 2, Y: 2}}.NearestBoundaryPoint(geom.Vec2{}))
}

func onBoundary(poly Polygon, p geom.Vec2) bool {
	return poly.NearestBoundaryPoint(p).Dist(p) < 1e-9
}

// selfIntersecting checks every pair of non-adjacent edges.
func selfIntersecting(poly Polygon) bool {
	n := len(poly)
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := poly[i], poly[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			b1, b2 := poly[j], poly[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 geom.Vec2) bool {
	d1 := q2.Sub(q1).Cross(p1.Sub(q1))
	d2 := q2.Sub(q1).Cross(p2.Sub(q1))
	d3 := p2.Sub(p1).Cross(q1.Sub(p1))
	d4 := p2.Sub(p1).Cross(q2.Sub(p1))
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}
