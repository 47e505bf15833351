package biomech

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilosayaw/seqsync-sub000/internal/geom"
)

// ErrEmptyIntersection is returned by StrictKneeSafeZone when the hip and
// foot tolerance windows do not overlap.
var ErrEmptyIntersection = errors.New("empty safe-zone intersection")

const (
	HipTolerance  = 25.0
	FootTolerance = 40.0
	ArcRadius     = 0.9
	ArcSteps      = 10
)

// HeelVertex is the fixed fan origin in local knee coordinates.
var HeelVertex = geom.Vec2{X: 0, Y: -0.2}

// Polygon is a closed polygon; the last vertex connects back to the first.
type Polygon []geom.Vec2

// SafeZone is the permissible knee direction for a hip/foot rotation pair.
type SafeZone struct {
	Hip     float64
	Foot    float64 // normalized to within 180 degrees of Hip
	Min     float64
	Max     float64
	Polygon Polygon

	// Fallback is set when the windows did not overlap. Min and Max then
	// both equal Hip and Polygon is the segment from the heel to the arc
	// point at the hip angle.
	Fallback bool
}

// ArcPoint converts a knee angle in degrees to its point on the fan arc.
func ArcPoint(deg float64) geom.Vec2 {
	r := geom.Rad(deg)
	return geom.Vec2{X: ArcRadius * math.Sin(r), Y: ArcRadius * math.Cos(r)}
}

// KneeSafeZone intersects [hip-25, hip+25] with [foot-40, foot+40] and
// emits the fan polygon. It never fails; see SafeZone.Fallback.
func KneeSafeZone(hip, foot float64) SafeZone {
	if math.IsNaN(hip) || math.IsInf(hip, 0) {
		hip = 0
	}
	if math.IsNaN(foot) || math.IsInf(foot, 0) {
		foot = hip
	}
	foot = geom.NormalizeNear(foot, hip)

	lo := math.Max(hip-HipTolerance, foot-FootTolerance)
	hi := math.Min(hip+HipTolerance, foot+FootTolerance)

	z := SafeZone{Hip: hip, Foot: foot, Min: lo, Max: hi}
	if lo > hi {
		z.Min, z.Max = hip, hip
		z.Fallback = true
		z.Polygon = Polygon{HeelVertex, ArcPoint(hip)}
		return z
	}

	poly := make(Polygon, 0, ArcSteps+2)
	poly = append(poly, HeelVertex)
	for i := 0; i <= ArcSteps; i++ {
		theta := lo + (hi-lo)*float64(i)/ArcSteps
		poly = append(poly, ArcPoint(theta))
	}
	z.Polygon = poly
	return z
}

// StrictKneeSafeZone is KneeSafeZone for callers that must reject disjoint
// windows instead of accepting the fallback.
func StrictKneeSafeZone(hip, foot float64) (SafeZone, error) {
	z := KneeSafeZone(hip, foot)
	if z.Fallback {
		return z, fmt.Errorf("%w: hip %.1f° foot %.1f°", ErrEmptyIntersection, hip, foot)
	}
	return z, nil
}

// Contains reports whether p is strictly inside the zone polygon.
func (z SafeZone) Contains(p geom.Vec2) bool { return z.Polygon.Contains(p) }

// ClampPoint returns p when it lies inside the zone, otherwise the nearest
// point on the zone boundary.
func (z SafeZone) ClampPoint(p geom.Vec2) geom.Vec2 {
	if z.Polygon.Contains(p) {
		return p
	}
	return z.Polygon.NearestBoundaryPoint(p)
}

// ClampAngle limits a knee angle to [Min, Max], comparing modulo 360.
func (z SafeZone) ClampAngle(deg float64) float64 {
	if math.IsNaN(deg) {
		return z.Hip
	}
	mid := (z.Min + z.Max) / 2
	return geom.Clamp(geom.NormalizeNear(deg, mid), z.Min, z.Max)
}

// Contains is the even-odd ray casting test. Polygons with fewer than three
// vertices have no interior.
func (poly Polygon) Contains(p geom.Vec2) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// NearestBoundaryPoint projects p onto every edge, clamping the parametric
// position to [0, 1], and returns the closest projection.
func (poly Polygon) NearestBoundaryPoint(p geom.Vec2) geom.Vec2 {
	switch len(poly) {
	case 0:
		return p
	case 1:
		return poly[0]
	}

	best := poly[0]
	bestDist := math.Inf(1)
	edges := len(poly)
	if edges == 2 {
		edges = 1
	}
	for i := 0; i < edges; i++ {
		a := poly[i]
		b := poly[(i+1)%len(poly)]
		q := projectOnSegment(p, a, b)
		if d := q.Dist(p); d < bestDist {
			best, bestDist = q, d
		}
	}
	return best
}

func projectOnSegment(p, a, b geom.Vec2) geom.Vec2 {
	ab := b.Sub(a)
	den := ab.Dot(ab)
	if den == 0 {
		return a
	}
	t := geom.Clamp(p.Sub(a).Dot(ab)/den, 0, 1)
	return a.Add(ab.Scale(t))
}
