// Package geom provides the small vector types shared by the classifier,
// the rotation controller and the sequence store.
package geom

import "math"

// Vec2 is a point or direction in the local 2-D editing plane.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Scale returns v * k.
func (v Vec2) Scale(k float64) Vec2 { return Vec2{v.X * k, v.Y * k} }

// Dot returns the dot product.
func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

// Cross returns the z component of the 3-D cross product of v and o.
func (v Vec2) Cross(o Vec2) float64 { return v.X*o.Y - v.Y*o.X }

// Len returns the Euclidean length.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Dist returns the distance between v and o.
func (v Vec2) Dist(o Vec2) float64 { return v.Sub(o).Len() }

// Vec3 is a normalized joint position. Each axis is roughly in [-1, 1].
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Dot returns the dot product.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Len returns the Euclidean length.
func (v Vec3) Len() float64 { return math.Sqrt(v.Dot(v)) }

// XY drops the depth axis.
func (v Vec3) XY() Vec2 { return Vec2{v.X, v.Y} }

// IsFinite reports whether every component is a finite number.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// MarshalJSON encodes the vector as a 3-element array, the shape used by
// sequence files.
func (v Vec3) MarshalJSON() ([]byte, error) {
	return marshalTriple(v.X, v.Y, v.Z)
}

// UnmarshalJSON accepts either a 3-element array or an {x,y,z} object.
func (v *Vec3) UnmarshalJSON(data []byte) error {
	x, y, z, err := unmarshalTriple(data)
	if err != nil {
		return err
	}
	*v = Vec3{x, y, z}
	return nil
}

// Deg converts radians to degrees.
func Deg(rad float64) float64 { return rad * 180 / math.Pi }

// Rad converts degrees to radians.
func Rad(deg float64) float64 { return deg * math.Pi / 180 }

// WrapDelta folds an angular delta in degrees into [-180, 180].
func WrapDelta(d float64) float64 {
	if d < -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// NormalizeNear returns the angle equivalent to a (mod 360) that lies within
// 180 degrees of ref.
func NormalizeNear(a, ref float64) float64 {
	d := math.Mod(a-ref, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return ref + d
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
