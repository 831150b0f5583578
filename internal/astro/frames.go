// Package astro provides vector math and projections for near-Earth geometry.
package astro

import (
	"math"
)

// EarthRadius is the mean radius of the Earth in meters.
const EarthRadius = 6371000.0

// MetersPerKm converts source kilometers to scene meters.
const MetersPerKm = 1000.0

// Vec3 represents a 3D vector in any reference frame.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the magnitude of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized returns a unit vector in the same direction.
func (v Vec3) Normalized() Vec3 {
	n := v.Norm()
	if n == 0 {
		return Vec3{}
	}
	return Vec3{X: v.X / n, Y: v.Y / n, Z: v.Z / n}
}

// Scale returns the vector scaled by a factor.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Add returns the sum of two vectors.
func (v Vec3) Add(u Vec3) Vec3 {
	return Vec3{X: v.X + u.X, Y: v.Y + u.Y, Z: v.Z + u.Z}
}

// Sub returns the difference of two vectors.
func (v Vec3) Sub(u Vec3) Vec3 {
	return Vec3{X: v.X - u.X, Y: v.Y - u.Y, Z: v.Z - u.Z}
}

// Dot returns the scalar product.
func (v Vec3) Dot(u Vec3) float64 {
	return v.X*u.X + v.Y*u.Y + v.Z*u.Z
}

// Lerp interpolates between v and u; f=0 yields v, f=1 yields u.
func (v Vec3) Lerp(u Vec3, f float64) Vec3 {
	return Vec3{
		X: v.X + (u.X-v.X)*f,
		Y: v.Y + (u.Y-v.Y)*f,
		Z: v.Z + (u.Z-v.Z)*f,
	}
}

// Array returns the components as a slice, for matrix code.
func (v Vec3) Array() []float64 {
	return []float64{v.X, v.Y, v.Z}
}

// Vec3FromSlice builds a vector from the first three elements of s.
func Vec3FromSlice(s []float64) Vec3 {
	if len(s) < 3 {
		return Vec3{}
	}
	return Vec3{X: s[0], Y: s[1], Z: s[2]}
}

// KmToMeters converts a kilometer vector to meters.
func KmToMeters(v Vec3) Vec3 {
	return v.Scale(MetersPerKm)
}

// ProjectedPoint represents a 2D projected position with metadata.
type ProjectedPoint struct {
	X float64 // Screen X coordinate (normalized units)
	Y float64 // Screen Y coordinate (normalized units)
	R float64 // Original 3D distance in Earth radii
	Z float64 // Original Z offset in Earth radii
}

// ScaleMode defines how radial distances are mapped to screen space.
type ScaleMode int

const (
	// ScaleLinear maps Earth radii directly to screen units.
	ScaleLinear ScaleMode = iota

	// ScaleLogR uses logarithmic scaling: r_display = log10(r_Re + 1)
	ScaleLogR
)

// ProjectionConfig configures the top-down equatorial projection.
type ProjectionConfig struct {
	Scale float64   // Base scale factor
	Mode  ScaleMode // Scaling mode
}

// DefaultProjectionConfig returns a reasonable default configuration.
func DefaultProjectionConfig() ProjectionConfig {
	return ProjectionConfig{
		Scale: 1.0,
		Mode:  ScaleLinear,
	}
}

// ProjectTopDown projects a position in meters onto the equatorial plane,
// looking down from +Z. X points right and Y points up.
func ProjectTopDown(v Vec3, cfg ProjectionConfig) ProjectedPoint {
	re := v.Scale(1 / EarthRadius)
	rPlane := math.Sqrt(re.X*re.X + re.Y*re.Y)
	rDisplay := scaleRadius(rPlane, cfg)
	angle := math.Atan2(re.Y, re.X)

	return ProjectedPoint{
		X: rDisplay * math.Cos(angle) * cfg.Scale,
		Y: rDisplay * math.Sin(angle) * cfg.Scale,
		R: re.Norm(),
		Z: re.Z,
	}
}

func scaleRadius(r float64, cfg ProjectionConfig) float64 {
	switch cfg.Mode {
	case ScaleLogR:
		return math.Log10(r + 1)
	default:
		return r
	}
}
