package frame

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	"gonum.org/v1/gonum/mat"
)

// Orientation supplies the inertial-to-fixed rotation for an instant.
type Orientation interface {
	// Matrix returns the 3x3 rotation taking inertial coordinates to fixed
	// coordinates at t, or ErrUnavailable.
	Matrix(t time.Time) (*mat.Dense, error)
}

// Interval is a closed time span.
type Interval struct {
	Start, End time.Time
}

// Contains reports whether t lies within the interval.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// EarthOrientation rotates about the pole by Greenwich apparent sidereal
// time. Instants are only served after their interval has been preloaded,
// unless the provider was built with WithAlwaysAvailable.
type EarthOrientation struct {
	mu       sync.RWMutex
	coverage []Interval
	always   bool
}

// OrientationOption configures an EarthOrientation.
type OrientationOption func(*EarthOrientation)

// WithAlwaysAvailable serves every instant without preloading.
func WithAlwaysAvailable() OrientationOption {
	return func(e *EarthOrientation) {
		e.always = true
	}
}

// NewEarthOrientation creates an orientation provider with no coverage.
func NewEarthOrientation(opts ...OrientationOption) *EarthOrientation {
	e := &EarthOrientation{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Preload makes [start, end] available. Overlapping or touching intervals
// are merged.
func (e *EarthOrientation) Preload(ctx context.Context, start, end time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("%w: %s before %s", ErrInvalidInterval, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	all := append(e.coverage, Interval{Start: start, End: end})
	sort.Slice(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })

	merged := all[:1]
	for _, iv := range all[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	e.coverage = merged
	return nil
}

// Coverage returns a copy of the preloaded intervals, ordered by start.
func (e *EarthOrientation) Coverage() []Interval {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Interval, len(e.coverage))
	copy(out, e.coverage)
	return out
}

// Available reports whether t can be served.
func (e *EarthOrientation) Available(t time.Time) bool {
	if e.always {
		return true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, iv := range e.coverage {
		if iv.Contains(t) {
			return true
		}
	}
	return false
}

// Matrix implements Orientation.
func (e *EarthOrientation) Matrix(t time.Time) (*mat.Dense, error) {
	if !e.Available(t) {
		return nil, fmt.Errorf("%w at %s", ErrUnavailable, t.UTC().Format(time.RFC3339))
	}
	return RotationZ(SiderealAngle(t)), nil
}

// SiderealAngle returns Greenwich apparent sidereal time at t, in radians.
func SiderealAngle(t time.Time) float64 {
	jd := julian.TimeToJD(t.UTC())
	return sidereal.Apparent(jd).Angle().Rad()
}

// RotationZ returns the frame rotation about +Z by theta radians. Applied to
// an inertial vector it yields the vector's components in a frame rotated
// by theta.
func RotationZ(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		c, s, 0,
		-s, c, 0,
		0, 0, 1,
	})
}

// Identity returns a new 3x3 identity matrix.
func Identity() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}
