// Package scene holds the drawable state of a viewer: a simulation clock,
// orbit paths, whiskers and spacecraft markers, and a terminal rasterizer.
package scene

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/litescript/ls-mms/internal/astro"
	"github.com/litescript/ls-mms/internal/colors"
	"github.com/litescript/ls-mms/internal/logging"
)

// Locator gives a marker's position at an instant.
type Locator interface {
	PositionAt(t time.Time) (astro.Vec3, bool)
}

// Scene is a viewer's drawable state. Derived geometry (paths, vectors and
// markers) is added in batches; Commit ends a batch and OnReady closes once
// the batch is prepared for drawing.
type Scene interface {
	Name() string
	AddPath(positions []astro.Vec3, cols []colors.RGBA)
	AddVector(origin, offset astro.Vec3, c colors.RGBA)
	AddMarker(label string, loc Locator, c colors.RGBA)
	Commit()
	ClearDerived()
	OnReady() <-chan struct{}
	SetModelRotation(m *mat.Dense)
	SetCamera(target astro.Vec3)
	Clock() *Clock
	Destroy()
	Destroyed() bool
}

// Path is a polyline with per-vertex colors.
type Path struct {
	Positions []astro.Vec3
	Colors    []colors.RGBA
}

// Segment is a whisker from Origin to Origin+Offset.
type Segment struct {
	Origin astro.Vec3
	Offset astro.Vec3
	Color  colors.RGBA
}

// Marker is a labeled moving point.
type Marker struct {
	Label string
	Loc   Locator
	Color colors.RGBA
}

// Stats counts a scene's derived geometry.
type Stats struct {
	Paths    int
	Vertices int
	Vectors  int
	Markers  int
	Ready    bool
}

// Canvas is the in-memory Scene drawn by Render.
type Canvas struct {
	name  string
	clock *Clock
	log   *logging.Logger
	earth bool

	mu        sync.RWMutex
	paths     []Path
	vectors   []Segment
	markers   []Marker
	rotation  *mat.Dense
	camera    astro.Vec3
	hasCamera bool
	ready     chan struct{}
	batch     uint64
	committed bool
	destroyed bool
	prepared  []point
}

// CanvasOption configures a Canvas.
type CanvasOption func(*Canvas)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) CanvasOption {
	return func(c *Canvas) {
		c.log = l
	}
}

// WithoutEarth omits the globe, for views of small relative offsets.
func WithoutEarth() CanvasOption {
	return func(c *Canvas) {
		c.earth = false
	}
}

// NewCanvas creates an empty scene driven by clock.
func NewCanvas(name string, clock *Clock, opts ...CanvasOption) *Canvas {
	c := &Canvas{
		name:  name,
		clock: clock,
		log:   logging.Discard(),
		earth: true,
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the scene name.
func (c *Canvas) Name() string {
	return c.name
}

// Clock returns the scene clock.
func (c *Canvas) Clock() *Clock {
	return c.clock
}

// AddPath adds a polyline. cols may be shorter than positions; missing
// colors are drawn gray.
func (c *Canvas) AddPath(positions []astro.Vec3, cols []colors.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.paths = append(c.paths, Path{
		Positions: append([]astro.Vec3(nil), positions...),
		Colors:    append([]colors.RGBA(nil), cols...),
	})
}

// AddVector adds a whisker.
func (c *Canvas) AddVector(origin, offset astro.Vec3, col colors.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.vectors = append(c.vectors, Segment{Origin: origin, Offset: offset, Color: col})
}

// AddMarker adds a spacecraft marker.
func (c *Canvas) AddMarker(label string, loc Locator, col colors.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.markers = append(c.markers, Marker{Label: label, Loc: loc, Color: col})
}

// Commit ends the current batch and prepares it for drawing in the
// background. OnReady closes when preparation finishes.
func (c *Canvas) Commit() {
	c.mu.Lock()
	if c.destroyed || c.committed {
		c.mu.Unlock()
		return
	}
	c.committed = true
	batch := c.batch
	paths := c.paths
	vectors := c.vectors
	c.mu.Unlock()

	go func() {
		pts := prepare(paths, vectors)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.destroyed || c.batch != batch {
			return
		}
		c.prepared = pts
		close(c.ready)
		c.log.Debug("%s: %d paths, %d vectors ready", c.name, len(paths), len(vectors))
	}()
}

// ClearDerived removes all paths, vectors and markers and starts a new batch.
func (c *Canvas) ClearDerived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths, c.vectors, c.markers, c.prepared = nil, nil, nil, nil
	c.batch++
	c.committed = false
	c.ready = make(chan struct{})
}

// OnReady returns a channel closed when the current batch is prepared.
func (c *Canvas) OnReady() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// SetModelRotation sets the rotation applied to derived geometry before
// projection. nil clears it.
func (c *Canvas) SetModelRotation(m *mat.Dense) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m == nil {
		c.rotation = nil
		return
	}
	var cp mat.Dense
	cp.CloneFrom(m)
	c.rotation = &cp
}

// ModelRotation returns a copy of the current model rotation, or nil.
func (c *Canvas) ModelRotation() *mat.Dense {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rotation == nil {
		return nil
	}
	var cp mat.Dense
	cp.CloneFrom(c.rotation)
	return &cp
}

// SetCamera frames the view so target is visible.
func (c *Canvas) SetCamera(target astro.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.camera = target
	c.hasCamera = true
}

// Camera returns the camera target.
func (c *Canvas) Camera() (astro.Vec3, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.camera, c.hasCamera
}

// Destroy releases the scene's geometry. A destroyed scene ignores further
// additions and its ready channel never closes.
func (c *Canvas) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.paths, c.vectors, c.markers, c.prepared = nil, nil, nil, nil
	c.log.Debug("%s: destroyed", c.name)
}

// Destroyed reports whether Destroy was called.
func (c *Canvas) Destroyed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.destroyed
}

// Stats returns counts of the scene's derived geometry.
func (c *Canvas) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Paths: len(c.paths), Vectors: len(c.vectors), Markers: len(c.markers)}
	for _, p := range c.paths {
		s.Vertices += len(p.Positions)
	}
	select {
	case <-c.ready:
		s.Ready = true
	default:
	}
	return s
}

// Paths returns the scene's paths.
func (c *Canvas) Paths() []Path {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Path(nil), c.paths...)
}

// Vectors returns the scene's whiskers.
func (c *Canvas) Vectors() []Segment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Segment(nil), c.vectors...)
}

var _ Scene = (*Canvas)(nil)
