package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/litescript/ls-mms/internal/astro"
	"github.com/litescript/ls-mms/internal/colors"
	"github.com/litescript/ls-mms/internal/datasource"
	"github.com/litescript/ls-mms/internal/ephem"
	"github.com/litescript/ls-mms/internal/scene"
	"github.com/litescript/ls-mms/internal/state"
	"github.com/litescript/ls-mms/internal/whisker"
)

var markerColor = colors.RGBA{R: 1, G: 1, B: 1, A: 1}

// populateMain builds the primary spacecraft's colored path, whiskers and
// marker into the main scene and waits for the scene to be ready.
func (c *Controller) populateMain(ctx context.Context, g uint64, s Settings, snap ephem.Snapshot) error {
	primary := c.spacecraft[0]
	track, _ := snap.Track(primary)

	var (
		wg       sync.WaitGroup
		pathCols []colors.RGBA
		vecs     []whisker.Vector
		rep      whisker.Report
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pathCols = c.pathColors(ctx, g, s, primary, track)
	}()
	go func() {
		defer wg.Done()
		vecs, rep = c.buildWhiskers(ctx, g, s, primary, track)
	}()
	wg.Wait()

	c.mu.Lock()
	if c.gen != g || c.main == nil {
		c.mu.Unlock()
		return ErrSuperseded
	}
	main := c.main
	main.ClearDerived()
	main.AddPath(track.Positions(), pathCols)
	for _, v := range vecs {
		main.AddVector(v.Origin, v.Direction.Scale(v.Length), v.Color)
	}
	main.AddMarker(primary, track, markerColor)
	if last, ok := track.Last(); ok {
		main.SetCamera(last.Pos)
	}
	main.Commit()
	ready := main.OnReady()
	c.mu.Unlock()

	if s.Dataset3D != "" {
		c.state.SetWhiskers(state.WhiskerStatus{
			Parameter: s.Dataset3D,
			Total:     rep.Total,
			Built:     rep.Built,
			Dropped:   rep.Dropped,
			Skipped:   rep.Skipped,
		})
	} else {
		c.state.SetWhiskers(state.WhiskerStatus{})
	}

	if err := c.awaitScene(ctx, g, ready); err != nil {
		return err
	}
	c.state.SetViewer(state.MainViewer, state.ViewerReady)
	return nil
}

// awaitScene is the scene join point.
func (c *Controller) awaitScene(ctx context.Context, g uint64, ready <-chan struct{}) error {
	select {
	case <-ready:
	case <-ctx.Done():
		if !c.current(g) {
			return ErrSuperseded
		}
		return ctx.Err()
	}
	if !c.current(g) {
		return ErrSuperseded
	}
	return nil
}

// pathColors maps the primary spacecraft's scalar parameter onto the path.
// Without a parameter, or when it cannot be fetched, the path is gray.
func (c *Controller) pathColors(ctx context.Context, g uint64, s Settings, sc string, track ephem.Track) []colors.RGBA {
	gray := colors.Gray(colors.PathAlpha)
	p, ok, _ := datasource.LookupParameter(s.Dataset1D)
	if !ok {
		return colors.Interpolate(colors.PadSeries(nil, track.Len()), nil, gray)
	}

	rows, err := c.src.Fetch(context.WithoutCancel(ctx), p.Query(sc, s.Range))
	if err != nil {
		c.dataUnavailable(g, err)
		return colors.Interpolate(colors.PadSeries(nil, track.Len()), nil, gray)
	}
	cells := make([]string, len(rows))
	for i, r := range rows {
		if len(r.Values) > 0 {
			cells[i] = r.Values[0]
		}
	}
	pal, err := colors.Lookup(s.Palette1D, c.shades)
	if err != nil {
		pal = colors.MustLookup(colors.DefaultPalette)
	}
	return colors.Interpolate(colors.PadSeries(colors.ParseSeries(cells), track.Len()), pal, gray)
}

// buildWhiskers fetches the primary spacecraft's vector parameter and builds
// whiskers along track.
func (c *Controller) buildWhiskers(ctx context.Context, g uint64, s Settings, sc string, track ephem.Track) ([]whisker.Vector, whisker.Report) {
	p, ok, _ := datasource.LookupParameter(s.Dataset3D)
	if !ok {
		return nil, whisker.Report{}
	}

	rows, err := c.src.Fetch(context.WithoutCancel(ctx), p.Query(sc, s.Range))
	if err != nil {
		c.dataUnavailable(g, err)
		return nil, whisker.Report{}
	}
	samples, skipped := whisker.SamplesFromRows(rows)
	if skipped > 0 {
		c.log.Debug("%s: %d incomplete rows", p.Dataset(sc), skipped)
	}
	pal, err := colors.Lookup(s.Palette3D, c.shades)
	if err != nil {
		pal = colors.MustLookup(colors.DefaultPalette)
	}
	return c.whiskers.Build(samples, s.Frame, track, pal)
}

func (c *Controller) dataUnavailable(g uint64, err error) {
	if !c.current(g) {
		return
	}
	c.log.Warn("gen %d: %v", g, err)
	c.state.Record(state.Event{Type: state.EventDataUnavailable, Generation: g, Detail: err.Error()})
}

// createFormation creates the formation scene with its clock slaved to the
// main clock.
func (c *Controller) createFormation(g uint64, s Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != g {
		return ErrSuperseded
	}
	if c.main == nil {
		return ErrNoViewer
	}
	c.destroyFormationLocked()

	clock := scene.NewClock(s.Range, scene.WithMultiplier(c.multiplier))
	follow := clock.Follow(c.main.Clock())
	c.formation = c.newScene(state.FormationViewer, clock)
	c.formSubs = append([]func(){follow}, c.trackRotation(c.formation, s.Frame)...)
	c.state.SetViewer(state.FormationViewer, state.ViewerLoading)
	return nil
}

// populateFormation draws every spacecraft's path relative to the primary
// spacecraft, so the view tracks it.
func (c *Controller) populateFormation(ctx context.Context, g uint64, snap ephem.Snapshot) error {
	ref, _ := snap.Track(c.spacecraft[0])
	gray := colors.Gray(colors.WhiskerAlpha)

	c.mu.Lock()
	if c.gen != g || c.formation == nil {
		c.mu.Unlock()
		return ErrSuperseded
	}
	f := c.formation
	f.ClearDerived()
	var extent float64
	for _, t := range snap.Tracks {
		rel := relativeTrack{track: t, ref: ref}
		pos := rel.positions()
		cols := make([]colors.RGBA, len(pos))
		for i := range cols {
			cols[i] = gray
			extent = max(extent, pos[i].Norm())
		}
		f.AddPath(pos, cols)
		f.AddMarker(t.ID, rel, markerColor)
	}
	f.SetCamera(astro.Vec3{X: extent})
	f.Commit()
	ready := f.OnReady()
	c.mu.Unlock()

	if err := c.awaitScene(ctx, g, ready); err != nil {
		return err
	}
	c.state.SetViewer(state.FormationViewer, state.ViewerReady)
	return nil
}

// destroyFormationLocked removes the formation viewer. Callers hold c.mu.
func (c *Controller) destroyFormationLocked() {
	if c.formation == nil {
		return
	}
	for _, cancel := range c.formSubs {
		cancel()
	}
	c.formSubs = nil
	c.formation.Destroy()
	c.formation = nil
	c.state.SetViewer(state.FormationViewer, state.ViewerEmpty)
}

// relativeTrack is a track seen from the reference spacecraft.
type relativeTrack struct {
	track ephem.Track
	ref   ephem.Track
}

func (r relativeTrack) PositionAt(t time.Time) (astro.Vec3, bool) {
	p, ok := r.track.PositionAt(t)
	if !ok {
		return astro.Vec3{}, false
	}
	o, ok := r.ref.PositionAt(t)
	if !ok {
		return astro.Vec3{}, false
	}
	return p.Sub(o), true
}

// positions returns the offsets at the track's own sample times, skipping
// samples the reference does not cover.
func (r relativeTrack) positions() []astro.Vec3 {
	out := make([]astro.Vec3, 0, r.track.Len())
	for _, s := range r.track.Transformed {
		o, ok := r.ref.PositionAt(s.Time)
		if !ok {
			continue
		}
		out = append(out, s.Pos.Sub(o))
	}
	return out
}
