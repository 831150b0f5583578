package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/litescript/ls-mms/internal/colors"
	"github.com/litescript/ls-mms/internal/datasource"
	"github.com/litescript/ls-mms/internal/ephem"
	"github.com/litescript/ls-mms/internal/frame"
	"github.com/litescript/ls-mms/internal/logging"
	"github.com/litescript/ls-mms/internal/metrics"
	"github.com/litescript/ls-mms/internal/scene"
	"github.com/litescript/ls-mms/internal/state"
	"github.com/litescript/ls-mms/internal/whisker"
)

// SceneFactory creates a viewer scene driven by clock.
type SceneFactory func(name string, clock *scene.Clock) scene.Scene

// Preloader makes orientation data available for an interval.
type Preloader interface {
	Preload(ctx context.Context, start, end time.Time) error
}

// Controller owns the main and formation viewers. Every accepted settings
// change bumps the generation; work started for an older generation is
// discarded when it reaches a join point.
type Controller struct {
	src      datasource.Source
	tf       *frame.Transformer
	pipe     *ephem.Pipeline
	whiskers *whisker.Builder
	state    *state.Manager
	log      *logging.Logger
	orient   Preloader

	newScene   SceneFactory
	multiplier float64
	shades     int
	spacecraft []string

	mu        sync.Mutex
	gen       uint64
	done      uint64 // last generation that finished, in any way
	target    Settings
	hasTarget bool
	// applied is what the viewers show: the settings of the last reload
	// that succeeded. pending holds the changes of every reload started
	// since then, which may have left the viewers half rebuilt.
	applied    Settings
	hasApplied bool
	pending    ReloadRequest
	main      scene.Scene
	formation scene.Scene
	mainSubs  []func()
	formSubs  []func()
	cancelRun context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithState sets the status manager updated by the controller.
func WithState(m *state.Manager) Option {
	return func(c *Controller) {
		c.state = m
	}
}

// WithPreloader preloads orientation data for the range of every new
// viewer.
func WithPreloader(p Preloader) Option {
	return func(c *Controller) {
		c.orient = p
	}
}

// WithSceneFactory sets how scenes are created.
func WithSceneFactory(f SceneFactory) Option {
	return func(c *Controller) {
		c.newScene = f
	}
}

// WithClockMultiplier sets the rate of new scene clocks.
func WithClockMultiplier(m float64) Option {
	return func(c *Controller) {
		c.multiplier = m
	}
}

// WithShades sets the palette size.
func WithShades(n int) Option {
	return func(c *Controller) {
		c.shades = n
	}
}

// WithSpacecraft sets the constellation. The first id is the primary
// spacecraft whose path and whiskers the main viewer shows.
func WithSpacecraft(ids ...string) Option {
	return func(c *Controller) {
		if len(ids) > 0 {
			c.spacecraft = append([]string(nil), ids...)
		}
	}
}

// NewController creates a controller reading from src.
func NewController(src datasource.Source, tf *frame.Transformer, opts ...Option) *Controller {
	c := &Controller{
		src:        src,
		tf:         tf,
		log:        logging.Discard(),
		multiplier: scene.DefaultMultiplier,
		shades:     colors.DefaultShades,
		spacecraft: append([]string(nil), datasource.Spacecraft...),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.state == nil {
		c.state = state.NewManager(state.DefaultConfig())
	}
	if c.newScene == nil {
		c.newScene = func(name string, clock *scene.Clock) scene.Scene {
			opts := []scene.CanvasOption{scene.WithLogger(c.log.Named("scene." + name))}
			if name == state.FormationViewer {
				opts = append(opts, scene.WithoutEarth())
			}
			return scene.NewCanvas(name, clock, opts...)
		}
	}
	c.pipe = ephem.NewPipeline(src, tf,
		ephem.WithSpacecraft(c.spacecraft...),
		ephem.WithLogger(c.log.Named("ephem")),
	)
	c.whiskers = whisker.NewBuilder(tf, whisker.WithLogger(c.log.Named("whisker")))
	return c
}

// Apply realizes desired with the least work. It blocks until the viewers
// are ready, the reload fails, or a newer Apply supersedes it; in the last
// case it returns ErrSuperseded. Invalid settings change nothing.
func (c *Controller) Apply(ctx context.Context, desired Settings) (Action, error) {
	if err := desired.Validate(); err != nil {
		return ActionNoOp, err
	}

	c.mu.Lock()
	req := c.requestLocked(desired)
	action := Decide(req)
	if action == ActionNoOp {
		c.mu.Unlock()
		c.log.Debug("reload %s: nothing changed", req.ID)
		return action, nil
	}
	c.pending = c.pending.merge(req)
	if c.cancelRun != nil {
		c.cancelRun()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelRun = cancel
	c.gen++
	g := c.gen
	c.target = desired
	c.hasTarget = true
	c.mu.Unlock()

	metrics.UpdateGeneration(g)
	c.state.SetTarget(state.Target{
		Generation: g,
		Range:      desired.Range.String(),
		Frame:      desired.Frame.String(),
		Action:     action.String(),
	})
	c.state.Record(state.Event{Type: state.EventReloadStarted, RequestID: req.ID, Generation: g, Action: action.String(), Detail: req.String()})
	c.log.Info("reload %s gen %d: %s (%s)", req.ID, g, action, req)

	start := time.Now()
	var err error
	switch action {
	case ActionFullRecreate:
		err = c.fullRecreate(runCtx, g, req)
	case ActionEntityRefresh:
		err = c.entityRefresh(runCtx, g, req)
	case ActionFormationOnly:
		err = c.formationOnly(runCtx, g, req)
	}
	err = c.finish(g, req, action, err, time.Since(start))
	return action, err
}

// requestLocked diffs desired against what the viewers show, plus whatever
// unfinished reloads may have changed. Re-applying the target of a reload
// that is still running is a no-op. Callers hold c.mu.
func (c *Controller) requestLocked(desired Settings) ReloadRequest {
	if c.hasTarget && c.done != c.gen && !Diff(c.target, desired).Changed() {
		return ReloadRequest{ID: uuid.NewString(), Settings: desired}
	}
	if !c.hasApplied {
		return initial(desired)
	}
	return Diff(c.applied, desired).merge(c.pending)
}

func (c *Controller) finish(g uint64, req ReloadRequest, action Action, err error, d time.Duration) error {
	c.mu.Lock()
	if c.gen != g {
		if err == nil {
			c.log.Debug("reload %s gen %d: finished after being superseded", req.ID, g)
		}
		err = ErrSuperseded
	} else {
		c.done = g
		if err == nil {
			c.applied = req.Settings
			c.hasApplied = true
			c.pending = ReloadRequest{}
		}
	}
	c.mu.Unlock()

	ev := state.Event{RequestID: req.ID, Generation: g, Action: action.String(), Duration: d}
	switch {
	case errors.Is(err, ErrSuperseded):
		metrics.RecordStaleGeneration("controller")
		ev.Type = state.EventSuperseded
		c.state.Record(ev)
		c.log.Debug("reload %s gen %d: superseded", req.ID, g)
		return ErrSuperseded
	case err != nil:
		metrics.RecordReload(action.String(), err, d)
		ev.Type = state.EventReloadFailed
		ev.Detail = err.Error()
		c.state.Record(ev)
		c.state.SetError(err)
		c.log.Error("reload %s gen %d: %v", req.ID, g, err)
		return err
	default:
		metrics.RecordReload(action.String(), nil, d)
		ev.Type = state.EventReloadCompleted
		c.state.Record(ev)
		c.state.SetError(nil)
		c.log.Info("reload %s gen %d: ready in %s", req.ID, g, d.Round(time.Millisecond))
		return nil
	}
}

// fullRecreate tears both viewers down and rebuilds them for the request.
func (c *Controller) fullRecreate(ctx context.Context, g uint64, req ReloadRequest) error {
	s := req.Settings

	// without coverage, samples pass through untransformed and tracks are
	// marked degraded
	if c.orient != nil {
		if err := c.orient.Preload(ctx, s.Range.Start, s.Range.End); err != nil {
			c.log.Warn("gen %d: orientation data for %s: %v", g, s.Range, err)
		}
	}

	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.teardownLocked()
	clock := scene.NewClock(s.Range, scene.WithMultiplier(c.multiplier))
	c.main = c.newScene(state.MainViewer, clock)
	c.mainSubs = c.trackRotation(c.main, s.Frame)
	c.mu.Unlock()
	c.state.SetViewer(state.MainViewer, state.ViewerLoading)

	join, err := c.loadEphemeris(ctx, g, req)
	if err != nil {
		return err
	}

	// the formation clock follows the main clock, so it comes second
	if s.FormationVisible {
		if err := c.createFormation(g, s); err != nil {
			return err
		}
	}

	snap, err := c.awaitEphemeris(ctx, g, join)
	if err != nil {
		return err
	}
	if err := c.populateMain(ctx, g, s, snap); err != nil {
		return err
	}
	if s.FormationVisible {
		return c.populateFormation(ctx, g, snap)
	}
	return nil
}

// loadEphemeris reframes already fetched data when only the frame changed,
// and loads otherwise.
func (c *Controller) loadEphemeris(ctx context.Context, g uint64, req ReloadRequest) (*ephem.Join, error) {
	s := req.Settings
	// fetches are not cancelled; superseded results are dropped by the pipeline
	bg := context.WithoutCancel(ctx)
	if req.FrameChanged && !req.DateChanged {
		j, err := c.pipe.Reframe(bg, g, s.Frame)
		if err == nil {
			return j, nil
		}
		if !errors.Is(err, ephem.ErrNoRawData) {
			return nil, err
		}
		c.log.Debug("gen %d: no complete raw data to reframe, loading", g)
	}
	return c.pipe.Load(bg, ephem.Request{Generation: g, Range: s.Range, Frame: s.Frame}), nil
}

// entityRefresh rebuilds the main viewer's derived geometry from the loaded
// ephemeris and reconciles the formation viewer.
func (c *Controller) entityRefresh(ctx context.Context, g uint64, req ReloadRequest) error {
	s := req.Settings

	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if c.main == nil {
		c.mu.Unlock()
		return ErrNoViewer
	}
	c.main.ClearDerived()
	c.mu.Unlock()
	c.state.SetViewer(state.MainViewer, state.ViewerLoading)

	snap, err := c.awaitCurrent(ctx, g)
	if err != nil {
		return err
	}
	if err := c.populateMain(ctx, g, s, snap); err != nil {
		return err
	}
	return c.reconcileFormation(ctx, g, s, snap)
}

// formationOnly shows or hides the formation viewer. If the main viewer
// never became ready, because the Apply that built it was superseded, it is
// rebuilt as well.
func (c *Controller) formationOnly(ctx context.Context, g uint64, req ReloadRequest) error {
	if c.state.Viewer(state.MainViewer) != state.ViewerReady {
		return c.entityRefresh(ctx, g, req)
	}
	s := req.Settings
	if !s.FormationVisible {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != g {
			return ErrSuperseded
		}
		c.destroyFormationLocked()
		return nil
	}
	snap, err := c.awaitCurrent(ctx, g)
	if err != nil {
		return err
	}
	return c.reconcileFormation(ctx, g, s, snap)
}

func (c *Controller) reconcileFormation(ctx context.Context, g uint64, s Settings, snap ephem.Snapshot) error {
	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		return ErrSuperseded
	}
	exists := c.formation != nil
	if !s.FormationVisible {
		c.destroyFormationLocked()
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if exists && c.state.Viewer(state.FormationViewer) == state.ViewerReady {
		return nil
	}
	if !exists {
		if err := c.createFormation(g, s); err != nil {
			return err
		}
	}
	return c.populateFormation(ctx, g, snap)
}

// awaitCurrent waits for whichever ephemeris generation is loading.
func (c *Controller) awaitCurrent(ctx context.Context, g uint64) (ephem.Snapshot, error) {
	j := c.pipe.Current()
	if j == nil {
		return ephem.Snapshot{}, fmt.Errorf("%w: no ephemeris loaded", ErrNoViewer)
	}
	return c.awaitEphemeris(ctx, g, j)
}

// awaitEphemeris is the ephemeris join point: it returns the snapshot of j's
// generation once ready, or ErrSuperseded if anything newer took over.
func (c *Controller) awaitEphemeris(ctx context.Context, g uint64, j *ephem.Join) (ephem.Snapshot, error) {
	if err := j.Wait(ctx); err != nil {
		if errors.Is(err, ephem.ErrStaleGeneration) || !c.current(g) {
			return ephem.Snapshot{}, ErrSuperseded
		}
		var fe *ephem.FetchError
		if errors.As(err, &fe) {
			c.state.SetViewer(state.MainViewer, state.ViewerFailed)
			c.state.Record(state.Event{Type: state.EventDataUnavailable, Generation: g, Detail: err.Error()})
		}
		c.publishTracks(c.pipe.Snapshot())
		return ephem.Snapshot{}, err
	}
	snap := c.pipe.Snapshot()
	if snap.Generation != j.Generation || !snap.Ready || !c.current(g) {
		return ephem.Snapshot{}, ErrSuperseded
	}
	c.publishTracks(snap)
	for _, t := range snap.Tracks {
		if t.Degraded {
			c.state.Record(state.Event{Type: state.EventDegraded, Generation: g, Detail: t.ID + " shown untransformed where orientation data is missing"})
		}
	}
	return snap, nil
}

func (c *Controller) publishTracks(snap ephem.Snapshot) {
	out := make([]state.TrackStatus, 0, len(snap.Tracks))
	for _, t := range snap.Tracks {
		out = append(out, state.TrackStatus{ID: t.ID, Samples: t.Len(), Loaded: t.Loaded, Degraded: t.Degraded, Err: t.Err})
	}
	c.state.SetTracks(out)
}

// Tick advances the main clock by wall-clock dt. The formation clock and
// inertial model rotations follow through clock subscriptions.
func (c *Controller) Tick(dt time.Duration) {
	c.mu.Lock()
	main := c.main
	c.mu.Unlock()
	if main != nil {
		main.Clock().Tick(dt)
	}
}

// trackRotation keeps sc's model rotation at the live inertial-to-fixed
// rotation when fr is inertial. It returns the subscriptions to cancel.
func (c *Controller) trackRotation(sc scene.Scene, fr frame.Frame) []func() {
	if fr != frame.Inertial {
		sc.SetModelRotation(nil)
		return nil
	}
	clock := sc.Clock()
	sc.SetModelRotation(c.tf.LiveRotation(clock.Now()))
	return []func(){clock.OnTick(func(now time.Time) {
		sc.SetModelRotation(c.tf.LiveRotation(now))
	})}
}

// teardownLocked destroys the formation viewer, then the main viewer.
// Callers hold c.mu.
func (c *Controller) teardownLocked() {
	c.destroyFormationLocked()
	if c.main == nil {
		return
	}
	for _, cancel := range c.mainSubs {
		cancel()
	}
	c.mainSubs = nil
	c.main.Destroy()
	c.main = nil
	c.state.SetViewer(state.MainViewer, state.ViewerEmpty)
}

// Close destroys both viewers and abandons in-flight work.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelRun != nil {
		c.cancelRun()
	}
	c.gen++
	c.done = c.gen
	c.hasApplied = false
	c.pending = ReloadRequest{}
	c.teardownLocked()
}

func (c *Controller) current(g uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == g
}

// Generation returns the current generation.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Target returns the accepted settings and whether any were accepted.
func (c *Controller) Target() (Settings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.hasTarget
}

// Applied returns the settings the viewers show and whether any reload has
// succeeded.
func (c *Controller) Applied() (Settings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied, c.hasApplied
}

// Main returns the main viewer scene, or nil.
func (c *Controller) Main() scene.Scene {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.main
}

// Formation returns the formation viewer scene, or nil.
func (c *Controller) Formation() scene.Scene {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formation
}

// Pipeline returns the ephemeris pipeline.
func (c *Controller) Pipeline() *ephem.Pipeline {
	return c.pipe
}

// State returns the status manager.
func (c *Controller) State() *state.Manager {
	return c.state
}
