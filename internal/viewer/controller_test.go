package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"

	"github.com/litescript/ls-mms/internal/datasource"
	"github.com/litescript/ls-mms/internal/ephem"
	"github.com/litescript/ls-mms/internal/frame"
	"github.com/litescript/ls-mms/internal/scene"
	"github.com/litescript/ls-mms/internal/state"
)

// countingSource counts ephemeris fetches and fails the spacecraft in fail.
type countingSource struct {
	inner *datasource.Synthetic

	mu        sync.Mutex
	ephemeris int
	fail      map[string]error
}

func newCountingSource() *countingSource {
	return &countingSource{
		inner: datasource.NewSynthetic(datasource.WithStep(time.Hour)),
		fail:  make(map[string]error),
	}
}

func (s *countingSource) Fetch(ctx context.Context, q datasource.Query) ([]datasource.Row, error) {
	if q.Dataset == datasource.EphemerisDataset {
		s.mu.Lock()
		s.ephemeris++
		err := s.fail[q.Filters["sc_id"]]
		s.mu.Unlock()
		if err != nil {
			return nil, &datasource.FetchError{Dataset: q.Dataset, Err: err}
		}
	}
	return s.inner.Fetch(ctx, q)
}

func (s *countingSource) setFailure(sc string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, sc)
		return
	}
	s.fail[sc] = err
}

func (s *countingSource) ephemerisCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ephemeris
}

// heldScene is a canvas whose readiness additionally waits for hold, so a
// reload can be parked at its scene join point.
type heldScene struct {
	*scene.Canvas
	hold      <-chan struct{}
	committed chan struct{}
	once      sync.Once
}

func (h *heldScene) Commit() {
	h.Canvas.Commit()
	h.once.Do(func() { close(h.committed) })
}

func (h *heldScene) OnReady() <-chan struct{} {
	inner := h.Canvas.OnReady()
	if h.hold == nil {
		return inner
	}
	out := make(chan struct{})
	go func() {
		<-h.hold
		<-inner
		close(out)
	}()
	return out
}

type fixture struct {
	src  *countingSource
	tf   *frame.Transformer
	ctrl *Controller

	mu     sync.Mutex
	hold   <-chan struct{}
	scenes []*heldScene
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		src: newCountingSource(),
		tf:  frame.NewTransformer(frame.NewEarthOrientation(frame.WithAlwaysAvailable())),
	}
	f.ctrl = NewController(f.src, f.tf, append([]Option{WithSceneFactory(f.newScene)}, opts...)...)
	return f
}

// gatedPreloader parks the n-th Preload call until its context is done.
type gatedPreloader struct {
	n       int
	entered chan struct{}

	mu    sync.Mutex
	calls int
}

func newGatedPreloader(n int) *gatedPreloader {
	return &gatedPreloader{n: n, entered: make(chan struct{})}
}

func (p *gatedPreloader) Preload(ctx context.Context, _, _ time.Time) error {
	p.mu.Lock()
	p.calls++
	gated := p.calls == p.n
	p.mu.Unlock()
	if !gated {
		return nil
	}
	close(p.entered)
	<-ctx.Done()
	return ctx.Err()
}

func (f *fixture) newScene(name string, clock *scene.Clock) scene.Scene {
	var opts []scene.CanvasOption
	if name == state.FormationViewer {
		opts = append(opts, scene.WithoutEarth())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &heldScene{
		Canvas:    scene.NewCanvas(name, clock, opts...),
		hold:      f.hold,
		committed: make(chan struct{}),
	}
	f.scenes = append(f.scenes, s)
	return s
}

func (f *fixture) setHold(ch <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = ch
}

func (f *fixture) scene(i int) *heldScene {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.scenes) {
		return nil
	}
	return f.scenes[i]
}

// waitScene polls until the i-th created scene exists.
func (f *fixture) waitScene(i int) *heldScene {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := f.scene(i); s != nil {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func canvas(s scene.Scene) *scene.Canvas {
	return s.(*heldScene).Canvas
}

func hasEvent(events []state.Event, typ state.EventType, gen uint64) bool {
	for _, e := range events {
		if e.Type == typ && e.Generation == gen {
			return true
		}
	}
	return false
}

func TestControllerReloads(t *testing.T) {
	Convey("Given a controller over synthetic data", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		f := newFixture()
		defer f.ctrl.Close()
		base := baseSettings()

		action, err := f.ctrl.Apply(ctx, base)
		So(err, ShouldBeNil)
		So(action, ShouldEqual, ActionFullRecreate)

		Convey("The first apply builds the main viewer only", func() {
			So(f.ctrl.State().Viewer(state.MainViewer), ShouldEqual, state.ViewerReady)
			So(f.ctrl.Formation(), ShouldBeNil)
			So(f.ctrl.Generation(), ShouldEqual, 1)
			So(f.src.ephemerisCalls(), ShouldEqual, 4)

			st := canvas(f.ctrl.Main()).Stats()
			So(st.Paths, ShouldEqual, 1)
			So(st.Vertices, ShouldEqual, 24)
			So(st.Markers, ShouldEqual, 1)
			So(st.Vectors, ShouldEqual, 0)
			So(st.Ready, ShouldBeTrue)
		})

		Convey("When the same settings are applied again", func() {
			action, err := f.ctrl.Apply(ctx, base)

			Convey("Then nothing happens", func() {
				So(err, ShouldBeNil)
				So(action, ShouldEqual, ActionNoOp)
				So(f.ctrl.Generation(), ShouldEqual, 1)
			})
		})

		Convey("When a whisker dataset is selected", func() {
			main := f.ctrl.Main()
			next := base
			next.Dataset3D = "dfg_srvy_ql"
			action, err := f.ctrl.Apply(ctx, next)

			Convey("Then entities are refreshed in place without refetching", func() {
				So(err, ShouldBeNil)
				So(action, ShouldEqual, ActionEntityRefresh)
				So(f.ctrl.Main(), ShouldEqual, main)
				So(f.src.ephemerisCalls(), ShouldEqual, 4)

				vecs := canvas(main).Vectors()
				So(len(vecs), ShouldBeGreaterThan, 0)
				w := f.ctrl.State().Snapshot().Whiskers
				So(w.Parameter, ShouldEqual, "dfg_srvy_ql")
				So(w.Built, ShouldEqual, len(vecs))
				So(f.ctrl.State().Viewer(state.MainViewer), ShouldEqual, state.ViewerReady)
			})
		})

		Convey("When the frame changes", func() {
			old := f.ctrl.Main()
			next := base
			next.Frame = frame.Fixed
			action, err := f.ctrl.Apply(ctx, next)

			Convey("Then the viewers are recreated from the fetched samples", func() {
				So(err, ShouldBeNil)
				So(action, ShouldEqual, ActionFullRecreate)
				So(f.src.ephemerisCalls(), ShouldEqual, 4)
				So(f.ctrl.Pipeline().Snapshot().Frame, ShouldEqual, frame.Fixed)
				So(old.Destroyed(), ShouldBeTrue)
				So(f.ctrl.Main(), ShouldNotEqual, old)
				So(canvas(f.ctrl.Main()).ModelRotation(), ShouldBeNil)
			})
		})

		Convey("When the clock advances in the inertial frame", func() {
			f.ctrl.Tick(time.Second)
			main := f.ctrl.Main()

			Convey("Then the model rotation follows the clock", func() {
				got := canvas(main).ModelRotation()
				So(got, ShouldNotBeNil)
				want := f.tf.LiveRotation(main.Clock().Now())
				So(mat.EqualApprox(got, want, 1e-12), ShouldBeTrue)
			})
		})

		Convey("When the formation view is toggled on", func() {
			next := base
			next.FormationVisible = true
			action, err := f.ctrl.Apply(ctx, next)

			Convey("Then only the formation viewer is built", func() {
				So(err, ShouldBeNil)
				So(action, ShouldEqual, ActionFormationOnly)
				So(f.src.ephemerisCalls(), ShouldEqual, 4)

				form := f.ctrl.Formation()
				So(form, ShouldNotBeNil)
				st := canvas(form).Stats()
				So(st.Paths, ShouldEqual, 4)
				So(st.Markers, ShouldEqual, 4)
				So(f.ctrl.State().Viewer(state.FormationViewer), ShouldEqual, state.ViewerReady)

				f.ctrl.Tick(3 * time.Second)
				So(form.Clock().Now(), ShouldEqual, f.ctrl.Main().Clock().Now())
			})

			Convey("And toggled off again", func() {
				form := f.ctrl.Formation()
				action, err := f.ctrl.Apply(ctx, base)

				Convey("Then the formation viewer is destroyed", func() {
					So(err, ShouldBeNil)
					So(action, ShouldEqual, ActionFormationOnly)
					So(f.ctrl.Formation(), ShouldBeNil)
					So(form.Destroyed(), ShouldBeTrue)
					So(f.ctrl.State().Viewer(state.FormationViewer), ShouldEqual, state.ViewerEmpty)
				})
			})
		})

		Convey("When the settings are invalid", func() {
			next := base
			next.Dataset1D = "nope"
			_, err := f.ctrl.Apply(ctx, next)

			Convey("Then they are rejected without a new generation", func() {
				So(errors.Is(err, ErrInvalidSettings), ShouldBeTrue)
				So(f.ctrl.Generation(), ShouldEqual, 1)
				target, _ := f.ctrl.Target()
				So(target, ShouldResemble, base)
			})
		})
	})
}

func TestControllerFetchFailure(t *testing.T) {
	Convey("Given a source that cannot serve one spacecraft", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		f := newFixture()
		defer f.ctrl.Close()
		f.src.setFailure("mms3", errors.New("service unavailable"))

		Convey("When the first settings are applied", func() {
			_, err := f.ctrl.Apply(ctx, baseSettings())

			Convey("Then the reload fails and names the spacecraft", func() {
				var fe *ephem.FetchError
				So(errors.As(err, &fe), ShouldBeTrue)
				So(fe.Spacecraft, ShouldEqual, "mms3")
				So(f.ctrl.State().Viewer(state.MainViewer), ShouldEqual, state.ViewerFailed)

				snap := f.ctrl.State().Snapshot()
				So(hasEvent(snap.Events, state.EventDataUnavailable, 1), ShouldBeTrue)
				So(hasEvent(snap.Events, state.EventReloadFailed, 1), ShouldBeTrue)
				So(snap.LastError, ShouldNotBeNil)
				_, ok := f.ctrl.Applied()
				So(ok, ShouldBeFalse)
			})

			Convey("And the same settings are applied again once the source recovers", func() {
				f.src.setFailure("mms3", nil)
				action, err := f.ctrl.Apply(ctx, baseSettings())

				Convey("Then the reload is retried in full", func() {
					So(err, ShouldBeNil)
					So(action, ShouldEqual, ActionFullRecreate)
					So(f.src.ephemerisCalls(), ShouldEqual, 8)
					So(f.ctrl.State().Viewer(state.MainViewer), ShouldEqual, state.ViewerReady)
					applied, ok := f.ctrl.Applied()
					So(ok, ShouldBeTrue)
					So(applied, ShouldResemble, baseSettings())
				})
			})
		})
	})

	Convey("Given a loaded day and a date change that fails", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		f := newFixture()
		defer f.ctrl.Close()
		_, err := f.ctrl.Apply(ctx, baseSettings())
		So(err, ShouldBeNil)

		dated := baseSettings()
		dated.Range = day2
		f.src.setFailure("mms2", errors.New("timeout"))
		_, err = f.ctrl.Apply(ctx, dated)
		So(err, ShouldNotBeNil)

		Convey("When a whisker dataset is added after the source recovers", func() {
			f.src.setFailure("mms2", nil)
			next := dated
			next.Dataset3D = "dfg_srvy_ql"
			action, err := f.ctrl.Apply(ctx, next)

			Convey("Then the failed date is loaded rather than refreshed in place", func() {
				So(err, ShouldBeNil)
				So(action, ShouldEqual, ActionFullRecreate)
				So(f.ctrl.Pipeline().Snapshot().Range.Equal(day2), ShouldBeTrue)
				So(len(canvas(f.ctrl.Main()).Vectors()), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestControllerSupersede(t *testing.T) {
	Convey("Given a frame change parked at its scene join point", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		f := newFixture()
		defer f.ctrl.Close()
		_, err := f.ctrl.Apply(ctx, baseSettings())
		So(err, ShouldBeNil)

		hold := make(chan struct{})
		defer close(hold)
		f.setHold(hold)

		framed := baseSettings()
		framed.Frame = frame.Fixed
		errc := make(chan error, 1)
		go func() {
			_, err := f.ctrl.Apply(ctx, framed)
			errc <- err
		}()

		parked := f.waitScene(1)
		So(parked, ShouldNotBeNil)
		select {
		case <-parked.committed:
		case <-ctx.Done():
			t.Fatal("frame change never committed its scene")
		}
		f.setHold(nil)

		Convey("When a date change lands", func() {
			dated := framed
			dated.Range = day2
			action, err := f.ctrl.Apply(ctx, dated)
			So(err, ShouldBeNil)
			So(action, ShouldEqual, ActionFullRecreate)

			var frameErr error
			select {
			case frameErr = <-errc:
			case <-ctx.Done():
				t.Fatal("frame change never returned")
			}

			Convey("Then the frame change is superseded", func() {
				So(errors.Is(frameErr, ErrSuperseded), ShouldBeTrue)
				So(parked.Destroyed(), ShouldBeTrue)
				So(hasEvent(f.ctrl.State().Snapshot().Events, state.EventSuperseded, 2), ShouldBeTrue)
			})

			Convey("Then the newest settings win", func() {
				snap := f.ctrl.Pipeline().Snapshot()
				So(snap.Generation, ShouldEqual, 3)
				So(snap.Range.Equal(day2), ShouldBeTrue)
				So(snap.Frame, ShouldEqual, frame.Fixed)
				So(f.src.ephemerisCalls(), ShouldEqual, 8)

				main := f.ctrl.Main()
				So(main, ShouldNotEqual, scene.Scene(parked))
				So(f.ctrl.State().Viewer(state.MainViewer), ShouldEqual, state.ViewerReady)
				So(f.ctrl.State().Snapshot().Target.Generation, ShouldEqual, 3)

				track, ok := snap.Track("mms1")
				So(ok, ShouldBeTrue)
				paths := canvas(main).Paths()
				So(len(paths), ShouldEqual, 1)
				So(paths[0].Positions[0], ShouldResemble, track.Transformed[0].Pos)
			})
		})
	})
}

func TestControllerPreloadsOrientation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orient := frame.NewEarthOrientation()
	ctrl := NewController(newCountingSource(), frame.NewTransformer(orient), WithPreloader(orient))
	defer ctrl.Close()

	fixed := baseSettings()
	fixed.Frame = frame.Fixed
	if _, err := ctrl.Apply(ctx, fixed); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !orient.Available(day1.Start.Add(12 * time.Hour)) {
		t.Error("the loaded day should be covered")
	}
	for _, tr := range ctrl.Pipeline().Snapshot().Tracks {
		if tr.Degraded {
			t.Errorf("%s degraded despite preloaded orientation", tr.ID)
		}
	}

	// without a preloader nothing is covered and fixed-frame tracks pass through
	bare := NewController(newCountingSource(), frame.NewTransformer(frame.NewEarthOrientation()))
	defer bare.Close()
	if _, err := bare.Apply(ctx, fixed); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	snap := bare.State().Snapshot()
	if !hasEvent(snap.Events, state.EventDegraded, 1) {
		t.Error("expected a degraded event without orientation data")
	}
}

func TestControllerSupersedeBeforeTeardown(t *testing.T) {
	Convey("Given a date change parked while preloading orientation data", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		gate := newGatedPreloader(2)
		f := newFixture(WithPreloader(gate))
		defer f.ctrl.Close()
		_, err := f.ctrl.Apply(ctx, baseSettings())
		So(err, ShouldBeNil)
		first := f.ctrl.Main()

		dated := baseSettings()
		dated.Range = day2
		errc := make(chan error, 1)
		go func() {
			_, err := f.ctrl.Apply(ctx, dated)
			errc <- err
		}()
		select {
		case <-gate.entered:
		case <-ctx.Done():
			t.Fatal("date change never reached preloading")
		}

		Convey("When a dataset change for the same date lands", func() {
			next := dated
			next.Dataset3D = "dfg_srvy_ql"
			action, err := f.ctrl.Apply(ctx, next)
			So(err, ShouldBeNil)

			var datedErr error
			select {
			case datedErr = <-errc:
			case <-ctx.Done():
				t.Fatal("date change never returned")
			}

			Convey("Then the unfinished date change is carried into a full recreate", func() {
				So(errors.Is(datedErr, ErrSuperseded), ShouldBeTrue)
				So(action, ShouldEqual, ActionFullRecreate)
				So(first.Destroyed(), ShouldBeTrue)
				So(f.src.ephemerisCalls(), ShouldEqual, 8)
			})

			Convey("Then the pipeline shows the target range", func() {
				target, _ := f.ctrl.Target()
				snap := f.ctrl.Pipeline().Snapshot()
				So(snap.Range.Equal(target.Range), ShouldBeTrue)
				So(snap.Range.Equal(day2), ShouldBeTrue)
				So(f.ctrl.State().Viewer(state.MainViewer), ShouldEqual, state.ViewerReady)

				applied, ok := f.ctrl.Applied()
				So(ok, ShouldBeTrue)
				So(applied, ShouldResemble, next)
			})

			Convey("Then applying the same settings again does nothing", func() {
				action, err := f.ctrl.Apply(ctx, next)
				So(err, ShouldBeNil)
				So(action, ShouldEqual, ActionNoOp)
			})
		})
	})
}
