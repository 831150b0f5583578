package scene

import (
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/litescript/ls-mms/internal/astro"
	"github.com/litescript/ls-mms/internal/colors"
	"github.com/litescript/ls-mms/internal/datasource"
)

var day = datasource.DayRange(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))

func TestClockTickAndLoop(t *testing.T) {
	c := NewClock(day)
	if !c.Now().Equal(day.Start) {
		t.Fatalf("clock should start at range start, got %v", c.Now())
	}

	tests := []struct {
		name string
		dt   time.Duration
		want time.Time
	}{
		{"one second is multiplier seconds", time.Second, day.Start.Add(2000 * time.Second)},
		{"another second", time.Second, day.Start.Add(4000 * time.Second)},
		// 4000s + 86400s wraps to 4000s
		{"full day loops", 43200 * time.Millisecond, day.Start.Add(4000 * time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Tick(tt.dt); !got.Equal(tt.want) {
				t.Errorf("Tick = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClockOnTick(t *testing.T) {
	c := NewClock(day, WithMultiplier(60))
	var got []time.Time
	cancel := c.OnTick(func(now time.Time) { got = append(got, now) })

	c.Tick(time.Second)
	cancel()
	cancel()
	c.Tick(time.Second)

	if len(got) != 1 || !got[0].Equal(day.Start.Add(time.Minute)) {
		t.Errorf("ticks = %v", got)
	}
}

func TestClockFollow(t *testing.T) {
	main := NewClock(day, WithMultiplier(10))
	main.SetTime(day.Start.Add(time.Hour))

	other := NewClock(datasource.DayRange(day.Start.AddDate(0, 0, -5)))
	stop := other.Follow(main)

	if !other.Now().Equal(main.Now()) || !other.Range().Equal(day) || other.Multiplier() != 10 {
		t.Fatalf("follower not synced: now=%v range=%v", other.Now(), other.Range())
	}

	main.Tick(time.Second)
	if !other.Now().Equal(main.Now()) {
		t.Errorf("follower = %v, main = %v", other.Now(), main.Now())
	}

	stop()
	main.Tick(time.Second)
	if other.Now().Equal(main.Now()) {
		t.Error("detached follower should not move")
	}
}

func TestCanvasReadiness(t *testing.T) {
	c := NewCanvas("main", NewClock(day))

	select {
	case <-c.OnReady():
		t.Fatal("empty scene should not be ready before commit")
	default:
	}

	c.AddPath([]astro.Vec3{{X: 7e7}, {Y: 7e7}}, nil)
	c.AddVector(astro.Vec3{X: 7e7}, astro.Vec3{Y: 1e7}, colors.Gray(colors.WhiskerAlpha))
	c.Commit()
	waitReady(t, c.OnReady())

	s := c.Stats()
	if s.Paths != 1 || s.Vertices != 2 || s.Vectors != 1 || !s.Ready {
		t.Errorf("stats = %+v", s)
	}

	c.ClearDerived()
	if s := c.Stats(); s.Paths != 0 || s.Vectors != 0 || s.Ready {
		t.Errorf("after clear = %+v", s)
	}
	c.Commit()
	waitReady(t, c.OnReady())
}

func TestCanvasDestroy(t *testing.T) {
	c := NewCanvas("formation", NewClock(day))
	c.Destroy()
	c.AddPath([]astro.Vec3{{X: 1}}, nil)
	c.Commit()

	if !c.Destroyed() || c.Stats().Paths != 0 {
		t.Error("destroyed scene should ignore geometry")
	}
	select {
	case <-c.OnReady():
		t.Error("destroyed scene should never become ready")
	case <-time.After(20 * time.Millisecond):
	}
}

type still astro.Vec3

func (s still) PositionAt(time.Time) (astro.Vec3, bool) { return astro.Vec3(s), true }

func TestCanvasRender(t *testing.T) {
	c := NewCanvas("main", NewClock(day))
	c.AddPath([]astro.Vec3{{X: 5 * astro.EarthRadius}, {X: -5 * astro.EarthRadius}}, nil)
	c.AddMarker("mms1", still{X: 5 * astro.EarthRadius}, colors.Gray(1))
	c.SetCamera(astro.Vec3{X: 5 * astro.EarthRadius})
	c.Commit()
	waitReady(t, c.OnReady())

	out := c.Render(View{Width: 60, Height: 20})
	for _, want := range []string{"⊕", "◆", "mms1", "main"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q", want)
		}
	}

	if got := c.Render(View{Width: 4, Height: 2}); !strings.Contains(got, "too small") {
		t.Errorf("tiny render = %q", got)
	}
}

func TestCanvasModelRotationIsCopied(t *testing.T) {
	c := NewCanvas("main", NewClock(day))
	m := mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	c.SetModelRotation(m)
	m.Set(0, 0, 5)

	if got := c.ModelRotation(); got.At(0, 0) != 0 || got.At(1, 0) != 1 {
		t.Errorf("rotation = %v", mat.Formatted(got))
	}
	c.SetModelRotation(nil)
	if c.ModelRotation() != nil {
		t.Error("nil should clear the rotation")
	}
}

func waitReady(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("scene never became ready")
	}
}
