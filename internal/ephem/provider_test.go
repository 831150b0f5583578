package ephem

import (
	"math"
	"testing"
	"time"

	"github.com/litescript/ls-mms/internal/astro"
	"github.com/litescript/ls-mms/internal/datasource"
)

var t0 = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func testTrack() Track {
	s := []TimeSample{
		{Time: t0, Pos: astro.Vec3{X: 0}},
		{Time: t0.Add(time.Minute), Pos: astro.Vec3{X: 60}},
		{Time: t0.Add(3 * time.Minute), Pos: astro.Vec3{X: 60, Y: 120}},
	}
	return Track{ID: "mms1", Raw: s, Transformed: s}
}

func TestPositionAt(t *testing.T) {
	tr := testTrack()

	tests := []struct {
		name   string
		at     time.Time
		want   astro.Vec3
		wantOK bool
	}{
		{"first sample", t0, astro.Vec3{}, true},
		{"exact middle", t0.Add(time.Minute), astro.Vec3{X: 60}, true},
		{"interpolated", t0.Add(30 * time.Second), astro.Vec3{X: 30}, true},
		{"interpolated uneven gap", t0.Add(2 * time.Minute), astro.Vec3{X: 60, Y: 60}, true},
		{"last sample", t0.Add(3 * time.Minute), astro.Vec3{X: 60, Y: 120}, true},
		{"before start", t0.Add(-time.Second), astro.Vec3{}, false},
		{"after end", t0.Add(4 * time.Minute), astro.Vec3{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tr.PositionAt(tt.at)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Sub(tt.want).Norm() > 1e-9 {
				t.Errorf("PositionAt = %v, want %v", got, tt.want)
			}
		})
	}

	if _, ok := (Track{}).PositionAt(t0); ok {
		t.Error("empty track should have no positions")
	}
}

func TestTrackHelpers(t *testing.T) {
	tr := testTrack()
	if tr.Len() != 3 || len(tr.Positions()) != 3 {
		t.Errorf("Len = %d", tr.Len())
	}
	last, ok := tr.Last()
	if !ok || !last.Time.Equal(t0.Add(3*time.Minute)) {
		t.Errorf("Last = %+v, %v", last, ok)
	}
	if _, ok := (Track{}).Last(); ok {
		t.Error("empty track has no last sample")
	}
}

func TestSamplesFromRows(t *testing.T) {
	rows := []datasource.Row{
		{Time: t0.Add(time.Minute), Values: []string{"1", "2", "3"}},
		{Time: t0, Values: []string{"-1.5", "0", "0.25"}},
		{Time: t0.Add(2 * time.Minute), Values: []string{"1", "", "3"}},
		{Time: t0.Add(3 * time.Minute), Values: []string{"1", "2"}},
	}

	got, skipped := SamplesFromRows(rows)
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].Time.Equal(t0) {
		t.Error("samples should be sorted by time")
	}
	if math.Abs(got[0].Pos.X+1500) > 1e-9 || math.Abs(got[0].Pos.Z-250) > 1e-9 {
		t.Errorf("km not converted to m: %v", got[0].Pos)
	}
}
