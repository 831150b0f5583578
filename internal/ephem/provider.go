// Package ephem loads spacecraft ephemerides and transforms them into the
// selected reference frame.
package ephem

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/litescript/ls-mms/internal/astro"
	"github.com/litescript/ls-mms/internal/datasource"
	"github.com/litescript/ls-mms/internal/frame"
)

// TimeSample is one position at one instant, in meters.
type TimeSample struct {
	Time time.Time
	Pos  astro.Vec3
}

// Track is one spacecraft's ephemeris for a generation. Sample slices are
// never modified after the track is committed, so copies may share them.
type Track struct {
	ID          string
	Raw         []TimeSample // inertial, as fetched
	Transformed []TimeSample // in Frame
	Frame       frame.Frame
	Generation  uint64
	Loaded      bool
	Degraded    bool  // at least one sample passed through untransformed
	Err         error // set when the fetch failed
}

// Len returns the number of transformed samples.
func (t Track) Len() int {
	return len(t.Transformed)
}

// Positions returns the transformed positions in time order.
func (t Track) Positions() []astro.Vec3 {
	out := make([]astro.Vec3, len(t.Transformed))
	for i, s := range t.Transformed {
		out[i] = s.Pos
	}
	return out
}

// Last returns the final transformed sample.
func (t Track) Last() (TimeSample, bool) {
	if len(t.Transformed) == 0 {
		return TimeSample{}, false
	}
	return t.Transformed[len(t.Transformed)-1], true
}

// PositionAt returns the transformed position at at, interpolating linearly
// between bracketing samples. ok is false outside the track's time span.
func (t Track) PositionAt(at time.Time) (astro.Vec3, bool) {
	return positionAt(t.Transformed, at)
}

// RawPositionAt is PositionAt over the inertial samples.
func (t Track) RawPositionAt(at time.Time) (astro.Vec3, bool) {
	return positionAt(t.Raw, at)
}

func positionAt(s []TimeSample, at time.Time) (astro.Vec3, bool) {
	n := len(s)
	i := sort.Search(n, func(i int) bool { return !s[i].Time.Before(at) })
	if i < n && s[i].Time.Equal(at) {
		return s[i].Pos, true
	}
	if i == 0 || i == n {
		return astro.Vec3{}, false
	}
	lo, hi := s[i-1], s[i]
	f := float64(at.Sub(lo.Time)) / float64(hi.Time.Sub(lo.Time))
	return lo.Pos.Lerp(hi.Pos, f), true
}

// SamplesFromRows converts x,y,z kilometer rows into meter samples sorted by
// time. Rows with absent or unparsable cells are skipped and counted.
func SamplesFromRows(rows []datasource.Row) ([]TimeSample, int) {
	out := make([]TimeSample, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		v, err := parseVec(r.Values)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, TimeSample{Time: r.Time, Pos: astro.KmToMeters(v)})
	}
	if !sort.SliceIsSorted(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) }) {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	}
	return out, skipped
}

func parseVec(cells []string) (astro.Vec3, error) {
	if len(cells) < 3 {
		return astro.Vec3{}, fmt.Errorf("want 3 cells, got %d", len(cells))
	}
	var xyz [3]float64
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(cells[i]), 64)
		if err != nil {
			return astro.Vec3{}, err
		}
		xyz[i] = f
	}
	return astro.Vec3FromSlice(xyz[:]), nil
}
