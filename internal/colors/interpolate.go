package colors

import (
	"math"
	"strconv"
	"strings"
)

// Interpolate maps each value of series onto palette by its position in the
// series' finite range. Absent values (NaN or Inf) get gray. If the series has
// no finite values, or all finite values are equal, every entry gets gray.
// The result always has len(series) entries.
func Interpolate(series []float64, palette Palette, gray RGBA) []RGBA {
	out := make([]RGBA, len(series))

	lo, hi, ok := Range(series)
	if !ok || lo == hi || len(palette) == 0 {
		for i := range out {
			out[i] = gray
		}
		return out
	}

	// halve everything when the span overflows, e.g. lo=-MaxFloat64,
	// hi=MaxFloat64
	scale := 1.0
	if math.IsInf(hi-lo, 0) {
		scale = 0.5
	}
	span := hi*scale - lo*scale

	last := float64(len(palette) - 1)
	for i, x := range series {
		if !finite(x) {
			out[i] = gray
			continue
		}
		idx := (x*scale - lo*scale) / span * last
		if math.IsNaN(idx) {
			out[i] = gray
			continue
		}
		idx = math.Min(math.Max(idx, 0), last)
		floor := math.Floor(idx)
		if idx == floor {
			out[i] = palette[int(idx)]
			continue
		}
		ceil := math.Ceil(idx)
		out[i] = lerp(palette[int(floor)], palette[int(ceil)], idx-floor)
	}
	return out
}

// Range returns the minimum and maximum finite values of series. ok is false
// when the series has no finite values.
func Range(series []float64) (lo, hi float64, ok bool) {
	for _, x := range series {
		if !finite(x) {
			continue
		}
		if !ok {
			lo, hi, ok = x, x, true
			continue
		}
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi, ok
}

// ParseSeries converts data cells to a series. Empty or unparsable cells
// become NaN.
func ParseSeries(cells []string) []float64 {
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}

// PadSeries returns series extended with NaN to length n. Longer series are
// truncated so the result always lines up with an n-sample track.
func PadSeries(series []float64, n int) []float64 {
	if n < 0 {
		n = 0
	}
	out := make([]float64, n)
	copied := copy(out, series)
	for i := copied; i < n; i++ {
		out[i] = math.NaN()
	}
	return out
}
