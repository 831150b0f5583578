// Package whisker turns 3-component measurements into vector glyphs anchored
// on a spacecraft track.
package whisker

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/litescript/ls-mms/internal/astro"
	"github.com/litescript/ls-mms/internal/colors"
	"github.com/litescript/ls-mms/internal/datasource"
	"github.com/litescript/ls-mms/internal/frame"
	"github.com/litescript/ls-mms/internal/logging"
	"github.com/litescript/ls-mms/internal/metrics"
)

// LengthScale is the rendered length, in meters, of the largest whisker.
const LengthScale = 1e7

// Sample is one measurement in instrument units.
type Sample struct {
	Time  time.Time
	Value astro.Vec3
}

// Vector is a whisker ready to draw: a segment from Origin to End().
type Vector struct {
	Time      time.Time
	Origin    astro.Vec3
	Direction astro.Vec3 // unit vector; zero for a zero measurement
	Magnitude float64    // after prescale
	Length    float64    // meters
	Color     colors.RGBA
}

// End returns the tip of the whisker.
func (v Vector) End() astro.Vec3 {
	return v.Origin.Add(v.Direction.Scale(v.Length))
}

// Report counts what happened to the samples of one build.
type Report struct {
	Total   int
	Built   int
	Dropped int // no track position at the sample time
	Skipped int // frame rotation unavailable
	MinMag  float64
	MaxMag  float64
}

func (r Report) String() string {
	return fmt.Sprintf("%d/%d built, %d dropped, %d skipped, |v| %.3g..%.3g",
		r.Built, r.Total, r.Dropped, r.Skipped, r.MinMag, r.MaxMag)
}

// Locator gives the anchor position of a whisker at an instant.
type Locator interface {
	PositionAt(t time.Time) (astro.Vec3, bool)
}

// Prescale compresses a measurement's dynamic range: v * log10(|v|+1)/|v|.
// The zero vector stays zero.
func Prescale(v astro.Vec3) astro.Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(math.Log10(n+1) / n)
}

// RenderedLength maps a magnitude in [lo, hi] onto [0, LengthScale]. A zero
// magnitude has zero length. When lo == hi every non-zero magnitude gets the
// full LengthScale.
func RenderedLength(mag, lo, hi float64) float64 {
	if mag == 0 {
		return 0
	}
	if hi == lo {
		return LengthScale
	}
	return (mag - lo) / (hi - lo) * LengthScale
}

// Lengths applies RenderedLength over a whole magnitude series.
func Lengths(mags []float64) []float64 {
	out := make([]float64, len(mags))
	lo, hi, ok := colors.Range(mags)
	if !ok {
		return out
	}
	for i, m := range mags {
		out[i] = RenderedLength(m, lo, hi)
	}
	return out
}

// SamplesFromRows parses three-value rows into samples sorted by time. Rows
// with absent or unparsable cells are skipped and counted.
func SamplesFromRows(rows []datasource.Row) ([]Sample, int) {
	out := make([]Sample, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		if len(r.Values) < 3 {
			skipped++
			continue
		}
		var xyz [3]float64
		ok := true
		for i := 0; i < 3; i++ {
			f, err := strconv.ParseFloat(strings.TrimSpace(r.Values[i]), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				ok = false
				break
			}
			xyz[i] = f
		}
		if !ok {
			skipped++
			continue
		}
		out = append(out, Sample{Time: r.Time, Value: astro.Vec3FromSlice(xyz[:])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, skipped
}

// Builder builds whiskers for one frame.
type Builder struct {
	tf  *frame.Transformer
	log *logging.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Builder) {
		b.log = l
	}
}

// NewBuilder creates a builder rotating with tf.
func NewBuilder(tf *frame.Transformer, opts ...Option) *Builder {
	b := &Builder{tf: tf, log: logging.Discard()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build prescales samples, colors them by magnitude over the whole series and
// anchors each on track. Samples without an anchor are dropped. In the
// inertial frame the anchor and direction are rotated with the orientation
// at the sample's own time; samples without orientation data are skipped.
func (b *Builder) Build(samples []Sample, fr frame.Frame, track Locator, palette colors.Palette) ([]Vector, Report) {
	rep := Report{Total: len(samples)}

	scaled := make([]astro.Vec3, len(samples))
	mags := make([]float64, len(samples))
	for i, s := range samples {
		scaled[i] = Prescale(s.Value)
		mags[i] = scaled[i].Norm()
	}
	lo, hi, _ := colors.Range(mags)
	rep.MinMag, rep.MaxMag = lo, hi
	cols := colors.Interpolate(mags, palette, colors.Gray(colors.WhiskerAlpha))

	out := make([]Vector, 0, len(samples))
	for i, s := range samples {
		origin, ok := track.PositionAt(s.Time)
		if !ok {
			rep.Dropped++
			continue
		}
		dir := scaled[i]
		if fr == frame.Inertial {
			var err error
			if origin, dir, err = b.rotate(origin, dir, s.Time); err != nil {
				if !errors.Is(err, frame.ErrUnavailable) {
					b.log.Error("whisker at %s: %v", s.Time.UTC().Format(time.RFC3339), err)
				}
				rep.Skipped++
				continue
			}
		}
		out = append(out, Vector{
			Time:      s.Time,
			Origin:    origin,
			Direction: dir.Normalized(),
			Magnitude: mags[i],
			Length:    RenderedLength(mags[i], lo, hi),
			Color:     cols[i],
		})
	}
	rep.Built = len(out)

	metrics.RecordWhiskers(rep.Built, rep.Dropped, rep.Skipped)
	if rep.Skipped > 0 {
		b.log.Warn("whiskers: %d samples skipped without orientation data", rep.Skipped)
	}
	b.log.Debug("whiskers: %s", rep)
	return out, rep
}

func (b *Builder) rotate(origin, dir astro.Vec3, t time.Time) (astro.Vec3, astro.Vec3, error) {
	o, err := b.tf.ToInertial(origin, t)
	if err != nil {
		return origin, dir, err
	}
	d, err := b.tf.ToInertial(dir, t)
	if err != nil {
		return origin, dir, err
	}
	return o, d, nil
}
