package datasource

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/litescript/ls-mms/internal/astro"
	"github.com/litescript/ls-mms/internal/logging"
	"github.com/litescript/ls-mms/internal/metrics"
)

// DefaultStep is the synthetic sample spacing: 2880 samples per day.
const DefaultStep = 30 * time.Second

// Orbit constants for the synthetic constellation, in kilometers.
const (
	earthRadiusKm = astro.EarthRadius / astro.MetersPerKm
	muEarth       = 398600.4418 // km^3/s^2
	perigeeRe     = 1.2
	apogeeRe      = 12.0
	inclination   = 28 * math.Pi / 180
	dipoleNT      = 31000.0
)

// orbitEpoch is the perigee passage the synthetic mean anomaly counts from.
var orbitEpoch = time.Date(2015, 9, 1, 0, 0, 0, 0, time.UTC)

// formation offsets in km place the four spacecraft on a tetrahedron.
var formation = map[string]astro.Vec3{
	"mms1": {},
	"mms2": {X: 10},
	"mms3": {X: 5, Y: 8.66},
	"mms4": {X: 5, Y: 2.89, Z: 8.16},
}

// Synthetic generates deterministic MMS-like datasets. It serves the
// ephemeris dataset and every catalog parameter for mms1..mms4.
type Synthetic struct {
	step    time.Duration
	latency time.Duration
	fail    map[string]error
	log     *logging.Logger
}

// SyntheticOption configures a Synthetic source.
type SyntheticOption func(*Synthetic)

// WithStep sets the sample spacing.
func WithStep(d time.Duration) SyntheticOption {
	return func(s *Synthetic) {
		if d > 0 {
			s.step = d
		}
	}
}

// WithLatency delays every fetch, honoring context cancellation.
func WithLatency(d time.Duration) SyntheticOption {
	return func(s *Synthetic) {
		s.latency = d
	}
}

// WithFailure makes fetches of dataset fail with err.
func WithFailure(dataset string, err error) SyntheticOption {
	return func(s *Synthetic) {
		s.fail[dataset] = err
	}
}

// WithSyntheticLogger sets the logger.
func WithSyntheticLogger(l *logging.Logger) SyntheticOption {
	return func(s *Synthetic) {
		s.log = l
	}
}

// NewSynthetic creates a synthetic source.
func NewSynthetic(opts ...SyntheticOption) *Synthetic {
	s := &Synthetic{
		step: DefaultStep,
		fail: make(map[string]error),
		log:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch implements Source.
func (s *Synthetic) Fetch(ctx context.Context, q Query) ([]Row, error) {
	start := time.Now()
	rows, err := s.fetch(ctx, q)
	metrics.RecordFetch(q.Dataset, err, time.Since(start))
	if err != nil {
		return nil, fetchErr(q.Dataset, err)
	}
	s.log.Debug("%s: generated %d rows for %s", q.Dataset, len(rows), q.Range)
	return rows, nil
}

func (s *Synthetic) fetch(ctx context.Context, q Query) ([]Row, error) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.fail[q.Dataset]; ok {
		return nil, err
	}
	if !q.Range.End.After(q.Range.Start) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRange, q.Range)
	}

	gen, err := s.generator(q)
	if err != nil {
		return nil, err
	}

	first := q.Range.Start.Truncate(s.step)
	if first.Before(q.Range.Start) {
		first = first.Add(s.step)
	}
	var rows []Row
	i := 0
	for t := first; t.Before(q.Range.End); t = t.Add(s.step) {
		vals, err := gen(t, i)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{Time: t, Values: vals})
		i++
	}
	return rows, nil
}

type rowFunc func(t time.Time, i int) ([]string, error)

func (s *Synthetic) generator(q Query) (rowFunc, error) {
	if q.Dataset == EphemerisDataset {
		sc := q.Filters["sc_id"]
		if _, ok := formation[sc]; !ok {
			return nil, fmt.Errorf("%w: sc_id=%q", ErrNotFound, sc)
		}
		return project(q.Fields, func(t time.Time, _ int) map[string]string {
			p := OrbitPosition(sc, t)
			return map[string]string{
				"sc_id": sc,
				"x":     formatKm(p.X),
				"y":     formatKm(p.Y),
				"z":     formatKm(p.Z),
			}
		}), nil
	}

	sc, paramID, ok := strings.Cut(q.Dataset, "_")
	if _, known := formation[sc]; !ok || !known {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, q.Dataset)
	}
	param, found, err := LookupParameter(paramID)
	if err != nil || !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, q.Dataset)
	}

	return project(q.Fields, func(t time.Time, i int) map[string]string {
		return parameterValues(param, sc, t, i)
	}), nil
}

func project(fields []string, values func(time.Time, int) map[string]string) rowFunc {
	return func(t time.Time, i int) ([]string, error) {
		all := values(t, i)
		out := make([]string, len(fields))
		for k, f := range fields {
			v, ok := all[f]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
			}
			out[k] = v
		}
		return out, nil
	}
}

// OrbitPosition returns the synthetic inertial position of sc at t, in km.
// All four spacecraft share one 1.2 x 12 Re orbit inclined 28 degrees, offset
// by a 10 km tetrahedron.
func OrbitPosition(sc string, t time.Time) astro.Vec3 {
	a := (perigeeRe + apogeeRe) / 2 * earthRadiusKm
	e := (apogeeRe - perigeeRe) / (apogeeRe + perigeeRe)
	n := math.Sqrt(muEarth / (a * a * a))

	m := math.Mod(n*t.Sub(orbitEpoch).Seconds(), 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}
	// Newton from pi converges for any eccentricity below one
	ea := math.Pi
	for k := 0; k < 50; k++ {
		d := (ea - e*math.Sin(ea) - m) / (1 - e*math.Cos(ea))
		ea -= d
		if math.Abs(d) < 1e-12 {
			break
		}
	}

	// perifocal coordinates, then tilt about the line of nodes
	xp := a * (math.Cos(ea) - e)
	yp := a * math.Sqrt(1-e*e) * math.Sin(ea)
	p := astro.Vec3{
		X: xp,
		Y: yp * math.Cos(inclination),
		Z: yp * math.Sin(inclination),
	}
	return p.Add(formation[sc])
}

func parameterValues(p Parameter, sc string, t time.Time, i int) map[string]string {
	pos := OrbitPosition(sc, t)
	r := pos.Norm() / earthRadiusKm
	phase := 2 * math.Pi * float64(t.Unix()%10800) / 10800

	switch p.ID {
	case "dfg_srvy_ql":
		b := dipoleField(pos)
		return map[string]string{"Bx": formatVal(b.X), "By": formatVal(b.Y), "Bz": formatVal(b.Z)}
	case "fpi_fast_ql_des_bulkv_dbcs":
		v := astro.Vec3{
			X: 120 * math.Sin(phase),
			Y: 80 * math.Cos(phase),
			Z: 30 * math.Sin(2*phase),
		}.Scale(1 + 1/r)
		return map[string]string{"Vx": formatVal(v.X), "Vy": formatVal(v.Y), "Vz": formatVal(v.Z)}
	}

	// scalar moments have periodic telemetry gaps
	if i%97 == 96 {
		return map[string]string{p.Fields[0]: ""}
	}
	var v float64
	switch p.ID {
	case "fpi_fast_ql_des":
		v = 0.5 + 20/(r*r) + 0.2*math.Sin(phase)
	case "hpca_srvy_l1b_moments":
		v = 300 + 900*math.Sqrt(r)/math.Sqrt(apogeeRe) + 50*math.Cos(phase)
	default:
		v = 0.2 + 8/(r*r) + 0.1*math.Cos(phase)
	}
	return map[string]string{p.Fields[0]: formatVal(v)}
}

// dipoleField is a centered, anti-aligned dipole in nT at pos (km).
func dipoleField(pos astro.Vec3) astro.Vec3 {
	r := pos.Norm()
	if r == 0 {
		return astro.Vec3{}
	}
	rhat := pos.Scale(1 / r)
	m := astro.Vec3{Z: -1}
	k := dipoleNT * math.Pow(earthRadiusKm/r, 3)
	return rhat.Scale(3 * m.Dot(rhat)).Sub(m).Scale(k)
}

func formatKm(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func formatVal(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
