package frame

import (
	"errors"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/litescript/ls-mms/internal/astro"
	"github.com/litescript/ls-mms/internal/logging"
	"github.com/litescript/ls-mms/internal/metrics"
)

// Transformer applies time-dependent frame rotations to single samples.
// Positions and direction vectors rotate identically; there is no
// translation between the two frames.
type Transformer struct {
	orient Orientation
	log    *logging.Logger

	mu     sync.Mutex
	warned map[time.Time]bool // UTC days reported as degraded
}

// TransformerOption configures a Transformer.
type TransformerOption func(*Transformer)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) TransformerOption {
	return func(t *Transformer) {
		t.log = l
	}
}

// NewTransformer creates a transformer backed by orient.
func NewTransformer(orient Orientation, opts ...TransformerOption) *Transformer {
	t := &Transformer{orient: orient, log: logging.Discard(), warned: make(map[time.Time]bool)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ToFixed rotates an inertial vector into the fixed frame at t. When
// orientation is unavailable it returns p unchanged with ErrUnavailable.
func (tf *Transformer) ToFixed(p astro.Vec3, t time.Time) (astro.Vec3, error) {
	m, err := tf.orient.Matrix(t)
	if err != nil {
		tf.unavailable(t, err)
		return p, err
	}
	return apply(m, p), nil
}

// ToInertial rotates a fixed-frame vector into the inertial frame at t.
// When orientation is unavailable it returns p unchanged with ErrUnavailable.
func (tf *Transformer) ToInertial(p astro.Vec3, t time.Time) (astro.Vec3, error) {
	m, err := tf.orient.Matrix(t)
	if err != nil {
		tf.unavailable(t, err)
		return p, err
	}
	return apply(m.T(), p), nil
}

// Rotate moves an inertial source vector into f at t.
func (tf *Transformer) Rotate(f Frame, p astro.Vec3, t time.Time) (astro.Vec3, error) {
	if f == Fixed {
		return tf.ToFixed(p, t)
	}
	return p, nil
}

// LiveRotation returns the inertial-to-fixed rotation at t, used as the model
// matrix that carries inertial geometry onto the Earth-fixed canvas at the
// current clock time. It returns the identity when orientation is
// unavailable.
func (tf *Transformer) LiveRotation(t time.Time) *mat.Dense {
	m, err := tf.orient.Matrix(t)
	if err != nil {
		return Identity()
	}
	var out mat.Dense
	out.CloneFrom(m)
	return &out
}

// unavailable reports a failed rotation. Missing orientation data is logged
// as degraded precision once per UTC day, whichever caller hits it first.
func (tf *Transformer) unavailable(t time.Time, err error) {
	if !errors.Is(err, ErrUnavailable) {
		tf.log.Error("orientation at %s: %v", t.UTC().Format(time.RFC3339), err)
		return
	}
	metrics.RecordTransformUnavailable()

	day := t.UTC().Truncate(24 * time.Hour)
	tf.mu.Lock()
	first := !tf.warned[day]
	tf.warned[day] = true
	tf.mu.Unlock()
	if first {
		tf.log.Warn("degraded precision: no orientation data for %s, samples pass through unrotated", day.Format("2006-01-02"))
		return
	}
	tf.log.Debug("orientation unavailable at %s", t.UTC().Format(time.RFC3339))
}

func apply(m mat.Matrix, p astro.Vec3) astro.Vec3 {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, p.Array()))
	return astro.Vec3{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
