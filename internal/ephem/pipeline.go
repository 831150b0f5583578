package ephem

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/litescript/ls-mms/internal/datasource"
	"github.com/litescript/ls-mms/internal/frame"
	"github.com/litescript/ls-mms/internal/logging"
	"github.com/litescript/ls-mms/internal/metrics"
)

// Request describes one generation's ephemeris load.
type Request struct {
	Generation uint64
	Range      datasource.TimeRange
	Frame      frame.Frame
}

// Snapshot is a consistent copy of the pipeline state.
type Snapshot struct {
	Generation uint64
	Range      datasource.TimeRange
	Frame      frame.Frame
	Ready      bool
	Tracks     []Track // in spacecraft order
}

// Track returns the track for id.
func (s Snapshot) Track(id string) (Track, bool) {
	for _, t := range s.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

// Join is the completion handle for one generation's load or reframe.
type Join struct {
	Generation uint64

	ready     chan struct{}
	done      chan struct{}
	once      sync.Once
	err       error
	remaining int // guarded by Pipeline.mu
}

func newJoin(gen uint64, n int) *Join {
	return &Join{
		Generation: gen,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		remaining:  n,
	}
}

func (j *Join) finish(err error) {
	j.once.Do(func() {
		j.err = err
		if err == nil {
			close(j.ready)
		}
		close(j.done)
	})
}

// Ready is closed once, when every track of the generation has loaded. It is
// never closed for a failed or superseded generation.
func (j *Join) Ready() <-chan struct{} {
	return j.ready
}

// Done is closed when the generation is ready, failed or superseded.
func (j *Join) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the join completes or ctx ends. It returns nil when
// ready, a *FetchError when a track failed, and ErrStaleGeneration when a
// newer generation took over.
func (j *Join) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pipeline fetches ephemerides for the constellation and keeps the tracks of
// the current generation. Fetches run concurrently; frame transforms run one
// at a time. Results from superseded generations are discarded when they
// arrive.
type Pipeline struct {
	src        datasource.Source
	tf         *frame.Transformer
	spacecraft []string
	log        *logging.Logger

	transformMu sync.Mutex

	mu     sync.RWMutex
	gen    uint64
	rng    datasource.TimeRange
	fr     frame.Frame
	tracks map[string]Track
	join   *Join
	ready  bool
	subs   []func(Snapshot)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSpacecraft sets the spacecraft ids to load.
func WithSpacecraft(ids ...string) Option {
	return func(p *Pipeline) {
		if len(ids) > 0 {
			p.spacecraft = append([]string(nil), ids...)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// NewPipeline creates a pipeline reading from src.
func NewPipeline(src datasource.Source, tf *frame.Transformer, opts ...Option) *Pipeline {
	p := &Pipeline{
		src:        src,
		tf:         tf,
		spacecraft: append([]string(nil), datasource.Spacecraft...),
		log:        logging.Discard(),
		tracks:     make(map[string]Track),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Spacecraft returns the configured spacecraft ids.
func (p *Pipeline) Spacecraft() []string {
	return append([]string(nil), p.spacecraft...)
}

// Load starts fetching every track for req. Generations must increase; a
// request at or below the current generation returns a join that has
// already finished with ErrStaleGeneration.
func (p *Pipeline) Load(ctx context.Context, req Request) *Join {
	p.mu.Lock()
	if req.Generation <= p.gen {
		p.mu.Unlock()
		return staleJoin(req.Generation)
	}
	j := p.begin(req.Generation, req.Range, req.Frame)
	for _, id := range p.spacecraft {
		p.tracks[id] = Track{ID: id, Frame: req.Frame, Generation: req.Generation}
	}
	p.mu.Unlock()

	p.log.Debug("gen %d: loading %d tracks for %s in %s frame", req.Generation, len(p.spacecraft), req.Range, req.Frame)
	for _, id := range p.spacecraft {
		go p.fetchTrack(ctx, req, id, j)
	}
	return j
}

// Reframe re-transforms the already fetched samples of the current range
// into fr without fetching. It returns ErrNoRawData, leaving the pipeline
// unchanged, if any track has no fetched samples.
func (p *Pipeline) Reframe(ctx context.Context, gen uint64, fr frame.Frame) (*Join, error) {
	p.mu.Lock()
	if gen <= p.gen {
		p.mu.Unlock()
		return nil, ErrStaleGeneration
	}
	raws := make(map[string][]TimeSample, len(p.spacecraft))
	for _, id := range p.spacecraft {
		t, ok := p.tracks[id]
		if !ok || t.Raw == nil {
			p.mu.Unlock()
			return nil, ErrNoRawData
		}
		raws[id] = t.Raw
	}
	j := p.begin(gen, p.rng, fr)
	for _, id := range p.spacecraft {
		t := p.tracks[id]
		t.Loaded = false
		t.Generation = gen
		p.tracks[id] = t
	}
	p.mu.Unlock()

	p.log.Debug("gen %d: reframing %d tracks to %s", gen, len(raws), fr)
	for id, raw := range raws {
		go func(id string, raw []TimeSample) {
			if err := ctx.Err(); err != nil {
				p.fail(j, id, err)
				return
			}
			p.transformAndCommit(j, id, raw, fr)
		}(id, raw)
	}
	return j, nil
}

// begin supersedes the current join and installs a new generation. Callers
// hold p.mu.
func (p *Pipeline) begin(gen uint64, rng datasource.TimeRange, fr frame.Frame) *Join {
	if p.join != nil {
		p.join.finish(ErrStaleGeneration)
	}
	p.gen = gen
	p.rng = rng
	p.fr = fr
	p.ready = false
	p.join = newJoin(gen, len(p.spacecraft))
	return p.join
}

func (p *Pipeline) fetchTrack(ctx context.Context, req Request, id string, j *Join) {
	rows, err := p.src.Fetch(ctx, datasource.Query{
		Dataset: datasource.EphemerisDataset,
		Range:   req.Range,
		Fields:  datasource.EphemerisFields,
		Filters: map[string]string{"sc_id": id},
	})
	if err != nil {
		p.fail(j, id, err)
		return
	}

	raw, skipped := SamplesFromRows(rows)
	if skipped > 0 {
		p.log.Warn("%s: skipped %d incomplete ephemeris rows", id, skipped)
	}
	if !p.current(j.Generation) {
		p.discard(j.Generation, id)
		return
	}
	p.transformAndCommit(j, id, raw, req.Frame)
}

func (p *Pipeline) transformAndCommit(j *Join, id string, raw []TimeSample, fr frame.Frame) {
	p.transformMu.Lock()
	out, degraded := p.transform(raw, fr)
	p.transformMu.Unlock()

	p.commit(j, Track{
		ID:          id,
		Raw:         raw,
		Transformed: out,
		Frame:       fr,
		Generation:  j.Generation,
		Loaded:      true,
		Degraded:    degraded,
	})
}

// transform rotates each sample with the orientation at its own time.
// Samples without orientation data pass through unchanged.
func (p *Pipeline) transform(raw []TimeSample, fr frame.Frame) ([]TimeSample, bool) {
	out := make([]TimeSample, len(raw))
	degraded := false
	for i, s := range raw {
		pos, err := p.tf.Rotate(fr, s.Pos, s.Time)
		if err != nil {
			if !errors.Is(err, frame.ErrUnavailable) {
				p.log.Error("transform %s: %v", s.Time.Format(time.RFC3339), err)
			}
			degraded = true
		}
		out[i] = TimeSample{Time: s.Time, Pos: pos}
	}
	return out, degraded
}

func (p *Pipeline) commit(j *Join, t Track) {
	p.mu.Lock()
	if p.gen != j.Generation {
		p.mu.Unlock()
		p.discard(j.Generation, t.ID)
		return
	}
	p.tracks[t.ID] = t
	j.remaining--
	fire := j.remaining == 0 && !p.ready
	var subs []func(Snapshot)
	var snap Snapshot
	if fire {
		p.ready = true
		subs = append(subs, p.subs...)
		snap = p.snapshotLocked()
		j.finish(nil)
	}
	p.mu.Unlock()

	if t.Degraded {
		metrics.RecordTrackDegraded()
		p.log.Warn("%s: orientation data unavailable for part of %s; samples shown untransformed", t.ID, t.Frame)
	}
	if !fire {
		return
	}

	metrics.RecordEphemerisReady()
	p.log.Info("gen %d: ephemeris ready (%d tracks, %s)", j.Generation, len(snap.Tracks), snap.Frame)
	for _, fn := range subs {
		fn(snap)
	}
}

func (p *Pipeline) fail(j *Join, id string, err error) {
	p.mu.Lock()
	if p.gen != j.Generation {
		p.mu.Unlock()
		p.discard(j.Generation, id)
		return
	}
	t := p.tracks[id]
	t.Loaded = false
	t.Err = err
	p.tracks[id] = t
	p.mu.Unlock()

	p.log.Error("gen %d: %s ephemeris unavailable: %v", j.Generation, id, err)
	j.finish(&FetchError{Spacecraft: id, Err: err})
}

func (p *Pipeline) current(gen uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gen == gen
}

func (p *Pipeline) discard(gen uint64, id string) {
	metrics.RecordStaleGeneration("pipeline")
	p.log.Debug("gen %d: dropping superseded result for %s", gen, id)
}

// OnReady registers fn to run each time a generation becomes ready. If the
// current generation is already ready, fn runs immediately.
func (p *Pipeline) OnReady(fn func(Snapshot)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	ready := p.ready
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if ready {
		fn(snap)
	}
}

// Current returns the join of the current generation, or nil before the
// first load.
func (p *Pipeline) Current() *Join {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.join
}

// Ready reports whether the current generation is fully loaded.
func (p *Pipeline) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// Generation returns the current generation.
func (p *Pipeline) Generation() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gen
}

// Snapshot returns a copy of the current state.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Pipeline) snapshotLocked() Snapshot {
	s := Snapshot{
		Generation: p.gen,
		Range:      p.rng,
		Frame:      p.fr,
		Ready:      p.ready,
		Tracks:     make([]Track, 0, len(p.spacecraft)),
	}
	for _, id := range p.spacecraft {
		if t, ok := p.tracks[id]; ok {
			s.Tracks = append(s.Tracks, t)
		}
	}
	return s
}

func staleJoin(gen uint64) *Join {
	j := newJoin(gen, 0)
	j.finish(ErrStaleGeneration)
	return j
}
