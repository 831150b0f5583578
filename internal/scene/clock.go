package scene

import (
	"sync"
	"time"

	"github.com/litescript/ls-mms/internal/datasource"
)

// DefaultMultiplier is the simulated seconds per wall-clock second.
const DefaultMultiplier = 2000

// Clock is a simulation clock over a time range. It loops back to the start
// when it passes the stop time.
type Clock struct {
	mu         sync.Mutex
	start      time.Time
	stop       time.Time
	now        time.Time
	multiplier float64
	subs       map[int]func(time.Time)
	nextID     int
}

// ClockOption configures a Clock.
type ClockOption func(*Clock)

// WithMultiplier sets the clock rate. Non-positive values are ignored.
func WithMultiplier(m float64) ClockOption {
	return func(c *Clock) {
		if m > 0 {
			c.multiplier = m
		}
	}
}

// NewClock creates a clock spanning r, positioned at its start.
func NewClock(r datasource.TimeRange, opts ...ClockOption) *Clock {
	c := &Clock{
		start:      r.Start,
		stop:       r.End,
		now:        r.Start,
		multiplier: DefaultMultiplier,
		subs:       make(map[int]func(time.Time)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Range returns the clock's start and stop.
func (c *Clock) Range() datasource.TimeRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return datasource.TimeRange{Start: c.start, End: c.stop}
}

// Now returns the current simulation time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Multiplier returns the clock rate.
func (c *Clock) Multiplier() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplier
}

// Tick advances the clock by wall-clock dt scaled by the multiplier and
// notifies tick subscribers.
func (c *Clock) Tick(dt time.Duration) time.Time {
	c.mu.Lock()
	c.now = c.wrap(c.now.Add(time.Duration(float64(dt) * c.multiplier)))
	now, subs := c.now, c.subscribers()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(now)
	}
	return now
}

// SetTime moves the clock to t, wrapped into range, and notifies subscribers.
func (c *Clock) SetTime(t time.Time) {
	c.mu.Lock()
	c.now = c.wrap(t)
	now, subs := c.now, c.subscribers()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(now)
	}
}

// OnTick registers fn to run after every tick. The returned func removes it.
func (c *Clock) OnTick(fn func(time.Time)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Follow slaves c to main: c takes main's range and rate now and main's
// current time on every tick. The returned func detaches it.
func (c *Clock) Follow(main *Clock) (cancel func()) {
	r := main.Range()
	c.mu.Lock()
	c.start, c.stop = r.Start, r.End
	c.multiplier = main.Multiplier()
	c.mu.Unlock()
	c.SetTime(main.Now())

	return main.OnTick(c.SetTime)
}

// wrap loops t into [start, stop). Callers hold c.mu.
func (c *Clock) wrap(t time.Time) time.Time {
	span := c.stop.Sub(c.start)
	if span <= 0 {
		return c.start
	}
	if t.Before(c.start) {
		return c.start
	}
	if !t.Before(c.stop) {
		return c.start.Add(t.Sub(c.start) % span)
	}
	return t
}

// subscribers returns the callbacks in registration order. Callers hold c.mu.
func (c *Clock) subscribers() []func(time.Time) {
	out := make([]func(time.Time), 0, len(c.subs))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
