// Package state provides thread-safe viewer status and the reload event log.
package state

import (
	"sync"
	"time"
)

// ViewerState is the lifecycle state of one viewer.
type ViewerState int

const (
	ViewerEmpty ViewerState = iota
	ViewerLoading
	ViewerReady
	ViewerFailed
)

func (s ViewerState) String() string {
	switch s {
	case ViewerLoading:
		return "loading"
	case ViewerReady:
		return "ready"
	case ViewerFailed:
		return "failed"
	default:
		return "empty"
	}
}

// Viewer names.
const (
	MainViewer      = "main"
	FormationViewer = "formation"
)

// EventType represents the type of reload event.
type EventType string

const (
	EventReloadStarted   EventType = "RELOAD_STARTED"
	EventReloadCompleted EventType = "RELOAD_COMPLETED"
	EventReloadFailed    EventType = "RELOAD_FAILED"
	EventSuperseded      EventType = "SUPERSEDED"
	EventDataUnavailable EventType = "DATA_UNAVAILABLE"
	EventDegraded        EventType = "DEGRADED"
)

// Event is one entry of the reload log.
type Event struct {
	Type       EventType     `json:"type"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	Generation uint64        `json:"generation"`
	Action     string        `json:"action,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Detail     string        `json:"detail,omitempty"`
}

// TrackStatus summarizes one loaded track.
type TrackStatus struct {
	ID       string
	Samples  int
	Loaded   bool
	Degraded bool
	Err      error
}

// WhiskerStatus summarizes the last whisker build.
type WhiskerStatus struct {
	Parameter string
	Total     int
	Built     int
	Dropped   int
	Skipped   int
}

// Target is the accepted viewer configuration of a generation.
type Target struct {
	Generation uint64
	Range      string
	Frame      string
	Action     string
}

// Manager handles shared viewer status with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	target    Target
	viewers   map[string]ViewerState
	tracks    []TrackStatus
	whiskers  WhiskerStatus
	lastError error
	lastApply time.Time

	// Event log (ring buffer)
	events       []Event
	maxEvents    int
	eventWriteAt int

	now func() time.Time
}

// Config holds configuration for the state manager.
type Config struct {
	MaxEvents int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxEvents: 50, // Last 50 events
	}
}

// NewManager creates a new state manager.
func NewManager(cfg Config) *Manager {
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 50
	}
	return &Manager{
		viewers:   map[string]ViewerState{MainViewer: ViewerEmpty, FormationViewer: ViewerEmpty},
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		now:       time.Now,
	}
}

// SetTarget records the accepted target of a new generation.
func (m *Manager) SetTarget(t Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = t
	m.lastApply = m.now()
}

// SetViewer updates a viewer's lifecycle state.
func (m *Manager) SetViewer(name string, s ViewerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewers[name] = s
}

// Viewer returns a viewer's lifecycle state.
func (m *Manager) Viewer(name string) ViewerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewers[name]
}

// SetTracks replaces the track summaries.
func (m *Manager) SetTracks(tracks []TrackStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append([]TrackStatus(nil), tracks...)
}

// SetWhiskers replaces the whisker summary.
func (m *Manager) SetWhiskers(w WhiskerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.whiskers = w
}

// SetError records the last error; nil clears it.
func (m *Manager) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = err
}

// Record appends an event, stamping it if needed.
func (m *Manager) Record(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	m.addEvent(e)
}

// addEvent adds an event to the ring buffer.
func (m *Manager) addEvent(e Event) {
	if len(m.events) < m.maxEvents {
		m.events = append(m.events, e)
	} else {
		m.events[m.eventWriteAt] = e
		m.eventWriteAt = (m.eventWriteAt + 1) % m.maxEvents
	}
}

// Snapshot represents an immutable snapshot of current state.
type Snapshot struct {
	Target    Target
	Viewers   map[string]ViewerState
	Tracks    []TrackStatus
	Whiskers  WhiskerStatus
	LastError error
	LastApply time.Time
	Events    []Event
}

// Snapshot returns a consistent snapshot of current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	viewers := make(map[string]ViewerState, len(m.viewers))
	for k, v := range m.viewers {
		viewers[k] = v
	}

	return Snapshot{
		Target:    m.target,
		Viewers:   viewers,
		Tracks:    append([]TrackStatus(nil), m.tracks...),
		Whiskers:  m.whiskers,
		LastError: m.lastError,
		LastApply: m.lastApply,
		Events:    m.getEventsOrdered(),
	}
}

// getEventsOrdered returns events in chronological order.
func (m *Manager) getEventsOrdered() []Event {
	if len(m.events) == 0 {
		return nil
	}

	// If buffer isn't full yet, just copy
	if len(m.events) < m.maxEvents {
		result := make([]Event, len(m.events))
		copy(result, m.events)
		return result
	}

	// Ring buffer is full, reorder from oldest to newest
	result := make([]Event, m.maxEvents)
	for i := 0; i < m.maxEvents; i++ {
		idx := (m.eventWriteAt + i) % m.maxEvents
		result[i] = m.events[idx]
	}
	return result
}

// RecentEvents returns the last n events.
func (m *Manager) RecentEvents(n int) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.getEventsOrdered()
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// Ready reports whether the main viewer is ready.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewers[MainViewer] == ViewerReady
}
