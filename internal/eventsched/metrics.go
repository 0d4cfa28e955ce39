package eventsched

import (
	"fmt"
	"sync"
)

// Stats tracks in-memory counters for scheduler activity.
// All counters are concurrency-safe. A nil *Stats ignores updates.
type Stats struct {
	mu sync.Mutex

	NumScheduled  uint64
	NumDispatched uint64
	NumCancelled  uint64
}

// NewStats creates a new Stats instance with all counters at zero.
func NewStats() *Stats {
	return &Stats{}
}

func (m *Stats) incScheduled() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.NumScheduled++
	m.mu.Unlock()
}

func (m *Stats) incDispatched() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.NumDispatched++
	m.mu.Unlock()
}

func (m *Stats) incCancelled() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.NumCancelled++
	m.mu.Unlock()
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	NumScheduled  uint64
	NumDispatched uint64
	NumCancelled  uint64
}

// Snapshot returns a snapshot of the current counter values.
func (m *Stats) Snapshot() StatsSnapshot {
	if m == nil {
		return StatsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return StatsSnapshot{
		NumScheduled:  m.NumScheduled,
		NumDispatched: m.NumDispatched,
		NumCancelled:  m.NumCancelled,
	}
}

// String returns a human-readable representation of the counters.
func (m *Stats) String() string {
	snap := m.Snapshot()
	return fmt.Sprintf("scheduler: scheduled=%d dispatched=%d cancelled=%d",
		snap.NumScheduled, snap.NumDispatched, snap.NumCancelled)
}
