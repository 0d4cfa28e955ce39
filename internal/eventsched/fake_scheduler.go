package eventsched

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeEventScheduler is a test implementation of EventScheduler that keeps
// its own notion of simulation time. Tests call AdvanceTo to move time
// forward and execute due events deterministically.
type FakeEventScheduler struct {
	mu      sync.Mutex
	now     time.Time
	counter uint64
	halted  bool

	// Events ordered by 'when' (earliest first).
	events []*scheduledEvent
	index  map[string]*scheduledEvent
}

// NewFakeEventScheduler creates a new fake event scheduler starting at the given time.
func NewFakeEventScheduler(start time.Time) *FakeEventScheduler {
	return &FakeEventScheduler{
		now:   start,
		index: make(map[string]*scheduledEvent),
	}
}

// Now returns the current fake simulation time.
func (s *FakeEventScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule registers a callback to run at the specified simulation time.
func (s *FakeEventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("fake-ev-%d", s.counter)
	ev := &scheduledEvent{id: id, when: at, f: f}

	inserted := false
	for i, existing := range s.events {
		if at.Before(existing.when) {
			s.events = append(s.events[:i], append([]*scheduledEvent{ev}, s.events[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		s.events = append(s.events, ev)
	}

	s.index[id] = ev
	return id
}

// Cancel attempts to cancel a previously scheduled event.
func (s *FakeEventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(s.index, id)
}

// Pending returns the scheduled, not yet run, not cancelled event times.
func (s *FakeEventScheduler) Pending() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, ev := range s.events {
		if !ev.cancelled {
			out = append(out, ev.when)
		}
	}
	return out
}

// RunDue executes all events whose scheduled time is <= now.
func (s *FakeEventScheduler) RunDue() {
	for {
		s.mu.Lock()
		if s.halted || len(s.events) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.events[0]
		if ev.when.After(s.now) {
			s.mu.Unlock()
			return
		}
		s.events = s.events[1:]
		if ev.cancelled {
			s.mu.Unlock()
			continue
		}
		delete(s.index, ev.id)
		callback := ev.f
		s.mu.Unlock()

		if callback != nil {
			callback()
		}
	}
}

// AdvanceTo sets the fake simulation time to t and executes all due events.
// Time is kept monotonic.
func (s *FakeEventScheduler) AdvanceTo(t time.Time) {
	s.mu.Lock()
	if t.Before(s.now) {
		s.mu.Unlock()
		return
	}
	s.now = t
	s.mu.Unlock()

	s.RunDue()
}

// Step advances to the next pending event time and runs everything due
// then. It reports false when nothing is pending.
func (s *FakeEventScheduler) Step() bool {
	s.mu.Lock()
	var next *scheduledEvent
	for _, ev := range s.events {
		if !ev.cancelled {
			next = ev
			break
		}
	}
	s.mu.Unlock()
	if next == nil {
		return false
	}
	s.AdvanceTo(next.when)
	return true
}

// RunUntil steps through events up to stop, then parks time at stop.
func (s *FakeEventScheduler) RunUntil(ctx context.Context, stop time.Time) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		halted := s.halted
		var next *scheduledEvent
		for _, ev := range s.events {
			if !ev.cancelled {
				next = ev
				break
			}
		}
		s.mu.Unlock()
		if halted {
			return nil
		}
		if next == nil || next.when.After(stop) {
			break
		}
		s.AdvanceTo(next.when)
	}
	s.AdvanceTo(stop)
	return nil
}

// Stop halts further dispatch.
func (s *FakeEventScheduler) Stop() {
	s.mu.Lock()
	s.halted = true
	s.mu.Unlock()
}
