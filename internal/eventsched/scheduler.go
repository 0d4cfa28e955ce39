package eventsched

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/r-mite/nat-mobile/timectrl"
)

// EventScheduler schedules callbacks to run at specific simulation times.
// It is the single driver of virtual time in a run: sampling timers,
// traffic generators and mobility updates all register here.
//
// The scenario runner will:
// - Register the initial events (first samples, first frames, beacons).
// - Call RunUntil with the configured stop time.
// - Call Stop from inside a callback when a fatal error must halt the run.
type EventScheduler interface {
	// Schedule registers a callback f to run at simulation time 'at'.
	// It returns an opaque event ID that can be used to cancel the event.
	// Times in the past run at the current time.
	Schedule(at time.Time, f func()) (id string)

	// Cancel attempts to cancel a previously scheduled event.
	// It is a no-op if the ID is unknown or the event already ran.
	Cancel(id string)

	// Now returns the current simulation time.
	Now() time.Time

	// RunDue executes all events whose scheduled time is <= Now().
	RunDue()

	// RunUntil dispatches events in time order, advancing virtual time to
	// each event, until no event at or before stop remains, Stop is
	// called, or ctx is done. Virtual time ends at stop unless halted.
	RunUntil(ctx context.Context, stop time.Time) error

	// Stop halts a RunUntil in progress after the current callback returns.
	Stop()
}

// Clock is the subset of timectrl.VirtualClock the scheduler needs.
type Clock interface {
	timectrl.SimClock
	AdvanceTo(t time.Time) bool
}

// scheduledEvent represents a single scheduled callback.
type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// eventScheduler is the built-in EventScheduler. Events are kept ordered by
// time; events sharing a timestamp run in the order they were scheduled.
type eventScheduler struct {
	clock Clock
	stats *Stats

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent // ordered by 'when' (earliest first)
	index   map[string]*scheduledEvent
	halted  bool
}

// NewEventScheduler creates a new event scheduler backed by the given clock.
// stats may be nil.
func NewEventScheduler(clock Clock, stats *Stats) EventScheduler {
	return &eventScheduler{
		clock: clock,
		stats: stats,
		index: make(map[string]*scheduledEvent),
	}
}

// Schedule registers a callback to run at the specified simulation time.
func (s *eventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now := s.clock.Now(); at.Before(now) {
		at = now
	}

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)
	ev := &scheduledEvent{id: id, when: at, f: f}

	// First index strictly after ev.when keeps equal timestamps FIFO.
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(ev.when)
	})
	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev

	s.index[id] = ev
	s.stats.incScheduled()
	return id
}

// Cancel attempts to cancel a previously scheduled event.
func (s *eventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(s.index, id)
	s.stats.incCancelled()
}

// Now returns the current simulation time from the underlying clock.
func (s *eventScheduler) Now() time.Time {
	return s.clock.Now()
}

// Stop halts RunUntil after the running callback returns.
func (s *eventScheduler) Stop() {
	s.mu.Lock()
	s.halted = true
	s.mu.Unlock()
}

// popNextLocked removes and returns the earliest live event at or before
// limit, or nil. Caller must hold s.mu.
func (s *eventScheduler) popNextLocked(limit time.Time) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if ev.when.After(limit) {
			return nil
		}
		s.events = s.events[1:]
		delete(s.index, ev.id)
		return ev
	}
	return nil
}

// RunDue executes all events whose scheduled time is <= Now().
// It is safe to call multiple times; already-run events will not run again.
func (s *eventScheduler) RunDue() {
	for {
		s.mu.Lock()
		if s.halted {
			s.mu.Unlock()
			return
		}
		ev := s.popNextLocked(s.clock.Now())
		s.mu.Unlock()
		if ev == nil {
			return
		}
		s.dispatch(ev)
	}
}

// RunUntil dispatches events in time order up to and including stop.
func (s *eventScheduler) RunUntil(ctx context.Context, stop time.Time) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		if s.halted {
			s.mu.Unlock()
			return nil
		}
		ev := s.popNextLocked(stop)
		s.mu.Unlock()
		if ev == nil {
			break
		}
		s.clock.AdvanceTo(ev.when)
		s.dispatch(ev)
	}
	s.clock.AdvanceTo(stop)
	return nil
}

// Pending returns the number of live events still queued.
func (s *eventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

func (s *eventScheduler) dispatch(ev *scheduledEvent) {
	s.stats.incDispatched()
	// Execute callback outside the lock so callbacks can reschedule.
	if ev.f != nil {
		ev.f()
	}
}
