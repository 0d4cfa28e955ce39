package eventsched

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// EvtmScheduler is an EventScheduler backed by the evtm discrete-event
// manager. Virtual time is the manager's clock expressed as an offset from
// the configured epoch.
type EvtmScheduler struct {
	mgr   *evtm.EventManager
	epoch time.Time
	stats *Stats

	mu        sync.Mutex
	counter   uint64
	live      map[string]struct{}
	halted    bool
	runCtx    context.Context
	runCtxErr error
}

// NewEvtmScheduler creates a scheduler whose time zero is epoch. stats may be nil.
func NewEvtmScheduler(epoch time.Time, stats *Stats) *EvtmScheduler {
	return &EvtmScheduler{
		mgr:   evtm.New(),
		epoch: epoch,
		stats: stats,
		live:  make(map[string]struct{}),
	}
}

// Now returns the manager's current time.
func (s *EvtmScheduler) Now() time.Time {
	return s.epoch.Add(secondsToDuration(s.mgr.CurrentSeconds()))
}

// Schedule registers f to run at 'at'. evtm takes offsets relative to the
// current time, so past times collapse to an offset of zero.
func (s *EvtmScheduler) Schedule(at time.Time, f func()) (id string) {
	offset := at.Sub(s.Now())
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	s.counter++
	id = fmt.Sprintf("evtm-%d", s.counter)
	s.live[id] = struct{}{}
	s.mu.Unlock()

	s.stats.incScheduled()
	s.mgr.Schedule(id, f, s.handle, vrtime.SecondsToTime(offset.Seconds()))
	return id
}

// handle is the evtm handler shared by every event. The event context
// carries the ID and the event data carries the callback.
func (s *EvtmScheduler) handle(_ *evtm.EventManager, evtCtx any, data any) any {
	id, _ := evtCtx.(string)
	f, _ := data.(func())

	s.mu.Lock()
	_, ok := s.live[id]
	delete(s.live, id)
	skip := s.halted || !ok
	if !skip && s.runCtx != nil && s.runCtx.Err() != nil {
		s.runCtxErr = s.runCtx.Err()
		s.halted = true
		skip = true
	}
	s.mu.Unlock()

	if skip {
		return nil
	}
	s.stats.incDispatched()
	if f != nil {
		f()
	}
	return nil
}

// Cancel marks an event so its handler is skipped when it fires.
func (s *EvtmScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[id]; !ok {
		return
	}
	delete(s.live, id)
	s.stats.incCancelled()
}

// RunDue runs every event scheduled at or before the current time.
func (s *EvtmScheduler) RunDue() {
	s.mgr.Run(s.mgr.CurrentSeconds())
}

// RunUntil runs the manager up to stop. Once halted, remaining events
// drain without invoking their callbacks.
func (s *EvtmScheduler) RunUntil(ctx context.Context, stop time.Time) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.mgr.Run(stop.Sub(s.epoch).Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runCtx = nil
	return s.runCtxErr
}

// Stop halts dispatch of further callbacks.
func (s *EvtmScheduler) Stop() {
	s.mu.Lock()
	s.halted = true
	s.mu.Unlock()
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}
