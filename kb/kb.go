package kb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/r-mite/nat-mobile/model"
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventStationAdded EventType = iota
	EventStationMoved
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type    EventType
	Station model.Station
}

// KnowledgeBase is an in-memory, thread-safe store for the stations taking
// part in a run.
type KnowledgeBase struct {
	mu sync.RWMutex

	stations  map[string]*model.Station
	byAddress map[model.MacAddress]string

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		stations:  make(map[string]*model.Station),
		byAddress: make(map[model.MacAddress]string),
		subs:      make(map[int]func(Event)),
	}
}

// AddStation adds a new station. IDs and addresses must be unique and the
// broadcast address cannot be assigned to a station.
func (kb *KnowledgeBase) AddStation(s *model.Station) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("station must have an ID")
	}
	if s.Address.IsBroadcast() {
		return fmt.Errorf("station %q: broadcast address cannot be assigned", s.ID)
	}

	kb.mu.Lock()
	if _, exists := kb.stations[s.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("station with ID %q already exists", s.ID)
	}
	if owner, exists := kb.byAddress[s.Address]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("address %s already used by station %q", s.Address, owner)
	}
	kb.stations[s.ID] = s
	kb.byAddress[s.Address] = s.ID
	event := Event{Type: EventStationAdded, Station: *s}
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// GetStation returns a copy of the station with the given ID.
func (kb *KnowledgeBase) GetStation(id string) (model.Station, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	s, ok := kb.stations[id]
	if !ok {
		return model.Station{}, false
	}
	return *s, true
}

// ListStations returns a snapshot of all stations ordered by ID.
func (kb *KnowledgeBase) ListStations() []model.Station {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Station, 0, len(kb.stations))
	for _, s := range kb.stations {
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// UpdateStationPosition moves a station and notifies subscribers.
func (kb *KnowledgeBase) UpdateStationPosition(id string, pos model.Vector) error {
	kb.mu.Lock()
	s, ok := kb.stations[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("station with ID %q not found", id)
	}
	s.Position = pos
	event := Event{Type: EventStationMoved, Station: *s}
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) snapshotSubsLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, kb.subs[id])
	}
	return out
}

// Tracker returns a mobility handle bound to one station. Reads and writes
// go through the KB so subscribers observe every move.
func (kb *KnowledgeBase) Tracker(id string) (*Tracker, error) {
	if _, ok := kb.GetStation(id); !ok {
		return nil, fmt.Errorf("station with ID %q not found", id)
	}
	return &Tracker{kb: kb, id: id}, nil
}

// Tracker reads and sets one station's position.
type Tracker struct {
	kb *KnowledgeBase
	id string
}

// ID returns the tracked station's ID.
func (t *Tracker) ID() string { return t.id }

// Position returns the station's current position.
func (t *Tracker) Position() model.Vector {
	s, _ := t.kb.GetStation(t.id)
	return s.Position
}

// SetPosition moves the station.
func (t *Tracker) SetPosition(pos model.Vector) {
	// The station cannot disappear once added, so the error is unreachable.
	_ = t.kb.UpdateStationPosition(t.id, pos)
}
