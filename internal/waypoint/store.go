// internal/waypoint/store.go
//
// Authoritative set of waypoints for the current song and difficulty.
//
// Characteristics:
//   - Holds the loaded catalog plus the live set (catalog minus collected).
//   - Concurrency-safe via RWMutex (concurrent reads, exclusive writes).
//   - Remove is the linearization point of a collection: the first
//     successful removal wins, later removals of the same name are no-ops.
//   - Every load/remove/clear is published to subscribers after the lock
//     is released, so subscribers may read the store back.

package waypoint

import (
	"sort"
	"sync"
)

// EventKind tells subscribers what changed.
type EventKind int

const (
	EventLoaded EventKind = iota
	EventRemoved
	EventCleared
)

// Event is published to subscribers on every mutation.
// Loaded events carry the full live set sorted by name; Removed events
// carry the removed waypoint.
type Event struct {
	Kind      EventKind
	Waypoints []Waypoint
}

// Store owns the waypoint catalog for a session.
type Store struct {
	mu       sync.RWMutex
	catalog  map[string]Waypoint // as loaded
	live     map[string]Waypoint // not yet collected
	complete bool                // catalog came from the source document

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		catalog: map[string]Waypoint{},
		live:    map[string]Waypoint{},
		subs:    map[int]func(Event){},
	}
}

// Load replaces the catalog and live set with wps.
// complete marks a catalog parsed from the source document (as opposed to
// one resumed from a progress record, which lacks collected waypoints).
func (s *Store) Load(wps []Waypoint, complete bool) {
	s.mu.Lock()
	s.catalog = make(map[string]Waypoint, len(wps))
	s.live = make(map[string]Waypoint, len(wps))
	for _, w := range wps {
		s.catalog[w.Name] = w
		s.live[w.Name] = w
	}
	s.complete = complete
	ev := Event{Kind: EventLoaded, Waypoints: sortedValues(s.live)}
	s.mu.Unlock()
	s.publish(ev)
}

// Remove deletes name from the live set.
// It reports whether this call removed it; absent names are a no-op.
func (s *Store) Remove(name string) bool {
	s.mu.Lock()
	w, ok := s.live[name]
	if ok {
		delete(s.live, name)
	}
	s.mu.Unlock()
	if ok {
		s.publish(Event{Kind: EventRemoved, Waypoints: []Waypoint{w}})
	}
	return ok
}

// Restore resets the live set to the loaded catalog.
// A catalog that is not complete cannot be restored: the store is cleared
// instead and Restore returns false so the caller can refetch it.
func (s *Store) Restore() bool {
	s.mu.Lock()
	if !s.complete {
		s.catalog = map[string]Waypoint{}
		s.live = map[string]Waypoint{}
		s.mu.Unlock()
		s.publish(Event{Kind: EventCleared})
		return false
	}
	s.live = make(map[string]Waypoint, len(s.catalog))
	for k, w := range s.catalog {
		s.live[k] = w
	}
	ev := Event{Kind: EventLoaded, Waypoints: sortedValues(s.live)}
	s.mu.Unlock()
	s.publish(ev)
	return true
}

// Get returns the live waypoint named name.
func (s *Store) Get(name string) (Waypoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.live[name]
	return w, ok
}

// Snapshot returns a copy of the live set keyed by name.
func (s *Store) Snapshot() map[string]Waypoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Waypoint, len(s.live))
	for k, w := range s.live {
		out[k] = w
	}
	return out
}

// List returns the live set sorted by name.
func (s *Store) List() []Waypoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.live)
}

// Len is the number of live waypoints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// Empty reports whether nothing has been loaded (or everything was cleared).
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.catalog) == 0
}

// Complete reports whether the catalog came from the source document.
func (s *Store) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.complete
}

// Subscribe registers fn for every future event and returns a cancel func.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func sortedValues(m map[string]Waypoint) []Waypoint {
	out := make([]Waypoint, 0, len(m))
	for _, w := range m {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
