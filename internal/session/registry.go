// internal/session/registry.go
//
// In-memory registry of live sessions.
//
// Characteristics:
//   - Sessions keyed by ID, plus an index by progress record so one record
//     never has two live writers.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts; progress itself lives in the
//     remote tree.

package session

import (
	"errors"
	"sync"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Registry holds the live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by Session.ID
	byRecord map[string]string   // record key -> session ID
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}, byRecord: map[string]string{}}
}

func recordKey(s *Session) string {
	return keyOf(s.opts.UserID, s.opts.SongID, s.opts.Version)
}

func keyOf(userID, songID, version string) string {
	return userID + "\x00" + songID + "\x00" + version
}

// Save adds s. A session already registered for the same progress record
// is removed and returned; the caller closes it.
func (r *Registry) Save(s *Session) (replaced *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recordKey(s)
	if id, ok := r.byRecord[key]; ok && id != s.id {
		replaced = r.sessions[id]
		delete(r.sessions, id)
	}
	r.sessions[s.id] = s
	r.byRecord[key] = s.id
	return replaced
}

// Detach removes and returns the live session writing the record of
// (userID, songID, version), or nil. The caller closes it before another
// session loads the same record.
func (r *Registry) Detach(userID, songID, version string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := keyOf(userID, songID, version)
	id, ok := r.byRecord[key]
	if !ok {
		return nil
	}
	s := r.sessions[id]
	delete(r.sessions, id)
	delete(r.byRecord, key)
	return s
}

// Get looks up a session by ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

// Delete removes a session by ID and returns it.
func (r *Registry) Delete(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.sessions, id)
	if key := recordKey(s); r.byRecord[key] == id {
		delete(r.byRecord, key)
	}
	return s, nil
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes and removes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = map[string]*Session{}
	r.byRecord = map[string]string{}
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
