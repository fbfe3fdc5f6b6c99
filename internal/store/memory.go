// internal/store/memory.go
//
// In-memory implementation of the Tree interface.
// Used in tests and when no database is configured.
//
// Characteristics:
//   - Leaves are kept in a map keyed by full path.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts.

package store

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is a map-backed Tree.
type Memory struct {
	mu     sync.RWMutex      // guards leaves
	leaves map[string]string // full path -> JSON leaf
}

// NewMemory constructs an empty in-memory Tree.
func NewMemory() *Memory {
	return &Memory{leaves: make(map[string]string)}
}

// ReadOnce returns the subtree at path.
func (m *Memory) ReadOnce(ctx context.Context, path string) (json.RawMessage, bool, error) {
	if err := validPath(path); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	lo, hi := subtreeBounds(path)
	rows := map[string]string{}
	for k, v := range m.leaves {
		if k == path || (k >= lo && k < hi) {
			rows[k] = v
		}
	}
	return assemble(path, rows)
}

// SetValue replaces the subtree at path.
func (m *Memory) SetValue(ctx context.Context, path string, value any) error {
	if err := validPath(path); err != nil {
		return err
	}
	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replace(path, leaves)
	return nil
}

// WriteChildren sets each child of path.
func (m *Memory) WriteChildren(ctx context.Context, path string, children map[string]any) error {
	if err := validPath(path); err != nil {
		return err
	}
	batch := make(map[string]map[string]string, len(children))
	for k, v := range children {
		child := path + "/" + Escape(k)
		leaves, err := flatten(child, v)
		if err != nil {
			return err
		}
		batch[child] = leaves
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for child, leaves := range batch {
		m.replace(child, leaves)
	}
	return nil
}

// DeleteValue removes the subtree at path.
func (m *Memory) DeleteValue(ctx context.Context, path string) error {
	if err := validPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replace(path, nil)
	return nil
}

// replace drops path, its subtree, and any ancestor leaf, then inserts leaves.
// Caller holds m.mu.
func (m *Memory) replace(path string, leaves map[string]string) {
	lo, hi := subtreeBounds(path)
	for k := range m.leaves {
		if k == path || (k >= lo && k < hi) {
			delete(m.leaves, k)
		}
	}
	if len(leaves) > 0 {
		for _, a := range ancestors(path) {
			delete(m.leaves, a)
		}
	}
	for k, v := range leaves {
		m.leaves[k] = v
	}
}
