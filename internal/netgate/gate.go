// internal/netgate/gate.go
//
// Connectivity gate: a boolean network state with observers.
//
// Characteristics:
//   - Observers are notified on every flip, in order, one transition at a time.
//   - A new observer immediately receives the current state, so it never
//     misses the initial one.
//   - Observers must not call Set from inside their callback.

package netgate

import "sync"

// Gate tracks whether the network is reachable.
type Gate struct {
	mu        sync.Mutex
	connected bool
	subs      map[int]func(bool)
	nextID    int

	notifyMu sync.Mutex // serializes deliveries
}

// New constructs a Gate in the given initial state.
func New(connected bool) *Gate {
	return &Gate{connected: connected, subs: map[int]func(bool){}}
}

// IsConnected reports the current state.
func (g *Gate) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Set records the latest connectivity signal and notifies observers when
// it differs from the previous one. It reports whether the state flipped.
func (g *Gate) Set(connected bool) bool {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	if g.connected == connected {
		g.mu.Unlock()
		return false
	}
	g.connected = connected
	fns := g.observers()
	g.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
	return true
}

// OnTransition registers fn and delivers the current state to it before
// returning. The returned func unregisters it.
func (g *Gate) OnTransition(fn func(connected bool)) (cancel func()) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	state := g.connected
	g.mu.Unlock()

	fn(state)
	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

func (g *Gate) observers() []func(bool) {
	out := make([]func(bool), 0, len(g.subs))
	for _, fn := range g.subs {
		out = append(out, fn)
	}
	return out
}
