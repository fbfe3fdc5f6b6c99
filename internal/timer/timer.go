// internal/timer/timer.go
//
// Session countdown. The timer is passive: it holds no goroutine and no
// clock. The session drives it with Tick once per second while holding its
// own lock, which keeps ticks and collection resets in one critical section.
//
//	Uninitialized -> AwaitingUserStart -> Running -> Expired
//	                                 \-> Running (resume)
//	Running <-> Paused, Running -> Running (Reset), any -> Cancelled

package timer

import "time"

// TickInterval is the countdown granularity.
const TickInterval = time.Second

// State is the lifecycle state of a Timer.
type State int

const (
	Uninitialized State = iota
	AwaitingUserStart
	Running
	Paused
	Expired
	Cancelled
	Disabled
)

func (s State) String() string {
	switch s {
	case AwaitingUserStart:
		return "awaiting_start"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Expired:
		return "expired"
	case Cancelled:
		return "cancelled"
	case Disabled:
		return "disabled"
	default:
		return "uninitialized"
	}
}

// Timer counts a session down in milliseconds.
type Timer struct {
	state     State
	total     int64 // ms
	remaining int64 // ms
}

// New returns an Uninitialized timer.
func New() *Timer { return &Timer{} }

// Start arms the timer for timeout. With a positive persisted resume value
// it runs immediately from there (clamped to timeout); otherwise it waits
// for Begin. A disabled timer never runs.
func (t *Timer) Start(timeout time.Duration, enabled bool, resume *int64) State {
	t.total = timeout.Milliseconds()
	t.remaining = t.total
	switch {
	case !enabled || t.total <= 0:
		t.state = Disabled
	case resume != nil && *resume > 0:
		t.remaining = min(*resume, t.total)
		t.state = Running
	default:
		t.state = AwaitingUserStart
	}
	return t.state
}

// Begin leaves AwaitingUserStart. It reports whether the timer started.
func (t *Timer) Begin() bool {
	if t.state != AwaitingUserStart {
		return false
	}
	t.state = Running
	return true
}

// Tick advances a running timer by one interval and reports whether this
// tick expired it.
func (t *Timer) Tick() bool {
	if t.state != Running {
		return false
	}
	t.remaining -= min(TickInterval.Milliseconds(), t.remaining)
	if t.remaining == 0 {
		t.state = Expired
		return true
	}
	return false
}

// Reset restarts the countdown at the full timeout. Terminal and disabled
// timers are left alone.
func (t *Timer) Reset() bool {
	switch t.state {
	case Running, Paused, AwaitingUserStart:
		t.remaining = t.total
		return true
	}
	return false
}

// Rewind puts the countdown back to the full timeout. An expired timer
// returns to AwaitingUserStart; a cancelled one stays cancelled.
func (t *Timer) Rewind() {
	if t.state == Disabled {
		return
	}
	t.remaining = t.total
	if t.state == Expired {
		t.state = AwaitingUserStart
	}
}

// Pause suspends a running timer.
func (t *Timer) Pause() bool {
	if t.state != Running {
		return false
	}
	t.state = Paused
	return true
}

// Resume continues a paused timer.
func (t *Timer) Resume() bool {
	if t.state != Paused {
		return false
	}
	t.state = Running
	return true
}

// Cancel stops the timer for good.
func (t *Timer) Cancel() {
	if t.state != Disabled {
		t.state = Cancelled
	}
}

func (t *Timer) State() State { return t.state }

// Remaining is the time left in milliseconds.
func (t *Timer) Remaining() int64 { return t.remaining }

// Total is the configured timeout in milliseconds.
func (t *Timer) Total() int64 { return t.total }

// TotalSeconds is the upper bound of Progress.
func (t *Timer) TotalSeconds() int { return int(t.total / 1000) }

// Progress is the number of whole seconds used so far, in 0..TotalSeconds.
func (t *Timer) Progress() int {
	p := t.TotalSeconds() - int(t.remaining/1000)
	return max(0, min(p, t.TotalSeconds()))
}

// Persistable reports whether the remaining time should be saved when the
// session is suspended.
func (t *Timer) Persistable() bool {
	return (t.state == Running || t.state == Paused) && t.remaining > 0
}
