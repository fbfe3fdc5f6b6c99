// internal/progress/flusher.go
//
// Flusher coalesces snapshot saves into a single background writer.
//
// Trigger never blocks and never captures state: the flush func reads the
// current snapshot at write time, so a write that lands after a newer
// local change still carries the newer state. Triggers that arrive while
// a flush is running collapse into one follow-up flush.

package progress

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// finalFlushTimeout bounds the flush performed when Run is stopped.
const finalFlushTimeout = 5 * time.Second

// Flusher runs flush in the background whenever triggered.
type Flusher struct {
	flush func(ctx context.Context) error
	log   zerolog.Logger
	kick  chan struct{}

	mu        sync.Mutex
	cond      *sync.Cond
	requested uint64
	done      uint64
	stopped   bool
}

// NewFlusher constructs a Flusher. Call Run to start it.
func NewFlusher(flush func(ctx context.Context) error, logger zerolog.Logger) *Flusher {
	f := &Flusher{flush: flush, log: logger, kick: make(chan struct{}, 1)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Trigger schedules a flush.
func (f *Flusher) Trigger() {
	f.mu.Lock()
	f.requested++
	f.mu.Unlock()
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

// Run writes snapshots until ctx is done, then performs one last flush
// if anything is still pending.
func (f *Flusher) Run(ctx context.Context) {
	defer func() {
		f.mu.Lock()
		f.stopped = true
		f.cond.Broadcast()
		f.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			pending := f.requested > f.done
			f.mu.Unlock()
			if pending {
				fctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
				f.once(fctx)
				cancel()
			}
			return
		case <-f.kick:
			f.once(ctx)
		}
	}
}

func (f *Flusher) once(ctx context.Context) {
	f.mu.Lock()
	target := f.requested
	f.mu.Unlock()

	if err := f.flush(ctx); err != nil {
		f.log.Warn().Err(err).Msg("snapshot flush failed; next change resends")
	}

	f.mu.Lock()
	if target > f.done {
		f.done = target
	}
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Wait blocks until every trigger issued before the call has been flushed
// (successfully or not), or the flusher has stopped.
func (f *Flusher) Wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := f.requested
	for f.done < target && !f.stopped {
		f.cond.Wait()
	}
}
