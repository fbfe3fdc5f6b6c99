package session

import (
	"context"
	"errors"
)

// onConnectivity is the gate observer. It only records the transition;
// watchNetwork acts on it outside the gate's delivery.
func (s *Session) onConnectivity(connected bool) {
	if !connected {
		s.sawOutage.Store(true)
	}
	for {
		select {
		case s.netCh <- connected:
			return
		default:
		}
		// Keep only the latest state.
		select {
		case <-s.netCh:
		default:
		}
	}
}

func (s *Session) watchNetwork(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case connected := <-s.netCh:
			if connected {
				s.reconnected(ctx)
			} else {
				s.mu.Lock()
				if s.needMarkers || s.needLyrics {
					s.notice = NoticeOffline
				}
				s.mu.Unlock()
			}
		}
	}
}

// reconnected retries the fetches that are still missing, once per outage.
// A fetch that was denied by the gate is retried on the next connected
// delivery even if the outage itself was not observed.
func (s *Session) reconnected(ctx context.Context) {
	outage := s.sawOutage.Swap(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed || (!s.needMarkers && !s.needLyrics) {
		return
	}
	if !outage && !s.pendingOffline {
		return
	}
	s.log.Info().Bool("markers", s.needMarkers).Bool("lyrics", s.needLyrics).Msg("network restored; retrying fetch")
	s.fetchMissingLocked(ctx)
}

// flush writes the pending remote operations using the state current at
// write time. Operations prepared before a reset are dropped.
func (s *Session) flush(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen.Load()
	ops := s.pending
	s.pending = pendingOps{}
	var (
		markers = s.waypoints.Snapshot()
		words   = s.index.Words()
		lines   = s.index.Lines()
	)
	s.mu.Unlock()
	if ops.empty() {
		return nil
	}

	s.writeMu.Lock()
	if s.gen.Load() != gen {
		s.writeMu.Unlock()
		return nil
	}
	var errs []error
	var failed pendingOps
	if ops.lyrics {
		if err := s.sync.SaveLyrics(ctx, lines); err != nil {
			errs, failed.lyrics = append(errs, err), true
		}
	}
	for k, w := range ops.newWords {
		if err := s.sync.SaveIncrementalWord(ctx, k, w); err != nil {
			errs = append(errs, err)
		}
	}
	if ops.markers {
		if err := s.sync.SaveMarkers(ctx, markers); err != nil {
			errs, failed.markers = append(errs, err), true
		}
	}
	if ops.words {
		if err := s.sync.SaveWords(ctx, words); err != nil {
			errs, failed.words = append(errs, err), true
		}
	}
	if ops.timeLeft != nil {
		var err error
		if *ops.timeLeft < 0 {
			err = s.sync.ClearTimeLeft(ctx)
		} else {
			err = s.sync.SaveTimeLeft(ctx, *ops.timeLeft)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	s.writeMu.Unlock()

	if len(errs) == 0 {
		return nil
	}
	// Snapshots that failed ride along with the next triggered flush.
	s.mu.Lock()
	if s.gen.Load() == gen {
		s.pending.lyrics = s.pending.lyrics || failed.lyrics
		s.pending.markers = s.pending.markers || failed.markers
		s.pending.words = s.pending.words || failed.words
	}
	s.mu.Unlock()
	return errors.Join(errs...)
}
