package session

import (
	"context"

	"github.com/songle-game/songle-server/internal/guess"
	"github.com/songle-game/songle-server/internal/lyrics"
	"github.com/songle-game/songle-server/internal/progress"
	"github.com/songle-game/songle-server/internal/proximity"
	"github.com/songle-game/songle-server/internal/waypoint"
)

// clearTimeLeft in pendingOps.timeLeft drops the persisted countdown.
var clearTimeLeft int64 = -1

// UpdateLocation records the player's live position. With auto-collect on,
// every word waypoint in range is collected. It returns the names
// collected by this update.
func (s *Session) UpdateLocation(p waypoint.Point) ([]string, error) {
	if !p.Valid() {
		return nil, ErrBadLocation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed {
		return nil, ErrClosed
	}
	s.location = &p
	r := s.opts.Renderer
	r.RemoveMarker(proximity.LiveLocationTitle)
	r.AddMarker(p, proximity.LiveLocationTitle, "")
	r.SetCollectionRadius(p, s.opts.Level.CollectThresholdMeters)
	r.MoveCamera(p, liveMarkerZoom)

	if !s.opts.AutoCollect || s.phase != PhasePlaying {
		return nil, nil
	}
	var got []string
	for _, w := range proximity.InRange(s.waypoints.List(), s.location, s.opts.Level.CollectThresholdMeters) {
		if s.collectLocked(w) == proximity.Collected {
			got = append(got, w.Name)
		}
	}
	return got, nil
}

// TapMarker tries to collect the marker named name.
func (s *Session) TapMarker(name string) (proximity.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseClosed:
		return proximity.Ineligible, ErrClosed
	case PhasePlaying:
	default:
		return proximity.Ineligible, ErrNotPlaying
	}
	if name == proximity.LiveLocationTitle {
		return proximity.Ineligible, nil
	}
	w, ok := s.waypoints.Get(name)
	if !ok {
		return proximity.Ineligible, nil
	}
	outcome, dist := proximity.Evaluate(w, s.location, s.opts.Level.CollectThresholdMeters)
	if outcome != proximity.Collected {
		s.log.Debug().Str("marker", name).Float64("distance", dist).Str("outcome", string(outcome)).Msg("tap")
		return outcome, nil
	}
	return s.collectLocked(w), nil
}

// collectLocked is the collection transaction: the waypoint leaves the
// store, its word enters the collected set and the timer restarts, or
// nothing happens at all.
func (s *Session) collectLocked(w waypoint.Waypoint) proximity.Outcome {
	line, pos, ok := lyrics.ParseKey(w.Name)
	if !ok {
		return proximity.Ineligible // decorative marker
	}
	word, ok := s.index.Word(line, pos)
	if !ok {
		return proximity.Ineligible
	}
	if !s.waypoints.Remove(w.Name) {
		return proximity.Ineligible
	}
	key := lyrics.Key(line, pos)
	s.index.Collect(key, word)
	if s.timer.Reset() {
		s.pending.timeLeft = &clearTimeLeft
	}

	if s.pending.newWords == nil {
		s.pending.newWords = map[string]string{}
	}
	s.pending.newWords[key] = word
	s.pending.markers, s.pending.words = true, true
	s.flusher.Trigger()

	s.log.Info().Str("marker", w.Name).Int("collected", s.index.Count()).Msg("word collected")
	return proximity.Collected
}

// Guess checks title against the song. A correct guess wins the session:
// the timer is cancelled, progress is reset and the difficulty is merged
// into the player's completed list.
func (s *Session) Guess(ctx context.Context, title string) (guess.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseClosed:
		return guess.Incorrect, ErrClosed
	case PhaseWon, PhaseExpired:
		return guess.Incorrect, ErrNotPlaying
	}
	if s.resolver.Guess(title) != guess.Correct {
		return guess.Incorrect, nil
	}

	s.phase = PhaseWon
	s.timer.Cancel()
	s.resetAllLocked(ctx)
	s.markCompletedLocked(ctx)
	s.log.Info().Msg("song guessed")
	return guess.Correct, nil
}

// markCompletedLocked merges this difficulty into the completed list:
// read, merge, write. An unreadable list is left alone rather than
// overwritten with a single entry.
func (s *Session) markCompletedLocked(ctx context.Context) {
	title := s.resolver.Title()
	existing, err := s.completed.Difficulties(ctx, title)
	if err != nil {
		s.log.Warn().Err(err).Msg("completed difficulties unreadable; not updated")
		return
	}
	merged := guess.MergeDifficulties(existing, s.opts.Version)
	if len(merged) == len(existing) {
		return
	}
	_ = s.completed.Save(ctx, title, progress.CompletedSong{
		Number:                s.opts.SongID,
		Completed:             true,
		DifficultiesCompleted: merged,
	})
}

// Tick advances the countdown by one interval. Expiry resets all progress
// and ends the run until Restart.
func (s *Session) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePlaying || !s.timer.Tick() {
		return
	}
	s.phase = PhaseExpired
	s.resetAllLocked(ctx)
	s.log.Info().Msg("time is up")
}

// BeginTimer starts the countdown the player was prompted for.
func (s *Session) BeginTimer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed {
		return ErrClosed
	}
	if !s.opts.Level.TimerEnabled {
		return ErrNoTimer
	}
	if s.phase != PhaseAwaitingStart || !s.timer.Begin() {
		return ErrNotPlaying
	}
	s.phase = PhasePlaying
	return nil
}

// Pause suspends the session and persists the remaining time.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseClosed:
		return ErrClosed
	case PhasePaused:
		return nil
	case PhasePlaying:
	default:
		return ErrNotPlaying
	}
	s.timer.Pause()
	s.phase = PhasePaused
	s.queueTimeLeftLocked()
	return nil
}

// Resume continues a paused session.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseClosed:
		return ErrClosed
	case PhasePlaying:
		return nil
	case PhasePaused:
	default:
		return ErrNotPlaying
	}
	s.timer.Resume()
	s.phase = PhasePlaying
	return nil
}

// Restart begins a new run after a win or a timeout. The reset catalog is
// persisted again and the timer waits for the player.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseClosed:
		return ErrClosed
	case PhaseWon, PhaseExpired:
	default:
		return ErrNotRestarted
	}
	if s.waypoints.Empty() {
		s.needMarkers = true
	}
	if !s.index.Loaded() {
		s.needLyrics = true
	}
	s.fetchMissingLocked(ctx)
	if !s.needMarkers {
		s.pending.markers, s.pending.words = true, true
		s.afterMarkersLoadedLocked()
	}
	if !s.needLyrics {
		s.pending.lyrics = true
	}
	s.flusher.Trigger()
	s.armTimerLocked(nil)
	s.log.Info().Msg("session restarted")
	return nil
}

// Retry refetches source documents that failed to load.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed {
		return ErrClosed
	}
	s.fetchMissingLocked(ctx)
	return nil
}
