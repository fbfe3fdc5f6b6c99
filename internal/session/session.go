// internal/session/session.go
//
// Session controller for one player on one song at one difficulty.
//
// Responsibilities:
//   - Populate the waypoint store and lyrics index from the progress record,
//     falling back to the source documents (and persisting what was fetched).
//   - Apply player events: location updates, marker taps, guesses, timer
//     ticks, pause/resume, restart.
//   - Keep the collected words, the waypoint store, the timer and the
//     remote record consistent.
//
// Concurrency:
//   - Every event runs inside one critical section (mu). A collection is
//     remove waypoint -> record word -> reset timer, all under mu, with the
//     store removal as the linearization point.
//   - Remote snapshot writes run on a background Flusher that reads the
//     current state at write time. A reset bumps gen and deletes the
//     record under writeMu, so a flush prepared before the reset is dropped
//     instead of resurrecting cleared progress. Lock order is mu -> writeMu.
//   - Connectivity transitions arrive through a mailbox drained by a
//     goroutine, so the gate callback never waits on mu.

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/songle-game/songle-server/internal/difficulty"
	"github.com/songle-game/songle-server/internal/guess"
	"github.com/songle-game/songle-server/internal/lyrics"
	"github.com/songle-game/songle-server/internal/netgate"
	"github.com/songle-game/songle-server/internal/progress"
	"github.com/songle-game/songle-server/internal/source"
	"github.com/songle-game/songle-server/internal/store"
	"github.com/songle-game/songle-server/internal/timer"
	"github.com/songle-game/songle-server/internal/waypoint"
)

var (
	ErrNotPlaying   = errors.New("session is not accepting moves")
	ErrClosed       = errors.New("session closed")
	ErrNoTimer      = errors.New("difficulty has no timer")
	ErrBadLocation  = errors.New("location out of range")
	ErrNotRestarted = errors.New("session can only restart after it ended")
)

// Notices shown to the player.
const (
	NoticeOffline    = "Network status: OFFLINE"
	NoticeParse      = "Oops! Something went wrong while reading the song files. Try again."
	NoticeDownload   = "Oops! Something went wrong while downloading the necessary files."
	liveMarkerZoom   = 17.7
	loadedCameraZoom = 18
)

// Phase is the player-facing state of a session.
type Phase string

const (
	PhaseAwaitingStart Phase = "awaiting_start"
	PhasePlaying       Phase = "playing"
	PhasePaused        Phase = "paused"
	PhaseWon           Phase = "won"
	PhaseExpired       Phase = "expired"
	PhaseClosed        Phase = "closed"
)

// Source retrieves the song documents. *source.Fetcher implements it.
type Source interface {
	Waypoints(ctx context.Context, songID, version string) ([]waypoint.Waypoint, error)
	Lyrics(ctx context.Context, songID string) (lyrics.Lines, error)
}

// Options configures a Session.
type Options struct {
	UserID  string
	SongID  string
	Version string
	Title   string // answer for guesses
	Level   difficulty.Level

	// AutoCollect collects every word waypoint in range on each location
	// update, instead of waiting for a tap.
	AutoCollect bool

	Tree     store.Tree
	Source   Source
	Gate     *netgate.Gate
	Renderer Renderer

	// Ticks drives the countdown. Nil uses a one second ticker.
	Ticks <-chan time.Time

	Logger zerolog.Logger
}

// pendingOps are the remote writes waiting for the next flush.
type pendingOps struct {
	lyrics   bool
	markers  bool
	words    bool
	newWords map[string]string
	timeLeft *int64 // set when >= 0, clear when < 0
}

func (p pendingOps) empty() bool {
	return !p.lyrics && !p.markers && !p.words && len(p.newWords) == 0 && p.timeLeft == nil
}

// Session is one player's game on one song and difficulty.
type Session struct {
	id   string
	opts Options
	log  zerolog.Logger

	sync      *progress.Synchronizer
	completed *progress.Completed
	resolver  *guess.Resolver
	flusher   *progress.Flusher

	mu             sync.Mutex
	waypoints      *waypoint.Store
	index          *lyrics.Index
	timer          *timer.Timer
	phase          Phase
	location       *waypoint.Point
	drawn          map[string]struct{} // markers on the renderer
	started        bool
	needMarkers    bool // waypoints still to be fetched
	needLyrics     bool // lyrics still to be fetched
	pendingOffline bool // the last fetch was denied by the gate
	notice         string
	pending        pendingOps

	writeMu sync.Mutex
	gen     atomic.Uint64 // bumped by every reset

	netCh     chan bool
	sawOutage atomic.Bool

	cancel     context.CancelFunc
	done       sync.WaitGroup
	unsubStore func()
	unsubGate  func()
}

// New validates opts and constructs a Session. Call Start to load it.
func New(opts Options) (*Session, error) {
	switch {
	case opts.UserID == "" || opts.SongID == "" || opts.Version == "":
		return nil, errors.New("session: user, song and version are required")
	case opts.Tree == nil || opts.Source == nil || opts.Gate == nil:
		return nil, errors.New("session: tree, source and gate are required")
	case opts.Level.CollectThresholdMeters <= 0:
		return nil, errors.New("session: collect threshold must be positive")
	}
	if opts.Renderer == nil {
		opts.Renderer = nopRenderer{}
	}
	id := ulid.Make().String()
	logger := opts.Logger.With().
		Str("session", id).
		Str("user", opts.UserID).
		Str("song", opts.SongID).
		Str("version", opts.Version).
		Logger()

	s := &Session{
		id:        id,
		opts:      opts,
		log:       logger,
		sync:      progress.New(opts.Tree, opts.UserID, opts.SongID, opts.Version, logger),
		completed: progress.NewCompleted(opts.Tree, opts.UserID, logger),
		resolver:  guess.NewResolver(opts.Title),
		waypoints: waypoint.NewStore(),
		index:     lyrics.NewIndex(),
		timer:     timer.New(),
		phase:     PhasePlaying,
		netCh:     make(chan bool, 1),
	}
	s.flusher = progress.NewFlusher(s.flush, logger)
	return s, nil
}

// ID is the session's unique id.
func (s *Session) ID() string { return s.id }

// UserID is the owning player.
func (s *Session) UserID() string { return s.opts.UserID }

// Start loads progress, falls back to the source documents, arms the timer
// and starts the background workers. ctx bounds the loading only; the
// workers run until Close.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("session: already started")
	}
	s.started = true
	s.unsubStore = s.waypoints.Subscribe(s.render)

	rec, _ := s.sync.LoadProgress(ctx)
	if rec != nil {
		s.waypoints.Load(rec.Markers, false)
		s.index.SetWords(rec.Words)
		s.log.Info().Int("markers", len(rec.Markers)).Int("words", len(rec.Words)).Msg("progress resumed")
	} else {
		s.needMarkers = true
	}
	lines, _ := s.sync.LoadLyrics(ctx)
	if lines != nil {
		s.index.SetLines(lines)
	} else {
		s.needLyrics = true
	}
	s.fetchMissingLocked(ctx)
	if rec != nil {
		s.afterMarkersLoadedLocked()
	}

	var resume *int64
	if s.opts.Level.TimerEnabled {
		resume, _ = s.sync.LoadTimeLeft(ctx)
	}
	s.armTimerLocked(resume)
	s.mu.Unlock()

	s.startWorkers()
	return nil
}

func (s *Session) startWorkers() {
	wctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	ticks := s.opts.Ticks
	var ticker *time.Ticker
	if ticks == nil {
		ticker = time.NewTicker(timer.TickInterval)
		ticks = ticker.C
	}

	s.done.Add(3)
	go func() {
		defer s.done.Done()
		s.flusher.Run(wctx)
	}()
	go func() {
		defer s.done.Done()
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-wctx.Done():
				return
			case <-ticks:
				s.Tick(wctx)
			}
		}
	}()
	go func() {
		defer s.done.Done()
		s.watchNetwork(wctx)
	}()

	// Delivers the current state right away; the watcher picks it up.
	s.unsubGate = s.opts.Gate.OnTransition(s.onConnectivity)
}

// armTimerLocked starts a fresh countdown, resuming from resume when set.
func (s *Session) armTimerLocked(resume *int64) {
	switch s.timer.Start(s.opts.Level.Timeout(), s.opts.Level.TimerEnabled, resume) {
	case timer.AwaitingUserStart:
		s.phase = PhaseAwaitingStart
	default:
		s.phase = PhasePlaying
	}
}

// fetchMissingLocked fetches whatever the store and index still lack.
// Failures leave the need flags set for a later retry.
func (s *Session) fetchMissingLocked(ctx context.Context) {
	if !s.needMarkers && !s.needLyrics {
		return
	}
	s.pendingOffline = false
	s.notice = ""
	gen := s.gen.Load()

	if s.needMarkers {
		wps, err := s.opts.Source.Waypoints(ctx, s.opts.SongID, s.opts.Version)
		if err != nil {
			s.noteFetchErrorLocked("kml", err)
		} else {
			s.needMarkers = false
			s.waypoints.Load(wps, true)
			s.index.ClearWords()
			s.pending.markers, s.pending.words = true, true
			s.afterMarkersLoadedLocked()
		}
	}
	if s.needLyrics {
		lines, err := s.opts.Source.Lyrics(ctx, s.opts.SongID)
		if err != nil {
			s.noteFetchErrorLocked("lyrics", err)
		} else {
			s.needLyrics = false
			s.index.SetLines(lines)
			s.pending.lyrics = true
		}
	}
	if gen == s.gen.Load() && !s.pending.empty() {
		s.flusher.Trigger()
	}
}

func (s *Session) noteFetchErrorLocked(doc string, err error) {
	var perr *waypoint.ParseError
	switch {
	case errors.Is(err, source.ErrOffline):
		s.pendingOffline = true
		s.notice = NoticeOffline
		s.log.Info().Str("doc", doc).Msg("offline; fetch deferred until reconnect")
	case errors.As(err, &perr):
		s.notice = NoticeParse
		s.log.Warn().Err(err).Str("doc", doc).Msg("source document malformed")
	default:
		if s.notice == "" {
			s.notice = NoticeDownload
		}
		s.log.Warn().Err(err).Str("doc", doc).Msg("source document fetch failed")
	}
}

// afterMarkersLoadedLocked points the camera at the player, or else at the
// last waypoint placed.
func (s *Session) afterMarkersLoadedLocked() {
	if s.location != nil {
		s.opts.Renderer.MoveCamera(*s.location, loadedCameraZoom)
		return
	}
	if list := s.waypoints.List(); len(list) > 0 {
		s.opts.Renderer.MoveCamera(list[len(list)-1].Location, loadedCameraZoom)
	}
}

// resetAllLocked clears collected words, restores the full waypoint
// catalog, rewinds the timer and deletes the remote record. Calling it
// twice leaves the same state as calling it once.
func (s *Session) resetAllLocked(ctx context.Context) {
	s.gen.Add(1)
	s.pending = pendingOps{}

	s.index.ClearWords()
	if !s.waypoints.Restore() {
		// A resumed catalog lacks the collected waypoints: fetch it whole.
		s.needMarkers = true
		s.fetchMissingLocked(ctx)
		s.pending = pendingOps{}
	}
	s.timer.Rewind()

	s.writeMu.Lock()
	_ = s.sync.ResetAll(ctx)
	s.writeMu.Unlock()
	s.log.Info().Msg("progress reset")
}

// Sync blocks until every remote write requested so far has been attempted.
func (s *Session) Sync() { s.flusher.Wait() }

// Close tears the session down: the remaining time is persisted, the
// timer is cancelled and the workers stop after a final flush.
func (s *Session) Close() {
	s.mu.Lock()
	if s.phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	if s.phase != PhaseWon {
		s.queueTimeLeftLocked()
	}
	s.timer.Cancel()
	s.phase = PhaseClosed
	if s.unsubStore != nil {
		s.unsubStore()
	}
	s.mu.Unlock()

	if s.unsubGate != nil {
		s.unsubGate()
	}
	if s.cancel != nil {
		s.cancel()
		s.done.Wait()
	}
	s.log.Info().Msg("session closed")
}

// queueTimeLeftLocked schedules the remaining countdown for persistence.
func (s *Session) queueTimeLeftLocked() {
	if !s.timer.Persistable() {
		return
	}
	ms := s.timer.Remaining()
	s.pending.timeLeft = &ms
	s.flusher.Trigger()
}
