// internal/httpserver/routes_sessions.go
//
// HTTP routes for game sessions, all under /sessions:
//   - POST   /sessions                    → start a session for {songId, version}
//   - GET    /sessions/{id}               → session view + map state
//   - POST   /sessions/{id}/location      → live location update
//   - POST   /sessions/{id}/tap           → try to collect a marker
//   - POST   /sessions/{id}/guess         → guess the song title
//   - POST   /sessions/{id}/timer/start   → start the countdown
//   - POST   /sessions/{id}/pause|resume  → suspend / continue
//   - POST   /sessions/{id}/restart       → new run after a win or timeout
//   - POST   /sessions/{id}/retry         → refetch documents that failed
//   - DELETE /sessions/{id}               → teardown, progress persisted
//
// Sessions live in memory (session.Registry); progress lives in the tree.
// Starting a session for a record that already has a live one closes the
// old one first, so its progress is on the record before the new one loads.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/songle-game/songle-server/internal/session"
	"github.com/songle-game/songle-server/internal/source"
	"github.com/songle-game/songle-server/internal/waypoint"
)

// sessionRoutes wraps dependencies for /sessions endpoints.
type sessionRoutes struct {
	srv  *Server
	mu   sync.Mutex          // guards maps
	maps map[string]*mapView // renderer per session ID
}

// mountSessions registers all /sessions routes.
func (s *Server) mountSessions(r chi.Router) *sessionRoutes {
	sr := &sessionRoutes{srv: s, maps: make(map[string]*mapView)}
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", sr.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", sr.handleGet)
			r.Delete("/", sr.handleDelete)
			r.Post("/location", sr.handleLocation)
			r.Post("/tap", sr.handleTap)
			r.Post("/guess", sr.handleGuess)
			r.Post("/timer/start", sr.handleTimerStart)
			r.Post("/pause", sr.handlePause)
			r.Post("/resume", sr.handleResume)
			r.Post("/restart", sr.handleRestart)
			r.Post("/retry", sr.handleRetry)
		})
	})
	return sr
}

// sessionRes is the session view plus what the map should show.
type sessionRes struct {
	session.View
	Map mapRes `json:"map"`
}

func (sr *sessionRoutes) mapFor(id string) *mapView {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if m, ok := sr.maps[id]; ok {
		return m
	}
	return newMapView()
}

func (sr *sessionRoutes) render(sess *session.Session) sessionRes {
	return sessionRes{View: sess.View(), Map: sr.mapFor(sess.ID()).snapshot()}
}

// lookup resolves {id} to a session owned by the caller. Sessions of
// other users are reported as missing.
func (sr *sessionRoutes) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	me := currentUser(r)
	if me == nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return nil, false
	}
	sess, err := sr.srv.registry.Get(chi.URLParam(r, "id"))
	if err != nil || sess.UserID() != me.ID {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// writeSessionErr maps session errors onto status codes.
func writeSessionErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	case errors.Is(err, session.ErrClosed):
		http.Error(w, `{"error":"session_closed"}`, http.StatusGone)
	case errors.Is(err, session.ErrBadLocation):
		http.Error(w, `{"error":"bad_location"}`, http.StatusBadRequest)
	case errors.Is(err, session.ErrNoTimer):
		http.Error(w, `{"error":"no_timer"}`, http.StatusConflict)
	case errors.Is(err, session.ErrNotPlaying), errors.Is(err, session.ErrNotRestarted):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusConflict)
	default:
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
	}
}

func (sr *sessionRoutes) closeAll() {
	sr.srv.registry.CloseAll()
	sr.mu.Lock()
	sr.maps = make(map[string]*mapView)
	sr.mu.Unlock()
}

// -----------------------------------------------------------------------------
// POST /sessions

type createReq struct {
	SongID  string `json:"songId"`
	Version string `json:"version"`
}

// handleCreate starts a session: progress is resumed from the tree or the
// song documents are fetched.
func (sr *sessionRoutes) handleCreate(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	if me == nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	req.SongID = strings.TrimSpace(req.SongID)
	if req.SongID == "" || strings.Contains(req.SongID, "/") {
		http.Error(w, `{"error":"invalid_song"}`, http.StatusBadRequest)
		return
	}
	level, err := sr.srv.cfg.Difficulties.Lookup(req.Version)
	if err != nil {
		http.Error(w, `{"error":"unknown_version"}`, http.StatusBadRequest)
		return
	}
	song, err := sr.srv.songByNumber(r.Context(), req.SongID)
	switch {
	case errors.Is(err, source.ErrOffline):
		http.Error(w, `{"error":"offline"}`, http.StatusServiceUnavailable)
		return
	case errors.Is(err, errUnknownSong):
		http.Error(w, `{"error":"unknown_song"}`, http.StatusNotFound)
		return
	case err != nil:
		sr.srv.log.Warn().Err(err).Msg("song list")
		http.Error(w, `{"error":"songs_unavailable"}`, http.StatusBadGateway)
		return
	}

	// The record has one writer: the previous session finishes its final
	// flush before the new one reads the record.
	if old := sr.srv.registry.Detach(me.ID, song.Number, level.Version); old != nil {
		old.Close()
		sr.drop(old.ID())
	}

	mv := newMapView()
	sess, err := session.New(session.Options{
		UserID:      me.ID,
		SongID:      song.Number,
		Version:     level.Version,
		Title:       song.Title,
		Level:       level,
		AutoCollect: sr.srv.cfg.AutoCollect,
		Tree:        sr.srv.tree,
		Source:      sr.srv.catalog,
		Gate:        sr.srv.gate,
		Renderer:    mv,
		Logger:      sr.srv.log,
	})
	if err != nil {
		sr.srv.log.Error().Err(err).Msg("new session")
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	sr.mu.Lock()
	sr.maps[sess.ID()] = mv
	sr.mu.Unlock()
	if err := sess.Start(r.Context()); err != nil {
		sr.drop(sess.ID())
		sess.Close()
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	if old := sr.srv.registry.Save(sess); old != nil {
		// A concurrent create for the same record won the race above.
		sr.drop(old.ID())
		old.Close()
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(sr.render(sess))
}

func (sr *sessionRoutes) drop(id string) {
	sr.mu.Lock()
	delete(sr.maps, id)
	sr.mu.Unlock()
}

// -----------------------------------------------------------------------------
// GET / DELETE /sessions/{id}

func (sr *sessionRoutes) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := sr.lookup(w, r)
	if !ok {
		return
	}
	_ = json.NewEncoder(w).Encode(sr.render(sess))
}

// handleDelete tears the session down; the timer is cancelled and the
// remaining time persisted.
func (sr *sessionRoutes) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := sr.lookup(w, r)
	if !ok {
		return
	}
	if _, err := sr.srv.registry.Delete(sess.ID()); err != nil {
		writeSessionErr(w, err)
		return
	}
	sess.Close()
	sr.drop(sess.ID())
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// -----------------------------------------------------------------------------
// player events

type locationRes struct {
	Collected []string   `json:"collected"`
	Session   sessionRes `json:"session"`
}

func (sr *sessionRoutes) handleLocation(w http.ResponseWriter, r *http.Request) {
	sess, ok := sr.lookup(w, r)
	if !ok {
		return
	}
	var p waypoint.Point
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	got, err := sess.UpdateLocation(p)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	if got == nil {
		got = []string{}
	}
	_ = json.NewEncoder(w).Encode(locationRes{Collected: got, Session: sr.render(sess)})
}

type tapReq struct {
	Marker string `json:"marker"`
}

type tapRes struct {
	Outcome string     `json:"outcome"`
	Session sessionRes `json:"session"`
}

func (sr *sessionRoutes) handleTap(w http.ResponseWriter, r *http.Request) {
	sess, ok := sr.lookup(w, r)
	if !ok {
		return
	}
	var req tapReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Marker == "" {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	out, err := sess.TapMarker(req.Marker)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(tapRes{Outcome: string(out), Session: sr.render(sess)})
}

type guessReq struct {
	Title string `json:"title"`
}

type guessRes struct {
	Result  string     `json:"result"`
	Session sessionRes `json:"session"`
}

func (sr *sessionRoutes) handleGuess(w http.ResponseWriter, r *http.Request) {
	sess, ok := sr.lookup(w, r)
	if !ok {
		return
	}
	var req guessReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	res, err := sess.Guess(r.Context(), req.Title)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(guessRes{Result: res.String(), Session: sr.render(sess)})
}

// handleEvent runs a parameterless session event and returns the view.
func (sr *sessionRoutes) handleEvent(fn func(*session.Session, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sr.lookup(w, r)
		if !ok {
			return
		}
		if err := fn(sess, r); err != nil {
			writeSessionErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(sr.render(sess))
	}
}

func (sr *sessionRoutes) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	sr.handleEvent(func(s *session.Session, _ *http.Request) error { return s.BeginTimer() })(w, r)
}

// handlePause waits for the remaining time to be written, so a client
// that pauses and quits does not lose it.
func (sr *sessionRoutes) handlePause(w http.ResponseWriter, r *http.Request) {
	sr.handleEvent(func(s *session.Session, _ *http.Request) error {
		if err := s.Pause(); err != nil {
			return err
		}
		s.Sync()
		return nil
	})(w, r)
}

func (sr *sessionRoutes) handleResume(w http.ResponseWriter, r *http.Request) {
	sr.handleEvent(func(s *session.Session, _ *http.Request) error { return s.Resume() })(w, r)
}

func (sr *sessionRoutes) handleRestart(w http.ResponseWriter, r *http.Request) {
	sr.handleEvent(func(s *session.Session, r *http.Request) error { return s.Restart(r.Context()) })(w, r)
}

func (sr *sessionRoutes) handleRetry(w http.ResponseWriter, r *http.Request) {
	sr.handleEvent(func(s *session.Session, r *http.Request) error { return s.Retry(r.Context()) })(w, r)
}
