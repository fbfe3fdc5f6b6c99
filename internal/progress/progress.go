// internal/progress/progress.go
//
// Progress synchronizer: reads and writes a player's per-song progress
// record in the remote tree.
//
// Layout:
//
//	users/{userId}/progress/{songId}-{version}/
//	  lyrics/{line}: [word, ...]
//	  markers/{name}: {name, description, location:{latitude,longitude}, styleId}
//	  words/{line}:{position}: word
//	  timeLeft: millis
//	users/{userId}/completed-songs/{title}/difficultiesCompleted/{i}: version
//
// Read failures are RemoteReadError and callers treat them as absent.
// Write failures are RemoteWriteError; they are logged and not retried,
// since the next save sends the whole current snapshot again.

package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/songle-game/songle-server/internal/lyrics"
	"github.com/songle-game/songle-server/internal/store"
	"github.com/songle-game/songle-server/internal/waypoint"
)

// RemoteReadError wraps a failed read of the remote store.
type RemoteReadError struct {
	Path string
	Err  error
}

func (e *RemoteReadError) Error() string { return "remote read " + e.Path + ": " + e.Err.Error() }

func (e *RemoteReadError) Unwrap() error { return e.Err }

// RemoteWriteError wraps a failed write to the remote store.
type RemoteWriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *RemoteWriteError) Error() string {
	return "remote " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// Record is a decoded progress record.
type Record struct {
	Markers  []waypoint.Waypoint
	Words    map[string]string
	TimeLeft *int64 // millis; nil when never persisted
}

type wireRecord struct {
	Markers  json.RawMessage   `json:"markers"`
	Words    map[string]string `json:"words"`
	TimeLeft *int64            `json:"timeLeft"`
}

// Synchronizer reads and writes one user's record for one song+difficulty.
type Synchronizer struct {
	tree    store.Tree
	userID  string
	songID  string
	version string
	log     zerolog.Logger
}

// New constructs a Synchronizer.
func New(tree store.Tree, userID, songID, version string, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{tree: tree, userID: userID, songID: songID, version: version, log: logger}
}

// Path is the root of the progress record.
func (s *Synchronizer) Path() string {
	return store.Join("users", s.userID, "progress", s.songID+"-"+s.version)
}

func (s *Synchronizer) child(name string) string { return s.Path() + "/" + name }

// LoadProgress reads the collected words, remaining markers and persisted
// time. It returns nil when there is no progress for this song yet.
// On a read or decode failure it logs, returns nil and the error; the
// caller proceeds as if the record were absent.
func (s *Synchronizer) LoadProgress(ctx context.Context) (*Record, error) {
	raw, ok, err := s.tree.ReadOnce(ctx, s.Path())
	if err != nil {
		rerr := &RemoteReadError{Path: s.Path(), Err: err}
		s.log.Warn().Err(rerr).Msg("load progress; treating as absent")
		return nil, rerr
	}
	if !ok {
		return nil, nil
	}
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		rerr := &RemoteReadError{Path: s.Path(), Err: fmt.Errorf("decode: %w", err)}
		s.log.Warn().Err(rerr).Msg("load progress; treating as absent")
		return nil, rerr
	}
	markers, err := waypoint.DecodeMarkers(w.Markers)
	if err != nil {
		rerr := &RemoteReadError{Path: s.Path(), Err: err}
		s.log.Warn().Err(rerr).Msg("load progress; treating as absent")
		return nil, rerr
	}
	if len(markers) == 0 && len(w.Words) == 0 {
		// Only lyrics or a timer were saved: no map progress yet.
		return nil, nil
	}
	if w.Words == nil {
		w.Words = map[string]string{}
	}
	return &Record{Markers: markers, Words: w.Words, TimeLeft: w.TimeLeft}, nil
}

// LoadLyrics reads the cached lyrics. It returns nil when none are cached.
func (s *Synchronizer) LoadLyrics(ctx context.Context) (lyrics.Lines, error) {
	raw, ok, err := s.tree.ReadOnce(ctx, s.child("lyrics"))
	if err != nil {
		rerr := &RemoteReadError{Path: s.child("lyrics"), Err: err}
		s.log.Warn().Err(rerr).Msg("load lyrics; treating as absent")
		return nil, rerr
	}
	if !ok {
		return nil, nil
	}
	lines, err := lyrics.Decode(raw)
	if err != nil {
		rerr := &RemoteReadError{Path: s.child("lyrics"), Err: err}
		s.log.Warn().Err(rerr).Msg("load lyrics; treating as absent")
		return nil, rerr
	}
	return lines, nil
}

// LoadTimeLeft reads the persisted remaining time, if any.
func (s *Synchronizer) LoadTimeLeft(ctx context.Context) (*int64, error) {
	raw, ok, err := s.tree.ReadOnce(ctx, s.child("timeLeft"))
	if err != nil {
		rerr := &RemoteReadError{Path: s.child("timeLeft"), Err: err}
		s.log.Warn().Err(rerr).Msg("load timeLeft; treating as absent")
		return nil, rerr
	}
	if !ok {
		return nil, nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		rerr := &RemoteReadError{Path: s.child("timeLeft"), Err: err}
		s.log.Warn().Err(rerr).Msg("load timeLeft; treating as absent")
		return nil, rerr
	}
	return &ms, nil
}

// SaveIncrementalWord adds one collected word without touching the others.
func (s *Synchronizer) SaveIncrementalWord(ctx context.Context, key, word string) error {
	return s.wrap("update", s.child("words"),
		s.tree.WriteChildren(ctx, s.child("words"), map[string]any{key: word}))
}

// SaveMarkers overwrites the markers subtree with snapshot.
func (s *Synchronizer) SaveMarkers(ctx context.Context, snapshot map[string]waypoint.Waypoint) error {
	return s.wrap("set", s.child("markers"), s.tree.SetValue(ctx, s.child("markers"), snapshot))
}

// SaveWords overwrites the words subtree with snapshot.
func (s *Synchronizer) SaveWords(ctx context.Context, snapshot map[string]string) error {
	return s.wrap("set", s.child("words"), s.tree.SetValue(ctx, s.child("words"), snapshot))
}

// SaveLyrics overwrites the cached lyrics. Saving the same lines again is harmless.
func (s *Synchronizer) SaveLyrics(ctx context.Context, lines lyrics.Lines) error {
	return s.wrap("set", s.child("lyrics"), s.tree.SetValue(ctx, s.child("lyrics"), lines))
}

// SaveTimeLeft persists the remaining countdown.
func (s *Synchronizer) SaveTimeLeft(ctx context.Context, millis int64) error {
	return s.wrap("set", s.child("timeLeft"), s.tree.SetValue(ctx, s.child("timeLeft"), millis))
}

// ClearTimeLeft drops the persisted countdown.
func (s *Synchronizer) ClearTimeLeft(ctx context.Context) error {
	return s.wrap("delete", s.child("timeLeft"), s.tree.DeleteValue(ctx, s.child("timeLeft")))
}

// ResetAll deletes the whole progress record.
func (s *Synchronizer) ResetAll(ctx context.Context) error {
	return s.wrap("delete", s.Path(), s.tree.DeleteValue(ctx, s.Path()))
}

func (s *Synchronizer) wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	werr := &RemoteWriteError{Op: op, Path: path, Err: err}
	s.log.Warn().Err(werr).Msg("remote write failed")
	return werr
}
