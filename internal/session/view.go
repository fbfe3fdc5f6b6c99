package session

import (
	"github.com/songle-game/songle-server/internal/lyrics"
	"github.com/songle-game/songle-server/internal/waypoint"
)

// Marker is a live waypoint as shown on the map.
type Marker struct {
	waypoint.Waypoint
	Hue string `json:"hue"`
}

// TimerView is the countdown as shown to the player.
type TimerView struct {
	State           string `json:"state"`
	Enabled         bool   `json:"enabled"`
	RemainingMillis int64  `json:"remainingMillis"`
	Progress        int    `json:"progress"`
	TotalSeconds    int    `json:"totalSeconds"`
}

// View is a consistent snapshot of the session for rendering.
type View struct {
	ID              string              `json:"id"`
	SongID          string              `json:"songId"`
	Version         string              `json:"version"`
	Difficulty      string              `json:"difficulty"`
	ThresholdMeters float64             `json:"thresholdMeters"`
	Phase           Phase               `json:"phase"`
	Location        *waypoint.Point     `json:"location,omitempty"`
	Markers         []Marker            `json:"markers"`
	Lyrics          []lyrics.MaskedLine `json:"lyrics"`
	WordsCollected  int                 `json:"wordsCollected"`
	Header          string              `json:"header"`
	Timer           TimerView           `json:"timer"`
	Loading         bool                `json:"loading"`
	Notice          string              `json:"notice,omitempty"`
}

// View snapshots the session under its lock.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.waypoints.List()
	markers := make([]Marker, len(list))
	for i, w := range list {
		markers[i] = Marker{Waypoint: w, Hue: w.StyleID.Hue()}
	}
	v := View{
		ID:              s.id,
		SongID:          s.opts.SongID,
		Version:         s.opts.Version,
		Difficulty:      s.opts.Level.Name,
		ThresholdMeters: s.opts.Level.CollectThresholdMeters,
		Phase:           s.phase,
		Markers:         markers,
		Lyrics:          s.index.Masked(),
		WordsCollected:  s.index.Count(),
		Header:          lyrics.CollectedHeader(s.index.Count()),
		Timer: TimerView{
			State:           s.timer.State().String(),
			Enabled:         s.opts.Level.TimerEnabled,
			RemainingMillis: s.timer.Remaining(),
			Progress:        s.timer.Progress(),
			TotalSeconds:    s.timer.TotalSeconds(),
		},
		Loading: s.needMarkers || s.needLyrics,
		Notice:  s.notice,
	}
	if s.location != nil {
		loc := *s.location
		v.Location = &loc
	}
	return v
}

// Words returns a copy of the collected words.
func (s *Session) Words() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Words()
}

// Phase is the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}
