package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/songle-game/songle-server/internal/progress"
	"github.com/songle-game/songle-server/internal/source"
)

var errUnknownSong = errors.New("unknown song")

// songCache keeps the last song list that was fetched successfully.
type songCache struct {
	mu    sync.Mutex
	songs []source.Song
}

func (s *Server) songList(ctx context.Context) ([]source.Song, error) {
	s.songs.mu.Lock()
	cached := s.songs.songs
	s.songs.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	songs, err := s.catalog.Songs(ctx)
	if err != nil {
		return nil, err
	}
	s.songs.mu.Lock()
	s.songs.songs = songs
	s.songs.mu.Unlock()
	return songs, nil
}

func (s *Server) songByNumber(ctx context.Context, number string) (source.Song, error) {
	songs, err := s.songList(ctx)
	if err != nil {
		return source.Song{}, err
	}
	for _, song := range songs {
		if song.Number == number {
			return song, nil
		}
	}
	return source.Song{}, errUnknownSong
}

// songRes is one entry of GET /songs. Titles and links are withheld: the
// title is what the player has to guess.
type songRes struct {
	Number    string   `json:"number"`
	Artist    string   `json:"artist"`
	Completed []string `json:"completed"`
}

// handleSongs lists the songs with the caller's completed difficulties.
// An unreadable completed list degrades to empty.
func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	if me == nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	songs, err := s.songList(r.Context())
	if err != nil {
		if errors.Is(err, source.ErrOffline) {
			http.Error(w, `{"error":"offline"}`, http.StatusServiceUnavailable)
			return
		}
		s.log.Warn().Err(err).Msg("song list")
		http.Error(w, `{"error":"songs_unavailable"}`, http.StatusBadGateway)
		return
	}
	done, err := progress.NewCompleted(s.tree, me.ID, s.log).All(r.Context())
	if err != nil {
		s.log.Warn().Err(err).Str("user", me.ID).Msg("completed songs unreadable")
		done = map[string]progress.CompletedSong{}
	}
	out := make([]songRes, 0, len(songs))
	for _, song := range songs {
		c := done[song.Title].DifficultiesCompleted
		if c == nil {
			c = []string{}
		}
		out = append(out, songRes{Number: song.Number, Artist: song.Artist, Completed: c})
	}
	_ = json.NewEncoder(w).Encode(out)
}
