package progress

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/songle-game/songle-server/internal/store"
)

// Completed reads and writes users/{userId}/completed-songs.
type Completed struct {
	tree   store.Tree
	userID string
	log    zerolog.Logger
}

// NewCompleted constructs a Completed for userID.
func NewCompleted(tree store.Tree, userID string, logger zerolog.Logger) *Completed {
	return &Completed{tree: tree, userID: userID, log: logger}
}

func (c *Completed) songPath(title string) string {
	return store.Join("users", c.userID, "completed-songs", title)
}

// CompletedSong is the remote shape of one completed song.
type CompletedSong struct {
	Number                string   `json:"number,omitempty"`
	Completed             bool     `json:"completed"`
	DifficultiesCompleted []string `json:"difficultiesCompleted"`
}

// Difficulties returns the versions already completed for title.
func (c *Completed) Difficulties(ctx context.Context, title string) ([]string, error) {
	path := c.songPath(title) + "/difficultiesCompleted"
	raw, ok, err := c.tree.ReadOnce(ctx, path)
	if err != nil {
		return nil, &RemoteReadError{Path: path, Err: err}
	}
	if !ok {
		return nil, nil
	}
	return decodeDifficulties(raw)
}

// decodeDifficulties accepts both an array and an index-keyed object.
func decodeDifficulties(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var byIndex map[string]string
	if err := json.Unmarshal(raw, &byIndex); err != nil {
		return nil, err
	}
	// Indices may have gaps; keep every entry in index order.
	idx := make([]int, 0, len(byIndex))
	for k := range byIndex {
		if i, err := strconv.Atoi(k); err == nil && i >= 0 {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, byIndex[strconv.Itoa(i)])
	}
	return out, nil
}

// Save writes the completed-song entry for title.
func (c *Completed) Save(ctx context.Context, title string, song CompletedSong) error {
	path := store.Join("users", c.userID, "completed-songs")
	if err := c.tree.WriteChildren(ctx, path, map[string]any{title: song}); err != nil {
		werr := &RemoteWriteError{Op: "update", Path: path, Err: err}
		c.log.Warn().Err(werr).Msg("save completed song")
		return werr
	}
	return nil
}

// All returns every completed song of the user keyed by title.
func (c *Completed) All(ctx context.Context) (map[string]CompletedSong, error) {
	path := store.Join("users", c.userID, "completed-songs")
	raw, ok, err := c.tree.ReadOnce(ctx, path)
	if err != nil {
		return nil, &RemoteReadError{Path: path, Err: err}
	}
	out := map[string]CompletedSong{}
	if !ok {
		return out, nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &RemoteReadError{Path: path, Err: err}
	}
	for title, entry := range entries {
		var cs struct {
			Number                string          `json:"number"`
			Completed             bool            `json:"completed"`
			DifficultiesCompleted json.RawMessage `json:"difficultiesCompleted"`
		}
		if err := json.Unmarshal(entry, &cs); err != nil {
			continue
		}
		diffs, _ := decodeDifficulties(cs.DifficultiesCompleted)
		out[title] = CompletedSong{Number: cs.Number, Completed: cs.Completed, DifficultiesCompleted: diffs}
	}
	return out, nil
}
