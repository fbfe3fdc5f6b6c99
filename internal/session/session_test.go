package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songle-game/songle-server/internal/difficulty"
	"github.com/songle-game/songle-server/internal/guess"
	"github.com/songle-game/songle-server/internal/lyrics"
	"github.com/songle-game/songle-server/internal/netgate"
	"github.com/songle-game/songle-server/internal/progress"
	"github.com/songle-game/songle-server/internal/proximity"
	"github.com/songle-game/songle-server/internal/source"
	"github.com/songle-game/songle-server/internal/store"
	"github.com/songle-game/songle-server/internal/timer"
	"github.com/songle-game/songle-server/internal/waypoint"
)

// George Square, Edinburgh. 0.001 degrees of latitude is about 111 m.
var base = waypoint.Point{Latitude: 55.9440, Longitude: -3.1880}

func north(m float64) waypoint.Point {
	return waypoint.Point{Latitude: base.Latitude + m/111195, Longitude: base.Longitude}
}

func catalog() []waypoint.Waypoint {
	return []waypoint.Waypoint{
		{Name: "1:1", Description: "boring", Location: base, StyleID: waypoint.StyleBoring},
		{Name: "1:2", Description: "notboring", Location: north(100), StyleID: waypoint.StyleNotBoring},
		{Name: "2:1", Description: "interesting", Location: north(2000), StyleID: waypoint.StyleInteresting},
		{Name: "Old College", Description: "landmark", Location: base, StyleID: waypoint.StyleUnclassified},
	}
}

func songLines() lyrics.Lines {
	return lyrics.ParseString("1 is this\n2 the real life\n")
}

type fakeSource struct {
	gate *netgate.Gate

	mu      sync.Mutex
	wpErr   error
	wpCalls int
	lyCalls int
}

func (f *fakeSource) Waypoints(ctx context.Context, songID, version string) ([]waypoint.Waypoint, error) {
	if f.gate != nil && !f.gate.IsConnected() {
		return nil, source.ErrOffline
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wpCalls++
	if f.wpErr != nil {
		return nil, f.wpErr
	}
	return catalog(), nil
}

func (f *fakeSource) Lyrics(ctx context.Context, songID string) (lyrics.Lines, error) {
	if f.gate != nil && !f.gate.IsConnected() {
		return nil, source.ErrOffline
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lyCalls++
	return songLines(), nil
}

func (f *fakeSource) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wpCalls, f.lyCalls
}

type fakeRenderer struct {
	mu      sync.Mutex
	markers map[string]waypoint.Style
	camera  waypoint.Point
	zoom    float64
	radius  float64
}

func newFakeRenderer() *fakeRenderer { return &fakeRenderer{markers: map[string]waypoint.Style{}} }

func (r *fakeRenderer) AddMarker(pos waypoint.Point, title string, style waypoint.Style) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers[title] = style
}

func (r *fakeRenderer) RemoveMarker(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.markers, title)
}

func (r *fakeRenderer) MoveCamera(pos waypoint.Point, zoom float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.camera, r.zoom = pos, zoom
}

func (r *fakeRenderer) SetCollectionRadius(center waypoint.Point, radius float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.radius = radius
}

func (r *fakeRenderer) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.markers))
	for k := range r.markers {
		out = append(out, k)
	}
	return out
}

type harness struct {
	tree     *store.Memory
	src      *fakeSource
	gate     *netgate.Gate
	renderer *fakeRenderer
	sync     *progress.Synchronizer
}

func newHarness() *harness {
	gate := netgate.New(true)
	tree := store.NewMemory()
	return &harness{
		tree:     tree,
		src:      &fakeSource{gate: gate},
		gate:     gate,
		renderer: newFakeRenderer(),
	}
}

func (h *harness) open(t *testing.T, level difficulty.Level, mod ...func(*Options)) *Session {
	t.Helper()
	opts := Options{
		UserID:   "u1",
		SongID:   "01",
		Version:  level.Version,
		Title:    "Bohemian Rhapsody",
		Level:    level,
		Tree:     h.tree,
		Source:   h.src,
		Gate:     h.gate,
		Renderer: h.renderer,
		Ticks:    make(chan time.Time),
		Logger:   zerolog.Nop(),
	}
	for _, m := range mod {
		m(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)
	h.sync = progress.New(h.tree, "u1", "01", level.Version, zerolog.Nop())
	return s
}

func timed(seconds int) difficulty.Level {
	return difficulty.Level{Version: "1", Name: "Impossible", CollectThresholdMeters: 40, TimeoutSeconds: seconds, TimerEnabled: true}
}

func untimed() difficulty.Level {
	return difficulty.Default()["4"] // 75 m
}

func markerNames(v View) []string {
	out := make([]string, len(v.Markers))
	for i, m := range v.Markers {
		out[i] = m.Name
	}
	return out
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	h := newHarness()
	_, err = New(Options{UserID: "u", SongID: "01", Version: "1", Tree: h.tree, Source: h.src, Gate: h.gate})
	assert.Error(t, err, "threshold required")
}

func TestStartFetchesAndPersists(t *testing.T) {
	h := newHarness()
	s := h.open(t, timed(180))

	v := s.View()
	assert.Equal(t, PhaseAwaitingStart, v.Phase)
	assert.Equal(t, []string{"1:1", "1:2", "2:1", "Old College"}, markerNames(v))
	assert.Equal(t, "yellow", v.Markers[0].Hue)
	assert.Equal(t, "0 words collected", v.Header)
	assert.False(t, v.Loading)
	require.Len(t, v.Lyrics, 2)
	assert.Equal(t, []string{"", ""}, v.Lyrics[0].Words)
	assert.Equal(t, "awaiting_start", v.Timer.State)
	assert.EqualValues(t, 180000, v.Timer.RemainingMillis)

	s.Sync()
	rec, err := h.sync.LoadProgress(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.Markers, 4)
	assert.Empty(t, rec.Words)
	lines, err := h.sync.LoadLyrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, songLines(), lines)

	wp, ly := h.src.calls()
	assert.Equal(t, 1, wp)
	assert.Equal(t, 1, ly)
	assert.ElementsMatch(t, []string{"1:1", "1:2", "2:1", "Old College"}, h.renderer.titles())
}

func TestCollectionTransaction(t *testing.T) {
	h := newHarness()
	s := h.open(t, untimed())
	require.Equal(t, PhasePlaying, s.Phase())

	out, err := s.TapMarker("1:1")
	require.NoError(t, err)
	assert.Equal(t, proximity.Ineligible, out, "no live location yet")

	_, err = s.UpdateLocation(base)
	require.NoError(t, err)

	out, err = s.TapMarker("1:1")
	require.NoError(t, err)
	assert.Equal(t, proximity.Collected, out)
	assert.Equal(t, map[string]string{"1:1": "is"}, s.Words())
	assert.NotContains(t, markerNames(s.View()), "1:1")

	out, _ = s.TapMarker("1:1")
	assert.Equal(t, proximity.Ineligible, out, "already collected")
	out, _ = s.TapMarker("1:2")
	assert.Equal(t, proximity.TooFar, out)
	out, _ = s.TapMarker("Old College")
	assert.Equal(t, proximity.Ineligible, out, "decorative markers are never collected")
	out, _ = s.TapMarker(proximity.LiveLocationTitle)
	assert.Equal(t, proximity.Ineligible, out)

	v := s.View()
	assert.Equal(t, "1 word collected", v.Header)
	assert.Equal(t, []string{"is", ""}, v.Lyrics[0].Words)

	s.Sync()
	rec, err := h.sync.LoadProgress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1:1": "is"}, rec.Words)
	assert.Len(t, rec.Markers, 3)
	assert.NotContains(t, h.renderer.titles(), "1:1")
}

func TestBoundaryIsInclusive(t *testing.T) {
	at := north(100)
	lvl := untimed()
	lvl.CollectThresholdMeters = proximity.Distance(base, at) // exactly the threshold
	h := newHarness()
	s := h.open(t, lvl)
	_, err := s.UpdateLocation(at)
	require.NoError(t, err)
	out, err := s.TapMarker("1:1")
	require.NoError(t, err)
	assert.Equal(t, proximity.Collected, out)
}

func TestConcurrentTapsCollectOnce(t *testing.T) {
	h := newHarness()
	s := h.open(t, untimed())
	_, _ = s.UpdateLocation(base)

	var collected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out, _ := s.TapMarker("1:1"); out == proximity.Collected {
				collected.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, collected.Load())
	v := s.View()
	assert.Equal(t, 1, v.WordsCollected)
	assert.NotContains(t, markerNames(v), "1:1")
}

func TestAutoCollect(t *testing.T) {
	h := newHarness()
	s := h.open(t, untimed(), func(o *Options) { o.AutoCollect = true })
	got, err := s.UpdateLocation(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"1:1"}, got)

	_, err = s.UpdateLocation(waypoint.Point{Latitude: 91})
	assert.ErrorIs(t, err, ErrBadLocation)
}

func TestRendererFollowsLocation(t *testing.T) {
	h := newHarness()
	s := h.open(t, untimed())
	_, _ = s.UpdateLocation(north(10))
	h.renderer.mu.Lock()
	defer h.renderer.mu.Unlock()
	assert.Contains(t, h.renderer.markers, proximity.LiveLocationTitle)
	assert.Equal(t, 17.7, h.renderer.zoom)
	assert.Equal(t, 75.0, h.renderer.radius)
	assert.Equal(t, north(10), h.renderer.camera)
}

func TestResumeFromRecord(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ps := progress.New(h.tree, "u1", "01", "1", zerolog.Nop())
	wps := catalog()
	require.NoError(t, ps.SaveMarkers(ctx, map[string]waypoint.Waypoint{"1:2": wps[1], "2:1": wps[2]}))
	require.NoError(t, ps.SaveWords(ctx, map[string]string{"1:1": "is"}))
	require.NoError(t, ps.SaveLyrics(ctx, songLines()))
	require.NoError(t, ps.SaveTimeLeft(ctx, 42000))

	s := h.open(t, timed(180))
	v := s.View()
	assert.Equal(t, PhasePlaying, v.Phase, "persisted time skips the start prompt")
	assert.EqualValues(t, 42000, v.Timer.RemainingMillis)
	assert.Equal(t, []string{"1:2", "2:1"}, markerNames(v))
	assert.Equal(t, 1, v.WordsCollected)
	wp, ly := h.src.calls()
	assert.Zero(t, wp)
	assert.Zero(t, ly)
}

func TestTimerResetsOnCollection(t *testing.T) {
	h := newHarness()
	s := h.open(t, timed(180))
	require.NoError(t, s.BeginTimer())
	assert.ErrorIs(t, s.BeginTimer(), ErrNotPlaying)

	for i := 0; i < 60; i++ {
		s.Tick(context.Background())
	}
	assert.EqualValues(t, 120000, s.View().Timer.RemainingMillis)
	assert.Equal(t, 60, s.View().Timer.Progress)

	require.NoError(t, s.Pause())
	s.Sync()
	ms, err := h.sync.LoadTimeLeft(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ms)
	assert.EqualValues(t, 120000, *ms)
	require.NoError(t, s.Resume())

	_, _ = s.UpdateLocation(base)
	out, _ := s.TapMarker("1:1")
	require.Equal(t, proximity.Collected, out)
	assert.EqualValues(t, 180000, s.View().Timer.RemainingMillis)

	s.Sync()
	ms, err = h.sync.LoadTimeLeft(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ms, "a reset drops the persisted time")
}

func TestUntimedHasNoTimer(t *testing.T) {
	h := newHarness()
	s := h.open(t, untimed())
	assert.ErrorIs(t, s.BeginTimer(), ErrNoTimer)
	s.Tick(context.Background())
	assert.Equal(t, "disabled", s.View().Timer.State)
}

func TestPauseBlocksMovesAndTicks(t *testing.T) {
	h := newHarness()
	s := h.open(t, timed(10))
	require.NoError(t, s.BeginTimer())
	s.Tick(context.Background())
	require.NoError(t, s.Pause())
	s.Tick(context.Background())
	assert.EqualValues(t, 9000, s.View().Timer.RemainingMillis)
	_, _ = s.UpdateLocation(base)
	_, err := s.TapMarker("1:1")
	assert.ErrorIs(t, err, ErrNotPlaying)
	require.NoError(t, s.Resume())
	assert.Equal(t, PhasePlaying, s.Phase())
}

func TestExpiryResetsAndRestart(t *testing.T) {
	h := newHarness()
	s := h.open(t, timed(3))
	require.NoError(t, s.BeginTimer())
	_, _ = s.UpdateLocation(base)
	out, _ := s.TapMarker("1:1")
	require.Equal(t, proximity.Collected, out)

	for i := 0; i < 3; i++ {
		s.Tick(context.Background())
	}
	v := s.View()
	assert.Equal(t, PhaseExpired, v.Phase)
	assert.Zero(t, v.WordsCollected)
	assert.Len(t, v.Markers, 4, "full catalog restored")
	assert.Equal(t, "awaiting_start", v.Timer.State)
	assert.EqualValues(t, 3000, v.Timer.RemainingMillis)

	s.Sync()
	rec, err := h.sync.LoadProgress(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec, "remote progress cleared")

	_, err = s.TapMarker("1:1")
	assert.ErrorIs(t, err, ErrNotPlaying)

	require.NoError(t, s.Restart(context.Background()))
	assert.Equal(t, PhaseAwaitingStart, s.Phase())
	s.Sync()
	rec, err = h.sync.LoadProgress(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.Markers, 4)
	assert.ErrorIs(t, s.Restart(context.Background()), ErrNotRestarted)
}

func TestResetAllIsIdempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ps := progress.New(h.tree, "u1", "01", "4", zerolog.Nop())
	wps := catalog()
	require.NoError(t, ps.SaveMarkers(ctx, map[string]waypoint.Waypoint{"1:2": wps[1]}))
	require.NoError(t, ps.SaveWords(ctx, map[string]string{"1:1": "is"}))

	s := h.open(t, untimed())
	require.Equal(t, 1, s.View().WordsCollected)

	s.mu.Lock()
	s.resetAllLocked(ctx)
	s.mu.Unlock()
	once := s.View()

	s.mu.Lock()
	s.resetAllLocked(ctx)
	s.mu.Unlock()
	twice := s.View()

	assert.Equal(t, once, twice)
	assert.Zero(t, twice.WordsCollected)
	assert.Len(t, twice.Markers, 4, "resumed catalog is refetched whole")
	wp, _ := h.src.calls()
	assert.Equal(t, 1, wp, "second reset restores locally")

	s.Sync()
	rec, err := ps.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGuessWinsAndMerges(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	completed := progress.NewCompleted(h.tree, "u1", zerolog.Nop())
	require.NoError(t, completed.Save(ctx, "Bohemian Rhapsody", progress.CompletedSong{Number: "01", Completed: true, DifficultiesCompleted: []string{"2"}}))

	s := h.open(t, untimed())
	_, _ = s.UpdateLocation(base)
	_, _ = s.TapMarker("1:1")

	res, err := s.Guess(ctx, "Bohemian Rhap")
	require.NoError(t, err)
	assert.Equal(t, guess.Incorrect, res)
	assert.Equal(t, PhasePlaying, s.Phase())

	res, err = s.Guess(ctx, "bohemian rhapsody")
	require.NoError(t, err)
	assert.Equal(t, guess.Correct, res)
	v := s.View()
	assert.Equal(t, PhaseWon, v.Phase)
	assert.Zero(t, v.WordsCollected)
	assert.Equal(t, timer.Cancelled.String(), v.Timer.State)

	diffs, err := completed.Difficulties(ctx, "Bohemian Rhapsody")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "4"}, diffs)

	// The collection flush may land before or after the reset; either way
	// the record stays cleared.
	s.Sync()
	rec, err := h.sync.LoadProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = s.Guess(ctx, "bohemian rhapsody")
	assert.ErrorIs(t, err, ErrNotPlaying)
}

func TestOfflineStartRetriesOnReconnect(t *testing.T) {
	h := newHarness()
	h.gate.Set(false)
	s := h.open(t, untimed())

	v := s.View()
	assert.True(t, v.Loading)
	assert.Equal(t, NoticeOffline, v.Notice)
	assert.Empty(t, v.Markers)
	wp, ly := h.src.calls()
	assert.Zero(t, wp)
	assert.Zero(t, ly)

	h.gate.Set(true)
	require.Eventually(t, func() bool { return !s.View().Loading }, 2*time.Second, 5*time.Millisecond)
	v = s.View()
	assert.Len(t, v.Markers, 4)
	assert.Empty(t, v.Notice)

	h.gate.Set(false)
	h.gate.Set(true)
	assert.Never(t, func() bool {
		wp, _ := h.src.calls()
		return wp > 1
	}, 100*time.Millisecond, 5*time.Millisecond, "nothing pending, nothing refetched")
}

func TestFailedFetchRetriedOncePerOutage(t *testing.T) {
	h := newHarness()
	h.src.wpErr = &source.FetchError{URL: "x", Status: 500}
	s := h.open(t, untimed())
	assert.Equal(t, NoticeDownload, s.View().Notice)

	h.gate.Set(false)
	h.gate.Set(true)
	require.Eventually(t, func() bool {
		wp, _ := h.src.calls()
		return wp == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		wp, _ := h.src.calls()
		return wp > 2
	}, 100*time.Millisecond, 5*time.Millisecond)

	h.src.mu.Lock()
	h.src.wpErr = nil
	h.src.mu.Unlock()
	require.NoError(t, s.Retry(context.Background()))
	assert.Len(t, s.View().Markers, 4)
}

func TestParseErrorSurfaces(t *testing.T) {
	h := newHarness()
	h.src.wpErr = &waypoint.ParseError{Doc: "kml", Err: errors.New("bad coordinates")}
	s := h.open(t, untimed())
	v := s.View()
	assert.Equal(t, NoticeParse, v.Notice)
	assert.True(t, v.Loading)
}

func TestCloseCancelsAndPersists(t *testing.T) {
	h := newHarness()
	s := h.open(t, timed(60))
	require.NoError(t, s.BeginTimer())
	s.Tick(context.Background())
	s.Close()
	s.Close()

	assert.Equal(t, PhaseClosed, s.Phase())
	assert.Equal(t, "cancelled", s.View().Timer.State)
	ms, err := h.sync.LoadTimeLeft(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ms)
	assert.EqualValues(t, 59000, *ms)

	_, err = s.TapMarker("1:1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistry(t *testing.T) {
	h := newHarness()
	a := h.open(t, untimed())
	b := h.open(t, untimed())
	r := NewRegistry()
	assert.Nil(t, r.Save(a))
	assert.Same(t, a, r.Save(b), "same record replaces")
	assert.Equal(t, 1, r.Len())

	_, err := r.Get(a.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := r.Get(b.ID())
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = r.Delete(b.ID())
	require.NoError(t, err)
	_, err = r.Delete(b.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryDetach(t *testing.T) {
	h := newHarness()
	a := h.open(t, untimed())
	r := NewRegistry()
	r.Save(a)

	assert.Nil(t, r.Detach("u1", "01", "5"), "other version")
	assert.Same(t, a, r.Detach("u1", "01", a.opts.Version))
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Detach("u1", "01", a.opts.Version))

	b := h.open(t, untimed())
	assert.Nil(t, r.Save(b), "detached session is not replaced again")
}
