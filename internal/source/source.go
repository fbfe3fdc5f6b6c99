// internal/source/source.go
//
// Fetches the song source documents over HTTP:
//
//	{base}/songs.xml                 song list
//	{base}/{songId}/map{version}.kml waypoints for one difficulty
//	{base}/{songId}/words.txt        numbered lyrics
//
// Fetches are denied with ErrOffline while the connectivity gate reports
// no network; they are never attempted in that state. Concurrent fetches
// of the same URL share one request (singleflight), so a reconnect storm
// cannot issue duplicates.

package source

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/songle-game/songle-server/internal/lyrics"
	"github.com/songle-game/songle-server/internal/netgate"
	"github.com/songle-game/songle-server/internal/waypoint"
)

var (
	// ErrOffline is returned without any network attempt while disconnected.
	ErrOffline = errors.New("network unavailable")
	// ErrTooLarge is wrapped in a FetchError when a document exceeds MaxBytes.
	ErrTooLarge = errors.New("document too large")
)

// maxDocumentBytes bounds a single source document by default.
const maxDocumentBytes = 8 << 20

// FetchError reports a failed retrieval.
type FetchError struct {
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Song is one entry of songs.xml.
type Song struct {
	Number string `xml:"Number" json:"number"`
	Artist string `xml:"Artist" json:"artist"`
	Title  string `xml:"Title" json:"title"`
	Link   string `xml:"Link" json:"link"`
}

// Fetcher retrieves and parses source documents.
type Fetcher struct {
	BaseURL string
	Client  *http.Client
	Gate    *netgate.Gate
	Timeout time.Duration
	Logger  zerolog.Logger

	// MaxBytes bounds one document; zero means 8 MiB.
	MaxBytes int64

	group singleflight.Group
}

// NewFetcher constructs a Fetcher for base.
func NewFetcher(base string, gate *netgate.Gate, timeout time.Duration, logger zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		BaseURL: strings.TrimRight(base, "/"),
		Client:  &http.Client{},
		Gate:    gate,
		Timeout: timeout,
		Logger:  logger,
	}
}

// KMLURL is the waypoint document of songID at version.
func (f *Fetcher) KMLURL(songID, version string) string {
	return fmt.Sprintf("%s/%s/map%s.kml", f.BaseURL, songID, version)
}

// LyricsURL is the lyrics document of songID.
func (f *Fetcher) LyricsURL(songID string) string {
	return fmt.Sprintf("%s/%s/words.txt", f.BaseURL, songID)
}

// SongsURL is the song list document.
func (f *Fetcher) SongsURL() string { return f.BaseURL + "/songs.xml" }

// Fetch downloads url. Callers sharing a url while a request is in
// flight receive the same result.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.Gate != nil && !f.Gate.IsConnected() {
		return nil, ErrOffline
	}
	ch := f.group.DoChan(url, func() (interface{}, error) {
		// Detached from any single caller so one cancellation does not
		// fail the others.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.Timeout)
		defer cancel()
		return f.get(fctx, url)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	started := time.Now()
	res, err := f.Client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, Status: res.StatusCode}
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = maxDocumentBytes
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if int64(len(body)) > limit {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("%w: over %d bytes", ErrTooLarge, limit)}
	}
	f.Logger.Debug().Str("url", url).Int("bytes", len(body)).Dur("took", time.Since(started)).Msg("fetched")
	return body, nil
}

// Waypoints fetches and parses the KML for songID at version.
func (f *Fetcher) Waypoints(ctx context.Context, songID, version string) ([]waypoint.Waypoint, error) {
	body, err := f.Fetch(ctx, f.KMLURL(songID, version))
	if err != nil {
		return nil, err
	}
	return waypoint.ParseKML(bytes.NewReader(body))
}

// Lyrics fetches and parses words.txt for songID.
func (f *Fetcher) Lyrics(ctx context.Context, songID string) (lyrics.Lines, error) {
	body, err := f.Fetch(ctx, f.LyricsURL(songID))
	if err != nil {
		return nil, err
	}
	lines, err := lyrics.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &waypoint.ParseError{Doc: "lyrics", Err: err}
	}
	return lines, nil
}

type songsDoc struct {
	Songs []Song `xml:"Song"`
}

// Songs fetches and parses songs.xml.
func (f *Fetcher) Songs(ctx context.Context) ([]Song, error) {
	body, err := f.Fetch(ctx, f.SongsURL())
	if err != nil {
		return nil, err
	}
	return ParseSongs(bytes.NewReader(body))
}

// ParseSongs decodes a songs.xml document.
func ParseSongs(r io.Reader) ([]Song, error) {
	var doc songsDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &waypoint.ParseError{Doc: "songs", Err: err}
	}
	out := make([]Song, 0, len(doc.Songs))
	for _, s := range doc.Songs {
		s.Number = strings.TrimSpace(s.Number)
		s.Title = strings.TrimSpace(s.Title)
		s.Artist = strings.TrimSpace(s.Artist)
		s.Link = strings.TrimSpace(s.Link)
		if s.Number == "" || s.Title == "" {
			return nil, &waypoint.ParseError{Doc: "songs", Err: fmt.Errorf("song %d: missing number or title", len(out)+1)}
		}
		out = append(out, s)
	}
	return out, nil
}
