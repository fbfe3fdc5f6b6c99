// internal/httpserver/server.go
//
// HTTP server wiring for the Songle backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/difficulties", "/auth/*".
//   - Session endpoints (require auth): mounted under /sessions.
//   - Song list with the player's completed difficulties (require auth).
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - A session belongs to the user who created it; other users get 404.

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/songle-game/songle-server/internal/config"
	"github.com/songle-game/songle-server/internal/netgate"
	"github.com/songle-game/songle-server/internal/session"
	"github.com/songle-game/songle-server/internal/source"
	"github.com/songle-game/songle-server/internal/store"
)

// Catalog serves the song documents. *source.Fetcher implements it.
type Catalog interface {
	session.Source
	Songs(ctx context.Context) ([]source.Song, error)
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Config   config.Config
	DB       *sql.DB
	Tree     store.Tree
	Catalog  Catalog
	Gate     *netgate.Gate
	Registry *session.Registry
	Logger   zerolog.Logger
}

// Server bundles the router and its dependencies.
type Server struct {
	r   *chi.Mux
	cfg config.Config
	log zerolog.Logger

	tree     store.Tree
	catalog  Catalog
	gate     *netgate.Gate
	registry *session.Registry
	players  *players
	sessions *sessionRoutes
	songs    songCache
}

// New constructs a Server, installs middleware, and registers routes.
func New(d Deps) *Server {
	if d.Registry == nil {
		d.Registry = session.NewRegistry()
	}
	s := &Server{
		r:        chi.NewRouter(),
		cfg:      d.Config,
		log:      d.Logger,
		tree:     d.Tree,
		catalog:  d.Catalog,
		gate:     d.Gate,
		registry: d.Registry,
		players:  &players{db: d.DB},
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(30 * time.Second)) // bound handler time; covers a document fetch
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(cors(s.cfg.ClientOrigin))        // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"songle-go","endpoints":["/health","/difficulties","/songs","/sessions","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":        true,
			"connected": s.gate.IsConnected(),
			"sessions":  s.registry.Len(),
		})
	})
	s.r.Get("/difficulties", s.handleDifficulties)

	s.mountAuthRoutes()
	s.r.With(s.requireAuth()).Get("/songs", s.handleSongs)
	s.sessions = s.mountSessions(s.r.With(s.requireAuth()))

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Handler is the root handler, for use with an http.Server.
func (s *Server) Handler() http.Handler { return s.r }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// Shutdown closes every live session, persisting their progress.
func (s *Server) Shutdown() {
	s.sessions.closeAll()
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for a single origin, defaulting to the
// local dev client.
func cors(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --------------------------- difficulties ----------------------------------

type levelRes struct {
	Version         string  `json:"version"`
	Name            string  `json:"name"`
	ThresholdMeters float64 `json:"thresholdMeters"`
	TimeoutSeconds  int     `json:"timeoutSeconds"`
	Timer           bool    `json:"timer"`
}

// handleDifficulties lists the map versions in version order.
func (s *Server) handleDifficulties(w http.ResponseWriter, r *http.Request) {
	out := []levelRes{}
	for _, v := range s.cfg.Difficulties.Versions() {
		l := s.cfg.Difficulties[v]
		out = append(out, levelRes{
			Version:         l.Version,
			Name:            l.Name,
			ThresholdMeters: l.CollectThresholdMeters,
			TimeoutSeconds:  l.TimeoutSeconds,
			Timer:           l.TimerEnabled,
		})
	}
	_ = json.NewEncoder(w).Encode(out)
}
