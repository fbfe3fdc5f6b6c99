// internal/httpserver/auth.go
//
// Signup, login and the middleware that resolves a request to a player.
// The token subject is the player id, which is also the owner of the
// player's progress tree, so handlers read progress straight from it.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// credentials is the body of signup and login.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// playerClaims carries the player id as subject and the name for display.
type playerClaims struct {
	Name string `json:"username"`
	jwt.RegisteredClaims
}

// mountAuthRoutes registers /auth/*.
func (s *Server) mountAuthRoutes() {
	s.r.Post("/auth/signup", s.handleSignup)
	s.r.Post("/auth/login", s.handleLogin)
	s.r.Post("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		c := s.tokenCookie("")
		c.MaxAge = -1
		http.SetCookie(w, c)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	s.r.With(s.requireAuth()).Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(currentUser(r))
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	pl, err := s.players.register(r.Context(), body.Username, body.Password)
	var invalid invalidSignup
	switch {
	case errors.Is(err, errNameTaken):
		http.Error(w, `{"error":"Username taken"}`, http.StatusConflict)
		return
	case errors.As(err, &invalid):
		http.Error(w, `{"error":"`+invalid.Error()+`"}`, http.StatusBadRequest)
		return
	case err != nil:
		s.log.Error().Err(err).Msg("signup")
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	s.log.Info().Str("user", pl.ID).Msg("player signed up")
	s.grant(w, pl)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	pl, err := s.players.authenticate(r.Context(), body.Username, body.Password)
	switch {
	case errors.Is(err, errBadCredentials):
		http.Error(w, `{"error":"Invalid username or password"}`, http.StatusUnauthorized)
		return
	case err != nil:
		s.log.Error().Err(err).Msg("login")
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	s.grant(w, pl)
}

// grant signs a token for pl and hands it out both as a cookie and in the
// body, for clients that send it as a bearer token.
func (s *Server) grant(w http.ResponseWriter, pl player) {
	now := time.Now()
	exp := now.Add(time.Duration(s.cfg.JWTExpiresDays) * 24 * time.Hour)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, playerClaims{
		Name: pl.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pl.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	c := s.tokenCookie(tok)
	c.Expires = exp
	http.SetCookie(w, c)
	_ = json.NewEncoder(w).Encode(struct {
		player
		Token string `json:"token"`
	}{pl, tok})
}

func (s *Server) tokenCookie(value string) *http.Cookie {
	c := &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if s.cfg.Production {
		// Cross-site clients only send the cookie with None, which needs Secure.
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// tokenFrom prefers the Authorization header over the cookie.
func (s *Server) tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		return c.Value
	}
	return ""
}

type playerKey struct{}

// requireAuth admits requests whose token names a player that still exists,
// and puts that player in the request context.
func (s *Server) requireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := s.tokenFrom(r)
			if raw == "" {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			var claims playerClaims
			_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return []byte(s.cfg.JWTSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil || claims.Subject == "" {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			ok, err := s.players.exists(r.Context(), claims.Subject)
			if err != nil {
				s.log.Error().Err(err).Msg("player lookup")
				http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			pl := &player{ID: claims.Subject, Name: claims.Name}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), playerKey{}, pl)))
		})
	}
}

// currentUser is the player resolved by requireAuth, or nil outside it.
func currentUser(r *http.Request) *player {
	pl, _ := r.Context().Value(playerKey{}).(*player)
	return pl
}
