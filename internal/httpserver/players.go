// internal/httpserver/players.go
//
// Player accounts in the users table. A player's id is the owner segment
// of users/{id}/... in the progress tree: it is a ULID, so it is unique,
// sortable by signup time and never contains '/'.

package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

var (
	errNameTaken      = errors.New("username taken")
	errBadCredentials = errors.New("invalid username or password")
)

// invalidSignup is a signup rejected before touching the table. Its text
// goes back to the client.
type invalidSignup string

func (e invalidSignup) Error() string { return string(e) }

// player is who a request acts for. ID doubles as the progress owner.
type player struct {
	ID   string `json:"id"`
	Name string `json:"username"`
}

// players reads and writes the users table.
type players struct {
	db *sql.DB
}

// register stores a new player. Names are unique ignoring case.
func (p *players) register(ctx context.Context, name, password string) (player, error) {
	name = strings.TrimSpace(name)
	if err := checkSignup(name, password); err != nil {
		return player{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return player{}, fmt.Errorf("hash password: %w", err)
	}
	pl := player{ID: ulid.Make().String(), Name: name}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		pl.ID, pl.Name, string(hash), time.Now().UTC().Format(time.RFC3339))
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return player{}, errNameTaken
	}
	if err != nil {
		return player{}, fmt.Errorf("insert player: %w", err)
	}
	return pl, nil
}

// authenticate returns the player whose name and password match.
func (p *players) authenticate(ctx context.Context, name, password string) (player, error) {
	var (
		pl   player
		hash string
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`,
		strings.TrimSpace(name)).Scan(&pl.ID, &pl.Name, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return player{}, errBadCredentials
	}
	if err != nil {
		return player{}, fmt.Errorf("load player: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return player{}, errBadCredentials
	}
	return pl, nil
}

// exists reports whether id still names a player.
func (p *players) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func checkSignup(name, password string) error {
	if len(name) < 3 || len(name) > 24 {
		return invalidSignup("username must be 3-24 chars")
	}
	for _, r := range name {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return invalidSignup("username: letters, numbers, underscore only")
		}
	}
	if len(password) < 8 || len(password) > 100 {
		return invalidSignup("password must be 8-100 chars")
	}
	return nil
}
