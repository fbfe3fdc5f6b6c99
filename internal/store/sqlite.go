// internal/store/sqlite.go
//
// SQLite implementation of the Tree interface.
//
// Schema (see assets/sql): tree_nodes(path TEXT PRIMARY KEY, value TEXT).
// Each row is one leaf. Every write runs in its own transaction, so a
// snapshot overwrite is never observed half-applied.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLite is a Tree persisted in a SQLite database.
type SQLite struct{ db *sql.DB }

// NewSQLite wraps an open, migrated database.
func NewSQLite(db *sql.DB) *SQLite { return &SQLite{db: db} }

// ReadOnce returns the subtree at path.
func (s *SQLite) ReadOnce(ctx context.Context, path string) (json.RawMessage, bool, error) {
	if err := validPath(path); err != nil {
		return nil, false, err
	}
	lo, hi := subtreeBounds(path)
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, value FROM tree_nodes WHERE path = ? OR (path >= ? AND path < ?)`,
		path, lo, hi,
	)
	if err != nil {
		return nil, false, fmt.Errorf("store: read %s: %w", path, err)
	}
	defer rows.Close()

	found := map[string]string{}
	for rows.Next() {
		var p, v string
		if err := rows.Scan(&p, &v); err != nil {
			return nil, false, err
		}
		found[p] = v
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return assemble(path, found)
}

// SetValue replaces the subtree at path.
func (s *SQLite) SetValue(ctx context.Context, path string, value any) error {
	if err := validPath(path); err != nil {
		return err
	}
	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceTx(ctx, tx, path, leaves)
	})
}

// WriteChildren sets each child of path in one transaction.
func (s *SQLite) WriteChildren(ctx context.Context, path string, children map[string]any) error {
	if err := validPath(path); err != nil {
		return err
	}
	batch := make(map[string]map[string]string, len(children))
	for k, v := range children {
		child := path + "/" + Escape(k)
		leaves, err := flatten(child, v)
		if err != nil {
			return err
		}
		batch[child] = leaves
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for child, leaves := range batch {
			if err := replaceTx(ctx, tx, child, leaves); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteValue removes the subtree at path.
func (s *SQLite) DeleteValue(ctx context.Context, path string) error {
	if err := validPath(path); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceTx(ctx, tx, path, nil)
	})
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func replaceTx(ctx context.Context, tx *sql.Tx, path string, leaves map[string]string) error {
	lo, hi := subtreeBounds(path)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tree_nodes WHERE path = ? OR (path >= ? AND path < ?)`, path, lo, hi,
	); err != nil {
		return fmt.Errorf("store: clear %s: %w", path, err)
	}
	if len(leaves) == 0 {
		return nil
	}
	for _, a := range ancestors(path) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tree_nodes WHERE path = ?`, a); err != nil {
			return fmt.Errorf("store: clear ancestor %s: %w", a, err)
		}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tree_nodes (path, value) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for k, v := range leaves {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			return fmt.Errorf("store: write %s: %w", k, err)
		}
	}
	return nil
}
