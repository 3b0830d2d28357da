// Package banlog records admin actions taken by the aban plugin in SQLite.
package banlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one admin action against one user in one chat.
type Record struct {
	ID        int64
	Action    string
	ChatID    int64
	ChatTitle string
	UserID    int64
	Reason    string
	OK        bool
	Error     string
	CreatedAt time.Time
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create banlog dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate banlog: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	ddl := `
CREATE TABLE IF NOT EXISTS actions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  action TEXT NOT NULL,
  chat_id INTEGER NOT NULL,
  chat_title TEXT NOT NULL DEFAULT '',
  user_id INTEGER NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  ok INTEGER NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_user ON actions(user_id, id);
`
	_, err := s.db.Exec(ddl)
	return err
}

// Add stores r and returns its id. A zero CreatedAt is set to now.
func (s *Store) Add(ctx context.Context, r Record) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO actions(action, chat_id, chat_title, user_id, reason, ok, error, created_at) VALUES(?,?,?,?,?,?,?,?)`,
		r.Action, r.ChatID, r.ChatTitle, r.UserID, r.Reason, boolInt(r.OK), r.Error, r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("insert action: %w", err)
	}
	return res.LastInsertId()
}

// Query filters List. UserID 0 matches every user; Limit <= 0 means 20.
type Query struct {
	UserID int64
	Limit  int
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, q Query) ([]Record, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	stmt := `SELECT id, action, chat_id, chat_title, user_id, reason, ok, error, created_at FROM actions`
	var args []any
	if q.UserID != 0 {
		stmt += ` WHERE user_id=?`
		args = append(args, q.UserID)
	}
	stmt += ` ORDER BY id DESC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created string
		if err := rows.Scan(&r.ID, &r.Action, &r.ChatID, &r.ChatTitle, &r.UserID, &r.Reason, &r.OK, &r.Error, &created); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns how many actions succeeded and failed for a user.
func (s *Store) Count(ctx context.Context, userID int64) (ok, failed int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(ok), 0), COALESCE(SUM(1 - ok), 0) FROM actions WHERE user_id=?`, userID,
	).Scan(&ok, &failed)
	return ok, failed, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
