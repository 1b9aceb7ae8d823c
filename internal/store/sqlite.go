// ABOUTME: SQLite persistence for unread counts and the cached user list
// ABOUTME: Uses modernc.org/sqlite with WAL mode and automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-chat/internal/chat"
)

// SQLiteStore implements chat.Persister using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ chat.Persister = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS unread_counts (
			user_id TEXT PRIMARY KEY,
			count INTEGER NOT NULL CHECK (count >= 0),
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			profile_pic TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveUnread records the unread counter for userID.
func (s *SQLiteStore) SaveUnread(ctx context.Context, userID string, count int) error {
	query := `
		INSERT INTO unread_counts (user_id, count, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, userID, count, time.Now().UTC()); err != nil {
		return fmt.Errorf("saving unread count: %w", err)
	}
	return nil
}

// LoadUnread returns every persisted unread counter.
func (s *SQLiteStore) LoadUnread(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, count FROM unread_counts`)
	if err != nil {
		return nil, fmt.Errorf("querying unread counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning unread count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unread counts: %w", err)
	}
	return counts, nil
}

// SaveUsers replaces the cached user list, keeping its order.
func (s *SQLiteStore) SaveUsers(ctx context.Context, users []chat.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("clearing users: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO users (id, full_name, email, profile_pic, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, u := range users {
		if _, err := stmt.ExecContext(ctx, u.ID, u.FullName, u.Email, u.ProfilePic, i, now); err != nil {
			return fmt.Errorf("inserting user %s: %w", u.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing users: %w", err)
	}
	return nil
}

// LoadUsers returns the cached user list in the order it was saved.
func (s *SQLiteStore) LoadUsers(ctx context.Context) ([]chat.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, email, profile_pic FROM users ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []chat.User
	for rows.Next() {
		var u chat.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &u.ProfilePic); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}
