package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNoSession = errors.New("no stored session")

// Store keeps one signed-in session per backend URL in a sqlite file.
// Conversation data is never written here.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the session database at path.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		base_url TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create session schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored session for sess.BaseURL.
func (s *Store) Save(ctx context.Context, sess Session) error {
	if !sess.Authenticated() {
		return fmt.Errorf("refusing to store a session without a token")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (base_url, token, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(base_url) DO UPDATE SET token = excluded.token, saved_at = excluded.saved_at
	`, sess.BaseURL, sess.Token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load returns the stored session for baseURL, or ErrNoSession.
func (s *Store) Load(ctx context.Context, baseURL string) (Session, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM sessions WHERE base_url = ?`, baseURL).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	return New(baseURL, token), nil
}

// Clear forgets the session for baseURL. Clearing a missing session is not an
// error.
func (s *Store) Clear(ctx context.Context, baseURL string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE base_url = ?`, baseURL); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
