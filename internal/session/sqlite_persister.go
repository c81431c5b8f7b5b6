package session

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const tokenKey = "access_token"

// SQLitePersister stores the credential in a small SQLite key/value table.
type SQLitePersister struct {
	db   *sql.DB
	path string
}

// NewSQLitePersister opens (or creates) session.db inside dir.
func NewSQLitePersister(dir string) (*SQLitePersister, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dbPath := filepath.Join(dir, "session.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	p := &SQLitePersister{db: db, path: dbPath}
	if err := p.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}
	// the token is a bearer secret
	_ = os.Chmod(dbPath, 0o600)
	return p, nil
}

// NewMemoryPersister returns a persister backed by an in-memory database.
func NewMemoryPersister() (*SQLitePersister, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	p := &SQLitePersister{db: db, path: ":memory:"}
	if err := p.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}
	return p, nil
}

func (p *SQLitePersister) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS session_items (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err := p.db.Exec(schema)
	return err
}

// Load returns the stored token or "" when there is none.
func (p *SQLitePersister) Load() (string, error) {
	var token string
	err := p.db.QueryRow(`SELECT value FROM session_items WHERE key = ?`, tokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	return token, nil
}

// Save replaces the stored token.
func (p *SQLitePersister) Save(token string) error {
	_, err := p.db.Exec(`
		INSERT OR REPLACE INTO session_items (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`, tokenKey, token)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes the stored token.
func (p *SQLitePersister) Delete() error {
	if _, err := p.db.Exec(`DELETE FROM session_items WHERE key = ?`, tokenKey); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Path returns the database location.
func (p *SQLitePersister) Path() string {
	return p.path
}

// Close closes the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
