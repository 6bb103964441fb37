package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists player records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at path and ensures
// the schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		uuid          TEXT PRIMARY KEY,
		username      TEXT NOT NULL,
		password_hash TEXT,
		is_premium    INTEGER NOT NULL DEFAULT 0,
		last_ip       TEXT
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// IsRegistered reports whether the account has a record.
func (s *SQLiteStore) IsRegistered(id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow("SELECT 1 FROM players WHERE uuid = ?", id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query player: %w", err)
	}
	return true, nil
}

// Register inserts a new player record.
func (s *SQLiteStore) Register(id uuid.UUID, username, passwordHash, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO players (uuid, username, password_hash, last_ip) VALUES (?, ?, ?, ?)",
		id.String(), username, passwordHash, ip,
	)
	if err != nil {
		return fmt.Errorf("failed to register player: %w", err)
	}
	return nil
}

// Username returns the stored display name.
func (s *SQLiteStore) Username(id uuid.UUID) (string, error) {
	return s.queryString("SELECT username FROM players WHERE uuid = ?", id)
}

// PasswordHash returns the stored password hash.
func (s *SQLiteStore) PasswordHash(id uuid.UUID) (string, error) {
	return s.queryString("SELECT password_hash FROM players WHERE uuid = ?", id)
}

// ChangePassword replaces the stored password hash.
func (s *SQLiteStore) ChangePassword(id uuid.UUID, newHash string) error {
	return s.update("UPDATE players SET password_hash = ? WHERE uuid = ?", newHash, id)
}

// LastIP returns the last source address the account logged in from.
func (s *SQLiteStore) LastIP(id uuid.UUID) (string, error) {
	return s.queryString("SELECT COALESCE(last_ip, '') FROM players WHERE uuid = ?", id)
}

// UpdateIP records the account's current source address.
func (s *SQLiteStore) UpdateIP(id uuid.UUID, ip string) error {
	return s.update("UPDATE players SET last_ip = ? WHERE uuid = ?", ip, id)
}

// IsPremium reports whether the account is premium-flagged.
func (s *SQLiteStore) IsPremium(id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var premium bool
	err := s.db.QueryRow("SELECT is_premium FROM players WHERE uuid = ?", id.String()).Scan(&premium)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query premium flag: %w", err)
	}
	return premium, nil
}

// SetPremium flags the account as premium. Premium accounts that have
// no offline record yet get one created so the flag is durable.
func (s *SQLiteStore) SetPremium(id uuid.UUID, premium bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("UPDATE players SET is_premium = ? WHERE uuid = ?", premium, id.String())
	if err != nil {
		return fmt.Errorf("failed to set premium flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check premium update: %w", err)
	}
	if affected == 0 && premium {
		if _, err := s.db.Exec(
			"INSERT INTO players (uuid, username, is_premium) VALUES (?, '', 1)", id.String(),
		); err != nil {
			return fmt.Errorf("failed to insert premium record: %w", err)
		}
	}
	return nil
}

// Unregister deletes the account's record.
func (s *SQLiteStore) Unregister(id uuid.UUID) error {
	return s.update("DELETE FROM players WHERE uuid = ?", nil, id)
}

func (s *SQLiteStore) queryString(query string, id uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value sql.NullString
	err := s.db.QueryRow(query, id.String()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotRegistered
	}
	if err != nil {
		return "", fmt.Errorf("failed to query player: %w", err)
	}
	return value.String, nil
}

func (s *SQLiteStore) update(query string, arg any, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if arg == nil {
		_, err = s.db.Exec(query, id.String())
	} else {
		_, err = s.db.Exec(query, arg, id.String())
	}
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}
	return nil
}
