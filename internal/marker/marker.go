// Package marker persists the active broadcast marker across restarts,
// so an interrupted stream can be offered for recovery on the next start.
package marker

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is a small SQLite-backed key value store. It holds only session
// markers (current room id, live flag), never session content.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open marker db: %w", err)
	}

	// WAL mode so a crashed previous instance never leaves the file locked.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("marker pragma: %w", err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS markers (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("marker schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO markers (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("marker set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM markers WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("marker get %q: %w", key, err)
	}
	return value, true, nil
}

// Delete removes the given keys in one statement. Missing keys are not an
// error.
func (s *Store) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	_, err := s.db.Exec(`DELETE FROM markers WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("marker delete: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
