// Package store provides durable client-side snapshot storage.
package store

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// Store is a small keyed snapshot store backed by SQLite. The Local
// Engine keeps its persisted state under a single fixed key.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open snapshot store")
	}
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS snapshots (key TEXT PRIMARY KEY, value BLOB NOT NULL)`,
	); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize snapshot store")
	}
	return &Store{db: db}, nil
}

// Save writes the snapshot for the key, replacing any prior value.
func (s *Store) Save(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return errors.Wrap(err, "failed to save snapshot")
}

// Load reads the snapshot for the key. A missing key is a cold start,
// not an error: ok is false and err is nil.
func (s *Store) Load(key string) (value []byte, ok bool, err error) {
	row := s.db.QueryRow(`SELECT value FROM snapshots WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "failed to load snapshot")
	}
	return value, true, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
