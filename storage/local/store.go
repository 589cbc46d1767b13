package local

import (
	"database/sql"

	pkgerrors "github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/institutohope/platform/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Store is the device-local key/value store, backed by a single-file SQLite
// database. Reads never fail: any read error is indistinguishable from an
// absent key, matching the durability contract of core.KVStore.
type Store struct {
	db     *sql.DB
	logger core.Logger
}

var _ core.KVStore = (*Store)(nil)

// NewStore opens (creating if needed) the database at path.
func NewStore(path string, logger core.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "opening local store")
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "pinging local store")
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "creating kv table")
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Error("reading local store key "+key, err)
		}
		return "", false
	}
	return value, true
}

func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return pkgerrors.Wrap(err, "writing local store key "+key)
}

func (s *Store) Remove(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return pkgerrors.Wrap(err, "removing local store key "+key)
}

// Clear wipes every key. Backs the full device reset.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM kv`)
	return pkgerrors.Wrap(err, "clearing local store")
}

func (s *Store) Close() error { return s.db.Close() }
