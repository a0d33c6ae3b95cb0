package state

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// coldStore is the append-only tier. Immutability is enforced by the
// primary key: an insert that finds the key present affects zero rows and
// is reported as ErrImmutableConflict without touching the stored value.
type coldStore struct {
	db *sql.DB
}

func openColdStore(path string) (*coldStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("cold store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureColdSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &coldStore{db: db}, nil
}

func ensureColdSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cold_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cold_state_created ON cold_state(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *coldStore) Get(key string) (any, error) {
	row := s.db.QueryRow(`SELECT value FROM cold_state WHERE key = ?`, key)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeValue(raw)
}

func (s *coldStore) Set(key string, value any) error {
	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`INSERT INTO cold_state (key, value, created_at) VALUES (?, ?, ?) ON CONFLICT(key) DO NOTHING`,
		key, encoded, time.Now().UnixMilli(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrImmutableConflict
	}
	return nil
}

func (s *coldStore) Query(pred Predicate) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		rows, err := s.db.Query(`SELECT key, value FROM cold_state ORDER BY created_at, key`)
		if err != nil {
			return
		}
		defer rows.Close()
		for rows.Next() {
			var key, raw string
			if err := rows.Scan(&key, &raw); err != nil {
				return
			}
			value, err := decodeValue(raw)
			if err != nil {
				continue
			}
			if pred != nil && !pred(key, value) {
				continue
			}
			if !yield(key, value) {
				return
			}
		}
	}
}

func (s *coldStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
