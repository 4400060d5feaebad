// Package sqlite is a durable KV backend on a single SQLite table.
package sqlite

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"promphub.io/market/store"
)

const defaultBusyTimeoutMs = 5000

func init() {
	store.MustRegister(store.Backend{
		Name:        "sqlite",
		Description: "SQLite database file (modernc.org/sqlite, no cgo)",
		Durable:     true,
		Options: map[string]string{
			"path":            "database file, or :memory: (required)",
			"busy_timeout_ms": "lock wait in milliseconds (default 5000)",
		},
		Open: func(opts map[string]string) (store.KV, error) {
			timeout := defaultBusyTimeoutMs
			if s := opts["busy_timeout_ms"]; s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("sqlite: invalid busy_timeout_ms %q", s)
				}
				timeout = n
			}
			return Open(opts["path"], timeout)
		},
	})
}

// KV stores records in table records(key BLOB PRIMARY KEY, value BLOB).
// BLOB comparison is memcmp, which gives the byte order Iterate requires.
type KV struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string, busyTimeoutMs int) (*KV, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = "file:" + filepath.Clean(abs)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: an in-memory database is per connection, and a single
	// writer keeps batches serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		key BLOB PRIMARY KEY,
		value BLOB NOT NULL
	) WITHOUT ROWID`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &KV{db: db}, nil
}

func (s *KV) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, store.ErrEmptyKey
	}
	var v []byte
	err := s.db.QueryRow(`SELECT value FROM records WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, mapClosed(err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (s *KV) Apply(ops []store.Op) error {
	for _, op := range ops {
		if len(op.Key) == 0 {
			return store.ErrEmptyKey
		}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return mapClosed(err)
	}
	for _, op := range ops {
		if op.Delete {
			_, err = tx.Exec(`DELETE FROM records WHERE key = ?`, op.Key)
		} else {
			v := op.Value
			if v == nil {
				v = []byte{}
			}
			_, err = tx.Exec(`INSERT INTO records(key, value) VALUES(?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value`, op.Key, v)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *KV) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	var (
		rows *sql.Rows
		err  error
	)
	end := store.PrefixEnd(prefix)
	switch {
	case len(prefix) == 0:
		rows, err = s.db.Query(`SELECT key, value FROM records ORDER BY key`)
	case end == nil:
		rows, err = s.db.Query(`SELECT key, value FROM records WHERE key >= ? ORDER BY key`, prefix)
	default:
		rows, err = s.db.Query(`SELECT key, value FROM records WHERE key >= ? AND key < ? ORDER BY key`, prefix, end)
	}
	if err != nil {
		return mapClosed(err)
	}

	// Drain before calling fn: the pool has a single connection and fn may
	// call Get.
	type pair struct{ k, v []byte }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.k, &p.v); err != nil {
			rows.Close()
			return err
		}
		if !bytes.HasPrefix(p.k, prefix) {
			continue
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, p := range pairs {
		if p.v == nil {
			p.v = []byte{}
		}
		if err := fn(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

func (s *KV) Close() error {
	return s.db.Close()
}

func mapClosed(err error) error {
	if err != nil && err.Error() == "sql: database is closed" {
		return store.ErrClosed
	}
	return err
}
