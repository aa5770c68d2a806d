// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Registered database/sql drivers for the store.backend = external
	// (Postgres, MySQL) and store.backend = embedded_kv (SQLite) cases.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect picks the upsert/placeholder syntax for a database/sql driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite3"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key        VARCHAR(512) PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at TIMESTAMP NULL
)`

// SQLStore is a database/sql-backed Store shared by the Postgres, MySQL,
// and SQLite backends; only the upsert statement and placeholder style
// differ by Dialect.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLStore opens driverName at dsn, creates the kv_entries table if
// absent, and returns a SQLStore for the given dialect.
func OpenSQLStore(ctx context.Context, driverName string, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
	}

	var stmt string
	switch s.dialect {
	case DialectPostgres:
		stmt = `INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`
	case DialectMySQL:
		stmt = `INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE value = VALUES(value), expires_at = VALUES(expires_at)`
	default: // sqlite3
		stmt = `INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`
	}

	_, err := s.db.ExecContext(ctx, stmt, key, value, expiresAt)
	return err
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	q := fmt.Sprintf("SELECT value, expires_at FROM kv_entries WHERE key = %s", s.placeholder(1))

	var value []byte
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, q, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) (bool, error) {
	present, err := s.Exists(ctx, key)
	if err != nil || !present {
		return false, err
	}

	q := fmt.Sprintf("DELETE FROM kv_entries WHERE key = %s", s.placeholder(1))
	res, err := s.db.ExecContext(ctx, q, key)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLStore) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	q := fmt.Sprintf(
		"SELECT key, value, expires_at FROM kv_entries WHERE key LIKE %s ORDER BY key ASC",
		s.placeholder(1),
	)

	rows, err := s.db.QueryContext(ctx, q, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	var out []Entry
	for rows.Next() {
		var e Entry
		var expiresAt sql.NullTime
		if err := rows.Scan(&e.Key, &e.Value, &expiresAt); err != nil {
			return nil, err
		}
		if expiresAt.Valid && now.After(expiresAt.Time) {
			continue
		}
		if !strings.HasPrefix(e.Key, prefix) {
			continue // guards against LIKE wildcard chars embedded in prefix
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Close releases the underlying *sql.DB connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

// DeleteExpired removes every row past its expiry, returning the count
// removed. Invoked by the scheduler's cleanup_expired task.
func (s *SQLStore) DeleteExpired(ctx context.Context) (int, error) {
	q := fmt.Sprintf("DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at < %s", s.placeholder(1))
	res, err := s.db.ExecContext(ctx, q, time.Now())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}
