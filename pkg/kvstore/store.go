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

// Package kvstore implements the durable, TTL-aware byte map that every
// other component (checkpoint store, KV-backed lock manager) is built on.
// Four backends satisfy the same Store interface: an in-process map, a
// one-file-per-key local directory, and two database/sql-backed variants
// (Postgres via lib/pq, MySQL, and SQLite via go-sqlite3 sharing one
// schema).
package kvstore

import (
	"context"
	"time"
)

// Entry is a single key/value pair returned by Scan.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the KV Store contract (§4.1). Backends return the underlying
// driver or filesystem error as-is; callers such as the checkpoint store
// wrap it as a *wfkind.Error of KindInfrastructureFailure.
type Store interface {
	// Put overwrites key with value. A zero ttl means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value and true, or nil and false if key is absent
	// or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Delete removes key, returning true iff a value was present.
	Delete(ctx context.Context, key string) (bool, error)

	// Scan returns all non-expired entries whose key has the given
	// prefix, in lexicographic key order.
	Scan(ctx context.Context, prefix string) ([]Entry, error)

	// Exists reports whether key is present and not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases backend resources (file handles, DB connections).
	Close() error
}
