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

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kadirpekel/wikiforge/pkg/kvstore"
	"github.com/kadirpekel/wikiforge/pkg/wfkind"
)

// Store is the Checkpoint Store public contract (§4.3).
type Store interface {
	// Save writes record and updates the workflow's latest pointer. A
	// zero ttl applies the store's configured default. Returns the
	// record's storage key.
	Save(ctx context.Context, record *Record, ttl time.Duration) (string, error)

	// LoadLatest follows the latest pointer if present and non-dangling;
	// otherwise it falls back to a prefix scan for the record with the
	// maximum timestamp (§4.3, §9 latest-pointer hazard). Returns nil,
	// nil if the workflow has no checkpoints at all.
	LoadLatest(ctx context.Context, workflowID string) (*Record, error)

	// ListByWorkflow returns up to limit records for workflowID in
	// descending timestamp order, optionally filtered by kind. limit<=0
	// means unbounded.
	ListByWorkflow(ctx context.Context, workflowID string, kind *Kind, limit int) ([]*Record, error)

	// ListAll paginates across every workflow's records in descending
	// timestamp order, optionally filtered by kind.
	ListAll(ctx context.Context, page, pageSize int, kind *Kind) ([]*Record, int, error)

	// Delete removes records for workflowID, optionally scoped to kind.
	// If kind is nil, the latest pointer is deleted too. Returns the
	// number of records removed.
	Delete(ctx context.Context, workflowID string, kind *Kind) (int, error)
}

// KVStore implements Store atop any kvstore.Store, making the Checkpoint
// Store backend-agnostic: it runs unmodified against the memory,
// local_file, sqlite, or sql backends (§4.3 "Built atop the KV Store").
type KVStore struct {
	kv     kvstore.Store
	config *Config
}

// NewKVStore builds a Store. A nil config applies §6.4 defaults.
func NewKVStore(kv kvstore.Store, config *Config) *KVStore {
	if config == nil {
		config = &Config{}
	}
	config.SetDefaults()
	return &KVStore{kv: kv, config: config}
}

const timestampLayout = "20060102T150405.000000000Z"

func (s *KVStore) recordKey(workflowID string, ts time.Time, kind Kind, checkpointID string) string {
	return fmt.Sprintf("%s:rec:%s:%s:%s:%s", s.config.Prefix(), workflowID, ts.UTC().Format(timestampLayout), checkpointID, kind)
}

func (s *KVStore) workflowPrefix(workflowID string) string {
	return fmt.Sprintf("%s:rec:%s:", s.config.Prefix(), workflowID)
}

func (s *KVStore) allRecordsPrefix() string {
	return fmt.Sprintf("%s:rec:", s.config.Prefix())
}

func (s *KVStore) latestKey(workflowID string) string {
	return fmt.Sprintf("%s:latest:%s", s.config.Prefix(), workflowID)
}

func (s *KVStore) Save(ctx context.Context, record *Record, ttl time.Duration) (string, error) {
	if record == nil {
		return "", wfkind.Wrap(wfkind.KindInvalidInput, "checkpoint.Save", fmt.Errorf("nil record"))
	}
	if ttl <= 0 {
		ttl = s.config.DefaultTTL()
	}
	if record.RetainUntil == nil {
		retain := record.Timestamp.Add(ttl)
		record.RetainUntil = &retain
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.Save", err)
	}

	key := s.recordKey(record.WorkflowID, record.Timestamp, record.Kind, record.CheckpointID)
	// The record write is the single commit point (§4.6): it must land
	// before the latest pointer is updated, so a crash between the two
	// leaves LoadLatest falling back to a scan that still finds it.
	if err := s.kv.Put(ctx, key, data, ttl); err != nil {
		return "", wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.Save", err)
	}
	if err := s.kv.Put(ctx, s.latestKey(record.WorkflowID), []byte(key), 0); err != nil {
		return "", wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.Save", err)
	}
	return key, nil
}

func decodeRecord(raw []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *KVStore) LoadLatest(ctx context.Context, workflowID string) (*Record, error) {
	if ptr, ok, err := s.kv.Get(ctx, s.latestKey(workflowID)); err != nil {
		return nil, wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.LoadLatest", err)
	} else if ok {
		if raw, ok, err := s.kv.Get(ctx, string(ptr)); err != nil {
			return nil, wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.LoadLatest", err)
		} else if ok {
			return decodeRecord(raw)
		}
		// Dangling pointer (§9): fall through to the scan fallback.
	}

	entries, err := s.kv.Scan(ctx, s.workflowPrefix(workflowID))
	if err != nil {
		return nil, wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.LoadLatest", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	// Keys embed the timestamp before the checkpoint_id/kind, so
	// lexicographic order is chronological; the last entry is latest,
	// ties broken by checkpoint_id, the next key segment (P8).
	last := entries[len(entries)-1]
	return decodeRecord(last.Value)
}

func (s *KVStore) ListByWorkflow(ctx context.Context, workflowID string, kind *Kind, limit int) ([]*Record, error) {
	entries, err := s.kv.Scan(ctx, s.workflowPrefix(workflowID))
	if err != nil {
		return nil, wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.ListByWorkflow", err)
	}

	records := make([]*Record, 0, len(entries))
	for _, e := range entries {
		rec, err := decodeRecord(e.Value)
		if err != nil {
			continue
		}
		if kind != nil && rec.Kind != *kind {
			continue
		}
		records = append(records, rec)
	}
	reverseRecords(records) // descending timestamp order

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *KVStore) ListAll(ctx context.Context, page, pageSize int, kind *Kind) ([]*Record, int, error) {
	entries, err := s.kv.Scan(ctx, s.allRecordsPrefix())
	if err != nil {
		return nil, 0, wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.ListAll", err)
	}

	records := make([]*Record, 0, len(entries))
	for _, e := range entries {
		rec, err := decodeRecord(e.Value)
		if err != nil {
			continue
		}
		if kind != nil && rec.Kind != *kind {
			continue
		}
		records = append(records, rec)
	}
	// Scan order is lexicographic by full key, which groups by
	// workflow_id first; re-sort by timestamp across the whole set.
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].CheckpointID < records[j].CheckpointID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	reverseRecords(records)

	total := len(records)
	if pageSize <= 0 {
		return records, total, nil
	}
	start := page * pageSize
	if start >= total {
		return []*Record{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return records[start:end], total, nil
}

func (s *KVStore) Delete(ctx context.Context, workflowID string, kind *Kind) (int, error) {
	entries, err := s.kv.Scan(ctx, s.workflowPrefix(workflowID))
	if err != nil {
		return 0, wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.Delete", err)
	}

	deleted := 0
	for _, e := range entries {
		if kind != nil {
			rec, err := decodeRecord(e.Value)
			if err != nil || rec.Kind != *kind {
				continue
			}
		}
		if _, err := s.kv.Delete(ctx, e.Key); err != nil {
			return deleted, wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.Delete", err)
		}
		deleted++
	}

	if kind == nil {
		if _, err := s.kv.Delete(ctx, s.latestKey(workflowID)); err != nil {
			return deleted, wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.Delete", err)
		}
	}
	return deleted, nil
}

// Reap deletes every record past its retain_until across all workflows,
// invoked by the Scheduler's cleanup_expired task (§4.5). It does not
// touch the underlying kvstore.Store's own lazy TTL expiry; it exists so
// records saved with ttl=0 (store default) that outlive the KV backend's
// own sweep are still reclaimed opportunistically (§4.3 Retention).
func (s *KVStore) Reap(ctx context.Context, now time.Time) (int, error) {
	entries, err := s.kv.Scan(ctx, s.allRecordsPrefix())
	if err != nil {
		return 0, wfkind.Wrap(wfkind.KindInfrastructureFailure, "checkpoint.Reap", err)
	}

	removed := 0
	for _, e := range entries {
		rec, err := decodeRecord(e.Value)
		if err != nil {
			continue
		}
		if rec.RetainUntil == nil || !now.After(*rec.RetainUntil) {
			continue
		}
		if _, err := s.kv.Delete(ctx, e.Key); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

func reverseRecords(records []*Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
