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

// Package checkpoint implements the rollback-safe snapshot journal (§4.3):
// an immutable, append-only record of WorkflowState transitions, indexed
// by workflow and queryable by kind, built atop any kvstore.Store.
//
// Grounded on original_source/src/core/utils/checkpoint_manager.py's
// CheckpointManager (UUID checkpoint ids, one JSON file per checkpoint, an
// in-memory cache, a latest-checkpoint lookup, and cleanup by age) — the
// Go rendition replaces its file-glob-and-filter listing with the
// structured key scheme of §4.3/§6.2 and replaces "rollback" (overwriting
// live state) with pure read access, since the Engine is the only writer
// of WorkflowState (§3 Ownership).
package checkpoint

import (
	"time"

	"github.com/google/uuid"
	"github.com/kadirpekel/wikiforge/pkg/workflow"
)

// Kind is the closed set of reasons a checkpoint was written (§3).
type Kind string

const (
	KindInitial         Kind = "initial"
	KindStageCompletion Kind = "stage_completion"
	KindPeriodic        Kind = "periodic"
	KindManual          Kind = "manual"
	KindErrorRecovery   Kind = "error_recovery"
	KindFinal           Kind = "final"
)

// SchemaVersion is bumped whenever Record's on-disk shape changes in a way
// that is not purely additive; readers use it to decide whether a migration
// step is needed before deserializing State (§6.2).
const SchemaVersion = 1

// Record is an immutable snapshot of a workflow at a point in time (§3
// CheckpointRecord). Once written it is never rewritten; recovery always
// reads the State it embeds, never mutates it in place.
type Record struct {
	CheckpointID  string         `json:"checkpoint_id"`
	WorkflowID    string         `json:"workflow_id"`
	Kind          Kind           `json:"kind"`
	Timestamp     time.Time      `json:"timestamp"`
	RetainUntil   *time.Time     `json:"retain_until,omitempty"`
	State         *workflow.State `json:"state"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	SchemaVersion int            `json:"schema_version"`
}

// NewRecord builds a Record embedding a deep copy of state, stamping a
// fresh checkpoint_id and the timestamp now. RetainUntil is left unset;
// Save fills it in from its ttl argument or, for a zero ttl, the store's
// own default (§4.3 Retention, 7 days).
func NewRecord(kind Kind, state *workflow.State, now time.Time, metadata map[string]any) *Record {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return &Record{
		CheckpointID:  uuid.NewString(),
		WorkflowID:    state.WorkflowID,
		Kind:          kind,
		Timestamp:     now,
		State:         state.Clone(),
		Metadata:      meta,
		SchemaVersion: SchemaVersion,
	}
}
