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

// Package workflow defines WorkflowState (§3), the single source of truth
// for a workflow's progress through the stage DAG. The Workflow Engine
// exclusively owns mutation of WorkflowState; every other component
// (Checkpoint Store, Scheduler, Lock Manager) only ever reads a value
// copy.
//
// Grounded on original_source/src/agents/supervisor/agent.py's
// WorkflowState (a pydantic BaseModel with status/current_step/
// steps_completed/data/timestamps) — the Go rendition replaces the
// string-keyed status/current_step pair with the finite stage.Id/
// stage.Status enums and replaces the flat "data" bag with a per-stage
// stage_outputs projection (§6.1), matching the merge-by-stage contract
// the Agent interface requires.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kadirpekel/wikiforge/pkg/stage"
)

// State is the durable, serializable snapshot of one workflow's progress
// (§3 WorkflowState). All fields are exported for JSON round-tripping;
// callers outside the engine must treat a State as read-only.
type State struct {
	WorkflowID string `json:"workflow_id"`
	TraceID    string `json:"trace_id"`
	Keyword    string `json:"keyword"`

	CurrentStage stage.Id `json:"current_stage"`

	// StageFlags and StageOutputs are keyed by the stage's string name
	// (rather than its numeric Id) so the persisted JSON is
	// self-describing and stable across reorderings of the Id enum.
	StageFlags   map[string]stage.Status          `json:"stage_flags"`
	StageOutputs map[string]map[string]any        `json:"stage_outputs"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	TotalProcessingSeconds *float64 `json:"total_processing_seconds,omitempty"`
}

// New creates a fresh State in the Research stage with every DAG stage
// pending except Research, which starts pending until the engine marks
// it running.
func New(workflowID, traceID, keyword string, now time.Time) *State {
	s := &State{
		WorkflowID:   workflowID,
		TraceID:      traceID,
		Keyword:      keyword,
		CurrentStage: stage.Research,
		StageFlags:   make(map[string]stage.Status, len(stage.Order)),
		StageOutputs: make(map[string]map[string]any, len(stage.Order)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, st := range stage.Order {
		s.StageFlags[st.String()] = stage.StatusPending
	}
	return s
}

// Flag returns the lifecycle status of st, defaulting to StatusPending if
// unset.
func (s *State) Flag(st stage.Id) stage.Status {
	if v, ok := s.StageFlags[st.String()]; ok {
		return v
	}
	return stage.StatusPending
}

// SetFlag sets st's lifecycle status and bumps UpdatedAt.
func (s *State) SetFlag(st stage.Id, status stage.Status, now time.Time) {
	if s.StageFlags == nil {
		s.StageFlags = make(map[string]stage.Status)
	}
	s.StageFlags[st.String()] = status
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}

// Output returns the opaque payload produced so far for st, or nil.
func (s *State) Output(st stage.Id) map[string]any {
	return s.StageOutputs[st.String()]
}

// MergeOutput merges update into st's stage_outputs entry (§4.6 step 7:
// "Merge the output into stage_outputs[stage]"), overwriting any
// previously set key and leaving the rest untouched.
func (s *State) MergeOutput(st stage.Id, update map[string]any, now time.Time) {
	if s.StageOutputs == nil {
		s.StageOutputs = make(map[string]map[string]any)
	}
	existing := s.StageOutputs[st.String()]
	if existing == nil {
		existing = make(map[string]any, len(update))
	}
	for k, v := range update {
		existing[k] = v
	}
	s.StageOutputs[st.String()] = existing
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}

// AllOutputs flattens every stage's output into one map, for agents whose
// contract declares "full state" as input (FeedbackProcessing, §6.1).
func (s *State) AllOutputs() map[string]any {
	merged := make(map[string]any)
	for _, st := range stage.Order {
		for k, v := range s.StageOutputs[st.String()] {
			merged[k] = v
		}
	}
	return merged
}

// IsTerminal reports whether the workflow has reached Completed or failed
// (the implicit pseudo-state represented by the current stage's flag).
func (s *State) IsTerminal() bool {
	if s.CurrentStage == stage.Completed {
		return true
	}
	return s.Flag(s.CurrentStage) == stage.StatusFailed
}

// Clone returns a deep copy safe for concurrent readers (the Scheduler's
// periodic snapshot, §5 "copy-on-read or atomic swap of an immutable
// reference").
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		WorkflowID:   s.WorkflowID,
		TraceID:      s.TraceID,
		Keyword:      s.Keyword,
		CurrentStage: s.CurrentStage,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.TotalProcessingSeconds != nil {
		v := *s.TotalProcessingSeconds
		out.TotalProcessingSeconds = &v
	}
	out.StageFlags = make(map[string]stage.Status, len(s.StageFlags))
	for k, v := range s.StageFlags {
		out.StageFlags[k] = v
	}
	out.StageOutputs = make(map[string]map[string]any, len(s.StageOutputs))
	for k, m := range s.StageOutputs {
		cp := make(map[string]any, len(m))
		for kk, vv := range m {
			cp[kk] = vv
		}
		out.StageOutputs[k] = cp
	}
	return out
}

// Validate checks the invariants of §3: no stage may be completed unless
// every earlier stage is also completed, and current_stage must be the
// least non-completed stage (or Completed if all are done).
func (s *State) Validate() error {
	sawIncomplete := false
	for _, st := range stage.Order {
		completed := s.Flag(st) == stage.StatusCompleted
		if !completed {
			sawIncomplete = true
			continue
		}
		if sawIncomplete {
			return fmt.Errorf("workflow %s: stage %s completed after an earlier incomplete stage", s.WorkflowID, st)
		}
	}

	expectedCurrent := stage.Completed
	for _, st := range stage.Order {
		if s.Flag(st) != stage.StatusCompleted {
			expectedCurrent = st
			break
		}
	}
	if s.CurrentStage != expectedCurrent {
		return fmt.Errorf("workflow %s: current_stage %s does not match least incomplete stage %s", s.WorkflowID, s.CurrentStage, expectedCurrent)
	}

	if (s.CompletedAt != nil) != (s.CurrentStage == stage.Completed) {
		return fmt.Errorf("workflow %s: completed_at set=%v but current_stage=%s", s.WorkflowID, s.CompletedAt != nil, s.CurrentStage)
	}
	return nil
}

// Serialize converts the State to JSON bytes (§6.2: serialization must be
// self-describing; schema_version lives on the embedding CheckpointRecord).
func (s *State) Serialize() ([]byte, error) {
	return json.Marshal(s)
}

// Deserialize reconstructs a State from JSON bytes.
func Deserialize(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	return &s, nil
}
