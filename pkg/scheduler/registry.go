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

package scheduler

import (
	"sync"

	"github.com/kadirpekel/wikiforge/pkg/workflow"
)

// WorkflowRegistry is the active_workflows registry from §5: the Engine is
// its single writer, every other reader (the periodic_snapshot task, a
// future status API) only ever sees a cloned copy, so no caller needs to
// hold the per-workflow lock just to inspect progress.
//
// Grounded on original_source/server/utils/scheduler.py's
// WorkflowStateManager-style in-memory map, rebuilt here with
// copy-on-publish/copy-on-read semantics instead of the original's shared
// mutable dict.
type WorkflowRegistry struct {
	mu    sync.RWMutex
	byID  map[string]*workflow.State
}

// NewWorkflowRegistry returns an empty registry.
func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{byID: make(map[string]*workflow.State)}
}

// Publish records state's current snapshot, replacing any prior entry for
// the same workflow. Terminal workflows (Completed, or failed at their
// current stage) are removed instead of retained, so the registry only
// ever holds in-flight work. Only the Engine should call this.
func (r *WorkflowRegistry) Publish(state *workflow.State) {
	if state == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if state.IsTerminal() {
		delete(r.byID, state.WorkflowID)
		return
	}
	r.byID[state.WorkflowID] = state.Clone()
}

// Remove drops workflowID from the registry, e.g. after Cancel.
func (r *WorkflowRegistry) Remove(workflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, workflowID)
}

// Snapshot returns a cloned copy of every active workflow's state, safe to
// range over without the Engine's per-workflow lock.
func (r *WorkflowRegistry) Snapshot() []*workflow.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*workflow.State, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s.Clone())
	}
	return out
}

// Get returns a cloned copy of one workflow's state, or nil if absent.
func (r *WorkflowRegistry) Get(workflowID string) *workflow.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[workflowID]
	if !ok {
		return nil
	}
	return s.Clone()
}

// Len returns the number of active workflows currently tracked.
func (r *WorkflowRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
