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

// Package engine implements the Workflow Engine (Supervisor, §4.6): the
// stateful driver that advances a workflow through the fixed
// Research -> Extraction -> Retrieval -> WikiGeneration ->
// GraphVisualization -> FeedbackProcessing -> Completed DAG, one stage per
// Advance call, under an exclusive per-workflow lock, with a checkpoint
// written at every transition.
//
// Grounded on original_source/src/agents/supervisor/agent.py's
// SupervisorAgent (create_workflow/execute_workflow/_execute_step,
// register_agent, get_workflow_status, list_workflows, cancel_workflow,
// cleanup_completed_workflows) — the Go rendition replaces its in-process
// dict-of-WorkflowState and string-keyed step dispatch with the Lock
// Manager, Checkpoint Store, and stage.Id-keyed agent.Registry from this
// repository's §4 components, and replaces the original's "run every step
// in one call" loop with single-stage Advance calls composed by Run, so an
// external caller can interleave workflows across a cooperative scheduler
// (§4.6, §5).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/wikiforge/pkg/agent"
	"github.com/kadirpekel/wikiforge/pkg/checkpoint"
	"github.com/kadirpekel/wikiforge/pkg/lock"
	"github.com/kadirpekel/wikiforge/pkg/observability"
	"github.com/kadirpekel/wikiforge/pkg/retry"
	"github.com/kadirpekel/wikiforge/pkg/stage"
	"github.com/kadirpekel/wikiforge/pkg/wfkind"
	"github.com/kadirpekel/wikiforge/pkg/workflow"
)

// StageObserver is notified after each stage completion, stage failure or
// cancellation the Engine records (§4.5 "event-driven hooks"). On a
// completion the checkpoint has already been saved; on the failure and
// cancellation paths it is notified even if that checkpoint write failed. *scheduler.Scheduler satisfies
// this via its OnStageCompleted method; the Engine depends on the
// interface rather than the concrete type so the two packages do not
// import one another.
type StageObserver interface {
	OnStageCompleted(state *workflow.State)
}

// lockResource is the §4.6 step-1 resource name for a workflow's
// exclusive lock.
func lockResource(workflowID string) string {
	return fmt.Sprintf("workflow:%s", workflowID)
}

// trackedWorkflow is one entry in the Engine's in-memory bookkeeping
// registry (§4.6 List/Cleanup), distinct from the Scheduler's
// WorkflowRegistry: this one retains terminal workflows until Cleanup
// evicts them by age, mirroring original_source's active_workflows dict
// and cleanup_completed_workflows (maxAge), whereas the Scheduler's
// registry only ever holds in-flight work for periodic snapshotting (§5).
type trackedWorkflow struct {
	state     *workflow.State
	touchedAt time.Time
}

// Engine is the Workflow Engine. Every dependency is constructor-injected
// (§9 design note: no package-level globals), so a caller composes
// whichever Lock Manager / Checkpoint Store backend and agents fit its
// deployment.
type Engine struct {
	locks   lock.Manager
	store   checkpoint.Store
	agents  *agent.Registry
	retry   retry.Policy
	observer StageObserver
	tracer  *observability.Tracer
	metrics *observability.Metrics
	cfg     *Config
	log     *slog.Logger

	mu        sync.Mutex
	workflows map[string]*trackedWorkflow
	cancelled map[string]bool
}

// New builds an Engine. cfg may be nil to accept §6.4 defaults; observer,
// tracer, and metrics may be nil (no-op). retryPolicy is typically
// retry.DefaultPolicy().
func New(
	locks lock.Manager,
	store checkpoint.Store,
	agents *agent.Registry,
	retryPolicy retry.Policy,
	observer StageObserver,
	tracer *observability.Tracer,
	metrics *observability.Metrics,
	cfg *Config,
	log *slog.Logger,
) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()
	if log == nil {
		log = slog.Default()
	}
	if agents == nil {
		agents = agent.NewRegistry()
	}
	return &Engine{
		locks:     locks,
		store:     store,
		agents:    agents,
		retry:     retryPolicy,
		observer:  observer,
		tracer:    tracer,
		metrics:   metrics,
		cfg:       cfg,
		log:       log,
		workflows: make(map[string]*trackedWorkflow),
		cancelled: make(map[string]bool),
	}
}

// RegisterAgent installs an implementation for the stage it reports via
// Stage() (§4.6 "RegisterAgent").
func (e *Engine) RegisterAgent(a agent.Agent) {
	e.agents.Register(a)
}

// Start creates a fresh workflow in the Research stage, writes an Initial
// checkpoint, and returns its workflow_id (§4.6).
func (e *Engine) Start(ctx context.Context, keyword, traceID string) (string, error) {
	if keyword == "" {
		return "", wfkind.Wrap(wfkind.KindInvalidInput, "engine.Start", fmt.Errorf("keyword must not be empty"))
	}
	if len(traceID) < e.cfg.TraceIDMinLength {
		return "", wfkind.Wrap(wfkind.KindInvalidInput, "engine.Start", fmt.Errorf("trace_id must be at least %d characters", e.cfg.TraceIDMinLength))
	}

	now := time.Now().UTC()
	workflowID := uuid.NewString()
	state := workflow.New(workflowID, traceID, keyword, now)

	rec := checkpoint.NewRecord(checkpoint.KindInitial, state, now, nil)
	if _, err := e.store.Save(ctx, rec, 0); err != nil {
		return "", wfkind.Wrap(wfkind.KindInfrastructureFailure, "engine.Start", err)
	}

	e.track(state)
	e.log.Info("engine: workflow started", "workflow_id", workflowID, "keyword", keyword)
	return workflowID, nil
}

// Get returns the latest persisted state, reading via the Checkpoint
// Store; no lock is required (§4.6).
func (e *Engine) Get(ctx context.Context, workflowID string) (*workflow.State, error) {
	rec, err := e.store.LoadLatest(ctx, workflowID)
	if err != nil {
		return nil, wfkind.Wrap(wfkind.KindInfrastructureFailure, "engine.Get", err)
	}
	if rec == nil {
		return nil, wfkind.Wrap(wfkind.KindNotFound, "engine.Get", fmt.Errorf("workflow %s", workflowID))
	}
	return rec.State, nil
}

// Cancel marks the workflow failed with cancellation metadata. It is
// idempotent after the workflow is already terminal (§4.6).
func (e *Engine) Cancel(ctx context.Context, workflowID string) (bool, error) {
	e.mu.Lock()
	e.cancelled[workflowID] = true
	e.mu.Unlock()

	state, err := e.Get(ctx, workflowID)
	if err != nil {
		return false, err
	}
	if state.IsTerminal() {
		return false, nil
	}

	now := time.Now().UTC()
	state.SetFlag(state.CurrentStage, stage.StatusFailed, now)
	rec := checkpoint.NewRecord(checkpoint.KindErrorRecovery, state, now, map[string]any{
		"cancelled": true,
		"stage":     state.CurrentStage.String(),
	})
	if _, err := e.store.Save(ctx, rec, 0); err != nil {
		return false, wfkind.Wrap(wfkind.KindInfrastructureFailure, "engine.Cancel", err)
	}

	e.track(state)
	e.notifyObserver(state)
	e.log.Info("engine: workflow cancelled", "workflow_id", workflowID, "stage", state.CurrentStage)
	return true, nil
}

// List returns the workflows in the Engine's in-memory bookkeeping
// registry, optionally filtered by status ("active", "completed",
// "failed"); an empty status returns every tracked workflow (§4.6,
// recovered from original_source's list_workflows).
func (e *Engine) List(status string) []*workflow.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*workflow.State, 0, len(e.workflows))
	for _, tw := range e.workflows {
		if status != "" && workflowStatus(tw.state) != status {
			continue
		}
		out = append(out, tw.state.Clone())
	}
	return out
}

// Cleanup drops terminal workflows last touched more than maxAge ago from
// the in-memory registry, returning the number removed. It never deletes
// checkpoints (§4.6, recovered from cleanup_completed_workflows).
func (e *Engine) Cleanup(maxAge time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, tw := range e.workflows {
		if !tw.state.IsTerminal() {
			continue
		}
		if tw.touchedAt.Before(cutoff) {
			delete(e.workflows, id)
			delete(e.cancelled, id)
			removed++
		}
	}
	return removed
}

func workflowStatus(s *workflow.State) string {
	if s.CurrentStage == stage.Completed {
		return "completed"
	}
	if s.Flag(s.CurrentStage) == stage.StatusFailed {
		return "failed"
	}
	return "active"
}

func (e *Engine) track(s *workflow.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[s.WorkflowID] = &trackedWorkflow{state: s.Clone(), touchedAt: time.Now()}
	count := 0
	for _, tw := range e.workflows {
		if !tw.state.IsTerminal() {
			count++
		}
	}
	e.metrics.SetActiveWorkflows(count)
}

func (e *Engine) isCancelled(workflowID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[workflowID]
}

func (e *Engine) notifyObserver(s *workflow.State) {
	if e.observer == nil {
		return
	}
	e.observer.OnStageCompleted(s)
}
