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

package engine

import (
	"context"
	"time"

	"github.com/kadirpekel/wikiforge/pkg/agent"
	"github.com/kadirpekel/wikiforge/pkg/checkpoint"
	"github.com/kadirpekel/wikiforge/pkg/stage"
	"github.com/kadirpekel/wikiforge/pkg/wfkind"
	"github.com/kadirpekel/wikiforge/pkg/workflow"
)

// buildInput projects the accumulated stage_outputs (plus the workflow's
// keyword) down to the "Consumes" subset the §6.1 payload table declares
// for st. FeedbackProcessing alone receives the full accumulated state.
func buildInput(state *workflow.State, st stage.Id) map[string]any {
	all := state.AllOutputs()
	all[agent.FieldKeyword] = state.Keyword

	switch st {
	case stage.Research:
		return agent.Select(all, agent.FieldKeyword)
	case stage.Extraction:
		return agent.Select(all, agent.FieldResearchResults)
	case stage.Retrieval:
		return agent.Select(all, agent.FieldResearchResults, agent.FieldExtractedEntities)
	case stage.WikiGeneration:
		return agent.Select(all, agent.FieldExtractedEntities, agent.FieldExtractedRelations, agent.FieldRetrievedDocs)
	case stage.GraphVisualization:
		return agent.Select(all, agent.FieldExtractedEntities, agent.FieldExtractedRelations)
	case stage.FeedbackProcessing:
		return all
	default:
		return all
	}
}

// Advance executes the single next stage of workflowID under its
// exclusive lock (§4.6 Execution algorithm).
func (e *Engine) Advance(ctx context.Context, workflowID string) (*workflow.State, error) {
	resource := lockResource(workflowID)

	lockCtx, lockSpan := e.tracer.StartLockAcquire(ctx, resource)
	waitStart := time.Now()
	lease, err := e.locks.Acquire(lockCtx, resource, e.cfg.LockTTL(), e.cfg.LockTimeout())
	e.metrics.RecordLockWait(resource, time.Since(waitStart))
	if err != nil {
		e.tracer.RecordError(lockSpan, err)
		lockSpan.End()
		e.metrics.RecordLockTimeout(resource)
		return nil, wfkind.Wrap(wfkind.KindLockTimeout, "engine.Advance", err)
	}
	lockSpan.End()
	lockAcquiredAt := time.Now()
	defer func() {
		e.metrics.RecordLockHold(resource, time.Since(lockAcquiredAt))
		_, _ = e.locks.Release(context.Background(), resource, lease.LeaseID)
	}()

	state, err := e.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if state.IsTerminal() {
		return nil, wfkind.Wrap(wfkind.KindAlreadyTerminal, "engine.Advance", nil)
	}

	advCtx, advSpan := e.tracer.StartAdvance(ctx, workflowID, state.CurrentStage.String())
	defer advSpan.End()

	if e.isCancelled(workflowID) {
		return e.finishCancelled(advCtx, state)
	}

	st := state.CurrentStage
	a, ok := e.agents.Get(st)
	if !ok {
		err := wfkind.Wrap(wfkind.KindAgentMissing, "engine.Advance", nil)
		e.tracer.RecordError(advSpan, err)
		return nil, err
	}

	input := buildInput(state, st)

	agentCtx, agentSpan := e.tracer.StartAgentInvoke(advCtx, workflowID, st.String())
	callStart := time.Now()
	var output map[string]any
	retryErr := e.retry.Do(agentCtx, "engine.Advance."+st.String(), func(ctx context.Context, attempt int) error {
		out, err := a.Process(ctx, input)
		if err != nil {
			return err
		}
		output = out
		return nil
	})
	e.metrics.RecordAgentCall(st.String(), time.Since(callStart))
	agentSpan.End()

	if e.isCancelled(workflowID) {
		return e.finishCancelled(advCtx, state)
	}

	if retryErr != nil {
		e.metrics.RecordAgentError(st.String(), wfkind.KindOf(retryErr).String())
		e.metrics.RecordRetryAttempt("engine.Advance."+st.String(), "exhausted")
		e.tracer.RecordError(advSpan, retryErr)
		return e.finishFailed(advCtx, state, st, retryErr)
	}
	e.metrics.RecordRetryAttempt("engine.Advance."+st.String(), "success")

	return e.finishSucceeded(advCtx, state, st, output)
}

func (e *Engine) finishSucceeded(ctx context.Context, state *workflow.State, st stage.Id, output map[string]any) (*workflow.State, error) {
	now := time.Now().UTC()
	state.MergeOutput(st, output, now)
	state.SetFlag(st, stage.StatusCompleted, now)

	next, isLast := stage.Next(st)
	kind := checkpoint.KindStageCompletion
	state.CurrentStage = next
	if isLast {
		state.CompletedAt = &now
		seconds := now.Sub(state.CreatedAt).Seconds()
		state.TotalProcessingSeconds = &seconds
		kind = checkpoint.KindFinal
	} else {
		state.SetFlag(next, stage.StatusPending, now)
	}

	ckptStart := time.Now()
	_, ckptSpan := e.tracer.StartCheckpointSave(ctx, state.WorkflowID, string(kind))
	rec := checkpoint.NewRecord(kind, state, now, nil)
	_, err := e.store.Save(ctx, rec, 0)
	e.metrics.RecordCheckpointWrite(string(kind), time.Since(ckptStart))
	if err != nil {
		e.tracer.RecordError(ckptSpan, err)
		ckptSpan.End()
		return nil, wfkind.Wrap(wfkind.KindInfrastructureFailure, "engine.Advance", err)
	}
	ckptSpan.End()

	e.metrics.RecordStageTransition(st.String(), state.CurrentStage.String())
	e.track(state)
	e.notifyObserver(state)
	e.log.Info("engine: stage completed", "workflow_id", state.WorkflowID, "stage", st, "next_stage", state.CurrentStage)
	return state, nil
}

func (e *Engine) finishFailed(ctx context.Context, state *workflow.State, st stage.Id, cause error) (*workflow.State, error) {
	now := time.Now().UTC()
	state.SetFlag(st, stage.StatusFailed, now)

	rec := checkpoint.NewRecord(checkpoint.KindErrorRecovery, state, now, map[string]any{
		"error_kind": wfkind.KindOf(cause).String(),
		"error":      cause.Error(),
		"stage":      st.String(),
	})
	if _, err := e.store.Save(ctx, rec, 0); err != nil {
		e.log.Error("engine: failed to persist error_recovery checkpoint", "workflow_id", state.WorkflowID, "error", err)
	}

	e.track(state)
	e.notifyObserver(state)
	e.log.Error("engine: stage failed", "workflow_id", state.WorkflowID, "stage", st, "error", cause)
	return nil, wfkind.Wrap(wfkind.KindAgentFailure, "engine.Advance", cause)
}

func (e *Engine) finishCancelled(ctx context.Context, state *workflow.State) (*workflow.State, error) {
	now := time.Now().UTC()
	state.SetFlag(state.CurrentStage, stage.StatusFailed, now)

	rec := checkpoint.NewRecord(checkpoint.KindErrorRecovery, state, now, map[string]any{
		"cancelled": true,
		"stage":     state.CurrentStage.String(),
	})
	if _, err := e.store.Save(ctx, rec, 0); err != nil {
		e.log.Error("engine: failed to persist cancellation checkpoint", "workflow_id", state.WorkflowID, "error", err)
	}

	e.track(state)
	e.notifyObserver(state)
	return nil, wfkind.Wrap(wfkind.KindCancelled, "engine.Advance", nil)
}

// Run repeatedly calls Advance until the workflow reaches Completed or an
// error is raised (§4.6).
func (e *Engine) Run(ctx context.Context, workflowID string) (*workflow.State, error) {
	var last *workflow.State
	for {
		state, err := e.Advance(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		last = state
		if state.CurrentStage == stage.Completed {
			return last, nil
		}
		select {
		case <-ctx.Done():
			return nil, wfkind.Wrap(wfkind.KindCancelled, "engine.Run", ctx.Err())
		default:
		}
	}
}
