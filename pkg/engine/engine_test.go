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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/wikiforge/pkg/agent"
	"github.com/kadirpekel/wikiforge/pkg/agent/testagent"
	"github.com/kadirpekel/wikiforge/pkg/checkpoint"
	"github.com/kadirpekel/wikiforge/pkg/kvstore"
	"github.com/kadirpekel/wikiforge/pkg/lock"
	"github.com/kadirpekel/wikiforge/pkg/retry"
	"github.com/kadirpekel/wikiforge/pkg/stage"
	"github.com/kadirpekel/wikiforge/pkg/wfkind"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := checkpoint.NewKVStore(kvstore.NewMemoryStore(), nil)
	locks := lock.NewKVLockManager(kvstore.NewMemoryStore())
	agents := agent.NewRegistry()

	agents.Register(testagent.NewConstant(stage.Research, map[string]any{
		agent.FieldResearchResults:   []string{"doc-1"},
		agent.FieldResearchCompleted: true,
	}))
	agents.Register(testagent.NewConstant(stage.Extraction, map[string]any{
		agent.FieldExtractedEntities:  []string{"entity-1"},
		agent.FieldExtractedRelations: []string{"relation-1"},
	}))
	agents.Register(testagent.NewConstant(stage.Retrieval, map[string]any{
		agent.FieldRetrievedDocs: []string{"doc-1"},
	}))
	agents.Register(testagent.NewConstant(stage.WikiGeneration, map[string]any{
		agent.FieldWikiContent: "wiki body",
	}))
	agents.Register(testagent.NewConstant(stage.GraphVisualization, map[string]any{
		agent.FieldGraphData: map[string]any{"nodes": []string{}, "edges": []string{}},
	}))
	agents.Register(testagent.NewConstant(stage.FeedbackProcessing, map[string]any{
		agent.FieldFeedbackData: []string{"feedback-1"},
	}))

	retryPolicy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	return New(locks, store, agents, retryPolicy, nil, nil, nil, nil, nil)
}

func TestStartCreatesInitialCheckpoint(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	workflowID, err := e.Start(ctx, "graph databases", "trace-0001")
	require.NoError(t, err)
	require.NotEmpty(t, workflowID)

	state, err := e.Get(ctx, workflowID)
	require.NoError(t, err)
	require.Equal(t, stage.Research, state.CurrentStage)
}

func TestStartRejectsEmptyKeyword(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Start(context.Background(), "", "trace-0001")
	require.True(t, wfkind.Is(err, wfkind.KindInvalidInput))
}

func TestStartRejectsShortTraceID(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Start(context.Background(), "golang", "short")
	require.True(t, wfkind.Is(err, wfkind.KindInvalidInput))
}

func TestAdvanceExecutesOneStage(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)

	state, err := e.Advance(ctx, workflowID)
	require.NoError(t, err)
	require.Equal(t, stage.Extraction, state.CurrentStage)
	require.Equal(t, stage.StatusCompleted, state.Flag(stage.Research))
	require.Equal(t, []string{"doc-1"}, state.Output(stage.Research)[agent.FieldResearchResults])
}

func TestRunDrivesToCompletion(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)

	final, err := e.Run(ctx, workflowID)
	require.NoError(t, err)
	require.Equal(t, stage.Completed, final.CurrentStage)
	require.NotNil(t, final.CompletedAt)
	require.NotNil(t, final.TotalProcessingSeconds)

	for _, st := range stage.Order {
		require.Equal(t, stage.StatusCompleted, final.Flag(st))
	}
}

func TestAdvanceOnTerminalWorkflowFails(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)
	_, err = e.Run(ctx, workflowID)
	require.NoError(t, err)

	_, err = e.Advance(ctx, workflowID)
	require.True(t, wfkind.Is(err, wfkind.KindAlreadyTerminal))
}

func TestAdvanceWithNoAgentFailsWithAgentMissing(t *testing.T) {
	store := checkpoint.NewKVStore(kvstore.NewMemoryStore(), nil)
	locks := lock.NewKVLockManager(kvstore.NewMemoryStore())
	e := New(locks, store, agent.NewRegistry(), retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}, nil, nil, nil, nil, nil)

	ctx := context.Background()
	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)

	_, err = e.Advance(ctx, workflowID)
	require.True(t, wfkind.Is(err, wfkind.KindAgentMissing))
}

func TestAdvanceRetriesTransientFailureThenSucceeds(t *testing.T) {
	store := checkpoint.NewKVStore(kvstore.NewMemoryStore(), nil)
	locks := lock.NewKVLockManager(kvstore.NewMemoryStore())
	agents := agent.NewRegistry()
	agents.Register(testagent.NewFailureSequence(stage.Research, 2,
		wfkind.Wrap(wfkind.KindTransient, "research", errors.New("flaky upstream")),
		map[string]any{agent.FieldResearchResults: []string{"doc-1"}}))

	e := New(locks, store, agents, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil, nil, nil, nil, nil)
	ctx := context.Background()
	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)

	state, err := e.Advance(ctx, workflowID)
	require.NoError(t, err)
	require.Equal(t, stage.Extraction, state.CurrentStage)
}

func TestAdvanceExhaustsRetryAndMarksFailed(t *testing.T) {
	store := checkpoint.NewKVStore(kvstore.NewMemoryStore(), nil)
	locks := lock.NewKVLockManager(kvstore.NewMemoryStore())
	agents := agent.NewRegistry()
	agents.Register(testagent.NewFailureSequence(stage.Research, 10,
		wfkind.Wrap(wfkind.KindTransient, "research", errors.New("down for good")),
		map[string]any{agent.FieldResearchResults: []string{"doc-1"}}))

	e := New(locks, store, agents, retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, nil, nil, nil, nil, nil)
	ctx := context.Background()
	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)

	_, err = e.Advance(ctx, workflowID)
	require.True(t, wfkind.Is(err, wfkind.KindAgentFailure))

	state, err := e.Get(ctx, workflowID)
	require.NoError(t, err)
	require.Equal(t, stage.StatusFailed, state.Flag(stage.Research))
	require.Equal(t, stage.Research, state.CurrentStage)
}

func TestRunReInvokesFailedStageOnRetryAfterRecovery(t *testing.T) {
	store := checkpoint.NewKVStore(kvstore.NewMemoryStore(), nil)
	locks := lock.NewKVLockManager(kvstore.NewMemoryStore())
	agents := agent.NewRegistry()
	// Fails the first Advance call, then always succeeds: simulates an
	// operator re-running Run after external intervention (§4.6 Recovery
	// semantics: re-invoking a failed stage is the re-invocation of the
	// stage from its pre-failure state).
	agents.Register(testagent.NewFailureSequence(stage.Research, 1,
		wfkind.Wrap(wfkind.KindTransient, "research", errors.New("temporary")),
		map[string]any{agent.FieldResearchResults: []string{"doc-1"}}))
	for _, st := range []stage.Id{stage.Extraction, stage.Retrieval, stage.WikiGeneration, stage.GraphVisualization, stage.FeedbackProcessing} {
		agents.Register(testagent.NewConstant(st, map[string]any{}))
	}

	e := New(locks, store, agents, retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}, nil, nil, nil, nil, nil)
	ctx := context.Background()
	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)

	_, err = e.Advance(ctx, workflowID)
	require.Error(t, err)

	state, err := e.Get(ctx, workflowID)
	require.NoError(t, err)
	require.Equal(t, stage.StatusFailed, state.Flag(stage.Research))

	final, err := e.Run(ctx, workflowID)
	require.NoError(t, err)
	require.Equal(t, stage.Completed, final.CurrentStage)
}

func TestCancelMarksWorkflowFailed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)

	cancelled, err := e.Cancel(ctx, workflowID)
	require.NoError(t, err)
	require.True(t, cancelled)

	state, err := e.Get(ctx, workflowID)
	require.NoError(t, err)
	require.Equal(t, stage.StatusFailed, state.Flag(stage.Research))

	_, err = e.Advance(ctx, workflowID)
	require.Error(t, err)
}

func TestCancelIsIdempotentAfterTerminal(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)

	first, err := e.Cancel(ctx, workflowID)
	require.NoError(t, err)
	require.True(t, first)

	second, err := e.Cancel(ctx, workflowID)
	require.NoError(t, err)
	require.False(t, second)
}

func TestListFiltersByStatus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	activeID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)

	completedID, err := e.Start(ctx, "rust", "trace-0002")
	require.NoError(t, err)
	_, err = e.Run(ctx, completedID)
	require.NoError(t, err)

	active := e.List("active")
	require.Len(t, active, 1)
	require.Equal(t, activeID, active[0].WorkflowID)

	completed := e.List("completed")
	require.Len(t, completed, 1)
	require.Equal(t, completedID, completed[0].WorkflowID)

	require.Len(t, e.List(""), 2)
}

func TestCleanupRemovesOldTerminalWorkflows(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)
	_, err = e.Run(ctx, workflowID)
	require.NoError(t, err)

	removed := e.Cleanup(time.Hour)
	require.Equal(t, 0, removed)

	e.mu.Lock()
	e.workflows[workflowID].touchedAt = time.Now().Add(-2 * time.Hour)
	e.mu.Unlock()

	removed = e.Cleanup(time.Hour)
	require.Equal(t, 1, removed)
	require.Empty(t, e.List(""))
}

func TestRegisterAgentReplacesExistingStageAgent(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterAgent(testagent.NewConstant(stage.Research, map[string]any{
		agent.FieldResearchResults: []string{"replaced"},
	}))

	ctx := context.Background()
	workflowID, err := e.Start(ctx, "golang", "trace-0001")
	require.NoError(t, err)

	state, err := e.Advance(ctx, workflowID)
	require.NoError(t, err)
	require.Equal(t, []string{"replaced"}, state.Output(stage.Research)[agent.FieldResearchResults])
}
