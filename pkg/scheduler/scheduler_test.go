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
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/wikiforge/pkg/checkpoint"
	"github.com/kadirpekel/wikiforge/pkg/kvstore"
	"github.com/kadirpekel/wikiforge/pkg/stage"
	"github.com/kadirpekel/wikiforge/pkg/workflow"
)

func newTestScheduler(t *testing.T) (*Scheduler, *checkpoint.KVStore) {
	t.Helper()
	store := checkpoint.NewKVStore(kvstore.NewMemoryStore(), nil)
	return New(nil, nil, 0, store, nil), store
}

func TestAddTaskRunsOnTick(t *testing.T) {
	sched, _ := newTestScheduler(t)
	var calls int32
	sched.AddTask("probe", 0, func(ctx context.Context, tickTime time.Time) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	// force nextRun into the past so the first tick fires it
	sched.mu.Lock()
	sched.tasks["probe"].nextRun = time.Now().Add(-time.Second)
	sched.mu.Unlock()

	sched.tick(context.Background(), time.Now())
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	status := sched.Status()
	require.Len(t, status, 1)
	require.Equal(t, "probe", status[0].Name)
	require.Equal(t, 1, status[0].RunCount)
}

func TestTickSkipsNotYetDueTasks(t *testing.T) {
	sched, _ := newTestScheduler(t)
	var calls int32
	sched.AddTask("future", time.Hour, func(ctx context.Context, tickTime time.Time) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	sched.tick(context.Background(), time.Now())
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestEnableTaskDisablesExecution(t *testing.T) {
	sched, _ := newTestScheduler(t)
	var calls int32
	sched.AddTask("probe", 0, func(ctx context.Context, tickTime time.Time) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	sched.EnableTask("probe", false)

	sched.mu.Lock()
	sched.tasks["probe"].nextRun = time.Now().Add(-time.Second)
	sched.mu.Unlock()

	sched.tick(context.Background(), time.Now())
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestRemoveTaskStopsFutureTicks(t *testing.T) {
	sched, _ := newTestScheduler(t)
	sched.AddTask("probe", 0, func(ctx context.Context, tickTime time.Time) error { return nil })
	sched.RemoveTask("probe")
	require.Empty(t, sched.Status())
}

func TestTaskErrorIsRecordedInStatus(t *testing.T) {
	sched, _ := newTestScheduler(t)
	boom := errTest{}
	sched.AddTask("probe", 0, func(ctx context.Context, tickTime time.Time) error { return boom })

	sched.mu.Lock()
	sched.tasks["probe"].nextRun = time.Now().Add(-time.Second)
	sched.mu.Unlock()

	sched.tick(context.Background(), time.Now())
	status := sched.Status()
	require.Len(t, status, 1)
	require.ErrorIs(t, status[0].LastErr, boom)
}

func TestStartStopIsIdempotent(t *testing.T) {
	sched, _ := newTestScheduler(t)
	sched.Start(context.Background())
	sched.Start(context.Background()) // no-op, must not panic or deadlock
	sched.Stop()
	sched.Stop() // no-op
}

func TestRegisterDefaultTasksSnapshotsRegistry(t *testing.T) {
	sched, _ := newTestScheduler(t)
	reg := sched.Registry()
	reg.Publish(workflow.New("wf-1", "trace-1", "golang", time.Now()))

	var snapshotted []string
	sched.RegisterDefaultTasks(0, 0, func(ctx context.Context, state *workflow.State) error {
		snapshotted = append(snapshotted, state.WorkflowID)
		return nil
	})

	sched.mu.Lock()
	sched.tasks["periodic_snapshot"].nextRun = time.Now().Add(-time.Second)
	sched.mu.Unlock()

	sched.tick(context.Background(), time.Now())
	require.Equal(t, []string{"wf-1"}, snapshotted)
}

func TestOnStageCompletedPublishesAndRemovesTerminal(t *testing.T) {
	sched, _ := newTestScheduler(t)
	state := workflow.New("wf-2", "trace-2", "rust", time.Now())
	sched.OnStageCompleted(state)
	require.Equal(t, 1, sched.Registry().Len())
	require.NotNil(t, sched.Registry().Get("wf-2"))

	completedAt := time.Now()
	state.CurrentStage = stage.Completed
	state.CompletedAt = &completedAt
	sched.OnStageCompleted(state)
	require.Equal(t, 0, sched.Registry().Len())
	require.Nil(t, sched.Registry().Get("wf-2"))
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
