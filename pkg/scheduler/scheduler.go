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

// Package scheduler implements the cooperative driver loop that coordinates
// periodic and event-driven checkpoint writes (§4.5).
//
// Grounded on original_source/server/utils/scheduler.py's PeriodicScheduler/
// SchedulerTask (a name/interval/func task registry, a 1s poll loop, default
// periodic_snapshot@60s and cleanup_expired@300s tasks, and a
// WorkflowStateManager-style active_workflows map) — the Go rendition
// replaces the asyncio task handle with a stoppable goroutine and fans each
// tick's due tasks out through golang.org/x/sync/errgroup (§4.5), and adds a
// Status() introspection call recovered from the original's task bookkeeping
// fields.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/wikiforge/pkg/checkpoint"
	"github.com/kadirpekel/wikiforge/pkg/workflow"
)

// TaskFunc is one scheduler task's body. It receives the tick time it was
// scheduled for.
type TaskFunc func(ctx context.Context, tickTime time.Time) error

// Task is one registered periodic job (§4.5 Task{name, interval, enabled,
// next_run, last_run, func}).
type Task struct {
	Name     string
	Interval time.Duration
	Enabled  bool

	fn       TaskFunc
	nextRun  time.Time
	lastRun  time.Time
	lastErr  error
	runCount int
}

// TaskStatus is the introspection snapshot returned by Status (recovered
// from the original's task bookkeeping fields, §4.5).
type TaskStatus struct {
	Name     string
	Interval time.Duration
	Enabled  bool
	NextRun  time.Time
	LastRun  time.Time
	LastErr  error
	RunCount int
}

// TickRecorder receives per-task duration observations, satisfied by
// *observability.Metrics (RecordSchedulerTick/RecordSchedulerTaskError); a
// nil recorder is a no-op so the Scheduler has no hard observability
// dependency.
type TickRecorder interface {
	RecordSchedulerTick(task string, duration time.Duration)
	RecordSchedulerTaskError(task string)
}

// Scheduler drives a registry of Tasks on a single cooperative loop that
// wakes at most once per second (§4.5).
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*Task
	log   *slog.Logger
	rec   TickRecorder

	store    *checkpoint.KVStore
	registry *WorkflowRegistry

	drainTimeout time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Scheduler with no tasks registered. drainTimeout bounds how
// long Stop waits for an in-flight tick before cancelling it (§6.4
// scheduler.stop_drain_seconds, default 5s). store and registry back the
// default tasks and the OnStageCompleted event hook (§4.5); either may be
// nil if the caller only wants custom tasks via AddTask.
func New(log *slog.Logger, rec TickRecorder, drainTimeout time.Duration, store *checkpoint.KVStore, registry *WorkflowRegistry) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Second
	}
	if registry == nil {
		registry = NewWorkflowRegistry()
	}
	return &Scheduler{
		tasks:        make(map[string]*Task),
		log:          log,
		rec:          rec,
		store:        store,
		registry:     registry,
		drainTimeout: drainTimeout,
	}
}

// Registry returns the scheduler's WorkflowRegistry, the single place the
// Engine publishes workflow snapshots for the periodic_snapshot task and any
// other reader (§5).
func (s *Scheduler) Registry() *WorkflowRegistry {
	return s.registry
}

// OnStageCompleted is the Engine's post-Advance hook (§4.5 "event-driven
// hooks"). It republishes the workflow's latest state into the registry so
// the next periodic_snapshot tick picks up the transition without waiting
// a full interval behind.
func (s *Scheduler) OnStageCompleted(state *workflow.State) {
	if s.registry == nil {
		return
	}
	s.registry.Publish(state)
}

// RegisterDefaultTasks wires the two default scheduler jobs from §4.5:
// periodic_snapshot (re-persists every active workflow's current state,
// a safety net against a missed event-driven checkpoint) and
// cleanup_expired (calls the checkpoint store's Reap to delete records
// past their retain_until). periodic_snapshot is a no-op when the
// registry or snapshot is nil, cleanup_expired when store is nil.
func (s *Scheduler) RegisterDefaultTasks(snapshotInterval, cleanupInterval time.Duration, snapshot func(ctx context.Context, state *workflow.State) error) {
	if snapshotInterval <= 0 {
		snapshotInterval = 60 * time.Second
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 300 * time.Second
	}

	s.AddTask("periodic_snapshot", snapshotInterval, func(ctx context.Context, _ time.Time) error {
		if s.registry == nil || snapshot == nil {
			return nil
		}
		for _, state := range s.registry.Snapshot() {
			if err := snapshot(ctx, state); err != nil {
				return err
			}
		}
		return nil
	})

	s.AddTask("cleanup_expired", cleanupInterval, func(ctx context.Context, _ time.Time) error {
		if s.store == nil {
			return nil
		}
		_, err := s.store.Reap(ctx, time.Now())
		return err
	})
}

// AddTask registers fn to run every interval, starting one interval from
// now. Re-registering a name replaces the previous task.
func (s *Scheduler) AddTask(name string, interval time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = &Task{
		Name:     name,
		Interval: interval,
		Enabled:  true,
		fn:       fn,
		nextRun:  time.Now().Add(interval),
	}
}

// EnableTask toggles whether a registered task runs.
func (s *Scheduler) EnableTask(name string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		t.Enabled = enabled
	}
}

// RemoveTask unregisters a task by name.
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
}

// Start spawns the driver loop. Calling Start on an already-running
// Scheduler is a no-op (idempotent, §4.5).
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(runCtx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick runs every enabled task whose next_run has passed, fanning them out
// concurrently via errgroup and joining before the next wake (§4.5).
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Enabled && !now.Before(t.nextRun) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range due {
		t := t
		g.Go(func() error {
			s.runTask(gctx, t, now)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) runTask(ctx context.Context, t *Task, tickTime time.Time) {
	start := time.Now()
	err := t.fn(ctx, tickTime)
	duration := time.Since(start)

	s.mu.Lock()
	t.lastRun = tickTime
	t.nextRun = tickTime.Add(t.Interval)
	t.lastErr = err
	t.runCount++
	s.mu.Unlock()

	if s.rec != nil {
		s.rec.RecordSchedulerTick(t.Name, duration)
	}
	if err != nil {
		s.log.Error("scheduler: task failed", "task", t.Name, "error", err)
		if s.rec != nil {
			s.rec.RecordSchedulerTaskError(t.Name)
		}
		return
	}
	s.log.Debug("scheduler: task completed", "task", t.Name, "duration", duration)
}

// Stop cancels the driver loop and waits up to drainTimeout for the
// in-flight tick to finish (idempotent, §4.5).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		s.log.Warn("scheduler: stop drain timeout exceeded")
	}
}

// Status returns a point-in-time snapshot of every registered task.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, TaskStatus{
			Name:     t.Name,
			Interval: t.Interval,
			Enabled:  t.Enabled,
			NextRun:  t.nextRun,
			LastRun:  t.lastRun,
			LastErr:  t.lastErr,
			RunCount: t.runCount,
		})
	}
	return out
}
