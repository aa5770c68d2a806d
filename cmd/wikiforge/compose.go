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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/wikiforge/pkg/agent"
	"github.com/kadirpekel/wikiforge/pkg/agent/testagent"
	"github.com/kadirpekel/wikiforge/pkg/checkpoint"
	"github.com/kadirpekel/wikiforge/pkg/config"
	"github.com/kadirpekel/wikiforge/pkg/engine"
	"github.com/kadirpekel/wikiforge/pkg/kvstore"
	"github.com/kadirpekel/wikiforge/pkg/lock"
	"github.com/kadirpekel/wikiforge/pkg/observability"
	"github.com/kadirpekel/wikiforge/pkg/retry"
	"github.com/kadirpekel/wikiforge/pkg/scheduler"
	"github.com/kadirpekel/wikiforge/pkg/stage"
	"github.com/kadirpekel/wikiforge/pkg/workflow"
)

// deployment bundles every component Start/Stop needs to manage, plus the
// teardown functions for the ones that own OS resources (file handles,
// sweep goroutines, sql.DB connections, the observability exporters).
type deployment struct {
	cfg       *config.Config
	store     *checkpoint.KVStore
	locks     lock.Manager
	obsMgr    *observability.Manager
	scheduler *scheduler.Scheduler
	engine    *engine.Engine
	closers   []func() error
}

func (d *deployment) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Warn("wikiforge: error during shutdown", "error", err)
		}
	}
}

// opened bundles a constructed resource with its teardown, the common
// shape every backend factory below returns.
type opened[T any] struct {
	value T
	close func() error
}

// storeFactory builds a kvstore.Store for one named store.backend value.
type storeFactory func(ctx context.Context, cfg config.StoreConfig) (opened[kvstore.Store], error)

// lockFactory builds a lock.Manager for one named lock.backend value.
type lockFactory func(cfg config.LockConfig, shared kvstore.Store, log *slog.Logger) (opened[lock.Manager], error)

// storeBackends and lockBackends are name -> factory lookup tables, the
// same shape as the teacher's pkg/llms.LLMRegistry/pkg/embedders registries
// (a registry.BaseRegistry[T] of named pluggable implementations) applied
// to backend selection instead of provider selection: §6.4's
// store.backend/lock.backend strings choose a factory instead of a
// switch arm, so adding a backend is "register one more name" rather than
// editing a dispatch statement.
var storeBackends = newBackendRegistry[storeFactory]()
var lockBackends = newBackendRegistry[lockFactory]()

func init() {
	mustRegister(storeBackends, "local_file", func(ctx context.Context, cfg config.StoreConfig) (opened[kvstore.Store], error) {
		s, err := kvstore.NewFileStore(cfg.FileRoot)
		if err != nil {
			return opened[kvstore.Store]{}, fmt.Errorf("open local_file store: %w", err)
		}
		return opened[kvstore.Store]{value: s, close: func() error { return nil }}, nil
	})
	mustRegister(storeBackends, "embedded_kv", func(ctx context.Context, cfg config.StoreConfig) (opened[kvstore.Store], error) {
		s, err := kvstore.OpenSQLStore(ctx, "sqlite3", kvstore.DialectSQLite, cfg.DSN)
		if err != nil {
			return opened[kvstore.Store]{}, fmt.Errorf("open embedded_kv store: %w", err)
		}
		return opened[kvstore.Store]{value: s, close: s.Close}, nil
	})
	mustRegister(storeBackends, "external", func(ctx context.Context, cfg config.StoreConfig) (opened[kvstore.Store], error) {
		driver, dialect, err := externalDriver(cfg.DSN)
		if err != nil {
			return opened[kvstore.Store]{}, err
		}
		s, err := kvstore.OpenSQLStore(ctx, driver, dialect, cfg.DSN)
		if err != nil {
			return opened[kvstore.Store]{}, fmt.Errorf("open external store: %w", err)
		}
		return opened[kvstore.Store]{value: s, close: s.Close}, nil
	})

	mustRegister(lockBackends, "file", func(cfg config.LockConfig, _ kvstore.Store, log *slog.Logger) (opened[lock.Manager], error) {
		m, err := lock.NewFileLockManager(cfg.FileRoot, log)
		if err != nil {
			return opened[lock.Manager]{}, fmt.Errorf("open file lock manager: %w", err)
		}
		return opened[lock.Manager]{value: m, close: m.Close}, nil
	})
	mustRegister(lockBackends, "kv", func(_ config.LockConfig, shared kvstore.Store, _ *slog.Logger) (opened[lock.Manager], error) {
		return opened[lock.Manager]{value: lock.NewKVLockManager(shared), close: func() error { return nil }}, nil
	})
	mustRegister(lockBackends, "etcd", func(cfg config.LockConfig, _ kvstore.Store, _ *slog.Logger) (opened[lock.Manager], error) {
		m, err := lock.NewEtcdLockManager(cfg.EtcdEndpoints, cfg.DefaultTTL())
		if err != nil {
			return opened[lock.Manager]{}, fmt.Errorf("open etcd lock manager: %w", err)
		}
		return opened[lock.Manager]{value: m, close: m.Close}, nil
	})
}

// externalDriver picks the database/sql driver for an "external" store
// DSN. A postgres:// scheme selects lib/pq; anything else falls back to
// MySQL, the two external database/sql drivers this repository vendors
// (§6.4 "DB drivers").
func externalDriver(dsn string) (string, kvstore.Dialect, error) {
	if dsn == "" {
		return "", "", fmt.Errorf("store.dsn must not be empty for the external backend")
	}
	if len(dsn) >= len("postgres://") && dsn[:len("postgres://")] == "postgres://" {
		return "postgres", kvstore.DialectPostgres, nil
	}
	return "mysql", kvstore.DialectMySQL, nil
}

// newKVStore builds the shared kvstore.Store backing the Checkpoint Store
// (and, for the "kv" lock backend, the Lock Manager) per §6.4 store.backend.
func newKVStore(ctx context.Context, cfg config.StoreConfig) (kvstore.Store, func() error, error) {
	factory, ok := storeBackends.Get(cfg.Backend)
	if !ok {
		return nil, nil, fmt.Errorf("unknown store.backend %q", cfg.Backend)
	}
	o, err := factory(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return o.value, o.close, nil
}

// newLockManager builds the Lock Manager per §6.4 lock.backend, reusing
// the shared kvstore.Store for the "kv" backend so the checkpoint and lock
// namespaces live in the same database without a second connection pool.
func newLockManager(cfg config.LockConfig, shared kvstore.Store, log *slog.Logger) (lock.Manager, func() error, error) {
	factory, ok := lockBackends.Get(cfg.Backend)
	if !ok {
		return nil, nil, fmt.Errorf("unknown lock.backend %q", cfg.Backend)
	}
	o, err := factory(cfg, shared, log)
	if err != nil {
		return nil, nil, err
	}
	return o.value, o.close, nil
}

// registerDemoAgents installs a Constant test-stub agent.Agent for every
// DAG stage (§6.1). Real Research/Extraction/Retrieval/WikiGeneration/
// GraphVisualization/FeedbackProcessing agents are out-of-tree
// collaborators (§1 Non-goals); these stand-ins let the Engine run an
// end-to-end workflow without them.
func registerDemoAgents(e *engine.Engine) {
	e.RegisterAgent(testagent.NewConstant(stage.Research, map[string]any{
		agent.FieldResearchResults:   []string{"wikiforge is a workflow orchestration exercise"},
		agent.FieldResearchCompleted: true,
	}))
	e.RegisterAgent(testagent.NewConstant(stage.Extraction, map[string]any{
		agent.FieldExtractedEntities:  []string{"wikiforge", "supervisor"},
		agent.FieldExtractedRelations: []string{"wikiforge orchestrates supervisor"},
	}))
	e.RegisterAgent(testagent.NewConstant(stage.Retrieval, map[string]any{
		agent.FieldRetrievedDocs: []string{"doc-1", "doc-2"},
	}))
	e.RegisterAgent(testagent.NewConstant(stage.WikiGeneration, map[string]any{
		agent.FieldWikiContent: "# wikiforge\n\nGenerated by the demo pipeline.\n",
	}))
	e.RegisterAgent(testagent.NewConstant(stage.GraphVisualization, map[string]any{
		agent.FieldGraphData: map[string]any{"nodes": 2, "edges": 1},
	}))
	e.RegisterAgent(testagent.NewConstant(stage.FeedbackProcessing, map[string]any{
		agent.FieldFeedbackData: map[string]any{"accepted": true},
	}))
}

// compose builds every component from cfg: the shared KV store, the
// Checkpoint Store, the Lock Manager, the observability Manager, the
// Scheduler (with its default periodic_snapshot/cleanup_expired tasks
// registered), and the Engine wired to the Scheduler as its StageObserver
// (§4, §5).
func compose(ctx context.Context, cfg *config.Config, log *slog.Logger) (*deployment, error) {
	d := &deployment{cfg: cfg}

	kv, closeKV, err := newKVStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, closeKV)
	d.store = checkpoint.NewKVStore(kv, &cfg.Checkpoint)

	locks, closeLocks, err := newLockManager(cfg.Lock, kv, log)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.closers = append(d.closers, closeLocks)
	d.locks = locks

	obsMgr, err := observability.NewFromConfig(ctx, &cfg.Observability.Config)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("init observability: %w", err)
	}
	d.closers = append(d.closers, func() error { return obsMgr.Shutdown(context.Background()) })
	d.obsMgr = obsMgr

	registry := scheduler.NewWorkflowRegistry()
	sched := scheduler.New(log, obsMgr.Metrics(), cfg.Scheduler.StopDrain(), d.store, registry)
	d.scheduler = sched

	retryPolicy := retry.DefaultPolicy()
	retryPolicy.MaxAttempts = cfg.Retry.MaxAttempts
	retryPolicy.BaseDelay = cfg.Retry.BaseDelay()

	eng := engine.New(locks, d.store, agent.NewRegistry(), retryPolicy, sched, obsMgr.Tracer(), obsMgr.Metrics(), &cfg.Engine, log)
	registerDemoAgents(eng)
	d.engine = eng

	sched.RegisterDefaultTasks(
		cfg.Scheduler.PeriodicSnapshotInterval(),
		cfg.Scheduler.CleanupInterval(),
		func(ctx context.Context, state *workflow.State) error {
			rec := checkpoint.NewRecord(checkpoint.KindPeriodic, state, time.Now().UTC(), nil)
			_, err := d.store.Save(ctx, rec, 0)
			return err
		},
	)

	return d, nil
}
