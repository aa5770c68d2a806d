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
	"flag"
	"fmt"

	"github.com/kadirpekel/wikiforge/pkg/checkpoint"
)

// statusCommand prints the latest checkpointed state for a workflow_id,
// reading the Checkpoint Store directly (§4.3) without starting the
// Engine or Scheduler — a read-only inspection path, grounded on the
// original's get_workflow_status being safe to call without holding any
// workflow lock.
func statusCommand(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (uses defaults if omitted).")
	workflowID := fs.String("workflow-id", "", "Workflow ID to inspect.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *workflowID == "" {
		return fmt.Errorf("--workflow-id is required")
	}

	cfg, err := loadOrDefaultConfig(*configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	kv, closeKV, err := newKVStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeKV()

	store := checkpoint.NewKVStore(kv, &cfg.Checkpoint)
	rec, err := store.LoadLatest(ctx, *workflowID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no checkpoint found for workflow %s", *workflowID)
	}

	fmt.Printf("workflow_id:  %s\n", rec.State.WorkflowID)
	fmt.Printf("trace_id:     %s\n", rec.State.TraceID)
	fmt.Printf("keyword:      %s\n", rec.State.Keyword)
	fmt.Printf("current_stage: %s\n", rec.State.CurrentStage)
	fmt.Printf("checkpoint_kind: %s\n", rec.Kind)
	fmt.Printf("recorded_at:  %s\n", rec.Timestamp)
	if rec.State.CompletedAt != nil {
		fmt.Printf("completed_at: %s\n", rec.State.CompletedAt)
	}
	return nil
}
