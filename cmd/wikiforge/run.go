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
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kadirpekel/wikiforge/pkg/logger"
)

// runCommand starts a single workflow end-to-end against the in-tree
// demo agents and prints the final state. With -serve it then keeps the
// Scheduler's periodic_snapshot/cleanup_expired tasks running until
// interrupted; without it, it returns once the workflow completes.
// Grounded on the teacher's cmd/hector ServeCmd: load config, build the
// runtime, start background loops, block on signal.
func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (uses defaults if omitted).")
	keyword := fs.String("keyword", "wikiforge", "Keyword to seed the workflow with.")
	traceID := fs.String("trace-id", "wikiforge-cli-trace", "Trace ID correlating this run's logs.")
	logLevelFlag := fs.String("log-level", "", "Log level override (debug, info, warn, error).")
	watchForever := fs.Bool("serve", false, "Keep the scheduler running after the demo workflow completes, until interrupted.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadOrDefaultConfig(*configPath)
	if err != nil {
		return err
	}

	level := cfg.Observability.LogLevel
	if *logLevelFlag != "" {
		level = *logLevelFlag
	}
	parsedLevel, err := logger.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.Init(parsedLevel, os.Stderr, cfg.Observability.LogFormat)
	log := logger.GetLogger()

	ctx, cancel := signalContext()
	defer cancel()

	d, err := compose(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("compose runtime: %w", err)
	}
	defer d.Close()

	if cfg.Watch && *configPath != "" {
		watchConfig(ctx, *configPath, cfg, log)
	}

	d.scheduler.Start(ctx)
	defer d.scheduler.Stop()

	workflowID, err := d.engine.Start(ctx, *keyword, *traceID)
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	slog.Info("wikiforge: workflow started", "workflow_id", workflowID, "keyword", *keyword)

	state, err := d.engine.Run(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("run workflow: %w", err)
	}
	fmt.Printf("workflow %s completed: stage=%s\n", state.WorkflowID, state.CurrentStage)

	if *watchForever {
		slog.Info("wikiforge: demo workflow complete, scheduler running until interrupted (press Ctrl+C)")
		<-ctx.Done()
	}
	return nil
}
