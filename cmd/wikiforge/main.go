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

// Command wikiforge drives the Supervisor orchestration subsystem: the
// Workflow Engine, Checkpoint Store, Lock Manager, Retry Policy, and
// Scheduler (§1, §4). It wires in-tree test-stub agents for the
// Research/Extraction/Retrieval/WikiGeneration/GraphVisualization/
// FeedbackProcessing stages, since the real domain collaborators are
// external and out of scope (§1 Non-goals).
//
// Usage:
//
//	wikiforge run --config config.yaml --keyword "golang"
//	wikiforge status --config config.yaml --workflow-id <id>
//	wikiforge backends
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "status":
		err = statusCommand(os.Args[2:])
	case "backends":
		err = backendsCommand(os.Args[2:])
	case "version":
		fmt.Println("wikiforge dev")
		return
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "wikiforge:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: wikiforge <run|status|backends|version> [flags]")
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, matching
// the teacher's cmd/hector ServeCmd shutdown handling.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("wikiforge: shutting down")
		cancel()
	}()
	return ctx, cancel
}
