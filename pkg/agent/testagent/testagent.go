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

// Package testagent provides the only agent.Agent implementations this
// repository carries: deterministic constant-output stand-ins and
// configurable-failure-sequence stand-ins, used to drive the Engine's
// end-to-end scenarios (§6.1, §8). Neither is a production agent — the real
// Research/Extraction/Retrieval/WikiGeneration/GraphVisualization/
// FeedbackProcessing collaborators are out of scope (§1 Non-goals).
package testagent

import (
	"context"
	"fmt"
	"sync"

	"github.com/kadirpekel/wikiforge/pkg/agent"
	"github.com/kadirpekel/wikiforge/pkg/stage"
)

// Constant always produces a copy of the same payload (empty when built
// with a nil or empty map) and always reports healthy. It is grounded on the trivial "return a fixed dict" stand-ins
// the original's supervisor tests use in place of real agents.
type Constant struct {
	stageID stage.Id
	output  map[string]any
}

// NewConstant builds a Constant agent for st that produces a copy of output
// on every Process call.
func NewConstant(st stage.Id, output map[string]any) *Constant {
	return &Constant{stageID: st, output: output}
}

func (c *Constant) Stage() stage.Id { return c.stageID }

func (c *Constant) Process(ctx context.Context, in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(c.output))
	for k, v := range c.output {
		out[k] = v
	}
	return out, nil
}

func (c *Constant) HealthCheck(ctx context.Context) agent.Status {
	return agent.Status{Healthy: true, Detail: "constant agent, always healthy"}
}

// FailureSequence fails with the configured error for its first N calls,
// then succeeds with a fixed payload on every call thereafter. It exists to
// exercise the Engine's Retry Policy and the kAgentFailure/kTransient
// classification paths (§8 P7, scenario 3 "Transient retry success").
type FailureSequence struct {
	stageID  stage.Id
	mu       sync.Mutex
	calls    int
	failFor  int
	err      error
	output   map[string]any
	healthy  bool
}

// NewFailureSequence builds an agent for st that returns err on its first
// failFor calls, then succeeds thereafter returning a copy of output.
func NewFailureSequence(st stage.Id, failFor int, err error, output map[string]any) *FailureSequence {
	return &FailureSequence{stageID: st, failFor: failFor, err: err, output: output, healthy: true}
}

func (f *FailureSequence) Stage() stage.Id { return f.stageID }

func (f *FailureSequence) Process(ctx context.Context, in map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.calls++
	attempt := f.calls
	f.mu.Unlock()

	if attempt <= f.failFor {
		return nil, fmt.Errorf("testagent: simulated failure on attempt %d/%d: %w", attempt, f.failFor, f.err)
	}
	out := make(map[string]any, len(f.output))
	for k, v := range f.output {
		out[k] = v
	}
	return out, nil
}

// SetHealthy lets a test flip the agent's reported health independent of
// its Process behavior, to exercise HealthCheck surfacing in isolation.
func (f *FailureSequence) SetHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}

func (f *FailureSequence) HealthCheck(ctx context.Context) agent.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		return agent.Status{Healthy: false, Detail: "forced unhealthy"}
	}
	return agent.Status{Healthy: true, Detail: fmt.Sprintf("calls=%d", f.calls)}
}

// Calls reports how many times Process has been invoked so far.
func (f *FailureSequence) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
