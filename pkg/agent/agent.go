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

// Package agent defines the contract the Workflow Engine drives each stage
// through (§6.1) and the registry that resolves a stage.Id to its
// implementation.
//
// Grounded on original_source/src/agents/supervisor/agent.py's
// register_agent/agent_registry string-dispatch ("research" -> callable):
// the Go rendition replaces the string key and runtime callable with a
// compile-time stage.Id and an interface, per §9's decision to prefer a
// closed stage enum over open string dispatch.
//
// This package ships no production agent: every implementation under
// testagent/ is an in-tree stand-in for the external Research/Extraction/
// Retrieval/WikiGeneration/GraphVisualization/FeedbackProcessing
// collaborators, which are out of scope (§1 Non-goals).
package agent

import (
	"context"

	"github.com/kadirpekel/wikiforge/pkg/stage"
)

// Status is the result of a health probe (§6.1).
type Status struct {
	Healthy bool
	Detail  string
}

// Agent fulfills exactly one stage of the workflow. The Engine passes it the
// whole WorkflowState's accumulated outputs (the stage's declared
// "Consumes" set) and merges back whatever partial update Process returns
// (the stage's declared "Produces" set, §6.1).
type Agent interface {
	// Stage reports which stage.Id this implementation fulfills.
	Stage() stage.Id

	// Process consumes the subset of accumulated stage outputs this stage
	// declares and returns a partial update to merge into stage_outputs.
	// Errors should be wfkind-wrapped by the caller's retry policy if the
	// agent itself does not wrap them; Process may return a raw error and
	// let the Engine classify it as kAgentFailure.
	Process(ctx context.Context, in map[string]any) (map[string]any, error)

	// HealthCheck reports whether the agent is presently able to serve
	// Process calls.
	HealthCheck(ctx context.Context) Status
}

// Registry resolves a stage.Id to the Agent registered for it. Unlike the
// string-keyed pkg/registry.BaseRegistry (used elsewhere for the
// store.backend/lock.backend factory tables), this is a dedicated
// stage.Id-keyed type, because the Engine's call sites want
// stage.Id-specific helpers (Stages) rather than the generic
// Registry[T] surface built around string names.
type Registry struct {
	agents map[stage.Id]Agent
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[stage.Id]Agent)}
}

// Register associates an Agent with the stage it reports via Stage().
// Registering a second agent for the same stage replaces the first.
func (r *Registry) Register(a Agent) {
	r.agents[a.Stage()] = a
}

// Get returns the agent registered for st, if any.
func (r *Registry) Get(st stage.Id) (Agent, bool) {
	a, ok := r.agents[st]
	return a, ok
}

// Stages lists every stage with a registered agent, in execution order.
func (r *Registry) Stages() []stage.Id {
	out := make([]stage.Id, 0, len(r.agents))
	for _, st := range stage.Order {
		if _, ok := r.agents[st]; ok {
			out = append(out, st)
		}
	}
	return out
}
