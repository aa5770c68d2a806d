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

package workflow

// EntityType is the closed set of named entity categories the Extraction
// stage may emit (§6.1). It is deliberately open-ended with a catch-all
// "…" in the spec; this rendition enumerates the concrete categories the
// original's entity_extractor.py pattern set actually produces and keeps
// an Other escape hatch rather than rejecting unknown values.
type EntityType string

const (
	EntityPerson       EntityType = "PERSON"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityLocation     EntityType = "LOCATION"
	EntityConcept      EntityType = "CONCEPT"
	EntityEvent        EntityType = "EVENT"
	EntityOther        EntityType = "OTHER"
)

// Entity is a named entity recovered from research documents (§6.1).
type Entity struct {
	ID         string     `json:"id"`
	Type       EntityType `json:"type"`
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
}

// Relation links two entities by a predicate (§6.1).
type Relation struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Predicate  string  `json:"predicate"`
	Confidence float64 `json:"confidence"`
}

// GraphData is the node/edge projection the GraphVisualization stage
// produces (§6.1).
type GraphData struct {
	Nodes []Entity   `json:"nodes"`
	Edges []Relation `json:"edges"`
}

// Document is an opaque research artifact produced by the Research stage
// (§6.1). The original's research/agent.py attaches a source URL and
// retrieved snippet; the core treats the body as opaque text the
// downstream agents project fields out of.
type Document struct {
	ID      string `json:"id"`
	Source  string `json:"source,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// FeedbackEvent is a single piece of user feedback recovered from the
// FeedbackProcessing stage (§6.1); the original's feedback/agent.py
// additionally supports mutating existing relation endpoints, which is
// modeled here as a partial Relation update keyed by the relation's
// source/target/predicate triple. Orphan cleanup after such a mutation is
// explicitly left undone (§9 Open Question, DESIGN.md).
type FeedbackEvent struct {
	ID              string   `json:"id"`
	EntityID        string   `json:"entity_id,omitempty"`
	Comment         string   `json:"comment,omitempty"`
	Rating          float64  `json:"rating,omitempty"`
	UpdatedRelation *Relation `json:"updated_relation,omitempty"`
}
