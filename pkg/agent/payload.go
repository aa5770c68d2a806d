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

package agent

// Field names of the stage_outputs map, fixed by the §6.1 payload table.
// Declaring them as constants keeps every Agent implementation and the
// Engine's tests from re-typing the same string literals.
const (
	FieldKeyword = "keyword"

	FieldResearchResults   = "research_results"
	FieldResearchCompleted = "research_completed"

	FieldExtractedEntities  = "extracted_entities"
	FieldExtractedRelations = "extracted_relations"

	FieldRetrievedDocs = "retrieved_docs"

	FieldWikiContent = "wiki_content"

	FieldGraphData = "graph_data"

	FieldFeedbackData = "feedback_data"
)

// Select copies the named keys out of in, dropping anything absent. Agents
// use it to project the whole accumulated stage_outputs map down to the
// "Consumes" subset their stage declares (§6.1), so a change to an
// unrelated stage's output can never accidentally leak into their logic.
func Select(in map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := in[k]; ok {
			out[k] = v
		}
	}
	return out
}
