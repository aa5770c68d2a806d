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

package observability

// NoopManager returns a no-operation Manager that does nothing; every
// accessor on a zero-value *Manager is already nil-safe, so this is just a
// readable spelling of "observability disabled" for callers that want an
// explicit constructor instead of a bare &Manager{}.
func NoopManager() *Manager {
	return &Manager{}
}
