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
	"github.com/kadirpekel/wikiforge/pkg/registry"
)

// backendRegistry is a named lookup table of backend factories, the same
// "thin wrapper around registry.BaseRegistry[T]" shape as the teacher's
// pkg/llms.LLMRegistry/pkg/databases.DatabaseRegistry — applied here to
// the store.backend/lock.backend factories instead of LLM/database
// providers.
type backendRegistry[T any] struct {
	*registry.BaseRegistry[T]
}

func newBackendRegistry[T any]() *backendRegistry[T] {
	return &backendRegistry[T]{BaseRegistry: registry.NewBaseRegistry[T]()}
}

// mustRegister registers a built-in backend factory under name, panicking
// on failure. Failure here (a duplicate or empty name) is a programmer
// error in this file's own init(), never a runtime/config condition, so
// panicking at process startup is the right failure mode — the same way
// the teacher's provider packages register their built-in implementations.
func mustRegister[T any](r *backendRegistry[T], name string, factory T) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}
