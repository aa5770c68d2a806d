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
)

// backendsCommand lists the store.backend and lock.backend names this
// binary was built with, read straight off the storeBackends/lockBackends
// registries in compose.go — the same two lookup tables a deployment's
// config.yaml store.backend/lock.backend values are resolved against. A
// config referencing a name not in this list fails at compose() time, so
// this is useful to run once before writing a config.
func backendsCommand(args []string) error {
	fs := flag.NewFlagSet("backends", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("store.backend:")
	for _, name := range storeBackends.Names() {
		fmt.Printf("  %s\n", name)
	}

	fmt.Println("lock.backend:")
	for _, name := range lockBackends.Names() {
		fmt.Printf("  %s\n", name)
	}

	return nil
}
