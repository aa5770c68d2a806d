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

package checkpoint

import (
	"fmt"
	"time"
)

// Config configures the Checkpoint Store (§6.4), matching the teacher's
// nested-struct SetDefaults()/Validate() pattern (pkg/checkpoint/config.go
// in the retrieval pack).
type Config struct {
	// DefaultTTLSeconds is the retain_until horizon applied to a Save
	// call that does not specify its own ttl. Default 604800 (7 days).
	DefaultTTLSeconds int `yaml:"default_ttl_seconds,omitempty"`

	// KeyPrefix namespaces every key this store writes into the
	// underlying kvstore.Store. Default "ckpt".
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// SetDefaults applies the §6.4 defaults.
func (c *Config) SetDefaults() {
	if c.DefaultTTLSeconds == 0 {
		c.DefaultTTLSeconds = 7 * 24 * 3600
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "ckpt"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultTTLSeconds < 0 {
		return fmt.Errorf("checkpoint.default_ttl_seconds must be non-negative")
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("checkpoint.key_prefix must not be empty")
	}
	return nil
}

// DefaultTTL returns DefaultTTLSeconds as a time.Duration.
func (c *Config) DefaultTTL() time.Duration {
	if c == nil || c.DefaultTTLSeconds <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// Prefix returns KeyPrefix, defaulting to "ckpt".
func (c *Config) Prefix() string {
	if c == nil || c.KeyPrefix == "" {
		return "ckpt"
	}
	return c.KeyPrefix
}
