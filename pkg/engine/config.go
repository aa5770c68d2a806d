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

package engine

import (
	"fmt"
	"time"
)

// Config configures the Workflow Engine (§6.4), matching the teacher's
// nested-struct SetDefaults()/Validate() pattern.
type Config struct {
	// LockTTLSeconds is the lease held across one stage execution (§4.6
	// step 1). Default 30s.
	LockTTLSeconds int `yaml:"lock_ttl_seconds,omitempty"`

	// LockTimeoutSeconds bounds how long Advance blocks trying to
	// acquire the workflow lock before surfacing kLockTimeout. Zero
	// means non-blocking (a single immediate attempt), matching §4.6's
	// default.
	LockTimeoutSeconds int `yaml:"lock_timeout_seconds,omitempty"`

	// TraceIDMinLength is the §4.6 Start precondition on trace_id.
	TraceIDMinLength int `yaml:"trace_id_min_length,omitempty"`
}

// SetDefaults applies the §6.4 defaults.
func (c *Config) SetDefaults() {
	if c.LockTTLSeconds == 0 {
		c.LockTTLSeconds = 30
	}
	if c.TraceIDMinLength == 0 {
		c.TraceIDMinLength = 8
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.LockTTLSeconds <= 0 {
		return fmt.Errorf("engine.lock_ttl_seconds must be positive")
	}
	if c.LockTimeoutSeconds < 0 {
		return fmt.Errorf("engine.lock_timeout_seconds must be non-negative")
	}
	if c.TraceIDMinLength <= 0 {
		return fmt.Errorf("engine.trace_id_min_length must be positive")
	}
	return nil
}

// LockTTL returns LockTTLSeconds as a time.Duration.
func (c *Config) LockTTL() time.Duration {
	if c == nil || c.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// LockTimeout returns LockTimeoutSeconds as a time.Duration.
func (c *Config) LockTimeout() time.Duration {
	if c == nil {
		return 0
	}
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}
