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

// Package config loads the static top-level configuration (§6.4) that
// composes every other package's own nested Config: lock, checkpoint,
// retry, scheduler, store backend selection, and observability.
//
// Grounded on pkg/checkpoint/config.go's SetDefaults()/Validate() pattern,
// generalized to a root struct, and on
// _examples/kadirpekel-hector/pkg/config/provider/file.go's fsnotify-backed
// FileProvider for the optional hot-reload path (Watcher, in watcher.go).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/wikiforge/pkg/checkpoint"
	"github.com/kadirpekel/wikiforge/pkg/engine"
	"github.com/kadirpekel/wikiforge/pkg/observability"
)

// LockConfig configures the Lock Manager (§4.2, §6.4).
type LockConfig struct {
	// Backend selects the Manager implementation: "file", "kv", or
	// "etcd" (ambient addition, §6.4).
	Backend string `yaml:"backend,omitempty"`

	// DefaultTTLSeconds is the lease length Acquire uses when the
	// caller does not override it. Default 30.
	DefaultTTLSeconds int `yaml:"default_ttl_seconds,omitempty"`

	// SweepIntervalSeconds is how often the file backend's background
	// sweeper purges expired lock files. Default 10.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds,omitempty"`

	// FileRoot is the lock-file directory when Backend == "file".
	FileRoot string `yaml:"file_root,omitempty"`

	// EtcdEndpoints lists the etcd cluster members when Backend ==
	// "etcd" (ambient addition, §6.4).
	EtcdEndpoints []string `yaml:"etcd_endpoints,omitempty"`
}

func (c *LockConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "file"
	}
	if c.DefaultTTLSeconds == 0 {
		c.DefaultTTLSeconds = 30
	}
	if c.SweepIntervalSeconds == 0 {
		c.SweepIntervalSeconds = 10
	}
	if c.FileRoot == "" {
		c.FileRoot = "data/locks"
	}
}

func (c *LockConfig) Validate() error {
	switch c.Backend {
	case "file", "kv", "etcd":
	default:
		return fmt.Errorf("lock.backend must be one of file|kv|etcd, got %q", c.Backend)
	}
	if c.Backend == "etcd" && len(c.EtcdEndpoints) == 0 {
		return fmt.Errorf("lock.etcd_endpoints must be non-empty when lock.backend is etcd")
	}
	if c.DefaultTTLSeconds <= 0 {
		return fmt.Errorf("lock.default_ttl_seconds must be positive")
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("lock.sweep_interval_seconds must be positive")
	}
	return nil
}

func (c *LockConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

func (c *LockConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// RetryConfig configures the Retry Policy (§4.4, §6.4).
type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts,omitempty"`
	BaseDelaySeconds  int `yaml:"base_delay_seconds,omitempty"`
}

func (c *RetryConfig) SetDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelaySeconds == 0 {
		c.BaseDelaySeconds = 1
	}
}

func (c *RetryConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	if c.BaseDelaySeconds <= 0 {
		return fmt.Errorf("retry.base_delay_seconds must be positive")
	}
	return nil
}

func (c *RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelaySeconds) * time.Second
}

// SchedulerConfig configures the Scheduler (§4.5, §6.4).
type SchedulerConfig struct {
	PeriodicSnapshotIntervalSeconds int `yaml:"periodic_snapshot_interval_seconds,omitempty"`
	CleanupIntervalSeconds          int `yaml:"cleanup_interval_seconds,omitempty"`
	StopDrainSeconds                int `yaml:"stop_drain_seconds,omitempty"`
}

func (c *SchedulerConfig) SetDefaults() {
	if c.PeriodicSnapshotIntervalSeconds == 0 {
		c.PeriodicSnapshotIntervalSeconds = 60
	}
	if c.CleanupIntervalSeconds == 0 {
		c.CleanupIntervalSeconds = 300
	}
	if c.StopDrainSeconds == 0 {
		c.StopDrainSeconds = 5
	}
}

func (c *SchedulerConfig) Validate() error {
	if c.PeriodicSnapshotIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.periodic_snapshot_interval_seconds must be positive")
	}
	if c.CleanupIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.cleanup_interval_seconds must be positive")
	}
	if c.StopDrainSeconds <= 0 {
		return fmt.Errorf("scheduler.stop_drain_seconds must be positive")
	}
	return nil
}

func (c *SchedulerConfig) PeriodicSnapshotInterval() time.Duration {
	return time.Duration(c.PeriodicSnapshotIntervalSeconds) * time.Second
}

func (c *SchedulerConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

func (c *SchedulerConfig) StopDrain() time.Duration {
	return time.Duration(c.StopDrainSeconds) * time.Second
}

// StoreConfig selects and configures the KV Store backend shared by the
// Checkpoint Store and (optionally) the KV-backed Lock Manager (§4.1,
// §6.4).
type StoreConfig struct {
	// Backend is one of local_file, embedded_kv, external (§6.4).
	Backend string `yaml:"backend,omitempty"`

	// DSN is the database/sql connection string for the embedded_kv
	// (sqlite3) and external (postgres/mysql) backends.
	DSN string `yaml:"dsn,omitempty"`

	// FileRoot is the root directory for the local_file backend.
	FileRoot string `yaml:"file_root,omitempty"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "local_file"
	}
	if c.FileRoot == "" {
		c.FileRoot = "data/checkpoints"
	}
}

func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case "local_file", "embedded_kv", "external":
	default:
		return fmt.Errorf("store.backend must be one of local_file|embedded_kv|external, got %q", c.Backend)
	}
	if c.Backend == "external" && c.DSN == "" {
		return fmt.Errorf("store.dsn is required when store.backend is external")
	}
	return nil
}

// ObservabilityConfig embeds the Ambient addition log settings alongside
// the observability package's own tracing/metrics config (§2.2, §6.4).
type ObservabilityConfig struct {
	observability.Config `yaml:",inline"`

	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`
}

func (c *ObservabilityConfig) SetDefaults() {
	c.Config.SetDefaults()
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "simple"
	}
}

func (c *ObservabilityConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "simple", "verbose":
	default:
		return fmt.Errorf("observability.log_format must be one of simple|verbose, got %q", c.LogFormat)
	}
	return nil
}

// Config is the root configuration object (§6.4), loaded via
// gopkg.in/yaml.v3 into nested structs with SetDefaults()/Validate()
// methods.
type Config struct {
	Lock          LockConfig          `yaml:"lock,omitempty"`
	Checkpoint    checkpoint.Config   `yaml:"checkpoint,omitempty"`
	Retry         RetryConfig         `yaml:"retry,omitempty"`
	Scheduler     SchedulerConfig     `yaml:"scheduler,omitempty"`
	Store         StoreConfig         `yaml:"store,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty"`
	Engine        engine.Config       `yaml:"engine,omitempty"`

	// Watch enables fsnotify-driven hot reload of the mutable subset
	// (TTLs, intervals, log level). Topology fields (store.backend,
	// lock.backend) are fixed at construction: a change to either is
	// logged and ignored by the reload path (§6.4).
	Watch bool `yaml:"watch,omitempty"`
}

// SetDefaults applies every section's defaults.
func (c *Config) SetDefaults() {
	c.Lock.SetDefaults()
	c.Checkpoint.SetDefaults()
	c.Retry.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Store.SetDefaults()
	c.Observability.SetDefaults()
	c.Engine.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Lock.Validate(); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// Load reads path, applies defaults, validates, and returns the Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}
