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

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "store:\n  backend: local_file\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "file", cfg.Lock.Backend)
	require.Equal(t, 30, cfg.Lock.DefaultTTLSeconds)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, 60, cfg.Scheduler.PeriodicSnapshotIntervalSeconds)
	require.Equal(t, 300, cfg.Scheduler.CleanupIntervalSeconds)
	require.Equal(t, "local_file", cfg.Store.Backend)
	require.Equal(t, "info", cfg.Observability.LogLevel)
	require.Equal(t, "simple", cfg.Observability.LogFormat)
	require.Equal(t, 30, cfg.Engine.LockTTLSeconds)
}

func TestLoadRejectsUnknownStoreBackend(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "store:\n  backend: s3\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresDSNForExternalStore(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "store:\n  backend: external\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownLogFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "observability:\n  log_format: xml\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLockConfigDurationHelpers(t *testing.T) {
	c := &LockConfig{DefaultTTLSeconds: 45, SweepIntervalSeconds: 5}
	require.Equal(t, 45*time.Second, c.DefaultTTL())
	require.Equal(t, 5*time.Second, c.SweepInterval())
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "scheduler:\n  cleanup_interval_seconds: 300\n")

	initial, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, slog.Default())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch := w.Watch(ctx, initial)

	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  cleanup_interval_seconds: 600\n"), 0o644))

	select {
	case reloaded, ok := <-ch:
		require.True(t, ok)
		require.Equal(t, 600, reloaded.Config.Scheduler.CleanupIntervalSeconds)
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherIgnoresTopologyChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "store:\n  backend: local_file\n")

	initial, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, slog.Default())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch := w.Watch(ctx, initial)

	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: external\n  dsn: postgres://x\n"), 0o644))

	select {
	case reloaded, ok := <-ch:
		require.True(t, ok)
		require.Equal(t, "local_file", reloaded.Config.Store.Backend)
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherCloseStopsLoop(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "store:\n  backend: local_file\n")
	initial, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, slog.Default())
	require.NoError(t, err)

	ch := w.Watch(context.Background(), initial)
	require.NoError(t, w.Close())

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not exit after Close")
	}
}
