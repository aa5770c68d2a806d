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

package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFileLockManager(t *testing.T) *FileLockManager {
	t.Helper()
	m, err := NewFileLockManager(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestFileLockManagerAcquireRelease(t *testing.T) {
	m := newTestFileLockManager(t)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "workflow:w1", 30*time.Second, 0)
	require.NoError(t, err)
	require.NotEmpty(t, lease.LeaseID)

	held, err := m.IsHeld(ctx, "workflow:w1")
	require.NoError(t, err)
	require.True(t, held)

	ok, err := m.Release(ctx, "workflow:w1", lease.LeaseID)
	require.NoError(t, err)
	require.True(t, ok)

	held, err = m.IsHeld(ctx, "workflow:w1")
	require.NoError(t, err)
	require.False(t, held)
}

func TestFileLockManagerNeverSteals(t *testing.T) {
	m := newTestFileLockManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "workflow:w1", 30*time.Second, 0)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "workflow:w1", 30*time.Second, 50*time.Millisecond)
	require.Error(t, err)
}

func TestFileLockManagerExpiryAllowsReacquire(t *testing.T) {
	m := newTestFileLockManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "workflow:w1", 20*time.Millisecond, 0)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	lease, err := m.Acquire(ctx, "workflow:w1", 30*time.Second, 200*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, lease.LeaseID)
}

// TestFileLockManagerOnlyOneWinner is the P3/P5 property test: of N
// concurrent acquirers racing for the same resource, exactly one wins.
func TestFileLockManagerOnlyOneWinner(t *testing.T) {
	m := newTestFileLockManager(t)
	ctx := context.Background()

	const n = 8
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Acquire(ctx, "workflow:shared", 2*time.Second, 10*time.Millisecond); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}
}
