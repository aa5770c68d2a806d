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

package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), 0))
	v, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(v))

	deleted, err := s.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "ephemeral", []byte("v"), 10*time.Millisecond))
	exists, err := s.Exists(ctx, "ephemeral")
	require.NoError(t, err)
	assert.True(t, exists)

	time.Sleep(20 * time.Millisecond)

	exists, err = s.Exists(ctx, "ephemeral")
	require.NoError(t, err)
	assert.False(t, exists)

	removed := s.DeleteExpired()
	assert.Equal(t, 1, removed)
}

func TestMemoryStoreScanPrefixOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, k := range []string{"ckpt:w1:b", "ckpt:w1:a", "ckpt:w2:a", "other"} {
		require.NoError(t, s.Put(ctx, k, []byte(k), 0))
	}

	entries, err := s.Scan(ctx, "ckpt:w1:")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ckpt:w1:a", entries[0].Key)
	assert.Equal(t, "ckpt:w1:b", entries[1].Key)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Put(ctx, "shared", []byte{byte(i)}, 0)
			_, _, _ = s.Get(ctx, "shared")
		}(i)
	}
	wg.Wait()

	_, ok, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, ok)
}
