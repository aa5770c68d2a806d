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

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/wikiforge/pkg/wfkind"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0

	err := p.Do(context.Background(), "test", func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Retryable: func(err error) bool {
		return wfkind.Is(err, wfkind.KindTransient)
	}}
	calls := 0

	err := p.Do(context.Background(), "test", func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return wfkind.Wrap(wfkind.KindTransient, "test", errors.New("flaky"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAndWraps(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0

	err := p.Do(context.Background(), "test", func(ctx context.Context, attempt int) error {
		calls++
		return wfkind.Wrap(wfkind.KindTransient, "test", errors.New("always fails"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, wfkind.Is(err, wfkind.KindRetryExhausted))
}

func TestDoNonRetryablePropagatesImmediately(t *testing.T) {
	p := DefaultPolicy()
	p.BaseDelay = time.Millisecond
	calls := 0

	err := p.Do(context.Background(), "test", func(ctx context.Context, attempt int) error {
		calls++
		return wfkind.Wrap(wfkind.KindInvalidInput, "test", errors.New("bad input"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, wfkind.Is(err, wfkind.KindInvalidInput))
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, Retryable: func(error) bool { return true }}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, "test", func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("fail")
	})

	require.Error(t, err)
	assert.True(t, wfkind.Is(err, wfkind.KindCancelled))
}
