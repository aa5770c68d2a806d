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

// Package retry implements the bounded, fixed-delay retry policy (§4.4).
//
// Grounded on original_source/src/core/utils/retry_manager.py's
// RetryManager (max_retries=3, base_delay=1.0, fixed-delay loop,
// RetryExhaustedError wrapping the last exception). The Go rendition
// drops the decorator/context-manager surface — there is no idiomatic Go
// analogue — and keeps the functional core as a single Do call.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/kadirpekel/wikiforge/pkg/wfkind"
)

// Policy wraps an operation with bounded, fixed-delay retry.
type Policy struct {
	MaxAttempts int           // default 3
	BaseDelay   time.Duration // default 1s, fixed (no backoff)
	Retryable   func(err error) bool
	Log         *slog.Logger
}

// DefaultPolicy returns the §6.4 default: 3 attempts, 1s fixed delay,
// retryable = kTransient/kTimeout/kInfrastructureFailure (Kind.Retryable).
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		Retryable:   func(err error) bool { return wfkind.KindOf(err).Retryable() },
		Log:         slog.Default(),
	}
}

// Do attempts fn up to MaxAttempts times. Between attempts it sleeps
// BaseDelay, honoring ctx cancellation. Non-retryable errors propagate
// immediately without consuming further attempts. After MaxAttempts
// retryable failures, it returns a *wfkind.Error of KindRetryExhausted
// wrapping the last error.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := p.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}
	log := p.Log
	if log == nil {
		log = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == maxAttempts {
			log.Error("all retry attempts failed", "op", op, "attempts", maxAttempts, "error", err)
			break
		}

		log.Warn("attempt failed, retrying", "op", op, "attempt", attempt, "delay", baseDelay, "error", err)
		select {
		case <-ctx.Done():
			return wfkind.Wrap(wfkind.KindCancelled, op, ctx.Err())
		case <-time.After(baseDelay):
		}
	}

	return wfkind.Wrap(wfkind.KindRetryExhausted, op, lastErr)
}
