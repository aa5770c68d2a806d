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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kadirpekel/wikiforge/pkg/kvstore"
	"github.com/kadirpekel/wikiforge/pkg/wfkind"
)

type kvLockPayload struct {
	LeaseID    string        `json:"lease_id"`
	AcquiredAt time.Time     `json:"acquired_at"`
	TTL        time.Duration `json:"ttl_ns"`
}

// KVLockManager implements Manager as a compare-and-set write of
// (lease_id, expires_at) under lock:{resource}, using any kvstore.Store —
// the alternative backend named in §4.2 for store.backend = embedded_kv
// or external deployments that would rather not run a separate lock
// subsystem.
//
// CAS is emulated because kvstore.Store itself has no atomic
// compare-and-swap primitive; correctness instead relies on an in-process
// mutex serializing the read-then-write, which is sufficient within one
// engine instance and matches the KV Store's own single-writer guarantee
// for same-key writes (§4.3 Consistency).
type KVLockManager struct {
	store Store
	mu    sync.Mutex
}

// Store is the subset of kvstore.Store the KV-backed lock manager needs.
type Store = kvstore.Store

func keyFor(resource string) string { return fmt.Sprintf("lock:%s", resource) }

// NewKVLockManager builds a Manager backed by store.
func NewKVLockManager(store Store) *KVLockManager {
	return &KVLockManager{store: store}
}

func (m *KVLockManager) load(ctx context.Context, resource string) (kvLockPayload, bool, error) {
	raw, ok, err := m.store.Get(ctx, keyFor(resource))
	if err != nil {
		return kvLockPayload{}, false, wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.load", err)
	}
	if !ok {
		return kvLockPayload{}, false, nil
	}
	var payload kvLockPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return kvLockPayload{}, false, wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.load", err)
	}
	return payload, true, nil
}

func (m *KVLockManager) save(ctx context.Context, resource string, payload kvLockPayload, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, keyFor(resource), data, ttl); err != nil {
		return wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.save", err)
	}
	return nil
}

func (m *KVLockManager) tryAcquireOnce(ctx context.Context, resource string, ttl time.Duration) (Lease, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok, err := m.load(ctx, resource)
	if err != nil {
		return Lease{}, false, err
	}
	if ok {
		lease := Lease{AcquiredAt: existing.AcquiredAt, TTL: existing.TTL}
		if !lease.Expired(time.Now()) {
			return Lease{}, false, nil
		}
	}

	payload := kvLockPayload{LeaseID: uuid.NewString(), AcquiredAt: time.Now(), TTL: ttl}
	if err := m.save(ctx, resource, payload, ttl); err != nil {
		return Lease{}, false, err
	}
	return Lease{Resource: resource, LeaseID: payload.LeaseID, AcquiredAt: payload.AcquiredAt, TTL: ttl}, true, nil
}

func (m *KVLockManager) Acquire(ctx context.Context, resource string, ttl, timeout time.Duration) (Lease, error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 20 * time.Millisecond

	for {
		lease, ok, err := m.tryAcquireOnce(ctx, resource, ttl)
		if err != nil {
			return Lease{}, err
		}
		if ok {
			return lease, nil
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return Lease{}, wfkind.Wrap(wfkind.KindLockTimeout, "lock.Acquire", nil)
		}

		select {
		case <-ctx.Done():
			return Lease{}, wfkind.Wrap(wfkind.KindCancelled, "lock.Acquire", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (m *KVLockManager) Release(ctx context.Context, resource, leaseID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payload, ok, err := m.load(ctx, resource)
	if err != nil || !ok || payload.LeaseID != leaseID {
		return false, err
	}
	deleted, err := m.store.Delete(ctx, keyFor(resource))
	if err != nil {
		return false, wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.Release", err)
	}
	return deleted, nil
}

func (m *KVLockManager) Extend(ctx context.Context, resource, leaseID string, additionalTTL time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payload, ok, err := m.load(ctx, resource)
	if err != nil || !ok || payload.LeaseID != leaseID {
		return false, err
	}
	lease := Lease{AcquiredAt: payload.AcquiredAt, TTL: payload.TTL}
	if lease.Expired(time.Now()) {
		return false, nil
	}

	payload.TTL += additionalTTL
	remaining := lease.Remaining(time.Now()) + additionalTTL
	if err := m.save(ctx, resource, payload, remaining); err != nil {
		return false, err
	}
	return true, nil
}

func (m *KVLockManager) IsHeld(ctx context.Context, resource string) (bool, error) {
	payload, ok, err := m.load(ctx, resource)
	if err != nil || !ok {
		return false, err
	}
	return !(Lease{AcquiredAt: payload.AcquiredAt, TTL: payload.TTL}).Expired(time.Now()), nil
}

func (m *KVLockManager) ForceRelease(ctx context.Context, resource string) error {
	_, err := m.store.Delete(ctx, keyFor(resource))
	if err != nil {
		return wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.ForceRelease", err)
	}
	return nil
}

func (m *KVLockManager) GetLockInfo(ctx context.Context, resource string) (Info, bool, error) {
	payload, ok, err := m.load(ctx, resource)
	if err != nil || !ok {
		return Info{}, false, err
	}
	lease := Lease{Resource: resource, LeaseID: payload.LeaseID, AcquiredAt: payload.AcquiredAt, TTL: payload.TTL}
	now := time.Now()
	return Info{
		Resource: resource, LeaseID: lease.LeaseID, AcquiredAt: lease.AcquiredAt,
		TTL: lease.TTL, Remaining: lease.Remaining(now), Expired: lease.Expired(now),
	}, true, nil
}

// GetAllLocks is not supported by the KV backend without a dedicated
// index of resource names (the KV Store contract has no "all keys"
// operation, only prefix Scan, and lock keys are not namespaced under a
// common prefix the caller controls). Returns an empty slice; callers
// needing fleet-wide introspection should use FileLockManager or
// EtcdLockManager.
func (m *KVLockManager) GetAllLocks(_ context.Context) ([]Info, error) {
	return nil, nil
}

func (m *KVLockManager) HealthCheck(ctx context.Context) Health {
	testResource := "health_check_test"
	lease, err := m.Acquire(ctx, testResource, 5*time.Second, 100*time.Millisecond)
	testPassed := err == nil
	if testPassed {
		_, _ = m.Release(ctx, testResource, lease.LeaseID)
	}
	status := "healthy"
	if !testPassed {
		status = "error"
	}
	return Health{Status: status, TestPassed: testPassed}
}

// Close is a no-op; the underlying Store's lifecycle is owned by its
// constructor.
func (m *KVLockManager) Close() error { return nil }
