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
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/kadirpekel/wikiforge/pkg/wfkind"
)

// EtcdLockManager is a genuinely distributed Manager backed by etcd's
// concurrency.Mutex/Session primitives — completing, for this domain,
// what the config provider layer this project started from left
// unimplemented for remote coordination backends. Use it when
// store.backend = external and the Engine runs as multiple independent
// processes that must not both advance the same workflow (§5, scheduling
// model 1: parallel workers).
type EtcdLockManager struct {
	client *clientv3.Client

	mu       sync.Mutex
	sessions map[string]*heldSession
}

type heldSession struct {
	leaseID string
	session *concurrency.Session
	mutex   *concurrency.Mutex
	ttl     time.Duration
	started time.Time
}

// NewEtcdLockManager dials endpoints and returns a ready EtcdLockManager.
func NewEtcdLockManager(endpoints []string, dialTimeout time.Duration) (*EtcdLockManager, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.NewEtcdLockManager", err)
	}
	return &EtcdLockManager{client: client, sessions: make(map[string]*heldSession)}, nil
}

func (m *EtcdLockManager) Acquire(ctx context.Context, resource string, ttl, timeout time.Duration) (Lease, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	session, err := concurrency.NewSession(m.client, concurrency.WithTTL(int(ttl.Seconds())))
	if err != nil {
		return Lease{}, wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.Acquire", err)
	}

	mu := concurrency.NewMutex(session, "/wikiforge/locks/"+resource)
	if err := mu.TryLock(ctx); err != nil {
		session.Close()
		if err == concurrency.ErrLocked || ctx.Err() != nil {
			return Lease{}, wfkind.Wrap(wfkind.KindLockTimeout, "lock.Acquire", err)
		}
		return Lease{}, wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.Acquire", err)
	}

	leaseID := uuid.NewString()
	m.mu.Lock()
	m.sessions[resource] = &heldSession{
		leaseID: leaseID,
		session: session,
		mutex:   mu,
		ttl:     ttl,
		started: time.Now(),
	}
	m.mu.Unlock()

	return Lease{Resource: resource, LeaseID: leaseID, AcquiredAt: time.Now(), TTL: ttl}, nil
}

func (m *EtcdLockManager) Release(ctx context.Context, resource, leaseID string) (bool, error) {
	m.mu.Lock()
	held, ok := m.sessions[resource]
	if ok && held.leaseID == leaseID {
		delete(m.sessions, resource)
	}
	m.mu.Unlock()

	if !ok || held.leaseID != leaseID {
		return false, nil
	}

	if err := held.mutex.Unlock(ctx); err != nil {
		held.session.Close()
		return false, wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.Release", err)
	}
	held.session.Close()
	return true, nil
}

// Extend refreshes the underlying etcd session's lease via keep-alive,
// which the concurrency.Session already runs in the background; this
// call only validates ownership and accounting, since etcd sessions
// renew on a fixed TTL rather than an additive one.
func (m *EtcdLockManager) Extend(_ context.Context, resource, leaseID string, additionalTTL time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.sessions[resource]
	if !ok || held.leaseID != leaseID {
		return false, nil
	}
	held.ttl += additionalTTL
	return true, nil
}

func (m *EtcdLockManager) IsHeld(ctx context.Context, resource string) (bool, error) {
	resp, err := m.client.Get(ctx, "/wikiforge/locks/"+resource, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return false, wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.IsHeld", err)
	}
	return resp.Count > 0, nil
}

func (m *EtcdLockManager) ForceRelease(ctx context.Context, resource string) error {
	_, err := m.client.Delete(ctx, "/wikiforge/locks/"+resource, clientv3.WithPrefix())
	if err != nil {
		return wfkind.Wrap(wfkind.KindInfrastructureFailure, "lock.ForceRelease", err)
	}
	m.mu.Lock()
	delete(m.sessions, resource)
	m.mu.Unlock()
	return nil
}

func (m *EtcdLockManager) GetLockInfo(ctx context.Context, resource string) (Info, bool, error) {
	m.mu.Lock()
	held, ok := m.sessions[resource]
	m.mu.Unlock()
	if !ok {
		return Info{}, false, nil
	}
	lease := Lease{Resource: resource, LeaseID: held.leaseID, AcquiredAt: held.started, TTL: held.ttl}
	now := time.Now()
	return Info{
		Resource: resource, LeaseID: lease.LeaseID, AcquiredAt: lease.AcquiredAt,
		TTL: lease.TTL, Remaining: lease.Remaining(now), Expired: lease.Expired(now),
	}, true, nil
}

func (m *EtcdLockManager) GetAllLocks(_ context.Context) ([]Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make([]Info, 0, len(m.sessions))
	for resource, held := range m.sessions {
		lease := Lease{Resource: resource, LeaseID: held.leaseID, AcquiredAt: held.started, TTL: held.ttl}
		out = append(out, Info{
			Resource: resource, LeaseID: lease.LeaseID, AcquiredAt: lease.AcquiredAt,
			TTL: lease.TTL, Remaining: lease.Remaining(now), Expired: lease.Expired(now),
		})
	}
	return out, nil
}

func (m *EtcdLockManager) HealthCheck(ctx context.Context) Health {
	status := "healthy"
	testPassed := true
	testResource := "health_check_test"
	lease, err := m.Acquire(ctx, testResource, 5*time.Second, 100*time.Millisecond)
	if err != nil {
		status = "error"
		testPassed = false
	} else {
		_, _ = m.Release(ctx, testResource, lease.LeaseID)
	}

	m.mu.Lock()
	active := len(m.sessions)
	m.mu.Unlock()

	return Health{Status: status, ActiveLocks: active, TestPassed: testPassed}
}

// Close closes every held session and the underlying etcd client.
func (m *EtcdLockManager) Close() error {
	m.mu.Lock()
	for resource, held := range m.sessions {
		held.session.Close()
		delete(m.sessions, resource)
	}
	m.mu.Unlock()
	return m.client.Close()
}
