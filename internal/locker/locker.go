// Package locker provides the distributed lock and seen-set capabilities,
// with a Redis backend for multi-process deployments and an in-memory
// backend for single-process and degraded operation.
package locker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lease is a held lock. Release is a no-op after the TTL has expired or when
// another holder has since taken the key.
type Lease struct {
	key     string
	token   string
	release func(ctx context.Context, key, token string)
}

// Release gives the lock back if this lease still holds it.
func (l *Lease) Release(ctx context.Context) {
	if l != nil && l.release != nil {
		l.release(ctx, l.key, l.token)
	}
}

// Locker is a set-if-not-exists mutual exclusion primitive.
type Locker interface {
	// TryAcquire attempts to take key for ttl. acquired=false with nil error
	// means another holder exists. A non-nil error means the backend is
	// unavailable; callers decide whether to degrade to lock-free operation.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease *Lease, acquired bool, err error)
}

// SeenSet is a TTL'd membership set for short-term dedup.
type SeenSet interface {
	Seen(ctx context.Context, set, member string) (bool, error)
	Mark(ctx context.Context, set, member string, ttl time.Duration) error
}

// Stash holds short-lived one-shot values, such as pending OAuth state.
type Stash interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Take returns and deletes the value; ok=false when absent or expired.
	Take(ctx context.Context, key string) (value string, ok bool, err error)
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

type stashEntry struct {
	value     string
	expiresAt time.Time
}

// Memory implements Locker, SeenSet, and Stash in-process. It is the
// degraded mode: correct within one process, no cross-process exclusion.
type Memory struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
	seen  map[string]time.Time
	stash map[string]stashEntry
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		locks: make(map[string]memoryEntry),
		seen:  make(map[string]time.Time),
		stash: make(map[string]stashEntry),
		now:   time.Now,
	}
}

func (m *Memory) TryAcquire(_ context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.locks[key]; ok && e.expiresAt.After(now) {
		return nil, false, nil
	}
	token := uuid.NewString()
	m.locks[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return &Lease{key: key, token: token, release: m.releaseLock}, true, nil
}

func (m *Memory) releaseLock(_ context.Context, key, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.locks[key]; ok && e.token == token {
		delete(m.locks, key)
	}
}

func (m *Memory) Seen(_ context.Context, set, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.seen[set+":"+member]
	if !ok {
		return false, nil
	}
	if exp.Before(m.now()) {
		delete(m.seen, set+":"+member)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Mark(_ context.Context, set, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[set+":"+member] = m.now().Add(ttl)
	return nil
}

func (m *Memory) Put(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stash[key] = stashEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Take(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.stash[key]
	delete(m.stash, key)
	if !ok || e.expiresAt.Before(m.now()) {
		return "", false, nil
	}
	return e.value, true, nil
}
