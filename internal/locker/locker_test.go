package locker

import (
	"context"
	"testing"
	"time"
)

func TestTryAcquireIsExclusive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	lease, ok, err := m.TryAcquire(ctx, "k", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}

	_, ok, err = m.TryAcquire(ctx, "k", time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire should be refused, got %v, %v", ok, err)
	}

	lease.Release(ctx)
	_, ok, _ = m.TryAcquire(ctx, "k", time.Minute)
	if !ok {
		t.Fatal("acquire after release should succeed")
	}
}

func TestLockExpiresByTTL(t *testing.T) {
	m := NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if _, ok, _ := m.TryAcquire(ctx, "k", time.Minute); !ok {
		t.Fatal("first acquire failed")
	}
	now = now.Add(30 * time.Second)
	if _, ok, _ := m.TryAcquire(ctx, "k", time.Minute); ok {
		t.Fatal("lock should still be held at half TTL")
	}
	now = now.Add(31 * time.Second)
	if _, ok, _ := m.TryAcquire(ctx, "k", time.Minute); !ok {
		t.Fatal("expired lock should be acquirable")
	}
}

func TestStaleReleaseDoesNotFreeNewHolder(t *testing.T) {
	m := NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	old, _, _ := m.TryAcquire(ctx, "k", time.Second)
	now = now.Add(2 * time.Second)
	if _, ok, _ := m.TryAcquire(ctx, "k", time.Minute); !ok {
		t.Fatal("second holder should acquire after expiry")
	}

	// The first lease expired and the key changed hands; its release must
	// not unlock the new holder.
	old.Release(ctx)
	if _, ok, _ := m.TryAcquire(ctx, "k", time.Minute); ok {
		t.Fatal("stale release freed a lock it no longer held")
	}
}

func TestNilLeaseReleaseIsSafe(t *testing.T) {
	var l *Lease
	l.Release(context.Background())
}

func TestSeenSetHonorsTTL(t *testing.T) {
	m := NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	seen, err := m.Seen(ctx, "discovery:u1", "t1")
	if err != nil || seen {
		t.Fatalf("fresh member seen = %v, %v", seen, err)
	}

	if err := m.Mark(ctx, "discovery:u1", "t1", 30*24*time.Hour); err != nil {
		t.Fatal(err)
	}
	if seen, _ = m.Seen(ctx, "discovery:u1", "t1"); !seen {
		t.Fatal("marked member should be seen")
	}

	// Sets are independent per user.
	if seen, _ = m.Seen(ctx, "discovery:u2", "t1"); seen {
		t.Fatal("other user's set should not see the member")
	}

	now = now.Add(31 * 24 * time.Hour)
	if seen, _ = m.Seen(ctx, "discovery:u1", "t1"); seen {
		t.Fatal("member should age out after the TTL")
	}
}

func TestStashTakeIsDestructive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Put(ctx, "pending:s1", "verifier", time.Minute); err != nil {
		t.Fatal(err)
	}
	v, ok, err := m.Take(ctx, "pending:s1")
	if err != nil || !ok || v != "verifier" {
		t.Fatalf("take = %q, %v, %v", v, ok, err)
	}
	if _, ok, _ = m.Take(ctx, "pending:s1"); ok {
		t.Fatal("second take should find nothing")
	}
}

func TestStashExpires(t *testing.T) {
	m := NewMemory()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Put(ctx, "k", "v", 10*time.Minute)
	now = now.Add(11 * time.Minute)
	if _, ok, _ := m.Take(ctx, "k"); ok {
		t.Fatal("expired stash entry should be gone")
	}
}
