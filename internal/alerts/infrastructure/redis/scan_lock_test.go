package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func newTestLock(t *testing.T, opts ...ScanLockOption) (*ScanLock, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock, err := NewScanLock(client, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("new scan lock: %v", err)
	}
	return lock, server
}

func TestScanLock_AcquireAndRelease(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	release, ok, err := lock.Acquire(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected lock to be acquired")
	}

	_, second, err := lock.Acquire(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if second {
		t.Fatal("expected held lock to refuse second acquire")
	}

	release()

	_, third, err := lock.Acquire(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("third acquire: %v", err)
	}
	if !third {
		t.Fatal("expected lock to be free after release")
	}
}

func TestScanLock_TenantsAreIndependent(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	if _, ok, err := lock.Acquire(ctx, "tenant-a"); err != nil || !ok {
		t.Fatalf("acquire tenant-a: ok=%v err=%v", ok, err)
	}
	if _, ok, err := lock.Acquire(ctx, "tenant-b"); err != nil || !ok {
		t.Fatalf("acquire tenant-b: ok=%v err=%v", ok, err)
	}
}

func TestScanLock_LeaseExpires(t *testing.T) {
	lock, server := newTestLock(t, WithLeaseTTL(time.Second))
	ctx := context.Background()

	if _, ok, err := lock.Acquire(ctx, "tenant-a"); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	server.FastForward(2 * time.Second)

	_, ok, err := lock.Acquire(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if !ok {
		t.Fatal("expected expired lease to be re-acquirable")
	}
}

func TestScanLock_StaleReleaseKeepsNewLease(t *testing.T) {
	lock, server := newTestLock(t, WithLeaseTTL(time.Second))
	ctx := context.Background()

	staleRelease, ok, err := lock.Acquire(ctx, "tenant-a")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	server.FastForward(2 * time.Second)

	if _, ok, err := lock.Acquire(ctx, "tenant-a"); err != nil || !ok {
		t.Fatalf("re-acquire: ok=%v err=%v", ok, err)
	}

	staleRelease()

	_, ok, err = lock.Acquire(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("acquire after stale release: %v", err)
	}
	if ok {
		t.Fatal("stale release must not free the new holder's lease")
	}
}
