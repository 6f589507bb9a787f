// Package redis provides the per-tenant scan lock on top of a Redis lease.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultLeaseTTL = 2 * time.Minute

// Unlock only deletes the key when the holder token still matches, so an
// expired lease cannot release a lock another scan re-acquired.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// ScanLock serializes scan runs per tenant across processes. Acquire is
// non-blocking; a held lock means another scan is in flight and the caller
// should skip.
type ScanLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// ScanLockOption customizes the lock.
type ScanLockOption func(*ScanLock)

// WithLeaseTTL overrides the lease duration.
func WithLeaseTTL(ttl time.Duration) ScanLockOption {
	return func(l *ScanLock) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// NewScanLock constructs a lock.
func NewScanLock(client *redis.Client, logger *zap.Logger, opts ...ScanLockOption) (*ScanLock, error) {
	if client == nil {
		return nil, errors.New("scan lock: nil redis client")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	lock := &ScanLock{
		client: client,
		ttl:    defaultLeaseTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(lock)
	}
	return lock, nil
}

// Acquire takes the tenant lease. When ok is true the caller must invoke the
// returned release func once the scan finishes.
func (l *ScanLock) Acquire(ctx context.Context, tenantID string) (func(), bool, error) {
	if l == nil || l.client == nil {
		return nil, false, errors.New("scan lock: nil client")
	}
	if tenantID == "" {
		return nil, false, errors.New("scan lock: empty tenant id")
	}

	key := "scanlock:" + tenantID
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Release with a detached context so scan cancellation does not
		// leave the lease to expire on its own.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(releaseCtx, unlockScript, []string{key}, token).Err(); err != nil {
			l.logger.Warn("scan lock release failed",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
		}
	}
	return release, true, nil
}
