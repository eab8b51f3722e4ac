package provision

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes provisioning runs per clinic so concurrent requests for
// the same tenant cannot each launch an instance.
type Locker interface {
	Acquire(ctx context.Context, clinicID string) (bool, error)
	Release(ctx context.Context, clinicID string)
}

// TenantLocker implements Locker on Redis SETNX with a TTL so a crashed run
// cannot hold the lock forever.
type TenantLocker struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewTenantLocker(client *redis.Client, ttl time.Duration) *TenantLocker {
	return &TenantLocker{
		redis: client,
		ttl:   ttl,
	}
}

func (l *TenantLocker) Acquire(ctx context.Context, clinicID string) (bool, error) {
	return l.redis.SetNX(ctx, lockKey(clinicID), "1", l.ttl).Result()
}

func (l *TenantLocker) Release(ctx context.Context, clinicID string) {
	l.redis.Del(ctx, lockKey(clinicID))
}

func lockKey(clinicID string) string {
	return "provision:lock:" + clinicID
}
