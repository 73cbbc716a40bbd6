package redis

import (
	"context"
	"fmt"
	"time"

	"grouping-backfill/internal/domain"

	"github.com/google/uuid"
)

// Locker serializes invocations per project. Two chains can target the same
// project at once (a running cohort walk plus a manual trigger); the lock
// keeps their invocations from interleaving mid-batch.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	client RedisClient
}

func NewLocker(client RedisClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// ProjectLockKey is the lock key guarding one project's invocations.
func ProjectLockKey(projectID int64) string {
	return fmt.Sprintf("backfill:lock:project:%d", projectID)
}

// TryLock attempts to take the lock a few times, then gives up with
// domain.ErrLockHeld. The ttl bounds how long a crashed holder can wedge the
// key.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	for i := 0; i < 5; i++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl)
		if err != nil {
			continue
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return "", domain.ErrLockHeld
}

var luaUnlock = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// Unlock releases the lock only if token still owns it.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.client.Eval(ctx, luaUnlock, []string{key}, token)
	return err
}
