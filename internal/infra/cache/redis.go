package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"automag/internal/domain"
)

// Удаляем ключ, только если он всё ещё принадлежит нам.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock реализует domain.CycleLock через SETNX с TTL.
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

var _ domain.CycleLock = (*RedisLock)(nil)

// NewRedisLock создаёт блокировку. owner отличает экземпляры друг от друга.
func NewRedisLock(client *redis.Client, key, owner string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 25 * time.Minute
	}
	return &RedisLock{client: client, key: key, owner: owner, ttl: ttl}
}

// TryLock берёт блокировку, если её никто не держит.
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Unlock снимает блокировку, взятую этим экземпляром.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if err := unlockScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis unlock %s: %w", l.key, err)
	}
	return nil
}
