package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"automag/internal/infra/metrics"
)

// RedisLedger хранит обработанные URL в множестве Redis.
type RedisLedger struct {
	client *redis.Client
	key    string
}

// NewRedis создаёт журнал по ключу key.
func NewRedis(client *redis.Client, key string) *RedisLedger {
	return &RedisLedger{client: client, key: key}
}

// Load читает множество целиком. Отсутствующий ключ означает пустой журнал.
func (l *RedisLedger) Load(ctx context.Context) (map[string]struct{}, error) {
	start := time.Now()
	members, err := l.client.SMembers(ctx, l.key).Result()
	metrics.ObserveNetworkRequest("redis", "smembers", l.key, start, err)
	if err != nil {
		return nil, fmt.Errorf("ledger: smembers: %w", err)
	}
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set, nil
}

// List возвращает URL в лексикографическом порядке: множество Redis порядок вставки не хранит.
func (l *RedisLedger) List(ctx context.Context) ([]string, error) {
	set, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// Record добавляет URL во множество.
func (l *RedisLedger) Record(ctx context.Context, url string) error {
	if err := validate(url); err != nil {
		return err
	}
	start := time.Now()
	err := l.client.SAdd(ctx, l.key, url).Err()
	metrics.ObserveNetworkRequest("redis", "sadd", l.key, start, err)
	if err != nil {
		return fmt.Errorf("ledger: sadd: %w", err)
	}
	return nil
}
