package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"automag/internal/domain"
	"automag/internal/infra/metrics"
)

// RedisPublisher складывает события о материалах в Redis list.
type RedisPublisher struct {
	client *redis.Client
	key    string
}

var _ domain.EventPublisher = (*RedisPublisher)(nil)

// NewRedisPublisher создаёт публикатор по указанному ключу.
func NewRedisPublisher(client *redis.Client, key string) *RedisPublisher {
	return &RedisPublisher{client: client, key: key}
}

// Publish добавляет событие в голову списка.
func (q *RedisPublisher) Publish(ctx context.Context, event domain.MaterialEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Pop блокирующе читает самое старое событие. Используется потребителями и в тестах.
func (q *RedisPublisher) Pop(ctx context.Context) (domain.MaterialEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.MaterialEvent{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.MaterialEvent{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.MaterialEvent{}, err
		}
		if len(res) != 2 {
			return domain.MaterialEvent{}, errors.New("redis queue: unexpected response")
		}
		var event domain.MaterialEvent
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			return domain.MaterialEvent{}, fmt.Errorf("decode event: %w", err)
		}
		return event, nil
	}
}
