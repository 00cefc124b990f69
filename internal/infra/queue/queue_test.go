package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automag/internal/domain"
)

func sampleEvent() domain.MaterialEvent {
	return domain.MaterialEvent{
		EventID:     "evt-1",
		MaterialID:  42,
		Title:       "全球经济放缓",
		Price:       0.4,
		Featured:    true,
		Tags:        []string{"外刊精读"},
		Link:        "https://example.com/a",
		PublishedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRedisPublisherRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	pub := NewRedisPublisher(client, "automag:material_events")
	ctx := context.Background()
	require.NoError(t, pub.Publish(ctx, sampleEvent()))

	second := sampleEvent()
	second.EventID = "evt-2"
	require.NoError(t, pub.Publish(ctx, second))

	got, err := pub.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", got.EventID, "события читаются в порядке публикации")
	assert.Equal(t, int64(42), got.MaterialID)
}

func TestRedisPopStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRedisPublisher(client, "empty").Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeChannel struct {
	declared  string
	durable   bool
	published []amqp.Publishing
	key       string
	err       error
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.declared = name
	c.durable = durable
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.key = key
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestRabbitPublisher(t *testing.T) {
	ch := &fakeChannel{}
	pub, err := newRabbitPublisher(ch, "material_events")
	require.NoError(t, err)
	assert.Equal(t, "material_events", ch.declared)
	assert.True(t, ch.durable)

	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "material_events", ch.key)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "evt-1", msg.MessageId)

	var decoded domain.MaterialEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "全球经济放缓", decoded.Title)

	ch.err = errors.New("channel closed")
	assert.Error(t, pub.Publish(context.Background(), sampleEvent()))
	assert.NoError(t, pub.Close())
}

func TestRabbitPublisherRequiresQueue(t *testing.T) {
	_, err := newRabbitPublisher(&fakeChannel{}, "")
	assert.Error(t, err)
	_, err = NewRabbitPublisher("", "q")
	assert.Error(t, err)
}
