package events

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	UserJoined   = "user_joined"
	UserLeft     = "user_left"
	QueueDeleted = "queue_deleted"
)

// DefaultChannel задаёт канал Redis, через который экземпляры сервиса делятся
// событиями очередей.
const DefaultChannel = "oqueue:queue_events"

// Event получают подписчики очереди по WebSocket.
type Event struct {
	EventType string                 `json:"event_type"`
	QueueID   string                 `json:"queue_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Broadcaster доставляет готовое сообщение подписчикам очереди.
type Broadcaster interface {
	Broadcast(queueID string, message []byte)
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Local раздаёт события подписчикам этого процесса.
type Local struct {
	out Broadcaster
}

func NewLocal(out Broadcaster) *Local {
	return &Local{out: out}
}

func (l *Local) Publish(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	l.out.Broadcast(ev.QueueID, payload)
	return nil
}

// RedisBus публикует события в Redis и раздаёт локальным подписчикам всё,
// что пришло из канала, включая собственные события.
type RedisBus struct {
	client  *redis.Client
	channel string
	out     Broadcaster
	log     *zap.Logger
}

func NewRedisBus(client *redis.Client, channel string, out Broadcaster, log *zap.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel, out: out, log: log.Named("events")}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return errors.Wrap(err, "publish event")
	}
	return nil
}

// Run слушает канал до отмены ctx.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribe")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("skip malformed event", zap.Error(err))
				continue
			}
			b.out.Broadcast(ev.QueueID, []byte(msg.Payload))
		}
	}
}

// Discard ничего не рассылает.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
