package events

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (r *recorder) Broadcast(queueID string, message []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.msgs == nil {
		r.msgs = map[string][][]byte{}
	}
	r.msgs[queueID] = append(r.msgs[queueID], message)
}

func (r *recorder) count(queueID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs[queueID])
}

func TestLocalPublish(t *testing.T) {
	rec := &recorder{}
	pub := NewLocal(rec)

	err := pub.Publish(context.Background(), Event{
		EventType: UserJoined,
		QueueID:   "q1",
		Data:      map[string]interface{}{"rank": 3},
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.count("q1"))

	var got Event
	require.NoError(t, json.Unmarshal(rec.msgs["q1"][0], &got))
	assert.Equal(t, UserJoined, got.EventType)
	assert.Equal(t, "q1", got.QueueID)
	assert.EqualValues(t, 3, got.Data["rank"])
}

// Нужен живой Redis: REDIS_ADDR=localhost:6379 go test ./...
func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR не задан")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	bus := NewRedisBus(client, DefaultChannel+":test", rec, zap.NewNop())
	go bus.Run(ctx)

	// подписка поднимается асинхронно, поэтому публикуем до получения
	assert.Eventually(t, func() bool {
		_ = bus.Publish(ctx, Event{EventType: UserLeft, QueueID: "q2"})
		return rec.count("q2") > 0
	}, 5*time.Second, 100*time.Millisecond)
}
