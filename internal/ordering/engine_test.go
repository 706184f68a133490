package ordering

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entryKey struct{ queue, user uuid.UUID }

// memGateway держит всё под одним мьютексом, поэтому AppendNext атомарен.
type memGateway struct {
	mu      sync.Mutex
	next    map[uuid.UUID]int64
	entries map[entryKey]Entry
}

func newMemGateway(queues ...uuid.UUID) *memGateway {
	g := &memGateway{next: map[uuid.UUID]int64{}, entries: map[entryKey]Entry{}}
	for _, q := range queues {
		g.next[q] = 0
	}
	return g
}

func (g *memGateway) AppendNext(_ context.Context, queueID, userID uuid.UUID, joinedAt time.Time) (Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	next, ok := g.next[queueID]
	if !ok {
		return Entry{}, ErrQueueNotFound
	}
	if _, dup := g.entries[entryKey{queueID, userID}]; dup {
		return Entry{}, ErrAlreadyMember
	}
	var current []Entry
	for k, e := range g.entries {
		if k.queue == queueID {
			current = append(current, e)
		}
	}
	rank := ComputeJoinRank(current)
	if next > rank {
		rank = next
	}
	e := Entry{QueueID: queueID, UserID: userID, Rank: rank, JoinedAt: joinedAt}
	g.entries[entryKey{queueID, userID}] = e
	g.next[queueID] = rank + 1
	return e, nil
}

func (g *memGateway) DeleteEntry(_ context.Context, queueID, userID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entries[entryKey{queueID, userID}]; !ok {
		return ErrNotMember
	}
	delete(g.entries, entryKey{queueID, userID})
	return nil
}

func (g *memGateway) ListEntries(_ context.Context, queueID uuid.UUID) ([]Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.next[queueID]; !ok {
		return nil, ErrQueueNotFound
	}
	var out []Entry
	for k, e := range g.entries {
		if k.queue == queueID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *memGateway) QueueExists(_ context.Context, queueID uuid.UUID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.next[queueID]
	return ok, nil
}

func (g *memGateway) hold(queueID, userID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.entries[entryKey{queueID, userID}]
	e.IsHeld = true
	g.entries[entryKey{queueID, userID}] = e
}

func users(entries []Entry) []uuid.UUID {
	out := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		out[i] = e.UserID
	}
	return out
}

func TestEngineScenario(t *testing.T) {
	ctx := context.Background()
	q := uuid.New()
	u1, u2 := uuid.New(), uuid.New()
	gw := newMemGateway(q)
	eng := NewEngine(gw)

	e1, err := eng.Join(ctx, q, u1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), e1.Rank)
	assert.False(t, e1.IsHeld)
	assert.False(t, e1.HasPriority)

	e2, err := eng.Join(ctx, q, u2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e2.Rank)

	list, err := eng.ListOrdered(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u1, u2}, users(list))

	gw.hold(q, u2)
	list, err = eng.ListOrdered(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u2, u1}, users(list))

	require.NoError(t, eng.Leave(ctx, q, u1))
	list, err = eng.ListOrdered(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u2}, users(list))

	again, err := eng.Join(ctx, q, u1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Rank)

	list, err = eng.ListOrdered(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u2, u1}, users(list))
	assert.Equal(t, int64(2), list[1].Rank)
}

func TestEngineErrors(t *testing.T) {
	ctx := context.Background()
	q := uuid.New()
	u := uuid.New()
	eng := NewEngine(newMemGateway(q))

	_, err := eng.Join(ctx, uuid.New(), u)
	assert.ErrorIs(t, err, ErrQueueNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = eng.ListOrdered(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrQueueNotFound)

	_, err = eng.Join(ctx, q, u)
	require.NoError(t, err)
	_, err = eng.Join(ctx, q, u)
	assert.ErrorIs(t, err, ErrAlreadyMember)
	assert.ErrorIs(t, err, ErrConflict)
	assert.False(t, Retryable(err))

	list, err := eng.ListOrdered(ctx, q)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, eng.Leave(ctx, q, u))
	err = eng.Leave(ctx, q, u)
	assert.ErrorIs(t, err, ErrNotMember)
	list, err = eng.ListOrdered(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngineSerializedJoinsIncrease(t *testing.T) {
	ctx := context.Background()
	q := uuid.New()
	eng := NewEngine(newMemGateway(q))

	last := int64(-1)
	for i := 0; i < 50; i++ {
		u := uuid.New()
		e, err := eng.Join(ctx, q, u)
		require.NoError(t, err)
		assert.Greater(t, e.Rank, last)
		last = e.Rank
		// уход последнего не должен возвращать его ранг следующему
		if i%7 == 3 {
			require.NoError(t, eng.Leave(ctx, q, u))
		}
	}
}

// staleGateway подтверждает существование очереди, хотя её уже удалили.
type staleGateway struct{ *memGateway }

func (staleGateway) QueueExists(context.Context, uuid.UUID) (bool, error) { return true, nil }

func TestEngineListDeletedQueue(t *testing.T) {
	ctx := context.Background()
	q := uuid.New()
	gw := newMemGateway(q)
	eng := NewEngine(staleGateway{gw})

	_, err := eng.Join(ctx, q, uuid.New())
	require.NoError(t, err)

	gw.mu.Lock()
	delete(gw.next, q)
	for k := range gw.entries {
		if k.queue == q {
			delete(gw.entries, k)
		}
	}
	gw.mu.Unlock()

	list, err := eng.ListOrdered(ctx, q)
	assert.ErrorIs(t, err, ErrQueueNotFound)
	assert.Nil(t, list)
}

type brokenGateway struct{ *memGateway }

func (brokenGateway) ListEntries(context.Context, uuid.UUID) ([]Entry, error) {
	return nil, Unavailable(errors.New("connection refused"), "list entries")
}

func TestEngineStorageUnavailable(t *testing.T) {
	q := uuid.New()
	gw := brokenGateway{newMemGateway(q)}
	eng := NewEngine(gw)

	_, err := eng.ListOrdered(context.Background(), q)
	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEngineClock(t *testing.T) {
	q := uuid.New()
	at := time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)
	eng := NewEngine(newMemGateway(q), WithClock(func() time.Time { return at }))

	e, err := eng.Join(context.Background(), q, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, at, e.JoinedAt)
}
