package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()

	var got []AuthEvent
	unsubscribe := bus.Subscribe(func(ev AuthEvent) { got = append(got, ev) })

	require.NoError(t, bus.Publish(context.Background(), AuthEvent{Type: EventSignedIn, UserID: "u-1"}))
	unsubscribe()
	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), AuthEvent{Type: EventSignedOut, UserID: "u-1"}))

	require.Len(t, got, 1)
	assert.Equal(t, EventSignedIn, got[0].Type)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	var a, b int
	bus.Subscribe(func(AuthEvent) { a++ })
	bus.Subscribe(func(AuthEvent) { b++ })

	_ = bus.Publish(context.Background(), AuthEvent{Type: EventUserUpdated})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	require.NoError(t, bus.Close())
	assert.Equal(t, 0, bus.Subscribers())
}

func TestRedisBus_DeliversAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { clientA.Close(); clientB.Close() })

	busA, err := NewRedisBus(ctx, clientA, "hub:auth-events")
	require.NoError(t, err)
	busB, err := NewRedisBus(ctx, clientB, "hub:auth-events")
	require.NoError(t, err)
	t.Cleanup(func() { busA.Close(); busB.Close() })

	var mu sync.Mutex
	received := make(chan AuthEvent, 2)
	busB.Subscribe(func(ev AuthEvent) {
		mu.Lock()
		defer mu.Unlock()
		received <- ev
	})

	require.NoError(t, busA.Publish(ctx, AuthEvent{Type: EventSignedOut, UserID: "u-1", SessionID: "s-1"}))

	select {
	case ev := <-received:
		assert.Equal(t, EventSignedOut, ev.Type)
		assert.Equal(t, "s-1", ev.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered to the second instance")
	}
}

func TestRedisBus_SubscribeFailsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewRedisBus(ctx, client, "hub:auth-events")
	assert.Error(t, err)
}
