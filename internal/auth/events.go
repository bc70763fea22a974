// Package auth - events.go defines auth-state change events and the bus they travel on.
// MemoryBus serves a single instance; RedisBus fans events out across instances over a
// redis pub/sub channel so that a sign-out on one node re-resolves sessions on all nodes.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/community-hub/backend/internal/safego"
)

// AuthEventType names an auth-state transition
type AuthEventType string

const (
	EventSignedIn       AuthEventType = "SIGNED_IN"
	EventSignedOut      AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventType = "USER_UPDATED"
)

// AuthEvent is one auth-state transition. SessionID is empty for USER_UPDATED, which
// concerns every session of the user.
type AuthEvent struct {
	Type      AuthEventType `json:"type"`
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id,omitempty"`
	At        time.Time     `json:"at"`
}

// EventBus delivers auth events to subscribers. Handlers are called on the publishing
// or receiving goroutine and must not block.
type EventBus interface {
	Publish(ctx context.Context, ev AuthEvent) error
	Subscribe(fn func(AuthEvent)) (unsubscribe func())
	Close() error
}

// MemoryBus is an in-process EventBus
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[uint64]func(AuthEvent)
	nextID   uint64
}

// NewMemoryBus creates an empty in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[uint64]func(AuthEvent))}
}

// Publish delivers ev to every current subscriber
func (b *MemoryBus) Publish(_ context.Context, ev AuthEvent) error {
	b.dispatch(ev)
	return nil
}

func (b *MemoryBus) dispatch(ev AuthEvent) {
	b.mu.RLock()
	handlers := make([]func(AuthEvent), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribe registers fn and returns a func that removes it. Calling the returned
// func more than once is harmless.
func (b *MemoryBus) Subscribe(fn func(AuthEvent)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Subscribers returns the number of registered handlers
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Close drops all subscribers
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.handlers = make(map[uint64]func(AuthEvent))
	b.mu.Unlock()
	return nil
}

// RedisBus publishes events on a redis channel and dispatches everything received on
// that channel, including its own publications, to local subscribers.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	pubsub  *redis.PubSub
	local   *MemoryBus
	done    chan struct{}
}

// NewRedisBus subscribes to channel and starts the receive loop
func NewRedisBus(ctx context.Context, client redis.UniversalClient, channel string) (*RedisBus, error) {
	ps := client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	b := &RedisBus{
		client:  client,
		channel: channel,
		pubsub:  ps,
		local:   NewMemoryBus(),
		done:    make(chan struct{}),
	}
	safego.Go(b.receive)
	return b, nil
}

func (b *RedisBus) receive() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		var ev AuthEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			slog.Warn("auth event bus: dropping malformed event", "error", err)
			continue
		}
		b.local.dispatch(ev)
	}
}

// Publish sends ev to every instance subscribed to the channel
func (b *RedisBus) Publish(ctx context.Context, ev AuthEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode auth event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish auth event: %w", err)
	}
	return nil
}

// Subscribe registers fn for events received from the channel
func (b *RedisBus) Subscribe(fn func(AuthEvent)) func() {
	return b.local.Subscribe(fn)
}

// Close unsubscribes from redis and waits for the receive loop to exit
func (b *RedisBus) Close() error {
	err := b.pubsub.Close()
	<-b.done
	b.local.Close()
	return err
}
