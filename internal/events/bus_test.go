package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop(), 10)

	var mu sync.Mutex
	var received []Event
	bus.SubscribeFunc(SettlementCompleted, func(ctx context.Context, e Event) error {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		return nil
	})

	require.NoError(t, bus.Publish(&SettlementCompletedEvent{
		BaseEvent:  BaseEvent{EventType: SettlementCompleted, EventTime: time.Now()},
		MessageKey: "21/emitter/1",
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	completed, ok := received[0].(*SettlementCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "21/emitter/1", completed.MessageKey)
}

func TestSubscribersAreTypeScoped(t *testing.T) {
	bus := NewBus(zap.NewNop(), 10)

	var mu sync.Mutex
	var count int
	bus.SubscribeFunc(PoolCreated, func(ctx context.Context, e Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	require.NoError(t, bus.Publish(&PoolStatusEvent{
		BaseEvent: BaseEvent{EventType: PoolPaused, EventTime: time.Now()},
	}))
	require.NoError(t, bus.Publish(&PoolCreatedEvent{
		BaseEvent: BaseEvent{EventType: PoolCreated, EventTime: time.Now()},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zap.NewNop(), 10)

	var mu sync.Mutex
	var count int
	sub := bus.SubscribeFunc(PoolCreated, func(ctx context.Context, e Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	sub.Unsubscribe()

	event := &PoolCreatedEvent{BaseEvent: BaseEvent{EventType: PoolCreated, EventTime: time.Now()}}
	require.NoError(t, bus.PublishSync(context.Background(), event))

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestPublishAfterShutdownFails(t *testing.T) {
	bus := NewBus(zap.NewNop(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	err := bus.Publish(&PoolCreatedEvent{BaseEvent: BaseEvent{EventType: PoolCreated}})
	assert.Error(t, err)
}
