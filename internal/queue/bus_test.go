package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var received []string

	bus.Subscribe("events", func(_ context.Context, message any) {
		mu.Lock()
		received = append(received, "first:"+message.(string))
		mu.Unlock()
	})
	bus.Subscribe("events", func(_ context.Context, message any) {
		mu.Lock()
		received = append(received, "second:"+message.(string))
		mu.Unlock()
	})

	bus.Publish(context.Background(), "events", "hello")
	bus.Drain()

	assert.ElementsMatch(t, []string{"first:hello", "second:hello"}, received)
}

func TestBusIgnoresUnknownTopics(t *testing.T) {
	bus := NewBus()
	bus.Publish(context.Background(), "nobody-listens", "hello")
	bus.Drain()
}

func TestBusRecoversFromSubscriberPanic(t *testing.T) {
	bus := NewBus()
	delivered := make(chan struct{})

	bus.Subscribe("events", func(_ context.Context, _ any) {
		panic("subscriber bug")
	})
	bus.Subscribe("events", func(_ context.Context, _ any) {
		close(delivered)
	})

	bus.Publish(context.Background(), "events", "hello")
	bus.Drain()

	select {
	case <-delivered:
	default:
		t.Fatal("panicking subscriber must not block the others")
	}
}
