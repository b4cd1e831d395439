package queue

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// Bus is the fan-out channel for normalized events. Subscribers run
// concurrently; publication does not wait for delivery.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]func(ctx context.Context, message any)
	wg          sync.WaitGroup
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]func(ctx context.Context, message any))}
}

// Subscribe registers a handler for a topic. Not safe to call after
// publishing has begun on that topic from multiple goroutines; wire
// subscriptions during startup.
func (b *Bus) Subscribe(topic string, handler func(ctx context.Context, message any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish delivers the message to every subscriber on its own goroutine.
func (b *Bus) Publish(ctx context.Context, topic string, message any) {
	b.mu.RLock()
	handlers := b.subscribers[topic]
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.wg.Add(1)
		go func(handler func(ctx context.Context, message any)) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logrus.WithFields(logrus.Fields{
						"topic": topic,
						"panic": r,
					}).Errorf("Event subscriber panicked: %s", debug.Stack())
				}
			}()
			handler(ctx, message)
		}(handler)
	}
}

// Drain waits for all in-flight deliveries to finish.
func (b *Bus) Drain() {
	b.wg.Wait()
}
