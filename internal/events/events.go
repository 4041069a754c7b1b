// Package events is the in-process pub/sub bus connecting the engine to the
// HTTP server, the websocket feed, and the history recorder. Topics carry
// typed payloads; subscribing with the wrong type is reported to the
// handler's error path instead of panicking.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// HandlerFunc is the untyped handler form stored per subscription.
type HandlerFunc func(context.Context, any) error

// Option configures a Bus.
type Option func(*busConfig)

type busConfig struct {
	bufferSize   int
	syncDelivery bool
	logger       *slog.Logger
}

// WithBufferSize sets the event channel buffer size.
func WithBufferSize(size int) Option {
	return func(cfg *busConfig) {
		if size > 0 {
			cfg.bufferSize = size
		}
	}
}

// WithSyncDelivery delivers events inline on the bus goroutine, preserving
// emission order across handlers. Use it when subscribers record or forward
// events and ordering matters more than handler isolation.
func WithSyncDelivery() Option {
	return func(cfg *busConfig) { cfg.syncDelivery = true }
}

// WithLogger sets the logger for handler errors.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *busConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

type event struct {
	topic   string
	message any
}

// Subscription is a handler bound to a topic. Unsubscribe detaches it.
type Subscription struct {
	Topic       string
	ID          string
	Handler     HandlerFunc
	Unsubscribe func()
}

type subscriberMap map[string]map[string]Subscription

// Bus fans events out to subscribers. Subscriptions use a copy-on-write map
// so the delivery loop reads without locking.
type Bus struct {
	subscribers atomic.Pointer[subscriberMap]
	nextSubID   atomic.Int64

	events   chan event
	shutdown chan struct{}
	config   busConfig

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewBus creates a bus and starts its delivery loop.
func NewBus(opts ...Option) *Bus {
	cfg := busConfig{
		bufferSize: 256,
		logger:     slog.Default().With("component", "events"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Bus{
		events:   make(chan event, cfg.bufferSize),
		shutdown: make(chan struct{}),
		config:   cfg,
	}
	empty := make(subscriberMap)
	b.subscribers.Store(&empty)

	b.wg.Add(1)
	go b.deliveryLoop()
	return b
}

// Emit publishes value on topic. It fails rather than blocking forever when
// the bus is saturated or already shut down.
func Emit[T any](b *Bus, topic string, value T) error {
	evt := event{topic: topic, message: value}
	select {
	case b.events <- evt:
		return nil
	case <-b.shutdown:
		return fmt.Errorf("event bus is shut down")
	case <-time.After(5 * time.Second):
		return fmt.Errorf("emit timed out on topic %s", topic)
	}
}

// Subscribe registers a typed handler on topic.
func Subscribe[T any](b *Bus, topic string, handler func(context.Context, T) error) Subscription {
	wrapped := HandlerFunc(func(ctx context.Context, data any) error {
		typed, ok := data.(T)
		if !ok {
			return fmt.Errorf("topic %s: got %T, want %T", topic, data, *new(T))
		}
		return handler(ctx, typed)
	})

	sub := Subscription{
		Topic:   topic,
		ID:      fmt.Sprintf("%s-%d", topic, b.nextSubID.Add(1)),
		Handler: wrapped,
	}
	b.addSubscription(sub)
	sub.Unsubscribe = func() { b.removeSubscription(sub.ID) }
	return sub
}

// Complete shuts the bus down. Idempotent; waits briefly for the delivery
// loop to drain.
func Complete(b *Bus) {
	if b == nil || !b.closed.CompareAndSwap(false, true) {
		return
	}
	close(b.shutdown)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

func (b *Bus) deliveryLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.shutdown:
			return
		case evt := <-b.events:
			subs := b.subscribers.Load()
			for _, sub := range (*subs)[evt.topic] {
				b.deliver(sub, evt)
			}
		}
	}
}

func (b *Bus) deliver(sub Subscription, evt event) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sub.Handler(ctx, evt.message); err != nil {
			b.config.logger.Debug("event handler error",
				"topic", evt.topic, "subscription", sub.ID, "error", err)
		}
	}
	if b.config.syncDelivery {
		run()
		return
	}
	go run()
}

func (b *Bus) addSubscription(sub Subscription) {
	for {
		old := b.subscribers.Load()
		next := copySubscribers(*old)
		if _, ok := next[sub.Topic]; !ok {
			next[sub.Topic] = make(map[string]Subscription)
		}
		next[sub.Topic][sub.ID] = sub
		if b.subscribers.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (b *Bus) removeSubscription(subID string) {
	for {
		old := b.subscribers.Load()
		next := copySubscribers(*old)
		found := false
		for topic, topicSubs := range next {
			if _, ok := topicSubs[subID]; ok {
				delete(topicSubs, subID)
				if len(topicSubs) == 0 {
					delete(next, topic)
				}
				found = true
				break
			}
		}
		if !found {
			return
		}
		if b.subscribers.CompareAndSwap(old, &next) {
			return
		}
	}
}

func copySubscribers(original subscriberMap) subscriberMap {
	cp := make(subscriberMap, len(original))
	for topic, topicSubs := range original {
		cp[topic] = make(map[string]Subscription, len(topicSubs))
		for id, sub := range topicSubs {
			cp[topic][id] = sub
		}
	}
	return cp
}
