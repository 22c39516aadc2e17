package event

import (
	"context"
	"sync"
	"time"

	"menu3d/internal/infra"
)

type Handler func(ctx context.Context, event Event) error

type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())
}

// NewBus creates an in-process event bus. Handlers run synchronously on the
// publisher's goroutine and must not block.
func NewBus(logger infra.Logger) Bus {
	return &inProcessBus{
		subscribers: make(map[EventType][]subscriberEntry),
		logger:      infra.Component(logger, "event_bus"),
	}
}

type subscriberEntry struct {
	id      uint64
	handler Handler
}

type inProcessBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscriberEntry
	nextID      uint64
	logger      infra.Logger
}

func (b *inProcessBus) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscriberEntry, len(b.subscribers[event.Type]))
	copy(subs, b.subscribers[event.Type])
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler(ctx, event); err != nil {
			b.logger.Error().Err(err).
				Str("event", string(event.Type)).
				Msg("event handler error")
		}
	}
	return nil
}

func (b *inProcessBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{
		id:      id,
		handler: handler,
	})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[eventType]
			for i, s := range subs {
				if s.id == id {
					b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// SubscribeJobs registers handler for every job lifecycle event.
func SubscribeJobs(bus Bus, handler Handler) func() {
	unsubs := make([]func(), 0, len(JobEventTypes))
	for _, t := range JobEventTypes {
		unsubs = append(unsubs, bus.Subscribe(t, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// WatchJob delivers a signal each time jobID changes. The channel holds one
// pending signal; bursts collapse into it.
func WatchJob(bus Bus, jobID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	cancel := SubscribeJobs(bus, func(_ context.Context, ev Event) error {
		payload, ok := ev.Payload.(JobEvent)
		if !ok || payload.JobID != jobID {
			return nil
		}
		select {
		case ch <- struct{}{}:
		default:
		}
		return nil
	})
	return ch, cancel
}
