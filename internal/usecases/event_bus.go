package usecases

import (
	"log"
	"sync"
	"time"

	"agent-wallet.backend/internal/domain/entities"
)

// Subscriber receives events. Implementations must not block for long; the
// bus runs each delivery in its own goroutine.
type Subscriber interface {
	Name() string
	Handle(event entities.Event)
}

// EventBus fans events out to subscribers. Subscribers are isolated from
// each other and from the pipeline: a panicking subscriber is logged and
// dropped for that event, nothing else.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	wg          sync.WaitGroup
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a subscriber.
func (b *EventBus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// Publish delivers the event to every subscriber asynchronously.
func (b *EventBus) Publish(event entities.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.wg.Add(1)
		go func(s Subscriber) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("❌ Event subscriber %s panicked on %s: %v", s.Name(), event.Type, r)
				}
			}()
			s.Handle(event)
		}(sub)
	}
}

// Wait blocks until all in-flight deliveries finish. Used on shutdown and
// in tests.
func (b *EventBus) Wait() {
	b.wg.Wait()
}

// LogSubscriber writes events to the process log. It is the default
// notification sink; operators watching NOTIFY-tier activity tail it.
type LogSubscriber struct{}

func (LogSubscriber) Name() string { return "log" }

func (LogSubscriber) Handle(event entities.Event) {
	if event.Reason != "" {
		log.Printf("🔔 %s wallet=%s tx=%s: %s", event.Type, event.WalletID, event.TransactionID, event.Reason)
		return
	}
	log.Printf("🔔 %s wallet=%s tx=%s", event.Type, event.WalletID, event.TransactionID)
}
