package realtime

import (
	"sync"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
)

// Consumer receives every envelope dispatched on a Bus and decides relevance
// by envelope type or correlation id.
type Consumer interface {
	ConsumeEnvelope(models.Envelope)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(models.Envelope)

// ConsumeEnvelope implements Consumer.
func (f ConsumerFunc) ConsumeEnvelope(env models.Envelope) { f(env) }

type busEntry struct {
	id int
	c  Consumer
}

// Bus broadcasts envelopes to registered consumers in registration order.
type Bus struct {
	mu        sync.RWMutex
	consumers []busEntry
	next      int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers c. The returned function removes it and is safe to call twice.
func (b *Bus) Subscribe(c Consumer) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.consumers = append(b.consumers, busEntry{id: id, c: c})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.consumers {
			if e.id == id {
				b.consumers = append(b.consumers[:i:i], b.consumers[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers env to every consumer. Consumers run on the caller's goroutine.
func (b *Bus) Dispatch(env models.Envelope) {
	b.mu.RLock()
	consumers := make([]Consumer, len(b.consumers))
	for i, e := range b.consumers {
		consumers[i] = e.c
	}
	b.mu.RUnlock()

	for _, c := range consumers {
		c.ConsumeEnvelope(env)
	}
}

// Len returns the number of registered consumers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.consumers)
}
