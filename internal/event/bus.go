package event

import (
	"sync"
)

type Type string

const (
	// PaymentUpdated carries the *payment.Payment after its gateway state changed.
	PaymentUpdated Type = "payment.updated"
)

type Event struct {
	Type    Type
	Payload any
}

type HandlerFunc func(Event) error

// Publisher is what producers depend on.
type Publisher interface {
	Publish(evt Event) error
}

// Bus is a synchronous in-process publish/subscribe bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]HandlerFunc
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]HandlerFunc),
	}
}

func (b *Bus) Subscribe(eventType Type, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish runs every handler for evt.Type in subscription order and stops
// at the first error.
func (b *Bus) Publish(evt Event) error {
	b.mu.RLock()
	handlers := b.handlers[evt.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(evt); err != nil {
			return err
		}
	}

	return nil
}
