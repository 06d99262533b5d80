// Package event
package event

import (
	"reflect"
	"sync"

	"cpumon/internal/logger"
)

type Handler func(event any)

// Bus dispatches events to the handlers subscribed to their concrete type.
// Handlers run synchronously on the publishing goroutine; a panicking handler
// is logged and does not affect the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]Handler
	log      logger.Logger
}

func New(log logger.Logger) *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]Handler),
		log:      log,
	}
}

func (b *Bus) Subscribe(event any, handler Handler) {
	t := reflect.TypeOf(event)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[t] = append(b.handlers[t], handler)
}

func (b *Bus) Publish(event any) {
	t := reflect.TypeOf(event)

	b.mu.RLock()
	handlers := b.handlers[t]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Warn(
						"event handler panic",
						"event", t.String(),
						"panic", r,
					)
				}
			}()
			h(event)
		}()
	}
}
