package events

import (
	"sync"

	"go.uber.org/zap"
)

// Handler receives one event. A returned error is logged, never propagated:
// the triggering mutation has already committed by the time handlers run.
type Handler func(Event) error

// Bus is the in-process dispatcher. One instance is created at process
// start and injected wherever events are emitted; there is no ambient
// global. Dispatch is synchronous and best-effort per handler.
type Bus struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:   logger.Named("bus"),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Emit dispatches the event to every subscriber of its type. A panicking
// or failing handler is logged and does not stop the fan-out.
func (b *Bus) Emit(evt Event) {
	b.mu.RLock()
	handlers := b.handlers[evt.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(evt, h)
	}
}

func (b *Bus) dispatch(evt Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("type", evt.Type),
				zap.Any("panic", r))
		}
	}()
	if err := h(evt); err != nil {
		b.logger.Error("event handler failed",
			zap.String("type", evt.Type),
			zap.String("entity_id", evt.EntityID),
			zap.Error(err))
	}
}
