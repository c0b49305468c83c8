package events

import (
	"log/slog"
	"sync"
)

// Handler обработчик события
type Handler func(Event)

type subscription struct {
	handler Handler
	types   map[Type]bool // пусто: все события
}

func (s subscription) matches(t Type) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus delivers events to subscribers one at a time in publish order.
// An event published from inside a handler (or concurrently from another
// goroutine) is queued and delivered after the current one completes.
type Bus struct {
	logger     *slog.Logger
	subs       map[uint64]subscription
	queue      []Event
	nextID     uint64
	mu         sync.Mutex
	delivering bool
}

// NewBus создает шину событий
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[uint64]subscription),
	}
}

// Subscribe registers fn for the given event types (all types when none are
// given) and returns a function that cancels the subscription.
func (b *Bus) Subscribe(fn Handler, types ...Type) func() {
	sub := subscription{handler: fn}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish queues the event and, unless a delivery is already running,
// drains the queue on the calling goroutine.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	if b.delivering {
		b.mu.Unlock()
		return
	}
	b.delivering = true
	b.mu.Unlock()

	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.delivering = false
			b.mu.Unlock()
			return
		}
		next := b.queue[0]
		b.queue = b.queue[1:]
		handlers := b.handlersFor(next.Type())
		b.mu.Unlock()

		for _, h := range handlers {
			b.dispatch(h, next)
		}
	}
}

// handlersFor вызывается под мьютексом
func (b *Bus) handlersFor(t Type) []Handler {
	var handlers []Handler
	for _, sub := range b.subs {
		if sub.matches(t) {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers
}

// dispatch вызывает обработчик; паника одного подписчика не останавливает доставку
func (b *Bus) dispatch(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked", "event", e.Type(), "panic", r)
		}
	}()
	h(e)
}
