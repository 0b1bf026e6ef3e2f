package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Event is implemented by every payload published on the Bus.
type Event interface {
	EventName() string
}

// Handler consumes one event. Handlers run on the subscriber's own goroutine,
// never on the publisher's.
type Handler func(Event)

type subscriber struct {
	name    string
	ch      chan Event
	done    chan struct{}
	handler Handler
}

// Bus is an in-process publish/subscribe dispatcher with typed topics.
// Subscriptions are registered at startup; Publish never blocks on a slow
// consumer - when a subscriber's buffer is full the event is dropped with a
// warning instead.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]*subscriber
	bufSize int
	closed  bool
}

func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{
		subs:    make(map[string][]*subscriber),
		bufSize: bufSize,
	}
}

// Subscribe registers a handler for the given event name. The name argument
// is the consumer's identity, used only for logging.
func (b *Bus) Subscribe(eventName, name string, h Handler) {
	sub := &subscriber{
		name:    name,
		ch:      make(chan Event, b.bufSize),
		done:    make(chan struct{}),
		handler: h,
	}

	go func() {
		for ev := range sub.ch {
			sub.handler(ev)
		}
		close(sub.done)
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], sub)
}

// Publish delivers the event to every subscriber of its name.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs[ev.EventName()] {
		select {
		case sub.ch <- ev:
		default:
			log.Warn().
				Str("event", ev.EventName()).
				Str("subscriber", sub.name).
				Msg("Event dropped: subscriber buffer full")
		}
	}
}

// Close stops delivery and waits for subscribers to drain their buffers.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*subscriber
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.mu.Unlock()

	for _, sub := range all {
		close(sub.ch)
		<-sub.done
	}
}
