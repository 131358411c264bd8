// Package events is the session event bus: a per-session publish/subscribe
// mechanism decoupling the call wrapper from its observers.
//
// Delivery is synchronous, in subscription order, and best effort: a
// panicking observer is logged and skipped, it never reaches the emitter.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Handler receives one event.
type Handler func(Event)

// Observer is the interface form of Handler for types that route by Event.Name.
type Observer interface {
	HandleEvent(Event)
}

type subscription struct {
	id int
	// name filters delivery; empty means all events.
	name Name
	h    Handler
}

// Bus is safe for concurrent use. Handlers run on the emitting goroutine
// and must not block.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription

	log   *slog.Logger
	clock func() time.Time
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, clock: time.Now}
}

// Subscribe registers h for one event name. The returned func unsubscribes
// and is safe to call more than once.
func (b *Bus) Subscribe(name Name, h Handler) (unsubscribe func()) {
	return b.add(name, h)
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) (unsubscribe func()) {
	return b.add("", h)
}

// Attach subscribes an Observer to every event.
func (b *Bus) Attach(o Observer) (unsubscribe func()) {
	return b.add("", o.HandleEvent)
}

func (b *Bus) add(name Name, h Handler) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers an event to every matching subscriber.
func (b *Bus) Emit(name Name, payload any) {
	ev := Event{Name: name, Payload: payload, At: b.clock()}

	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if s.name != "" && s.name != name {
			continue
		}
		b.deliver(s, ev)
	}
}

// EmitError is Emit(Error, ...) with the payload filled from err.
func (b *Bus) EmitError(t ErrorType, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	b.Emit(Error, ErrorPayload{Type: t, Message: msg, Err: err})
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event observer panicked", "event", string(ev.Name), "subscription", s.id, "panic", r)
		}
	}()
	s.h(ev)
}

// Len reports the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Reset drops every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}
