// Package events is a small publish/subscribe channel keyed by event name.
// Handlers run synchronously on the publisher's goroutine, in subscription order.
package events

import "sync"

// Event is a named notification with an arbitrary payload.
type Event struct {
	Name    string
	Payload any
}

// Handler receives published events. Handlers must not block for long;
// Publish waits for every handler to return.
type Handler func(Event)

// Publisher is the narrow surface producers depend on.
type Publisher interface {
	Publish(Event)
}

// Subscriber registers handlers; the returned func removes the handler and is
// safe to call more than once.
type Subscriber interface {
	Subscribe(name string, h Handler) (unsubscribe func())
}

type subscription struct {
	id uint64
	h  Handler
}

// Bus is an in-process event bus. The zero value is ready to use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe(name string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[string][]subscription)
	}
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, h: h})
	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[name]
	for i, s := range list {
		if s.id == id {
			b.subs[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}

// Publish delivers e to a snapshot of the current subscribers, so handlers may
// subscribe or unsubscribe while being called.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	list := append([]subscription(nil), b.subs[e.Name]...)
	b.mu.RUnlock()
	for _, s := range list {
		s.h(e)
	}
}

// Count returns the number of handlers subscribed to name.
func (b *Bus) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}
