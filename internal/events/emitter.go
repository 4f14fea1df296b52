// Package events implements the named-event subscription surface of a
// playback instance.
package events

import "sync"

// Lifecycle event names emitted by an instance.
const (
	Ready   = "ready"
	Error   = "error"
	Destroy = "destroy"
)

// Listener receives the payload passed to Emit.
type Listener func(payload any)

// ListenerID identifies a subscription for RemoveListener.
type ListenerID uint64

type subscription struct {
	id   ListenerID
	fn   Listener
	once bool
}

// Emitter dispatches events synchronously, in subscription order.
type Emitter struct {
	mu        sync.Mutex
	next      ListenerID
	listeners map[string][]subscription
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[string][]subscription)}
}

// On subscribes fn to event.
func (e *Emitter) On(event string, fn Listener) ListenerID {
	return e.add(event, fn, false)
}

// Once subscribes fn to the next occurrence of event only.
func (e *Emitter) Once(event string, fn Listener) ListenerID {
	return e.add(event, fn, true)
}

func (e *Emitter) add(event string, fn Listener, once bool) ListenerID {
	if fn == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.listeners[event] = append(e.listeners[event], subscription{id: e.next, fn: fn, once: once})
	return e.next
}

// RemoveListener drops a subscription. It reports whether one was removed.
func (e *Emitter) RemoveListener(event string, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.listeners[event]
	for i, s := range subs {
		if s.id == id {
			e.listeners[event] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAll drops every subscription for the named events, or for all events
// when none are named.
func (e *Emitter) RemoveAll(events ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(events) == 0 {
		e.listeners = make(map[string][]subscription)
		return
	}
	for _, ev := range events {
		delete(e.listeners, ev)
	}
}

// ListenerCount returns the number of subscriptions for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Emit calls every listener of event with payload and returns how many ran.
// Listeners may subscribe or unsubscribe while being called; such changes take
// effect on the next Emit.
func (e *Emitter) Emit(event string, payload any) int {
	e.mu.Lock()
	subs := e.listeners[event]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	kept := subs[:0:0]
	for _, s := range subs {
		if !s.once {
			kept = append(kept, s)
		}
	}
	if len(kept) != len(subs) {
		e.listeners[event] = kept
	}
	e.mu.Unlock()

	for _, s := range snapshot {
		s.fn(payload)
	}
	return len(snapshot)
}
