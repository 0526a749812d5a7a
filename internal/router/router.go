// Package router provides concurrency-safe fan-out of inbound frames to
// consumer callbacks keyed by session ID.
package router

import (
	"log"
	"sync"

	"github.com/agent-console/stream/pkg/wire"
)

// Wildcard is the routing key that receives every frame regardless of
// session ID.
const Wildcard = "*"

// Handler consumes a decoded inbound frame.
type Handler func(frame wire.Frame)

// Router maps routing keys to sets of handlers. Handlers are stored in
// per-key slot tables; Subscribe hands out a slot token wrapped in an
// unsubscribe closure, so removal never mutates a set another goroutine
// is iterating.
type Router struct {
	mu       sync.RWMutex
	subs     map[string]map[uint64]Handler
	nextSlot uint64
}

// New creates an empty Router.
func New() *Router {
	return &Router{
		subs: make(map[string]map[uint64]Handler),
	}
}

// Subscribe registers handler under key and returns a closure that removes
// exactly this registration. Multiple handlers may share a key; each is
// removable independently. Calling the returned closure more than once is
// a no-op.
func (r *Router) Subscribe(key string, handler Handler) func() {
	r.mu.Lock()
	slot := r.nextSlot
	r.nextSlot++

	slots, ok := r.subs[key]
	if !ok {
		slots = make(map[uint64]Handler)
		r.subs[key] = slots
	}
	slots[slot] = handler
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		slots, ok := r.subs[key]
		if !ok {
			return
		}
		delete(slots, slot)
		// Removing the last handler removes the key itself, so short-lived
		// subscribers do not leak map entries.
		if len(slots) == 0 {
			delete(r.subs, key)
		}
	}
}

// Dispatch invokes every handler registered under the frame's session ID
// and every wildcard handler. The handler set is snapshotted before
// invocation, so handlers run without the lock held and may subscribe or
// unsubscribe freely. A panicking handler is logged and skipped; it never
// blocks delivery to the remaining handlers.
func (r *Router) Dispatch(frame wire.Frame) {
	if frame == nil {
		return
	}

	r.mu.RLock()
	var handlers []Handler
	if key := frame.Session(); key != "" {
		for _, h := range r.subs[key] {
			handlers = append(handlers, h)
		}
	}
	for _, h := range r.subs[Wildcard] {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		r.invoke(h, frame)
	}
}

// invoke runs one handler with panic isolation.
func (r *Router) invoke(handler Handler, frame wire.Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("router: subscriber panic for session %q: %v", frame.Session(), rec)
		}
	}()
	handler(frame)
}

// KeyCount returns the number of routing keys with at least one handler.
func (r *Router) KeyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// HandlerCount returns the number of handlers registered under key.
func (r *Router) HandlerCount(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[key])
}
