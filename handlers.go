package mosaic

import (
	"context"
	"sync"
)

// Handler is a named event handler.
type Handler func(ev Event)

// Handlers is the registry event bindings resolve against. Resolution is by
// name and happens at dispatch time, not at bind time, so markup can
// reference handlers that get registered later. A dispatch that finds no
// handler is a logged *HandlerNotFoundError, never a panic; Dispatch returns
// it so the caller can suppress the event's default behavior.
//
// It can safely be used by multiple goroutines.
type Handlers struct {
	mu      sync.RWMutex
	entries map[string]Handler
}

// NewHandlers returns an empty Handlers registry.
func NewHandlers() *Handlers {
	return &Handlers{
		entries: map[string]Handler{},
	}
}

// Register stores fn under name, replacing any handler already there.
func (h *Handlers) Register(name string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[name] = fn
}

// Unregister removes the handler stored under name. Removing a name that
// isn't registered is a silent no-op.
func (h *Handlers) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, name)
}

// Dispatch looks name up and invokes it with ev. A missing handler is logged
// and returned as a *HandlerNotFoundError.
func (h *Handlers) Dispatch(ctx context.Context, name string, ev Event) error {
	h.mu.RLock()
	fn, ok := h.entries[name]
	h.mu.RUnlock()
	if !ok {
		err := &HandlerNotFoundError{Name: name}
		logger(ctx).ErrorContext(ctx, "event handler not registered", "handler", name, "event", ev.Type)
		return err
	}
	fn(ev)
	return nil
}
