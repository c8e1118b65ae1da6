package mosaic

import (
	"context"
	"fmt"
	"sync"
)

// Phase identifies a point in a component's load lifecycle.
type Phase string

const (
	// PhaseBeforeLoad fires before a component's fragment is fetched or
	// read from cache.
	PhaseBeforeLoad Phase = "beforeLoad"

	// PhaseAfterLoad fires after a component's markup has been committed
	// and its nested resources dispatched.
	PhaseAfterLoad Phase = "afterLoad"

	// PhaseOnError fires when a component's load fails.
	PhaseOnError Phase = "onError"
)

// WildcardPath registers a hook for every resource path.
const WildcardPath = "*"

// HookInfo is what lifecycle hooks receive: which resource, where it was
// going, and what went wrong when the phase is PhaseOnError.
type HookInfo struct {
	// Path is the resource path being loaded.
	Path string

	// Target is the reference of the target being loaded into.
	Target string

	// Err is the load error. Only set for PhaseOnError.
	Err error
}

// HookFunc is a lifecycle hook callback.
type HookFunc func(ctx context.Context, info HookInfo)

type hookKey struct {
	path  string
	phase Phase
}

// Hooks is a registry of lifecycle hooks keyed by (resource path, phase).
// Registering under WildcardPath fires the hook for every path. Hooks on a
// given key fire in registration order, wildcard registrations first.
//
// It can safely be used by multiple goroutines.
type Hooks struct {
	mu      sync.RWMutex
	entries map[hookKey][]HookFunc
}

// NewHooks returns an empty Hooks registry.
func NewHooks() *Hooks {
	return &Hooks{
		entries: map[hookKey][]HookFunc{},
	}
}

// On registers fn to fire at the given phase of loads of path. Use
// WildcardPath to fire on every path.
func (h *Hooks) On(path string, phase Phase, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := hookKey{path: path, phase: phase}
	h.entries[key] = append(h.entries[key], fn)
}

// Fire invokes the hooks registered for (path, phase): wildcard
// registrations first, then exact ones, each set in registration order. A
// hook that panics is recovered and logged; it never aborts the load or the
// other hooks.
func (h *Hooks) Fire(ctx context.Context, phase Phase, info HookInfo) {
	h.mu.RLock()
	hooks := append([]HookFunc(nil), h.entries[hookKey{path: WildcardPath, phase: phase}]...)
	hooks = append(hooks, h.entries[hookKey{path: info.Path, phase: phase}]...)
	h.mu.RUnlock()
	for _, fn := range hooks {
		h.fire(ctx, fn, phase, info)
	}
}

func (h *Hooks) fire(ctx context.Context, fn HookFunc, phase Phase, info HookInfo) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger(ctx).ErrorContext(ctx, "lifecycle hook panicked",
				"path", info.Path, "phase", string(phase), "panic", fmt.Sprintf("%v", recovered))
		}
	}()
	fn(ctx, info)
}
