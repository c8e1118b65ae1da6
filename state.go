package mosaic

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Subscriber is a callback invoked when a state value changes. It receives
// the new value and the value it replaced.
type Subscriber func(newValue, oldValue any)

// ComputedFunc derives a value from the current values of a computed entry's
// dependencies, passed in dependency-list order.
type ComputedFunc func(deps ...any) any

// Subscription is the handle Subscribe returns; pass it to Unsubscribe to
// remove the callback again.
type Subscription struct {
	name string
	id   int
}

// Store holds named reactive values: plain entries, computed derivations, and
// bindings that push values into Targets. It is an owned object, not a
// singleton; construct one per page session (or per test) with NewStore.
//
// Reads of names that were never created return nil. Nothing in the Store
// raises a "name not found" error; unknown names just participate as nil.
type Store struct {
	mu            sync.Mutex
	entries       map[string]*stateEntry
	computed      []*computedEntry
	bindings      map[string][]*stateBinding
	subscriptions int
}

type stateEntry struct {
	value       any
	subscribers []storeSubscriber
}

type storeSubscriber struct {
	id int
	fn Subscriber
}

type computedEntry struct {
	name string
	deps []string
	fn   ComputedFunc
}

type stateBinding struct {
	target   Target
	property Property
}

// NewStore returns an empty Store.
func NewStore() *Store {
	store := &Store{}
	store.reset()
	return store
}

func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]*stateEntry{}
	s.computed = nil
	s.bindings = map[string][]*stateBinding{}
}

// Reset clears the Store wholesale: values, subscribers, computed entries,
// and bindings all go.
func (s *Store) Reset() {
	s.reset()
}

// Create registers name with an initial value and an empty subscriber set.
// Creating a name that already exists silently replaces the entry,
// subscribers included.
func (s *Store) Create(name string, initial any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = &stateEntry{value: initial}
}

// Get returns the current value for name, or nil when the name was never
// created.
func (s *Store) Get(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[name]
	if !ok {
		return nil
	}
	return entry.value
}

// Snapshot returns a copy of every current value, keyed by name. It's what
// the Loader merges props over when building a template context.
func (s *Store) Snapshot() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(Context, len(s.entries))
	for name, entry := range s.entries {
		snapshot[name] = entry.value
	}
	return snapshot
}

// Set stores a new value for name and fans the change out. Setting a value
// equal to the current one is a no-op: no subscribers run, no computed
// entries recompute, no bindings update. Setting a name that was never
// created is also a no-op; entries are created explicitly, never by Set.
//
// On a real change the fan-out order is: subscribers for name, in
// subscription order, with (new, old); then computed entries whose dependency
// list includes name, in registration order; then bindings for name.
// Subscriber panics are recovered and logged, never propagated.
func (s *Store) Set(ctx context.Context, name string, value any) {
	s.mu.Lock()
	entry, ok := s.entries[name]
	if !ok || reflect.DeepEqual(entry.value, value) {
		s.mu.Unlock()
		return
	}
	oldValue := entry.value
	entry.value = value
	subscribers := append([]storeSubscriber(nil), entry.subscribers...)
	var dependents []*computedEntry
	for _, comp := range s.computed {
		for _, dep := range comp.deps {
			if dep == name {
				dependents = append(dependents, comp)
				break
			}
		}
	}
	bindings := append([]*stateBinding(nil), s.bindings[name]...)
	s.mu.Unlock()

	for _, sub := range subscribers {
		s.notify(ctx, name, sub.fn, value, oldValue)
	}
	for _, comp := range dependents {
		s.recompute(ctx, comp)
	}
	for _, binding := range bindings {
		applyBinding(binding.target, binding.property, value)
	}
}

func (s *Store) notify(ctx context.Context, name string, fn Subscriber, newValue, oldValue any) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger(ctx).ErrorContext(ctx, "state subscriber panicked",
				"name", name, "panic", fmt.Sprintf("%v", recovered))
		}
	}()
	fn(newValue, oldValue)
}

// Subscribe adds a callback for changes to name and returns the handle to
// remove it with. Subscribing to a name that doesn't exist yet is allowed;
// the callback fires once the name is created and changed.
func (s *Store) Subscribe(name string, fn Subscriber) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions++
	sub := Subscription{name: name, id: s.subscriptions}
	entry, ok := s.entries[name]
	if !ok {
		entry = &stateEntry{}
		s.entries[name] = entry
	}
	entry.subscribers = append(entry.subscribers, storeSubscriber{id: sub.id, fn: fn})
	return sub
}

// Unsubscribe removes the callback the Subscription refers to. Removing one
// that was already removed, or never registered, is a silent no-op.
func (s *Store) Unsubscribe(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sub.name]
	if !ok {
		return
	}
	for pos, existing := range entry.subscribers {
		if existing.id == sub.id {
			entry.subscribers = append(entry.subscribers[:pos], entry.subscribers[pos+1:]...)
			return
		}
	}
}

// Computed registers name as a value derived from deps through fn. It
// computes once immediately, and recomputes synchronously inside Set whenever
// any listed dependency changes. When several computed entries share a
// dependency they recompute in registration order.
//
// The computed value is stored like any other entry, so it can itself be
// subscribed to, bound, and depended on by further computed entries.
func (s *Store) Computed(ctx context.Context, name string, deps []string, fn ComputedFunc) {
	comp := &computedEntry{name: name, deps: append([]string(nil), deps...), fn: fn}
	s.mu.Lock()
	s.computed = append(s.computed, comp)
	if _, ok := s.entries[name]; !ok {
		s.entries[name] = &stateEntry{}
	}
	s.mu.Unlock()
	s.recompute(ctx, comp)
}

func (s *Store) recompute(ctx context.Context, comp *computedEntry) {
	values := make([]any, len(comp.deps))
	for pos, dep := range comp.deps {
		values[pos] = s.Get(dep)
	}
	s.Set(ctx, comp.name, comp.fn(values...))
}

// Property identifies which aspect of a Target a binding pushes into. The
// five supported aspects are text content, HTML content, a named attribute, a
// named style property, and the whole class string.
type Property struct {
	kind propertyKind
	arg  string
}

type propertyKind int

const (
	propText propertyKind = iota
	propHTML
	propAttribute
	propStyle
	propClass
)

// BindText pushes the value into the target as escaped text.
var BindText = Property{kind: propText}

// BindHTML pushes the value into the target as raw markup.
var BindHTML = Property{kind: propHTML}

// BindClass pushes the value into the target's class string.
var BindClass = Property{kind: propClass}

// BindAttribute pushes the value into the named attribute on the target.
func BindAttribute(name string) Property {
	return Property{kind: propAttribute, arg: name}
}

// BindStyle pushes the value into the named style property on the target.
func BindStyle(name string) Property {
	return Property{kind: propStyle, arg: name}
}

// Bind pushes the current value of name into the target's property
// immediately, then keeps the property updated on every future change.
func (s *Store) Bind(target Target, name string, property Property) {
	s.mu.Lock()
	s.bindings[name] = append(s.bindings[name], &stateBinding{target: target, property: property})
	entry, ok := s.entries[name]
	var current any
	if ok {
		current = entry.value
	}
	s.mu.Unlock()
	applyBinding(target, property, current)
}

func applyBinding(target Target, property Property, value any) {
	text := Stringify(value)
	switch property.kind {
	case propText:
		target.SetText(text)
	case propHTML:
		target.SetContent(text)
	case propAttribute:
		target.SetAttribute(property.arg, text)
	case propStyle:
		target.SetStyle(property.arg, text)
	case propClass:
		target.SetClasses(text)
	}
}
