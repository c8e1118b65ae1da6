package mosaic

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Document is the core's view of the page being assembled. It only needs two
// capabilities from whatever is actually backing it: resolving an addressable
// Target by reference, and applying page-level side effects (title, meta
// description, linked stylesheets and scripts). Everything else the package
// does goes through Targets.
type Document interface {
	// Target resolves a target reference, usually a selector like "#main".
	// It returns a *TargetNotFoundError when no such target exists.
	Target(ref string) (Target, error)

	// SetTitle sets the page title.
	SetTitle(title string)

	// SetMetaDescription sets the page's meta description.
	SetMetaDescription(description string)

	// AddStylesheet links an external stylesheet into the page.
	AddStylesheet(href string)

	// AddScript appends an external script reference to the page. Scripts
	// added this way load without blocking the caller.
	AddScript(src string)

	// InsertCSS embeds a block of CSS text into the page.
	InsertCSS(css string)
}

// Target is an addressable insertion point for markup: an element resolved by
// reference, or one freshly created by a layout wrapper. The Loader writes
// expanded markup into Targets; the Store pushes bound values into them.
type Target interface {
	// Key uniquely identifies this target within its Document.
	Key() string

	// Content returns the target's current markup.
	Content() string

	// SetContent replaces the target's content wholesale.
	SetContent(markup string)

	// SetText replaces the target's content with escaped text.
	SetText(text string)

	// SetAttribute sets an attribute on the target element.
	SetAttribute(name, value string)

	// SetStyle sets a single style property on the target element.
	SetStyle(name, value string)

	// SetClasses replaces the target element's class string.
	SetClasses(classes string)

	// CreateChild creates a new element inside the target, described by
	// the passed layout, and returns it as a Target of its own.
	CreateChild(layout Layout) Target

	// On attaches a listener for the named event type.
	On(event string, fire func(Event))
}

// Layout describes a wrapping element a component definition can introduce
// around its children.
type Layout struct {
	// Tag is the element tag to create. Empty means "div".
	Tag string `msgpack:"tag"`

	// ID is the id attribute for the created element.
	ID string `msgpack:"id"`

	// Classes is the class string for the created element.
	Classes string `msgpack:"classes"`

	// Attributes holds any further attributes to set on the element.
	Attributes map[string]string `msgpack:"attributes"`
}

// Event is what gets passed to event handlers when a bound event fires.
type Event struct {
	// Type is the event type, e.g. "click".
	Type string

	// Target is the target the event fired inside.
	Target Target

	// Data carries any event payload the Document surfaced.
	Data map[string]any
}

var _ Document = &MemoryDocument{}
var _ Target = &MemoryTarget{}

// MemoryDocument is an in-memory Document implementation. It exists so the
// package can be exercised without a browser behind it: tests, examples, and
// server-side smoke checks of component trees all use it. Targets must be
// defined before they can be resolved; there is no auto-vivification.
type MemoryDocument struct {
	mu          sync.Mutex
	targets     map[string]*MemoryTarget
	title       string
	description string
	stylesheets []string
	scripts     []string
	css         []string
	childSeq    int
}

// NewMemoryDocument returns a MemoryDocument with a target defined for each
// of the passed references.
func NewMemoryDocument(refs ...string) *MemoryDocument {
	doc := &MemoryDocument{
		targets: map[string]*MemoryTarget{},
	}
	for _, ref := range refs {
		doc.Define(ref)
	}
	return doc
}

// Define creates (or returns the existing) target for ref.
func (d *MemoryDocument) Define(ref string) *MemoryTarget {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.defineLocked(ref)
}

func (d *MemoryDocument) defineLocked(ref string) *MemoryTarget {
	if existing, ok := d.targets[ref]; ok {
		return existing
	}
	target := &MemoryTarget{
		doc: d,
		key: ref,
	}
	d.targets[ref] = target
	return target
}

// Target resolves ref to a previously defined target.
func (d *MemoryDocument) Target(ref string) (Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	target, ok := d.targets[ref]
	if !ok {
		return nil, &TargetNotFoundError{Ref: ref}
	}
	return target, nil
}

// SetTitle records the page title.
func (d *MemoryDocument) SetTitle(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.title = title
}

// SetMetaDescription records the page's meta description.
func (d *MemoryDocument) SetMetaDescription(description string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.description = description
}

// AddStylesheet records an external stylesheet link.
func (d *MemoryDocument) AddStylesheet(href string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stylesheets = append(d.stylesheets, href)
}

// AddScript records an external script reference.
func (d *MemoryDocument) AddScript(src string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts = append(d.scripts, src)
}

// InsertCSS records a block of embedded CSS.
func (d *MemoryDocument) InsertCSS(css string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.css = append(d.css, css)
}

// Title returns the recorded page title.
func (d *MemoryDocument) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title
}

// MetaDescription returns the recorded meta description.
func (d *MemoryDocument) MetaDescription() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.description
}

// Stylesheets returns the recorded external stylesheet links, in the order
// they were added.
func (d *MemoryDocument) Stylesheets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.stylesheets...)
}

// Scripts returns the recorded external script references, in the order they
// were added.
func (d *MemoryDocument) Scripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.scripts...)
}

// InsertedCSS returns the recorded embedded CSS blocks.
func (d *MemoryDocument) InsertedCSS() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.css...)
}

func (d *MemoryDocument) registerChild(layout Layout) *MemoryTarget {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref := "#" + layout.ID
	if layout.ID == "" {
		d.childSeq++
		ref = fmt.Sprintf("#mosaic-child-%d", d.childSeq)
	}
	child := d.defineLocked(ref)
	child.layout = layout
	return child
}

// MemoryTarget is the Target implementation backing MemoryDocument.
type MemoryTarget struct {
	doc    *MemoryDocument
	key    string
	layout Layout

	mu        sync.Mutex
	content   string
	attrs     map[string]string
	styles    map[string]string
	classes   string
	children  []*MemoryTarget
	listeners map[string][]func(Event)
}

// Key returns the target's reference within its Document.
func (t *MemoryTarget) Key() string {
	return t.key
}

// Content returns the target's markup, including the rendered markup of any
// children created inside it.
func (t *MemoryTarget) Content() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var builder strings.Builder
	builder.WriteString(t.content)
	for _, child := range t.children {
		builder.WriteString(child.markup())
	}
	return builder.String()
}

// SetContent replaces the target's content wholesale. Children created
// inside the target and event listeners attached to it belong to the markup
// being replaced, so they're dropped with it.
func (t *MemoryTarget) SetContent(markup string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.content = markup
	t.children = nil
	t.listeners = nil
}

// SetText replaces the target's content with escaped text.
func (t *MemoryTarget) SetText(text string) {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	t.SetContent(replacer.Replace(text))
}

// SetAttribute sets an attribute on the target element.
func (t *MemoryTarget) SetAttribute(name, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attrs == nil {
		t.attrs = map[string]string{}
	}
	t.attrs[name] = value
}

// SetStyle sets a single style property on the target element.
func (t *MemoryTarget) SetStyle(name, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.styles == nil {
		t.styles = map[string]string{}
	}
	t.styles[name] = value
}

// SetClasses replaces the target element's class string.
func (t *MemoryTarget) SetClasses(classes string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.classes = classes
}

// CreateChild creates a new element inside the target. The child is also
// registered with the Document, under "#"+layout.ID when the layout carries
// an ID, so it can be resolved as a load target of its own.
func (t *MemoryTarget) CreateChild(layout Layout) Target {
	child := t.doc.registerChild(layout)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children = append(t.children, child)
	return child
}

// On attaches a listener for the named event type.
func (t *MemoryTarget) On(event string, fire func(Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listeners == nil {
		t.listeners = map[string][]func(Event){}
	}
	t.listeners[event] = append(t.listeners[event], fire)
}

// Fire simulates the named event occurring inside the target, invoking every
// attached listener in order.
func (t *MemoryTarget) Fire(event string, data map[string]any) {
	t.mu.Lock()
	listeners := append(([]func(Event))(nil), t.listeners[event]...)
	t.mu.Unlock()
	for _, fire := range listeners {
		fire(Event{Type: event, Target: t, Data: data})
	}
}

// Attribute returns the value set for the named attribute.
func (t *MemoryTarget) Attribute(name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attrs[name]
}

// StyleValue returns the value set for the named style property.
func (t *MemoryTarget) StyleValue(name string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.styles[name]
}

// Classes returns the target element's class string.
func (t *MemoryTarget) Classes() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.classes
}

// markup renders the target as a complete element, wrapper tag included.
func (t *MemoryTarget) markup() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	tag := t.layout.Tag
	if tag == "" {
		tag = "div"
	}
	var builder strings.Builder
	builder.WriteString("<" + tag)
	if t.layout.ID != "" {
		builder.WriteString(fmt.Sprintf(" id=%q", t.layout.ID))
	}
	classes := t.classes
	if classes == "" {
		classes = t.layout.Classes
	}
	if classes != "" {
		builder.WriteString(fmt.Sprintf(" class=%q", classes))
	}
	names := make([]string, 0, len(t.layout.Attributes)+len(t.attrs))
	merged := map[string]string{}
	for name, value := range t.layout.Attributes {
		merged[name] = value
	}
	for name, value := range t.attrs {
		merged[name] = value
	}
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		builder.WriteString(fmt.Sprintf(" %s=%q", name, merged[name]))
	}
	builder.WriteString(">")
	builder.WriteString(t.content)
	for _, child := range t.children {
		builder.WriteString(child.markup())
	}
	builder.WriteString("</" + tag + ">")
	return builder.String()
}
