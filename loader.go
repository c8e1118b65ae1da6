package mosaic

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// ScriptRunner executes inline script blocks discovered in component markup.
// It's an external collaborator: the core never evaluates script text itself.
// When a Loader has no ScriptRunner, inline scripts are skipped with a debug
// log.
type ScriptRunner interface {
	// RunInline executes a block of script source.
	RunInline(ctx context.Context, source string) error
}

// Markup conventions the Loader understands. Nested resources are declared
// as attributes on elements inside a fragment:
//
//	<div id="sidebar" data-component="sidebar.html"></div>
//	<div data-css="theme.css"></div>
//	<div data-script="widget.js"></div>
//
// and per-event attributes name handlers in the Handlers registry:
//
//	<button data-onclick="save">Save</button>
//
// Inline scripts run through the ScriptRunner exactly once:
//
//	<script type="text/mosaic">init();</script>
const (
	attrComponent   = "data-component"
	attrCSS         = "data-css"
	attrScript      = "data-script"
	attrBound       = "data-mosaic-bound"
	eventAttrPrefix = "data-on"
)

var (
	tagPattern          = regexp.MustCompile(`<[A-Za-z][^>]*>`)
	attrPattern         = regexp.MustCompile(`([A-Za-z][A-Za-z0-9-]*)="([^"]*)"`)
	inlineScriptPattern = regexp.MustCompile(`(?s)<script[^>]*type="text/mosaic"[^>]*>(.*?)</script>`)
)

// eventTypes are the event attributes the Loader binds, e.g. data-onclick.
var eventTypes = []string{"click", "change", "input", "submit", "keyup"}

// Loader runs the component pipeline: consult the file cache, fetch on a
// miss, expand the fragment through the template engine, commit the markup to
// the target, then discover and dispatch the nested resources the markup
// declares. It owns the file cache, engine, store, handler and hook
// registries it uses; construct one per Document with NewLoader.
type Loader struct {
	fetcher  Fetcher
	doc      Document
	files    *FileCache
	engine   *Engine
	store    *Store
	handlers *Handlers
	hooks    *Hooks
	script   ScriptRunner

	mu      sync.Mutex
	loading map[string]struct{}
	targets map[string]*sync.Mutex
}

// LoaderOption configures a Loader at construction.
type LoaderOption func(*Loader)

// WithFileCache replaces the Loader's default (enabled) file cache.
func WithFileCache(cache *FileCache) LoaderOption {
	return func(l *Loader) {
		l.files = cache
	}
}

// WithStore replaces the Loader's default empty state store, so a store can
// be shared with code outside the Loader.
func WithStore(store *Store) LoaderOption {
	return func(l *Loader) {
		l.store = store
	}
}

// WithHandlers replaces the Loader's default empty handler registry.
func WithHandlers(handlers *Handlers) LoaderOption {
	return func(l *Loader) {
		l.handlers = handlers
	}
}

// WithHooks replaces the Loader's default empty hook registry.
func WithHooks(hooks *Hooks) LoaderOption {
	return func(l *Loader) {
		l.hooks = hooks
	}
}

// WithScriptRunner sets the collaborator inline scripts execute through.
func WithScriptRunner(runner ScriptRunner) LoaderOption {
	return func(l *Loader) {
		l.script = runner
	}
}

// NewLoader returns a Loader fetching through fetcher and writing into doc.
func NewLoader(fetcher Fetcher, doc Document, opts ...LoaderOption) *Loader {
	loader := &Loader{
		fetcher: fetcher,
		doc:     doc,
		loading: map[string]struct{}{},
		targets: map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(loader)
	}
	if loader.files == nil {
		loader.files = NewFileCache(true)
	}
	if loader.engine == nil {
		loader.engine = NewEngine()
	}
	if loader.store == nil {
		loader.store = NewStore()
	}
	if loader.handlers == nil {
		loader.handlers = NewHandlers()
	}
	if loader.hooks == nil {
		loader.hooks = NewHooks()
	}
	return loader
}

// Files returns the Loader's file cache, for enable/disable/clear control.
func (l *Loader) Files() *FileCache {
	return l.files
}

// Store returns the Loader's state store.
func (l *Loader) Store() *Store {
	return l.store
}

// Handlers returns the Loader's event-handler registry.
func (l *Loader) Handlers() *Handlers {
	return l.handlers
}

// Hooks returns the Loader's lifecycle-hook registry.
func (l *Loader) Hooks() *Hooks {
	return l.hooks
}

// Load loads the component at path into the target targetRef resolves to,
// expanding its fragment with props merged over the current state snapshot.
//
// A load of a path that's already in flight returns nil immediately; that's
// the cycle guard, and it's logged. Fetch failures and unresolvable targets
// are returned to the caller; a fetch failure additionally renders an inline
// error fragment into the target. Failures of nested resources the fragment
// declares never fail the parent load.
func (l *Loader) Load(ctx context.Context, targetRef, path string, props Context) error {
	target, err := l.doc.Target(targetRef)
	if err != nil {
		l.hooks.Fire(ctx, PhaseOnError, HookInfo{Path: path, Target: targetRef, Err: err})
		return err
	}
	return l.LoadInto(ctx, target, path, props)
}

// Replace clears targetRef's content, then loads the component at path into
// it.
func (l *Loader) Replace(ctx context.Context, targetRef, path string, props Context) error {
	target, err := l.doc.Target(targetRef)
	if err != nil {
		l.hooks.Fire(ctx, PhaseOnError, HookInfo{Path: path, Target: targetRef, Err: err})
		return err
	}
	target.SetContent("")
	return l.LoadInto(ctx, target, path, props)
}

// LoadInto is Load for an already-resolved Target. The Builder uses it for
// the elements it creates itself.
func (l *Loader) LoadInto(ctx context.Context, target Target, path string, props Context) (err error) {
	ctx, span := startSpan(ctx, "mosaic.Load",
		attribute.String("mosaic.path", path),
		attribute.String("mosaic.target", target.Key()),
	)
	defer func() {
		endSpan(span, err)
	}()

	if !l.beginLoad(path) {
		logger(ctx).WarnContext(ctx, "suppressing re-entrant load of in-flight path", "path", path)
		return nil
	}
	defer l.endLoad(path)

	// loads against the same target are serialized, so overlapping loads
	// can't interleave writes; the last one to finish owns the content
	unlock := l.lockTarget(target.Key())
	defer unlock()

	l.hooks.Fire(ctx, PhaseBeforeLoad, HookInfo{Path: path, Target: target.Key()})

	content, cached := l.files.Get(path)
	span.SetAttributes(attribute.Bool("mosaic.cache_hit", cached))
	if !cached {
		content, err = l.fetcher.Fetch(ctx, path)
		if err != nil {
			l.fail(ctx, target, path, err)
			return err
		}
		l.files.Set(path, content)
	}

	expanded := l.engine.Expand(ctx, content, MergeContexts(l.store.Snapshot(), props))
	expanded, scripts := extractInlineScripts(expanded)
	marked, bindings := markEventBindings(expanded)

	target.SetContent(marked)

	l.dispatchNested(ctx, marked)
	l.attachBindings(ctx, target, bindings)
	l.runScripts(ctx, path, scripts)

	l.hooks.Fire(ctx, PhaseAfterLoad, HookInfo{Path: path, Target: target.Key()})
	return nil
}

func (l *Loader) beginLoad(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, inFlight := l.loading[path]; inFlight {
		return false
	}
	l.loading[path] = struct{}{}
	return true
}

func (l *Loader) endLoad(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.loading, path)
}

func (l *Loader) lockTarget(key string) func() {
	l.mu.Lock()
	lock, ok := l.targets[key]
	if !ok {
		lock = &sync.Mutex{}
		l.targets[key] = lock
	}
	l.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// fail renders the inline error fragment into the target and fires the
// onError hooks. The load's own error still propagates to the caller.
func (l *Loader) fail(ctx context.Context, target Target, path string, err error) {
	l.hooks.Fire(ctx, PhaseOnError, HookInfo{Path: path, Target: target.Key(), Err: err})
	target.SetContent(fmt.Sprintf(`<div class="mosaic-error">failed to load %s: %s</div>`,
		html.EscapeString(path), html.EscapeString(err.Error())))
	logger(ctx).ErrorContext(ctx, "component load failed", "path", path, "target", target.Key(), "error", err)
}

// dispatchNested finds the nested resources the committed markup declares and
// dispatches them all concurrently: nested components load through the full
// pipeline into their own targets, nested stylesheets fetch (through the file
// cache) and embed, nested scripts get appended as external references.
// Individual failures are logged; none of them fail the parent.
func (l *Loader) dispatchNested(ctx context.Context, markup string) {
	var wg sync.WaitGroup
	for _, tag := range tagPattern.FindAllString(markup, -1) {
		attrs := parseAttrs(tag)
		if nestedPath, ok := attrs[attrComponent]; ok {
			ref := "#" + attrs["id"]
			if attrs["id"] == "" {
				logger(ctx).WarnContext(ctx, "nested component reference without an id, skipping",
					"path", nestedPath)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := l.Load(ctx, ref, nestedPath, nil); err != nil {
					logger(ctx).WarnContext(ctx, "nested component failed",
						"path", nestedPath, "target", ref, "error", err)
				}
			}()
		}
		if cssPath, ok := attrs[attrCSS]; ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := l.loadStylesheet(ctx, cssPath); err != nil {
					logger(ctx).WarnContext(ctx, "nested stylesheet failed",
						"path", cssPath, "error", err)
				}
			}()
		}
		if scriptPath, ok := attrs[attrScript]; ok {
			// external scripts append without blocking the load
			l.doc.AddScript(scriptPath)
		}
	}
	wg.Wait()
}

// loadStylesheet fetches the stylesheet at path, consulting the file cache
// first, and embeds its text into the document.
func (l *Loader) loadStylesheet(ctx context.Context, path string) error {
	content, cached := l.files.Get(path)
	if !cached {
		var err error
		content, err = l.fetcher.Fetch(ctx, path)
		if err != nil {
			return err
		}
		l.files.Set(path, content)
	}
	l.doc.InsertCSS(content)
	return nil
}

// attachBindings hooks the discovered event bindings up, resolving handler
// names against the registry at dispatch time rather than now; a handler
// registered after binding still gets found.
func (l *Loader) attachBindings(ctx context.Context, target Target, bindings []eventBinding) {
	for _, binding := range bindings {
		name := binding.handler
		target.On(binding.event, func(ev Event) {
			// handler misses are logged inside Dispatch; the event's
			// default behavior is suppressed either way
			_ = l.handlers.Dispatch(ctx, name, ev)
		})
	}
}

// runScripts executes extracted inline scripts exactly once, synchronously,
// through the ScriptRunner. Script failures are contained: logged as
// ScriptExecutionErrors, never propagated.
func (l *Loader) runScripts(ctx context.Context, path string, scripts []string) {
	for _, source := range scripts {
		if l.script == nil {
			logger(ctx).DebugContext(ctx, "no script runner configured, skipping inline script", "path", path)
			continue
		}
		if err := l.script.RunInline(ctx, source); err != nil {
			scriptErr := &ScriptExecutionError{Path: path, Err: err}
			logger(ctx).ErrorContext(ctx, "inline script failed", "path", path, "error", scriptErr)
		}
	}
}

type eventBinding struct {
	event   string
	handler string
}

// markEventBindings scans markup for per-event attributes on elements that
// haven't been bound yet, returning the markup with rebind markers written
// into those elements and the list of bindings to attach. Elements already
// carrying the marker are left alone, which is what makes binding idempotent.
func markEventBindings(markup string) (string, []eventBinding) {
	var bindings []eventBinding
	marked := tagPattern.ReplaceAllStringFunc(markup, func(tag string) string {
		attrs := parseAttrs(tag)
		if _, bound := attrs[attrBound]; bound {
			return tag
		}
		matched := false
		for _, event := range eventTypes {
			if handler, ok := attrs[eventAttrPrefix+event]; ok && handler != "" {
				bindings = append(bindings, eventBinding{event: event, handler: handler})
				matched = true
			}
		}
		if !matched {
			return tag
		}
		return strings.TrimSuffix(tag, ">") + ` ` + attrBound + `="">`
	})
	return marked, bindings
}

// extractInlineScripts strips <script type="text/mosaic"> blocks out of the
// markup and returns their sources. Stripping them keeps a block from running
// again if the surrounding markup gets re-scanned.
func extractInlineScripts(markup string) (string, []string) {
	var scripts []string
	stripped := inlineScriptPattern.ReplaceAllStringFunc(markup, func(block string) string {
		scripts = append(scripts, inlineScriptPattern.FindStringSubmatch(block)[1])
		return ""
	})
	return stripped, scripts
}

func parseAttrs(tag string) map[string]string {
	attrs := map[string]string{}
	for _, match := range attrPattern.FindAllStringSubmatch(tag, -1) {
		attrs[match[1]] = match[2]
	}
	return attrs
}
