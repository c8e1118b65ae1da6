package mosaic

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// Builder composes a page out of an ordered tree of component definitions,
// delegating leaf loads to its Loader. It owns the page cache that lets a
// previously built page be written back without any component processing.
type Builder struct {
	loader *Loader
	pages  *PageCache
}

// BuilderOption configures a Builder at construction.
type BuilderOption func(*Builder)

// WithPageCache replaces the Builder's default (enabled) page cache.
func WithPageCache(cache *PageCache) BuilderOption {
	return func(b *Builder) {
		b.pages = cache
	}
}

// NewBuilder returns a Builder that loads components through loader.
func NewBuilder(loader *Loader, opts ...BuilderOption) *Builder {
	builder := &Builder{
		loader: loader,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if builder.pages == nil {
		builder.pages = NewPageCache(true)
	}
	return builder
}

// Pages returns the Builder's page cache, for enable/disable/clear control.
func (b *Builder) Pages() *PageCache {
	return b.pages
}

// BuildComponents builds an ordered sequence of component definitions into
// targetRef. It's Build with a metadata-free page definition.
func (b *Builder) BuildComponents(ctx context.Context, defs []ComponentDef, targetRef string, clearTarget bool) error {
	return b.Build(ctx, Page(defs...), targetRef, clearTarget)
}

// Build renders the page definition into the target targetRef resolves to.
//
// The page-cache key is def.Key when set, PageKey(def, targetRef) otherwise.
// When caching is on (the page's CacheEnabled override beats the cache's own
// setting) and a cached page exists for the key, the cached markup is written
// directly and Build returns without any component processing — no loads, no
// lifecycle hooks. That shortcut is the point of the page cache; pages whose
// components have side effects they always need should disable it.
//
// Otherwise the target is cleared (when asked to, or when it holds nothing
// but whitespace), page metadata is applied fire-and-forget, and every
// component definition is processed concurrently. Definitions whose condition
// is falsy are skipped along with all their children. Failures don't
// short-circuit siblings: Build waits for everything, snapshots the target's
// final markup into the page cache, and returns the joined errors.
func (b *Builder) Build(ctx context.Context, def *PageDef, targetRef string, clearTarget bool) (err error) {
	ctx, span := startSpan(ctx, "mosaic.Build",
		attribute.String("mosaic.target", targetRef),
	)
	defer func() {
		endSpan(span, err)
	}()

	target, err := b.loader.doc.Target(targetRef)
	if err != nil {
		return err
	}

	key := def.Key
	if key == "" {
		key = PageKey(def, targetRef)
	}
	cacheOn := b.pages.Enabled()
	if def.CacheEnabled != nil {
		cacheOn = *def.CacheEnabled
	}
	if cacheOn {
		if markup, ok := b.pages.lookup(key); ok {
			span.SetAttributes(attribute.Bool("mosaic.cache_hit", true))
			target.SetContent(markup)
			return nil
		}
	}
	span.SetAttributes(attribute.Bool("mosaic.cache_hit", false))

	if clearTarget || strings.TrimSpace(target.Content()) == "" {
		target.SetContent("")
	}

	if def.Title != "" {
		b.loader.doc.SetTitle(def.Title)
	}
	if def.Description != "" {
		b.loader.doc.SetMetaDescription(def.Description)
	}
	for _, href := range def.Stylesheets {
		b.loader.doc.AddStylesheet(href)
	}

	errs := make([]error, len(def.Components))
	var wg sync.WaitGroup
	for pos, component := range def.Components {
		pos, component := pos, component
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[pos] = b.process(ctx, component, target)
		}()
	}
	wg.Wait()
	err = errors.Join(errs...)

	if cacheOn {
		b.pages.store(key, target.Content())
	}
	return err
}

// process renders one component definition into target, recursing into its
// children only after the definition's own content has been committed.
func (b *Builder) process(ctx context.Context, def ComponentDef, target Target) error {
	if !def.included() {
		// a falsy condition suppresses the definition and its children
		return nil
	}
	if def.Target != "" {
		resolved, err := b.loader.doc.Target(def.Target)
		if err != nil {
			return err
		}
		target = resolved
	}
	if def.wraps() {
		target = target.CreateChild(def.layout())
	}
	if def.Path != "" {
		if err := b.loader.LoadInto(ctx, target, def.Path, def.Props); err != nil {
			return err
		}
	}
	errs := make([]error, len(def.Children))
	var wg sync.WaitGroup
	for pos, child := range def.Children {
		pos, child := pos, child
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[pos] = b.process(ctx, child, target)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
