package mosaic_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impractical.co/mosaic"
)

// countingFetcher is a MapFetcher that counts how many times each path gets
// fetched.
type countingFetcher struct {
	mu       sync.Mutex
	contents map[string]string
	counts   map[string]int
	delays   map[string]time.Duration
}

func newCountingFetcher(contents map[string]string) *countingFetcher {
	return &countingFetcher{
		contents: contents,
		counts:   map[string]int{},
		delays:   map[string]time.Duration{},
	}
}

func (f *countingFetcher) Fetch(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	f.counts[path]++
	content, ok := f.contents[path]
	delay := f.delays[path]
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		return "", &mosaic.FetchError{Path: path, Status: 404}
	}
	return content, nil
}

func (f *countingFetcher) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[path]
}

// recordingRunner is a ScriptRunner that records the sources it was asked to
// run, optionally failing.
type recordingRunner struct {
	mu      sync.Mutex
	sources []string
	err     error
}

func (r *recordingRunner) RunInline(_ context.Context, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	return r.err
}

func (r *recordingRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sources...)
}

func TestLoadExpandsAndWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"greeting.html": "<p>Hello, {{name}} — theme {{theme}}</p>",
	})
	doc := mosaic.NewMemoryDocument("#root")
	loader := mosaic.NewLoader(fetcher, doc)
	loader.Store().Create("theme", "dark")
	loader.Store().Create("name", "from-state")

	err := loader.Load(ctx, "#root", "greeting.html", mosaic.Context{"name": "Ada"})
	require.NoError(t, err)

	target, err := doc.Target("#root")
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello, Ada — theme dark</p>", target.Content(),
		"props should win over state values on collision")
}

func TestLoadFetchesOnceThenCaches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"a.html": "<p>a</p>",
	})
	doc := mosaic.NewMemoryDocument("#root")
	loader := mosaic.NewLoader(fetcher, doc)

	require.NoError(t, loader.Load(ctx, "#root", "a.html", nil))
	target, _ := doc.Target("#root")
	first := target.Content()
	assert.Equal(t, 1, fetcher.count("a.html"))

	require.NoError(t, loader.Load(ctx, "#root", "a.html", nil))
	assert.Equal(t, 1, fetcher.count("a.html"), "the second load should come out of the file cache")
	assert.Equal(t, first, target.Content())

	loader.Files().Clear()
	require.NoError(t, loader.Load(ctx, "#root", "a.html", nil))
	assert.Equal(t, 2, fetcher.count("a.html"))
}

func TestLoadWithDisabledFileCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"a.html": "<p>a</p>",
	})
	doc := mosaic.NewMemoryDocument("#root")
	loader := mosaic.NewLoader(fetcher, doc, mosaic.WithFileCache(mosaic.NewFileCache(false)))

	require.NoError(t, loader.Load(ctx, "#root", "a.html", nil))
	require.NoError(t, loader.Load(ctx, "#root", "a.html", nil))
	assert.Equal(t, 2, fetcher.count("a.html"))
}

func TestLoadFetchFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{})
	doc := mosaic.NewMemoryDocument("#root")
	loader := mosaic.NewLoader(fetcher, doc)

	var hookErr error
	loader.Hooks().On("missing.html", mosaic.PhaseOnError, func(_ context.Context, info mosaic.HookInfo) {
		hookErr = info.Err
	})

	err := loader.Load(ctx, "#root", "missing.html", nil)
	require.Error(t, err)

	var fetchErr *mosaic.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "missing.html", fetchErr.Path)
	assert.Equal(t, 404, fetchErr.Status)
	assert.True(t, mosaic.IsFetchError(err))

	target, _ := doc.Target("#root")
	assert.Contains(t, target.Content(), "mosaic-error", "a failed load should render an inline error fragment")
	assert.Contains(t, target.Content(), "missing.html")
	assert.Equal(t, err, hookErr, "the onError hook should see the load error")
}

func TestLoadTargetNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{"a.html": "<p>a</p>"})
	doc := mosaic.NewMemoryDocument("#root")
	loader := mosaic.NewLoader(fetcher, doc)

	err := loader.Load(ctx, "#nope", "a.html", nil)
	require.Error(t, err)
	assert.True(t, mosaic.IsTargetNotFound(err))
	assert.Zero(t, fetcher.count("a.html"), "an unresolvable target should fail before fetching")
}

func TestLoadCycleSuppression(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"self.html": `<p>me</p><div id="self-slot" data-component="self.html"></div>`,
	})
	doc := mosaic.NewMemoryDocument("#root", "#self-slot")
	loader := mosaic.NewLoader(fetcher, doc)

	require.NoError(t, loader.Load(ctx, "#root", "self.html", nil))
	assert.Equal(t, 1, fetcher.count("self.html"), "a self-referential component should load exactly once")
}

func TestLoadNestedComponents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"page.html": `<h1>Page</h1><div id="side" data-component="side.html"></div><div id="bad" data-component="missing.html"></div>`,
		"side.html": `<nav>side</nav>`,
	})
	doc := mosaic.NewMemoryDocument("#root", "#side", "#bad")
	loader := mosaic.NewLoader(fetcher, doc)

	err := loader.Load(ctx, "#root", "page.html", nil)
	require.NoError(t, err, "a failing nested component should not fail the parent")

	side, _ := doc.Target("#side")
	assert.Equal(t, "<nav>side</nav>", side.Content())

	bad, _ := doc.Target("#bad")
	assert.Contains(t, bad.Content(), "mosaic-error")
}

func TestLoadNestedStylesheetAndScript(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"page.html":  `<div data-css="theme.css"></div><div data-script="widget.js"></div>`,
		"theme.css":  `body { color: red; }`,
		"other.html": `<div data-css="theme.css"></div>`,
	})
	doc := mosaic.NewMemoryDocument("#root", "#other")
	loader := mosaic.NewLoader(fetcher, doc)

	require.NoError(t, loader.Load(ctx, "#root", "page.html", nil))
	assert.Equal(t, []string{`body { color: red; }`}, doc.InsertedCSS())
	assert.Equal(t, []string{"widget.js"}, doc.Scripts())

	// stylesheet text goes through the file cache like any other resource
	require.NoError(t, loader.Load(ctx, "#other", "other.html", nil))
	assert.Equal(t, 1, fetcher.count("theme.css"))
}

func TestLoadBindsEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"form.html": `<button data-onclick="save">Save</button>`,
	})
	doc := mosaic.NewMemoryDocument("#root")
	loader := mosaic.NewLoader(fetcher, doc)

	require.NoError(t, loader.Load(ctx, "#root", "form.html", nil))

	root := doc.Define("#root")
	assert.Contains(t, root.Content(), "data-mosaic-bound", "bound elements should carry the rebind marker")

	// the handler registry is consulted at dispatch time, so registering
	// after the load still works
	var clicks int
	loader.Handlers().Register("save", func(_ mosaic.Event) {
		clicks++
	})
	root.Fire("click", nil)
	assert.Equal(t, 1, clicks)

	// reloading replaces the markup and rebinds exactly once
	require.NoError(t, loader.Load(ctx, "#root", "form.html", nil))
	root.Fire("click", nil)
	assert.Equal(t, 2, clicks)
}

func TestLoadAlreadyBoundMarkupIsNotRebound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"bound.html": `<button data-onclick="save" data-mosaic-bound="">Save</button>`,
	})
	doc := mosaic.NewMemoryDocument("#root")
	loader := mosaic.NewLoader(fetcher, doc)

	var clicks int
	loader.Handlers().Register("save", func(_ mosaic.Event) {
		clicks++
	})

	require.NoError(t, loader.Load(ctx, "#root", "bound.html", nil))
	doc.Define("#root").Fire("click", nil)
	assert.Zero(t, clicks, "elements already carrying the marker should not bind again")
}

func TestLoadMissingHandlerIsContained(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"form.html": `<button data-onclick="nope">Save</button>`,
	})
	doc := mosaic.NewMemoryDocument("#root")
	loader := mosaic.NewLoader(fetcher, doc)

	require.NoError(t, loader.Load(ctx, "#root", "form.html", nil))
	require.NotPanics(t, func() {
		doc.Define("#root").Fire("click", nil)
	})
}

func TestLoadRunsInlineScriptsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"widget.html": `<div>w</div><script type="text/mosaic">init();</script>`,
	})
	doc := mosaic.NewMemoryDocument("#root")
	runner := &recordingRunner{}
	loader := mosaic.NewLoader(fetcher, doc, mosaic.WithScriptRunner(runner))

	require.NoError(t, loader.Load(ctx, "#root", "widget.html", nil))
	assert.Equal(t, []string{"init();"}, runner.ran())

	root, _ := doc.Target("#root")
	assert.Equal(t, "<div>w</div>", root.Content(), "inline script blocks should be stripped from the markup")
}

func TestLoadScriptFailureIsContained(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"widget.html": `<div>w</div><script type="text/mosaic">boom();</script>`,
	})
	doc := mosaic.NewMemoryDocument("#root")
	runner := &recordingRunner{err: errors.New("boom")}
	loader := mosaic.NewLoader(fetcher, doc, mosaic.WithScriptRunner(runner))

	assert.NoError(t, loader.Load(ctx, "#root", "widget.html", nil),
		"a throwing script should not abort the load")
}

func TestLoadWithoutScriptRunnerSkipsScripts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"widget.html": `<div>w</div><script type="text/mosaic">init();</script>`,
	})
	doc := mosaic.NewMemoryDocument("#root")
	loader := mosaic.NewLoader(fetcher, doc)

	assert.NoError(t, loader.Load(ctx, "#root", "widget.html", nil))
}

func TestReplace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"new.html": "<p>new</p>",
	})
	doc := mosaic.NewMemoryDocument("#root")
	doc.Define("#root").SetContent("<p>old</p>")
	loader := mosaic.NewLoader(fetcher, doc)

	require.NoError(t, loader.Replace(ctx, "#root", "new.html", nil))
	assert.Equal(t, "<p>new</p>", doc.Define("#root").Content())
}

func TestLoadLifecycleHooks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"a.html": "<p>a</p>",
	})
	doc := mosaic.NewMemoryDocument("#root")
	loader := mosaic.NewLoader(fetcher, doc)

	var fired []string
	loader.Hooks().On(mosaic.WildcardPath, mosaic.PhaseBeforeLoad, func(_ context.Context, info mosaic.HookInfo) {
		fired = append(fired, "wildcard-before:"+info.Path)
	})
	loader.Hooks().On("a.html", mosaic.PhaseBeforeLoad, func(_ context.Context, info mosaic.HookInfo) {
		fired = append(fired, "before:"+info.Target)
	})
	loader.Hooks().On("a.html", mosaic.PhaseAfterLoad, func(_ context.Context, _ mosaic.HookInfo) {
		fired = append(fired, "after")
	})

	require.NoError(t, loader.Load(ctx, "#root", "a.html", nil))
	assert.Equal(t, []string{"wildcard-before:a.html", "before:#root", "after"}, fired)
}

func TestOverlappingLoadsLastWriterWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fetcher := newCountingFetcher(map[string]string{
		"slow.html": "<p>slow</p>",
		"fast.html": "<p>fast</p>",
	})
	fetcher.delays["slow.html"] = 30 * time.Millisecond
	doc := mosaic.NewMemoryDocument("#t")
	loader := mosaic.NewLoader(fetcher, doc)

	var mu sync.Mutex
	var completed []string
	loader.Hooks().On(mosaic.WildcardPath, mosaic.PhaseAfterLoad, func(_ context.Context, info mosaic.HookInfo) {
		mu.Lock()
		defer mu.Unlock()
		completed = append(completed, info.Path)
	})

	var wg sync.WaitGroup
	for _, path := range []string{"slow.html", "fast.html"} {
		path := path
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, loader.Load(ctx, "#t", path, nil))
		}()
	}
	wg.Wait()

	require.Len(t, completed, 2)
	expected := fmt.Sprintf("<p>%s</p>", completed[1][:len(completed[1])-len(".html")])
	assert.Equal(t, expected, doc.Define("#t").Content(),
		"final content should belong to whichever load completed last")
}
