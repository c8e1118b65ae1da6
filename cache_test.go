package mosaic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impractical.co/mosaic"
)

func TestFileCache(t *testing.T) {
	t.Parallel()

	cache := mosaic.NewFileCache(true)

	_, ok := cache.Get("a.html")
	assert.False(t, ok)

	cache.Set("a.html", "<p>a</p>")
	content, ok := cache.Get("a.html")
	require.True(t, ok)
	assert.Equal(t, "<p>a</p>", content)

	// entries replace wholesale
	cache.Set("a.html", "<p>replaced</p>")
	content, _ = cache.Get("a.html")
	assert.Equal(t, "<p>replaced</p>", content)

	cache.Clear()
	_, ok = cache.Get("a.html")
	assert.False(t, ok)
}

func TestFileCacheDisabled(t *testing.T) {
	t.Parallel()

	cache := mosaic.NewFileCache(false)
	assert.False(t, cache.Enabled())

	cache.Set("a.html", "<p>a</p>")
	_, ok := cache.Get("a.html")
	assert.False(t, ok, "a disabled cache should not store")

	cache.Enable()
	require.True(t, cache.Enabled())
	cache.Set("a.html", "<p>a</p>")
	_, ok = cache.Get("a.html")
	assert.True(t, ok)

	cache.Disable()
	_, ok = cache.Get("a.html")
	assert.False(t, ok, "a disabled cache should always miss")
}

func TestPageKeyDeterministic(t *testing.T) {
	t.Parallel()

	def := func() *mosaic.PageDef {
		return &mosaic.PageDef{
			Title: "Home",
			Components: []mosaic.ComponentDef{
				{Path: "hero.html", Props: mosaic.Context{"b": 2, "a": 1, "c": 3}},
				{Path: "footer.html"},
			},
		}
	}

	first := mosaic.PageKey(def(), "#root")
	second := mosaic.PageKey(def(), "#root")
	assert.Equal(t, first, second, "the same definition and target should always derive the same key")

	assert.NotEqual(t, first, mosaic.PageKey(def(), "#other"), "target identity is part of the key")

	changed := def()
	changed.Components[0].Props["a"] = 99
	assert.NotEqual(t, first, mosaic.PageKey(changed, "#root"))
}

func TestPageKeyIgnoresPredicates(t *testing.T) {
	t.Parallel()

	withFn := &mosaic.PageDef{
		Components: []mosaic.ComponentDef{
			{Path: "a.html", ConditionFn: func() bool { return true }},
		},
	}
	withoutFn := &mosaic.PageDef{
		Components: []mosaic.ComponentDef{
			{Path: "a.html"},
		},
	}
	assert.Equal(t, mosaic.PageKey(withoutFn, "#root"), mosaic.PageKey(withFn, "#root"))
}
