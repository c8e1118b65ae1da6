package mosaic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impractical.co/mosaic"
)

func TestStoreSetEqualValueIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mosaic.NewStore()
	store.Create("n", 1)

	var calls int
	store.Subscribe("n", func(_, _ any) {
		calls++
	})

	store.Set(ctx, "n", 1)
	assert.Zero(t, calls, "setting the current value should not notify")

	store.Set(ctx, "n", 2)
	assert.Equal(t, 1, calls)
}

func TestStoreSubscribersGetNewAndOld(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mosaic.NewStore()
	store.Create("n", 1)

	type change struct {
		newValue any
		oldValue any
	}
	var first, second []change
	store.Subscribe("n", func(newValue, oldValue any) {
		first = append(first, change{newValue, oldValue})
	})
	store.Subscribe("n", func(newValue, oldValue any) {
		second = append(second, change{newValue, oldValue})
	})

	store.Set(ctx, "n", 2)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, change{2, 1}, first[0])
	assert.Equal(t, change{2, 1}, second[0])
}

func TestStoreUnsubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mosaic.NewStore()
	store.Create("n", 1)

	var calls int
	sub := store.Subscribe("n", func(_, _ any) {
		calls++
	})
	store.Unsubscribe(sub)
	store.Set(ctx, "n", 2)
	assert.Zero(t, calls)

	// unsubscribing again is a silent no-op
	store.Unsubscribe(sub)
	store.Unsubscribe(mosaic.Subscription{})
}

func TestStoreGetUnknownName(t *testing.T) {
	t.Parallel()

	store := mosaic.NewStore()
	assert.Nil(t, store.Get("never-created"))

	// setting a name that was never created doesn't create it
	store.Set(context.Background(), "never-created", 1)
	assert.Nil(t, store.Get("never-created"))
}

func TestStoreSubscriberPanicIsContained(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mosaic.NewStore()
	store.Create("n", 1)

	var called bool
	store.Subscribe("n", func(_, _ any) {
		panic("subscriber exploded")
	})
	store.Subscribe("n", func(_, _ any) {
		called = true
	})

	require.NotPanics(t, func() {
		store.Set(ctx, "n", 2)
	})
	assert.True(t, called, "a panicking subscriber should not starve the others")
	assert.Equal(t, 2, store.Get("n"))
}

func TestStoreComputed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mosaic.NewStore()
	store.Create("a", 3)

	store.Computed(ctx, "double", []string{"a"}, func(deps ...any) any {
		return deps[0].(int) * 2
	})
	assert.Equal(t, 6, store.Get("double"), "computed entries compute immediately")

	store.Set(ctx, "a", 5)
	assert.Equal(t, 10, store.Get("double"), "computed entries recompute on dependency change")
}

func TestStoreComputedChains(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mosaic.NewStore()
	store.Create("a", 1)

	store.Computed(ctx, "b", []string{"a"}, func(deps ...any) any {
		return deps[0].(int) + 1
	})
	store.Computed(ctx, "c", []string{"b"}, func(deps ...any) any {
		return deps[0].(int) * 10
	})
	assert.Equal(t, 20, store.Get("c"))

	store.Set(ctx, "a", 4)
	assert.Equal(t, 5, store.Get("b"))
	assert.Equal(t, 50, store.Get("c"))
}

func TestStoreComputedFanOutOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mosaic.NewStore()
	store.Create("dep", 0)

	var order []string
	store.Computed(ctx, "first", []string{"dep"}, func(deps ...any) any {
		order = append(order, "first")
		return deps[0]
	})
	store.Computed(ctx, "second", []string{"dep"}, func(deps ...any) any {
		order = append(order, "second")
		return deps[0]
	})

	order = nil
	store.Set(ctx, "dep", 1)
	assert.Equal(t, []string{"first", "second"}, order, "fan-out should follow registration order")
}

func TestStoreBind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	doc := mosaic.NewMemoryDocument("#text", "#html", "#attr", "#style", "#class")
	store := mosaic.NewStore()
	store.Create("msg", "<b>hi</b>")
	store.Create("width", "10px")
	store.Create("cls", "a b")

	textTarget := doc.Define("#text")
	store.Bind(textTarget, "msg", mosaic.BindText)
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", textTarget.Content(), "binding should push the current value immediately")

	htmlTarget := doc.Define("#html")
	store.Bind(htmlTarget, "msg", mosaic.BindHTML)
	assert.Equal(t, "<b>hi</b>", htmlTarget.Content())

	attrTarget := doc.Define("#attr")
	store.Bind(attrTarget, "width", mosaic.BindAttribute("data-width"))
	assert.Equal(t, "10px", attrTarget.Attribute("data-width"))

	styleTarget := doc.Define("#style")
	store.Bind(styleTarget, "width", mosaic.BindStyle("max-width"))
	assert.Equal(t, "10px", styleTarget.StyleValue("max-width"))

	classTarget := doc.Define("#class")
	store.Bind(classTarget, "cls", mosaic.BindClass)
	assert.Equal(t, "a b", classTarget.Classes())

	store.Set(ctx, "msg", "changed")
	assert.Equal(t, "changed", textTarget.Content())
	assert.Equal(t, "changed", htmlTarget.Content())

	store.Set(ctx, "width", "20px")
	assert.Equal(t, "20px", attrTarget.Attribute("data-width"))
	assert.Equal(t, "20px", styleTarget.StyleValue("max-width"))
}

func TestStoreSnapshotAndReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mosaic.NewStore()
	store.Create("a", 1)
	store.Create("b", "two")

	snapshot := store.Snapshot()
	assert.Equal(t, mosaic.Context{"a": 1, "b": "two"}, snapshot)

	// the snapshot is a copy, not a window
	store.Set(ctx, "a", 99)
	assert.Equal(t, 1, snapshot["a"])

	var calls int
	store.Subscribe("a", func(_, _ any) {
		calls++
	})
	store.Reset()
	assert.Nil(t, store.Get("a"))
	store.Create("a", 1)
	store.Set(ctx, "a", 2)
	assert.Zero(t, calls, "reset should clear subscribers too")
}

func TestStoreCreateOverwrites(t *testing.T) {
	t.Parallel()

	store := mosaic.NewStore()
	store.Create("n", 1)
	store.Create("n", "replaced")
	assert.Equal(t, "replaced", store.Get("n"))
}
