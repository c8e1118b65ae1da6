package mosaic

// ComponentDef describes one unit of markup to load into a target. The
// simplest definition is just a Path, which loads that resource into the
// ambient target with the ambient context; the other fields layer on
// per-definition targeting, props, conditional inclusion, layout wrapping,
// and nested children.
type ComponentDef struct {
	// Path is the resource path of the fragment to load. A definition may
	// omit it and exist purely as a layout wrapper around Children.
	Path string `msgpack:"path"`

	// Target overrides where the fragment is written. Empty means the
	// definition renders into the target it was encountered under.
	Target string `msgpack:"target"`

	// Props is merged over the state snapshot for this definition's
	// template expansion, winning on key collisions.
	Props Context `msgpack:"props"`

	// Condition gates the definition: when it's set and false, the
	// definition and all of its Children are skipped.
	Condition *bool `msgpack:"condition"`

	// ConditionFn is the predicate form of Condition, evaluated at build
	// time. It's excluded from cache-key derivation.
	ConditionFn func() bool `msgpack:"-"`

	// Layout wraps the definition's content in a freshly created element.
	Layout *Layout `msgpack:"layout"`

	// Classes is set as the created element's class string. Implies a
	// layout wrapper even when Layout is nil.
	Classes string `msgpack:"classes"`

	// ID is set as the created element's id. Implies a layout wrapper
	// even when Layout is nil.
	ID string `msgpack:"id"`

	// Children are processed, in order, after this definition's own
	// content has been committed, using the created element (when there
	// is one) as their target.
	Children []ComponentDef `msgpack:"children"`
}

// Def wraps a bare resource path in a ComponentDef, the tagged equivalent of
// the string form of a component definition.
func Def(path string) ComponentDef {
	return ComponentDef{Path: path}
}

// included reports whether the definition's condition allows it to load.
func (d ComponentDef) included() bool {
	if d.Condition != nil && !*d.Condition {
		return false
	}
	if d.ConditionFn != nil && !d.ConditionFn() {
		return false
	}
	return true
}

// wraps reports whether the definition introduces a layout element.
func (d ComponentDef) wraps() bool {
	return d.Layout != nil || d.Classes != "" || d.ID != ""
}

// layout resolves the effective Layout for a wrapping definition, folding
// the shorthand Classes and ID fields into it.
func (d ComponentDef) layout() Layout {
	var layout Layout
	if d.Layout != nil {
		layout = *d.Layout
	}
	if d.Classes != "" {
		layout.Classes = d.Classes
	}
	if d.ID != "" {
		layout.ID = d.ID
	}
	return layout
}

// PageDef is a full page description: page-level metadata plus the ordered
// component definitions that make up the page body.
type PageDef struct {
	// Title is applied as the page title. Empty means "leave it alone".
	Title string `msgpack:"title"`

	// Description is applied as the page's meta description.
	Description string `msgpack:"description"`

	// Stylesheets are external stylesheet links applied as fire-and-forget
	// side effects before components process.
	Stylesheets []string `msgpack:"stylesheets"`

	// Key overrides the derived page-cache key.
	Key string `msgpack:"key"`

	// CacheEnabled, when set, overrides the Builder's page-cache setting
	// for this page only.
	CacheEnabled *bool `msgpack:"cacheEnabled"`

	// Components is the ordered sequence of definitions to build.
	Components []ComponentDef `msgpack:"components"`
}

// Page wraps an ordered sequence of component definitions in a PageDef with
// no metadata, the sequence form of a page definition.
func Page(defs ...ComponentDef) *PageDef {
	return &PageDef{Components: defs}
}

// Bool is a convenience for populating *bool fields like
// ComponentDef.Condition and PageDef.CacheEnabled inline.
func Bool(b bool) *bool {
	return &b
}
