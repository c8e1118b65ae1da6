// Package mosaic builds web pages out of fragment files at runtime, with no
// build step in between.
//
// mosaic is organized around component definitions and the pipeline that
// renders them. A component definition points at a fragment resource and says
// where it goes; the Loader fetches the fragment (through a FileCache that
// gates network trips), expands it through the template Engine, writes the
// result into its Target, and then discovers whatever nested components,
// stylesheets, and scripts the new markup declares. The Builder sits above
// that, composing whole pages from trees of definitions: conditional
// inclusion, layout wrappers, page metadata, and a PageCache that can write a
// previously built page back without touching any component at all.
//
// Templates are plain text with three kinds of syntax: [[#if expr]] blocks,
// [[#each expr as name]] blocks, and {{identifier}} placeholders. Expressions
// evaluate against a Context built fresh for each expansion by merging the
// caller's props over a snapshot of the Store, a registry of named reactive
// values with subscriptions, computed derivations, and bindings that push
// values straight into Targets when they change.
//
// The pieces that genuinely belong to a browser — fetching resource text,
// mutating the page, running script — stay behind the Fetcher, Document,
// Target, and ScriptRunner interfaces. In-memory implementations of all of
// them ship with the package, so a component tree can be exercised entirely
// from a test.
package mosaic
