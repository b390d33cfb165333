// Package audio owns the process-wide playback graph: one shared output
// context, one cached source per audio asset, and cheap per-visualizer
// analyser taps.
//
// The shape of this package is dictated by a hard platform constraint: the
// underlying output context may be created at most once per process, and a
// given source may be wrapped by at most one playback feed for its entire
// lifetime. Wrapping a source twice would double-consume its sample stream.
// The [Registry] enforces both invariants with idempotent get-or-create
// semantics so call sites may re-attach freely across view remounts.
//
// Analyser taps are the opposite: they are cheap, created fresh on every
// attachment, owned by the requesting visualizer, and detached on its
// teardown. Taps observe the sample stream as the feed pulls it; they never
// own or tear down the shared source or context.
package audio
