// Package tempolink keeps a shared musical tempo, beat phase, and
// transport state consistent between a realtime audio thread, the
// application's own goroutines, and an asynchronous peer layer.
//
// The Controller owns the canonical session state and exposes it through
// two protocols: a blocking thread-safe one for ordinary goroutines and a
// wait-free realtime-safe one for the audio callback. Conflicting updates
// are resolved by timestamp ordering, and change notifications reach
// client callbacks through an io context, never from the realtime thread.
//
// Peer discovery, the state gossip between machines, and clock-offset
// estimation live outside this package; see the peers package for the
// registry the discovery layer feeds, and cmd/tempolink for a runnable
// control surface.
package tempolink
