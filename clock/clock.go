// Package clock provides the monotonic microsecond time source the
// controller stamps state updates with.
//
// The contract is deliberately tiny: a single Micros method that must be
// callable from any thread, including the realtime audio thread, without
// blocking or allocating. Host is the production implementation; Manual is
// a deterministic clock for tests that advances only when told to.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock yields a monotonic timestamp in microseconds. Implementations must
// be safe for concurrent use and realtime-safe: no locks, no allocation.
type Clock interface {
	Micros() int64
}

// Host reads the process-monotonic clock, reported as microseconds since
// the Host was created.
type Host struct {
	epoch time.Time
}

// NewHost creates a host clock anchored at the current instant.
func NewHost() *Host {
	return &Host{epoch: time.Now()}
}

// Micros returns microseconds elapsed since the clock was created. It uses
// the monotonic reading carried by time.Time, so wall-clock adjustments do
// not affect it.
func (h *Host) Micros() int64 {
	return time.Since(h.epoch).Microseconds()
}

// Manual is a test clock whose time moves only via Advance or Set. Safe
// for concurrent use.
type Manual struct {
	now atomic.Int64
}

// Micros returns the current manual time.
func (m *Manual) Micros() int64 { return m.now.Load() }

// Advance moves the clock forward by d microseconds.
func (m *Manual) Advance(d int64) { m.now.Add(d) }

// Set jumps the clock to an absolute value.
func (m *Manual) Set(micros int64) { m.now.Store(micros) }
