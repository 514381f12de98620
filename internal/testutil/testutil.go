// Package testutil holds shared helpers for exercising asynchronous
// callback delivery in tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/shaban/tempolink/state"
)

// TempoRecorder collects tempo-callback invocations.
type TempoRecorder struct {
	mu     sync.Mutex
	tempos []state.Tempo
}

// Callback is the func to hand to the controller.
func (r *TempoRecorder) Callback(t state.Tempo) {
	r.mu.Lock()
	r.tempos = append(r.tempos, t)
	r.mu.Unlock()
}

// Tempos returns a copy of everything recorded so far.
func (r *TempoRecorder) Tempos() []state.Tempo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]state.Tempo(nil), r.tempos...)
}

// Len returns the number of recorded invocations.
func (r *TempoRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tempos)
}

// Reset discards everything recorded so far.
func (r *TempoRecorder) Reset() {
	r.mu.Lock()
	r.tempos = nil
	r.mu.Unlock()
}

// BoolRecorder collects start/stop-callback invocations.
type BoolRecorder struct {
	mu     sync.Mutex
	values []bool
}

// Callback is the func to hand to the controller.
func (r *BoolRecorder) Callback(v bool) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

// Values returns a copy of everything recorded so far.
func (r *BoolRecorder) Values() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.values...)
}

// Len returns the number of recorded invocations.
func (r *BoolRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Reset discards everything recorded so far.
func (r *BoolRecorder) Reset() {
	r.mu.Lock()
	r.values = nil
	r.mu.Unlock()
}

// CountRecorder collects peer-count-callback invocations.
type CountRecorder struct {
	mu     sync.Mutex
	counts []uint64
}

// Callback is the func to hand to the controller.
func (r *CountRecorder) Callback(n uint64) {
	r.mu.Lock()
	r.counts = append(r.counts, n)
	r.mu.Unlock()
}

// Counts returns a copy of everything recorded so far.
func (r *CountRecorder) Counts() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.counts...)
}

// Eventually polls cond every millisecond until it holds or the timeout
// elapses, failing the test in the latter case. Callback delivery is
// asynchronous by contract, so assertions about it need a deadline.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

// Never asserts cond stays false for the whole window. Used to check that
// a callback does not fire.
func Never(t *testing.T, window time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatalf("condition unexpectedly met: %s", msg)
		}
		time.Sleep(time.Millisecond)
	}
}
