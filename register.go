package tempolink

import (
	"math"
	"runtime"
	"sync/atomic"

	"github.com/shaban/tempolink/state"
)

// Spin bounds for the two concurrency domains. Non-realtime callers retry
// forever (yielding between rounds); realtime callers give up after the
// bound and fall back per the caller's degradation rule.
const (
	readSpins     = 64
	writeSpins    = 64
	rtReadSpins   = 16
	rtWriteSpins  = 16
	rtWriteSpins2 = 128 // last-resort bound when both handoff rings are full
)

// sessionRegister holds the one canonical SessionState behind a seqlock.
//
// The sequence word is even while the register is stable and odd while a
// write is in flight. Writers win the gate with a CAS to odd, perform the
// whole read-modify-write inside the critical section, and release with a
// store back to even. Readers snapshot the sequence, copy the words, and
// accept the copy only if the sequence did not move. The state itself is
// stored word-wise in atomics so a copy concurrent with a write is merely
// discarded by the sequence check, never undefined.
//
// Because conflict resolution runs inside the write section, the order in
// which writers take the gate is the serialization order of updates.
type sessionRegister struct {
	seq atomic.Uint64

	// SessionState flattened to machine words:
	// 0 tempo bits, 1 beat-origin bits, 2 time origin,
	// 3 start/stop timestamp, 4 is-playing flag.
	words [5]atomic.Uint64
}

// init seeds the register before any concurrent access.
func (r *sessionRegister) init(s state.SessionState) {
	r.store(s)
}

func (r *sessionRegister) store(s state.SessionState) {
	r.words[0].Store(math.Float64bits(s.Timeline.Tempo.BPM()))
	r.words[1].Store(math.Float64bits(float64(s.Timeline.BeatOrigin)))
	r.words[2].Store(uint64(s.Timeline.TimeOrigin))
	r.words[3].Store(uint64(s.StartStopState.Timestamp))
	var playing uint64
	if s.StartStopState.IsPlaying {
		playing = 1
	}
	r.words[4].Store(playing)
}

func (r *sessionRegister) load() state.SessionState {
	return state.SessionState{
		Timeline: state.Timeline{
			Tempo:      state.NewTempo(math.Float64frombits(r.words[0].Load())),
			BeatOrigin: state.Beats(math.Float64frombits(r.words[1].Load())),
			TimeOrigin: int64(r.words[2].Load()),
		},
		StartStopState: state.StartStopState{
			IsPlaying: r.words[4].Load() != 0,
			Timestamp: int64(r.words[3].Load()),
		},
	}
}

// tryRead attempts a coherent snapshot within at most spins rounds.
func (r *sessionRegister) tryRead(spins int) (state.SessionState, bool) {
	for i := 0; i < spins; i++ {
		s0 := r.seq.Load()
		if s0&1 != 0 {
			continue
		}
		snap := r.load()
		if r.seq.Load() == s0 {
			return snap, true
		}
	}
	return state.SessionState{}, false
}

// read spins until a coherent snapshot is obtained. Non-realtime callers
// only; it yields the processor between rounds.
func (r *sessionRegister) read() state.SessionState {
	for {
		if s, ok := r.tryRead(readSpins); ok {
			return s
		}
		runtime.Gosched()
	}
}

// tryUpdate applies in against the current state inside the write section,
// if the gate can be taken within spins attempts. The gate is only ever
// held for the duration of a conflict resolution over five words, so a
// failure here means heavy contention, not deadlock.
func (r *sessionRegister) tryUpdate(spins int, in state.IncomingSessionState) (prev, next state.SessionState, ok bool) {
	for i := 0; i < spins; i++ {
		s0 := r.seq.Load()
		if s0&1 != 0 {
			continue
		}
		if !r.seq.CompareAndSwap(s0, s0+1) {
			continue
		}
		prev = r.load()
		next = prev.Apply(in)
		if next != prev {
			r.store(next)
		}
		r.seq.Store(s0 + 2)
		return prev, next, true
	}
	return state.SessionState{}, state.SessionState{}, false
}

// update is tryUpdate with an unbounded gate wait. Non-realtime callers
// only.
func (r *sessionRegister) update(in state.IncomingSessionState) (prev, next state.SessionState) {
	for {
		if p, n, ok := r.tryUpdate(writeSpins, in); ok {
			return p, n
		}
		runtime.Gosched()
	}
}
