package tempolink

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaban/tempolink/clock"
	"github.com/shaban/tempolink/internal/testutil"
	"github.com/shaban/tempolink/state"
)

// checkCoherent fails the test if a snapshot shows a mix of two updates.
// Writers in these tests always submit timelines whose beat origin equals
// their time origin, so any torn combination is detectable.
func checkCoherent(t *testing.T, s state.SessionState) {
	t.Helper()
	if float64(s.Timeline.BeatOrigin) != float64(s.Timeline.TimeOrigin) {
		t.Errorf("torn snapshot observed: %+v", s)
	}
}

func correlatedTimeline(bpm float64, k int64) state.Timeline {
	return state.Timeline{
		Tempo:      state.NewTempo(bpm),
		BeatOrigin: state.Beats(float64(k)),
		TimeOrigin: k,
	}
}

func TestControllerConcurrentThreadSafeWriters(t *testing.T) {
	clk := &clock.Manual{}
	c := NewController(state.NewTempo(100.0), nil, nil, nil, clk, SyncIoContext{})
	defer c.Close()

	const (
		writers          = 8
		updatesPerWriter = 200
	)
	var (
		wg     sync.WaitGroup
		nextTs atomic.Int64
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < updatesPerWriter; i++ {
				ts := nextTs.Add(1)
				tl := correlatedTimeline(float64(100+w), ts)
				ss := state.StartStopState{IsPlaying: ts%2 == 0, Timestamp: ts}
				c.SetSessionState(state.IncomingSessionState{
					Timeline:       &tl,
					StartStopState: &ss,
					Timestamp:      ts,
				})
			}
		}(w)
	}

	stop := make(chan struct{})
	var readerWG sync.WaitGroup
	for r := 0; r < 4; r++ {
		readerWG.Add(1)
		go func() {
			defer readerWG.Done()
			for {
				select {
				case <-stop:
					return
				default:
					checkCoherent(t, c.SessionState())
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readerWG.Wait()

	final := c.SessionState()
	checkCoherent(t, final)
	// Every update carried a globally unique increasing timestamp, so any
	// valid serialization ends on the maximum one.
	maxTs := nextTs.Load()
	if got := final.StartStopState.Timestamp; got != maxTs {
		t.Fatalf("final start/stop timestamp: got %d, want %d", got, maxTs)
	}
	if bpm := final.Timeline.Tempo.BPM(); bpm < 100 || bpm > float64(100+writers) {
		t.Fatalf("final tempo %v was never submitted", bpm)
	}
}

func TestControllerRealtimePathUnderWriterPressure(t *testing.T) {
	clk := &clock.Manual{}
	c := NewController(state.NewTempo(100.0), nil, nil, nil, clk, SyncIoContext{})
	defer c.Close()

	var (
		nextTs atomic.Int64
		wg     sync.WaitGroup
		stop   = make(chan struct{})
	)

	// Non-realtime writers hammer the thread-safe path.
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				ts := nextTs.Add(1)
				tl := correlatedTimeline(float64(200+w), ts)
				c.SetSessionState(state.IncomingSessionState{Timeline: &tl, Timestamp: ts})
			}
		}(w)
	}

	// One goroutine plays the audio thread: realtime reads and writes,
	// which must stay coherent and must not be starved into corruption.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 300; i++ {
			checkCoherent(t, c.SessionStateRtSafe())
			ts := nextTs.Add(1)
			tl := correlatedTimeline(150.0, ts)
			c.SetSessionStateRtSafe(state.IncomingSessionState{Timeline: &tl, Timestamp: ts})
		}
		close(stop)
	}()

	<-stop
	wg.Wait()

	// Let the merge worker drain any queued realtime updates.
	testutil.Eventually(t, time.Second, func() bool {
		s := c.SessionState()
		return float64(s.Timeline.BeatOrigin) == float64(s.Timeline.TimeOrigin)
	}, "state never settled coherent")
	checkCoherent(t, c.SessionState())
}

func TestControllerRealtimeWriteDegradesCoherentlyWhenSaturated(t *testing.T) {
	clk := &clock.Manual{}
	c := NewController(state.NewTempo(100.0), nil, nil, nil, clk, SyncIoContext{})
	defer c.Close()

	initial := c.SessionState()

	// Park the register gate odd, as if a writer were stalled inside the
	// write section. Every bounded write attempt now fails, so realtime
	// updates detour through the pending ring until it overflows and the
	// last-resort retry fails too.
	c.reg.seq.Store(1)

	const total = int64(ringCapacity * 3)
	for ts := int64(1); ts <= total; ts++ {
		tl := correlatedTimeline(140.0, ts)
		ss := state.StartStopState{IsPlaying: true, Timestamp: ts}
		c.SetSessionStateRtSafe(state.IncomingSessionState{
			Timeline:       &tl,
			StartStopState: &ss,
			Timestamp:      ts,
		})
	}

	// Updates past every bound are dropped, and the realtime reader must
	// still be served the last coherent state, not a torn or partial one.
	if got := c.SessionStateRtSafe(); got != initial {
		t.Fatalf("saturated realtime path served %+v, want the prior state %+v", got, initial)
	}

	// Free the gate: the merge worker applies everything the ring held on
	// to, in order.
	c.reg.seq.Store(2)
	testutil.Eventually(t, time.Second, func() bool {
		return c.SessionState().StartStopState.Timestamp >= ringCapacity
	}, "queued realtime updates never applied after the gate freed")

	final := c.SessionState()
	checkCoherent(t, final)
	if ts := final.StartStopState.Timestamp; ts > total {
		t.Fatalf("final timestamp %d was never submitted", ts)
	}
}

func TestControllerRealtimeWriteVisibleToThreadSafeRead(t *testing.T) {
	clk := &clock.Manual{}
	c := NewController(state.NewTempo(100.0), nil, nil, nil, clk, SyncIoContext{})
	defer c.Close()

	// Saturate the realtime path well past the ring capacity: every update
	// must eventually be reflected, including the last one.
	var lastTs int64
	for i := 0; i < ringCapacity*4; i++ {
		lastTs = int64(i + 1)
		tl := correlatedTimeline(140.0, lastTs)
		ss := state.StartStopState{IsPlaying: true, Timestamp: lastTs}
		c.SetSessionStateRtSafe(state.IncomingSessionState{
			Timeline:       &tl,
			StartStopState: &ss,
			Timestamp:      lastTs,
		})
	}

	want := lastTs
	testutil.Eventually(t, time.Second, func() bool {
		return c.SessionState().StartStopState.Timestamp == want
	}, "last realtime update never became visible to the thread-safe path")
}
