package clock

import (
	"testing"
	"time"
)

func TestHostStartsNearZero(t *testing.T) {
	h := NewHost()
	if got := h.Micros(); got < 0 || got > int64(time.Second/time.Microsecond) {
		t.Fatalf("fresh host clock: got %d micros, want small non-negative", got)
	}
}

func TestHostIsMonotonic(t *testing.T) {
	h := NewHost()
	prev := h.Micros()
	for i := 0; i < 1000; i++ {
		now := h.Micros()
		if now < prev {
			t.Fatalf("clock went backwards: %d after %d", now, prev)
		}
		prev = now
	}
}

func TestHostAdvancesWithRealTime(t *testing.T) {
	h := NewHost()
	start := h.Micros()
	time.Sleep(5 * time.Millisecond)
	if got := h.Micros(); got-start < 4000 {
		t.Fatalf("clock advanced %d micros across a 5ms sleep", got-start)
	}
}

func TestManualStartsAtZero(t *testing.T) {
	var m Manual
	if got := m.Micros(); got != 0 {
		t.Fatalf("fresh manual clock: got %d, want 0", got)
	}
}

func TestManualAdvanceAndSet(t *testing.T) {
	var m Manual
	m.Advance(5)
	if got := m.Micros(); got != 5 {
		t.Fatalf("after Advance(5): got %d, want 5", got)
	}
	m.Advance(2)
	if got := m.Micros(); got != 7 {
		t.Fatalf("after Advance(2): got %d, want 7", got)
	}
	m.Set(100)
	if got := m.Micros(); got != 100 {
		t.Fatalf("after Set(100): got %d, want 100", got)
	}
}
