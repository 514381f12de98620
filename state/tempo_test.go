package state

import (
	"math"
	"testing"
)

func TestNewTempoClampsLow(t *testing.T) {
	if got := NewTempo(1.0).BPM(); got != 20.0 {
		t.Fatalf("NewTempo(1.0): got %v, want 20.0", got)
	}
}

func TestNewTempoClampsHigh(t *testing.T) {
	if got := NewTempo(100000.0).BPM(); got != 999.0 {
		t.Fatalf("NewTempo(100000.0): got %v, want 999.0", got)
	}
}

func TestNewTempoNormalizesNonFiniteInput(t *testing.T) {
	if got := NewTempo(math.NaN()).BPM(); got != MinBPM {
		t.Fatalf("NewTempo(NaN): got %v, want %v", got, MinBPM)
	}
	if got := NewTempo(math.Inf(-1)).BPM(); got != MinBPM {
		t.Fatalf("NewTempo(-Inf): got %v, want %v", got, MinBPM)
	}
	if got := NewTempo(math.Inf(1)).BPM(); got != MaxBPM {
		t.Fatalf("NewTempo(+Inf): got %v, want %v", got, MaxBPM)
	}
}

func TestNewTempoInRangePassesThrough(t *testing.T) {
	for _, bpm := range []float64{20.0, 100.0, 120.5, 999.0} {
		if got := NewTempo(bpm).BPM(); got != bpm {
			t.Fatalf("NewTempo(%v): got %v, want %v", bpm, got, bpm)
		}
	}
}

func TestTempoMicrosPerBeat(t *testing.T) {
	// 120 bpm is two beats per second, half a million micros per beat.
	if got := NewTempo(120.0).MicrosPerBeat(); got != 500000.0 {
		t.Fatalf("MicrosPerBeat at 120 bpm: got %v, want 500000", got)
	}
	if got := NewTempo(60.0).MicrosPerBeat(); got != 1e6 {
		t.Fatalf("MicrosPerBeat at 60 bpm: got %v, want 1e6", got)
	}
}

func TestTempoRoundTrip(t *testing.T) {
	tempo := NewTempo(97.3)
	beats := Beats(13.25)
	micros := tempo.BeatsToMicros(beats)
	back := tempo.MicrosToBeats(micros)
	if math.Abs(float64(back-beats)) > 1e-6 {
		t.Fatalf("beats->micros->beats: got %v, want %v", back, beats)
	}
}

func TestTempoEquality(t *testing.T) {
	if NewTempo(100.0) != NewTempo(100.0) {
		t.Fatal("equal tempos must compare equal")
	}
	if NewTempo(100.0) == NewTempo(101.0) {
		t.Fatal("different tempos must not compare equal")
	}
	// Clamped constructions collapse onto the bound.
	if NewTempo(5.0) != NewTempo(20.0) {
		t.Fatal("clamped tempo must equal the bound")
	}
}
