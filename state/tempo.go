package state

import "math"

// Legal tempo range in beats per minute. Values outside the range are
// clamped at construction, never rejected.
const (
	MinBPM = 20.0
	MaxBPM = 999.0
)

// Tempo is a musical speed in beats per minute. The zero value is not a
// valid tempo; always construct through NewTempo, which clamps to
// [MinBPM, MaxBPM]. Tempo is a plain value and compares with ==.
type Tempo struct {
	bpm float64
}

// NewTempo returns a Tempo clamped to the legal range. NaN maps to the
// lower bound; it would otherwise slip through both comparisons and break
// every derived duration.
func NewTempo(bpm float64) Tempo {
	if math.IsNaN(bpm) || bpm < MinBPM {
		bpm = MinBPM
	}
	if bpm > MaxBPM {
		bpm = MaxBPM
	}
	return Tempo{bpm: bpm}
}

// BPM returns the tempo in beats per minute.
func (t Tempo) BPM() float64 { return t.bpm }

// MicrosPerBeat returns the duration of one beat in microseconds.
func (t Tempo) MicrosPerBeat() float64 { return 60e6 / t.bpm }

// MicrosToBeats converts a duration in microseconds to a beat distance.
func (t Tempo) MicrosToBeats(micros int64) Beats {
	return Beats(float64(micros) / t.MicrosPerBeat())
}

// BeatsToMicros converts a beat distance to a duration in microseconds.
func (t Tempo) BeatsToMicros(beats Beats) int64 {
	return int64(float64(beats) * t.MicrosPerBeat())
}

// clamped re-applies the range clamp. It exists to normalize zero-value
// Tempos that sneak in through struct literals.
func (t Tempo) clamped() Tempo { return NewTempo(t.bpm) }

// Beats is a position on the shared musical timeline.
type Beats float64
