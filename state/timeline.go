package state

// Timeline is an affine mapping between host time and beat position,
// parameterized by a tempo and an origin pair. A Timeline is always
// replaced as a whole unit; its fields are never merged individually.
type Timeline struct {
	Tempo      Tempo
	BeatOrigin Beats
	TimeOrigin int64 // host time in microseconds
}

// ToBeats converts a host timestamp in microseconds to a beat position.
func (tl Timeline) ToBeats(micros int64) Beats {
	return tl.BeatOrigin + tl.Tempo.MicrosToBeats(micros-tl.TimeOrigin)
}

// FromBeats converts a beat position back to a host timestamp in
// microseconds.
func (tl Timeline) FromBeats(beats Beats) int64 {
	return tl.TimeOrigin + tl.Tempo.BeatsToMicros(beats-tl.BeatOrigin)
}

// StartStopState is the transport flag paired with the host timestamp at
// which it became effective. The timestamp is what causal comparisons
// between competing updates are made on.
type StartStopState struct {
	IsPlaying bool
	Timestamp int64 // microseconds
}
