package state

// SessionState is the canonical pair of Timeline and StartStopState. It is
// the only shape the controller ever reports to readers: always fully
// defined, never partially updated in place.
type SessionState struct {
	Timeline       Timeline
	StartStopState StartStopState
}

// IncomingSessionState is a candidate update to a SessionState. Nil fields
// mean "no opinion": the corresponding field of the current state is left
// untouched. Timestamp is the origin time of the update as a whole.
type IncomingSessionState struct {
	Timeline       *Timeline
	StartStopState *StartStopState
	Timestamp      int64 // microseconds
}

// Apply resolves an incoming update against s and returns the next state.
//
// A present Timeline replaces the stored one wholesale; tempo and phase
// always travel together. A present StartStopState is accepted only when
// its timestamp is strictly greater than the stored one; an equal or older
// timestamp is stale (a late or duplicated delivery from an independent
// source) and is discarded. Absent fields leave s unchanged.
func (s SessionState) Apply(in IncomingSessionState) SessionState {
	next := s
	if in.Timeline != nil {
		next.Timeline = *in.Timeline
		next.Timeline.Tempo = next.Timeline.Tempo.clamped()
	}
	if in.StartStopState != nil && in.StartStopState.Timestamp > s.StartStopState.Timestamp {
		next.StartStopState = *in.StartStopState
	}
	return next
}
