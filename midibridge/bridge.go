// Package midibridge turns session callbacks into outgoing MIDI realtime
// messages, so hardware that only speaks MIDI clock can follow the shared
// tempo and transport.
//
// Wire the bridge's HandleTempo and HandleStartStop as (or from) the
// controller's callbacks, give it a Sender bound to an output port, and
// run its clock loop. While the transport is playing, it emits the
// standard 24 timing clocks per quarter note.
package midibridge

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"

	"github.com/shaban/tempolink/state"
)

// ClocksPerBeat is the MIDI beat clock rate: 24 pulses per quarter note.
const ClocksPerBeat = 24

// Sender delivers one MIDI message to the output port.
type Sender func(msg midi.Message) error

// Bridge converts tempo and transport changes into MIDI messages.
type Bridge struct {
	send Sender
	log  *logrus.Logger

	mu       sync.Mutex
	interval time.Duration
	playing  bool

	retune chan struct{}
}

// New creates a bridge ticking at the given initial tempo. Send failures
// are logged and do not stop the clock.
func New(send Sender, initial state.Tempo, log *logrus.Logger) *Bridge {
	if log == nil {
		log = logrus.New()
	}
	return &Bridge{
		send:     send,
		log:      log,
		interval: clockInterval(initial),
		retune:   make(chan struct{}, 1),
	}
}

// clockInterval is the time between two TimingClock messages at t.
func clockInterval(t state.Tempo) time.Duration {
	return time.Duration(t.MicrosPerBeat()/ClocksPerBeat) * time.Microsecond
}

// Interval returns the current time between clock pulses.
func (b *Bridge) Interval() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interval
}

// Playing reports whether the bridge is currently emitting clock pulses.
func (b *Bridge) Playing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playing
}

// HandleTempo retunes the clock. Suitable as the controller's
// tempo-changed callback.
func (b *Bridge) HandleTempo(t state.Tempo) {
	b.mu.Lock()
	b.interval = clockInterval(t)
	b.mu.Unlock()
	select {
	case b.retune <- struct{}{}:
	default:
	}
}

// HandleStartStop sends MIDI Start or Stop and gates the clock. Suitable
// as the controller's start-stop-changed callback.
func (b *Bridge) HandleStartStop(playing bool) {
	b.mu.Lock()
	was := b.playing
	b.playing = playing
	b.mu.Unlock()
	if was == playing {
		return
	}
	msg := midi.Stop()
	if playing {
		msg = midi.Start()
	}
	if err := b.send(msg); err != nil {
		b.log.WithError(err).Warn("midi transport message failed")
	}
}

// Run emits TimingClock pulses at the current interval while playing,
// until ctx is canceled. The ticker is rebuilt when the tempo changes.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.retune:
			ticker.Reset(b.Interval())
		case <-ticker.C:
			if !b.Playing() {
				continue
			}
			if err := b.send(midi.TimingClock()); err != nil {
				b.log.WithError(err).Warn("midi clock pulse failed")
			}
		}
	}
}
