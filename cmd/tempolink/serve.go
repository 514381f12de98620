package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"golang.org/x/sync/errgroup"

	"github.com/shaban/tempolink"
	"github.com/shaban/tempolink/clock"
	"github.com/shaban/tempolink/midibridge"
	"github.com/shaban/tempolink/state"
	"github.com/shaban/tempolink/store"
)

// serveCmd runs a controller with the OSC control surface.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a tempolink session controller",
	Long: `Run a tempolink session controller with an OSC control surface,
optional snapshot persistence and optional MIDI clock output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config := ServerConfig{}
		flags := cmd.Flags()
		flags.StringVar(&config.host, "host", "0.0.0.0", "listen address")
		flags.IntVar(&config.port, "port", DefaultPort, "listen port")
		flags.Float64Var(&config.tempo, "tempo", 120, "initial tempo in bpm")
		flags.StringVar(&config.dbPath, "db", "", "path to the snapshot database (empty disables persistence)")
		flags.StringVar(&config.midiOut, "midi-out", "", "name of a MIDI output port to clock (empty disables MIDI)")
		flags.BoolVar(&config.verbose, "verbose", false, "debug logging")

		if err := flags.Parse(args); err != nil {
			return errors.Wrap(err, "parsing flags")
		}
		srv, err := NewServer(config)
		if err != nil {
			return errors.Wrap(err, "creating server")
		}
		defer srv.Shutdown()
		return errors.Wrap(srv.Run(), "running server")
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

// ServerConfig contains configuration for a tempolink server.
type ServerConfig struct {
	host    string
	port    int
	tempo   float64
	dbPath  string
	midiOut string
	verbose bool
}

// Server glues the controller to its collaborators: the OSC surface, the
// snapshot store and the MIDI bridge.
type Server struct {
	ServerConfig

	log    *logrus.Logger
	clk    *clock.Host
	ctrl   *tempolink.Controller
	st     *store.Store
	bridge *midibridge.Bridge
	conn   osc.Conn

	closeMidi func()
}

// NewServer builds a server from its configuration. Snapshot persistence
// and MIDI output are both optional.
func NewServer(config ServerConfig) (*Server, error) {
	srv := &Server{
		ServerConfig: config,
		log:          logrus.New(),
		clk:          clock.NewHost(),
	}
	if config.verbose {
		srv.log.SetLevel(logrus.DebugLevel)
	}

	initialTempo := state.NewTempo(config.tempo)
	var restored *state.SessionState
	if config.dbPath != "" {
		st, err := store.Open(config.dbPath)
		if err != nil {
			return nil, errors.Wrap(err, "opening snapshot store")
		}
		srv.st = st
		if snap, ok, err := st.LoadSnapshot(); err != nil {
			srv.log.WithError(err).Warn("could not restore snapshot")
		} else if ok {
			initialTempo = snap.Timeline.Tempo
			restored = &snap
			srv.log.WithField("bpm", initialTempo.BPM()).Info("restored session snapshot")
		}
	}

	if config.midiOut != "" {
		if err := srv.openMidi(config.midiOut, initialTempo); err != nil {
			return nil, errors.Wrap(err, "opening midi output")
		}
	}

	io := tempolink.NewQueueIoContext(srv.log)
	srv.ctrl = tempolink.NewController(
		initialTempo,
		srv.onPeerCount,
		srv.onTempo,
		srv.onStartStop,
		srv.clk,
		io,
	)

	// Re-apply the restored transport flag so a process restart does not
	// silently flip a playing session to stopped.
	if restored != nil && restored.StartStopState.IsPlaying {
		now := srv.clk.Micros()
		ss := state.StartStopState{IsPlaying: true, Timestamp: now}
		srv.ctrl.SetSessionState(state.IncomingSessionState{StartStopState: &ss, Timestamp: now})
	}
	return srv, nil
}

func (srv *Server) openMidi(portName string, initial state.Tempo) error {
	drv, err := rtmididrv.New()
	if err != nil {
		return errors.Wrap(err, "creating midi driver")
	}
	out, err := midi.FindOutPort(portName)
	if err != nil {
		drv.Close()
		return errors.Wrapf(err, "finding midi out port %q", portName)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		drv.Close()
		return errors.Wrap(err, "binding midi sender")
	}
	srv.bridge = midibridge.New(midibridge.Sender(send), initial, srv.log)
	srv.closeMidi = func() { drv.Close() }
	return nil
}

// onTempo runs on the controller's io context for every tempo change.
func (srv *Server) onTempo(t state.Tempo) {
	srv.log.WithField("bpm", t.BPM()).Info("tempo changed")
	if srv.bridge != nil {
		srv.bridge.HandleTempo(t)
	}
	if srv.st != nil {
		if err := srv.st.RecordTempo(t.BPM(), srv.clk.Micros()); err != nil {
			srv.log.WithError(err).Warn("recording tempo history")
		}
		srv.persistSnapshot()
	}
}

// onStartStop runs on the controller's io context for transport edges.
func (srv *Server) onStartStop(playing bool) {
	srv.log.WithField("playing", playing).Info("transport changed")
	if srv.bridge != nil {
		srv.bridge.HandleStartStop(playing)
	}
	srv.persistSnapshot()
}

func (srv *Server) onPeerCount(n uint64) {
	srv.log.WithField("peers", n).Info("peer count changed")
}

func (srv *Server) persistSnapshot() {
	if srv.st == nil {
		return
	}
	if err := srv.st.SaveSnapshot(srv.ctrl.SessionState()); err != nil {
		srv.log.WithError(err).Warn("saving snapshot")
	}
}

// Run serves the OSC surface until interrupted.
func (srv *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	laddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(srv.host, strconv.Itoa(srv.port)))
	if err != nil {
		return errors.Wrap(err, "resolving listen address")
	}
	conn, err := osc.ListenUDPContext(gctx, "udp", laddr)
	if err != nil {
		return errors.Wrap(err, "creating OSC server")
	}
	srv.conn = conn
	srv.log.WithField("addr", laddr.String()).Info("listening")

	g.Go(func() error {
		return conn.Serve(1, osc.Dispatcher{
			AddressTempo:     osc.Method(srv.HandleTempo),
			AddressTransport: osc.Method(srv.HandleTransport),
			AddressState:     osc.Method(srv.HandleState),
		})
	})
	if srv.bridge != nil {
		g.Go(func() error {
			err := srv.bridge.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return gctx.Err()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases the server's collaborators.
func (srv *Server) Shutdown() {
	if srv.ctrl != nil {
		srv.ctrl.Close()
	}
	if srv.closeMidi != nil {
		srv.closeMidi()
	}
	if srv.st != nil {
		srv.st.Close()
	}
}

// HandleTempo applies a tempo change, keeping the beat phase continuous at
// the moment of the change.
func (srv *Server) HandleTempo(m osc.Message) error {
	if len(m.Arguments) < 1 {
		return errors.New("expected a bpm argument")
	}
	bpm, err := m.Arguments[0].ReadFloat32()
	if err != nil {
		return errors.Wrap(err, "reading bpm")
	}

	now := srv.clk.Micros()
	current := srv.ctrl.SessionState()
	tl := state.Timeline{
		Tempo:      state.NewTempo(float64(bpm)),
		BeatOrigin: current.Timeline.ToBeats(now),
		TimeOrigin: now,
	}
	srv.ctrl.SetSessionState(state.IncomingSessionState{Timeline: &tl, Timestamp: now})
	return nil
}

// HandleTransport starts (1) or stops (0) the shared transport.
func (srv *Server) HandleTransport(m osc.Message) error {
	if len(m.Arguments) < 1 {
		return errors.New("expected a transport argument")
	}
	v, err := m.Arguments[0].ReadInt32()
	if err != nil {
		return errors.Wrap(err, "reading transport flag")
	}

	now := srv.clk.Micros()
	ss := state.StartStopState{IsPlaying: v != 0, Timestamp: now}
	srv.ctrl.SetSessionState(state.IncomingSessionState{StartStopState: &ss, Timestamp: now})
	return nil
}

// HandleState replies with the current tempo and transport flag to the
// host and port named in the message.
func (srv *Server) HandleState(m osc.Message) error {
	if len(m.Arguments) < 2 {
		return errors.New("expected reply host and port")
	}
	host, err := m.Arguments[0].ReadString()
	if err != nil {
		return errors.Wrap(err, "reading reply host")
	}
	port, err := m.Arguments[1].ReadInt32()
	if err != nil {
		return errors.Wrap(err, "reading reply port")
	}
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return errors.Wrap(err, "resolving reply address")
	}

	s := srv.ctrl.SessionState()
	playing := int32(0)
	if s.StartStopState.IsPlaying {
		playing = 1
	}
	return errors.Wrap(srv.conn.SendTo(raddr, osc.Message{
		Address: AddressReply,
		Arguments: osc.Arguments{
			osc.String(AddressState),
			osc.Float(float32(s.Timeline.Tempo.BPM())),
			osc.Int(playing),
		},
	}), "sending state reply")
}
