package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"
	"github.com/spf13/cobra"
)

// tempoCmd sets or queries the tempo of a running tempolink instance.
var tempoCmd = &cobra.Command{
	Use:   "tempo [bpm]",
	Short: "Set or read the tempo of a running tempolink instance",
	Long: `With a bpm argument, set the tempo. Without one, query the instance
and print the current tempo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			flags = cmd.Flags()
			host  string
			port  int
		)
		flags.StringVar(&host, "host", "127.0.0.1", "address of the tempolink instance")
		flags.IntVar(&port, "port", DefaultPort, "port of the tempolink instance")

		if err := flags.Parse(args); err != nil {
			return errors.Wrap(err, "parsing flags")
		}
		addr := net.JoinHostPort(host, strconv.Itoa(port))

		if len(flags.Args()) == 0 {
			s, err := queryState(addr)
			if err != nil {
				return err
			}
			fmt.Printf("%g\n", s.tempo)
			return nil
		}

		bpm, err := strconv.ParseFloat(flags.Args()[0], 32)
		if err != nil {
			return errors.Wrapf(err, "parsing bpm %q", flags.Args()[0])
		}
		return sendMessage(addr, osc.Message{
			Address: AddressTempo,
			Arguments: osc.Arguments{
				osc.Float(float32(bpm)),
			},
		})
	},
}

func init() {
	RootCmd.AddCommand(tempoCmd)
}

// sendMessage fires one OSC message at a tempolink instance.
func sendMessage(addr string, m osc.Message) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return errors.Wrap(err, "resolving remote address")
	}
	conn, err := osc.DialUDP("udp", nil, raddr)
	if err != nil {
		return errors.Wrap(err, "dialing instance")
	}
	defer conn.Close()
	return errors.Wrap(conn.Send(m), "sending message")
}

// instanceState is the answer to a state query.
type instanceState struct {
	tempo   float64
	playing bool
}

// queryState asks a running instance for its current state and waits
// briefly for the reply.
func queryState(addr string) (instanceState, error) {
	laddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		return instanceState{}, errors.Wrap(err, "resolving local address")
	}
	conn, err := osc.ListenUDP("udp", laddr)
	if err != nil {
		return instanceState{}, errors.Wrap(err, "creating reply listener")
	}
	defer conn.Close()

	var (
		result  = make(chan instanceState, 1)
		errchan = make(chan error, 1)
	)
	go func() {
		if err := conn.Serve(1, osc.Dispatcher{
			AddressReply: osc.Method(handleStateReply(result)),
		}); err != nil {
			errchan <- err
		}
	}()

	lport := conn.LocalAddr().(*net.UDPAddr).Port
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return instanceState{}, errors.Wrap(err, "resolving remote address")
	}
	if err := conn.SendTo(raddr, osc.Message{
		Address: AddressState,
		Arguments: osc.Arguments{
			osc.String("127.0.0.1"),
			osc.Int(int32(lport)),
		},
	}); err != nil {
		return instanceState{}, errors.Wrap(err, "sending state query")
	}

	select {
	case s := <-result:
		return s, nil
	case err := <-errchan:
		return instanceState{}, errors.Wrap(err, "serving reply listener")
	case <-time.After(2 * time.Second):
		return instanceState{}, errors.New("timeout waiting for state reply")
	}
}

// handleStateReply parses the /reply message from a state query.
func handleStateReply(result chan<- instanceState) func(osc.Message) error {
	return func(m osc.Message) error {
		if len(m.Arguments) < 3 {
			return errors.New("expected at least 3 arguments in state reply")
		}
		address, err := m.Arguments[0].ReadString()
		if err != nil {
			return errors.Wrap(err, "reading reply address")
		}
		if address != AddressState {
			return nil
		}
		tempo, err := m.Arguments[1].ReadFloat32()
		if err != nil {
			return errors.Wrap(err, "reading tempo")
		}
		playing, err := m.Arguments[2].ReadInt32()
		if err != nil {
			return errors.Wrap(err, "reading transport flag")
		}
		select {
		case result <- instanceState{tempo: float64(tempo), playing: playing != 0}:
		default:
		}
		return nil
	}
}
