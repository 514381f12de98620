package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"
	"github.com/spf13/cobra"
)

// transportCmd starts or stops the shared transport.
var transportCmd = &cobra.Command{
	Use:   "transport (start|stop)",
	Short: "Start or stop the transport of a running tempolink instance",
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
		if len(flags.Args()) != 1 {
			return errors.New("expected exactly one argument: start or stop")
		}

		var playing int32
		switch flags.Args()[0] {
		case "start":
			playing = 1
		case "stop":
			playing = 0
		default:
			return fmt.Errorf("unknown transport command %q", flags.Args()[0])
		}

		addr := net.JoinHostPort(host, strconv.Itoa(port))
		return sendMessage(addr, osc.Message{
			Address: AddressTransport,
			Arguments: osc.Arguments{
				osc.Int(playing),
			},
		})
	},
}

func init() {
	RootCmd.AddCommand(transportCmd)
}
