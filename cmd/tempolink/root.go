package main

import (
	"github.com/spf13/cobra"
)

// OSC control surface of a running tempolink instance. This is a local
// control API; the peer-to-peer session exchange is a separate layer with
// its own format.
const (
	// DefaultPort is the UDP port the serve command listens on.
	DefaultPort = 20808

	AddressTempo     = "/tempolink/tempo"
	AddressTransport = "/tempolink/transport"
	AddressState     = "/tempolink/state"
	AddressReply     = "/reply"
)

// RootCmd is the base command of the tempolink CLI.
var RootCmd = &cobra.Command{
	Use:   "tempolink",
	Short: "Shared tempo and transport state over a local OSC control surface",
	Long: `tempolink runs a session state controller that keeps tempo, beat phase
and transport consistent for realtime consumers, and exposes it over a
small OSC control surface for tools and scripts.`,
	SilenceUsage: true,
}
