// Lemuria emulates an Asphodel TCP device.
//
// It answers Asphodel commands on a TCP port from a configured device
// personality, replays recorded stream packets from capture files while the
// client has streams enabled, and responds to UDP discovery inquiries. Device
// events can be published to NATS, Redis and a WebSocket monitor.
//
// Usage:
//
//	lemuria [command] [flags]
//
// See 'lemuria --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/lemuria/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lemuria",
	Short: "Asphodel Device Emulator",
	Long: `Lemuria emulates an Asphodel TCP device for testing client software
without hardware.

The emulated device is described by a YAML configuration file (see
'lemuria init-config'). Stream data is replayed from Asphodel capture files.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// configPath is shared by every command that reads the configuration
var configPath string

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default: $XDG_CONFIG_HOME/lemuria/lemuria.yaml)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lemuria %s\n", version.Full())
	},
}
