package main

import (
	"github.com/spf13/cobra"

	"github.com/muurk/lemuria/internal/config"
	"github.com/muurk/lemuria/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch [monitor-addr]",
	Short: "Watch a running emulator",
	Long: `Open a live view of a running emulator's session, streams and events.

The monitor address defaults to server.http_addr from the configuration.`,
	Example: `  lemuria watch
  lemuria watch 192.168.1.40:8760`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var addr string
	if len(args) == 1 {
		addr = args[0]
	} else {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		addr = cfg.Server.HTTPAddr
	}

	client, err := tui.NewClient(addr)
	if err != nil {
		return err
	}
	return tui.Run(client)
}
