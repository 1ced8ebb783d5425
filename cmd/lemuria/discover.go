package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/lemuria/internal/discovery"
	"github.com/muurk/lemuria/internal/ui"
)

var (
	discoverTimeout time.Duration
	discoverMDNS    bool
	discoverTargets []string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find Asphodel devices on the network",
	Long: `Find Asphodel TCP devices, real or emulated, by sending a UDP inquiry
to the discovery multicast group and the broadcast address. With --mdns the
_asphodel._tcp mDNS service is browsed instead.`,
	Example: `  # Inquiry with the default 2 second timeout
  lemuria discover

  # Ask one host directly
  lemuria discover --target 192.168.1.40:5760

  # Browse mDNS for 5 seconds
  lemuria discover --mdns --timeout 5s`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultInquiryTimeout, "How long to wait for replies")
	discoverCmd.Flags().BoolVar(&discoverMDNS, "mdns", false, "Browse mDNS instead of sending a UDP inquiry")
	discoverCmd.Flags().StringSliceVar(&discoverTargets, "target", nil, "Inquiry destination host:port (repeatable)")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout())

	var (
		devices []*discovery.Device
		err     error
	)
	if discoverMDNS {
		scanner := discovery.NewScanner()
		scanner.Timeout = discoverTimeout
		devices, err = scanner.ScanForDevicesWithContext(cmd.Context())
	} else {
		q := discovery.NewInquirer()
		q.Timeout = discoverTimeout
		if len(discoverTargets) > 0 {
			q.Targets = discoverTargets
		}
		devices, err = q.Inquire(cmd.Context())
	}
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(devices) == 0 {
		p.Print(ui.NewWarningResult("No devices found").AddDetail("Timeout", discoverTimeout.String()))
		return nil
	}

	table := ui.NewTable("SERIAL", "NAME", "BOARD", "ADDRESS", "STATE")
	for _, d := range devices {
		state := "available"
		if d.Connected {
			state = "in use"
		}
		table.AddRow(d.Serial, d.DisplayName(), fmt.Sprintf("%s rev %d", d.Board, d.BoardRevision), d.Address(), state)
	}
	p.Print(table)
	return nil
}
