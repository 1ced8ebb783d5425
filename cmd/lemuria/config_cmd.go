package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/lemuria/internal/config"
	"github.com/muurk/lemuria/internal/ui"
)

var initConfigForce bool

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a default configuration file",
	Long: `Write a complete default configuration describing a single-channel
strain gauge device. Edit the file to change the emulated personality.

Without a path the file is written to the default configuration location.`,
	Example: `  # Write to the default location
  lemuria init-config

  # Write next to a capture set, replacing any existing file
  lemuria init-config ./bench.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInitConfig,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate a configuration file",
	RunE:  runCheckConfig,
}

func init() {
	initConfigCmd.Flags().BoolVarP(&initConfigForce, "force", "f", false, "Overwrite an existing file without asking")

	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		var err error
		path, err = config.GetConfigPath()
		if err != nil {
			return err
		}
	}

	p := ui.NewPrinter(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil && !initConfigForce {
		if !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("%s exists. Overwrite?", path)) {
			return nil
		}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}

	p.PrintSuccess("Configuration written",
		ui.Detail{Key: "Path", Value: path},
		ui.Detail{Key: "Next", Value: "lemuria serve --config " + path},
	)
	return nil
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout())

	cfg, err := config.Load(configPath)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			p.PrintError("Invalid configuration", verr.Err, "Check the "+verr.Field+" setting")
		}
		return err
	}
	if _, err := cfg.Device.Personality(); err != nil {
		return err
	}

	d := cfg.Device
	p.PrintSuccess("Configuration is valid",
		ui.Detail{Key: "Serial", Value: d.SerialNumber},
		ui.Detail{Key: "Board", Value: fmt.Sprintf("%s rev %d", d.BoardName, d.BoardRevision)},
		ui.Detail{Key: "Streams", Value: fmt.Sprint(len(d.Streams))},
		ui.Detail{Key: "Channels", Value: fmt.Sprint(len(d.Channels))},
		ui.Detail{Key: "NVM", Value: fmt.Sprintf("%d bytes", d.NVMSize)},
	)
	return nil
}
