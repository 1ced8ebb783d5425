package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/muurk/lemuria/internal/playback"
	"github.com/muurk/lemuria/internal/ui"
)

var capturesPattern string

var capturesCmd = &cobra.Command{
	Use:   "captures <dir>",
	Short: "Summarize a directory of capture files",
	Long: `Index the capture files in a directory the same way serve does and
print each file's start time, packet count and time span.`,
	Example: `  lemuria captures ./captures
  lemuria captures ./captures --pattern '*.apd.xz'`,
	Args: cobra.ExactArgs(1),
	RunE: runCaptures,
}

func init() {
	capturesCmd.Flags().StringVar(&capturesPattern, "pattern", playback.DefaultPattern, "Capture file glob")

	rootCmd.AddCommand(capturesCmd)
}

func runCaptures(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout())

	idx, err := playback.LoadIndex(args[0], capturesPattern)
	if err != nil {
		return err
	}
	if len(idx) == 0 {
		p.PrintWarning("No capture files found",
			ui.Detail{Key: "Directory", Value: args[0]},
			ui.Detail{Key: "Pattern", Value: capturesPattern},
		)
		return nil
	}

	table := ui.NewTable("FILE", "START", "PACKETS", "BYTES", "SPAN", "STATUS")
	for _, s := range playback.Summarize(idx) {
		status := "ok"
		if s.Err != nil {
			status = s.Err.Error()
		}
		span := "-"
		if s.Packets > 0 {
			span = fmt.Sprintf("%.3fs", s.Last-s.First)
		}
		table.AddRow(
			filepath.Base(s.Path),
			formatTimestamp(s.Start),
			fmt.Sprint(s.Packets),
			fmt.Sprint(s.Bytes),
			span,
			status,
		)
	}
	p.Print(table)
	return nil
}
