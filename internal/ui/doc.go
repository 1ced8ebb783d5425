// Package ui renders the lemuria CLI's terminal output.
//
// Components follow a "render once" pattern: a Header banner, Result boxes
// for success, failure and warnings, and a column-aligned Table for device
// and capture listings. Every component renders two ways, styled with
// Lipgloss for interactive terminals and plain text for pipes and logs.
// Printer picks the right one:
//
//	p := ui.NewPrinter(nil)
//	p.Print(ui.NewHeader("Asphodel Emulator", "lemuria serve",
//	    ui.Detail{Key: "Serial", Value: "LEM0001"}))
//	p.PrintSuccess("Listening", ui.Detail{Key: "TCP", Value: addr})
//
// # Logging Integration
//
// zap logging is silent unless LEMURIA_LOG_LEVEL is set, so this output is
// normally the only thing on stdout.
package ui
