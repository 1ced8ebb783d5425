// Package tui implements "lemuria watch", a full-screen terminal view of a
// running emulator.
//
// The screen polls the monitor's /status endpoint and follows its /events
// WebSocket, showing the session slot, active streams and frame counters
// above a scrolling event log. It is built on Bubble Tea following the
// Model-Update-View pattern:
//
//   - bubbles/spinner: connection indicator
//   - bubbles/viewport: scrolling event log
//   - bubbles/help and bubbles/key: key bindings and the help line
//   - lipgloss: styling
//
// The event connection is re-established automatically after a disconnect.
//
// # Usage Example
//
//	client, err := tui.NewClient("127.0.0.1:8760")
//	if err != nil {
//	    return err
//	}
//	return tui.Run(client)
package tui
