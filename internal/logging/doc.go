// Package logging provides structured logging for the Lemuria emulator.
//
// This package wraps a package-level zap logger with convenience functions
// used throughout the server, playback engine and CLI.
//
// # Log Levels
//
//   - Debug: frame hex dumps, inquiries, socket option failures
//   - Info: connections, device events, startup and shutdown
//   - Warn: dropped frames, rejected connections, unreadable captures
//   - Error: listener failures and other unexpected conditions
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// An empty level falls back to the LEMURIA_LOG_LEVEL environment variable.
// When neither is set the logger is silent, which keeps CLI output clean.
//
// # Protocol Logging
//
//	logging.LogConnection(remoteAddr, "connection_accepted")
//	logging.LogFrame("rx", frame.Type.String(), frame.Payload)
//	logging.LogRawBytes("Advertisement", datagram)
//
// Hex and ASCII dumps are capped at 256 bytes.
package logging
