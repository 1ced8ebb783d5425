// Package device implements the emulated Asphodel device: its identity,
// read-only catalogs, runtime state, and the command dispatcher that turns
// DEVICE_CMD payloads into replies.
//
// # Command Handling
//
// HandleCommand never fails. Every outcome is a reply payload:
//
//	success:  tid | opcode | result
//	failure:  tid | 0xFF   | error code | opcode
//
// Each opcode has an entry in a fixed dispatch table. Handlers validate
// their own parameter length and indices and return *protocol.Error values,
// which HandleCommand renders. The echo commands are answered before the
// table is consulted since their replies are not wrapped in tid+opcode.
//
// # Streams
//
// Stream enable flags are the one piece of runtime state shared with other
// goroutines. Transitions are reported to StreamObserver implementations,
// which is how playback learns when to start and stop.
//
// # Thread Safety
//
// HandleCommand and Flush must be called from one goroutine at a time.
// StreamStatus, ActiveStreams, NVM and Advertisement are safe to call
// concurrently with them.
package device
