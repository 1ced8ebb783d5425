// Package server exposes an emulated Asphodel device over TCP and UDP.
//
// # Sockets
//
// One TCP listener and one UDP socket are bound to the same port. The TCP
// side carries framed commands and stream packets:
//
//	u16 length (payload + 1) | u8 message type | payload
//
// The UDP side answers discovery inquiries (datagrams starting with
// "asphodel\x00") with an advertisement, and optionally sends advertisements
// periodically to a multicast or broadcast address.
//
// # Sessions
//
// Only one client may hold the device at a time. A second connection is
// closed immediately and reported as connection_rejected; the first session
// is not disturbed. When a session ends, queued frames are discarded and the
// device is flushed, which disables every stream and restores RGB, LED and
// control variable defaults.
//
// # Goroutines
//
//   - accept loop and one reader per connection produce events
//   - read loop owns the session slot and dispatches commands
//   - write loop drains the outbound queue to the client socket
//   - inquiry loop and the optional advertiser serve UDP
//
// Command replies and stream packets share one bounded outbound queue. A full
// queue drops frames rather than stall the producer.
//
// # Monitor
//
// Monitor serves /health, /status and, when an event hub is supplied,
// /events over HTTP.
package server
