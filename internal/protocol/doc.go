// Package protocol implements the Asphodel TCP wire format.
//
// This package holds the stateless pieces of the device protocol: wire
// constants (opcodes, error codes, message types), length-prefixed framing,
// the UDP advertisement codec and the typed protocol errors used by command
// handlers.
//
// # Frame Format
//
// Every message on the TCP connection is a frame (all integers big-endian):
//
//	u16 length | u8 message_type | payload[length-1]
//
// The emulator accepts DEVICE_CMD (0x00) frames and emits DEVICE_CMD replies
// and DEVICE_STREAM (0x01) stream packets. REMOTE_* types are defined for
// completeness but are never accepted.
//
// # Command Payloads
//
// A DEVICE_CMD payload is:
//
//	u8 transaction_id | u8 opcode | params...
//
// Replies echo the transaction id and opcode followed by the result, or
// carry CMD_REPLY_ERROR:
//
//	u8 transaction_id | 0xFF | u8 error_code | u8 opcode
//
// # Usage Example - Framing
//
//	dec := protocol.NewDecoder(maxIncomingParamLen + 2)
//	dec.Feed(data)
//	for {
//	    frame, err := dec.Next()
//	    if err != nil {
//	        return err // connection-fatal
//	    }
//	    if frame == nil {
//	        break // need more bytes
//	    }
//	    handle(frame)
//	}
//
// # Usage Example - Advertisement
//
//	datagram := protocol.EncodeAdvertisement(&protocol.Advertisement{
//	    SerialNumber:        "WM-0001",
//	    MaxOutgoingParamLen: 58,
//	    MaxIncomingParamLen: 58,
//	    StreamPacketSize:    64,
//	})
//
// # Error Handling
//
// Protocol errors (*Error) are always rendered into an error reply and
// never end a session. Framing errors (ErrFrameTooLarge, ErrEmptyFrame) are
// connection-fatal.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use. A Decoder is
// owned by a single connection and is not safe for concurrent use.
package protocol
