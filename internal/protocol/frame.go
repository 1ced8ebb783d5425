package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// FrameHeaderSize is the u16 length prefix
	FrameHeaderSize = 2

	// MaxFramePayload is the largest payload a u16 length (payload+1) can describe
	MaxFramePayload = 0xFFFF - 1
)

// Frame is a single length-prefixed, typed unit on the TCP connection
//
// Wire layout (big-endian):
//
//	[0-1]  length   len(payload) + 1
//	[2]    type     MessageType
//	[3+]   payload
type Frame struct {
	Type    MessageType
	Payload []byte
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Type=%s, Length=%d}", f.Type, len(f.Payload))
}

// EncodeFrame prepends the length prefix and message type to payload
func EncodeFrame(msgType MessageType, payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	out := make([]byte, FrameHeaderSize+1+len(payload))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(payload)+1))
	out[2] = byte(msgType)
	copy(out[3:], payload)
	return out, nil
}

// TryUnframe extracts one frame from the start of buf.
// It returns ok=false until the header and the full announced body are
// buffered. On success consumed is 2 + length. A zero length prefix is
// reported as a frame with no type; callers should use Decoder, which
// rejects it.
func TryUnframe(buf []byte) (frame Frame, consumed int, ok bool) {
	if len(buf) < FrameHeaderSize {
		return Frame{}, 0, false
	}
	length := int(binary.BigEndian.Uint16(buf[0:2]))
	if len(buf) < FrameHeaderSize+length {
		return Frame{}, 0, false
	}
	consumed = FrameHeaderSize + length
	if length == 0 {
		return Frame{}, consumed, true
	}

	payload := make([]byte, length-1)
	copy(payload, buf[3:consumed])
	return Frame{Type: MessageType(buf[2]), Payload: payload}, consumed, true
}

// Decoder accumulates bytes read from a connection and yields complete frames
type Decoder struct {
	buf        []byte
	maxPayload int
}

// NewDecoder creates a decoder rejecting payloads larger than maxPayload.
// A maxPayload <= 0 disables the check.
func NewDecoder(maxPayload int) *Decoder {
	return &Decoder{maxPayload: maxPayload}
}

// Feed appends received bytes to the decoder buffer
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Buffered returns the number of bytes waiting for a complete frame
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next returns the next complete frame, nil if more bytes are needed, or a
// framing error. Framing errors leave the decoder unusable.
func (d *Decoder) Next() (*Frame, error) {
	if len(d.buf) >= FrameHeaderSize {
		length := int(binary.BigEndian.Uint16(d.buf[0:2]))
		if length == 0 {
			return nil, ErrEmptyFrame
		}
		if d.maxPayload > 0 && length-1 > d.maxPayload {
			return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length-1, d.maxPayload)
		}
	}

	frame, consumed, ok := TryUnframe(d.buf)
	if !ok {
		return nil, nil
	}

	// Compact so the buffer doesn't grow without bound on long sessions
	n := copy(d.buf, d.buf[consumed:])
	d.buf = d.buf[:n]
	return &frame, nil
}

// Reset discards any buffered bytes
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}
