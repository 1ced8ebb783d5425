package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode is the error byte carried in a CMD_REPLY_ERROR reply
type ErrorCode byte

const (
	ErrorCodeUnspecified          ErrorCode = 0x01
	ErrorCodeMalformedCommand     ErrorCode = 0x02
	ErrorCodeUnimplementedCommand ErrorCode = 0x03
	ErrorCodeBadCmdLength         ErrorCode = 0x04
	ErrorCodeBadAddress           ErrorCode = 0x05
	ErrorCodeBadIndex             ErrorCode = 0x06
	ErrorCodeInvalidData          ErrorCode = 0x07
	ErrorCodeUnsupported          ErrorCode = 0x08
	ErrorCodeBadState             ErrorCode = 0x09
)

// String returns the protocol name of the error code
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeUnspecified:
		return "ERROR_CODE_UNSPECIFIED"
	case ErrorCodeMalformedCommand:
		return "ERROR_CODE_MALFORMED_COMMAND"
	case ErrorCodeUnimplementedCommand:
		return "ERROR_CODE_UNIMPLEMENTED_COMMAND"
	case ErrorCodeBadCmdLength:
		return "ERROR_CODE_BAD_CMD_LENGTH"
	case ErrorCodeBadAddress:
		return "ERROR_CODE_BAD_ADDRESS"
	case ErrorCodeBadIndex:
		return "ERROR_CODE_BAD_INDEX"
	case ErrorCodeInvalidData:
		return "ERROR_CODE_INVALID_DATA"
	case ErrorCodeUnsupported:
		return "ERROR_CODE_UNSUPPORTED"
	case ErrorCodeBadState:
		return "ERROR_CODE_BAD_STATE"
	default:
		return fmt.Sprintf("ERROR_CODE_0x%02X", byte(c))
	}
}

// Error is a device-level protocol error. It is always rendered into a
// CMD_REPLY_ERROR reply and never terminates a connection.
type Error struct {
	Code ErrorCode
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Code)
}

// Is matches any *Error carrying the same code, so that errors.Is works
// against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinel protocol errors
var (
	ErrUnspecified          = &Error{Code: ErrorCodeUnspecified}
	ErrMalformedCommand     = &Error{Code: ErrorCodeMalformedCommand}
	ErrUnimplementedCommand = &Error{Code: ErrorCodeUnimplementedCommand}
	ErrBadCmdLength         = &Error{Code: ErrorCodeBadCmdLength}
	ErrBadAddress           = &Error{Code: ErrorCodeBadAddress}
	ErrBadIndex             = &Error{Code: ErrorCodeBadIndex}
	ErrInvalidData          = &Error{Code: ErrorCodeInvalidData}
)

// CodeOf extracts the wire error code from err. Errors that are not protocol
// errors map to ErrorCodeUnspecified.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrorCodeUnspecified
}

// Framing errors. These are connection-fatal.
var (
	// ErrFrameTooLarge is returned when a length prefix announces a payload
	// larger than the negotiated maximum
	ErrFrameTooLarge = errors.New("frame length exceeds negotiated maximum")

	// ErrEmptyFrame is returned for a zero length prefix (no room for the type byte)
	ErrEmptyFrame = errors.New("frame length prefix is zero")

	// ErrPayloadTooLarge is returned when a payload cannot be described by a u16 length
	ErrPayloadTooLarge = errors.New("payload too large to frame")
)
