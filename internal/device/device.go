package device

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/lemuria/internal/logging"
	"github.com/muurk/lemuria/internal/protocol"
)

// NVMStore persists the NVM image after every write or erase
type NVMStore interface {
	Save(nvm []byte) error
}

// Device interprets Asphodel commands against an emulated device model.
//
// HandleCommand, Flush and the NVM-mutating commands are expected to be
// called from a single goroutine (the connection read loop). Stream flags
// and the NVM image are additionally guarded so that playback, the
// advertiser and the status endpoint can read them concurrently.
type Device struct {
	id Identity

	streams           []StreamInfo
	channels          []ChannelInfo
	supplies          []SupplyInfo
	ctrlVarInfo       []CtrlVarInfo
	settings          []SettingInfo
	customEnums       [][]string
	settingCategories []SettingCategory

	// Runtime state owned by the read loop
	rgb             [][3]byte
	initialRGB      [][3]byte
	led             []byte
	initialLED      []byte
	ctrlVars        []int32
	initialCtrlVars []int32

	nvmMu sync.RWMutex
	nvm   []byte
	store NVMStore

	// mu guards stream flags and observers
	mu            sync.Mutex
	streamEnabled []bool
	streamWarmUp  []bool
	observers     []StreamObserver
}

// New creates a device from a personality. store may be nil, in which case
// NVM changes only live in memory.
func New(p *Personality, store NVMStore) *Device {
	d := &Device{
		id:                p.Identity,
		streams:           p.Streams,
		channels:          p.Channels,
		supplies:          p.Supplies,
		ctrlVarInfo:       p.CtrlVars,
		settings:          p.Settings,
		customEnums:       p.CustomEnums,
		settingCategories: p.SettingCategories,
		store:             store,
	}

	d.nvm = append([]byte(nil), p.Identity.NVM...)
	d.id.NVM = nil

	d.initialRGB = append([][3]byte(nil), p.RGBValues...)
	d.rgb = append([][3]byte(nil), p.RGBValues...)
	d.initialLED = append([]byte(nil), p.LEDValues...)
	d.led = append([]byte(nil), p.LEDValues...)

	d.initialCtrlVars = make([]int32, len(p.CtrlVars))
	for i, cv := range p.CtrlVars {
		d.initialCtrlVars[i] = cv.Initial
	}
	d.ctrlVars = append([]int32(nil), d.initialCtrlVars...)

	d.streamEnabled = make([]bool, len(p.Streams))
	d.streamWarmUp = make([]bool, len(p.Streams))

	return d
}

// Identity returns the device identity. The NVM field is not populated;
// use NVM for the live image.
func (d *Device) Identity() Identity {
	return d.id
}

// NVM returns a copy of the current NVM image
func (d *Device) NVM() []byte {
	d.nvmMu.RLock()
	defer d.nvmMu.RUnlock()
	return append([]byte(nil), d.nvm...)
}

// Advertisement builds the UDP advertisement for the current device state
func (d *Device) Advertisement(connected bool) *protocol.Advertisement {
	return &protocol.Advertisement{
		Connected:           connected,
		MaxOutgoingParamLen: d.id.MaxOutgoingParamLen,
		MaxIncomingParamLen: d.id.MaxIncomingParamLen,
		StreamPacketSize:    d.id.StreamPacketSize,
		ProtocolType:        protocol.ProtocolTypeBasic,
		SerialNumber:        d.id.SerialNumber,
		BoardRevision:       d.id.BoardRevision,
		BoardName:           d.id.BoardName,
		BuildInfo:           d.id.BuildInfo,
		BuildDate:           d.id.BuildDate,
		UserTag1:            d.readTag(TagUser1),
		UserTag2:            d.readTag(TagUser2),
	}
}

// readTag returns the raw NVM bytes for a tag location, clipped to the image
func (d *Device) readTag(slot int) []byte {
	loc := d.id.TagLocations[slot]

	d.nvmMu.RLock()
	defer d.nvmMu.RUnlock()

	start := loc.Offset
	end := loc.Offset + loc.Length
	if start < 0 || start > len(d.nvm) {
		return nil
	}
	if end > len(d.nvm) {
		end = len(d.nvm)
	}
	return append([]byte(nil), d.nvm[start:end]...)
}

// HandleCommand processes one DEVICE_CMD payload and returns the reply
// payload. It never panics and never returns an error; protocol errors are
// rendered as CMD_REPLY_ERROR replies. An empty input yields an empty reply.
func (d *Device) HandleCommand(raw []byte) (reply []byte) {
	if len(raw) == 0 {
		return nil
	}

	tid := raw[0]
	if len(raw) == 1 {
		return []byte{tid, byte(protocol.CmdReplyError), byte(protocol.ErrorCodeMalformedCommand), byte(protocol.CmdReplyError)}
	}

	op := protocol.Opcode(raw[1])
	params := raw[2:]

	defer func() {
		if r := recover(); r != nil {
			code := protocol.ErrorCodeUnspecified
			if isIndexPanic(r) {
				code = protocol.ErrorCodeBadIndex
			}
			logging.Warn("Recovered from command handler panic",
				zap.Stringer("opcode", op),
				zap.Any("panic", r),
				zap.Stringer("code", code))
			reply = errorReply(tid, op, code)
		}
	}()

	// Echo replies are not wrapped in tid+op
	switch op {
	case protocol.CmdEchoRaw:
		if len(params) > d.id.MaxOutgoingParamLen+2 {
			return errorReply(tid, op, protocol.ErrorCodeBadCmdLength)
		}
		return append([]byte(nil), params...)
	case protocol.CmdEchoTransaction:
		if len(params) > d.id.MaxOutgoingParamLen+1 {
			return errorReply(tid, op, protocol.ErrorCodeBadCmdLength)
		}
		return append([]byte{tid}, params...)
	case protocol.CmdEchoParams:
		if len(params) > d.id.MaxOutgoingParamLen {
			return errorReply(tid, op, protocol.ErrorCodeBadCmdLength)
		}
		return append([]byte{tid, byte(op)}, params...)
	}

	cmd, ok := commands[op]
	if !ok {
		logging.Debug("Unimplemented command", zap.Stringer("opcode", op))
		return errorReply(tid, op, protocol.ErrorCodeUnimplementedCommand)
	}

	result, err := cmd(d, params)
	if err != nil {
		code := protocol.CodeOf(err)
		var pe *protocol.Error
		if !errors.As(err, &pe) {
			logging.Error("Command failed", zap.Stringer("opcode", op), zap.Error(err))
		} else {
			logging.Debug("Command rejected", zap.Stringer("opcode", op), zap.Stringer("code", code))
		}
		return errorReply(tid, op, code)
	}

	if len(result) > d.id.MaxOutgoingParamLen {
		logging.Error("Reply exceeds maximum outgoing length",
			zap.Stringer("opcode", op),
			zap.Int("length", len(result)),
			zap.Int("max", d.id.MaxOutgoingParamLen))
		return errorReply(tid, op, protocol.ErrorCodeUnspecified)
	}

	reply = make([]byte, 0, 2+len(result))
	reply = append(reply, tid, byte(op))
	return append(reply, result...)
}

// Flush disables every stream, clears warm-up, and restores RGB, LED and
// control variable values to their construction-time values. It is the
// FLUSH command and is also invoked when a connection closes.
func (d *Device) Flush() {
	changed := d.resetStreams()

	copy(d.rgb, d.initialRGB)
	copy(d.led, d.initialLED)
	copy(d.ctrlVars, d.initialCtrlVars)

	d.notify(changed...)
}

// persistNVM hands the current image to the store, if any
func (d *Device) persistNVM() {
	if d.store == nil {
		return
	}
	if err := d.store.Save(d.NVM()); err != nil {
		logging.Warn("Failed to persist NVM", zap.Error(err))
	}
}

func errorReply(tid byte, op protocol.Opcode, code protocol.ErrorCode) []byte {
	return []byte{tid, byte(protocol.CmdReplyError), byte(code), byte(op)}
}

// isIndexPanic reports whether a recovered value is an out-of-range index
// or slice expression
func isIndexPanic(r any) bool {
	rerr, ok := r.(runtime.Error)
	if !ok {
		return false
	}
	msg := rerr.Error()
	return strings.Contains(msg, "index out of range") || strings.Contains(msg, "slice bounds out of range")
}

// String returns a short description for logs
func (d *Device) String() string {
	return fmt.Sprintf("Device{Serial=%s, Board=%s rev %d}", d.id.SerialNumber, d.id.BoardName, d.id.BoardRevision)
}
