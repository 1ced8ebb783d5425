package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/muurk/lemuria/internal/protocol"
)

// testMaxOut fits GET_CHANNEL_INFO, the largest fixed-size reply
const testMaxOut = 24

func testPersonality() *Personality {
	nvm := bytes.Repeat([]byte{0xFF}, 64)
	copy(nvm[0:], "Bench")
	copy(nvm[16:], "Rig")

	return &Personality{
		Identity: Identity{
			SerialNumber:        "WM0001",
			MaxIncomingParamLen: testMaxOut,
			MaxOutgoingParamLen: testMaxOut,
			StreamPacketSize:    32,
			BoardName:           "WMRTCP",
			BoardRevision:       2,
			BuildInfo:           "lemuria",
			BuildDate:           "2026-10-18",
			ChipFamily:          "XMega",
			ChipModel:           "ATxmega256A3U",
			ChipID:              "0123",
			NVM:                 nvm,
			TagLocations: [3]TagLocation{
				{Offset: 0, Length: 16},
				{Offset: 16, Length: 16},
				{Offset: 32, Length: 32},
			},
			StreamFillerBits: 0,
			StreamIDBits:     4,
		},
		Streams: []StreamInfo{
			{Channels: []byte{0}, CounterBits: 16, Rate: 100, RateError: 0.01, WarmUpDelay: 0.5},
			{Channels: []byte{0, 1}, CounterBits: 16, Rate: 10,
				RateInfo: RateInfo{Available: true, ChannelIndex: 1, Scale: 2, Offset: 0.5}},
		},
		Channels: []ChannelInfo{
			{Name: "Strain", ChannelType: 3, UnitType: 1, DataBits: 24, Samples: 6, BitsPerSample: 24,
				Minimum: -1, Maximum: 1, Resolution: 0.001,
				Coefficients: []float32{1, 2, 3, 4, 5, 6, 7},
				Chunks:       [][]byte{{0x01, 0x02}, {0x03}}},
			{Name: "Temp", ChannelType: 1, UnitType: 2, DataBits: 16, Samples: 1, BitsPerSample: -16,
				Coefficients: []float32{0.5}},
		},
		Supplies: []SupplyInfo{
			{Name: "Vin", UnitType: 1, Nominal: 5000, Scale: 0.001, Measurement: 4990, Result: 0},
		},
		CtrlVars: []CtrlVarInfo{
			{Name: "Gain", Minimum: 0, Maximum: 100, Scale: 1, Initial: 10},
		},
		Settings: []SettingInfo{
			{Name: "Rate", Info: []byte{0x03, 0x00, 0x04}, Default: []byte{0x00, 0x64}},
		},
		CustomEnums:       [][]string{{"off", "on"}},
		SettingCategories: []SettingCategory{{Name: "General", Settings: []byte{0}}},
		RGBValues:         [][3]byte{{1, 2, 3}},
		LEDValues:         []byte{0x10, 0x20},
	}
}

func cmd(tid byte, op protocol.Opcode, params ...byte) []byte {
	return append([]byte{tid, byte(op)}, params...)
}

func errReply(tid byte, op protocol.Opcode, code protocol.ErrorCode) []byte {
	return []byte{tid, byte(protocol.CmdReplyError), byte(code), byte(op)}
}

func TestHandleCommand_Framing(t *testing.T) {
	d := New(testPersonality(), nil)

	if got := d.HandleCommand(nil); len(got) != 0 {
		t.Errorf("HandleCommand(empty) = % x, want empty", got)
	}

	want := []byte{0x07, 0xFF, 0x02, 0xFF}
	if got := d.HandleCommand([]byte{0x07}); !bytes.Equal(got, want) {
		t.Errorf("HandleCommand(1 byte) = % x, want % x", got, want)
	}

	want = errReply(0x09, 0xEE, protocol.ErrorCodeUnimplementedCommand)
	if got := d.HandleCommand([]byte{0x09, 0xEE}); !bytes.Equal(got, want) {
		t.Errorf("HandleCommand(unknown) = % x, want % x", got, want)
	}
}

func TestHandleCommand_Echo(t *testing.T) {
	d := New(testPersonality(), nil)

	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{
			name:     "echo raw",
			input:    cmd(0x01, protocol.CmdEchoRaw, 0x01, 0x02, 0x03),
			expected: []byte{0x01, 0x02, 0x03},
		},
		{
			name:     "echo transaction",
			input:    cmd(0x05, protocol.CmdEchoTransaction, 0xAA),
			expected: []byte{0x05, 0xAA},
		},
		{
			name:     "echo params",
			input:    []byte{0x05, byte(protocol.CmdEchoParams), 0xAA},
			expected: []byte{0x05, byte(protocol.CmdEchoParams), 0xAA},
		},
		{
			name:     "echo raw at bound",
			input:    cmd(0x01, protocol.CmdEchoRaw, make([]byte, testMaxOut+2)...),
			expected: make([]byte, testMaxOut+2),
		},
		{
			name:     "echo raw over bound",
			input:    cmd(0x01, protocol.CmdEchoRaw, make([]byte, testMaxOut+3)...),
			expected: errReply(0x01, protocol.CmdEchoRaw, protocol.ErrorCodeBadCmdLength),
		},
		{
			name:     "echo transaction over bound",
			input:    cmd(0x02, protocol.CmdEchoTransaction, make([]byte, testMaxOut+2)...),
			expected: errReply(0x02, protocol.CmdEchoTransaction, protocol.ErrorCodeBadCmdLength),
		},
		{
			name:     "echo params over bound",
			input:    cmd(0x03, protocol.CmdEchoParams, make([]byte, testMaxOut+1)...),
			expected: errReply(0x03, protocol.CmdEchoParams, protocol.ErrorCodeBadCmdLength),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.HandleCommand(tt.input); !bytes.Equal(got, tt.expected) {
				t.Errorf("HandleCommand() = % x, want % x", got, tt.expected)
			}
		})
	}
}

func TestHandleCommand_ProtocolEchoExample(t *testing.T) {
	// ECHO_PARAMS from transaction 0x05 echoes tid, opcode and params
	d := New(testPersonality(), nil)
	got := d.HandleCommand([]byte{0x05, byte(protocol.CmdEchoParams), 0xAA})
	if !bytes.Equal(got, []byte{0x05, 0xE2, 0xAA}) {
		t.Errorf("HandleCommand() = % x", got)
	}
}

func TestHandleCommand_Replies(t *testing.T) {
	d := New(testPersonality(), nil)

	tests := []struct {
		name     string
		op       protocol.Opcode
		params   []byte
		expected []byte
	}{
		{name: "protocol version", op: protocol.CmdGetProtocolVersion, expected: []byte{0x02, 0x33}},
		{name: "board info", op: protocol.CmdGetBoardInfo, expected: []byte("\x02WMRTCP")},
		{name: "user tag locations", op: protocol.CmdGetUserTagLocations,
			expected: []byte{0, 0, 0, 4, 0, 4, 0, 4, 0, 8, 0, 8}},
		{name: "build info", op: protocol.CmdGetBuildInfo, expected: []byte("lemuria")},
		{name: "chip id", op: protocol.CmdGetChipID, expected: []byte("0123")},
		{name: "nvm size", op: protocol.CmdGetNVMSize, expected: []byte{0x00, 0x10}},
		{name: "bootloader info", op: protocol.CmdGetBootloaderInfo, expected: []byte{}},
		{name: "rgb count", op: protocol.CmdGetRGBCount, expected: []byte{1}},
		{name: "rgb values", op: protocol.CmdGetRGBValues, params: []byte{0}, expected: []byte{1, 2, 3}},
		{name: "led count", op: protocol.CmdGetLEDCount, expected: []byte{2}},
		{name: "led value", op: protocol.CmdGetLEDValue, params: []byte{1}, expected: []byte{0x20}},
		{name: "stream count and id", op: protocol.CmdGetStreamCountAndID, expected: []byte{2, 0, 4}},
		{name: "stream channels", op: protocol.CmdGetStreamChannels, params: []byte{1}, expected: []byte{0, 1}},
		{name: "stream status", op: protocol.CmdGetStreamStatus, params: []byte{0}, expected: []byte{0, 0}},
		{name: "channel count", op: protocol.CmdGetChannelCount, expected: []byte{2}},
		{name: "channel name", op: protocol.CmdGetChannelName, params: []byte{1}, expected: []byte("Temp")},
		{name: "channel chunk", op: protocol.CmdGetChannelChunk, params: []byte{0, 1}, expected: []byte{0x03}},
		{name: "supply count", op: protocol.CmdGetSupplyCount, expected: []byte{1}},
		{name: "supply name", op: protocol.CmdGetSupplyName, params: []byte{0}, expected: []byte("Vin")},
		{name: "check supply", op: protocol.CmdCheckSupply, params: []byte{0, 3}, expected: []byte{0, 0, 0x13, 0x7E, 0}},
		{name: "ctrl var", op: protocol.CmdGetCtrlVar, params: []byte{0}, expected: []byte{0, 0, 0, 10}},
		{name: "setting default", op: protocol.CmdGetSettingDefault, params: []byte{0}, expected: []byte{0x00, 0x64}},
		{name: "custom enum counts", op: protocol.CmdGetCustomEnumCounts, expected: []byte{2}},
		{name: "custom enum value name", op: protocol.CmdGetCustomEnumValueName, params: []byte{0, 1}, expected: []byte("on")},
		{name: "setting category name", op: protocol.CmdGetSettingCategoryName, params: []byte{0}, expected: []byte("General")},
		{name: "setting category settings", op: protocol.CmdGetSettingCategorySetting, params: []byte{0}, expected: []byte{0}},
		{name: "gpio port count", op: protocol.CmdGetGPIOPortCount, expected: []byte{0}},
		{name: "disable gpio overrides", op: protocol.CmdDisableGPIOPortOverrides, params: []byte{1, 2}, expected: []byte{}},
		{name: "bus counts", op: protocol.CmdGetBusCounts, expected: []byte{0, 0}},
		{name: "info region count", op: protocol.CmdGetInfoRegionCount, expected: []byte{0}},
		{name: "stack info", op: protocol.CmdGetStackInfo, expected: make([]byte, 8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := append([]byte{0x42, byte(tt.op)}, tt.expected...)
			got := d.HandleCommand(cmd(0x42, tt.op, tt.params...))
			if !bytes.Equal(got, want) {
				t.Errorf("HandleCommand(%s) = % x, want % x", tt.op, got, want)
			}
		})
	}
}

func TestHandleCommand_Errors(t *testing.T) {
	d := New(testPersonality(), nil)

	tests := []struct {
		name   string
		op     protocol.Opcode
		params []byte
		code   protocol.ErrorCode
	}{
		{name: "version with params", op: protocol.CmdGetProtocolVersion, params: []byte{0}, code: protocol.ErrorCodeBadCmdLength},
		{name: "board info with params", op: protocol.CmdGetBoardInfo, params: []byte{0}, code: protocol.ErrorCodeBadCmdLength},
		{name: "rgb values no params", op: protocol.CmdGetRGBValues, code: protocol.ErrorCodeBadCmdLength},
		{name: "rgb values bad index", op: protocol.CmdGetRGBValues, params: []byte{1}, code: protocol.ErrorCodeBadIndex},
		{name: "set rgb short", op: protocol.CmdSetRGB, params: []byte{0, 1, 2}, code: protocol.ErrorCodeBadCmdLength},
		{name: "set rgb bad index", op: protocol.CmdSetRGBInstant, params: []byte{5, 1, 2, 3}, code: protocol.ErrorCodeBadIndex},
		{name: "led value bad index", op: protocol.CmdGetLEDValue, params: []byte{2}, code: protocol.ErrorCodeBadIndex},
		{name: "set led long", op: protocol.CmdSetLED, params: []byte{0, 1, 2}, code: protocol.ErrorCodeBadCmdLength},
		{name: "stream format bad index", op: protocol.CmdGetStreamFormat, params: []byte{2}, code: protocol.ErrorCodeBadIndex},
		{name: "enable stream short", op: protocol.CmdEnableStream, params: []byte{0}, code: protocol.ErrorCodeBadCmdLength},
		{name: "enable stream bad index", op: protocol.CmdEnableStream, params: []byte{9, 1}, code: protocol.ErrorCodeBadIndex},
		{name: "warm up bad index", op: protocol.CmdWarmUpStream, params: []byte{2, 1}, code: protocol.ErrorCodeBadIndex},
		{name: "stream status no params", op: protocol.CmdGetStreamStatus, code: protocol.ErrorCodeBadCmdLength},
		{name: "channel name bad index", op: protocol.CmdGetChannelName, params: []byte{2}, code: protocol.ErrorCodeBadIndex},
		{name: "channel info long", op: protocol.CmdGetChannelInfo, params: []byte{0, 0}, code: protocol.ErrorCodeBadCmdLength},
		{name: "coefficients no params", op: protocol.CmdGetChannelCoefficients, code: protocol.ErrorCodeBadCmdLength},
		{name: "coefficients three params", op: protocol.CmdGetChannelCoefficients, params: []byte{0, 0, 0}, code: protocol.ErrorCodeBadCmdLength},
		{name: "coefficients start past end", op: protocol.CmdGetChannelCoefficients, params: []byte{1, 1}, code: protocol.ErrorCodeBadIndex},
		{name: "coefficients bad channel", op: protocol.CmdGetChannelCoefficients, params: []byte{2}, code: protocol.ErrorCodeBadIndex},
		{name: "chunk bad chunk", op: protocol.CmdGetChannelChunk, params: []byte{0, 2}, code: protocol.ErrorCodeBadIndex},
		{name: "chunk short", op: protocol.CmdGetChannelChunk, params: []byte{0}, code: protocol.ErrorCodeBadCmdLength},
		{name: "channel specific short", op: protocol.CmdChannelSpecific, params: []byte{0}, code: protocol.ErrorCodeBadCmdLength},
		{name: "channel specific bad index", op: protocol.CmdChannelSpecific, params: []byte{7, 0}, code: protocol.ErrorCodeBadIndex},
		{name: "channel specific unimplemented", op: protocol.CmdChannelSpecific, params: []byte{0, 1, 2}, code: protocol.ErrorCodeUnimplementedCommand},
		{name: "supply info bad index", op: protocol.CmdGetSupplyInfo, params: []byte{1}, code: protocol.ErrorCodeBadIndex},
		{name: "check supply long", op: protocol.CmdCheckSupply, params: []byte{0, 1, 2}, code: protocol.ErrorCodeBadCmdLength},
		{name: "ctrl var info bad index", op: protocol.CmdGetCtrlVarInfo, params: []byte{1}, code: protocol.ErrorCodeBadIndex},
		{name: "set ctrl var short", op: protocol.CmdSetCtrlVar, params: []byte{0, 0, 0, 1}, code: protocol.ErrorCodeBadCmdLength},
		{name: "set ctrl var out of range", op: protocol.CmdSetCtrlVar, params: []byte{0, 0, 0, 0, 101}, code: protocol.ErrorCodeInvalidData},
		{name: "setting name bad index", op: protocol.CmdGetSettingName, params: []byte{1}, code: protocol.ErrorCodeBadIndex},
		{name: "enum value bad value", op: protocol.CmdGetCustomEnumValueName, params: []byte{0, 2}, code: protocol.ErrorCodeBadIndex},
		{name: "enum value bad enum", op: protocol.CmdGetCustomEnumValueName, params: []byte{1, 0}, code: protocol.ErrorCodeBadIndex},
		{name: "category settings bad index", op: protocol.CmdGetSettingCategorySetting, params: []byte{1}, code: protocol.ErrorCodeBadIndex},
		{name: "gpio port name", op: protocol.CmdGetGPIOPortName, params: []byte{0}, code: protocol.ErrorCodeBadIndex},
		{name: "spi transfer", op: protocol.CmdDoSPITransfer, params: []byte{0, 1}, code: protocol.ErrorCodeBadIndex},
		{name: "info region", op: protocol.CmdGetInfoRegion, params: []byte{0, 0}, code: protocol.ErrorCodeBadIndex},
		{name: "read nvm short", op: protocol.CmdReadNVM, params: []byte{0}, code: protocol.ErrorCodeBadCmdLength},
		{name: "read nvm bad address", op: protocol.CmdReadNVM, params: []byte{0, 16}, code: protocol.ErrorCodeBadAddress},
		{name: "write nvm short", op: protocol.CmdWriteNVM, params: []byte{0, 0, 1, 2}, code: protocol.ErrorCodeBadCmdLength},
		{name: "write nvm unaligned", op: protocol.CmdWriteNVM, params: []byte{0, 0, 1, 2, 3, 4, 5}, code: protocol.ErrorCodeBadCmdLength},
		{name: "write nvm overflow", op: protocol.CmdWriteNVM, params: []byte{0, 15, 1, 2, 3, 4, 5, 6, 7, 8}, code: protocol.ErrorCodeBadAddress},
		{name: "erase nvm with params", op: protocol.CmdEraseNVM, params: []byte{0}, code: protocol.ErrorCodeBadCmdLength},
		{name: "flush with params", op: protocol.CmdFlush, params: []byte{0}, code: protocol.ErrorCodeBadCmdLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := errReply(0x11, tt.op, tt.code)
			got := d.HandleCommand(cmd(0x11, tt.op, tt.params...))
			if !bytes.Equal(got, want) {
				t.Errorf("HandleCommand(%s % x) = % x, want % x", tt.op, tt.params, got, want)
			}
		})
	}
}

// wrongLength holds, for every opcode that checks its parameter length, a
// parameter list of a length it rejects
var wrongLength = map[protocol.Opcode][]byte{
	protocol.CmdGetProtocolVersion:        {0},
	protocol.CmdGetBoardInfo:              {0},
	protocol.CmdGetUserTagLocations:       {0},
	protocol.CmdGetBuildInfo:              {0},
	protocol.CmdGetBuildDate:              {0},
	protocol.CmdGetChipFamily:             {0},
	protocol.CmdGetChipModel:              {0},
	protocol.CmdGetChipID:                 {0},
	protocol.CmdGetNVMSize:                {0},
	protocol.CmdEraseNVM:                  {0},
	protocol.CmdWriteNVM:                  {0, 0, 1},
	protocol.CmdReadNVM:                   {0, 0, 0},
	protocol.CmdFlush:                     {0},
	protocol.CmdGetBootloaderInfo:         {0},
	protocol.CmdGetRGBCount:               {0},
	protocol.CmdGetRGBValues:              {},
	protocol.CmdSetRGB:                    {0, 1, 2},
	protocol.CmdSetRGBInstant:             {0, 1, 2, 3, 4},
	protocol.CmdGetLEDCount:               {0},
	protocol.CmdGetLEDValue:               {0, 0},
	protocol.CmdSetLED:                    {0},
	protocol.CmdSetLEDInstant:             {0, 1, 2},
	protocol.CmdGetStreamCountAndID:       {0},
	protocol.CmdGetStreamChannels:         {},
	protocol.CmdGetStreamFormat:           {0, 0},
	protocol.CmdEnableStream:              {0},
	protocol.CmdWarmUpStream:              {0, 1, 2},
	protocol.CmdGetStreamStatus:           {0, 0},
	protocol.CmdGetStreamRateInfo:         {},
	protocol.CmdGetChannelCount:           {0},
	protocol.CmdGetChannelName:            {},
	protocol.CmdGetChannelInfo:            {0, 0},
	protocol.CmdGetChannelCoefficients:    {0, 0, 0},
	protocol.CmdGetChannelChunk:           {0, 0, 0},
	protocol.CmdChannelSpecific:           {0},
	protocol.CmdGetSupplyCount:            {0},
	protocol.CmdGetSupplyName:             {0, 0},
	protocol.CmdGetSupplyInfo:             {},
	protocol.CmdCheckSupply:               {},
	protocol.CmdGetCtrlVarCount:           {0},
	protocol.CmdGetCtrlVarName:            {},
	protocol.CmdGetCtrlVarInfo:            {0, 0},
	protocol.CmdGetCtrlVar:                {},
	protocol.CmdSetCtrlVar:                {0, 0, 0, 0, 0, 0},
	protocol.CmdGetSettingCount:           {0},
	protocol.CmdGetSettingName:            {0, 0},
	protocol.CmdGetSettingInfo:            {},
	protocol.CmdGetSettingDefault:         {0, 0},
	protocol.CmdGetCustomEnumCounts:       {0},
	protocol.CmdGetCustomEnumValueName:    {0},
	protocol.CmdGetSettingCategoryCount:   {0},
	protocol.CmdGetSettingCategoryName:    {},
	protocol.CmdGetSettingCategorySetting: {0, 0},
	protocol.CmdGetGPIOPortCount:          {0},
}

// unsupportedPeripherals reply with a fixed value or BadIndex whatever
// their parameters
var unsupportedPeripherals = map[protocol.Opcode]bool{
	protocol.CmdGetGPIOPortName:          true,
	protocol.CmdGetGPIOPortInfo:          true,
	protocol.CmdGetGPIOPortValues:        true,
	protocol.CmdSetGPIOPortModes:         true,
	protocol.CmdDisableGPIOPortOverrides: true,
	protocol.CmdGetBusCounts:             true,
	protocol.CmdSetSPICSMode:             true,
	protocol.CmdDoSPITransfer:            true,
	protocol.CmdDoI2CWrite:               true,
	protocol.CmdDoI2CRead:                true,
	protocol.CmdDoI2CWriteRead:           true,
	protocol.CmdGetInfoRegionCount:       true,
	protocol.CmdGetInfoRegionName:        true,
	protocol.CmdGetInfoRegion:            true,
	protocol.CmdGetStackInfo:             true,
}

func TestHandleCommand_WrongLength(t *testing.T) {
	d := New(testPersonality(), nil)

	for op := range commands {
		if unsupportedPeripherals[op] {
			continue
		}
		params, ok := wrongLength[op]
		if !ok {
			t.Errorf("%s has no wrong-length case", op)
			continue
		}
		t.Run(op.String(), func(t *testing.T) {
			want := errReply(0x21, op, protocol.ErrorCodeBadCmdLength)
			got := d.HandleCommand(cmd(0x21, op, params...))
			if !bytes.Equal(got, want) {
				t.Errorf("HandleCommand(%s % x) = % x, want % x", op, params, got, want)
			}
		})
	}
}

func TestHandleCommand_ChannelInfo(t *testing.T) {
	d := New(testPersonality(), nil)
	got := d.HandleCommand(cmd(0x01, protocol.CmdGetChannelInfo, 1))

	if len(got) != 2+22 {
		t.Fatalf("reply length = %d, want 24", len(got))
	}
	result := got[2:]
	if result[0] != 1 || result[1] != 2 {
		t.Errorf("type/unit = %d/%d, want 1/2", result[0], result[1])
	}
	if bits := binary.BigEndian.Uint16(result[4:6]); bits != 16 {
		t.Errorf("data bits = %d, want 16", bits)
	}
	if bps := int16(binary.BigEndian.Uint16(result[7:9])); bps != -16 {
		t.Errorf("bits per sample = %d, want -16", bps)
	}
	if result[21] != 0 {
		t.Errorf("chunk count = %d, want 0", result[21])
	}
}

func TestHandleCommand_CoefficientPaging(t *testing.T) {
	d := New(testPersonality(), nil)

	// 24 bytes per reply fits six coefficients
	got := d.HandleCommand(cmd(0x01, protocol.CmdGetChannelCoefficients, 0))
	if len(got)-2 != 6*4 {
		t.Fatalf("first page = %d bytes, want 24", len(got)-2)
	}

	got = d.HandleCommand(cmd(0x01, protocol.CmdGetChannelCoefficients, 0, 5))
	if len(got)-2 != 2*4 {
		t.Fatalf("second page = %d bytes, want 8", len(got)-2)
	}
	if !bytes.Equal(got[2:6], []byte{0x40, 0xC0, 0x00, 0x00}) {
		t.Errorf("coefficient[5] = % x, want 40 c0 00 00 (6.0)", got[2:6])
	}
}

func TestHandleCommand_StreamFormatAndRateInfo(t *testing.T) {
	d := New(testPersonality(), nil)

	got := d.HandleCommand(cmd(0x01, protocol.CmdGetStreamFormat, 0))
	want := []byte{0x01, 0x32, 0x00, 0x10, 0x42, 0xC8, 0x00, 0x00}
	if !bytes.Equal(got[:8], want) {
		t.Errorf("stream format prefix = % x, want % x", got[:8], want)
	}

	got = d.HandleCommand(cmd(0x01, protocol.CmdGetStreamRateInfo, 1))
	want = []byte{0x01, 0x36, 0x01, 0x01, 0x00, 0x40, 0x00, 0x00, 0x00, 0x3F, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("rate info = % x, want % x", got, want)
	}
}

func TestHandleCommand_NVM(t *testing.T) {
	d := New(testPersonality(), nil)

	write := cmd(0x01, protocol.CmdWriteNVM, 0x00, 0x01, 'a', 'b', 'c', 'd')
	if got := d.HandleCommand(write); !bytes.Equal(got, []byte{0x01, byte(protocol.CmdWriteNVM)}) {
		t.Fatalf("write reply = % x", got)
	}

	got := d.HandleCommand(cmd(0x02, protocol.CmdReadNVM, 0x00, 0x01))
	// READ_NVM returns floor(24/4)*4 bytes
	if len(got)-2 != 24 {
		t.Fatalf("read length = %d, want 24", len(got)-2)
	}
	if !bytes.Equal(got[2:6], []byte("abcd")) {
		t.Errorf("read = %q, want abcd prefix", got[2:6])
	}

	// Reads near the end are clipped to the image
	got = d.HandleCommand(cmd(0x03, protocol.CmdReadNVM, 0x00, 0x0F))
	if len(got)-2 != 4 {
		t.Errorf("tail read length = %d, want 4", len(got)-2)
	}

	d.HandleCommand(cmd(0x04, protocol.CmdEraseNVM))
	for i, b := range d.NVM() {
		if b != 0xFF {
			t.Fatalf("nvm[%d] = %#x after erase, want 0xff", i, b)
		}
	}
}

type memStore struct {
	mu    sync.Mutex
	saves [][]byte
	err   error
}

func (m *memStore) Save(nvm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, nvm)
	return m.err
}

func TestHandleCommand_NVMPersistence(t *testing.T) {
	store := &memStore{}
	d := New(testPersonality(), store)

	d.HandleCommand(cmd(0x01, protocol.CmdWriteNVM, 0x00, 0x00, 'w', 'x', 'y', 'z'))
	if len(store.saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(store.saves))
	}
	if !bytes.Equal(store.saves[0][:4], []byte("wxyz")) {
		t.Errorf("saved image prefix = %q, want wxyz", store.saves[0][:4])
	}

	// A failing store does not turn into a protocol error
	store.err = errors.New("disk full")
	got := d.HandleCommand(cmd(0x02, protocol.CmdEraseNVM))
	if !bytes.Equal(got, []byte{0x02, byte(protocol.CmdEraseNVM)}) {
		t.Errorf("erase reply = % x, want success", got)
	}
}

func TestHandleCommand_OversizeReply(t *testing.T) {
	p := testPersonality()
	p.Identity.BoardName = string(bytes.Repeat([]byte{'x'}, testMaxOut))
	d := New(p, nil)

	want := errReply(0x01, protocol.CmdGetBoardInfo, protocol.ErrorCodeUnspecified)
	if got := d.HandleCommand(cmd(0x01, protocol.CmdGetBoardInfo)); !bytes.Equal(got, want) {
		t.Errorf("HandleCommand() = % x, want % x", got, want)
	}
}

func TestHandleCommand_IndexPanicGuard(t *testing.T) {
	d := New(testPersonality(), nil)
	// A runtime slot without a catalog entry passes the index check and
	// then fails the catalog lookup
	d.ctrlVars = append(d.ctrlVars, 0)

	want := errReply(0x01, protocol.CmdSetCtrlVar, protocol.ErrorCodeBadIndex)
	got := d.HandleCommand(cmd(0x01, protocol.CmdSetCtrlVar, 1, 0, 0, 0, 1))
	if !bytes.Equal(got, want) {
		t.Errorf("HandleCommand() = % x, want % x", got, want)
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) StreamEnabled(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "enable:"+string(rune('0'+index)))
}

func (r *recordingObserver) StreamDisabled(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "disable:"+string(rune('0'+index)))
}

func TestStreamObservers(t *testing.T) {
	d := New(testPersonality(), nil)
	obs := &recordingObserver{}
	d.AddStreamObserver(obs)

	d.HandleCommand(cmd(0x01, protocol.CmdEnableStream, 0, 1))
	d.HandleCommand(cmd(0x02, protocol.CmdEnableStream, 0, 1)) // repeat, no event
	d.HandleCommand(cmd(0x03, protocol.CmdEnableStream, 1, 1))
	d.HandleCommand(cmd(0x04, protocol.CmdEnableStream, 0, 0))
	d.HandleCommand(cmd(0x05, protocol.CmdFlush))

	want := []string{"enable:0", "enable:1", "disable:0", "disable:1"}
	if len(obs.events) != len(want) {
		t.Fatalf("events = %v, want %v", obs.events, want)
	}
	for i := range want {
		if obs.events[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, obs.events[i], want[i])
		}
	}

	if active := d.ActiveStreams(); len(active) != 0 {
		t.Errorf("ActiveStreams() = %v, want none", active)
	}
}

func TestFlush(t *testing.T) {
	d := New(testPersonality(), nil)

	d.HandleCommand(cmd(0x01, protocol.CmdSetRGB, 0, 9, 9, 9))
	d.HandleCommand(cmd(0x02, protocol.CmdSetLEDInstant, 1, 0xFF))
	d.HandleCommand(cmd(0x03, protocol.CmdSetCtrlVar, 0, 0, 0, 0, 50))
	d.HandleCommand(cmd(0x04, protocol.CmdEnableStream, 1, 1))
	d.HandleCommand(cmd(0x05, protocol.CmdWarmUpStream, 1, 1))

	state, _ := d.StreamStatus(1)
	if !state.Enabled || !state.WarmingUp {
		t.Fatalf("StreamStatus(1) = %+v before flush, want enabled and warming up", state)
	}

	d.Flush()

	if got := d.HandleCommand(cmd(0x06, protocol.CmdGetRGBValues, 0)); !bytes.Equal(got[2:], []byte{1, 2, 3}) {
		t.Errorf("rgb after flush = % x, want 01 02 03", got[2:])
	}
	if got := d.HandleCommand(cmd(0x07, protocol.CmdGetLEDValue, 1)); got[2] != 0x20 {
		t.Errorf("led after flush = %#x, want 0x20", got[2])
	}
	if got := d.HandleCommand(cmd(0x08, protocol.CmdGetCtrlVar, 0)); got[5] != 10 {
		t.Errorf("ctrl var after flush = %d, want 10", got[5])
	}
	state, _ = d.StreamStatus(1)
	if state.Enabled || state.WarmingUp {
		t.Errorf("StreamStatus(1) = %+v after flush, want cleared", state)
	}
}

func TestAdvertisement(t *testing.T) {
	d := New(testPersonality(), nil)
	adv := d.Advertisement(true)

	if !adv.Connected {
		t.Error("Connected = false, want true")
	}
	if adv.SerialNumber != "WM0001" {
		t.Errorf("SerialNumber = %s, want WM0001", adv.SerialNumber)
	}
	if got := string(protocol.TrimTag(adv.UserTag1)); got != "Bench" {
		t.Errorf("UserTag1 = %q, want Bench", got)
	}
	if got := string(protocol.TrimTag(adv.UserTag2)); got != "Rig" {
		t.Errorf("UserTag2 = %q, want Rig", got)
	}

	// Tags follow NVM writes
	d.HandleCommand(cmd(0x01, protocol.CmdWriteNVM, 0x00, 0x04, 'L', 'a', 'b', 0x00))
	if got := string(protocol.TrimTag(d.Advertisement(false).UserTag2)); got != "Lab" {
		t.Errorf("UserTag2 after write = %q, want Lab", got)
	}
}
