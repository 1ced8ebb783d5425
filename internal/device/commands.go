package device

import (
	"encoding/binary"
	"math"

	"github.com/muurk/lemuria/internal/protocol"
)

// command validates params, reads or mutates device state, and returns the
// result bytes that follow tid+opcode in the reply
type command func(d *Device, params []byte) ([]byte, error)

// commands is the dispatch table for every opcode except the echo commands
var commands = map[protocol.Opcode]command{
	protocol.CmdGetProtocolVersion:  (*Device).getProtocolVersion,
	protocol.CmdGetBoardInfo:        (*Device).getBoardInfo,
	protocol.CmdGetUserTagLocations: (*Device).getUserTagLocations,
	protocol.CmdGetBuildInfo:        stringCommand(func(d *Device) string { return d.id.BuildInfo }),
	protocol.CmdGetBuildDate:        stringCommand(func(d *Device) string { return d.id.BuildDate }),
	protocol.CmdGetChipFamily:       stringCommand(func(d *Device) string { return d.id.ChipFamily }),
	protocol.CmdGetChipModel:        stringCommand(func(d *Device) string { return d.id.ChipModel }),
	protocol.CmdGetChipID:           stringCommand(func(d *Device) string { return d.id.ChipID }),

	protocol.CmdGetNVMSize: (*Device).getNVMSize,
	protocol.CmdEraseNVM:   (*Device).eraseNVM,
	protocol.CmdWriteNVM:   (*Device).writeNVM,
	protocol.CmdReadNVM:    (*Device).readNVM,

	protocol.CmdFlush:             (*Device).flush,
	protocol.CmdGetBootloaderInfo: (*Device).getBootloaderInfo,

	protocol.CmdGetRGBCount:   (*Device).getRGBCount,
	protocol.CmdGetRGBValues:  (*Device).getRGBValues,
	protocol.CmdSetRGB:        (*Device).setRGB,
	protocol.CmdSetRGBInstant: (*Device).setRGB,
	protocol.CmdGetLEDCount:   (*Device).getLEDCount,
	protocol.CmdGetLEDValue:   (*Device).getLEDValue,
	protocol.CmdSetLED:        (*Device).setLED,
	protocol.CmdSetLEDInstant: (*Device).setLED,

	protocol.CmdGetStreamCountAndID: (*Device).getStreamCountAndID,
	protocol.CmdGetStreamChannels:   (*Device).getStreamChannels,
	protocol.CmdGetStreamFormat:     (*Device).getStreamFormat,
	protocol.CmdEnableStream:        (*Device).enableStream,
	protocol.CmdWarmUpStream:        (*Device).warmUpStream,
	protocol.CmdGetStreamStatus:     (*Device).getStreamStatus,
	protocol.CmdGetStreamRateInfo:   (*Device).getStreamRateInfo,

	protocol.CmdGetChannelCount:        (*Device).getChannelCount,
	protocol.CmdGetChannelName:         (*Device).getChannelName,
	protocol.CmdGetChannelInfo:         (*Device).getChannelInfo,
	protocol.CmdGetChannelCoefficients: (*Device).getChannelCoefficients,
	protocol.CmdGetChannelChunk:        (*Device).getChannelChunk,
	protocol.CmdChannelSpecific:        (*Device).channelSpecific,

	protocol.CmdGetSupplyCount: (*Device).getSupplyCount,
	protocol.CmdGetSupplyName:  (*Device).getSupplyName,
	protocol.CmdGetSupplyInfo:  (*Device).getSupplyInfo,
	protocol.CmdCheckSupply:    (*Device).checkSupply,

	protocol.CmdGetCtrlVarCount: (*Device).getCtrlVarCount,
	protocol.CmdGetCtrlVarName:  (*Device).getCtrlVarName,
	protocol.CmdGetCtrlVarInfo:  (*Device).getCtrlVarInfo,
	protocol.CmdGetCtrlVar:      (*Device).getCtrlVar,
	protocol.CmdSetCtrlVar:      (*Device).setCtrlVar,

	protocol.CmdGetSettingCount:           (*Device).getSettingCount,
	protocol.CmdGetSettingName:            (*Device).getSettingName,
	protocol.CmdGetSettingInfo:            (*Device).getSettingInfo,
	protocol.CmdGetSettingDefault:         (*Device).getSettingDefault,
	protocol.CmdGetCustomEnumCounts:       (*Device).getCustomEnumCounts,
	protocol.CmdGetCustomEnumValueName:    (*Device).getCustomEnumValueName,
	protocol.CmdGetSettingCategoryCount:   (*Device).getSettingCategoryCount,
	protocol.CmdGetSettingCategoryName:    (*Device).getSettingCategoryName,
	protocol.CmdGetSettingCategorySetting: (*Device).getSettingCategorySettings,

	// No GPIO ports, buses or info regions are emulated. These reply the way
	// firmware without the peripheral does.
	protocol.CmdGetGPIOPortCount:         (*Device).getGPIOPortCount,
	protocol.CmdGetGPIOPortName:          absentPeripheral,
	protocol.CmdGetGPIOPortInfo:          absentPeripheral,
	protocol.CmdGetGPIOPortValues:        absentPeripheral,
	protocol.CmdSetGPIOPortModes:         absentPeripheral,
	protocol.CmdDisableGPIOPortOverrides: fixedReply(nil),
	protocol.CmdGetBusCounts:             fixedReply([]byte{0x00, 0x00}),
	protocol.CmdSetSPICSMode:             absentPeripheral,
	protocol.CmdDoSPITransfer:            absentPeripheral,
	protocol.CmdDoI2CWrite:               absentPeripheral,
	protocol.CmdDoI2CRead:                absentPeripheral,
	protocol.CmdDoI2CWriteRead:           absentPeripheral,
	protocol.CmdGetInfoRegionCount:       fixedReply([]byte{0x00}),
	protocol.CmdGetInfoRegionName:        absentPeripheral,
	protocol.CmdGetInfoRegion:            absentPeripheral,
	protocol.CmdGetStackInfo:             fixedReply(make([]byte, 8)),
}

// expectLen returns ErrBadCmdLength unless params is exactly n bytes
func expectLen(params []byte, n int) error {
	if len(params) != n {
		return protocol.ErrBadCmdLength
	}
	return nil
}

// checkIndex returns ErrBadIndex unless i < n
func checkIndex(i byte, n int) error {
	if int(i) >= n {
		return protocol.ErrBadIndex
	}
	return nil
}

// indexParam validates a single-byte index parameter against a catalog length
func indexParam(params []byte, n int) (int, error) {
	if err := expectLen(params, 1); err != nil {
		return 0, err
	}
	if err := checkIndex(params[0], n); err != nil {
		return 0, err
	}
	return int(params[0]), nil
}

func stringCommand(get func(d *Device) string) command {
	return func(d *Device, params []byte) ([]byte, error) {
		if err := expectLen(params, 0); err != nil {
			return nil, err
		}
		return []byte(get(d)), nil
	}
}

func countReply(params []byte, n int) ([]byte, error) {
	if err := expectLen(params, 0); err != nil {
		return nil, err
	}
	return []byte{byte(n)}, nil
}

func fixedReply(b []byte) command {
	return func(*Device, []byte) ([]byte, error) {
		return b, nil
	}
}

func absentPeripheral(*Device, []byte) ([]byte, error) {
	return nil, protocol.ErrBadIndex
}

func putFloat32(b []byte, f float32) {
	binary.BigEndian.PutUint32(b, math.Float32bits(f))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// General information

func (d *Device) getProtocolVersion(params []byte) ([]byte, error) {
	if err := expectLen(params, 0); err != nil {
		return nil, err
	}
	return []byte{protocol.VersionMajor, protocol.VersionMinor<<4 | protocol.VersionSubminor}, nil
}

func (d *Device) getBoardInfo(params []byte) ([]byte, error) {
	if err := expectLen(params, 0); err != nil {
		return nil, err
	}
	return append([]byte{d.id.BoardRevision}, d.id.BoardName...), nil
}

func (d *Device) getUserTagLocations(params []byte) ([]byte, error) {
	if err := expectLen(params, 0); err != nil {
		return nil, err
	}
	out := make([]byte, 12)
	for i, loc := range d.id.TagLocations {
		binary.BigEndian.PutUint16(out[i*4:], uint16(loc.Offset/4))
		binary.BigEndian.PutUint16(out[i*4+2:], uint16(loc.Length/4))
	}
	return out, nil
}

// NVM

func (d *Device) getNVMSize(params []byte) ([]byte, error) {
	if err := expectLen(params, 0); err != nil {
		return nil, err
	}
	d.nvmMu.RLock()
	words := len(d.nvm) / 4
	d.nvmMu.RUnlock()

	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(words))
	return out, nil
}

func (d *Device) eraseNVM(params []byte) ([]byte, error) {
	if err := expectLen(params, 0); err != nil {
		return nil, err
	}
	d.nvmMu.Lock()
	for i := range d.nvm {
		d.nvm[i] = 0xFF
	}
	d.nvmMu.Unlock()

	d.persistNVM()
	return nil, nil
}

// writeNVM takes a u16 word address followed by whole words of data
func (d *Device) writeNVM(params []byte) ([]byte, error) {
	if len(params) < 6 || len(params)%4 != 2 {
		return nil, protocol.ErrBadCmdLength
	}
	address := int(binary.BigEndian.Uint16(params[0:2])) * 4
	data := params[2:]

	d.nvmMu.Lock()
	if address+len(data) > len(d.nvm) {
		d.nvmMu.Unlock()
		return nil, protocol.ErrBadAddress
	}
	copy(d.nvm[address:], data)
	d.nvmMu.Unlock()

	d.persistNVM()
	return nil, nil
}

// readNVM returns as many whole words as fit in one reply
func (d *Device) readNVM(params []byte) ([]byte, error) {
	if err := expectLen(params, 2); err != nil {
		return nil, err
	}
	address := int(binary.BigEndian.Uint16(params)) * 4

	d.nvmMu.RLock()
	defer d.nvmMu.RUnlock()

	if address >= len(d.nvm) {
		return nil, protocol.ErrBadAddress
	}
	end := address + (d.id.MaxOutgoingParamLen/4)*4
	if end > len(d.nvm) {
		end = len(d.nvm)
	}
	return append([]byte(nil), d.nvm[address:end]...), nil
}

// Reset and bootloader

func (d *Device) flush(params []byte) ([]byte, error) {
	if err := expectLen(params, 0); err != nil {
		return nil, err
	}
	d.Flush()
	return nil, nil
}

func (d *Device) getBootloaderInfo(params []byte) ([]byte, error) {
	if err := expectLen(params, 0); err != nil {
		return nil, err
	}
	return nil, nil
}

// LEDs

func (d *Device) getRGBCount(params []byte) ([]byte, error) {
	return countReply(params, len(d.rgb))
}

func (d *Device) getRGBValues(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.rgb))
	if err != nil {
		return nil, err
	}
	v := d.rgb[i]
	return []byte{v[0], v[1], v[2]}, nil
}

// setRGB serves both SET_RGB and SET_RGB_INSTANT; there is no fade to emulate
func (d *Device) setRGB(params []byte) ([]byte, error) {
	if err := expectLen(params, 4); err != nil {
		return nil, err
	}
	if err := checkIndex(params[0], len(d.rgb)); err != nil {
		return nil, err
	}
	d.rgb[params[0]] = [3]byte{params[1], params[2], params[3]}
	return nil, nil
}

func (d *Device) getLEDCount(params []byte) ([]byte, error) {
	return countReply(params, len(d.led))
}

func (d *Device) getLEDValue(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.led))
	if err != nil {
		return nil, err
	}
	return []byte{d.led[i]}, nil
}

func (d *Device) setLED(params []byte) ([]byte, error) {
	if err := expectLen(params, 2); err != nil {
		return nil, err
	}
	if err := checkIndex(params[0], len(d.led)); err != nil {
		return nil, err
	}
	d.led[params[0]] = params[1]
	return nil, nil
}

// Streams

func (d *Device) getStreamCountAndID(params []byte) ([]byte, error) {
	if err := expectLen(params, 0); err != nil {
		return nil, err
	}
	return []byte{byte(len(d.streams)), d.id.StreamFillerBits, d.id.StreamIDBits}, nil
}

func (d *Device) getStreamChannels(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.streams))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), d.streams[i].Channels...), nil
}

func (d *Device) getStreamFormat(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.streams))
	if err != nil {
		return nil, err
	}
	s := d.streams[i]
	out := make([]byte, 14)
	out[0] = s.FillerBits
	out[1] = s.CounterBits
	putFloat32(out[2:], s.Rate)
	putFloat32(out[6:], s.RateError)
	putFloat32(out[10:], s.WarmUpDelay)
	return out, nil
}

func (d *Device) enableStream(params []byte) ([]byte, error) {
	if err := expectLen(params, 2); err != nil {
		return nil, err
	}
	if err := checkIndex(params[0], len(d.streams)); err != nil {
		return nil, err
	}
	if t, changed := d.setStreamEnabled(int(params[0]), params[1] != 0); changed {
		d.notify(t)
	}
	return nil, nil
}

func (d *Device) warmUpStream(params []byte) ([]byte, error) {
	if err := expectLen(params, 2); err != nil {
		return nil, err
	}
	if err := checkIndex(params[0], len(d.streams)); err != nil {
		return nil, err
	}
	d.setStreamWarmUp(int(params[0]), params[1] != 0)
	return nil, nil
}

func (d *Device) getStreamStatus(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.streams))
	if err != nil {
		return nil, err
	}
	state, _ := d.StreamStatus(i)
	return []byte{boolByte(state.Enabled), boolByte(state.WarmingUp)}, nil
}

func (d *Device) getStreamRateInfo(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.streams))
	if err != nil {
		return nil, err
	}
	ri := d.streams[i].RateInfo
	out := make([]byte, 11)
	out[0] = boolByte(ri.Available)
	out[1] = ri.ChannelIndex
	out[2] = boolByte(ri.Invert)
	putFloat32(out[3:], ri.Scale)
	putFloat32(out[7:], ri.Offset)
	return out, nil
}

// Channels

func (d *Device) getChannelCount(params []byte) ([]byte, error) {
	return countReply(params, len(d.channels))
}

func (d *Device) getChannelName(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.channels))
	if err != nil {
		return nil, err
	}
	return []byte(d.channels[i].Name), nil
}

func (d *Device) getChannelInfo(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.channels))
	if err != nil {
		return nil, err
	}
	c := d.channels[i]

	out := make([]byte, 22)
	out[0] = c.ChannelType
	out[1] = c.UnitType
	binary.BigEndian.PutUint16(out[2:], c.FillerBits)
	binary.BigEndian.PutUint16(out[4:], c.DataBits)
	out[6] = c.Samples
	binary.BigEndian.PutUint16(out[7:], uint16(c.BitsPerSample))
	putFloat32(out[9:], c.Minimum)
	putFloat32(out[13:], c.Maximum)
	putFloat32(out[17:], c.Resolution)
	out[21] = byte(len(c.Chunks))
	return out, nil
}

// getChannelCoefficients pages coefficients from an optional start index
func (d *Device) getChannelCoefficients(params []byte) ([]byte, error) {
	if len(params) != 1 && len(params) != 2 {
		return nil, protocol.ErrBadCmdLength
	}
	if err := checkIndex(params[0], len(d.channels)); err != nil {
		return nil, err
	}
	coeffs := d.channels[params[0]].Coefficients

	start := 0
	if len(params) == 2 {
		start = int(params[1])
	}
	if start >= len(coeffs) {
		return nil, protocol.ErrBadIndex
	}

	n := len(coeffs) - start
	if maxSend := d.id.MaxOutgoingParamLen / 4; n > maxSend {
		n = maxSend
	}
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		putFloat32(out[i*4:], coeffs[start+i])
	}
	return out, nil
}

func (d *Device) getChannelChunk(params []byte) ([]byte, error) {
	if err := expectLen(params, 2); err != nil {
		return nil, err
	}
	if err := checkIndex(params[0], len(d.channels)); err != nil {
		return nil, err
	}
	chunks := d.channels[params[0]].Chunks
	if err := checkIndex(params[1], len(chunks)); err != nil {
		return nil, err
	}
	return append([]byte(nil), chunks[params[1]]...), nil
}

// channelSpecific validates the channel index; no channel-specific
// sub-commands are emulated
func (d *Device) channelSpecific(params []byte) ([]byte, error) {
	if len(params) < 2 {
		return nil, protocol.ErrBadCmdLength
	}
	if err := checkIndex(params[0], len(d.channels)); err != nil {
		return nil, err
	}
	return nil, protocol.ErrUnimplementedCommand
}

// Supplies

func (d *Device) getSupplyCount(params []byte) ([]byte, error) {
	return countReply(params, len(d.supplies))
}

func (d *Device) getSupplyName(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.supplies))
	if err != nil {
		return nil, err
	}
	return []byte(d.supplies[i].Name), nil
}

func (d *Device) getSupplyInfo(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.supplies))
	if err != nil {
		return nil, err
	}
	s := d.supplies[i]
	out := make([]byte, 14)
	out[0] = s.UnitType
	out[1] = boolByte(s.IsBattery)
	binary.BigEndian.PutUint32(out[2:], uint32(s.Nominal))
	putFloat32(out[6:], s.Scale)
	putFloat32(out[10:], s.Offset)
	return out, nil
}

// checkSupply takes the supply index and an optional tries count, which is
// ignored since measurements are static
func (d *Device) checkSupply(params []byte) ([]byte, error) {
	if len(params) != 1 && len(params) != 2 {
		return nil, protocol.ErrBadCmdLength
	}
	if err := checkIndex(params[0], len(d.supplies)); err != nil {
		return nil, err
	}
	s := d.supplies[params[0]]
	out := make([]byte, 5)
	binary.BigEndian.PutUint32(out, uint32(s.Measurement))
	out[4] = s.Result
	return out, nil
}

// Control variables

func (d *Device) getCtrlVarCount(params []byte) ([]byte, error) {
	return countReply(params, len(d.ctrlVarInfo))
}

func (d *Device) getCtrlVarName(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.ctrlVarInfo))
	if err != nil {
		return nil, err
	}
	return []byte(d.ctrlVarInfo[i].Name), nil
}

func (d *Device) getCtrlVarInfo(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.ctrlVarInfo))
	if err != nil {
		return nil, err
	}
	cv := d.ctrlVarInfo[i]
	out := make([]byte, 17)
	out[0] = cv.UnitType
	binary.BigEndian.PutUint32(out[1:], uint32(cv.Minimum))
	binary.BigEndian.PutUint32(out[5:], uint32(cv.Maximum))
	putFloat32(out[9:], cv.Scale)
	putFloat32(out[13:], cv.Offset)
	return out, nil
}

func (d *Device) getCtrlVar(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.ctrlVars))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(d.ctrlVars[i]))
	return out, nil
}

// setCtrlVar takes the index and a signed 32-bit value within the
// variable's range
func (d *Device) setCtrlVar(params []byte) ([]byte, error) {
	if err := expectLen(params, 5); err != nil {
		return nil, err
	}
	if err := checkIndex(params[0], len(d.ctrlVars)); err != nil {
		return nil, err
	}
	info := d.ctrlVarInfo[params[0]]
	value := int32(binary.BigEndian.Uint32(params[1:5]))
	if value < info.Minimum || value > info.Maximum {
		return nil, protocol.ErrInvalidData
	}
	d.ctrlVars[params[0]] = value
	return nil, nil
}

// Settings

func (d *Device) getSettingCount(params []byte) ([]byte, error) {
	return countReply(params, len(d.settings))
}

func (d *Device) getSettingName(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.settings))
	if err != nil {
		return nil, err
	}
	return []byte(d.settings[i].Name), nil
}

func (d *Device) getSettingInfo(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.settings))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), d.settings[i].Info...), nil
}

func (d *Device) getSettingDefault(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.settings))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), d.settings[i].Default...), nil
}

func (d *Device) getCustomEnumCounts(params []byte) ([]byte, error) {
	if err := expectLen(params, 0); err != nil {
		return nil, err
	}
	out := make([]byte, len(d.customEnums))
	for i, values := range d.customEnums {
		out[i] = byte(len(values))
	}
	return out, nil
}

func (d *Device) getCustomEnumValueName(params []byte) ([]byte, error) {
	if err := expectLen(params, 2); err != nil {
		return nil, err
	}
	if err := checkIndex(params[0], len(d.customEnums)); err != nil {
		return nil, err
	}
	values := d.customEnums[params[0]]
	if err := checkIndex(params[1], len(values)); err != nil {
		return nil, err
	}
	return []byte(values[params[1]]), nil
}

func (d *Device) getSettingCategoryCount(params []byte) ([]byte, error) {
	return countReply(params, len(d.settingCategories))
}

func (d *Device) getSettingCategoryName(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.settingCategories))
	if err != nil {
		return nil, err
	}
	return []byte(d.settingCategories[i].Name), nil
}

func (d *Device) getSettingCategorySettings(params []byte) ([]byte, error) {
	i, err := indexParam(params, len(d.settingCategories))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), d.settingCategories[i].Settings...), nil
}

// Peripherals

func (d *Device) getGPIOPortCount(params []byte) ([]byte, error) {
	return countReply(params, 0)
}
