package protocol

import "fmt"

// Protocol version reported by CMD_GET_PROTOCOL_VERSION (2.3.3)
const (
	VersionMajor    = 2
	VersionMinor    = 3
	VersionSubminor = 3
)

// Protocol types advertised by a device. The emulator only speaks the basic protocol.
const (
	ProtocolTypeBasic      = 0x00
	ProtocolTypeRFPower    = 0x01
	ProtocolTypeRadio      = 0x02
	ProtocolTypeRemote     = 0x04
	ProtocolTypeBootloader = 0x08
)

// TCP transport constants
const (
	// AdvertisementVersion is the first byte of every UDP advertisement
	AdvertisementVersion = 0x01

	// DefaultPort is the TCP/UDP port Asphodel TCP devices listen on
	DefaultPort = 5760

	// MulticastAddress is the IPv4 group Asphodel clients send inquiries to
	MulticastAddress = "224.0.6.150"
)

// InquiryMagic prefixes every UDP discovery inquiry sent by a client
var InquiryMagic = []byte("asphodel\x00")

// MessageType identifies the kind of payload carried by a TCP frame
type MessageType byte

const (
	MsgDeviceCmd    MessageType = 0x00
	MsgDeviceStream MessageType = 0x01
	MsgRemoteCmd    MessageType = 0x02
	MsgRemoteStream MessageType = 0x03
	MsgRemoteNotify MessageType = 0x06
)

// String returns a human-readable message type name
func (t MessageType) String() string {
	switch t {
	case MsgDeviceCmd:
		return "device_cmd"
	case MsgDeviceStream:
		return "device_stream"
	case MsgRemoteCmd:
		return "remote_cmd"
	case MsgRemoteStream:
		return "remote_stream"
	case MsgRemoteNotify:
		return "remote_notify"
	default:
		return fmt.Sprintf("unknown(0x%02X)", byte(t))
	}
}

// Opcode selects the device operation requested by a command
type Opcode byte

// General information commands
const (
	CmdGetProtocolVersion  Opcode = 0x00
	CmdGetBoardInfo        Opcode = 0x01
	CmdGetUserTagLocations Opcode = 0x02
	CmdGetBuildInfo        Opcode = 0x03
	CmdGetBuildDate        Opcode = 0x04
	CmdGetChipFamily       Opcode = 0x05
	CmdGetChipModel        Opcode = 0x06
	CmdGetChipID           Opcode = 0x07
)

// NVM commands
const (
	CmdGetNVMSize Opcode = 0x08
	CmdEraseNVM   Opcode = 0x09
	CmdWriteNVM   Opcode = 0x0A
	CmdReadNVM    Opcode = 0x0B
)

// Reset and bootloader commands
const (
	CmdFlush             Opcode = 0x10
	CmdReset             Opcode = 0x11
	CmdGetBootloaderInfo Opcode = 0x12
	CmdBootloaderJump    Opcode = 0x13
)

// LED commands
const (
	CmdGetRGBCount   Opcode = 0x20
	CmdGetRGBValues  Opcode = 0x21
	CmdSetRGB        Opcode = 0x22
	CmdSetRGBInstant Opcode = 0x23
	CmdGetLEDCount   Opcode = 0x24
	CmdGetLEDValue   Opcode = 0x25
	CmdSetLED        Opcode = 0x26
	CmdSetLEDInstant Opcode = 0x27
)

// Stream commands
const (
	CmdGetStreamCountAndID Opcode = 0x30
	CmdGetStreamChannels   Opcode = 0x31
	CmdGetStreamFormat     Opcode = 0x32
	CmdEnableStream        Opcode = 0x33
	CmdWarmUpStream        Opcode = 0x34
	CmdGetStreamStatus     Opcode = 0x35
	CmdGetStreamRateInfo   Opcode = 0x36
)

// Channel commands
const (
	CmdGetChannelCount        Opcode = 0x40
	CmdGetChannelName         Opcode = 0x41
	CmdGetChannelInfo         Opcode = 0x42
	CmdGetChannelCoefficients Opcode = 0x43
	CmdGetChannelChunk        Opcode = 0x44
	CmdChannelSpecific        Opcode = 0x45
	CmdGetChannelCalibration  Opcode = 0x46
)

// Power supply check commands
const (
	CmdGetSupplyCount Opcode = 0x50
	CmdGetSupplyName  Opcode = 0x51
	CmdGetSupplyInfo  Opcode = 0x52
	CmdCheckSupply    Opcode = 0x53
)

// Control variable commands
const (
	CmdGetCtrlVarCount Opcode = 0x60
	CmdGetCtrlVarName  Opcode = 0x61
	CmdGetCtrlVarInfo  Opcode = 0x62
	CmdGetCtrlVar      Opcode = 0x63
	CmdSetCtrlVar      Opcode = 0x64
)

// Setting commands
const (
	CmdGetSettingCount           Opcode = 0x70
	CmdGetSettingName            Opcode = 0x71
	CmdGetSettingInfo            Opcode = 0x72
	CmdGetSettingDefault         Opcode = 0x73
	CmdGetCustomEnumCounts       Opcode = 0x74
	CmdGetCustomEnumValueName    Opcode = 0x75
	CmdGetSettingCategoryCount   Opcode = 0x76
	CmdGetSettingCategoryName    Opcode = 0x77
	CmdGetSettingCategorySetting Opcode = 0x78
)

// GPIO and bus commands (no peripherals are emulated)
const (
	CmdGetGPIOPortCount         Opcode = 0x80
	CmdGetGPIOPortName          Opcode = 0x81
	CmdGetGPIOPortInfo          Opcode = 0x82
	CmdGetGPIOPortValues        Opcode = 0x83
	CmdSetGPIOPortModes         Opcode = 0x84
	CmdDisableGPIOPortOverrides Opcode = 0x85
	CmdGetBusCounts             Opcode = 0x86
	CmdSetSPICSMode             Opcode = 0x87
	CmdDoSPITransfer            Opcode = 0x88
	CmdDoI2CWrite               Opcode = 0x89
	CmdDoI2CRead                Opcode = 0x8A
	CmdDoI2CWriteRead           Opcode = 0x8B
)

// Info region and misc commands
const (
	CmdGetInfoRegionCount Opcode = 0x90
	CmdGetInfoRegionName  Opcode = 0x91
	CmdGetInfoRegion      Opcode = 0x92
	CmdGetStackInfo       Opcode = 0xA0
)

// Echo commands and the error reply marker
const (
	CmdEchoRaw         Opcode = 0xE0
	CmdEchoTransaction Opcode = 0xE1
	CmdEchoParams      Opcode = 0xE2
	CmdReplyError      Opcode = 0xFF
)

var opcodeNames = map[Opcode]string{
	CmdGetProtocolVersion:        "GET_PROTOCOL_VERSION",
	CmdGetBoardInfo:              "GET_BOARD_INFO",
	CmdGetUserTagLocations:       "GET_USER_TAG_LOCATIONS",
	CmdGetBuildInfo:              "GET_BUILD_INFO",
	CmdGetBuildDate:              "GET_BUILD_DATE",
	CmdGetChipFamily:             "GET_CHIP_FAMILY",
	CmdGetChipModel:              "GET_CHIP_MODEL",
	CmdGetChipID:                 "GET_CHIP_ID",
	CmdGetNVMSize:                "GET_NVM_SIZE",
	CmdEraseNVM:                  "ERASE_NVM",
	CmdWriteNVM:                  "WRITE_NVM",
	CmdReadNVM:                   "READ_NVM",
	CmdFlush:                     "FLUSH",
	CmdReset:                     "RESET",
	CmdGetBootloaderInfo:         "GET_BOOTLOADER_INFO",
	CmdBootloaderJump:            "BOOTLOADER_JUMP",
	CmdGetRGBCount:               "GET_RGB_COUNT",
	CmdGetRGBValues:              "GET_RGB_VALUES",
	CmdSetRGB:                    "SET_RGB",
	CmdSetRGBInstant:             "SET_RGB_INSTANT",
	CmdGetLEDCount:               "GET_LED_COUNT",
	CmdGetLEDValue:               "GET_LED_VALUE",
	CmdSetLED:                    "SET_LED",
	CmdSetLEDInstant:             "SET_LED_INSTANT",
	CmdGetStreamCountAndID:       "GET_STREAM_COUNT_AND_ID",
	CmdGetStreamChannels:         "GET_STREAM_CHANNELS",
	CmdGetStreamFormat:           "GET_STREAM_FORMAT",
	CmdEnableStream:              "ENABLE_STREAM",
	CmdWarmUpStream:              "WARM_UP_STREAM",
	CmdGetStreamStatus:           "GET_STREAM_STATUS",
	CmdGetStreamRateInfo:         "GET_STREAM_RATE_INFO",
	CmdGetChannelCount:           "GET_CHANNEL_COUNT",
	CmdGetChannelName:            "GET_CHANNEL_NAME",
	CmdGetChannelInfo:            "GET_CHANNEL_INFO",
	CmdGetChannelCoefficients:    "GET_CHANNEL_COEFFICIENTS",
	CmdGetChannelChunk:           "GET_CHANNEL_CHUNK",
	CmdChannelSpecific:           "CHANNEL_SPECIFIC",
	CmdGetChannelCalibration:     "GET_CHANNEL_CALIBRATION",
	CmdGetSupplyCount:            "GET_SUPPLY_COUNT",
	CmdGetSupplyName:             "GET_SUPPLY_NAME",
	CmdGetSupplyInfo:             "GET_SUPPLY_INFO",
	CmdCheckSupply:               "CHECK_SUPPLY",
	CmdGetCtrlVarCount:           "GET_CTRL_VAR_COUNT",
	CmdGetCtrlVarName:            "GET_CTRL_VAR_NAME",
	CmdGetCtrlVarInfo:            "GET_CTRL_VAR_INFO",
	CmdGetCtrlVar:                "GET_CTRL_VAR",
	CmdSetCtrlVar:                "SET_CTRL_VAR",
	CmdGetSettingCount:           "GET_SETTING_COUNT",
	CmdGetSettingName:            "GET_SETTING_NAME",
	CmdGetSettingInfo:            "GET_SETTING_INFO",
	CmdGetSettingDefault:         "GET_SETTING_DEFAULT",
	CmdGetCustomEnumCounts:       "GET_CUSTOM_ENUM_COUNTS",
	CmdGetCustomEnumValueName:    "GET_CUSTOM_ENUM_VALUE_NAME",
	CmdGetSettingCategoryCount:   "GET_SETTING_CATEGORY_COUNT",
	CmdGetSettingCategoryName:    "GET_SETTING_CATEGORY_NAME",
	CmdGetSettingCategorySetting: "GET_SETTING_CATEGORY_SETTINGS",
	CmdGetGPIOPortCount:          "GET_GPIO_PORT_COUNT",
	CmdGetGPIOPortName:           "GET_GPIO_PORT_NAME",
	CmdGetGPIOPortInfo:           "GET_GPIO_PORT_INFO",
	CmdGetGPIOPortValues:         "GET_GPIO_PORT_VALUES",
	CmdSetGPIOPortModes:          "SET_GPIO_PORT_MODES",
	CmdDisableGPIOPortOverrides:  "DISABLE_GPIO_PORT_OVERRIDES",
	CmdGetBusCounts:              "GET_BUS_COUNTS",
	CmdSetSPICSMode:              "SET_SPI_CS_MODE",
	CmdDoSPITransfer:             "DO_SPI_TRANSFER",
	CmdDoI2CWrite:                "DO_I2C_WRITE",
	CmdDoI2CRead:                 "DO_I2C_READ",
	CmdDoI2CWriteRead:            "DO_I2C_WRITE_READ",
	CmdGetInfoRegionCount:        "GET_INFO_REGION_COUNT",
	CmdGetInfoRegionName:         "GET_INFO_REGION_NAME",
	CmdGetInfoRegion:             "GET_INFO_REGION",
	CmdGetStackInfo:              "GET_STACK_INFO",
	CmdEchoRaw:                   "ECHO_RAW",
	CmdEchoTransaction:           "ECHO_TRANSACTION",
	CmdEchoParams:                "ECHO_PARAMS",
	CmdReplyError:                "REPLY_ERROR",
}

// String returns the command name, or its hex value if unknown
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("CMD_0x%02X", byte(op))
}
