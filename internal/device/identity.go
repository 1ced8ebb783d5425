package device

// TagLocation is a byte range inside the NVM image. Offsets and lengths are
// reported to clients in 32-bit words, so both should be multiples of 4.
type TagLocation struct {
	Offset int
	Length int
}

// Tag location slots, in the order GET_USER_TAG_LOCATIONS reports them
const (
	TagUser1 = iota
	TagUser2
	TagGeneralSettings
)

// Identity describes the fixed characteristics of the emulated device
type Identity struct {
	SerialNumber string

	// Protocol limits
	MaxIncomingParamLen int // Largest params a client may send
	MaxOutgoingParamLen int // Largest result the device replies with
	StreamPacketSize    int // Size of every DEVICE_STREAM payload

	// Descriptive strings returned verbatim by the GET_* commands
	BoardName     string
	BoardRevision byte
	BuildInfo     string
	BuildDate     string
	ChipFamily    string
	ChipModel     string
	ChipID        string

	// NVM is the initial non-volatile memory image
	NVM []byte

	// TagLocations indexes TagUser1, TagUser2, TagGeneralSettings
	TagLocations [3]TagLocation

	StreamFillerBits byte
	StreamIDBits     byte
}

// RateInfo describes how a stream's rate can be derived from a channel
type RateInfo struct {
	Available    bool
	ChannelIndex byte
	Invert       bool
	Scale        float32
	Offset       float32
}

// StreamInfo is one entry of the stream catalog
type StreamInfo struct {
	Channels    []byte // Channel indices carried by the stream
	FillerBits  byte
	CounterBits byte
	Rate        float32 // Packets per second
	RateError   float32
	WarmUpDelay float32 // Seconds
	RateInfo    RateInfo
}

// ChannelInfo is one entry of the channel catalog
type ChannelInfo struct {
	Name          string
	ChannelType   byte
	UnitType      byte
	FillerBits    uint16
	DataBits      uint16
	Samples       byte
	BitsPerSample int16
	Minimum       float32
	Maximum       float32
	Resolution    float32
	Coefficients  []float32 // Paged out by GET_CHANNEL_COEFFICIENTS
	Chunks        [][]byte  // Paged out by GET_CHANNEL_CHUNK
}

// SupplyInfo is one entry of the power supply catalog. Measurement and
// Result are what CHECK_SUPPLY reports.
type SupplyInfo struct {
	Name        string
	UnitType    byte
	IsBattery   bool
	Nominal     int32
	Scale       float32
	Offset      float32
	Measurement int32
	Result      byte
}

// CtrlVarInfo is one entry of the control variable catalog
type CtrlVarInfo struct {
	Name     string
	UnitType byte
	Minimum  int32
	Maximum  int32
	Scale    float32
	Offset   float32
	Initial  int32
}

// SettingInfo is one entry of the settings catalog. Info and Default are
// already in their wire encoding.
type SettingInfo struct {
	Name    string
	Info    []byte
	Default []byte
}

// SettingCategory groups settings by index
type SettingCategory struct {
	Name     string
	Settings []byte
}

// Personality is everything needed to construct a Device: its identity,
// its read-only catalogs, and the construction-time values of its
// runtime state.
type Personality struct {
	Identity Identity

	Streams           []StreamInfo
	Channels          []ChannelInfo
	Supplies          []SupplyInfo
	CtrlVars          []CtrlVarInfo
	Settings          []SettingInfo
	CustomEnums       [][]string
	SettingCategories []SettingCategory

	RGBValues [][3]byte
	LEDValues []byte
}
