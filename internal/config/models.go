package config

import "time"

// Config represents the entire emulator configuration file
type Config struct {
	Version  int            `yaml:"version"`
	LogLevel string         `yaml:"log_level,omitempty"` // debug, info, warn, error; empty = silent
	Server   ServerConfig   `yaml:"server"`
	Device   DeviceConfig   `yaml:"device"`
	Playback PlaybackConfig `yaml:"playback"`
	Events   EventsConfig   `yaml:"events,omitempty"`
	State    StateConfig    `yaml:"state,omitempty"`
}

// ServerConfig controls the TCP/UDP endpoint and the HTTP monitor
type ServerConfig struct {
	Host              string        `yaml:"host"`                         // Listen address, empty = all interfaces
	Port              int           `yaml:"port"`                         // Shared TCP and UDP port
	AdvertiseInterval time.Duration `yaml:"advertise_interval,omitempty"` // 0 disables periodic advertisements
	AdvertiseAddress  string        `yaml:"advertise_address,omitempty"`  // host:port, defaults to the discovery multicast group
	QueueSize         int           `yaml:"queue_size"`                   // Outbound frame queue capacity
	HTTPAddr          string        `yaml:"http_addr,omitempty"`          // Monitor listen address, empty = disabled
	MDNS              bool          `yaml:"mdns,omitempty"`               // Publish the device over mDNS
}

// DeviceConfig is the personality of the emulated device
type DeviceConfig struct {
	SerialNumber  string `yaml:"serial_number"`
	BoardName     string `yaml:"board_name"`
	BoardRevision uint8  `yaml:"board_revision"`
	BuildInfo     string `yaml:"build_info"`
	BuildDate     string `yaml:"build_date"`
	ChipFamily    string `yaml:"chip_family"`
	ChipModel     string `yaml:"chip_model"`
	ChipID        string `yaml:"chip_id"`

	MaxIncomingParamLen int   `yaml:"max_incoming_param_length"`
	MaxOutgoingParamLen int   `yaml:"max_outgoing_param_length"`
	StreamPacketSize    int   `yaml:"stream_packet_size"`
	StreamFillerBits    uint8 `yaml:"stream_filler_bits"`
	StreamIDBits        uint8 `yaml:"stream_id_bits"`

	NVMSize      int                 `yaml:"nvm_size"`                // Bytes, multiple of 4
	NVMHex       string              `yaml:"nvm_hex,omitempty"`       // Initial image, hex; the rest is 0xFF
	TagLocations []TagLocationConfig `yaml:"tag_locations,omitempty"` // user tag 1, user tag 2, general settings
	UserTag1     string              `yaml:"user_tag_1,omitempty"`    // Written into the initial image
	UserTag2     string              `yaml:"user_tag_2,omitempty"`

	RGB  [][3]uint8 `yaml:"rgb,omitempty"`
	LEDs []uint8    `yaml:"leds,omitempty"`

	Streams           []StreamConfig          `yaml:"streams,omitempty"`
	Channels          []ChannelConfig         `yaml:"channels,omitempty"`
	Supplies          []SupplyConfig          `yaml:"supplies,omitempty"`
	CtrlVars          []CtrlVarConfig         `yaml:"ctrl_vars,omitempty"`
	Settings          []SettingConfig         `yaml:"settings,omitempty"`
	CustomEnums       [][]string              `yaml:"custom_enums,omitempty"`
	SettingCategories []SettingCategoryConfig `yaml:"setting_categories,omitempty"`
}

// TagLocationConfig is a byte range of the NVM image
type TagLocationConfig struct {
	Offset int `yaml:"offset"`
	Length int `yaml:"length"`
}

// StreamConfig describes one stream
type StreamConfig struct {
	Channels    []uint8         `yaml:"channels"`
	FillerBits  uint8           `yaml:"filler_bits,omitempty"`
	CounterBits uint8           `yaml:"counter_bits"`
	Rate        float32         `yaml:"rate"`
	RateError   float32         `yaml:"rate_error,omitempty"`
	WarmUpDelay float32         `yaml:"warm_up_delay,omitempty"`
	RateInfo    *RateInfoConfig `yaml:"rate_info,omitempty"` // nil = not available
}

// RateInfoConfig describes how a stream rate is derived from a channel
type RateInfoConfig struct {
	Channel uint8   `yaml:"channel"`
	Invert  bool    `yaml:"invert,omitempty"`
	Scale   float32 `yaml:"scale"`
	Offset  float32 `yaml:"offset,omitempty"`
}

// ChannelConfig describes one channel
type ChannelConfig struct {
	Name          string    `yaml:"name"`
	ChannelType   uint8     `yaml:"channel_type"`
	UnitType      uint8     `yaml:"unit_type"`
	FillerBits    uint16    `yaml:"filler_bits,omitempty"`
	DataBits      uint16    `yaml:"data_bits"`
	Samples       uint8     `yaml:"samples"`
	BitsPerSample int16     `yaml:"bits_per_sample"`
	Minimum       float32   `yaml:"minimum"`
	Maximum       float32   `yaml:"maximum"`
	Resolution    float32   `yaml:"resolution"`
	Coefficients  []float32 `yaml:"coefficients,omitempty"`
	ChunksHex     []string  `yaml:"chunks_hex,omitempty"` // Channel-specific chunks, hex
}

// SupplyConfig describes one power supply and what CHECK_SUPPLY reports
type SupplyConfig struct {
	Name        string  `yaml:"name"`
	UnitType    uint8   `yaml:"unit_type"`
	IsBattery   bool    `yaml:"is_battery,omitempty"`
	Nominal     int32   `yaml:"nominal"`
	Scale       float32 `yaml:"scale"`
	Offset      float32 `yaml:"offset,omitempty"`
	Measurement int32   `yaml:"measurement"`
	Result      uint8   `yaml:"result,omitempty"`
}

// CtrlVarConfig describes one control variable
type CtrlVarConfig struct {
	Name     string  `yaml:"name"`
	UnitType uint8   `yaml:"unit_type"`
	Minimum  int32   `yaml:"minimum"`
	Maximum  int32   `yaml:"maximum"`
	Scale    float32 `yaml:"scale"`
	Offset   float32 `yaml:"offset,omitempty"`
	Initial  int32   `yaml:"initial"`
}

// SettingConfig describes one setting in wire encoding
type SettingConfig struct {
	Name       string `yaml:"name"`
	InfoHex    string `yaml:"info_hex"`
	DefaultHex string `yaml:"default_hex,omitempty"`
}

// SettingCategoryConfig groups settings by index
type SettingCategoryConfig struct {
	Name     string  `yaml:"name"`
	Settings []uint8 `yaml:"settings"`
}

// PlaybackConfig selects the capture files replayed as stream data
type PlaybackConfig struct {
	CaptureDir string  `yaml:"capture_dir"`
	Pattern    string  `yaml:"pattern,omitempty"`    // Glob, defaults to *.apd
	StartTime  float64 `yaml:"start_time,omitempty"` // Unix seconds; 0 = from the first capture
}

// EventsConfig enables the optional event sinks
type EventsConfig struct {
	NATSURL    string        `yaml:"nats_url,omitempty"`
	RedisURL   string        `yaml:"redis_url,omitempty"` // redis:// URL or host:port
	SessionTTL time.Duration `yaml:"session_ttl,omitempty"`
}

// StateConfig controls persisted device state
type StateConfig struct {
	NVMPath string `yaml:"nvm_path,omitempty"` // NVM snapshot file, empty = in-memory only
}
