package config

import (
	"time"

	"github.com/muurk/lemuria/internal/protocol"
)

const (
	defaultPort             = protocol.DefaultPort
	defaultMaxParamLen      = 60
	defaultStreamPacketSize = 32
)

// Default returns a complete configuration for a single-channel strain
// gauge device. It is what init-config writes and what serve uses when no
// configuration file exists.
func Default() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Port:              defaultPort,
			AdvertiseInterval: 5 * time.Second,
			QueueSize:         DefaultQueueSize,
			HTTPAddr:          "127.0.0.1:8760",
		},
		Device: DeviceConfig{
			SerialNumber:        "LEM0001",
			BoardName:           "WMRTCP",
			BoardRevision:       1,
			BuildInfo:           "lemuria",
			BuildDate:           "2024-01-01",
			ChipFamily:          "XMega",
			ChipModel:           "ATxmega256A3U",
			ChipID:              "0000000000000000",
			MaxIncomingParamLen: defaultMaxParamLen,
			MaxOutgoingParamLen: defaultMaxParamLen,
			StreamPacketSize:    defaultStreamPacketSize,
			StreamIDBits:        4,
			NVMSize:             DefaultNVMSize,
			UserTag1:            "Lemuria",
			UserTag2:            "Emulated",
			RGB:                 [][3]uint8{{0, 0, 0}},
			LEDs:                []uint8{0},
			Streams: []StreamConfig{
				{Channels: []uint8{0}, CounterBits: 16, Rate: 1000, RateError: 0.001, WarmUpDelay: 0.1},
			},
			Channels: []ChannelConfig{
				{
					Name:          "Strain",
					ChannelType:   3,
					UnitType:      0,
					DataBits:      24,
					Samples:       6,
					BitsPerSample: 24,
					Minimum:       -1,
					Maximum:       1,
					Resolution:    1e-6,
					Coefficients:  []float32{0, 1},
				},
			},
			Supplies: []SupplyConfig{
				{Name: "Vin", UnitType: 1, Nominal: 5000, Scale: 0.001, Measurement: 5000},
			},
			CtrlVars: []CtrlVarConfig{
				{Name: "Excitation", UnitType: 1, Minimum: 0, Maximum: 5000, Scale: 0.001, Initial: 2500},
			},
		},
		Playback: PlaybackConfig{
			CaptureDir: ".",
			Pattern:    DefaultPattern,
		},
		Events: EventsConfig{
			SessionTTL: DefaultSessionTTL,
		},
	}
	Normalize(cfg)
	return cfg
}
