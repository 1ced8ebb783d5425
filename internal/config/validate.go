package config

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// ValidationError reports the first invalid field of a configuration
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Err: fmt.Errorf(format, args...)}
}

// maxCatalogSize is the number of entries addressable by a one-byte index
const maxCatalogSize = 256

// minOutgoingParamLen is the size of GET_CHANNEL_INFO, the largest
// fixed-size reply
const minOutgoingParamLen = 22

var validLogLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if cfg.Version != CurrentVersion {
		return invalid("version", "unsupported version %d (expected %d)", cfg.Version, CurrentVersion)
	}
	if !validLogLevels[cfg.LogLevel] {
		return invalid("log_level", "unknown level %q", cfg.LogLevel)
	}

	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateDevice(&cfg.Device); err != nil {
		return err
	}

	if cfg.Playback.StartTime < 0 {
		return invalid("playback.start_time", "must not be negative")
	}
	if cfg.Events.SessionTTL < 0 {
		return invalid("events.session_ttl", "must not be negative")
	}

	return nil
}

func validateServer(s *ServerConfig) error {
	if s.Port < 1 || s.Port > 65535 {
		return invalid("server.port", "%d out of range 1-65535", s.Port)
	}
	if s.QueueSize < 1 {
		return invalid("server.queue_size", "must be positive")
	}
	if s.AdvertiseInterval < 0 {
		return invalid("server.advertise_interval", "must not be negative")
	}
	return nil
}

func validateDevice(d *DeviceConfig) error {
	if d.SerialNumber == "" {
		return invalid("device.serial_number", "required")
	}
	if d.BoardName == "" {
		return invalid("device.board_name", "required")
	}

	// Replies carry tid and opcode, and lengths are sent as u16
	const maxParamLen = 0xFFFF - 3
	if d.MaxIncomingParamLen < 1 || d.MaxIncomingParamLen > maxParamLen {
		return invalid("device.max_incoming_param_length", "%d out of range 1-%d", d.MaxIncomingParamLen, maxParamLen)
	}
	if d.MaxOutgoingParamLen < minOutgoingParamLen || d.MaxOutgoingParamLen > maxParamLen {
		return invalid("device.max_outgoing_param_length", "%d out of range %d-%d",
			d.MaxOutgoingParamLen, minOutgoingParamLen, maxParamLen)
	}
	if d.StreamPacketSize < 1 || d.StreamPacketSize > 0xFFFF-1 {
		return invalid("device.stream_packet_size", "%d out of range", d.StreamPacketSize)
	}

	if d.NVMSize < 4 || d.NVMSize%4 != 0 || d.NVMSize/4 > 0xFFFF {
		return invalid("device.nvm_size", "%d must be a positive multiple of 4 below 256 KiB", d.NVMSize)
	}
	if d.NVMHex != "" {
		image, err := hex.DecodeString(d.NVMHex)
		if err != nil {
			return invalid("device.nvm_hex", "%v", err)
		}
		if len(image) > d.NVMSize {
			return invalid("device.nvm_hex", "%d bytes exceeds nvm_size %d", len(image), d.NVMSize)
		}
	}

	if len(d.TagLocations) != 3 {
		return invalid("device.tag_locations", "need exactly 3 entries, got %d", len(d.TagLocations))
	}
	for i, loc := range d.TagLocations {
		field := fmt.Sprintf("device.tag_locations[%d]", i)
		if loc.Offset < 0 || loc.Length < 0 || loc.Offset%4 != 0 || loc.Length%4 != 0 {
			return invalid(field, "offset and length must be non-negative multiples of 4")
		}
		if loc.Offset+loc.Length > d.NVMSize {
			return invalid(field, "extends past nvm_size %d", d.NVMSize)
		}
	}
	if len(d.UserTag1) > d.TagLocations[0].Length {
		return invalid("device.user_tag_1", "longer than its tag location")
	}
	if len(d.UserTag2) > d.TagLocations[1].Length {
		return invalid("device.user_tag_2", "longer than its tag location")
	}

	if err := validateReplySizes(d); err != nil {
		return err
	}

	counts := []struct {
		field string
		n     int
	}{
		{"device.rgb", len(d.RGB)},
		{"device.leds", len(d.LEDs)},
		{"device.streams", len(d.Streams)},
		{"device.channels", len(d.Channels)},
		{"device.supplies", len(d.Supplies)},
		{"device.ctrl_vars", len(d.CtrlVars)},
		{"device.settings", len(d.Settings)},
		{"device.custom_enums", len(d.CustomEnums)},
		{"device.setting_categories", len(d.SettingCategories)},
	}
	for _, c := range counts {
		if c.n > maxCatalogSize {
			return invalid(c.field, "%d entries exceeds %d", c.n, maxCatalogSize)
		}
	}

	for i, s := range d.Streams {
		field := fmt.Sprintf("device.streams[%d]", i)
		if len(s.Channels) == 0 {
			return invalid(field, "no channels")
		}
		for _, ch := range s.Channels {
			if int(ch) >= len(d.Channels) {
				return invalid(field, "channel %d not defined", ch)
			}
		}
		if s.RateInfo != nil && int(s.RateInfo.Channel) >= len(d.Channels) {
			return invalid(field+".rate_info", "channel %d not defined", s.RateInfo.Channel)
		}
	}

	for i, ch := range d.Channels {
		field := fmt.Sprintf("device.channels[%d]", i)
		if ch.Name == "" {
			return invalid(field, "name required")
		}
		for j, chunk := range ch.ChunksHex {
			if _, err := hex.DecodeString(chunk); err != nil {
				return invalid(fmt.Sprintf("%s.chunks_hex[%d]", field, j), "%v", err)
			}
		}
	}

	for i, cv := range d.CtrlVars {
		field := fmt.Sprintf("device.ctrl_vars[%d]", i)
		if cv.Minimum > cv.Maximum {
			return invalid(field, "minimum %d above maximum %d", cv.Minimum, cv.Maximum)
		}
		if cv.Initial < cv.Minimum || cv.Initial > cv.Maximum {
			return invalid(field, "initial %d outside %d-%d", cv.Initial, cv.Minimum, cv.Maximum)
		}
	}

	for i, s := range d.Settings {
		field := fmt.Sprintf("device.settings[%d]", i)
		if _, err := hex.DecodeString(s.InfoHex); err != nil {
			return invalid(field+".info_hex", "%v", err)
		}
		if _, err := hex.DecodeString(s.DefaultHex); err != nil {
			return invalid(field+".default_hex", "%v", err)
		}
	}

	for i, cat := range d.SettingCategories {
		for _, idx := range cat.Settings {
			if int(idx) >= len(d.Settings) {
				return invalid(fmt.Sprintf("device.setting_categories[%d]", i), "setting %d not defined", idx)
			}
		}
	}

	for i, values := range d.CustomEnums {
		if len(values) > maxCatalogSize {
			return invalid(fmt.Sprintf("device.custom_enums[%d]", i), "%d values exceeds %d", len(values), maxCatalogSize)
		}
	}

	return nil
}

// validateReplySizes rejects strings and blobs that could never be sent in
// a single reply
func validateReplySizes(d *DeviceConfig) error {
	limit := d.MaxOutgoingParamLen
	fits := func(field string, n int) error {
		if n > limit {
			return invalid(field, "%d bytes exceeds max_outgoing_param_length %d", n, limit)
		}
		return nil
	}

	fixed := []struct {
		field string
		n     int
	}{
		{"device.board_name", 1 + len(d.BoardName)},
		{"device.build_info", len(d.BuildInfo)},
		{"device.build_date", len(d.BuildDate)},
		{"device.chip_family", len(d.ChipFamily)},
		{"device.chip_model", len(d.ChipModel)},
		{"device.chip_id", len(d.ChipID)},
		{"device.custom_enums", len(d.CustomEnums)},
	}
	for _, f := range fixed {
		if err := fits(f.field, f.n); err != nil {
			return err
		}
	}

	for i, s := range d.Streams {
		if err := fits(fmt.Sprintf("device.streams[%d].channels", i), len(s.Channels)); err != nil {
			return err
		}
	}
	for i, ch := range d.Channels {
		field := fmt.Sprintf("device.channels[%d]", i)
		if err := fits(field+".name", len(ch.Name)); err != nil {
			return err
		}
		for j, chunk := range ch.ChunksHex {
			if err := fits(fmt.Sprintf("%s.chunks_hex[%d]", field, j), len(chunk)/2); err != nil {
				return err
			}
		}
	}
	for i, s := range d.Supplies {
		if err := fits(fmt.Sprintf("device.supplies[%d].name", i), len(s.Name)); err != nil {
			return err
		}
	}
	for i, cv := range d.CtrlVars {
		if err := fits(fmt.Sprintf("device.ctrl_vars[%d].name", i), len(cv.Name)); err != nil {
			return err
		}
	}
	for i, s := range d.Settings {
		field := fmt.Sprintf("device.settings[%d]", i)
		if err := fits(field+".name", len(s.Name)); err != nil {
			return err
		}
		if err := fits(field+".info_hex", len(s.InfoHex)/2); err != nil {
			return err
		}
		if err := fits(field+".default_hex", len(s.DefaultHex)/2); err != nil {
			return err
		}
	}
	for i, values := range d.CustomEnums {
		for j, v := range values {
			if err := fits(fmt.Sprintf("device.custom_enums[%d][%d]", i, j), len(v)); err != nil {
				return err
			}
		}
	}
	for i, cat := range d.SettingCategories {
		field := fmt.Sprintf("device.setting_categories[%d]", i)
		if err := fits(field+".name", len(cat.Name)); err != nil {
			return err
		}
		if err := fits(field+".settings", len(cat.Settings)); err != nil {
			return err
		}
	}
	return nil
}
