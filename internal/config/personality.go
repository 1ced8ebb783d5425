package config

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/muurk/lemuria/internal/device"
)

// Personality converts the device section into a device.Personality. The
// configuration must already have passed Validate.
func (d *DeviceConfig) Personality() (*device.Personality, error) {
	nvm, err := d.initialNVM()
	if err != nil {
		return nil, err
	}

	p := &device.Personality{
		Identity: device.Identity{
			SerialNumber:        d.SerialNumber,
			MaxIncomingParamLen: d.MaxIncomingParamLen,
			MaxOutgoingParamLen: d.MaxOutgoingParamLen,
			StreamPacketSize:    d.StreamPacketSize,
			BoardName:           d.BoardName,
			BoardRevision:       d.BoardRevision,
			BuildInfo:           d.BuildInfo,
			BuildDate:           d.BuildDate,
			ChipFamily:          d.ChipFamily,
			ChipModel:           d.ChipModel,
			ChipID:              d.ChipID,
			NVM:                 nvm,
			StreamFillerBits:    d.StreamFillerBits,
			StreamIDBits:        d.StreamIDBits,
		},
		CustomEnums: d.CustomEnums,
		RGBValues:   make([][3]byte, len(d.RGB)),
		LEDValues:   append([]byte(nil), d.LEDs...),
	}
	copy(p.RGBValues, d.RGB)

	for i := 0; i < len(p.Identity.TagLocations) && i < len(d.TagLocations); i++ {
		p.Identity.TagLocations[i] = device.TagLocation{
			Offset: d.TagLocations[i].Offset,
			Length: d.TagLocations[i].Length,
		}
	}

	for _, s := range d.Streams {
		info := device.StreamInfo{
			Channels:    append([]byte(nil), s.Channels...),
			FillerBits:  s.FillerBits,
			CounterBits: s.CounterBits,
			Rate:        s.Rate,
			RateError:   s.RateError,
			WarmUpDelay: s.WarmUpDelay,
		}
		if s.RateInfo != nil {
			info.RateInfo = device.RateInfo{
				Available:    true,
				ChannelIndex: s.RateInfo.Channel,
				Invert:       s.RateInfo.Invert,
				Scale:        s.RateInfo.Scale,
				Offset:       s.RateInfo.Offset,
			}
		}
		p.Streams = append(p.Streams, info)
	}

	for i, ch := range d.Channels {
		info := device.ChannelInfo{
			Name:          ch.Name,
			ChannelType:   ch.ChannelType,
			UnitType:      ch.UnitType,
			FillerBits:    ch.FillerBits,
			DataBits:      ch.DataBits,
			Samples:       ch.Samples,
			BitsPerSample: ch.BitsPerSample,
			Minimum:       ch.Minimum,
			Maximum:       ch.Maximum,
			Resolution:    ch.Resolution,
			Coefficients:  append([]float32(nil), ch.Coefficients...),
		}
		for j, chunk := range ch.ChunksHex {
			b, err := hex.DecodeString(chunk)
			if err != nil {
				return nil, fmt.Errorf("channel %d chunk %d: %w", i, j, err)
			}
			info.Chunks = append(info.Chunks, b)
		}
		p.Channels = append(p.Channels, info)
	}

	for _, s := range d.Supplies {
		p.Supplies = append(p.Supplies, device.SupplyInfo{
			Name:        s.Name,
			UnitType:    s.UnitType,
			IsBattery:   s.IsBattery,
			Nominal:     s.Nominal,
			Scale:       s.Scale,
			Offset:      s.Offset,
			Measurement: s.Measurement,
			Result:      s.Result,
		})
	}

	for _, cv := range d.CtrlVars {
		p.CtrlVars = append(p.CtrlVars, device.CtrlVarInfo{
			Name:     cv.Name,
			UnitType: cv.UnitType,
			Minimum:  cv.Minimum,
			Maximum:  cv.Maximum,
			Scale:    cv.Scale,
			Offset:   cv.Offset,
			Initial:  cv.Initial,
		})
	}

	for i, s := range d.Settings {
		info, err := hex.DecodeString(s.InfoHex)
		if err != nil {
			return nil, fmt.Errorf("setting %d info: %w", i, err)
		}
		def, err := hex.DecodeString(s.DefaultHex)
		if err != nil {
			return nil, fmt.Errorf("setting %d default: %w", i, err)
		}
		p.Settings = append(p.Settings, device.SettingInfo{Name: s.Name, Info: info, Default: def})
	}

	for _, cat := range d.SettingCategories {
		p.SettingCategories = append(p.SettingCategories, device.SettingCategory{
			Name:     cat.Name,
			Settings: append([]byte(nil), cat.Settings...),
		})
	}

	return p, nil
}

// initialNVM builds the power-on NVM image: erased (0xFF), overlaid with
// nvm_hex and then the configured user tags
func (d *DeviceConfig) initialNVM() ([]byte, error) {
	nvm := bytes.Repeat([]byte{0xFF}, d.NVMSize)

	if d.NVMHex != "" {
		image, err := hex.DecodeString(d.NVMHex)
		if err != nil {
			return nil, fmt.Errorf("nvm_hex: %w", err)
		}
		copy(nvm, image)
	}

	tags := []string{d.UserTag1, d.UserTag2}
	for i, tag := range tags {
		if tag == "" || i >= len(d.TagLocations) {
			continue
		}
		loc := d.TagLocations[i]
		if loc.Offset+loc.Length > len(nvm) || len(tag) > loc.Length {
			return nil, fmt.Errorf("user tag %d does not fit its location", i+1)
		}
		area := nvm[loc.Offset : loc.Offset+loc.Length]
		for j := range area {
			area[j] = 0xFF
		}
		copy(area, tag)
		if len(tag) < len(area) {
			area[len(tag)] = 0x00
		}
	}

	return nvm, nil
}
