package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// advertisementHeaderSize is version + connected + three u16 sizes + protocol type
const advertisementHeaderSize = 9

// Advertisement is the UDP discovery datagram a device broadcasts
//
// Layout (big-endian):
//
//	[0]     version              AdvertisementVersion
//	[1]     connected            1 while a TCP client is attached
//	[2-3]   max outgoing + 2
//	[4-5]   max incoming + 2
//	[6-7]   stream packet size
//	[8]     protocol type
//	[9+]    serial\0 rev board\0 build_info\0 build_date\0 tag1\0 tag2\0
type Advertisement struct {
	Connected           bool
	MaxOutgoingParamLen int
	MaxIncomingParamLen int
	StreamPacketSize    int
	ProtocolType        byte
	SerialNumber        string
	BoardRevision       byte
	BoardName           string
	BuildInfo           string
	BuildDate           string
	UserTag1            []byte
	UserTag2            []byte
}

// EncodeAdvertisement renders the advertisement datagram
func EncodeAdvertisement(a *Advertisement) []byte {
	var buf bytes.Buffer
	buf.Grow(advertisementHeaderSize + 64)

	connected := byte(0)
	if a.Connected {
		connected = 1
	}
	buf.WriteByte(AdvertisementVersion)
	buf.WriteByte(connected)

	var sizes [6]byte
	binary.BigEndian.PutUint16(sizes[0:2], uint16(a.MaxOutgoingParamLen+2))
	binary.BigEndian.PutUint16(sizes[2:4], uint16(a.MaxIncomingParamLen+2))
	binary.BigEndian.PutUint16(sizes[4:6], uint16(a.StreamPacketSize))
	buf.Write(sizes[:])
	buf.WriteByte(a.ProtocolType)

	writeCString(&buf, []byte(a.SerialNumber))
	buf.WriteByte(a.BoardRevision)
	writeCString(&buf, []byte(a.BoardName))
	writeCString(&buf, []byte(a.BuildInfo))
	writeCString(&buf, []byte(a.BuildDate))
	writeCString(&buf, TrimTag(a.UserTag1))
	writeCString(&buf, TrimTag(a.UserTag2))

	return buf.Bytes()
}

// DecodeAdvertisement parses a datagram produced by EncodeAdvertisement
func DecodeAdvertisement(data []byte) (*Advertisement, error) {
	if len(data) < advertisementHeaderSize {
		return nil, fmt.Errorf("advertisement too short: %d bytes", len(data))
	}
	if data[0] != AdvertisementVersion {
		return nil, fmt.Errorf("unsupported advertisement version: %d", data[0])
	}

	a := &Advertisement{
		Connected:           data[1] != 0,
		MaxOutgoingParamLen: int(binary.BigEndian.Uint16(data[2:4])) - 2,
		MaxIncomingParamLen: int(binary.BigEndian.Uint16(data[4:6])) - 2,
		StreamPacketSize:    int(binary.BigEndian.Uint16(data[6:8])),
		ProtocolType:        data[8],
	}

	rest := data[advertisementHeaderSize:]
	var err error
	var s []byte

	if s, rest, err = readCString(rest); err != nil {
		return nil, fmt.Errorf("serial number: %w", err)
	}
	a.SerialNumber = string(s)

	if len(rest) < 1 {
		return nil, fmt.Errorf("board revision: %w", errTruncated)
	}
	a.BoardRevision = rest[0]
	rest = rest[1:]

	if s, rest, err = readCString(rest); err != nil {
		return nil, fmt.Errorf("board name: %w", err)
	}
	a.BoardName = string(s)

	if s, rest, err = readCString(rest); err != nil {
		return nil, fmt.Errorf("build info: %w", err)
	}
	a.BuildInfo = string(s)

	if s, rest, err = readCString(rest); err != nil {
		return nil, fmt.Errorf("build date: %w", err)
	}
	a.BuildDate = string(s)

	if a.UserTag1, rest, err = readCString(rest); err != nil {
		return nil, fmt.Errorf("user tag 1: %w", err)
	}
	if a.UserTag2, _, err = readCString(rest); err != nil {
		return nil, fmt.Errorf("user tag 2: %w", err)
	}

	return a, nil
}

// TrimTag truncates an NVM user tag at the first 0x00 or 0xFF byte
func TrimTag(tag []byte) []byte {
	for i, b := range tag {
		if b == 0x00 || b == 0xFF {
			return tag[:i]
		}
	}
	return tag
}

// IsInquiry reports whether a UDP datagram is a client discovery inquiry
func IsInquiry(data []byte) bool {
	return bytes.HasPrefix(data, InquiryMagic)
}

var errTruncated = errors.New("truncated advertisement")

func writeCString(buf *bytes.Buffer, s []byte) {
	buf.Write(s)
	buf.WriteByte(0x00)
}

func readCString(data []byte) (s []byte, rest []byte, err error) {
	i := bytes.IndexByte(data, 0x00)
	if i < 0 {
		return nil, nil, errTruncated
	}
	out := make([]byte, i)
	copy(out, data[:i])
	return out, data[i+1:], nil
}
