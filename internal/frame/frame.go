// Package frame implements the SPI link-layer wire frame from spec.md §4.A:
// a one-byte command, a one-byte xinfo, a short-response ack word, a fixed
// 40-byte payload, and a CRC16/CCITT trailer seeded at 0.
package frame

import (
	"encoding/binary"
	"fmt"

	"sandboxaq/mainboard/internal/crc16"
)

// Cmd is the outer SPI command byte. The high bit (ShortRespBit) may be
// OR-ed into CmdStreamSensor to carry an in-band short CNC ack; see
// Classify, which resolves that bit into a typed variant rather than
// re-exposing it to callers above the link layer.
type Cmd uint8

const (
	CmdNOP Cmd = iota
	CmdTrigger
	CmdStreamSensor
	CmdCNC
	CmdCNCShort
	CmdRespCNC
	CmdDDSTrig
	CmdStreamSensorWShortResponse

	// ShortRespBit may be OR-ed into CmdStreamSensor only.
	ShortRespBit Cmd = 0x80
)

// CmdUIDDontCare marks the cmd_uid half of short_cmd_response as "ignore"
// per spec.md §4.A; the driver's wrapping counter skips this value.
const CmdUIDDontCare uint8 = 0xFF

// PayloadSize is the fixed CNC/sensor payload region carried by every frame.
const PayloadSize = 40

// WireSize is cmd(1) + xinfo(1) + short_cmd_response(2) + payload(40) + crc(2).
const WireSize = 1 + 1 + 2 + PayloadSize + 2

// Frame is the decoded, in-memory form of one SPI transfer in either
// direction.
type Frame struct {
	Cmd              Cmd
	XInfo            uint8
	ShortCmdResponse uint16
	Payload          [PayloadSize]byte
}

// Encode serializes f to the wire layout and appends its CRC16/CCITT.
func Encode(f Frame) [WireSize]byte {
	var out [WireSize]byte
	out[0] = byte(f.Cmd)
	out[1] = f.XInfo
	binary.LittleEndian.PutUint16(out[2:4], f.ShortCmdResponse)
	copy(out[4:4+PayloadSize], f.Payload[:])
	crc := crc16.Checksum(out[:WireSize-2])
	binary.LittleEndian.PutUint16(out[WireSize-2:], crc)
	return out
}

// ErrCRC is returned by Decode on a checksum mismatch; per spec.md §4.A the
// caller must count a crc_errors stat and drop the frame, not escalate.
var ErrCRC = fmt.Errorf("spi frame: crc mismatch")

// Decode parses and CRC-validates a wire frame.
func Decode(wire [WireSize]byte) (Frame, error) {
	want := binary.LittleEndian.Uint16(wire[WireSize-2:])
	got := crc16.Checksum(wire[:WireSize-2])
	if want != got {
		return Frame{}, ErrCRC
	}
	var f Frame
	f.Cmd = Cmd(wire[0])
	f.XInfo = wire[1]
	f.ShortCmdResponse = binary.LittleEndian.Uint16(wire[2:4])
	copy(f.Payload[:], wire[4:4+PayloadSize])
	return f, nil
}

// Kind is the link-layer-resolved classification of a received frame. It
// absorbs the ShortRespBit trick so nothing above the link layer ever tests
// that bit directly (Design Notes: "keep as a typed variant at the link
// layer boundary").
type Kind int

const (
	KindNOP Kind = iota
	KindTrigger
	KindSensorData
	KindSensorDataWithShortAck
	KindCNC
	KindCNCShort
	KindRespCNC
	KindDDSTrig
	KindUnknown
)

// ShortAck is the inline CNC acknowledgment piggy-backed on a sensor frame.
type ShortAck struct {
	UID    uint16
	Result uint8
}

// Classify resolves f.Cmd into a Kind, splitting out the short-ack bit.
func (f Frame) Classify() Kind {
	if f.Cmd&ShortRespBit != 0 {
		base := f.Cmd &^ ShortRespBit
		if base == CmdStreamSensor {
			return KindSensorDataWithShortAck
		}
		return KindUnknown
	}
	switch f.Cmd {
	case CmdNOP:
		return KindNOP
	case CmdTrigger:
		return KindTrigger
	case CmdStreamSensor:
		return KindSensorData
	case CmdCNC:
		return KindCNC
	case CmdCNCShort:
		return KindCNCShort
	case CmdRespCNC:
		return KindRespCNC
	case CmdDDSTrig:
		return KindDDSTrig
	case CmdStreamSensorWShortResponse:
		return KindSensorDataWithShortAck
	default:
		return KindUnknown
	}
}

// PackShortAck builds the short_cmd_response wire word for a given
// cmd_uid/result pair (the inverse of ShortAck).
func PackShortAck(uid uint8, result uint8) uint16 {
	return uint16(uid) | uint16(result)<<8
}

// ShortAck extracts the inline ack from a KindSensorDataWithShortAck frame.
// CmdUIDDontCare means "ignore" per spec.md §4.A.
func (f Frame) ShortAck() (ShortAck, bool) {
	if f.Classify() != KindSensorDataWithShortAck {
		return ShortAck{}, false
	}
	// The wire layout packs {cmd_uid, cmd_result} into the 16-bit word: the
	// low byte is cmd_uid, the high byte is cmd_result.
	uid := uint16(uint8(f.ShortCmdResponse))
	result := uint8(f.ShortCmdResponse >> 8)
	if uint8(uid) == CmdUIDDontCare {
		return ShortAck{}, false
	}
	return ShortAck{UID: uid, Result: result}, true
}
