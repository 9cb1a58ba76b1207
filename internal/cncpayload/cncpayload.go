// Package cncpayload implements the fixed-size CNC message payload that
// rides inside every SPI CNC / CNC_SHORT frame. The union of wire variants
// from spec.md §3 (u32 value / char[32] str / f32 fvalue / bool) is modeled
// as a tagged sum rather than an overlapping C union, per the Design Notes
// "payload unions" guidance: serialization to the wire layout is explicit
// and unused tail bytes are always zeroed before the frame's CRC is taken.
package cncpayload

import (
	"encoding/binary"
	"math"
)

// Peripheral selects the addressed sub-system on the target (main board or
// sensor board), per spec.md §6.
type Peripheral uint8

const (
	PerNOP Peripheral = iota
	PerDAC0Exc
	PerDAC0Comp
	PerDAC1Exc
	PerDAC1Comp
	PerDDS0A
	PerDDS0B
	PerDDS0C
	PerDDS1A
	PerDDS1B
	PerDDS1C
	PerADC
	PerIMU0
	PerIMU1
	PerMCU
	PerGPIO
	PerEEPROM
	PerTestMsg
	PerFan
	PerLog
	PerDBG
	PerPower

	// PerMax is one past the last valid Peripheral; used to size
	// per-peripheral tables (e.g. the hardware-error bitmap in
	// internal/status).
	PerMax
)

// Action is the operation requested of the peripheral.
type Action uint8

const (
	ActionRead Action = iota
	ActionWrite
	ActionReadLargeBuffer
	ActionReboot
	ActionSelfTest
)

// Kind tags which union variant Value holds.
type Kind uint8

const (
	KindNone Kind = iota
	KindU32
	KindString
	KindFloat
	KindBool
)

// StrLen is the size in bytes of the string variant and therefore of the
// whole union region: 40-byte wire payload minus the 12-byte fixed header.
const StrLen = WireSize - headerSize

const (
	headerSize = 12 // peripheral(1) + action(1) + shortCncID(2) + addr(4) + resultOrSize(4)
	WireSize   = 40
)

// Payload is the decoded, in-memory form of a CNC message payload.
type Payload struct {
	Peripheral   Peripheral
	Action       Action
	ShortCncID   uint16 // echoed back in spiDbMbPacketCmdResponse_t.cmdUid
	Addr         uint32
	ResultOrSize uint32 // result code on response; large-buffer size on ACTION_READ_LARGE_BUFFER

	Kind   Kind
	U32    uint32
	Str    string
	Float  float32
	Bool   bool
}

// Encode marshals p into the fixed 40-byte wire layout. Only the active
// Kind's variant is written; the rest of the union region stays zero, so
// stale values in the other variants never reach the wire and the CRC is
// deterministic. Kind itself is not encoded.
func Encode(p Payload) [WireSize]byte {
	var out [WireSize]byte
	out[0] = byte(p.Peripheral)
	out[1] = byte(p.Action)
	binary.LittleEndian.PutUint16(out[2:4], p.ShortCncID)
	binary.LittleEndian.PutUint32(out[4:8], p.Addr)
	binary.LittleEndian.PutUint32(out[8:12], p.ResultOrSize)

	union := out[headerSize:]
	switch p.Kind {
	case KindU32:
		binary.LittleEndian.PutUint32(union[:4], p.U32)
	case KindString:
		n := copy(union, p.Str)
		for i := n; i < len(union); i++ {
			union[i] = 0
		}
	case KindFloat:
		binary.LittleEndian.PutUint32(union[:4], math.Float32bits(p.Float))
	case KindBool:
		if p.Bool {
			union[0] = 1
		}
	}
	return out
}

// Decode is the inverse of Encode; it does not know which Kind the sender
// used, so it fills every typed view (U32, Float, Bool, Str) from the same
// union bytes and the caller sets Kind before interpreting them.
func Decode(wire [WireSize]byte) Payload {
	p := Payload{
		Peripheral:   Peripheral(wire[0]),
		Action:       Action(wire[1]),
		ShortCncID:   binary.LittleEndian.Uint16(wire[2:4]),
		Addr:         binary.LittleEndian.Uint32(wire[4:8]),
		ResultOrSize: binary.LittleEndian.Uint32(wire[8:12]),
	}
	union := wire[headerSize:]
	p.U32 = binary.LittleEndian.Uint32(union[:4])
	p.Float = math.Float32frombits(binary.LittleEndian.Uint32(union[:4]))
	p.Bool = union[0] != 0
	p.Str = cStr(union)
	return p
}

func cStr(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
