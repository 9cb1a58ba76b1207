// Package packet computes the streaming-packet wire layout from spec.md
// §3/§4.D: a fixed top-level header followed by a dataReadings region whose
// internal offsets are derived once at boot from the 24-slot population map.
package packet

import (
	"encoding/binary"
	"math"

	"sandboxaq/mainboard/internal/boardtype"
)

// NumSlots is the number of sensor-board slots on the chassis.
const NumSlots = 24

// HeaderSize is uid(4) + version(1) + 4 per-type counts(4) + pad(3) +
// timestamp(8) = 20 bytes.
const HeaderSize = 4 + 1 + 4 + 3 + 8

// MaxEthernetSize is the MTU budget a finalized packet must fit within.
const MaxEthernetSize = 1500

// Header is the fixed prefix of a streaming packet.
type Header struct {
	UID         uint32
	Version     uint8
	MCGCount    uint8
	ECGCount    uint8
	ECG12Count  uint8
	IMUCount    uint8
	Timestamp   float64
}

// Encode writes h's wire representation (little-endian, 3 bytes of pad
// between the counts and the timestamp, which starts at byte 12).
func (h Header) Encode() [HeaderSize]byte {
	var out [HeaderSize]byte
	binary.LittleEndian.PutUint32(out[0:4], h.UID)
	out[4] = h.Version
	out[5] = h.MCGCount
	out[6] = h.ECGCount
	out[7] = h.ECG12Count
	out[8] = h.IMUCount
	// out[9:12] is the 3-byte pad, left zero.
	binary.LittleEndian.PutUint64(out[12:20], math.Float64bits(h.Timestamp))
	return out
}

// SlotLayout is the per-slot write-slot descriptor: a (kind, offset)
// descriptor into the dataReadings region, replacing the firmware's raw
// pointer-per-slot per the Design Notes; the record length follows from
// Type. The typed gather writers (WriteMCG, WriteECG, WriteECG12, the IMU
// commit) do not check Type; gather's WriteSensorData picks the writer
// from Type.
type SlotLayout struct {
	Type Type
	// Sensor0Offset is the byte offset of the slot's primary record.
	Sensor0Offset int
	// Sensor1Offset is only meaningful for IMUCoil slots (second record).
	Sensor1Offset int
}

// Type is re-exported so callers don't need both packages for a descriptor.
type Type = boardtype.Type

// Layout is the boot-computed packet shape for a given population.
type Layout struct {
	Slots        [NumSlots]SlotLayout
	Present      [NumSlots]bool
	DataReadingsSize int
	Counts       [5]int // indexed by boardtype.Type
	Degraded     bool // true if DataReadingsSize would push the packet past MaxEthernetSize
}

// CreateLayout computes offsets the same way the firmware's
// createPktStructure does: all MCG records first, then ECG, then ECG12,
// then two records per IMU_COIL board. It never fails outright — an
// over-budget layout is returned with Degraded set so the caller can log
// and continue, matching spec.md §4.D.
func CreateLayout(population [NumSlots]boardtype.Type) Layout {
	var l Layout

	mcgSize := boardtype.RecordSize(boardtype.MCG)
	ecgSize := boardtype.RecordSize(boardtype.ECG)
	ecg12Size := boardtype.RecordSize(boardtype.ECG12)
	imuSize := boardtype.IMURecordSize

	for _, t := range population {
		l.Counts[t]++
	}

	mcgBase := 0
	ecgBase := mcgBase + l.Counts[boardtype.MCG]*mcgSize
	ecg12Base := ecgBase + l.Counts[boardtype.ECG]*ecgSize
	imuBase := ecg12Base + l.Counts[boardtype.ECG12]*ecg12Size

	mcgNext, ecgNext, ecg12Next, imuNext := mcgBase, ecgBase, ecg12Base, imuBase

	for i, t := range population {
		switch t {
		case boardtype.MCG:
			l.Slots[i] = SlotLayout{Type: t, Sensor0Offset: mcgNext}
			l.Present[i] = true
			mcgNext += mcgSize
		case boardtype.ECG:
			l.Slots[i] = SlotLayout{Type: t, Sensor0Offset: ecgNext}
			l.Present[i] = true
			ecgNext += ecgSize
		case boardtype.ECG12:
			l.Slots[i] = SlotLayout{Type: t, Sensor0Offset: ecg12Next}
			l.Present[i] = true
			ecg12Next += ecg12Size
		case boardtype.IMUCoil:
			l.Slots[i] = SlotLayout{Type: t, Sensor0Offset: imuNext, Sensor1Offset: imuNext + imuSize}
			l.Present[i] = true
			imuNext += 2 * imuSize
		}
	}

	l.DataReadingsSize = imuNext
	if HeaderSize+l.DataReadingsSize > MaxEthernetSize {
		l.Degraded = true
	}
	return l
}
