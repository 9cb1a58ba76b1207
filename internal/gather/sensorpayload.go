package gather

import "sandboxaq/mainboard/internal/boardtype"

// WriteSensorData implements driver.GatherSink directly on *Engine: it
// decodes the raw 40-byte SPI sensor payload per the configured slot's
// board type and routes to the matching typed write. This is the
// resolution of an open question the distilled spec leaves implicit —
// spec.md's §3/§6 define the on-wire *streaming-packet* record shapes
// but not the raw per-tick SPI payload's internal layout, since the
// original firmware fills a record in place from the same ADS1298/IMU
// read calls that produce the SPI reply. The layout chosen here:
//   - MCG:      4×3-byte ADC samples, then 4 bytes of coil control.
//   - ECG/ECG12: 8×3-byte ADC samples.
//   - IMU_COIL: byte 0 = tribble index, byte 1 = IMU instance (0 or 1),
//     bytes 2..17 = the 16-byte fragment.
// Unused tail bytes are zero-padded by the sender and ignored here.
func (e *Engine) WriteSensorData(boardID int, payload [40]byte) {
	if boardID < 0 || boardID >= len(e.layout.Slots) || !e.layout.Present[boardID] {
		return
	}
	h := RecordHeader{Version: 1, BoardID: uint8(boardID)}

	switch e.layout.Slots[boardID].Type {
	case boardtype.MCG:
		var channels [boardtype.MCGChannels]int32
		for i := range channels {
			channels[i] = getADC24(payload[i*boardtype.AdcSampleSize:])
		}
		var coil [boardtype.CoilCtrlSize]byte
		copy(coil[:], payload[boardtype.MCGChannels*boardtype.AdcSampleSize:])
		e.WriteMCG(boardID, h, channels, coil)

	case boardtype.ECG:
		var channels [boardtype.ECGChannels]int32
		for i := range channels {
			channels[i] = getADC24(payload[i*boardtype.AdcSampleSize:])
		}
		e.WriteECG(boardID, h, channels)

	case boardtype.ECG12:
		var channels [boardtype.ECG12Channels]int32
		for i := range channels {
			channels[i] = getADC24(payload[i*boardtype.AdcSampleSize:])
		}
		e.WriteECG12(boardID, h, channels)

	case boardtype.IMUCoil:
		which := int(payload[1])
		if which != 0 && which != 1 {
			return
		}
		idx := TribbleIndex(payload[0])
		var frag [boardtype.TribbleSize]byte
		copy(frag[:], payload[2:2+boardtype.TribbleSize])
		e.FeedIMUFragment(boardID, which, idx, frag, h)
	}
}

func getADC24(b []byte) int32 {
	v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if v&0x800000 != 0 {
		v |= ^int32(0xFFFFFF)
	}
	return v
}
