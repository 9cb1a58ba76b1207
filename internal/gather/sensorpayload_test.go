package gather

import (
	"testing"
	"time"

	"sandboxaq/mainboard/internal/boardtype"
)

func TestWriteSensorDataDecodesMCGPayload(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(smallLayout(), time.Millisecond, sink)

	var payload [40]byte
	putADC24(payload[0:], 1)
	putADC24(payload[3:], -2)
	putADC24(payload[6:], 3)
	putADC24(payload[9:], -4)
	payload[12], payload[13], payload[14], payload[15] = 9, 9, 9, 9

	e.WriteSensorData(0, payload)
	e.Tick()

	if len(sink.pkts) != 1 {
		t.Fatalf("expected 1 shipped packet, got %d", len(sink.pkts))
	}
	if e.SlotStats(0).Sent != 1 {
		t.Fatalf("expected Sent=1, got %+v", e.SlotStats(0))
	}
}

func TestWriteSensorDataFeedsIMUFragments(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(smallLayout(), time.Millisecond, sink)

	imuFrame := func(idx TribbleIndex, which byte, fill byte) [40]byte {
		var p [40]byte
		p[0] = byte(idx)
		p[1] = which
		for i := 2; i < 2+boardtype.TribbleSize; i++ {
			p[i] = fill
		}
		return p
	}

	e.WriteSensorData(2, imuFrame(TribbleHigh, 0, 0xAA))
	e.WriteSensorData(2, imuFrame(TribbleMid, 0, 0xBB))
	e.WriteSensorData(2, imuFrame(TribbleLow, 0, 0xCC))

	last := e.LastIMU(2, 0)
	if last[0] != 0xAA || last[boardtype.TribbleSize] != 0xBB || last[2*boardtype.TribbleSize] != 0xCC {
		t.Fatalf("unexpected committed IMU record: %v", last[:3])
	}
}
