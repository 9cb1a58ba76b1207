package gather

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"sandboxaq/mainboard/internal/boardtype"
	"sandboxaq/mainboard/internal/packet"
)

type recordingSink struct {
	pkts [][]byte
}

func (s *recordingSink) Send(pkt []byte) {
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	s.pkts = append(s.pkts, cp)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func smallLayout() packet.Layout {
	var pop [packet.NumSlots]boardtype.Type
	pop[0] = boardtype.MCG
	pop[1] = boardtype.ECG
	pop[2] = boardtype.IMUCoil
	return packet.CreateLayout(pop)
}

func TestWriteMCGThenTickShipsNewData(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(smallLayout(), time.Millisecond, sink)

	ok := e.WriteMCG(0, RecordHeader{Version: 1, SensorID: 7, BoardID: 1}, [boardtype.MCGChannels]int32{1, 2, 3, 4}, [boardtype.CoilCtrlSize]byte{9, 9, 9, 9})
	if !ok {
		t.Fatalf("WriteMCG reported failure")
	}
	e.Tick()

	if len(sink.pkts) != 1 {
		t.Fatalf("expected 1 shipped packet, got %d", len(sink.pkts))
	}
	if e.SlotStats(0).Sent != 1 {
		t.Fatalf("expected Sent=1, got %+v", e.SlotStats(0))
	}
}

func TestOverwriteBeforeShipIsCounted(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(smallLayout(), time.Millisecond, sink)

	h := RecordHeader{Version: 1}
	e.WriteMCG(0, h, [boardtype.MCGChannels]int32{}, [boardtype.CoilCtrlSize]byte{})
	e.WriteMCG(0, h, [boardtype.MCGChannels]int32{}, [boardtype.CoilCtrlSize]byte{})

	if e.SlotStats(0).OverwrittenData != 1 {
		t.Fatalf("expected 1 overwrite, got %+v", e.SlotStats(0))
	}
}

func TestIMUReassembly_HighMidLowCommitsExactlyOnce(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(smallLayout(), time.Millisecond, sink)

	var high, mid, low [boardtype.TribbleSize]byte
	high[0], mid[0], low[0] = 1, 2, 3

	if e.FeedIMUFragment(2, 0, TribbleHigh, high, RecordHeader{}) {
		t.Fatalf("HIGH alone should not commit")
	}
	if e.FeedIMUFragment(2, 0, TribbleMid, mid, RecordHeader{}) {
		t.Fatalf("MID alone should not commit")
	}
	if !e.FeedIMUFragment(2, 0, TribbleLow, low, RecordHeader{}) {
		t.Fatalf("HIGH,MID,LOW should commit")
	}

	last := e.LastIMU(2, 0)
	if last[0] != 1 || last[boardtype.TribbleSize] != 2 || last[2*boardtype.TribbleSize] != 3 {
		t.Fatalf("unexpected committed record bytes: %v", last[:3])
	}
	if e.SlotStats(2).AlignmentData != 0 {
		t.Fatalf("expected no alignment errors on the happy path")
	}
}

func TestIMUReassembly_OutOfOrderCountsAlignmentAndCommitsNothing(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(smallLayout(), time.Millisecond, sink)

	var frag [boardtype.TribbleSize]byte
	committed := false
	committed = committed || e.FeedIMUFragment(2, 0, TribbleMid, frag, RecordHeader{})
	committed = committed || e.FeedIMUFragment(2, 0, TribbleLow, frag, RecordHeader{})
	committed = committed || e.FeedIMUFragment(2, 0, TribbleHigh, frag, RecordHeader{})
	committed = committed || e.FeedIMUFragment(2, 0, TribbleLow, frag, RecordHeader{}) // MID skipped

	if committed {
		t.Fatalf("out-of-order sequence must not commit a record")
	}
	if e.SlotStats(2).AlignmentData == 0 {
		t.Fatalf("expected alignment errors to be counted")
	}
}

func TestTimestampExtrapolation(t *testing.T) {
	sink := &recordingSink{}
	start := time.Unix(1000, 0)
	e := NewEngine(smallLayout(), time.Millisecond, sink)
	e.SetClock(fixedClock{t: start})

	for i := 0; i < 1000; i++ {
		e.Tick()
	}

	first := extractTimestamp(sink.pkts[0])
	last := extractTimestamp(sink.pkts[998])
	got := last - first
	want := 998 * 0.001
	if diff := got - want; diff < -0.002 || diff > 0.002 {
		t.Fatalf("timestamp drift too large: got delta %v want %v", got, want)
	}
}

func extractTimestamp(pkt []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(pkt[12:20]))
}
