package packet

import (
	"testing"

	"sandboxaq/mainboard/internal/boardtype"
)

func population(counts map[boardtype.Type]int) [NumSlots]boardtype.Type {
	var pop [NumSlots]boardtype.Type
	i := 0
	for t, n := range counts {
		for k := 0; k < n; k++ {
			pop[i] = t
			i++
		}
	}
	return pop
}

// S5: Configure {MCG×4, ECG×2, ECG12×1, IMU_COIL×3, EMPTY×14}.
func TestCreateLayout_S5Population(t *testing.T) {
	pop := population(map[boardtype.Type]int{
		boardtype.MCG:     4,
		boardtype.ECG:     2,
		boardtype.ECG12:   1,
		boardtype.IMUCoil: 3,
	})
	l := CreateLayout(pop)

	if l.Counts[boardtype.MCG] != 4 || l.Counts[boardtype.ECG] != 2 ||
		l.Counts[boardtype.ECG12] != 1 || l.Counts[boardtype.IMUCoil] != 3 {
		t.Fatalf("unexpected counts: %+v", l.Counts)
	}

	want := 4*boardtype.RecordSize(boardtype.MCG) +
		2*boardtype.RecordSize(boardtype.ECG) +
		1*boardtype.RecordSize(boardtype.ECG12) +
		3*2*boardtype.IMURecordSize
	if l.DataReadingsSize != want {
		t.Fatalf("dataReadings size = %d, want %d", l.DataReadingsSize, want)
	}
	if l.Degraded {
		t.Fatalf("layout unexpectedly degraded for a small population")
	}

	// Offsets must be non-overlapping and monotonic within each region.
	seen := map[int]bool{}
	for i, present := range l.Present {
		if !present {
			continue
		}
		s := l.Slots[i]
		size := boardtype.RecordSize(s.Type)
		if s.Type == boardtype.IMUCoil {
			size = boardtype.IMURecordSize
			if seen[s.Sensor1Offset] {
				t.Fatalf("overlapping IMU sensor1 offset %d", s.Sensor1Offset)
			}
			for b := 0; b < size; b++ {
				seen[s.Sensor1Offset+b] = true
			}
		}
		for b := 0; b < size; b++ {
			if seen[s.Sensor0Offset+b] {
				t.Fatalf("overlapping offset %d (slot %d)", s.Sensor0Offset+b, i)
			}
			seen[s.Sensor0Offset+b] = true
		}
	}
}

// Packet-layout determinism: same configuration ⇒ same offsets, every time.
func TestCreateLayout_Deterministic(t *testing.T) {
	pop := population(map[boardtype.Type]int{
		boardtype.MCG:     2,
		boardtype.ECG:     3,
		boardtype.IMUCoil: 1,
	})
	a := CreateLayout(pop)
	b := CreateLayout(pop)
	if a != b {
		t.Fatalf("layout is not deterministic for identical population:\n%+v\nvs\n%+v", a, b)
	}
}

func TestCreateLayout_RegionOrderMCGBeforeECGBeforeECG12BeforeIMU(t *testing.T) {
	pop := population(map[boardtype.Type]int{
		boardtype.MCG:     1,
		boardtype.ECG:     1,
		boardtype.ECG12:   1,
		boardtype.IMUCoil: 1,
	})
	l := CreateLayout(pop)

	var mcgOff, ecgOff, ecg12Off, imuOff int
	for i, present := range l.Present {
		if !present {
			continue
		}
		switch l.Slots[i].Type {
		case boardtype.MCG:
			mcgOff = l.Slots[i].Sensor0Offset
		case boardtype.ECG:
			ecgOff = l.Slots[i].Sensor0Offset
		case boardtype.ECG12:
			ecg12Off = l.Slots[i].Sensor0Offset
		case boardtype.IMUCoil:
			imuOff = l.Slots[i].Sensor0Offset
		}
	}
	if !(mcgOff < ecgOff && ecgOff < ecg12Off && ecg12Off < imuOff) {
		t.Fatalf("region order violated: mcg=%d ecg=%d ecg12=%d imu=%d", mcgOff, ecgOff, ecg12Off, imuOff)
	}
}
