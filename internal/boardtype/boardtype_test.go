package boardtype

import "testing"

func TestRecordSizes(t *testing.T) {
	cases := []struct {
		t    Type
		want int
	}{
		{MCG, HeaderSize + MCGChannels*AdcSampleSize + CoilCtrlSize},
		{ECG, HeaderSize + ECGChannels*AdcSampleSize},
		{ECG12, HeaderSize + ECG12Channels*AdcSampleSize},
		{EMPTY, 0},
	}
	for _, c := range cases {
		if got := RecordSize(c.t); got != c.want {
			t.Fatalf("RecordSize(%v) = %d, want %d", c.t, got, c.want)
		}
	}
}

func TestIMURecordSizeIsThreeTribbles(t *testing.T) {
	if IMUPayloadSize != 3*TribbleSize {
		t.Fatalf("IMUPayloadSize = %d, want 3*TribbleSize = %d", IMUPayloadSize, 3*TribbleSize)
	}
}

func TestFlagsByteRoundTrip(t *testing.T) {
	for _, ty := range []Type{MCG, ECG, ECG12, IMUCoil} {
		for _, isNew := range []bool{true, false} {
			flags := FlagsByte(ty, isNew)
			if HasNewData(flags) != isNew {
				t.Fatalf("HasNewData mismatch for %v new=%v flags=%#x", ty, isNew, flags)
			}
			if flags&^NEWDATAFlag != ty.WireTag() {
				t.Fatalf("WireTag not preserved for %v: flags=%#x tag=%#x", ty, flags, ty.WireTag())
			}
		}
	}
}

func TestWireTagDistinctAcrossTypes(t *testing.T) {
	seen := map[uint8]Type{}
	for _, ty := range []Type{MCG, ECG, IMUCoil, ECG12} {
		tag := ty.WireTag()
		if other, ok := seen[tag]; ok {
			t.Fatalf("WireTag collision: %v and %v both report %#x", ty, other, tag)
		}
		seen[tag] = ty
	}
}

func TestStringIsNonEmpty(t *testing.T) {
	for _, ty := range []Type{EMPTY, MCG, ECG, IMUCoil, ECG12} {
		if ty.String() == "" {
			t.Fatalf("String() empty for %d", ty)
		}
	}
}
