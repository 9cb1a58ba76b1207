package loopback

import "testing"

func TestTickDeterministic(t *testing.T) {
	a := NewGenerator()
	b := NewGenerator()
	for i := 0; i < 200; i++ {
		va := a.Tick()
		vb := b.Tick()
		if va != vb {
			t.Fatalf("tick %d diverged: %v vs %v", i, va, vb)
		}
	}
}

func TestStepChannelsToggle(t *testing.T) {
	g := NewGenerator()
	first := g.Tick()
	prev0, prev4 := first[0], first[4]
	for i := 0; i < 20; i++ {
		v := g.Tick()
		if v[0] == prev0 {
			t.Fatalf("channel 0 failed to toggle at tick %d", i)
		}
		if v[4] == prev4 {
			t.Fatalf("channel 4 failed to toggle at tick %d", i)
		}
		prev0, prev4 = v[0], v[4]
	}
}

func TestRampChannelMonotonicBeforeOffsetWrap(t *testing.T) {
	g := NewGenerator()
	prev := g.Tick()[5]
	for i := 0; i < 100; i++ {
		v := g.Tick()[5]
		if v <= prev {
			t.Fatalf("ramp channel not increasing at tick %d: %d <= %d", i, v, prev)
		}
		prev = v
	}
}

func TestOffsetShiftsSineChannels(t *testing.T) {
	a := NewGenerator()
	b := NewGenerator()
	b.Offset = 17
	var va, vb [Channels]int32
	for i := 0; i < 5; i++ {
		va = a.Tick()
		vb = b.Tick()
	}
	if va[2] == vb[2] {
		t.Fatalf("expected offset to shift channel 2's sine phase")
	}
}

func TestSineTableBounds(t *testing.T) {
	for _, i := range []int32{-1000, -63, -1, 0, 1, 62, 63, 1000} {
		v := sine(i)
		if v < 49000 || v > 51000 {
			t.Fatalf("sine(%d) = %d out of expected range", i, v)
		}
	}
}
