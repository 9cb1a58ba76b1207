package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingTicker struct{ n atomic.Int64 }

func (c *countingTicker) Tick() { c.n.Add(1) }

func TestSensorTickOnlyFansOutToEnabledSlots(t *testing.T) {
	s := New(5*time.Millisecond, time.Hour, nil)
	a, b := &countingTicker{}, &countingTicker{}
	s.SetDriver(0, a)
	s.SetDriver(1, b)
	s.Enable(0, true)
	// slot 1 left disabled

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()

	if a.n.Load() == 0 {
		t.Fatalf("expected enabled slot 0 to have ticked at least once")
	}
	if b.n.Load() != 0 {
		t.Fatalf("expected disabled slot 1 to never tick, got %d", b.n.Load())
	}
}

func TestDisablingClearsFutureTicks(t *testing.T) {
	s := New(5*time.Millisecond, time.Hour, nil)
	a := &countingTicker{}
	s.SetDriver(0, a)
	s.Enable(0, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	time.Sleep(30 * time.Millisecond)
	s.Enable(0, false)
	time.Sleep(10 * time.Millisecond)
	stopped := a.n.Load()
	time.Sleep(40 * time.Millisecond)
	if a.n.Load() != stopped {
		t.Fatalf("expected no further ticks after disable: before=%d after=%d", stopped, a.n.Load())
	}
}

func TestStreamTickInvokesCallback(t *testing.T) {
	var count atomic.Int64
	s := New(time.Hour, 5*time.Millisecond, func() { count.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()

	if count.Load() == 0 {
		t.Fatalf("expected at least one stream tick callback")
	}
}

func TestSetSensorIntervalReprogramsTimer(t *testing.T) {
	s := New(time.Hour, time.Hour, nil)
	a := &countingTicker{}
	s.SetDriver(0, a)
	s.Enable(0, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	time.Sleep(10 * time.Millisecond)
	s.SetSensorInterval(5 * time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	if a.n.Load() == 0 {
		t.Fatalf("expected reprogrammed interval to produce ticks")
	}
}
