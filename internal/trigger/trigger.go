// Package trigger implements the two periodic sources from spec.md §4.C:
// the sensor tick (DB_SPI_INTERVAL_US), which fans out to every enabled
// board's driver, and the stream tick (STREAM_INTERVAL_US), which notifies
// the Gather engine to swap and ship. Both periods are reprogrammable at
// runtime. Grounded on services/hal's measureWorker: a single ctx-driven
// goroutine per source, reprogrammed by stopping and resetting a
// *time.Timer rather than recreating it.
package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Ticker is satisfied by *driver.Driver; kept minimal here to avoid a
// package-level dependency from trigger on driver.
type Ticker interface {
	Tick()
}

const NumSlots = 24

// Scheduler owns both periodic sources and the 24-bit enabled mask that
// gates the sensor tick's fan-out. Clearing a slot's bit before the next
// tick is how a board is dropped from polling (spec.md's cancellation
// semantics); any SPI exchange already in flight on that bus completes on
// its own.
type Scheduler struct {
	mu      sync.Mutex
	drivers [NumSlots]Ticker

	enabledMask atomic.Uint32

	sensorInterval atomic.Int64 // nanoseconds
	streamInterval atomic.Int64

	onStreamTick func()

	sensorReprogram chan struct{}
	streamReprogram chan struct{}
}

// New builds a Scheduler with the given default intervals. onStreamTick is
// invoked (synchronously, from the stream-tick goroutine) on every stream
// tick — typically *gather.Engine's Tick method.
func New(sensorInterval, streamInterval time.Duration, onStreamTick func()) *Scheduler {
	s := &Scheduler{
		onStreamTick:    onStreamTick,
		sensorReprogram: make(chan struct{}, 1),
		streamReprogram: make(chan struct{}, 1),
	}
	s.sensorInterval.Store(int64(sensorInterval))
	s.streamInterval.Store(int64(streamInterval))
	return s
}

// SetDriver attaches slot's Ticker (nil clears it and implicitly disables
// the slot).
func (s *Scheduler) SetDriver(slot int, t Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers[slot] = t
}

// Enable sets or clears slot's bit in the trigger bitmap.
func (s *Scheduler) Enable(slot int, enabled bool) {
	for {
		old := s.enabledMask.Load()
		var next uint32
		if enabled {
			next = old | (1 << uint(slot))
		} else {
			next = old &^ (1 << uint(slot))
		}
		if s.enabledMask.CompareAndSwap(old, next) {
			return
		}
	}
}

// SetSensorInterval reprograms the sensor-tick period. It does not touch
// the Gather engine's timestamp delta: that is set separately through
// gather.Engine.SetSensorTickPeriod, since the two are independently owned
// here.
func (s *Scheduler) SetSensorInterval(d time.Duration) {
	s.sensorInterval.Store(int64(d))
	select {
	case s.sensorReprogram <- struct{}{}:
	default:
	}
}

// SetStreamInterval reprograms the stream-tick period.
func (s *Scheduler) SetStreamInterval(d time.Duration) {
	s.streamInterval.Store(int64(d))
	select {
	case s.streamReprogram <- struct{}{}:
	default:
	}
}

// Run starts both periodic loops and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.sensorLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.streamLoop(ctx)
	}()
	wg.Wait()
}

func (s *Scheduler) sensorLoop(ctx context.Context) {
	timer := time.NewTimer(time.Duration(s.sensorInterval.Load()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.sensorReprogram:
			drainTimer(timer)
			timer.Reset(time.Duration(s.sensorInterval.Load()))
		case <-timer.C:
			s.fanOutSensorTick()
			timer.Reset(time.Duration(s.sensorInterval.Load()))
		}
	}
}

func (s *Scheduler) fanOutSensorTick() {
	mask := s.enabledMask.Load()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < NumSlots; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		if d := s.drivers[i]; d != nil {
			d.Tick()
		}
	}
}

func (s *Scheduler) streamLoop(ctx context.Context) {
	timer := time.NewTimer(time.Duration(s.streamInterval.Load()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.streamReprogram:
			drainTimer(timer)
			timer.Reset(time.Duration(s.streamInterval.Load()))
		case <-timer.C:
			if s.onStreamTick != nil {
				s.onStreamTick()
			}
			timer.Reset(time.Duration(s.streamInterval.Load()))
		}
	}
}

func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
