// Package spilink implements the SPI link layer from spec.md §4.A: one
// goroutine per physical bus, a bounded outbound queue feeding a
// DMA-style full-duplex Transceiver, and CRC-checked delivery of received
// frames up to the per-board driver. There are 4 buses on the chassis;
// each multiplexes several board chip-selects, grounded on the same
// ctx-driven worker-loop shape as services/hal's measureWorker.
package spilink

import (
	"context"
	"sync/atomic"

	"sandboxaq/mainboard/internal/frame"
)

// Transceiver abstracts one physical SPI transfer: a full-duplex exchange
// of WireSize bytes. Implementations drive the board's chip-select and the
// DMA engine; a fake in-memory implementation stands in for hardware in
// tests and the default (non-hw) build.
type Transceiver interface {
	Transfer(ctx context.Context, tx [frame.WireSize]byte) (rx [frame.WireSize]byte, err error)
}

// BoardLink receives frames the bus decoded for one board slot.
type BoardLink interface {
	Deliver(f frame.Frame)
	DeliverCRCError()
}

// Slot binds one board's chip-select-scoped Transceiver to the BoardLink
// (driver) that should receive its decoded frames.
type Slot struct {
	BoardID int
	Xcvr    Transceiver
	Driver  BoardLink
}

type outboundMsg struct {
	boardID int
	f       frame.Frame
}

// Stats accumulates link-layer counters for one bus, read via Snapshot.
type Stats struct {
	CRCErrors     uint64
	XferErrors    uint64
	QueueDropped  uint64
	FramesSent    uint64
	FramesDropped uint64
}

// Bus runs the per-bus send/receive loop for a set of board slots.
type Bus struct {
	ID    int
	slots map[int]*Slot
	outQ  chan outboundMsg

	crcErrors    atomic.Uint64
	xferErrors   atomic.Uint64
	queueDropped atomic.Uint64
	framesSent   atomic.Uint64
}

// NewBus builds a Bus over slots with a queue of depth queueLen. A full
// queue rejects the new message (Send reports false) rather
// than blocking the caller, matching the non-blocking-ISR-adjacent
// discipline used throughout the driver layer.
func NewBus(id int, slots []Slot, queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 32
	}
	b := &Bus{
		ID:   id,
		outQ: make(chan outboundMsg, queueLen),
		slots: make(map[int]*Slot, len(slots)),
	}
	for i := range slots {
		s := slots[i]
		b.slots[s.BoardID] = &s
	}
	return b
}

// AddSlot binds an additional board slot after construction. Used during
// startup wiring, where a board's Driver and the Bus it sends through are
// constructed in lockstep (the Driver needs the Bus as its Sender, so the
// Bus cannot take a fully-populated slot list up front).
func (b *Bus) AddSlot(s Slot) {
	b.slots[s.BoardID] = &s
}

// Send enqueues f for boardID. It returns false, without blocking, if the
// outbound queue is full or boardID isn't one of this bus's slots.
func (b *Bus) Send(boardID int, f frame.Frame) bool {
	if _, ok := b.slots[boardID]; !ok {
		return false
	}
	select {
	case b.outQ <- outboundMsg{boardID: boardID, f: f}:
		return true
	default:
		b.queueDropped.Add(1)
		return false
	}
}

// Run drains the outbound queue until ctx is canceled, performing one
// full-duplex Transfer per message and routing the result to the slot's
// driver. A CRC mismatch is counted both here (bus-wide) and on the
// originating board's own driver, and the frame is dropped — spec.md §4.A
// is explicit that the link layer never retransmits on its own; recovery
// is the driver's resend-once-then-timeout responsibility.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outQ:
			b.transact(ctx, msg)
		}
	}
}

func (b *Bus) transact(ctx context.Context, msg outboundMsg) {
	slot, ok := b.slots[msg.boardID]
	if !ok {
		return
	}
	rx, err := slot.Xcvr.Transfer(ctx, frame.Encode(msg.f))
	if err != nil {
		b.xferErrors.Add(1)
		return
	}
	b.framesSent.Add(1)
	f, err := frame.Decode(rx)
	if err != nil {
		b.crcErrors.Add(1)
		slot.Driver.DeliverCRCError()
		return
	}
	slot.Driver.Deliver(f)
}

// Snapshot returns a copy of the bus's counters.
func (b *Bus) Snapshot() Stats {
	return Stats{
		CRCErrors:    b.crcErrors.Load(),
		XferErrors:   b.xferErrors.Load(),
		QueueDropped: b.queueDropped.Load(),
		FramesSent:   b.framesSent.Load(),
	}
}
