//go:build tinygo

package spilink

import (
	"context"

	"tinygo.org/x/drivers"

	"sandboxaq/mainboard/internal/frame"
)

// ChipSelect drives one board's SPI chip-select line low for the
// duration of a transfer. machine.Pin satisfies this directly.
type ChipSelect interface {
	Low()
	High()
}

// HardwareTransceiver is the real-hardware Transceiver backend: a
// drivers.SPI bus shared by several boards, each addressed by its own
// ChipSelect. Grounded on the teacher's driver_rp2.go / driver_host.go
// split (tinygo-tagged real chip access vs. a host simulator for the
// same interface).
type HardwareTransceiver struct {
	bus drivers.SPI
	cs  ChipSelect
}

// NewHardwareTransceiver returns a Transceiver driving bus with cs
// asserted for the duration of each transfer.
func NewHardwareTransceiver(bus drivers.SPI, cs ChipSelect) *HardwareTransceiver {
	return &HardwareTransceiver{bus: bus, cs: cs}
}

// Transfer performs one full-duplex exchange. tinygo's drivers.SPI.Tx
// has no cancellation hook, so ctx is only checked before the transfer
// starts; once asserted, the chip-select window runs to completion, the
// same real-time tradeoff the original firmware's DMA-driven transfer
// makes.
func (h *HardwareTransceiver) Transfer(ctx context.Context, tx [frame.WireSize]byte) ([frame.WireSize]byte, error) {
	var rx [frame.WireSize]byte
	if err := ctx.Err(); err != nil {
		return rx, err
	}
	h.cs.Low()
	defer h.cs.High()
	if err := h.bus.Tx(tx[:], rx[:]); err != nil {
		return rx, err
	}
	return rx, nil
}
