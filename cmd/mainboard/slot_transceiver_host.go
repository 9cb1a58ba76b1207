//go:build !tinygo

package main

import "sandboxaq/mainboard/internal/spilink"

// newSlotTransceiver returns the host build's Transceiver for slot: a
// new LoopbackTransceiver per call, since no physical SPI bus exists off-target.
func newSlotTransceiver(slot int) spilink.Transceiver {
	return spilink.NewLoopbackTransceiver()
}
