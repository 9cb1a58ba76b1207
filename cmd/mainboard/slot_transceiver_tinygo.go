//go:build tinygo

package main

import "sandboxaq/mainboard/internal/spilink"

// newSlotTransceiver is the tinygo build's hook for real per-board SPI
// wiring. Chip-select pin assignment is board-specific and outside this
// module's scope (spec.md's peripheral drivers live below the CNC
// addressing layer); a concrete board-support build tags in its own
// newSlotTransceiver override here, the same way the teacher's
// services/hal/internal/platform package splits getSelectedSetup by board
// build tag rather than hard-coding one board into the generic path.
func newSlotTransceiver(slot int) spilink.Transceiver {
	return nil
}
