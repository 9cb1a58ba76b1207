//go:build !tinygo

package spilink

import (
	"context"

	"sandboxaq/mainboard/internal/frame"
)

// LoopbackTransceiver stands in for a physical SPI bus on a host build
// (no tinygo, no real hardware): it always answers with a CRC-valid
// empty sensor-data frame, the same role ltc4015/driver_host.go's
// simDev plays for that driver's I2C device on non-tinygo builds. Board
// application-level loopback (deterministic waveform synthesis) still
// lives in internal/driver; this type only keeps the link layer from
// blocking or erroring when no real bus is present.
type LoopbackTransceiver struct{}

// NewLoopbackTransceiver returns a Transceiver suitable for host
// development and integration tests.
func NewLoopbackTransceiver() *LoopbackTransceiver { return &LoopbackTransceiver{} }

// Transfer ignores tx's command entirely and returns a valid, empty
// sensor-data frame so the link layer's CRC/decode path exercises
// normally without real hardware attached.
func (LoopbackTransceiver) Transfer(ctx context.Context, tx [frame.WireSize]byte) ([frame.WireSize]byte, error) {
	if err := ctx.Err(); err != nil {
		return [frame.WireSize]byte{}, err
	}
	f := frame.Frame{Cmd: frame.CmdStreamSensor, XInfo: tx[1]}
	return frame.Encode(f), nil
}
