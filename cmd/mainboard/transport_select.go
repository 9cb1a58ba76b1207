package main

import (
	"context"
	"fmt"

	"sandboxaq/mainboard/internal/registry"
	"sandboxaq/mainboard/internal/transport"
)

// buildTransport constructs the one transport.Sink the gather engine ships
// through, chosen by IP_TX_DATA_TYPE. The register table notes the mode is
// "changeable only on reboot" (spec.md §6), so it is read exactly once here
// and never re-selected at runtime.
func buildTransport(ctx context.Context, reg *registry.Registry) (transport.Sink, error) {
	modeVal, err := reg.Get("IP_TX_DATA_TYPE")
	if err != nil {
		return nil, fmt.Errorf("mainboard: reading IP_TX_DATA_TYPE: %w", err)
	}
	mode, err := transport.ParseMode(modeVal.Str)
	if err != nil {
		return nil, err
	}

	switch mode {
	case transport.ModeTCP:
		port, err := reg.Get("TCP_CLIENT_PORT")
		if err != nil {
			return nil, err
		}
		return transport.NewTCPSink(ctx, int(port.U32), transport.DefaultMaxSendErrors)
	default:
		txPort, err := reg.Get("UDP_TX_PORT")
		if err != nil {
			return nil, err
		}
		serverIP, err := reg.Get("UDP_SERVER_IP")
		if err != nil {
			return nil, err
		}
		serverPort, err := reg.Get("UDP_SERVER_PORT")
		if err != nil {
			return nil, err
		}
		return transport.NewUDPSink(int(txPort.U32), serverIP.Str, int(serverPort.U32))
	}
}
