package main

import (
	"context"
	"strings"
	"testing"

	"sandboxaq/mainboard/bus"
	"sandboxaq/mainboard/internal/cncpayload"
	"sandboxaq/mainboard/internal/status"
)

func TestMCUHandlerReboot(t *testing.T) {
	reg := newTestRegistry(t)
	h := mcuHandler(reg)

	resp, err := h(context.Background(), cncpayload.Payload{Peripheral: cncpayload.PerMCU, Action: cncpayload.ActionReboot})
	if err != nil {
		t.Fatalf("reboot: %v", err)
	}
	if !resp.Bool {
		t.Fatalf("expected reboot ack true")
	}

	v, err := reg.Get("REBOOT_FLAG")
	if err != nil || !v.Bool {
		t.Fatalf("expected REBOOT_FLAG set, got %+v err=%v", v, err)
	}
}

func TestMCUHandlerRejectsUnsupportedAction(t *testing.T) {
	reg := newTestRegistry(t)
	h := mcuHandler(reg)
	if _, err := h(context.Background(), cncpayload.Payload{Peripheral: cncpayload.PerMCU, Action: cncpayload.ActionSelfTest}); err == nil {
		t.Fatalf("expected an error for an unsupported MCU action")
	}
}

func TestFanHandlerWriteThenRead(t *testing.T) {
	reg := newTestRegistry(t)
	h := fanHandler(reg)

	if _, err := h(context.Background(), cncpayload.Payload{Peripheral: cncpayload.PerFan, Action: cncpayload.ActionWrite, Bool: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := h(context.Background(), cncpayload.Payload{Peripheral: cncpayload.PerFan, Action: cncpayload.ActionRead})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !resp.Bool {
		t.Fatalf("expected FAN_POP true after write")
	}
}

func TestPowerHandlerReportsHardwareError(t *testing.T) {
	b := bus.NewBus(4)
	mon := status.New(b)
	h := powerHandler(mon)

	resp, err := h(context.Background(), cncpayload.Payload{Peripheral: cncpayload.PerPower, Action: cncpayload.ActionRead})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Bool {
		t.Fatalf("expected no hardware error before any is raised")
	}

	mon.RaiseHardwareError(cncpayload.PerADC)
	resp, err = h(context.Background(), cncpayload.Payload{Peripheral: cncpayload.PerPower, Action: cncpayload.ActionRead})
	if err != nil {
		t.Fatalf("read after raise: %v", err)
	}
	if !resp.Bool {
		t.Fatalf("expected a hardware error to be reported")
	}
}

func TestDBGHandlerDumpsRequestedRegisters(t *testing.T) {
	reg := newTestRegistry(t)
	h := dbgHandler(reg)

	resp, err := h(context.Background(), cncpayload.Payload{
		Peripheral: cncpayload.PerDBG,
		Action:     cncpayload.ActionRead,
		Str:        `["MFG_WRITE_EN","FAN_POP"]`,
	})
	if err != nil {
		t.Fatalf("dbg: %v", err)
	}
	if !strings.Contains(resp.Str, "MFG_WRITE_EN=") || !strings.Contains(resp.Str, "FAN_POP=") {
		t.Fatalf("expected both register ids in response, got %q", resp.Str)
	}
}

func TestDBGHandlerIgnoresUnknownIDs(t *testing.T) {
	reg := newTestRegistry(t)
	h := dbgHandler(reg)

	resp, err := h(context.Background(), cncpayload.Payload{
		Peripheral: cncpayload.PerDBG,
		Action:     cncpayload.ActionRead,
		Str:        `["NOT_A_REAL_REGISTER"]`,
	})
	if err != nil {
		t.Fatalf("dbg: %v", err)
	}
	if resp.Str != "" {
		t.Fatalf("expected empty response for an unknown register id, got %q", resp.Str)
	}
}
