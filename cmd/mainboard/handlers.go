package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/andreyvit/tinyjson"

	"sandboxaq/mainboard/errcode"
	"sandboxaq/mainboard/internal/cnc"
	"sandboxaq/mainboard/internal/cncpayload"
	"sandboxaq/mainboard/internal/registry"
	"sandboxaq/mainboard/internal/status"
	"sandboxaq/mainboard/x/conv"
)

// registerLocalHandlers installs the main-board-addressed CNC peripherals:
// MCU (reboot), FAN (population flag), POWER (hardware-error summary), and
// DBG (a small register-dump diagnostic). Grounded on dbCommTask.c's
// local-peripheral dispatch table, with everything below CNC addressing
// (the real reboot sequencer, fan driver, power-rail monitor) left out per
// spec.md's Non-goals.
func registerLocalHandlers(ctx context.Context, router *cnc.Router, mon *status.Monitor, reg *registry.Registry) {
	router.RegisterLocal(ctx, cncpayload.PerMCU, mcuHandler(reg))
	router.RegisterLocal(ctx, cncpayload.PerFan, fanHandler(reg))
	router.RegisterLocal(ctx, cncpayload.PerPower, powerHandler(mon))
	router.RegisterLocal(ctx, cncpayload.PerDBG, dbgHandler(reg))
}

func mcuHandler(reg *registry.Registry) cnc.LocalHandler {
	return func(ctx context.Context, p cncpayload.Payload) (cncpayload.Payload, error) {
		switch p.Action {
		case cncpayload.ActionReboot:
			if err := reg.Set("REBOOT_FLAG", registry.Value{Kind: registry.KindBool, Bool: true}); err != nil {
				return cncpayload.Payload{}, err
			}
			return cncpayload.Payload{Peripheral: cncpayload.PerMCU, Action: p.Action, Kind: cncpayload.KindBool, Bool: true}, nil
		case cncpayload.ActionRead:
			v, err := reg.Get("REBOOT_FLAG")
			if err != nil {
				return cncpayload.Payload{}, err
			}
			return cncpayload.Payload{Peripheral: cncpayload.PerMCU, Action: p.Action, Kind: cncpayload.KindBool, Bool: v.Bool}, nil
		default:
			return cncpayload.Payload{}, errcode.ParamRangeErr("cnc_local_mcu", "unsupported action for MCU peripheral")
		}
	}
}

func fanHandler(reg *registry.Registry) cnc.LocalHandler {
	return func(ctx context.Context, p cncpayload.Payload) (cncpayload.Payload, error) {
		switch p.Action {
		case cncpayload.ActionWrite:
			if err := reg.Set("FAN_POP", registry.Value{Kind: registry.KindBool, Bool: p.Bool}); err != nil {
				return cncpayload.Payload{}, err
			}
			return cncpayload.Payload{Peripheral: cncpayload.PerFan, Action: p.Action, Kind: cncpayload.KindBool, Bool: p.Bool}, nil
		case cncpayload.ActionRead:
			v, err := reg.Get("FAN_POP")
			if err != nil {
				return cncpayload.Payload{}, err
			}
			return cncpayload.Payload{Peripheral: cncpayload.PerFan, Action: p.Action, Kind: cncpayload.KindBool, Bool: v.Bool}, nil
		default:
			return cncpayload.Payload{}, errcode.ParamRangeErr("cnc_local_fan", "unsupported action for FAN peripheral")
		}
	}
}

func powerHandler(mon *status.Monitor) cnc.LocalHandler {
	return func(ctx context.Context, p cncpayload.Payload) (cncpayload.Payload, error) {
		if p.Action != cncpayload.ActionRead {
			return cncpayload.Payload{}, errcode.ParamRangeErr("cnc_local_power", "POWER peripheral only supports ACTION_READ")
		}
		return cncpayload.Payload{Peripheral: cncpayload.PerPower, Action: p.Action, Kind: cncpayload.KindBool, Bool: mon.AnyHardwareError()}, nil
	}
}

// dbgHandler answers a small diagnostic query: the request's Str field
// holds a JSON array of register ids (e.g. `["STREAM_INTERVAL_US"]`); the
// response's Str field holds "id=value;..." for each one found, truncated
// to fit the 28-byte CNC string region. tinyjson.Raw decodes the request —
// it has no encoder, so the response is assembled by hand rather than
// JSON-marshaled, matching the library's read-only surface.
func dbgHandler(reg *registry.Registry) cnc.LocalHandler {
	return func(ctx context.Context, p cncpayload.Payload) (cncpayload.Payload, error) {
		if p.Action != cncpayload.ActionRead {
			return cncpayload.Payload{}, errcode.ParamRangeErr("cnc_local_dbg", "DBG peripheral only supports ACTION_READ")
		}

		raw := tinyjson.Raw(strings.TrimRight(p.Str, "\x00"))
		val := raw.Value()
		ids, _ := val.([]any)

		var b strings.Builder
		for _, idAny := range ids {
			id, ok := idAny.(string)
			if !ok {
				continue
			}
			v, err := reg.Get(id)
			if err != nil {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(';')
			}
			b.WriteString(id)
			b.WriteByte('=')
			b.WriteString(formatValue(v))
		}

		out := b.String()
		if len(out) > cncpayload.StrLen {
			out = out[:cncpayload.StrLen]
		}
		return cncpayload.Payload{Peripheral: cncpayload.PerDBG, Action: p.Action, Kind: cncpayload.KindString, Str: out}, nil
	}
}

func formatValue(v registry.Value) string {
	switch v.Kind {
	case registry.KindU32:
		var buf [8]byte
		return "0x" + string(conv.U32Hex(buf[:], v.U32))
	case registry.KindBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case registry.KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Str
	}
}
