package registry

import (
	"time"

	"sandboxaq/mainboard/internal/boardtype"
	"sandboxaq/mainboard/internal/packet"
)

// IntervalSetter is satisfied by *trigger.Scheduler; a separate
// interface here avoids an import cycle between registry and trigger.
type IntervalSetter interface {
	SetSensorInterval(d time.Duration)
	SetStreamInterval(d time.Duration)
}

// DutySetter is satisfied by cmd/mainboard's *ledTarget (or any component
// driving a PWM-style LED duty cycle from a register write).
type DutySetter interface {
	SetDuty(on bool)
}

// RegisterDefaults installs the abbreviated register table from
// spec.md §6, grounded on registerParams.c / board_registerParams.c per
// SPEC_FULL.md's supplemented-features list: ids, types, persistence,
// and the two concrete write hooks the spec calls out (stream-interval
// reprograms the trigger scheduler, green-LED changes duty cycle).
// sched and greenLED may be nil during tests that don't need live
// reprogramming; a nil hook target is simply skipped.
func RegisterDefaults(r *Registry, sched IntervalSetter, greenLED, redLED DutySetter) {
	r.Register(Entry{ID: "STREAM_INTERVAL_US", Kind: KindU32, Persistent: true, Default: Value{Kind: KindU32, U32: 1000},
		Hook: func(_, next Value) {
			if sched != nil {
				sched.SetStreamInterval(time.Duration(next.U32) * time.Microsecond)
			}
		}})
	r.Register(Entry{ID: "DB_SPI_INTERVAL_US", Kind: KindU32, Persistent: true, Default: Value{Kind: KindU32, U32: 2000},
		Hook: func(_, next Value) {
			if sched != nil {
				sched.SetSensorInterval(time.Duration(next.U32) * time.Microsecond)
			}
		}})

	r.Register(Entry{ID: "IP_TX_DATA_TYPE", Kind: KindString, Persistent: true, Default: Value{Kind: KindString, Str: "UDP"}})
	r.Register(Entry{ID: "IP_ADDR", Kind: KindString, Persistent: true, Default: Value{Kind: KindString, Str: "0.0.0.0"}})
	r.Register(Entry{ID: "NETMASK", Kind: KindString, Persistent: true, Default: Value{Kind: KindString, Str: "255.255.255.0"}})
	r.Register(Entry{ID: "GATEWAY", Kind: KindString, Persistent: true, Default: Value{Kind: KindString, Str: "0.0.0.0"}})
	r.Register(Entry{ID: "UDP_SERVER_IP", Kind: KindString, Persistent: true, Default: Value{Kind: KindString, Str: "0.0.0.0"}})
	r.Register(Entry{ID: "UDP_SERVER_PORT", Kind: KindU32, Persistent: true, Default: Value{Kind: KindU32, U32: 9000}})
	r.Register(Entry{ID: "UDP_TX_PORT", Kind: KindU32, Persistent: true, Default: Value{Kind: KindU32, U32: 9001}})
	r.Register(Entry{ID: "TCP_CLIENT_PORT", Kind: KindU32, Persistent: true, Default: Value{Kind: KindU32, U32: 9002}})
	r.Register(Entry{ID: "HTTP_PORT", Kind: KindU32, Persistent: true, Default: Value{Kind: KindU32, U32: 8080}})

	for slot := 0; slot < packet.NumSlots; slot++ {
		r.Register(Entry{
			ID:         sensorBoardID(slot),
			Kind:       KindU32,
			Persistent: true,
			Default:    Value{Kind: KindU32, U32: uint32(boardtype.EMPTY)},
		})
	}

	r.Register(Entry{ID: "ADC_READ_RATE", Kind: KindU32, Persistent: true, Default: Value{Kind: KindU32, U32: 500}})
	r.Register(Entry{ID: "ADC_READ_DUTY", Kind: KindU32, Persistent: true, Default: Value{Kind: KindU32, U32: 50}})
	r.Register(Entry{ID: "DDS_CLK_RATE", Kind: KindU32, Persistent: true, Default: Value{Kind: KindU32, U32: 1000}})
	r.Register(Entry{ID: "DDS_CLK_DUTY", Kind: KindU32, Persistent: true, Default: Value{Kind: KindU32, U32: 50}})

	r.Register(Entry{ID: "MFG_WRITE_EN", Kind: KindBool, Default: Value{Kind: KindBool, Bool: false}})

	r.Register(Entry{ID: "GREEN_LED_ON", Kind: KindBool, Default: Value{Kind: KindBool, Bool: false},
		Hook: func(_, next Value) {
			if greenLED != nil {
				greenLED.SetDuty(next.Bool)
			}
		}})
	r.Register(Entry{ID: "RED_LED_ON", Kind: KindBool, Default: Value{Kind: KindBool, Bool: false},
		Hook: func(_, next Value) {
			if redLED != nil {
				redLED.SetDuty(next.Bool)
			}
		}})

	r.Register(Entry{ID: "FAN_POP", Kind: KindBool, Default: Value{Kind: KindBool, Bool: false}})
	r.Register(Entry{ID: "REBOOT_FLAG", Kind: KindBool, Default: Value{Kind: KindBool, Bool: false}})
	r.Register(Entry{ID: "REBOOT_DELAY_MS", Kind: KindU32, Default: Value{Kind: KindU32, U32: 500}})

	r.Register(Entry{ID: "SERIAL_NUMBER", Kind: KindString, Persistent: true, Protected: true, Default: Value{Kind: KindString, Str: ""}})
	r.Register(Entry{ID: "HW_TYPE", Kind: KindString, Persistent: true, Protected: true, Default: Value{Kind: KindString, Str: ""}})
	r.Register(Entry{ID: "HW_VERSION", Kind: KindString, Persistent: true, Protected: true, Default: Value{Kind: KindString, Str: ""}})
}

// sensorBoardID builds the SENSOR_BOARD_0..23 register id for a slot.
func sensorBoardID(slot int) string {
	const digits = "0123456789"
	if slot < 10 {
		return "SENSOR_BOARD_" + string(digits[slot])
	}
	return "SENSOR_BOARD_" + string(digits[slot/10]) + string(digits[slot%10])
}
