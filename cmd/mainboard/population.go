package main

import (
	"sandboxaq/mainboard/internal/boardtype"
	"sandboxaq/mainboard/internal/packet"
	"sandboxaq/mainboard/internal/registry"
)

// loadPopulation reads the SENSOR_BOARD_0..23 registers into the fixed
// array packet.CreateLayout expects. An unreadable or out-of-range entry
// is treated as EMPTY rather than failing boot — a missing board is a
// normal, expected chassis configuration.
func loadPopulation(reg *registry.Registry) [packet.NumSlots]boardtype.Type {
	var population [packet.NumSlots]boardtype.Type
	for slot := 0; slot < packet.NumSlots; slot++ {
		v, err := reg.Get(sensorBoardRegister(slot))
		if err != nil {
			continue
		}
		t := boardtype.Type(v.U32)
		if t > boardtype.ECG12 {
			continue
		}
		population[slot] = t
	}
	return population
}

func sensorBoardRegister(slot int) string {
	const digits = "0123456789"
	if slot < 10 {
		return "SENSOR_BOARD_" + string(digits[slot])
	}
	return "SENSOR_BOARD_" + string(digits[slot/10]) + string(digits[slot%10])
}
