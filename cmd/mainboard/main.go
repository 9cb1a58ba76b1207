// Command mainboard wires the chassis controller's runtime together: the
// register map, the 4 SPI buses and their per-board drivers, the
// sensor/stream trigger scheduler, the gather/packet engine, the network
// transport sink, the process-wide status monitor, and the CNC router
// that an (out-of-scope) HTTP layer would call into. Grounded on the
// teacher's main.go single init-then-run shape: build every component,
// start its goroutines, then block until the process is asked to stop.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sandboxaq/mainboard/bus"
	"sandboxaq/mainboard/internal/boardtype"
	"sandboxaq/mainboard/internal/cnc"
	"sandboxaq/mainboard/internal/driver"
	"sandboxaq/mainboard/internal/gather"
	"sandboxaq/mainboard/internal/packet"
	"sandboxaq/mainboard/internal/registry"
	"sandboxaq/mainboard/internal/spilink"
	"sandboxaq/mainboard/internal/status"
	"sandboxaq/mainboard/internal/trigger"
)

// mainBoardID is the CNC destination value meaning "the controller
// itself" rather than one of the 24 sensor-board slots.
const mainBoardID = 255

// numBuses is the chassis's fixed SPI bus count (spec.md §4.A).
const numBuses = 4

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := bus.NewBus(16)
	statusMon := status.New(b)
	green, red := &ledTarget{name: "green"}, &ledTarget{name: "red"}

	reg := registry.New(b, registry.NewMemStore())

	var engine *gather.Engine
	sched := trigger.New(2000*time.Microsecond, 1000*time.Microsecond, func() {
		if engine != nil {
			engine.Tick()
		}
	})
	registry.RegisterDefaults(reg, sched, green, red)

	population := loadPopulation(reg)
	layout := packet.CreateLayout(population)
	if layout.Degraded {
		log.Printf("[mainboard] packet layout degraded: dataReadings=%dB exceeds the Ethernet MTU budget", layout.DataReadingsSize)
	}

	sink, err := buildTransport(ctx, reg)
	if err != nil {
		log.Fatalf("[mainboard] transport init failed: %v", err)
	}
	defer sink.Close()

	sensorPeriod := durationOf(reg, "DB_SPI_INTERVAL_US")
	engine = gather.NewEngine(layout, sensorPeriod, sink)

	buses := make([]*spilink.Bus, numBuses)
	for i := range buses {
		buses[i] = spilink.NewBus(i, nil, 64)
	}

	router := cnc.New(mainBoardID, b)
	for slot := 0; slot < packet.NumSlots; slot++ {
		busIdx := slot % numBuses
		d := driver.New(slot, buses[busIdx], engine, statusMon)
		loopbackEnabled := population[slot] == boardtype.EMPTY
		if loopbackEnabled {
			d.SetLoopback(true, int32(slot))
		}
		buses[busIdx].AddSlot(spilink.Slot{BoardID: slot, Xcvr: newSlotTransceiver(slot), Driver: d})
		router.RegisterBoard(slot, d)
		sched.SetDriver(slot, d)
		// An empty slot still needs its sensor tick: that's what drives the
		// loopback generator armed above, so every slot (populated or not)
		// is enabled here.
		sched.Enable(slot, population[slot] != boardtype.EMPTY || loopbackEnabled)
	}

	registerLocalHandlers(ctx, router, statusMon, reg)

	for i := range buses {
		go buses[i].Run(ctx)
	}
	go sched.Run(ctx)

	txMode, _ := reg.Get("IP_TX_DATA_TYPE")
	log.Printf("[mainboard] started: %d/%d slots populated, transport=%s", countPopulated(population), packet.NumSlots, txMode.Str)
	<-ctx.Done()
	log.Printf("[mainboard] shutting down")
}

func countPopulated(population [packet.NumSlots]boardtype.Type) int {
	n := 0
	for _, t := range population {
		if t != boardtype.EMPTY {
			n++
		}
	}
	return n
}

func durationOf(reg *registry.Registry, id string) time.Duration {
	v, err := reg.Get(id)
	if err != nil {
		return 0
	}
	return time.Duration(v.U32) * time.Microsecond
}
