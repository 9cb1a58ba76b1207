package main

import (
	"log"
	"time"

	"sandboxaq/mainboard/x/ramp"
)

// ledTarget satisfies registry.DutySetter. Actual GPIO/PWM control of the
// chassis's green/red indicators is a peripheral driver outside this
// module's scope; this stands in as the wiring point a real driver would
// attach to. It fades brightness in over rampSteps rather than snapping
// straight to on, the same ramp.StartLinear shape the teacher uses for any
// logical level that should move smoothly rather than jump.
type ledTarget struct {
	name  string
	level uint16
}

const (
	ledTop       = 255
	rampSteps    = 16
	rampDuration = 160 * time.Millisecond
)

func (l *ledTarget) SetDuty(on bool) {
	target := uint16(0)
	if on {
		target = ledTop
	}
	cur := l.level
	// No real PWM driver backs this indicator (peripheral drivers below
	// CNC addressing are outside this module's scope), so the tick
	// callback reports "continue" immediately instead of sleeping —
	// StartLinear still walks every intermediate level, it just does so
	// without pacing against real time.
	ramp.StartLinear(cur, target, ledTop, uint32(rampDuration/time.Millisecond), rampSteps,
		func(d time.Duration) bool { return true },
		func(level uint16) { l.level = level },
	)
	log.Printf("[mainboard] %s LED -> level %d", l.name, l.level)
}
