// Package status implements the process-wide hardware-error bitmap and
// RED LED precedence rule from spec.md §7 ("Hardware peripheral
// failure... surfaced by status endpoints and by the RED LED blink rate
// mapping (hardware > config > network > none)"). Grounded on
// raiseIssue.c's errorPeripheral[] table and handleRedLedPriority, with
// the CLI/JSON surface replaced by retained bus publication per
// SPEC_FULL.md's ambient-stack section.
package status

import (
	"sync"
	"time"

	"sandboxaq/mainboard/bus"
	"sandboxaq/mainboard/internal/cncpayload"
)

// Blink half-periods. Their order (hardware fastest, network slowest)
// follows raiseIssue.c's *_RLED_FREQ_100Hz constants; the millisecond
// values themselves are chosen here, not converted from those constants.
const (
	hardwareBlinkPeriod = 200 * time.Millisecond
	configBlinkPeriod   = 400 * time.Millisecond
	networkBlinkPeriod  = 500 * time.Millisecond
)

// Reason names the precedence tier a LED state was chosen for.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNetwork
	ReasonConfig
	ReasonHardware
)

// LEDState is what a caller (or an actual GPIO/PWM driver) renders.
type LEDState struct {
	On     bool
	Period time.Duration // 0 means solid off
	Reason Reason
}

var topicRedLED = bus.T("status", "led", "red")
var topicPeripheralError = bus.T("status", "peripheral", "error")
var topicConfigError = bus.T("status", "config", "error")
var topicNetworkError = bus.T("status", "network", "error")

func boardAbsentTopic(slot int) bus.Topic { return bus.T("status", "board", "absent", slot) }

// Monitor tracks the process-wide error state and republishes the
// resulting RED LED directive as a retained message whenever the state
// changes, mirroring handleRedLedPriority's "recompute on every raise".
type Monitor struct {
	conn *bus.Connection

	mu                  sync.Mutex
	peripheralError     [cncpayload.PerMax]bool
	configurationError  bool
	networkError        bool
	absentBoards        map[int]bool
}

// New returns an empty Monitor publishing over b.
func New(b *bus.Bus) *Monitor {
	return &Monitor{
		conn:         b.NewConnection("status"),
		absentBoards: make(map[int]bool),
	}
}

// RaiseHardwareError latches peripheral as failed. Grounded directly on
// hardwareFailure(peripheral) in raiseIssue.c; hardware errors are never
// auto-cleared, matching the original's "latched" behavior.
func (m *Monitor) RaiseHardwareError(peripheral cncpayload.Peripheral) {
	m.mu.Lock()
	m.peripheralError[peripheral] = true
	m.mu.Unlock()
	m.publish()
}

// AnyHardwareError reports testForPeripheralError()'s result.
func (m *Monitor) AnyHardwareError() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.peripheralError {
		if e {
			return true
		}
	}
	return false
}

// SetConfigurationError raises or clears the "hardware board type differs
// from configured slot type" condition from spec.md §7.
func (m *Monitor) SetConfigurationError(on bool) {
	m.mu.Lock()
	m.configurationError = on
	m.mu.Unlock()
	m.conn.Publish(m.conn.NewMessage(topicConfigError, on, true))
	m.publish()
}

// SetNetworkError raises or clears a transport-layer error condition
// (e.g. the TCP sink has no client, or its send-error threshold tripped).
func (m *Monitor) SetNetworkError(on bool) {
	m.mu.Lock()
	m.networkError = on
	m.mu.Unlock()
	m.conn.Publish(m.conn.NewMessage(topicNetworkError, on, true))
	m.publish()
}

// SetBoardAbsent marks slot as disabled/absent (or clears that mark),
// mirroring S3's "status endpoint reports slot N absent".
func (m *Monitor) SetBoardAbsent(slot int, absent bool) {
	m.mu.Lock()
	if absent {
		m.absentBoards[slot] = true
	} else {
		delete(m.absentBoards, slot)
	}
	m.mu.Unlock()
	m.conn.Publish(m.conn.NewMessage(boardAbsentTopic(slot), absent, true))
}

// SetEnabled implements driver.StatusSink so a Monitor can be registered
// directly on every board Driver: a disabled board is a board-absent
// status condition, and vice versa.
func (m *Monitor) SetEnabled(boardID int, enabled bool) {
	m.SetBoardAbsent(boardID, !enabled)
}

// AbsentBoards returns the currently-absent slot ids in no particular
// order (map iteration order); callers needing a stable order should sort
// the result.
func (m *Monitor) AbsentBoards() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, 0, len(m.absentBoards))
	for slot := range m.absentBoards {
		out = append(out, slot)
	}
	return out
}

// RedLED computes the current RED LED directive under the
// hardware > config > network > none precedence rule.
func (m *Monitor) RedLED() LEDState {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case anyTrue(m.peripheralError[:]):
		return LEDState{On: true, Period: hardwareBlinkPeriod, Reason: ReasonHardware}
	case m.configurationError:
		return LEDState{On: true, Period: configBlinkPeriod, Reason: ReasonConfig}
	case m.networkError:
		return LEDState{On: true, Period: networkBlinkPeriod, Reason: ReasonNetwork}
	default:
		return LEDState{On: false, Reason: ReasonNone}
	}
}

func (m *Monitor) publish() {
	state := m.RedLED()
	m.conn.Publish(m.conn.NewMessage(topicRedLED, state, true))
	m.conn.Publish(m.conn.NewMessage(topicPeripheralError, m.AnyHardwareError(), true))
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}
