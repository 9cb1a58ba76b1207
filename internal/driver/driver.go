// Package driver implements the per-board "dbComm" state machine from
// spec.md §4.B: tick-driven NOP polling of one sensor board, CNC
// request/response matching (including the short in-band ack path),
// resend-once-then-timeout on a lost response, and the silent-board
// auto-disable/auto-recover transition. One Driver exists per chassis
// slot; grounded on dbCommTask.c's handleDbMsg and on the
// ctx-driven worker-loop / non-blocking-channel shapes used throughout
// services/hal.
package driver

import (
	"context"
	"sync"

	"sandboxaq/mainboard/errcode"
	"sandboxaq/mainboard/internal/cncpayload"
	"sandboxaq/mainboard/internal/frame"
	"sandboxaq/mainboard/internal/loopback"
)

// State is the driver's coarse lifecycle state (spec.md §4.B).
type State int

const (
	StateDisabled State = iota
	StateIdle
	StateAwaitingCNC
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateAwaitingCNC:
		return "awaiting_cnc"
	default:
		return "idle"
	}
}

// Default tick-count thresholds; configurable per board via WithThresholds.
const (
	DefaultMaxUnansweredResponse        = 5
	DefaultMaxUnansweredResponseDisable = 10
)

// Sender is the outbound half of the link layer a Driver posts frames
// through — satisfied by *spilink.Bus.
type Sender interface {
	Send(boardID int, f frame.Frame) bool
}

// GatherSink receives decoded sensor payloads as they arrive, live (over
// SPI) or synthesized (loopback mode).
type GatherSink interface {
	WriteSensorData(boardID int, payload [40]byte)
}

// StatusSink is notified of enable/disable transitions so the status
// service and Gather's population view stay in sync.
type StatusSink interface {
	SetEnabled(boardID int, enabled bool)
}

type pendingCall struct {
	short bool
	reply chan cncReply
}

type cncReply struct {
	Payload cncpayload.Payload
	Err     error
}

// Stats accumulates the counters spec.md §4.B calls out per board.
type Stats struct {
	RxData        uint64
	RxCmds        uint64
	Retries       uint64
	Disables      uint64
	CRCErrors     uint64
	LastSensorUID uint8
}

// Driver runs one board's state machine. All exported methods are safe for
// concurrent use: Tick is called by the trigger scheduler, Deliver by the
// owning spilink.Bus, SendCNC by the CNC router.
type Driver struct {
	BoardID int

	sender     Sender
	gather     GatherSink
	statusSink StatusSink

	maxUnanswered        int
	maxUnansweredDisable int

	mu                 sync.Mutex
	state              State
	cmdUID             uint8
	xInfoMatch         uint8
	sensorPollUID      uint8
	responseDelayCount int
	disableCount       int
	resendAttempted    bool
	pending            *pendingCall
	savedFrame         frame.Frame

	loopbackGen *loopback.Generator

	stats Stats
}

// New returns an enabled Driver for boardID in the idle state.
func New(boardID int, sender Sender, gather GatherSink, statusSink StatusSink) *Driver {
	return &Driver{
		BoardID:               boardID,
		sender:                sender,
		gather:                gather,
		statusSink:            statusSink,
		maxUnanswered:         DefaultMaxUnansweredResponse,
		maxUnansweredDisable:  DefaultMaxUnansweredResponseDisable,
		state:                 StateIdle,
		sensorPollUID:         frame.CmdUIDDontCare,
	}
}

// WithThresholds overrides the resend/disable tick counts (used by tests
// that want S3/S4-style scenarios to converge quickly).
func (d *Driver) WithThresholds(maxUnanswered, maxUnansweredDisable int) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxUnanswered = maxUnanswered
	d.maxUnansweredDisable = maxUnansweredDisable
	return d
}

// SetLoopback enables or disables the deterministic waveform generator in
// place of live SPI polling.
func (d *Driver) SetLoopback(on bool, offset int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !on {
		d.loopbackGen = nil
		return
	}
	d.loopbackGen = loopback.NewGenerator()
	d.loopbackGen.Offset = offset
}

// State reports the driver's current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stats returns a copy of the driver's counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func nextUID(u uint8) uint8 {
	u++
	if u == frame.CmdUIDDontCare {
		u++
	}
	return u
}

// Tick advances the driver by one sensor-tick (DB_SPI_INTERVAL_US). In
// Enabled{idle} it polls with a NOP frame or, in loopback mode, synthesizes
// a sensor reading with no SPI traffic. In Enabled{awaiting_cnc} it runs
// the resend-once-then-timeout logic. Disabled boards are no-ops — the
// trigger scheduler is expected not to tick them, but Tick stays safe to
// call regardless.
func (d *Driver) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateDisabled:
		return
	case StateAwaitingCNC:
		d.tickAwaitingCNCLocked()
		return
	}

	if d.loopbackGen != nil {
		d.disableCount = 0
		sample := d.loopbackGen.Tick()
		payload := encodeLoopbackSample(sample)
		d.unlockedCallGather(payload)
		return
	}

	d.disableCount++
	if d.disableCount > d.maxUnansweredDisable {
		d.disableBoardLocked()
		return
	}
	d.sensorPollUID++
	d.sender.Send(d.BoardID, frame.Frame{Cmd: frame.CmdNOP, XInfo: d.sensorPollUID})
}

// unlockedCallGather hands a payload to the sink while mu is already held;
// GatherSink implementations must not call back into the Driver.
func (d *Driver) unlockedCallGather(payload [40]byte) {
	if d.gather != nil {
		d.gather.WriteSensorData(d.BoardID, payload)
	}
}

func encodeLoopbackSample(sample [loopback.Channels]int32) [40]byte {
	var out [40]byte
	for i, v := range sample {
		off := i * 3
		if off+3 > len(out) {
			break
		}
		out[off] = byte(v)
		out[off+1] = byte(v >> 8)
		out[off+2] = byte(v >> 16)
	}
	return out
}

func (d *Driver) tickAwaitingCNCLocked() {
	d.responseDelayCount++
	if d.responseDelayCount <= d.maxUnanswered {
		return
	}
	if !d.resendAttempted {
		d.resendAttempted = true
		d.responseDelayCount = 0
		d.stats.Retries++
		d.sender.Send(d.BoardID, d.savedFrame)
		return
	}
	d.failPendingLocked("no response within the unanswered-response budget", errcode.Timeout)
	d.state = StateIdle
	d.resendAttempted = false
}

func (d *Driver) failPendingLocked(msg string, code errcode.Code) {
	if d.pending == nil {
		return
	}
	p := d.pending
	d.pending = nil
	p.reply <- cncReply{Err: &errcode.E{C: code, Op: "cnc_request", Msg: msg}}
}

func (d *Driver) disableBoardLocked() {
	d.state = StateDisabled
	d.stats.Disables++
	reboot := cncpayload.Payload{Peripheral: cncpayload.PerMCU, Action: cncpayload.ActionWrite, Addr: 0, Kind: cncpayload.KindU32, U32: 1}
	enc := cncpayload.Encode(reboot)
	d.sender.Send(d.BoardID, frame.Frame{Cmd: frame.CmdCNC, XInfo: 0, ShortCmdResponse: frame.PackShortAck(frame.CmdUIDDontCare, 0), Payload: enc})
	if d.statusSink != nil {
		d.statusSink.SetEnabled(d.BoardID, false)
	}
}

// SendCNC issues a CNC request and blocks until the board replies, the
// retry/timeout logic above gives up, or ctx is canceled. short selects
// CNC_SHORT (in-band ack on the next sensor frame) over the full CNC/
// RESP_CNC round trip.
func (d *Driver) SendCNC(ctx context.Context, p cncpayload.Payload, short bool) (cncpayload.Payload, error) {
	d.mu.Lock()
	if d.state == StateDisabled {
		d.mu.Unlock()
		return cncpayload.Payload{}, &errcode.E{C: errcode.DeviceAbsent, Op: "cnc_request", Msg: "board disabled"}
	}
	if d.state == StateAwaitingCNC {
		d.mu.Unlock()
		return cncpayload.Payload{}, &errcode.E{C: errcode.ParamState, Op: "cnc_request", Msg: "request already in flight for this board"}
	}

	d.xInfoMatch++
	d.cmdUID = nextUID(d.cmdUID)
	p.ShortCncID = uint16(d.cmdUID)

	cmd := frame.CmdCNC
	if short {
		cmd = frame.CmdCNCShort
	}
	f := frame.Frame{
		Cmd:              cmd,
		XInfo:            d.xInfoMatch,
		ShortCmdResponse: frame.PackShortAck(d.cmdUID, 0),
		Payload:          cncpayload.Encode(p),
	}

	d.savedFrame = f
	d.responseDelayCount = 0
	d.resendAttempted = false
	d.state = StateAwaitingCNC
	pc := &pendingCall{short: short, reply: make(chan cncReply, 1)}
	d.pending = pc
	d.mu.Unlock()

	d.sender.Send(d.BoardID, f)

	select {
	case r := <-pc.reply:
		return r.Payload, r.Err
	case <-ctx.Done():
		return cncpayload.Payload{}, ctx.Err()
	}
}

// Deliver routes a decoded frame received from this board's SPI slot. It
// is called from the owning spilink.Bus goroutine.
func (d *Driver) Deliver(f frame.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasDisabled := d.state == StateDisabled
	d.disableCount = 0
	if wasDisabled {
		d.state = StateIdle
		if d.statusSink != nil {
			d.statusSink.SetEnabled(d.BoardID, true)
		}
	}

	switch f.Classify() {
	case frame.KindSensorData, frame.KindSensorDataWithShortAck:
		d.stats.RxData++
		d.stats.LastSensorUID = f.XInfo
		d.unlockedCallGather(f.Payload)
		if ack, ok := f.ShortAck(); ok {
			d.handleShortAckLocked(ack, f.Payload)
		}
	case frame.KindRespCNC:
		d.stats.RxCmds++
		d.handleRespCNCLocked(f)
	}
}

// DeliverCRCError records a CRC mismatch the owning spilink.Bus detected
// on this board's slot. It does not otherwise disturb the state machine —
// a corrupted frame is simply lost, and the existing resend-once-then-
// timeout path (tickAwaitingCNCLocked) or the next sensor poll recovers it.
func (d *Driver) DeliverCRCError() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.CRCErrors++
}

func (d *Driver) handleShortAckLocked(ack frame.ShortAck, payload [40]byte) {
	if d.state != StateAwaitingCNC || d.pending == nil || !d.pending.short {
		return
	}
	if uint8(ack.UID) != d.cmdUID {
		return
	}
	d.cmdUID = nextUID(d.cmdUID)
	decoded := cncpayload.Decode(payload)
	p := d.pending
	d.pending = nil
	d.state = StateIdle
	d.resendAttempted = false
	var err error
	if ack.Result != 0 {
		err = errcode.DeviceReportedErr("cnc_request", int(ack.Result))
	}
	p.reply <- cncReply{Payload: decoded, Err: err}
}

func (d *Driver) handleRespCNCLocked(f frame.Frame) {
	if d.state != StateAwaitingCNC || d.pending == nil || d.pending.short {
		return
	}
	decoded := cncpayload.Decode(f.Payload)
	p := d.pending
	d.pending = nil
	d.state = StateIdle
	d.resendAttempted = false

	var err error
	if f.XInfo != d.xInfoMatch {
		// Mismatch still delivers the payload it actually carries.
		err = &errcode.E{C: errcode.Mismatch, Op: "cnc_request", Msg: "response xinfo did not match the in-flight request"}
	} else if decoded.ResultOrSize != 0 {
		err = errcode.DeviceReportedErr("cnc_request", int(decoded.ResultOrSize))
	}
	p.reply <- cncReply{Payload: decoded, Err: err}
}
