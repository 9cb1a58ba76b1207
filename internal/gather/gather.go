// Package gather implements the double-buffered streaming-packet engine
// from spec.md §4.D: two packet buffers alternated by stream tick, a
// mutex that guards the index swap and each record copy into the write
// buffer (never held across an SPI transfer), per-slot MCG/ECG/ECG12
// writes with overwrite detection, and IMU tribble reassembly. Grounded on
// MB_gatherTask.c's streamDataIdx swap and the sensor record layouts it
// defines, with the firmware's pointer-per-slot replaced by
// packet.Layout's (kind, offset) descriptors per the Design Notes.
package gather

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"sandboxaq/mainboard/internal/boardtype"
	"sandboxaq/mainboard/internal/packet"
)

// bufLock is a channel-backed mutex that additionally supports a timed
// try-lock, which sync.Mutex cannot express. Buffer size 1 makes the
// channel itself the lock token.
type bufLock chan struct{}

func newBufLock() bufLock {
	l := make(bufLock, 1)
	l <- struct{}{}
	return l
}

// Lock blocks indefinitely; used only by the swap path, which runs at the
// highest priority and must always make progress.
func (l bufLock) Lock() { <-l }

// TryLock acquires within d or reports false; used by per-board writers,
// which are expected to drop the cycle rather than stall the driver.
func (l bufLock) TryLock(d time.Duration) bool {
	select {
	case <-l:
		return true
	case <-time.After(d):
		return false
	}
}

func (l bufLock) Unlock() { l <- struct{}{} }

// Sink receives a finalized, ready-to-send packet buffer once per stream
// tick — satisfied by the transport layer.
type Sink interface {
	Send(pkt []byte)
}

// Clock abstracts wall-clock reads so timestamp resync is testable.
type Clock interface{ Now() time.Time }

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// RecordHeader is the fixed, meaningful prefix of every MCG/ECG/ECG12/IMU
// record. In MCG/ECG/ECG12 records the remaining bytes up to
// boardtype.HeaderSize are reserved; an IMU record's payload follows its
// boardtype.IMUHeaderSize-byte header directly.
type RecordHeader struct {
	Version  uint8
	SensorID uint8
	BoardID  uint8
}

// TribbleIndex is the 2-bit fragment-position tag carried in every IMU
// sensor reply (spec.md §6): reassembly only accepts the exact sequence
// HIGH, MID, LOW.
type TribbleIndex uint8

const (
	TribbleNew TribbleIndex = iota
	TribbleLow
	TribbleMid
	TribbleHigh
)

type imuPhase int

const (
	imuIdle imuPhase = iota
	imuGotHigh
	imuGotMid
)

type imuAssembly struct {
	phase imuPhase
	buf   [boardtype.IMUPayloadSize]byte
}

// SlotStats accumulates the per-slot counters spec.md §4.D/§8 call out.
type SlotStats struct {
	OverwrittenData uint64
	AlignmentData   uint64
	Sent            uint64
	Missed          uint64
}

// Stats is the engine-wide counters.
type Stats struct {
	AccessBlocked uint64
	UID           uint32
}

// Engine is the double-buffered packet assembler for one chassis.
type Engine struct {
	layout packet.Layout
	sink   Sink
	clock  Clock

	writeDeadline time.Duration
	tsDelta       float64

	lock    bufLock
	buffers [2][]byte
	active  int // buffer index currently open for writes

	uid       atomic.Uint32
	tickCount uint64
	timestamp float64

	accessBlocked atomic.Uint64

	statsMu   sync.Mutex
	slotStats [packet.NumSlots]SlotStats

	imuMu sync.Mutex
	imu   [packet.NumSlots][2]imuAssembly

	lastIMUMu sync.Mutex
	lastIMU   [packet.NumSlots][2][boardtype.IMUPayloadSize]byte
}

// NewEngine builds an Engine over layout. sensorTickPeriod sets both the
// per-write acquire deadline (2 ticks, per spec.md §4.D) and the
// timestamp-extrapolation delta (reprogrammed via SetSensorTickPeriod if
// the sensor tick's period changes at runtime).
func NewEngine(layout packet.Layout, sensorTickPeriod time.Duration, sink Sink) *Engine {
	size := packet.HeaderSize + layout.DataReadingsSize
	e := &Engine{
		layout:        layout,
		sink:          sink,
		clock:         wallClock{},
		writeDeadline: 2 * sensorTickPeriod,
		tsDelta:       sensorTickPeriod.Seconds(),
		lock:          newBufLock(),
	}
	e.buffers[0] = make([]byte, size)
	e.buffers[1] = make([]byte, size)
	return e
}

// SetClock overrides the wall clock (tests only).
func (e *Engine) SetClock(c Clock) { e.clock = c }

// SetSensorTickPeriod reprograms the write-acquire deadline and the
// timestamp delta together, per spec.md §4.C's note that changing
// DB_SPI_INTERVAL_US "updates the streaming time-delta constant".
func (e *Engine) SetSensorTickPeriod(d time.Duration) {
	e.writeDeadline = 2 * d
	e.tsDelta = d.Seconds()
}

// dataOffset is packet.HeaderSize plus a dataReadings-relative offset.
func (e *Engine) dataOffset(off int) int { return packet.HeaderSize + off }

// WriteMCG writes slot's MCG record into the currently open buffer.
func (e *Engine) WriteMCG(slot int, h RecordHeader, channels [boardtype.MCGChannels]int32, coilCtrl [boardtype.CoilCtrlSize]byte) bool {
	if !e.lock.TryLock(e.writeDeadline) {
		e.accessBlocked.Add(1)
		return false
	}
	defer e.lock.Unlock()

	off := e.dataOffset(e.layout.Slots[slot].Sensor0Offset)
	buf := e.buffers[e.active]
	e.noteOverwriteLocked(slot, buf, off)

	writeRecordHeader(buf[off:], h, boardtype.MCG, true)
	p := off + boardtype.HeaderSize
	for i, v := range channels {
		putADC24(buf[p+i*boardtype.AdcSampleSize:], v)
	}
	copy(buf[p+boardtype.MCGChannels*boardtype.AdcSampleSize:], coilCtrl[:])
	e.statsMu.Lock()
	e.slotStats[slot].Sent++
	e.statsMu.Unlock()
	return true
}

// WriteECG writes slot's ECG record (8 channels, no coil control data).
func (e *Engine) WriteECG(slot int, h RecordHeader, channels [boardtype.ECGChannels]int32) bool {
	return e.writeECGShaped(slot, h, boardtype.ECG, channels[:])
}

// WriteECG12 writes slot's ECG12 record; same shape as ECG.
func (e *Engine) WriteECG12(slot int, h RecordHeader, channels [boardtype.ECG12Channels]int32) bool {
	return e.writeECGShaped(slot, h, boardtype.ECG12, channels[:])
}

func (e *Engine) writeECGShaped(slot int, h RecordHeader, t boardtype.Type, channels []int32) bool {
	if !e.lock.TryLock(e.writeDeadline) {
		e.accessBlocked.Add(1)
		return false
	}
	defer e.lock.Unlock()

	off := e.dataOffset(e.layout.Slots[slot].Sensor0Offset)
	buf := e.buffers[e.active]
	e.noteOverwriteLocked(slot, buf, off)

	writeRecordHeader(buf[off:], h, t, true)
	p := off + boardtype.HeaderSize
	for i, v := range channels {
		putADC24(buf[p+i*boardtype.AdcSampleSize:], v)
	}
	e.statsMu.Lock()
	e.slotStats[slot].Sent++
	e.statsMu.Unlock()
	return true
}

// noteOverwriteLocked must be called with e.lock held; it increments
// overwritten_data if the destination record already carries NEW_DATA.
func (e *Engine) noteOverwriteLocked(slot int, buf []byte, recordOff int) {
	flagsOff := recordOff + 3
	if flagsOff >= len(buf) {
		return
	}
	if boardtype.HasNewData(buf[flagsOff]) {
		e.statsMu.Lock()
		e.slotStats[slot].OverwrittenData++
		e.statsMu.Unlock()
	}
}

func writeRecordHeader(dst []byte, h RecordHeader, t boardtype.Type, newData bool) {
	dst[0] = h.Version
	dst[1] = h.SensorID
	dst[2] = h.BoardID
	dst[3] = boardtype.FlagsByte(t, newData)
	for i := 4; i < boardtype.HeaderSize; i++ {
		dst[i] = 0
	}
}

func putADC24(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// FeedIMUFragment advances the reassembly state machine for slot's
// which-th IMU record (0 or 1, per packet.SlotLayout.Sensor0Offset /
// Sensor1Offset) with one tribble. It commits and returns true only when
// HIGH, MID, LOW arrive in that exact order; any other order resets the
// assembly and counts an alignment error.
func (e *Engine) FeedIMUFragment(slot, which int, idx TribbleIndex, data [boardtype.TribbleSize]byte, h RecordHeader) bool {
	e.imuMu.Lock()
	st := &e.imu[slot][which]

	switch st.phase {
	case imuIdle:
		if idx == TribbleHigh {
			copy(st.buf[0:boardtype.TribbleSize], data[:])
			st.phase = imuGotHigh
		} else if idx != TribbleNew {
			e.bumpAlignment(slot)
		}
		e.imuMu.Unlock()
		return false
	case imuGotHigh:
		if idx == TribbleMid {
			copy(st.buf[boardtype.TribbleSize:2*boardtype.TribbleSize], data[:])
			st.phase = imuGotMid
			e.imuMu.Unlock()
			return false
		}
		st.phase = imuIdle
		e.imuMu.Unlock()
		e.bumpAlignment(slot)
		return false
	case imuGotMid:
		if idx == TribbleLow {
			copy(st.buf[2*boardtype.TribbleSize:3*boardtype.TribbleSize], data[:])
			record := st.buf
			st.phase = imuIdle
			e.imuMu.Unlock()
			e.commitIMU(slot, which, h, record)
			return true
		}
		st.phase = imuIdle
		e.imuMu.Unlock()
		e.bumpAlignment(slot)
		return false
	}
	e.imuMu.Unlock()
	return false
}

func (e *Engine) bumpAlignment(slot int) {
	e.statsMu.Lock()
	e.slotStats[slot].AlignmentData++
	e.statsMu.Unlock()
}

func (e *Engine) commitIMU(slot, which int, h RecordHeader, record [boardtype.IMUPayloadSize]byte) {
	if !e.lock.TryLock(e.writeDeadline) {
		e.accessBlocked.Add(1)
		return
	}
	defer e.lock.Unlock()

	sl := e.layout.Slots[slot]
	recOff := sl.Sensor0Offset
	if which == 1 {
		recOff = sl.Sensor1Offset
	}
	off := e.dataOffset(recOff)
	buf := e.buffers[e.active]
	e.noteOverwriteLocked(slot, buf, off)

	writeRecordHeader(buf[off:], h, boardtype.IMUCoil, true)
	copy(buf[off+boardtype.IMUHeaderSize:], record[:])

	e.lastIMUMu.Lock()
	e.lastIMU[slot][which] = record
	e.lastIMUMu.Unlock()

	e.statsMu.Lock()
	e.slotStats[slot].Sent++
	e.statsMu.Unlock()
}

// LastIMU returns the most recently committed IMU record for slot/which,
// mirroring the firmware's debug "last IMU" cache.
func (e *Engine) LastIMU(slot, which int) [boardtype.IMUPayloadSize]byte {
	e.lastIMUMu.Lock()
	defer e.lastIMUMu.Unlock()
	return e.lastIMU[slot][which]
}

// Tick swaps the active buffer, finalizes the frozen one's header and
// per-slot sent/missed counters, and hands it to Sink. It is meant to be
// called once per stream tick.
func (e *Engine) Tick() {
	e.lock.Lock()
	sendingIdx := e.active
	e.active = 1 - sendingIdx
	clearBuf(e.buffers[e.active])
	e.lock.Unlock()

	e.advanceTimestamp()
	uid := e.uid.Add(1)

	buf := e.buffers[sendingIdx]
	binary.LittleEndian.PutUint32(buf[0:4], uid)
	buf[4] = 1 // version
	buf[5] = uint8(e.layout.Counts[boardtype.MCG])
	buf[6] = uint8(e.layout.Counts[boardtype.ECG])
	buf[7] = uint8(e.layout.Counts[boardtype.ECG12])
	buf[8] = uint8(e.layout.Counts[boardtype.IMUCoil])
	binary.LittleEndian.PutUint64(buf[12:20], math.Float64bits(e.timestamp))

	e.updateSentMissed(buf)

	if e.sink != nil {
		e.sink.Send(buf)
	}
}

func clearBuf(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// advanceTimestamp implements spec.md §4.D's resync rule: once per 1000
// ticks, resync to wall-clock seconds-since-epoch; otherwise extrapolate
// by tsDelta.
func (e *Engine) advanceTimestamp() {
	e.tickCount++
	if e.tickCount%1000 == 1 {
		e.resyncTimestamp()
		return
	}
	e.timestamp += e.tsDelta
}

func (e *Engine) resyncTimestamp() {
	e.timestamp = float64(e.clock.Now().UnixNano()) / 1e9
}

func (e *Engine) updateSentMissed(buf []byte) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	for i, present := range e.layout.Present {
		if !present {
			continue
		}
		off := e.dataOffset(e.layout.Slots[i].Sensor0Offset) + 3
		if off >= len(buf) {
			continue
		}
		if boardtype.HasNewData(buf[off]) {
			// Sent was already counted at write time; Missed tracks
			// ticks where the slot shipped with stale (zeroed) data.
			continue
		}
		e.slotStats[i].Missed++
	}
}

// SlotStats returns a copy of slot's counters.
func (e *Engine) SlotStats(slot int) SlotStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.slotStats[slot]
}

// AccessBlocked returns the count of writes dropped for failing to
// acquire the buffer lock within their deadline.
func (e *Engine) AccessBlocked() uint64 { return e.accessBlocked.Load() }
