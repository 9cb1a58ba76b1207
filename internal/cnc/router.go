// Package cnc implements the command-and-control router from spec.md
// §4.E: a single entry point that validates a destination, dispatches
// local (main-board) peripherals over the pub/sub bus using its
// request/reply primitives, forwards per-board requests to that board's
// driver, and fans a target of ALL out across every slot sequentially.
// Grounded on bus.Connection's Request/RequestWait/Reply, which already
// implements the wake/notify/timeout contract spec.md asks for.
package cnc

import (
	"context"
	"sync"

	"sandboxaq/mainboard/bus"
	"sandboxaq/mainboard/errcode"
	"sandboxaq/mainboard/internal/cncpayload"
	"sandboxaq/mainboard/internal/packet"
)

// BoardSender is satisfied by *driver.Driver.
type BoardSender interface {
	SendCNC(ctx context.Context, p cncpayload.Payload, short bool) (cncpayload.Payload, error)
}

// LocalHandler serves one main-board peripheral (MCU, FAN, PWR, DBG).
type LocalHandler func(ctx context.Context, p cncpayload.Payload) (cncpayload.Payload, error)

type localResult struct {
	Payload cncpayload.Payload
	Err     error
}

func localTopic(p cncpayload.Peripheral) bus.Topic {
	return bus.T("cnc", "local", int(p))
}

// BoardResult is one board's outcome within a target-ALL fan-out.
type BoardResult struct {
	Board   int
	Payload cncpayload.Payload
	Err     error
}

// Router is the single CNC entry point for the chassis.
type Router struct {
	mainBoardID int
	conn        *bus.Connection

	mu     sync.RWMutex
	boards map[int]BoardSender
}

// New returns a Router that dispatches local traffic over b and treats
// mainBoardID as the special "main board" destination.
func New(mainBoardID int, b *bus.Bus) *Router {
	return &Router{
		mainBoardID: mainBoardID,
		conn:        b.NewConnection("cnc-router"),
		boards:      make(map[int]BoardSender),
	}
}

// RegisterBoard attaches slot's driver. A slot with no registered driver
// behaves as DeviceAbsent.
func (r *Router) RegisterBoard(slot int, d BoardSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards[slot] = d
}

// UnregisterBoard removes slot's driver (used when a slot is reconfigured
// to EMPTY).
func (r *Router) UnregisterBoard(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boards, slot)
}

// RegisterLocal starts a subscriber loop serving peripheral's requests
// with h until ctx is canceled.
func (r *Router) RegisterLocal(ctx context.Context, peripheral cncpayload.Peripheral, h LocalHandler) {
	sub := r.conn.Subscribe(localTopic(peripheral))
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				p, _ := msg.Payload.(cncpayload.Payload)
				respPayload, err := h(ctx, p)
				r.conn.Reply(msg, localResult{Payload: respPayload, Err: err}, false)
			}
		}
	}()
}

// AllowedDestinations returns the full accepted destination set,
// {0..23} ∪ {mainBoardID}, for rendering a ParamRange error's Allowed list.
func (r *Router) AllowedDestinations() []any {
	out := make([]any, 0, packet.NumSlots+1)
	for i := 0; i < packet.NumSlots; i++ {
		out = append(out, i)
	}
	out = append(out, r.mainBoardID)
	return out
}

// Send is cnc_send from spec.md §4.E for a single destination (not ALL).
func (r *Router) Send(ctx context.Context, target int, p cncpayload.Payload, short bool) (cncpayload.Payload, error) {
	if target != r.mainBoardID && (target < 0 || target >= packet.NumSlots) {
		return cncpayload.Payload{}, errcode.ParamRangeErr("cnc_send", "destination must be 0..23 or the main board id", r.AllowedDestinations()...)
	}
	if target == r.mainBoardID {
		return r.dispatchLocal(ctx, p)
	}

	r.mu.RLock()
	d := r.boards[target]
	r.mu.RUnlock()
	if d == nil {
		return cncpayload.Payload{}, &errcode.E{C: errcode.DeviceAbsent, Op: "cnc_send", Msg: "target slot is not populated or is disabled"}
	}
	return d.SendCNC(ctx, p, short)
}

// SendAll fans p out to every slot 0..23 sequentially, awaiting each
// board's completion before moving to the next, per spec.md §4.E's ALL
// target. A slot's DeviceAbsent result does not stop the sweep.
func (r *Router) SendAll(ctx context.Context, p cncpayload.Payload, short bool) []BoardResult {
	results := make([]BoardResult, 0, packet.NumSlots)
	for i := 0; i < packet.NumSlots; i++ {
		payload, err := r.Send(ctx, i, p, short)
		results = append(results, BoardResult{Board: i, Payload: payload, Err: err})
	}
	return results
}

func (r *Router) dispatchLocal(ctx context.Context, p cncpayload.Payload) (cncpayload.Payload, error) {
	msg := r.conn.NewMessage(localTopic(p.Peripheral), p, false)
	reply, err := r.conn.RequestWait(ctx, msg)
	if err != nil {
		return cncpayload.Payload{}, &errcode.E{C: errcode.Timeout, Op: "cnc_send", Msg: "no local handler responded in time", Err: err}
	}
	res, ok := reply.Payload.(localResult)
	if !ok {
		return cncpayload.Payload{}, &errcode.E{C: errcode.Error, Op: "cnc_send", Msg: "local handler returned a malformed reply"}
	}
	return res.Payload, res.Err
}
