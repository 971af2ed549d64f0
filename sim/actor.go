package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eval_fpgaio/core"
	"eval_fpgaio/log"
	"eval_fpgaio/regbus"
)

var (
	ErrStopped = errors.New("simulation stopped")
	ErrBusBusy = errors.New("bus transaction refused")
)

const (
	DEFAULT_BATCH     = 256
	DEFAULT_IDLE_POLL = time.Millisecond
)

type busCall struct {
	req   core.Request
	reply chan busReply
}

type busReply struct {
	resp core.Response
	err  error
}

type inspectCall struct {
	fn   func(b *Board)
	done chan struct{}
}

// Actor owns a Board in a single goroutine. Register accesses are sent to it
// as messages and complete within one simulated cycle; between messages the
// clock free runs in batches and stops while the board is idle.
type Actor struct {
	board    *Board
	Batch    int
	IdlePoll time.Duration
	// Forward receives every interrupt level change, from the actor goroutine.
	Forward core.IRQSink

	reqs     chan busCall
	inspects chan inspectCall
	started  chan struct{}
	stopped  chan struct{}

	mu         sync.Mutex
	irq        core.IRQLines
	irqChanged chan struct{}
}

func NewActor(board *Board) *Actor {
	a := &Actor{
		board:      board,
		Batch:      DEFAULT_BATCH,
		IdlePoll:   DEFAULT_IDLE_POLL,
		reqs:       make(chan busCall),
		inspects:   make(chan inspectCall),
		started:    make(chan struct{}),
		stopped:    make(chan struct{}),
		irqChanged: make(chan struct{}),
	}
	a.irq = board.Core.IRQ()
	board.Core.SetIRQSink(a)
	return a
}

// SetIRQ is called by the core from the actor goroutine.
func (a *Actor) SetIRQ(line core.IRQLine, level bool) {
	a.mu.Lock()
	a.irq[line] = level
	close(a.irqChanged)
	a.irqChanged = make(chan struct{})
	a.mu.Unlock()
	if a.Forward != nil {
		a.Forward.SetIRQ(line, level)
	}
}

func (a *Actor) IRQ() core.IRQLines {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.irq
}

// Run serves requests until ctx is done.
func (a *Actor) Run(ctx context.Context) error {
	defer close(a.stopped)
	close(a.started)

	poll := time.NewTicker(a.IdlePoll)
	defer poll.Stop()

	log.Debugf("simulation actor started, batch %d", a.Batch)
	for {
		if a.board.Idle() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case call := <-a.reqs:
				a.serve(call)
			case ic := <-a.inspects:
				ic.fn(a.board)
				close(ic.done)
			case <-poll.C:
				a.board.Tick()
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case call := <-a.reqs:
			a.serve(call)
			continue
		case ic := <-a.inspects:
			ic.fn(a.board)
			close(ic.done)
			continue
		default:
		}
		for i := 0; i < a.Batch; i++ {
			a.board.Tick()
		}
	}
}

func (a *Actor) serve(call busCall) {
	bus := a.board.Core.Bus()
	if !bus.Issue(call.req) {
		call.reply <- busReply{err: ErrBusBusy}
		return
	}
	a.board.Tick()
	resp, ok := bus.Take()
	if !ok {
		call.reply <- busReply{err: fmt.Errorf("%w: no response", ErrBusBusy)}
		return
	}
	call.reply <- busReply{resp: resp}
}

func (a *Actor) transact(req core.Request) (core.Response, error) {
	call := busCall{req: req, reply: make(chan busReply, 1)}
	select {
	case a.reqs <- call:
	case <-a.stopped:
		return core.Response{}, ErrStopped
	}
	r := <-call.reply
	return r.resp, r.err
}

func (a *Actor) Read32(addr uint32) (uint32, error) {
	resp, err := a.transact(core.Request{Addr: addr, AddrValid: true})
	if err != nil {
		return 0, err
	}
	return resp.Data, regbus.RespError("read", addr, resp.Resp)
}

func (a *Actor) Write32(addr, value uint32) error {
	return a.WriteStrobe(addr, value, core.STROBE_ALL)
}

func (a *Actor) WriteStrobe(addr, value uint32, strobe uint8) error {
	resp, err := a.transact(core.Request{Write: true, Addr: addr, AddrValid: true, Data: value, DataValid: true, Strobe: strobe})
	if err != nil {
		return err
	}
	return regbus.RespError("write", addr, resp.Resp)
}

// WaitIRQ blocks until line is asserted. A ctx deadline is reported as regbus.ErrTimeout.
func (a *Actor) WaitIRQ(ctx context.Context, line core.IRQLine) error {
	for {
		a.mu.Lock()
		level := a.irq[line]
		changed := a.irqChanged
		a.mu.Unlock()
		if level {
			return nil
		}
		select {
		case <-changed:
		case <-a.stopped:
			return ErrStopped
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return regbus.ErrTimeout
			}
			return ctx.Err()
		}
	}
}

// Inspect runs fn on the actor goroutine with exclusive access to the board.
func (a *Actor) Inspect(fn func(b *Board)) error {
	ic := inspectCall{fn: fn, done: make(chan struct{})}
	select {
	case a.inspects <- ic:
	case <-a.stopped:
		return ErrStopped
	}
	<-ic.done
	return nil
}

// Snapshot is a consistent view of the model state.
type Snapshot struct {
	Cycle  uint64
	Stats  core.Stats
	IRQ    core.IRQLines
	Queues map[string]int
	Idle   bool
}

func (a *Actor) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := a.Inspect(func(b *Board) {
		s.Cycle = b.Core.Cycle()
		s.Stats = b.Core.Stats()
		s.IRQ = b.Core.IRQ()
		s.Idle = b.Idle()
		s.Queues = make(map[string]int, core.NUM_QUEUE)
		for q := core.Queue(0); q < core.NUM_QUEUE; q++ {
			s.Queues[q.String()] = b.Core.QueueLen(q)
		}
	})
	return s, err
}

// Started is closed once Run has begun serving.
func (a *Actor) Started() <-chan struct{} {
	return a.started
}

var _ regbus.Device = (*Actor)(nil)
