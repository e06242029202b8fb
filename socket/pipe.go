// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package socket

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/kairos-code-dev/zlink-sub000/engine"
	"github.com/kairos-code-dev/zlink-sub000/message"
	"github.com/kairos-code-dev/zlink-sub000/monitor"
	"github.com/kairos-code-dev/zlink-sub000/routing"
)

// Pipe is the per-peer half-duplex queue pair: inbox carries frames
// the engine decoded off the wire toward the socket's Recv; outbox
// carries frames the socket's Send handed to the engine to encode onto
// the wire. It implements engine.Session so an Engine can be plugged
// directly against it.
type Pipe struct {
	sock *Socket
	rid  routing.RID
	eng  *engine.Engine
	hwm  int

	mu     sync.Mutex
	inbox  []message.Message
	outbox []message.Message
}

// NewPipe returns a pipe not yet attached to a Socket or bound to an
// Engine. Callers construct the Engine with this Pipe as its Session,
// then call Socket.Attach to finish wiring both directions.
func NewPipe(hwm int) *Pipe {
	if hwm <= 0 {
		hwm = defaultOptions.HighWaterMark
	}
	return &Pipe{hwm: hwm}
}

func (p *Pipe) bind(sock *Socket, eng *engine.Engine, rid routing.RID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sock = sock
	p.eng = eng
	p.rid = rid
}

// PushMsg implements engine.Session: the engine calls this with each
// frame it decodes off the wire. It applies backpressure once the
// inbox reaches the high water mark.
func (p *Pipe) PushMsg(msg *message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.inbox) >= p.hwm {
		return engine.ErrBackpressure
	}
	p.inbox = append(p.inbox, *msg)
	*msg = message.Message{}
	return nil
}

// PullMsg implements engine.Session: the engine calls this to get the
// next frame to encode onto the wire.
func (p *Pipe) PullMsg() (*message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.outbox) == 0 {
		return nil, engine.ErrNoMessage
	}
	msg := p.outbox[0]
	p.outbox = p.outbox[1:]
	return &msg, nil
}

// Flush implements engine.Session. The socket's fair-queue reads
// directly from inbox under the pipe's own lock, so there is nothing
// additional to do here; present for interface conformance and
// parity with the original's session_base_t::flush() call site.
func (p *Pipe) Flush() {}

// EngineError implements engine.Session: the engine's error() calls
// this once, on whichever goroutine detected the fault, before it
// releases its transport. It detaches the pipe from the socket so a
// peer EOF, protocol violation, or handshake failure reaches Recv as a
// disconnect event instead of leaking the rid forever. It deliberately
// does not call eng.Terminate(): the engine is already tearing itself
// down on the calling goroutine, and Terminate's wg.Wait() would
// deadlock waiting on that same goroutine's own wg.Done().
func (p *Pipe) EngineError(wasHandshaking bool, reason engine.Reason, cause error) {
	if p.sock != nil {
		p.sock.detach(p, monitorReasonFromEngine(wasHandshaking, cause))
	}
}

// monitorReasonFromEngine maps an engine-side teardown into the
// monitor's externally-observed reason taxonomy.
func monitorReasonFromEngine(wasHandshaking bool, cause error) monitor.Reason {
	switch {
	case wasHandshaking:
		return monitor.ReasonHandshakeFailed
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		return monitor.ReasonCtxTerm
	default:
		return monitor.ReasonTransportError
	}
}

// writable mirrors pipe_t::check_write: a pipe refuses a new outbound
// frame once its outbox has reached the high water mark, so Send's
// first frame can fail fast with EAGAIN-equivalent instead of queuing
// unboundedly.
func (p *Pipe) writable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outbox) < p.hwm
}

// enqueueOutbound appends msg to outbox and wakes the engine's write
// loop if it had parked on ErrNoMessage.
func (p *Pipe) enqueueOutbound(msg message.Message) {
	p.mu.Lock()
	p.outbox = append(p.outbox, msg)
	p.mu.Unlock()
	if p.eng != nil {
		p.eng.RestartOutput()
	}
}

// popInbound removes and returns the oldest queued inbound frame, if
// any, waking the engine's read loop if it had parked on
// ErrBackpressure.
func (p *Pipe) popInbound() (message.Message, bool) {
	p.mu.Lock()
	if len(p.inbox) == 0 {
		p.mu.Unlock()
		return message.Message{}, false
	}
	msg := p.inbox[0]
	p.inbox = p.inbox[1:]
	p.mu.Unlock()

	if p.eng != nil {
		p.eng.RestartInput()
	}
	return msg, true
}

func (p *Pipe) hasInbound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inbox) > 0
}

// terminate tears down the pipe's engine and detaches it from the
// socket, mirroring xsend's handling of a single 0x00 payload byte
// ("close this peer") and the cleanup xpipe_terminated performs.
func (p *Pipe) terminate() {
	if p.sock != nil {
		p.sock.detach(p, monitor.ReasonCtxTerm)
	}
	if p.eng != nil {
		go p.eng.Terminate()
	}
}
