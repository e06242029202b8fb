// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/kairos-code-dev/zlink-sub000/message"
	"github.com/kairos-code-dev/zlink-sub000/transport"
	"github.com/kairos-code-dev/zlink-sub000/wire"
)

const minReadHeadroom = 4096

// readLoop owns the decoder and the transport's read half. It mirrors
// process_input_buffer/push_one_frame from the original engine: read
// whatever bytes are available, decode as many complete frames as are
// buffered, push each to the session, and only re-arm a read once the
// session has room. If the session applies backpressure mid-drain, the
// loop parks on inputResume rather than busy-waiting.
func (e *Engine) readLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			e.error(ReasonConnection, ctx.Err())
			return
		default:
		}

		e.mu.Lock()
		stopped := e.inputStopped
		e.mu.Unlock()
		if stopped {
			select {
			case <-ctx.Done():
				e.error(ReasonConnection, ctx.Err())
				return
			case <-e.inputResume:
				// restart_input's contract: deliver whatever already
				// landed in the decoder's buffer before arming another
				// read, so a frame that completed while input was
				// stopped isn't left waiting on a read that may never
				// come if the peer sends nothing further.
				if !e.drainDecoded() {
					return
				}
				continue
			}
		}

		buf := e.dec.Reserve(minReadHeadroom)
		n, err := e.tr.ReadSome(buf)
		if err != nil {
			if errors.Is(err, transport.ErrWouldBlock) {
				if waitErr := e.waitReadable(ctx); waitErr != nil {
					e.error(ReasonConnection, waitErr)
					return
				}
				continue
			}
			e.error(ReasonConnection, err)
			return
		}
		if n == 0 {
			e.error(ReasonConnection, errors.New("engine: read returned zero bytes with no error"))
			return
		}
		if e.opts.Counter != nil {
			e.opts.Counter.AddBytesIn(n)
		}
		e.dec.Commit(n)

		if !e.drainDecoded() {
			return
		}
	}
}

// drainDecoded pulls every complete frame currently buffered in the
// decoder and pushes it to the session, stopping (without error) the
// moment the session applies backpressure. The refused message is kept
// and offered first on the next call. It returns false if the engine
// tore down while draining.
func (e *Engine) drainDecoded() bool {
	pushedAny := false
	for {
		msg := e.parked
		e.parked = nil
		if msg == nil {
			next, err := e.dec.Next()
			if err != nil {
				e.error(ReasonProtocol, err)
				return false
			}
			if next == nil {
				break
			}
			msg = next
		}

		if pushErr := e.session.PushMsg(msg); pushErr != nil {
			if errors.Is(pushErr, ErrBackpressure) {
				e.parked = msg
				e.mu.Lock()
				e.inputStopped = true
				e.mu.Unlock()
				break
			}
			msg.Close()
			e.error(ReasonConnection, pushErr)
			return false
		}
		pushedAny = true
	}
	if pushedAny {
		e.session.Flush()
	}
	return true
}

// writeLoop owns the send-buffer pair and the transport's write half,
// mirroring fill_send_main_buffer/start_async_write/on_write_complete:
// fill the main buffer from the session up to SendBufferLimit, swap it
// into the flush buffer once the flush buffer empties, and drain the
// flush buffer onto the transport.
func (e *Engine) writeLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			e.error(ReasonConnection, ctx.Err())
			return
		default:
		}

		e.mu.Lock()
		flushEmpty := len(e.sendFlush) == e.sendFlushOffset
		e.mu.Unlock()
		if flushEmpty {
			if !e.fillAndSwap() {
				return
			}
		}

		e.mu.Lock()
		remaining := e.sendFlush[e.sendFlushOffset:]
		e.mu.Unlock()

		if len(remaining) == 0 {
			e.mu.Lock()
			stopped := e.outputStopped
			e.mu.Unlock()
			if stopped {
				select {
				case <-ctx.Done():
					e.error(ReasonConnection, ctx.Err())
					return
				case <-e.outputResume:
					continue
				}
			}
			continue
		}

		n, err := e.tr.WriteSome(remaining)
		if err != nil {
			if errors.Is(err, transport.ErrWouldBlock) {
				if waitErr := e.waitWritable(ctx); waitErr != nil {
					e.error(ReasonConnection, waitErr)
					return
				}
				continue
			}
			e.error(ReasonConnection, err)
			return
		}
		if n == 0 {
			e.error(ReasonConnection, errors.New("engine: write returned zero bytes with no error"))
			return
		}
		if e.opts.Counter != nil {
			e.opts.Counter.AddBytesOut(n)
		}

		e.mu.Lock()
		e.sendFlushOffset += n
		if e.sendFlushOffset >= len(e.sendFlush) {
			e.sendFlush = e.sendFlush[:0]
			e.sendFlushOffset = 0
		}
		e.mu.Unlock()
	}
}

// fillAndSwap pulls messages from the session into sendMain up to
// SendBufferLimit, then swaps sendMain into sendFlush. It returns
// false if the engine tore down while filling.
func (e *Engine) fillAndSwap() bool {
	e.mu.Lock()
	main := e.sendMain
	e.mu.Unlock()

	for len(main) < e.opts.SendBufferLimit {
		msg, err := e.session.PullMsg()
		if err != nil {
			if errors.Is(err, ErrNoMessage) {
				e.mu.Lock()
				e.outputStopped = true
				e.mu.Unlock()
				break
			}
			e.error(ReasonConnection, err)
			return false
		}

		var appendErr error
		main, appendErr = wire.Append(main, wire.TypeData, ridOf(msg), msg.Data())
		msg.Close()
		if appendErr != nil {
			e.error(ReasonProtocol, appendErr)
			return false
		}

		e.mu.Lock()
		e.outputStopped = false
		e.mu.Unlock()
	}

	e.mu.Lock()
	if len(main) > 0 {
		// Swap main into flush the way std::vector::swap exchanges
		// backing storage rather than copying: sendMain must become a
		// distinct, empty slice afterward, never a [:0] reslice of the
		// same array sendFlush now owns, or the next fill would
		// overwrite bytes the write loop is still draining out.
		e.sendFlush = main
		e.sendFlushOffset = 0
		e.sendMain = nil
	}
	e.mu.Unlock()
	return true
}

// ridOf returns the message's attached routing id, or 0 if none was
// set (the engine sends whatever the session attached; rid assignment
// itself is the socket/routing table's job, not the engine's).
func ridOf(msg *message.Message) uint32 {
	rid, _ := msg.RoutingID()
	return rid
}
