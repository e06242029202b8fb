// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package socket implements the STREAM socket's user-facing send/recv
// contract: every logical message is a 4-byte routing-id frame (with
// the More flag) followed by a payload frame. It fans outbound sends
// out to the addressed peer's pipe and fair-queues inbound frames
// across every attached peer, interleaving a FIFO of synthetic
// connect/disconnect notifications ahead of data.
package socket

import (
	"container/list"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kairos-code-dev/zlink-sub000/engine"
	"github.com/kairos-code-dev/zlink-sub000/message"
	"github.com/kairos-code-dev/zlink-sub000/monitor"
	"github.com/kairos-code-dev/zlink-sub000/routing"
)

var (
	// ErrInvalidRoutingFrame reports a Send's first frame not being
	// exactly 4 bytes with the More flag set.
	ErrInvalidRoutingFrame = errors.New("socket: routing-id frame must be exactly 4 bytes with More set")

	// ErrHostUnreachable reports a Send addressed to an rid with no
	// attached peer, under router_mandatory (the STREAM default).
	ErrHostUnreachable = errors.New("socket: no peer for rid")

	// ErrPipeFull reports a Send whose addressed pipe has reached its
	// high water mark; the caller must retry, no state was consumed.
	ErrPipeFull = errors.New("socket: peer send queue is full")

	// ErrNoMessage reports a Recv call with nothing available.
	ErrNoMessage = errors.New("socket: no message available")
)

// eventCode mirrors the original's single-byte synthetic event
// payload values.
type eventCode byte

const (
	eventDisconnect eventCode = 0x00
	eventConnect    eventCode = 0x01
)

type pendingEvent struct {
	rid  routing.RID
	code eventCode
}

// Socket is the STREAM socket.
type Socket struct {
	opts  Options
	table *routing.Table

	mu             sync.Mutex
	pipes          map[routing.RID]*Pipe
	fqOrder        []routing.RID
	fqCursor       int
	events         *list.List
	currentOut     *Pipe
	moreOut        bool
	nextConnectRID *routing.RID
	prefetched     *message.Message
	prefetchedRID  routing.RID
	routingIDSent  bool
}

// New returns an empty STREAM socket.
func New(opts ...Option) *Socket {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = noopLogger
	}
	return &Socket{
		opts:   o,
		table:  routing.New(),
		pipes:  make(map[routing.RID]*Pipe),
		events: list.New(),
	}
}

// SetConnectRoutingID preassigns the rid the next locally-initiated
// (connect-side) Attach will use, consumed after one use. rid must be
// exactly 4 bytes; routing.RID already enforces that by type.
func (s *Socket) SetConnectRoutingID(rid routing.RID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rid
	s.nextConnectRID = &r
}

// Attach registers p with the socket, assigning it an rid (the
// preassigned connect_routing_id if one is pending and locallyInitiated
// is true, otherwise an auto-assigned id) and queuing a synthetic
// connect event for Recv.
func (s *Socket) Attach(p *Pipe, eng *engine.Engine, locallyInitiated bool) (routing.RID, error) {
	s.mu.Lock()

	var rid routing.RID
	if locallyInitiated && s.nextConnectRID != nil {
		preset := *s.nextConnectRID
		s.nextConnectRID = nil
		if err := s.table.AssignPreset(preset, p); err != nil {
			s.mu.Unlock()
			return routing.RID{}, err
		}
		rid = preset
	} else {
		rid = s.table.Assign(p)
	}

	s.pipes[rid] = p
	s.fqOrder = append(s.fqOrder, rid)
	s.mu.Unlock()

	p.bind(s, eng, rid)

	s.mu.Lock()
	s.events.PushBack(pendingEvent{rid: rid, code: eventConnect})
	s.mu.Unlock()

	code := monitor.Connected
	if !locallyInitiated {
		code = monitor.Accepted
	}
	s.opts.Hooks.Emit(monitor.NewEvent(code, "", nil))
	return rid, nil
}

// detach removes p from the routing table and fair-queue rotation and
// queues a synthetic disconnect event, mirroring xpipe_terminated.
// Idempotent: a pipe can reach here twice (once from a local 0x00-close,
// once from its engine's own teardown notification, or vice versa), and
// the second call is a no-op so Recv never sees a duplicate disconnect
// for the same peer.
func (s *Socket) detach(p *Pipe, reason monitor.Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rid := p.rid
	if _, attached := s.pipes[rid]; !attached {
		return
	}
	s.table.Detach(rid)
	delete(s.pipes, rid)
	for i, r := range s.fqOrder {
		if r == rid {
			s.fqOrder = append(s.fqOrder[:i], s.fqOrder[i+1:]...)
			break
		}
	}
	if s.currentOut == p {
		s.currentOut = nil
	}
	s.events.PushBack(pendingEvent{rid: rid, code: eventDisconnect})
	s.opts.Hooks.Emit(monitor.NewDisconnectEvent("", nil, reason))
}

// Send advances the two-frame send state machine. Call it once with
// the routing-id frame (More set, exactly 4 bytes) and once with the
// payload frame (More clear). On success msg is closed or has its
// ownership moved internally, as a move-only message value would be;
// on an error return msg is left untouched and no state changes.
func (s *Socket) Send(msg *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.moreOut {
		if !msg.More() {
			return ErrInvalidRoutingFrame
		}
		if msg.More() {
			if msg.Size() != 4 {
				return ErrInvalidRoutingFrame
			}
			rid := routing.FromUint32(binary.BigEndian.Uint32(msg.Data()))
			pipe, ok := s.pipes[rid]
			if !ok {
				if s.opts.RouterMandatory {
					return ErrHostUnreachable
				}
				// Non-mandatory mode: silently drop the whole logical
				// message. currentOut stays nil and moreOut still
				// advances to true, so the caller's upcoming payload
				// frame is swallowed by the "currentOut == nil" branch
				// below instead of being misread as a fresh routing-id
				// frame.
				s.moreOut = true
				msg.Close()
				return nil
			}
			if !pipe.writable() {
				return ErrPipeFull
			}
			s.currentOut = pipe
			s.moreOut = true
		}
		msg.Close()
		return nil
	}

	msg.ResetFlags(message.More)
	s.moreOut = false

	if s.currentOut == nil {
		msg.Close()
		return nil
	}
	pipe := s.currentOut
	s.currentOut = nil

	if msg.Size() == 1 && msg.Data()[0] == byte(eventDisconnect) {
		msg.Close()
		// terminate reaches detach, which takes s.mu itself.
		s.mu.Unlock()
		pipe.terminate()
		s.mu.Lock()
		return nil
	}

	msg.SetRoutingID(pipe.rid.Uint32())
	pipe.enqueueOutbound(*msg)
	*msg = message.Message{}
	return nil
}

// Recv advances the two-frame recv state machine, delivering queued
// synthetic events ahead of fair-queued peer data.
func (s *Socket) Recv() (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvLocked()
}

func (s *Socket) recvLocked() (*message.Message, error) {
	if s.prefetched != nil {
		if !s.routingIDSent {
			out := message.InitSize(4)
			binary.BigEndian.PutUint32(out.Data(), s.prefetchedRID.Uint32())
			out.SetFlags(message.More)
			s.routingIDSent = true
			return &out, nil
		}
		msg := s.prefetched
		s.prefetched = nil
		return msg, nil
	}

	if el := s.events.Front(); el != nil {
		s.events.Remove(el)
		ev := el.Value.(pendingEvent)
		m := message.InitBuffer([]byte{byte(ev.code)})
		s.prefetched = &m
		s.prefetchedRID = ev.rid
		s.routingIDSent = false
		return s.recvLocked()
	}

	rid, msg, ok := s.fairDequeueLocked()
	if !ok {
		return nil, ErrNoMessage
	}
	s.prefetched = &msg
	s.prefetchedRID = rid
	s.routingIDSent = false
	return s.recvLocked()
}

// fairDequeueLocked walks the attach-order rotation starting just
// after the last pipe served, returning the first frame found so no
// single busy peer can starve the others.
func (s *Socket) fairDequeueLocked() (routing.RID, message.Message, bool) {
	n := len(s.fqOrder)
	for i := 0; i < n; i++ {
		idx := (s.fqCursor + i) % n
		rid := s.fqOrder[idx]
		pipe := s.pipes[rid]
		if pipe == nil {
			continue
		}
		if msg, ok := pipe.popInbound(); ok {
			s.fqCursor = (idx + 1) % n
			return rid, msg, true
		}
	}
	return routing.RID{}, message.Message{}, false
}

// HasIn reports whether Recv would return a message without blocking:
// a prefetched frame, a queued synthetic event, or data on some pipe.
func (s *Socket) HasIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefetched != nil || s.events.Len() > 0 {
		return true
	}
	for _, rid := range s.fqOrder {
		if p := s.pipes[rid]; p != nil && p.hasInbound() {
			return true
		}
	}
	return false
}

// HasOut always reports true: a mandatory-routing failure on Send is
// reported immediately by Send itself rather than predicted here,
// matching xhas_out's unconditional true.
func (s *Socket) HasOut() bool { return true }

// PeerCount reports the number of currently attached peers.
func (s *Socket) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pipes)
}

// HandshakeTimeout reports the socket-wide handshake deadline
// configured via WithHandshakeTimeout, zero meaning none. zlink's
// attach helpers apply it to every engine this socket attaches.
func (s *Socket) HandshakeTimeout() time.Duration {
	return s.opts.HandshakeTimeout
}
