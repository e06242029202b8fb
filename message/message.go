// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package message implements the owned/borrowed byte buffer that flows
// between the wire codec, the stream engine, and the STREAM socket.
//
// A Message is a move-only value: copying a Message struct by value and
// using both copies concurrently is a bug the caller must avoid. What is
// safe to share is the underlying buffer, via a reference count, so that
// a zero-copy slice handed out by the decoder can be read by more than
// one consumer without duplicating bytes.
package message

import (
	"sync/atomic"
)

// Flag is a bitset carried alongside a Message.
type Flag uint8

const (
	// More indicates this frame is followed by another frame belonging
	// to the same logical multipart message.
	More Flag = 1 << iota
)

// Deleter is invoked exactly once, when the last reference to a borrowed
// buffer is released. hint is the opaque value passed to InitData.
type Deleter func(buf []byte, hint any)

// refcounted is the shared state behind a borrowed (zero-copy) buffer.
type refcounted struct {
	n       atomic.Int64
	buf     []byte
	hint    any
	deleter Deleter
}

func (r *refcounted) release() {
	if r.n.Add(-1) == 0 && r.deleter != nil {
		r.deleter(r.buf, r.hint)
	}
}

// SharedSlab is a byte slab that more than one Message can reference at
// once, each via its own slice into the slab. A decoder holds one
// SharedSlab per allocation it owns, handing out a Message (via Ref) per
// decoded frame; the deleter fires only once every handed-out Message has
// been closed, letting the decoder recycle or drop the slab.
type SharedSlab struct{ r *refcounted }

// NewSharedSlab returns a slab wrapping buf. deleter runs once the
// refcount, incremented once per Ref call, returns to zero.
func NewSharedSlab(buf []byte, deleter Deleter, hint any) *SharedSlab {
	return &SharedSlab{r: &refcounted{buf: buf, hint: hint, deleter: deleter}}
}

// Ref returns a new Message borrowing slice b (which must be part of the
// slab's backing buffer), incrementing the slab's refcount. The caller
// must Close the returned Message exactly once.
func (s *SharedSlab) Ref(b []byte) Message {
	s.r.n.Add(1)
	return Message{buf: b, shared: s.r}
}

// Message is a byte buffer with a size, an optional 32-bit routing id,
// and a flags bitset. The zero value is a valid, empty, uninitialized
// Message equivalent to one returned by Init.
type Message struct {
	buf       []byte
	flags     Flag
	routingID uint32
	hasRID    bool
	shared    *refcounted
}

// Init returns an empty message.
func Init() Message { return Message{} }

// InitSize returns a message owning a freshly allocated buffer of n bytes.
func InitSize(n int) Message {
	return Message{buf: make([]byte, n)}
}

// InitBuffer returns a message that owns a copy of p.
func InitBuffer(p []byte) Message {
	buf := make([]byte, len(p))
	copy(buf, p)
	return Message{buf: buf}
}

// InitData returns a message that borrows buf. deleter, if non-nil, is
// invoked with (buf, hint) when the last reference is released via
// Close. Callers use this to hand a decoder's slab slice to a session
// without copying, registering the slab's refcount decrement as the
// deleter.
func InitData(buf []byte, deleter Deleter, hint any) Message {
	sh := &refcounted{buf: buf, hint: hint, deleter: deleter}
	sh.n.Store(1)
	return Message{buf: buf, shared: sh}
}

// Size returns the number of payload bytes.
func (m *Message) Size() int { return len(m.buf) }

// Data returns the payload bytes. The caller must not retain the slice
// past the message's lifetime when the message is a zero-copy borrow
// whose deleter frees or reuses the backing slab.
func (m *Message) Data() []byte { return m.buf }

// SetRoutingID attaches a 32-bit routing id to the message.
func (m *Message) SetRoutingID(rid uint32) {
	m.routingID = rid
	m.hasRID = true
}

// RoutingID returns the attached routing id and whether one was set.
func (m *Message) RoutingID() (uint32, bool) { return m.routingID, m.hasRID }

// ResetRoutingID clears the attached routing id.
func (m *Message) ResetRoutingID() {
	m.routingID = 0
	m.hasRID = false
}

// SetFlags ORs f into the message's flag bitset.
func (m *Message) SetFlags(f Flag) { m.flags |= f }

// ResetFlags clears f from the message's flag bitset.
func (m *Message) ResetFlags(f Flag) { m.flags &^= f }

// Flags returns the current flag bitset.
func (m *Message) Flags() Flag { return m.flags }

// More reports whether the More flag is set.
func (m *Message) More() bool { return m.flags&More != 0 }

// Move transfers ownership of other's buffer into m and resets other to
// an initialized-empty message. It is the Go analogue of the original
// C++ type's move constructor.
func (m *Message) Move(other *Message) {
	*m = *other
	*other = Message{}
}

// Close releases m's reference to its underlying buffer. If the buffer
// is shared (a zero-copy borrow) the deleter runs only when the last
// reference drops; if it is owned, Close simply drops it for the
// garbage collector. Close is idempotent.
func (m *Message) Close() {
	if m.shared != nil {
		m.shared.release()
	}
	*m = Message{}
}

// clone returns a new Message that references the same shared buffer,
// incrementing the refcount. Used by components that fan a single
// decoded slice out to more than one consumer.
func (m *Message) clone() Message {
	if m.shared != nil {
		m.shared.n.Add(1)
	}
	out := *m
	return out
}

// Clone returns an independent Message value sharing m's underlying
// buffer (if borrowed) via an incremented refcount, or a deep copy (if
// owned). Both the original and the clone must be Closed independently.
func (m *Message) Clone() Message {
	if m.shared != nil {
		return m.clone()
	}
	return InitBuffer(m.buf)
}
