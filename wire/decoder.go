// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"github.com/kairos-code-dev/zlink-sub000/message"
)

const growHeadroom = 4 * 1024

// Decoder is a stateful, two-phase pull parser: HEADER (waiting for the
// 4-byte length prefix) then PAYLOAD (waiting for the remaining
// HeaderAfterLengthLen+payload bytes). It never reorders and never
// blocks; callers feed it bytes as they arrive and call Next in a loop
// to drain as many complete frames as are buffered.
//
// Decoded payloads are always handed out as zero-copy slices into the
// Decoder's current slab. When the slab must grow, Reserve copies the
// still-unconsumed bytes (including a partly received frame) into a new
// slab, from which that frame is later handed out.
type Decoder struct {
	maxMessageSize int64

	slab  []byte
	shared *message.SharedSlab
	start int // first unconsumed byte
	end   int // one past last filled byte

	haveHeader bool
	length     uint32
	typ        FrameType
	rid        uint32
}

// NewDecoder returns a Decoder enforcing maxMessageSize (payload bytes,
// not counting the envelope). A non-positive value selects
// DefaultMaxMessageSize.
func NewDecoder(maxMessageSize int64) *Decoder {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	d := &Decoder{maxMessageSize: maxMessageSize}
	d.newSlab(growHeadroom)
	return d
}

func (d *Decoder) newSlab(size int) {
	buf := make([]byte, size)
	d.slab = buf
	d.shared = message.NewSharedSlab(buf, nil, nil)
	d.start = 0
	d.end = 0
}

// Reserve returns a slice of at least minHeadroom bytes of writable
// capacity starting at the current fill position, growing the internal
// slab as needed. The caller reads into the returned slice and then
// calls Commit with the number of bytes actually filled.
//
// Growth always allocates a fresh backing array rather than compacting
// or overwriting the current one in place: frames already decoded from
// the current slab may still be referenced by not-yet-closed zero-copy
// Messages (see message.SharedSlab), so bytes at offsets below d.start
// must never be touched again once handed out. Only the still-unconsumed
// tail [d.start:d.end) is carried forward into the new allocation.
func (d *Decoder) Reserve(minHeadroom int) []byte {
	if cap(d.slab)-d.end >= minHeadroom {
		return d.slab[d.end:cap(d.slab)]
	}

	unconsumed := d.end - d.start
	needed := unconsumed + minHeadroom

	newCap := cap(d.slab) * 2
	if newCap < needed {
		newCap = needed
	}
	newBuf := make([]byte, newCap)
	copy(newBuf, d.slab[d.start:d.end])
	d.slab = newBuf
	d.start = 0
	d.end = unconsumed
	d.shared = message.NewSharedSlab(d.slab, nil, nil)
	return d.slab[d.end:cap(d.slab)]
}

// Commit advances the fill position by n bytes following a read into
// the slice most recently returned by Reserve.
func (d *Decoder) Commit(n int) { d.end += n }

// Pending reports how many unconsumed bytes are currently buffered.
func (d *Decoder) Pending() int { return d.end - d.start }

// Next attempts to decode one frame out of the buffered bytes. It
// returns (nil, nil) when no complete frame is available yet (the
// caller should Reserve/Commit more and retry), a decoded Message on
// success, or an error (ErrTooLong, ErrProtocol) on a framing
// violation — the caller must tear down the connection in that case.
func (d *Decoder) Next() (*message.Message, error) {
	if !d.haveHeader {
		if d.end-d.start < LengthFieldLen {
			return nil, nil
		}
		length := byteOrder.Uint32(d.slab[d.start : d.start+LengthFieldLen])
		if int64(length)-HeaderAfterLengthLen > d.maxMessageSize {
			return nil, ErrTooLong
		}
		if length < HeaderAfterLengthLen+1 {
			// length < 8 is a bare protocol error; length == 8 means a
			// zero-byte payload, also disallowed.
			return nil, ErrProtocol
		}
		d.length = length
		d.haveHeader = true
	}

	total := LengthFieldLen + int(d.length)
	if d.end-d.start < total {
		return nil, nil
	}

	rec := d.slab[d.start : d.start+total]
	hdr := rec[LengthFieldLen:]
	if hdr[0] != version {
		d.haveHeader = false
		return nil, ErrProtocol
	}
	typ := FrameType(hdr[1])
	if !validType(typ) {
		d.haveHeader = false
		return nil, ErrProtocol
	}
	if hdr[2] != magic0 || hdr[3] != magic1 {
		d.haveHeader = false
		return nil, ErrProtocol
	}
	rid := byteOrder.Uint32(hdr[4:8])
	payload := rec[HeaderAfterLengthLen+LengthFieldLen:]

	msg := d.shared.Ref(payload)
	msg.SetRoutingID(rid)
	d.typ, d.rid = typ, rid

	d.start += total
	d.haveHeader = false

	// d.start and d.end are never reset to 0 here even when fully
	// drained: a zero-copy Message handed out above may still be open,
	// referencing bytes at offsets below d.start in this same slab, and
	// Reserve's fast path would otherwise hand those offsets back out as
	// writable space. Reserve reclaims them safely by allocating a new
	// backing array once headroom actually runs out.
	return &msg, nil
}

// LastFrameType returns the FrameType of the most recently decoded
// frame (valid only immediately after a successful Next).
func (d *Decoder) LastFrameType() FrameType { return d.typ }
