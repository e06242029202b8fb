// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package routing implements the peer routing table a STREAM socket
// keeps: a routing id (rid) names one peer's pipe, rid 0 is reserved
// and never handed out, and the counter used to mint new ids starts at
// 1 and wraps back to 1 rather than ever landing on 0.
package routing

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
)

// RID is the 4-byte routing identifier a STREAM socket surfaces to its
// user as the first frame of every send/recv pair.
type RID [4]byte

// Reserved is rid 0: never assigned to a peer, used by callers as the
// zero value meaning "no peer".
var Reserved RID

// Uint32 returns the big-endian numeric value of the rid, the form the
// wire envelope carries it in.
func (r RID) Uint32() uint32 { return binary.BigEndian.Uint32(r[:]) }

// FromUint32 builds an RID from the envelope's big-endian routing id.
func FromUint32(v uint32) RID {
	var r RID
	binary.BigEndian.PutUint32(r[:], v)
	return r
}

var (
	// ErrReservedRID reports an attempt to assign or preassign rid 0.
	ErrReservedRID = errors.New("routing: rid 0 is reserved")

	// ErrRIDCollision reports a preassigned rid already bound to a pipe.
	ErrRIDCollision = errors.New("routing: rid already in use")

	// ErrUnknownRID reports a lookup or detach for an rid with no
	// attached pipe.
	ErrUnknownRID = errors.New("routing: no peer for rid")
)

// Table maps routing ids to opaque per-peer pipe values and mints new
// ids for auto-assigned (accept-initiated) peers. The pipe type is
// intentionally opaque (any): the table only needs to hand back
// whatever the caller attached, it never interprets it.
type Table struct {
	mu   sync.Mutex
	next uint32 // next candidate for auto-assignment; 0 means "wrapped, skip to 1"
	rows map[RID]any
}

// New returns an empty table with its counter primed to mint rid 1
// first.
func New() *Table {
	return &Table{next: 1, rows: make(map[RID]any)}
}

// Assign mints an RID for an accept-initiated peer and attaches pipe
// to it. The counter advances monotonically and wraps from 2^32-1
// back to 1, never landing on the reserved 0 value.
func (t *Table) Assign(pipe any) RID {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		rid := FromUint32(t.next)
		t.next++
		if t.next == 0 {
			t.next = 1
		}
		if rid == Reserved {
			continue
		}
		if _, exists := t.rows[rid]; exists {
			// Practically unreachable short of a full 2^32-1 wraparound
			// with every id still live, but guarded rather than assumed.
			continue
		}
		t.rows[rid] = pipe
		return rid
	}
}

// AssignPreset attaches pipe under the caller-supplied rid, used for
// connect-initiated peers with a configured connect_routing_id. It
// fails if rid is the reserved value or already bound to another pipe.
func (t *Table) AssignPreset(rid RID, pipe any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rid == Reserved {
		return ErrReservedRID
	}
	if _, exists := t.rows[rid]; exists {
		return ErrRIDCollision
	}
	t.rows[rid] = pipe
	return nil
}

// Detach removes rid's entry, returning the pipe that was attached to
// it. ok is false if rid had no entry.
func (t *Table) Detach(rid RID) (pipe any, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pipe, ok = t.rows[rid]
	if ok {
		delete(t.rows, rid)
	}
	return pipe, ok
}

// Lookup returns the pipe attached to rid, if any.
func (t *Table) Lookup(rid RID) (pipe any, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pipe, ok = t.rows[rid]
	return pipe, ok
}

// Len reports the number of attached peers.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Has reports whether rid currently has an attached pipe.
func (t *Table) Has(rid RID) bool {
	_, ok := t.Lookup(rid)
	return ok
}
