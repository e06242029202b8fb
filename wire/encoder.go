// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"io"
	"math"
)

// Append encodes one frame (typ, rid, payload) onto the end of dst and
// returns the grown slice. payload must be non-empty: a zero-length
// payload is a protocol error on the wire.
func Append(dst []byte, typ FrameType, rid uint32, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return dst, ErrProtocol
	}
	if uint64(len(payload)) > math.MaxUint32-HeaderAfterLengthLen {
		return dst, ErrTooLong
	}
	var hdr [EnvelopeLen]byte
	byteOrder.PutUint32(hdr[0:4], uint32(HeaderAfterLengthLen+len(payload)))
	hdr[4] = version
	hdr[5] = byte(typ)
	hdr[6] = magic0
	hdr[7] = magic1
	byteOrder.PutUint32(hdr[8:12], rid)

	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	return dst, nil
}

// Encoder streams one frame at a time to an io.Writer, in the same
// two-phase discipline as the original C++ encoder: a 12-byte prefix is
// written first from a scratch buffer, then the payload. The encoder
// yields the next prefix only once the previous payload is fully
// written.
type Encoder struct {
	w       io.Writer
	scratch [EnvelopeLen]byte
}

// NewEncoder returns an Encoder writing frames to w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// WriteFrame writes one complete frame to the underlying writer,
// honoring io.Writer short-write semantics.
func (e *Encoder) WriteFrame(typ FrameType, rid uint32, payload []byte) error {
	if len(payload) == 0 {
		return ErrProtocol
	}
	if uint64(len(payload)) > math.MaxUint32-HeaderAfterLengthLen {
		return ErrTooLong
	}
	byteOrder.PutUint32(e.scratch[0:4], uint32(HeaderAfterLengthLen+len(payload)))
	e.scratch[4] = version
	e.scratch[5] = byte(typ)
	e.scratch[6] = magic0
	e.scratch[7] = magic1
	byteOrder.PutUint32(e.scratch[8:12], rid)

	if err := writeFull(e.w, e.scratch[:]); err != nil {
		return err
	}
	return writeFull(e.w, payload)
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if n > 0 {
			p = p[n:]
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
