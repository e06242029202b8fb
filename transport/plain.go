// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Plain wraps a net.Conn with no handshake step: RequiresHandshake
// always reports false and Handshake is a no-op. Readiness is probed
// with a read/write deadline one millisecond ahead rather than a true
// non-blocking file descriptor, since net.Conn gives no portable way
// to poll without one; a timeout on that short deadline is mapped to
// ErrWouldBlock so callers see the same non-blocking contract the wire
// codec uses. A write that times out after moving some bytes reports
// those bytes with a nil error.
type Plain struct {
	conn   net.Conn
	closed atomic.Bool
}

// NewPlain wraps an already-established connection.
func NewPlain(conn net.Conn) *Plain {
	return &Plain{conn: conn}
}

func (p *Plain) Open(context.Context) bool {
	return p.conn != nil && !p.closed.Load()
}

func (p *Plain) IsOpen() bool {
	return p.conn != nil && !p.closed.Load()
}

func (p *Plain) RequiresHandshake() bool { return false }

func (p *Plain) Handshake(context.Context, Role) error { return nil }

func (p *Plain) ReadSome(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, errors.New("transport: read on closed connection")
	}
	if err := p.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, errors.Wrap(err, "transport: set read deadline")
	}
	n, err := p.conn.Read(b)
	if err != nil {
		return n, netError(err)
	}
	return n, nil
}

func (p *Plain) WriteSome(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, errors.New("transport: write on closed connection")
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, errors.Wrap(err, "transport: set write deadline")
	}
	n, err := p.conn.Write(b)
	if err != nil {
		if n > 0 && netError(err) == ErrWouldBlock {
			return n, nil
		}
		return n, netError(err)
	}
	return n, nil
}

func (p *Plain) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.conn.Close()
}
