// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport implements the byte-oriented, non-blocking
// capability set the stream engine drives: open, optional handshake,
// read-some, write-some, close. Two concrete transports are provided,
// Plain (a bare net.Conn) and TLS (crypto/tls.Conn); both honor the
// same non-blocking contract as the wire codec, returning
// iox.ErrWouldBlock rather than blocking the caller's goroutine.
package transport

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock means "no bytes moved, try again once the underlying
// connection is readable/writable". Re-exported from iox so callers
// need not import it directly.
var ErrWouldBlock = iox.ErrWouldBlock

// Role distinguishes which side of a handshake a transport plays.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// Transport is the capability set the stream engine drives. It is
// deliberately narrow: everything about address resolution, listening,
// and accepting happens above this interface; a Transport already
// wraps one established connection.
type Transport interface {
	// Open associates the transport with ctx, performing whatever setup
	// (e.g. enabling deadlines) is needed before I/O. It returns false
	// if the underlying connection is already unusable.
	Open(ctx context.Context) bool

	// IsOpen reports whether the transport can still be read from or
	// written to.
	IsOpen() bool

	// RequiresHandshake reports whether Handshake must be called (and
	// succeed) before ReadSome/WriteSome are used for data frames. A
	// transport that returns false here is implicitly ready the moment
	// Open succeeds.
	RequiresHandshake() bool

	// Handshake performs the role-specific handshake (e.g. TLS). It
	// returns ErrWouldBlock if the handshake needs another I/O readiness
	// notification to make progress; any other non-nil error is fatal
	// and the caller must Close the transport.
	Handshake(ctx context.Context, role Role) error

	// ReadSome reads at least one byte into p, or returns ErrWouldBlock
	// if the connection currently has no data available.
	ReadSome(p []byte) (int, error)

	// WriteSome writes at least one byte from p, or returns
	// ErrWouldBlock if the connection's send buffer is currently full.
	WriteSome(p []byte) (int, error)

	// Close cancels any pending I/O and marks the transport closed;
	// subsequent IsOpen calls return false.
	Close() error
}

// netError maps a net.Conn timeout (the probe deadline set by
// ReadSome/WriteSome expiring) to ErrWouldBlock, the transient,
// non-fatal condition the engine retries on, and returns any other
// error unchanged as a teardown reason.
func netError(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrWouldBlock
	}
	return err
}
