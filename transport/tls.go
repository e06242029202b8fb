// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
)

// TLS wraps a *tls.Conn. RequiresHandshake always reports true;
// Handshake drives tls.Conn.HandshakeContext, which already implements
// exactly the role-agnostic "attempt, possibly fail with a transient
// error, retry" capability C3 asks for, so no bespoke retry state
// machine is needed here beyond mapping its errors onto the shared
// ErrWouldBlock contract and data I/O onto immediate-deadline probes.
type TLS struct {
	conn       *tls.Conn
	handshaked bool
	closed     bool
}

// NewTLSClient wraps conn as a TLS client dialing with cfg.
func NewTLSClient(conn net.Conn, cfg *tls.Config) *TLS {
	return &TLS{conn: tls.Client(conn, cfg)}
}

// NewTLSServer wraps conn as a TLS server accepting with cfg.
func NewTLSServer(conn net.Conn, cfg *tls.Config) *TLS {
	return &TLS{conn: tls.Server(conn, cfg)}
}

func (t *TLS) Open(context.Context) bool {
	return t.conn != nil && !t.closed
}

func (t *TLS) IsOpen() bool {
	return t.conn != nil && !t.closed
}

func (t *TLS) RequiresHandshake() bool { return true }

// Handshake drives the TLS handshake to completion or to a transient
// failure. role is accepted for interface symmetry with Transport but
// is not otherwise consulted: the client/server role was already fixed
// when the *tls.Conn was constructed via NewTLSClient/NewTLSServer.
func (t *TLS) Handshake(ctx context.Context, role Role) error {
	if t.handshaked {
		return nil
	}
	if err := t.conn.HandshakeContext(ctx); err != nil {
		return netError(err)
	}
	t.handshaked = true
	return nil
}

func (t *TLS) ReadSome(b []byte) (int, error) {
	if t.closed {
		return 0, errors.New("transport: read on closed connection")
	}
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, errors.Wrap(err, "transport: set read deadline")
	}
	n, err := t.conn.Read(b)
	if err != nil {
		return n, netError(err)
	}
	return n, nil
}

func (t *TLS) WriteSome(b []byte) (int, error) {
	if t.closed {
		return 0, errors.New("transport: write on closed connection")
	}
	if err := t.conn.SetWriteDeadline(time.Now()); err != nil {
		return 0, errors.Wrap(err, "transport: set write deadline")
	}
	n, err := t.conn.Write(b)
	if err != nil {
		return n, netError(err)
	}
	return n, nil
}

func (t *TLS) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
