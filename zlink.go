// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package zlink is a ZeroMQ-inspired STREAM socket over a fast,
// length-prefixed framing codec. It is a thin facade: the socket
// state machine lives in socket, the wire codec in wire, the transport
// and routing-table plumbing in transport and routing, and the
// read/write engine in engine. This file only wires those together
// into the handful of top-level entry points most callers need.
package zlink

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/pkg/errors"

	"github.com/kairos-code-dev/zlink-sub000/engine"
	"github.com/kairos-code-dev/zlink-sub000/monitor"
	"github.com/kairos-code-dev/zlink-sub000/socket"
	"github.com/kairos-code-dev/zlink-sub000/transport"
	"github.com/kairos-code-dev/zlink-sub000/wire"
)

// Re-exported wire constant, so callers need not import wire just to
// name the default size limit.
const (
	DefaultMaxMessageSize = wire.DefaultMaxMessageSize
)

var (
	// ErrWouldBlock is re-exported from wire/transport for callers that
	// drive a Transport directly. A Socket's Send and Recv never return
	// it; they report ErrPipeFull and ErrNoMessage instead.
	ErrWouldBlock = wire.ErrWouldBlock

	// ErrHostUnreachable, ErrPipeFull, ErrNoMessage mirror socket's
	// sentinels so a caller never needs to import socket for error
	// comparisons alone.
	ErrHostUnreachable = socket.ErrHostUnreachable
	ErrPipeFull        = socket.ErrPipeFull
	ErrNoMessage       = socket.ErrNoMessage
)

// Socket, Option and Hooks are re-exported so most programs only ever
// import this package.
type (
	Socket = socket.Socket
	Option = socket.Option
	Hooks  = monitor.Hooks
)

// NewSocket returns an unconnected STREAM socket. Peers are attached to
// it by dialing (DialTCP/DialTLS) or by a caller-supplied listener loop
// that accepts connections and attaches them the same way DialTCP does.
func NewSocket(opts ...Option) *Socket {
	return socket.New(opts...)
}

// DialTCP dials addr over TCP, attaches the new peer to sock as a
// locally-initiated connection, and plugs its engine. The returned rid
// addresses the peer on sock.Send/sock.Recv's routing-id frame.
func DialTCP(ctx context.Context, sock *Socket, addr string, opts ...engine.Option) (rid [4]byte, err error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return rid, errors.Wrap(err, "zlink: dial tcp")
	}
	return attachDialed(ctx, sock, transport.NewPlain(conn), addr, transport.RoleClient, opts...)
}

// DialTLS dials addr over TCP and wraps the connection as a TLS client
// using cfg, otherwise identical to DialTCP. The peer is attached to
// sock first; the TLS handshake runs when its engine is plugged, and a
// failed handshake detaches the peer again.
func DialTLS(ctx context.Context, sock *Socket, addr string, cfg *tls.Config, opts ...engine.Option) (rid [4]byte, err error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return rid, errors.Wrap(err, "zlink: dial tls")
	}
	return attachDialed(ctx, sock, transport.NewTLSClient(conn, cfg), addr, transport.RoleClient, opts...)
}

// AttachServer attaches an already-accepted connection, wrapped as a
// Transport (transport.NewPlain, or transport.NewTLSServer for TLS), as
// a remotely-initiated peer of sock.
// Listener loops call this once per net.Listener.Accept result.
func AttachServer(ctx context.Context, sock *Socket, tr transport.Transport, endpoint string, opts ...engine.Option) (rid [4]byte, err error) {
	return attach(ctx, sock, tr, endpoint, false, opts...)
}

func attachDialed(ctx context.Context, sock *Socket, tr transport.Transport, endpoint string, role transport.Role, opts ...engine.Option) (rid [4]byte, err error) {
	opts = append([]engine.Option{engine.WithRole(role)}, opts...)
	return attach(ctx, sock, tr, endpoint, true, opts...)
}

func attach(ctx context.Context, sock *Socket, tr transport.Transport, endpoint string, locallyInitiated bool, opts ...engine.Option) (rid [4]byte, err error) {
	pipe := socket.NewPipe(0)
	if d := sock.HandshakeTimeout(); d > 0 {
		opts = append([]engine.Option{engine.WithHandshakeTimeout(d)}, opts...)
	}
	eng := engine.New(tr, pipe, endpoint, opts...)
	rr, err := sock.Attach(pipe, eng, locallyInitiated)
	if err != nil {
		_ = tr.Close()
		return rid, err
	}
	if err := eng.Plug(ctx); err != nil {
		return rr, errors.Wrap(err, "zlink: plug engine")
	}
	return rr, nil
}
