// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package monitor carries connection-lifecycle notifications out of
// the engine and socket: connected/accepted, connect-delayed/-retried,
// connection-ready, a three-way handshake-failure breakdown, and
// disconnected (with a reason). Hooks is a struct-of-funcs, any of
// which may be nil; a nil hook is simply skipped, so callers attach
// only the events they care about instead of implementing a full
// observer interface.
package monitor

import (
	"github.com/google/uuid"
)

// Code identifies which lifecycle event an Event reports.
type Code uint8

const (
	// Connected fires when a locally-initiated (dial) peer finishes
	// attaching to the socket.
	Connected Code = iota
	// Accepted fires when a remotely-initiated (accept) peer finishes
	// attaching to the socket.
	Accepted
	// ConnectDelayed fires when a dial attempt could not complete
	// immediately and was deferred.
	ConnectDelayed
	// ConnectRetried fires when a previously delayed dial attempt is
	// retried.
	ConnectRetried
	// ConnectionReady fires once an engine's handshake (if any)
	// completes and its read/write loops start.
	ConnectionReady
	// HandshakeFailedNoDetail fires when a handshake fails for a reason
	// that couldn't be classified further.
	HandshakeFailedNoDetail
	// HandshakeFailedProtocol fires when a handshake fails because the
	// peer violated the transport's protocol (e.g. a malformed TLS
	// record).
	HandshakeFailedProtocol
	// HandshakeFailedAuth fires when a handshake fails authentication
	// (e.g. a TLS certificate the peer could not be verified against).
	HandshakeFailedAuth
	// Disconnected fires when an engine tears itself down, carrying a
	// Reason describing why.
	Disconnected
)

func (c Code) String() string {
	switch c {
	case Connected:
		return "connected"
	case Accepted:
		return "accepted"
	case ConnectDelayed:
		return "connect_delayed"
	case ConnectRetried:
		return "connect_retried"
	case ConnectionReady:
		return "connection_ready"
	case HandshakeFailedNoDetail:
		return "handshake_failed_no_detail"
	case HandshakeFailedProtocol:
		return "handshake_failed_protocol"
	case HandshakeFailedAuth:
		return "handshake_failed_auth"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Reason classifies why a Disconnected event fired, mirroring the
// engine's own teardown taxonomy so an observer can tell a clean
// shutdown from a peer misbehaving without parsing Event.Value.
type Reason uint8

const (
	ReasonUnknown Reason = iota
	ReasonCtxTerm
	ReasonHandshakeFailed
	ReasonTransportError
)

func (r Reason) String() string {
	switch r {
	case ReasonCtxTerm:
		return "ctx_term"
	case ReasonHandshakeFailed:
		return "handshake_failed"
	case ReasonTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Event describes one lifecycle transition. ID is a best-effort
// correlation id: a lossy sink can use it to dedupe or trace a single
// connection's event sequence, but nothing in the engine or socket
// depends on it for correctness.
type Event struct {
	Code       Code
	Endpoint   string
	Value      error
	Reason     Reason
	LocalAddr  string
	RemoteAddr string
	ID         uuid.UUID
}

// Hooks is a struct-of-funcs observer: every field is independently
// optional, so an embedder wires only the events it wants and lets the
// rest stay nil.
type Hooks struct {
	OnConnected               func(Event)
	OnAccepted                func(Event)
	OnConnectDelayed          func(Event)
	OnConnectRetried          func(Event)
	OnConnectionReady         func(Event)
	OnHandshakeFailedNoDetail func(Event)
	OnHandshakeFailedProtocol func(Event)
	OnHandshakeFailedAuth     func(Event)
	OnDisconnected            func(Event)
}

// NoOpHooks is the zero value: every field nil, every Emit call a
// no-op. Engines and sockets default to this when constructed without
// explicit hooks.
var NoOpHooks = Hooks{}

// Emit dispatches ev to whichever hook field matches its Code, doing
// nothing if that field is nil.
func (h Hooks) Emit(ev Event) {
	var fn func(Event)
	switch ev.Code {
	case Connected:
		fn = h.OnConnected
	case Accepted:
		fn = h.OnAccepted
	case ConnectDelayed:
		fn = h.OnConnectDelayed
	case ConnectRetried:
		fn = h.OnConnectRetried
	case ConnectionReady:
		fn = h.OnConnectionReady
	case HandshakeFailedNoDetail:
		fn = h.OnHandshakeFailedNoDetail
	case HandshakeFailedProtocol:
		fn = h.OnHandshakeFailedProtocol
	case HandshakeFailedAuth:
		fn = h.OnHandshakeFailedAuth
	case Disconnected:
		fn = h.OnDisconnected
	}
	if fn != nil {
		fn(ev)
	}
}

// NewEvent returns an Event stamped with a fresh correlation id. Use
// NewDisconnectEvent instead for Disconnected, so its Reason is never
// left at the zero value by omission.
func NewEvent(code Code, endpoint string, value error) Event {
	return Event{Code: code, Endpoint: endpoint, Value: value, ID: uuid.New()}
}

// NewDisconnectEvent returns a Disconnected Event carrying reason, so
// an observer can tell a clean shutdown from a peer misbehaving
// without parsing Value.
func NewDisconnectEvent(endpoint string, value error, reason Reason) Event {
	return Event{Code: Disconnected, Endpoint: endpoint, Value: value, Reason: reason, ID: uuid.New()}
}
