// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package socket_test

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/kairos-code-dev/zlink-sub000/engine"
	"github.com/kairos-code-dev/zlink-sub000/message"
	"github.com/kairos-code-dev/zlink-sub000/routing"
	"github.com/kairos-code-dev/zlink-sub000/socket"
)

func ridFrame(rid routing.RID) message.Message {
	m := message.InitSize(4)
	copy(m.Data(), rid[:])
	m.SetFlags(message.More)
	return m
}

func attachPipe(t *testing.T, s *socket.Socket) (*socket.Pipe, routing.RID) {
	t.Helper()
	p := socket.NewPipe(4)
	rid, err := s.Attach(p, nil, false)
	require.NoError(t, err)
	return p, rid
}

func recvFrame(t *testing.T, s *socket.Socket) (routing.RID, []byte) {
	t.Helper()
	ridMsg, err := s.Recv()
	require.NoError(t, err)
	require.True(t, ridMsg.More())
	require.Equal(t, 4, ridMsg.Size())
	rid := routing.FromUint32(binary.BigEndian.Uint32(ridMsg.Data()))

	payloadMsg, err := s.Recv()
	require.NoError(t, err)
	require.False(t, payloadMsg.More())
	return rid, append([]byte(nil), payloadMsg.Data()...)
}

func TestAttachQueuesConnectEvent(t *testing.T) {
	s := socket.New()
	_, rid := attachPipe(t, s)

	require.True(t, s.HasIn())
	gotRID, payload := recvFrame(t, s)
	require.Equal(t, rid, gotRID)
	require.Equal(t, []byte{0x01}, payload)
}

func TestSendRejectsRoutingFrameOfWrongSize(t *testing.T) {
	s := socket.New()
	attachPipe(t, s)

	bad := message.InitSize(3)
	bad.SetFlags(message.More)
	err := s.Send(&bad)
	require.ErrorIs(t, err, socket.ErrInvalidRoutingFrame)
}

func TestSendToUnknownRIDIsHostUnreachableByDefault(t *testing.T) {
	s := socket.New()
	frame := ridFrame(routing.FromUint32(999))
	err := s.Send(&frame)
	require.ErrorIs(t, err, socket.ErrHostUnreachable)
}

func TestSendToUnknownRIDSilentlyDropsWhenNotMandatory(t *testing.T) {
	s := socket.New(socket.WithRouterMandatory(false))
	frame := ridFrame(routing.FromUint32(999))
	require.NoError(t, s.Send(&frame))

	payload := message.InitBuffer([]byte("dropped"))
	require.NoError(t, s.Send(&payload))
}

func TestSendAndRecvRoundTrip(t *testing.T) {
	s := socket.New()
	p, rid := attachPipe(t, s)

	// Drain the synthetic connect event first.
	_, _ = recvFrame(t, s)

	frame := ridFrame(rid)
	require.NoError(t, s.Send(&frame))
	payload := message.InitBuffer([]byte("payload"))
	require.NoError(t, s.Send(&payload))

	msg, ok := p.PullMsg()
	require.NoError(t, ok)
	require.Equal(t, "payload", string(msg.Data()))
	rgot, has := msg.RoutingID()
	require.True(t, has)
	require.Equal(t, rid.Uint32(), rgot)
}

func TestRecvDeliversSingleByteDisconnectCodeOnDetach(t *testing.T) {
	s := socket.New()
	p, rid := attachPipe(t, s)
	_, _ = recvFrame(t, s) // connect event

	frame := ridFrame(rid)
	require.NoError(t, s.Send(&frame))
	closeByte := message.InitBuffer([]byte{0x00})
	require.NoError(t, s.Send(&closeByte))

	gotRID, payload := recvFrame(t, s)
	require.Equal(t, rid, gotRID)
	require.Equal(t, []byte{0x00}, payload)
	require.Equal(t, 0, s.PeerCount())
	_ = p
}

func TestFairQueueRotatesAcrossPeers(t *testing.T) {
	s := socket.New()
	pA, ridA := attachPipe(t, s)
	pB, ridB := attachPipe(t, s)
	_, _ = recvFrame(t, s) // connect A
	_, _ = recvFrame(t, s) // connect B

	pipeA, _ := s.Attach(socket.NewPipe(4), nil, false)
	_ = pipeA

	for _, rid := range []routing.RID{ridA, ridB} {
		frame := ridFrame(rid)
		require.NoError(t, s.Send(&frame))
		payload := message.InitBuffer([]byte("x"))
		require.NoError(t, s.Send(&payload))
	}

	_, _ = recvFrame(t, s) // connect event of the third peer

	// Two inbound frames on A and one on B: the fair queue serves A,
	// then B, then A again instead of draining A first.
	for _, p := range []*socket.Pipe{pA, pA, pB} {
		in := message.InitBuffer([]byte("in"))
		require.NoError(t, p.PushMsg(&in))
	}
	first, _ := recvFrame(t, s)
	second, _ := recvFrame(t, s)
	third, _ := recvFrame(t, s)
	require.Equal(t, []routing.RID{ridA, ridB, ridA}, []routing.RID{first, second, third})
}

func TestEngineErrorDetachesPipeAndDeliversDisconnectCode(t *testing.T) {
	s := socket.New()
	p, rid := attachPipe(t, s)
	_, _ = recvFrame(t, s) // connect event

	p.EngineError(false, engine.ReasonConnection, errors.New("peer closed connection"))
	require.Equal(t, 0, s.PeerCount())

	gotRID, payload := recvFrame(t, s)
	require.Equal(t, rid, gotRID)
	require.Equal(t, []byte{0x00}, payload)

	// A second notification for the same, already-detached pipe must
	// not queue a duplicate disconnect.
	p.EngineError(false, engine.ReasonConnection, errors.New("peer closed connection"))
	require.False(t, s.HasIn())
}

func TestConnectRoutingIDIsPreassignedOnce(t *testing.T) {
	s := socket.New()
	preset := routing.FromUint32(77)
	s.SetConnectRoutingID(preset)

	// The preset applies only to locally-initiated (connect-side) pipes.
	rid, err := s.Attach(socket.NewPipe(4), nil, true)
	require.NoError(t, err)
	require.Equal(t, preset, rid)

	// Second Attach should fall back to auto-assignment, not reuse preset.
	rid2, err := s.Attach(socket.NewPipe(4), nil, true)
	require.NoError(t, err)
	require.NotEqual(t, preset, rid2)
}
