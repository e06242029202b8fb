// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kairos-code-dev/zlink-sub000/wire"
)

func feed(t *testing.T, d *wire.Decoder, b []byte) {
	t.Helper()
	buf := d.Reserve(len(b))
	require.GreaterOrEqual(t, len(buf), len(b))
	n := copy(buf, b)
	d.Commit(n)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf []byte
	buf, err := wire.Append(buf, wire.TypeData, 7, []byte("hello"))
	require.NoError(t, err)

	d := wire.NewDecoder(0)
	feed(t, d, buf)

	msg, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "hello", string(msg.Data()))
	rid, ok := msg.RoutingID()
	require.True(t, ok)
	require.Equal(t, uint32(7), rid)
	require.Equal(t, wire.TypeData, d.LastFrameType())
	msg.Close()
}

func TestDecoderReturnsNilNilWhenIncomplete(t *testing.T) {
	d := wire.NewDecoder(0)
	feed(t, d, []byte{0, 0, 0})

	msg, err := d.Next()
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestDecoderWaitsForFullPayload(t *testing.T) {
	full, err := wire.Append(nil, wire.TypeData, 1, []byte("payload-bytes"))
	require.NoError(t, err)

	d := wire.NewDecoder(0)
	feed(t, d, full[:wire.EnvelopeLen+2])

	msg, err := d.Next()
	require.NoError(t, err)
	require.Nil(t, msg)

	feed(t, d, full[wire.EnvelopeLen+2:])
	msg, err = d.Next()
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "payload-bytes", string(msg.Data()))
	msg.Close()
}

func TestDecoderRejectsBadVersion(t *testing.T) {
	buf, err := wire.Append(nil, wire.TypeData, 1, []byte("x"))
	require.NoError(t, err)
	buf[4] = 0x02 // version byte

	d := wire.NewDecoder(0)
	feed(t, d, buf)

	_, err = d.Next()
	require.ErrorIs(t, err, wire.ErrProtocol)
}

func TestDecoderRejectsBadMagic(t *testing.T) {
	buf, err := wire.Append(nil, wire.TypeData, 1, []byte("x"))
	require.NoError(t, err)
	buf[6] = 0xFF

	d := wire.NewDecoder(0)
	feed(t, d, buf)

	_, err = d.Next()
	require.ErrorIs(t, err, wire.ErrProtocol)
}

func TestDecoderRejectsInvalidType(t *testing.T) {
	buf, err := wire.Append(nil, wire.TypeData, 1, []byte("x"))
	require.NoError(t, err)
	buf[5] = 0x7F

	d := wire.NewDecoder(0)
	feed(t, d, buf)

	_, err = d.Next()
	require.ErrorIs(t, err, wire.ErrProtocol)
}

func TestDecoderRejectsLengthBelowHeader(t *testing.T) {
	d := wire.NewDecoder(0)
	var hdr [wire.EnvelopeLen]byte
	// length field claims fewer bytes than HeaderAfterLengthLen.
	hdr[3] = byte(wire.HeaderAfterLengthLen - 1)
	feed(t, d, hdr[:])

	_, err := d.Next()
	require.ErrorIs(t, err, wire.ErrProtocol)
}

func TestDecoderRejectsOversizedPayload(t *testing.T) {
	buf, err := wire.Append(nil, wire.TypeData, 1, bytes.Repeat([]byte{'a'}, 64))
	require.NoError(t, err)

	d := wire.NewDecoder(8)
	feed(t, d, buf)

	_, err = d.Next()
	require.ErrorIs(t, err, wire.ErrTooLong)
}

func TestEncoderRejectsEmptyPayload(t *testing.T) {
	_, err := wire.Append(nil, wire.TypeData, 1, nil)
	require.ErrorIs(t, err, wire.ErrProtocol)
}

func TestDecoderDecodesMultipleFramesFromOneBuffer(t *testing.T) {
	var buf []byte
	buf, err := wire.Append(buf, wire.TypeData, 1, []byte("one"))
	require.NoError(t, err)
	buf, err = wire.Append(buf, wire.TypeConnect, 2, []byte("two"))
	require.NoError(t, err)

	d := wire.NewDecoder(0)
	feed(t, d, buf)

	m1, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, m1)
	require.Equal(t, "one", string(m1.Data()))
	require.Equal(t, wire.TypeData, d.LastFrameType())

	m2, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, m2)
	require.Equal(t, "two", string(m2.Data()))
	require.Equal(t, wire.TypeConnect, d.LastFrameType())

	m1.Close()
	m2.Close()
}

func TestDecoderGrowthPreservesEarlierZeroCopyMessages(t *testing.T) {
	d := wire.NewDecoder(0)

	first, err := wire.Append(nil, wire.TypeData, 1, []byte("first-message"))
	require.NoError(t, err)
	feed(t, d, first)

	m1, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, m1)
	// m1 is a zero-copy slice into the decoder's slab; keep it open and
	// force the slab to grow with further writes to make sure growth
	// never clobbers it.
	want := append([]byte(nil), m1.Data()...)

	big := bytes.Repeat([]byte{'z'}, 1<<20)
	second, err := wire.Append(nil, wire.TypeData, 2, big)
	require.NoError(t, err)
	feed(t, d, second)

	require.Equal(t, want, m1.Data(), "growth must not corrupt an earlier zero-copy message")

	m2, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, m2)
	require.Equal(t, big, m2.Data())

	m1.Close()
	m2.Close()
}

func TestEncoderWriteFrameToWriter(t *testing.T) {
	var out bytes.Buffer
	enc := wire.NewEncoder(&out)
	require.NoError(t, enc.WriteFrame(wire.TypeDisconnect, 9, []byte("bye")))

	d := wire.NewDecoder(0)
	feed(t, d, out.Bytes())

	msg, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "bye", string(msg.Data()))
	rid, ok := msg.RoutingID()
	require.True(t, ok)
	require.Equal(t, uint32(9), rid)
	require.Equal(t, wire.TypeDisconnect, d.LastFrameType())
	msg.Close()
}

func TestEncoderWriteFrameRejectsEmptyPayload(t *testing.T) {
	var out bytes.Buffer
	enc := wire.NewEncoder(&out)
	require.ErrorIs(t, enc.WriteFrame(wire.TypeData, 1, nil), wire.ErrProtocol)
}
