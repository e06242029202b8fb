// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package message_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kairos-code-dev/zlink-sub000/message"
)

func TestInitSizeAndData(t *testing.T) {
	m := message.InitSize(5)
	require.Equal(t, 5, m.Size())
	copy(m.Data(), []byte("hello"))
	require.Equal(t, []byte("hello"), m.Data())
}

func TestInitBufferCopies(t *testing.T) {
	src := []byte("payload")
	m := message.InitBuffer(src)
	src[0] = 'X'
	require.Equal(t, "payload", string(m.Data()))
}

func TestRoutingIDAndFlags(t *testing.T) {
	m := message.InitSize(0)
	_, ok := m.RoutingID()
	require.False(t, ok)

	m.SetRoutingID(42)
	rid, ok := m.RoutingID()
	require.True(t, ok)
	require.Equal(t, uint32(42), rid)

	require.False(t, m.More())
	m.SetFlags(message.More)
	require.True(t, m.More())
	m.ResetFlags(message.More)
	require.False(t, m.More())

	m.ResetRoutingID()
	_, ok = m.RoutingID()
	require.False(t, ok)
}

func TestMoveLeavesSourceEmpty(t *testing.T) {
	a := message.InitBuffer([]byte("abc"))
	a.SetRoutingID(7)

	var b message.Message
	b.Move(&a)

	require.Equal(t, "abc", string(b.Data()))
	rid, ok := b.RoutingID()
	require.True(t, ok)
	require.Equal(t, uint32(7), rid)

	require.Equal(t, 0, a.Size())
	_, ok = a.RoutingID()
	require.False(t, ok)
}

func TestInitDataDeleterRunsOnceAtZeroRefcount(t *testing.T) {
	buf := make([]byte, 8)
	calls := 0
	var lastHint any

	m := message.InitData(buf, func(b []byte, hint any) {
		calls++
		lastHint = hint
	}, "slab-7")

	clone := m.Clone()

	m.Close()
	require.Equal(t, 0, calls, "deleter must not run while a clone still holds a reference")

	clone.Close()
	require.Equal(t, 1, calls)
	require.Equal(t, "slab-7", lastHint)
}

func TestCloseIsIdempotent(t *testing.T) {
	buf := make([]byte, 4)
	calls := 0
	m := message.InitData(buf, func([]byte, any) { calls++ }, nil)
	m.Close()
	require.Equal(t, 1, calls)

	// Closing an already-closed (now zero-value) message must not panic
	// or re-invoke the deleter.
	m.Close()
	require.Equal(t, 1, calls)
}

func TestSharedSlabDeleterFiresOnlyWhenAllRefsClosed(t *testing.T) {
	buf := make([]byte, 16)
	freed := 0
	slab := message.NewSharedSlab(buf, func([]byte, any) { freed++ }, "slab")

	a := slab.Ref(buf[0:4])
	b := slab.Ref(buf[4:8])

	a.Close()
	require.Equal(t, 0, freed)
	b.Close()
	require.Equal(t, 1, freed)
}

func TestCloneOfOwnedBufferIsIndependent(t *testing.T) {
	a := message.InitBuffer([]byte("owned"))
	b := a.Clone()
	b.Data()[0] = 'X'
	require.Equal(t, "owned", string(a.Data()))
}
