// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package monitor_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/kairos-code-dev/zlink-sub000/monitor"
)

func TestNoOpHooksEmitDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		monitor.NoOpHooks.Emit(monitor.NewEvent(monitor.Connected, "tcp://127.0.0.1:0", nil))
	})
}

func TestEmitDispatchesToMatchingField(t *testing.T) {
	var got monitor.Event
	hooks := monitor.Hooks{
		OnDisconnected: func(ev monitor.Event) { got = ev },
	}
	hooks.Emit(monitor.NewEvent(monitor.Connected, "tcp://x", nil))
	require.Zero(t, got, "non-matching code must not invoke the wrong hook")

	hooks.Emit(monitor.NewDisconnectEvent("tcp://x", nil, monitor.ReasonTransportError))
	require.Equal(t, monitor.Disconnected, got.Code)
	require.Equal(t, monitor.ReasonTransportError, got.Reason)
	require.NotEqual(t, got.ID.String(), "")
}

func TestEmitDistinguishesHandshakeFailureCodes(t *testing.T) {
	var gotAuth, gotProtocol monitor.Event
	hooks := monitor.Hooks{
		OnHandshakeFailedAuth:     func(ev monitor.Event) { gotAuth = ev },
		OnHandshakeFailedProtocol: func(ev monitor.Event) { gotProtocol = ev },
	}
	hooks.Emit(monitor.NewEvent(monitor.HandshakeFailedAuth, "tcp://x", nil))
	hooks.Emit(monitor.NewEvent(monitor.HandshakeFailedProtocol, "tcp://x", nil))

	require.Equal(t, monitor.HandshakeFailedAuth, gotAuth.Code)
	require.Equal(t, monitor.HandshakeFailedProtocol, gotProtocol.Code)
}

func TestPromCollectorHooksIncrementCounters(t *testing.T) {
	c := monitor.NewPromCollector("zlink_test")
	hooks := c.Hooks()
	hooks.Emit(monitor.NewEvent(monitor.Connected, "tcp://x", nil))
	hooks.Emit(monitor.NewEvent(monitor.Connected, "tcp://x", nil))

	require.Equal(t, float64(2), testutil.ToFloat64(c.Events.WithLabelValues("connected")))

	c.AddBytesIn(10)
	c.AddBytesOut(3)
	require.Equal(t, float64(10), testutil.ToFloat64(c.BytesIn))
	require.Equal(t, float64(3), testutil.ToFloat64(c.BytesOut))
}
