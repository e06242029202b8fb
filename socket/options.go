// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package socket

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kairos-code-dev/zlink-sub000/monitor"
	"github.com/kairos-code-dev/zlink-sub000/wire"
)

// Options configures a Socket via the functional-options pattern.
type Options struct {
	// RouterMandatory, when true (the default for STREAM), rejects a
	// send addressed to an unknown rid with ErrHostUnreachable instead
	// of silently dropping it.
	RouterMandatory bool
	MaxMessageSize  int64
	HighWaterMark   int
	// HandshakeTimeout bounds how long a peer's engine may spend in its
	// handshake before the connection is torn down as timed out. Zero
	// means no deadline. zlink's DialTCP, DialTLS and AttachServer apply
	// it to each engine they create, client or server side; an engine
	// passed to Socket.Attach directly keeps its own setting.
	HandshakeTimeout time.Duration
	Hooks            monitor.Hooks
	Logger           *logrus.Entry
}

var defaultOptions = Options{
	RouterMandatory: true,
	MaxMessageSize:  wire.DefaultMaxMessageSize,
	HighWaterMark:   1000,
}

// Option mutates Options.
type Option func(*Options)

func WithRouterMandatory(on bool) Option { return func(o *Options) { o.RouterMandatory = on } }
func WithMaxMessageSize(n int64) Option  { return func(o *Options) { o.MaxMessageSize = n } }
func WithHighWaterMark(n int) Option     { return func(o *Options) { o.HighWaterMark = n } }

// WithHandshakeTimeout bounds every engine this socket attaches to a
// one-shot handshake deadline; expiry tears that peer down as timed
// out instead of hanging forever on a stalled TLS peer.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}
func WithHooks(h monitor.Hooks) Option  { return func(o *Options) { o.Hooks = h } }
func WithLogger(l *logrus.Entry) Option { return func(o *Options) { o.Logger = l } }

var noopLogger = func() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}()
