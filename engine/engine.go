// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package engine couples the wire codec to a transport: it drives the
// handshake, keeps one read in flight and one write in flight, and
// moves decoded frames into a session while pulling outbound messages
// out of it, swapping between a "main" fill buffer and a "flush" drain
// buffer rather than copying between them.
//
// Unlike the asio-based original this engine is driven by two
// goroutines per connection instead of callback re-entry into a
// shared reactor: Plug starts them, and they block on Transport's
// non-blocking calls using a retry-on-ErrWouldBlock discipline,
// optionally replaced by an injected Poller for a real readiness
// notification instead of a spin/sleep loop.
package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kairos-code-dev/zlink-sub000/message"
	"github.com/kairos-code-dev/zlink-sub000/monitor"
	"github.com/kairos-code-dev/zlink-sub000/transport"
	"github.com/kairos-code-dev/zlink-sub000/wire"
)

// State is the engine's lifecycle stage.
type State uint8

const (
	StateIdle State = iota
	StateHandshaking
	StateRunning
	StateTerminating
)

// Reason classifies why an engine tore itself down, mirroring the
// taxonomy the socket and monitor need to tell a clean shutdown from a
// peer misbehaving.
type Reason uint8

const (
	ReasonConnection Reason = iota
	ReasonProtocol
	ReasonTimeout
)

var (
	// ErrBackpressure is returned by Session.PushMsg to mean "no room
	// right now"; the read loop stops pulling bytes off the transport
	// until RestartInput is called.
	ErrBackpressure = errors.New("engine: session applied backpressure")

	// ErrNoMessage is returned by Session.PullMsg to mean "nothing to
	// send right now"; the write loop stops filling its send buffer
	// until RestartOutput is called.
	ErrNoMessage = errors.New("engine: session has no message ready")

	// ErrHandshakeTimeout is the cause error reported to error() when
	// HandshakeTimeout expires before the handshake completes.
	ErrHandshakeTimeout = errors.New("engine: handshake timed out")
)

// Session is the engine's sole collaborator for moving message
// payloads to and from the rest of the socket: a per-peer pipe. It is
// defined here as an interface the engine consumes; no concrete
// implementation ships in this package, it is implemented by the
// socket package's pipe.
type Session interface {
	// PushMsg delivers one inbound message. Returning ErrBackpressure
	// pauses the read loop until RestartInput.
	PushMsg(msg *message.Message) error
	// PullMsg retrieves one outbound message. Returning ErrNoMessage
	// pauses the write loop until RestartOutput.
	PullMsg() (*message.Message, error)
	// Flush is called after one or more PushMsg calls succeed in the
	// same read-loop pass, mirroring session_base_t::flush().
	Flush()
	// EngineError notifies the session that its engine tore itself
	// down, so it can detach its pipe instead of leaking it. wasHandshaking
	// reports whether teardown happened before the engine ever reached
	// StateRunning. Called at most once per engine, from the goroutine
	// that detected the failure, before the engine releases the
	// transport.
	EngineError(wasHandshaking bool, reason Reason, cause error)
}

// Poller is an optional readiness notifier an embedder may supply in
// place of the engine's built-in retry-delay spin loop. Out of scope
// for this module per the STREAM socket/engine split: no concrete
// poller/event-loop runtime is implemented here, only the interface
// the engine is willing to consult.
type Poller interface {
	WaitReadable(ctx context.Context) error
	WaitWritable(ctx context.Context) error
}

// ByteCounter receives byte counts as they cross the transport, for a
// monitor.PromCollector or similar. The Counter option is optional:
// when it is nil, no byte counts are reported.
type ByteCounter interface {
	AddBytesIn(n int)
	AddBytesOut(n int)
}

// Options configures buffer sizing and retry pacing; construct via
// Option functions. Fields no Option sets keep their package defaults;
// a field an Option sets to zero stays zero (the decoder treats a zero
// MaxMessageSize as wire.DefaultMaxMessageSize, and a zero RetryDelay
// retries without sleeping).
type Options struct {
	RecvBufferSize    int
	MaxMessageSize    int64
	SendBufferLimit   int
	RetryDelay        time.Duration
	HandshakeTimeout  time.Duration
	Role              transport.Role
	Logger            *logrus.Entry
	Hooks             monitor.Hooks
	Counter           ByteCounter
	Poller            Poller
}

var defaultOptions = Options{
	RecvBufferSize:  65536,
	MaxMessageSize:  wire.DefaultMaxMessageSize,
	SendBufferLimit: 512 * 1024,
	RetryDelay:      time.Millisecond,
	Role:            transport.RoleClient,
}

// Option mutates Options.
type Option func(*Options)

func WithRecvBufferSize(n int) Option       { return func(o *Options) { o.RecvBufferSize = n } }
func WithMaxMessageSize(n int64) Option     { return func(o *Options) { o.MaxMessageSize = n } }
func WithSendBufferLimit(n int) Option      { return func(o *Options) { o.SendBufferLimit = n } }
func WithRetryDelay(d time.Duration) Option { return func(o *Options) { o.RetryDelay = d } }

// WithHandshakeTimeout arms a one-shot deadline around the handshake
// retry loop; expiry tears the engine down with ReasonTimeout. Zero
// (the default) means no deadline, matching the prior behavior.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}
func WithRole(r transport.Role) Option     { return func(o *Options) { o.Role = r } }
func WithLogger(l *logrus.Entry) Option    { return func(o *Options) { o.Logger = l } }
func WithHooks(h monitor.Hooks) Option      { return func(o *Options) { o.Hooks = h } }
func WithByteCounter(c ByteCounter) Option { return func(o *Options) { o.Counter = c } }
func WithPoller(p Poller) Option           { return func(o *Options) { o.Poller = p } }

var noopLogger = func() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}()

// Engine is the stream engine: the one component that actually talks
// to a Transport and a wire Decoder/encoder buffer.
type Engine struct {
	opts     Options
	tr       transport.Transport
	session  Session
	endpoint string

	mu    sync.Mutex
	state State

	dec *wire.Decoder

	sendMain        []byte
	sendFlush       []byte
	sendFlushOffset int
	parked          *message.Message
	inputStopped    bool
	outputStopped   bool

	inputResume  chan struct{}
	outputResume chan struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New returns an unplugged Engine wrapping tr. endpoint is a
// human-readable label (e.g. "tcp://host:port") carried into monitor
// events.
func New(tr transport.Transport, session Session, endpoint string, opts ...Option) *Engine {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = noopLogger
	}
	return &Engine{
		opts:         o,
		tr:           tr,
		session:      session,
		endpoint:     endpoint,
		dec:          wire.NewDecoder(o.MaxMessageSize),
		inputResume:  make(chan struct{}, 1),
		outputResume: make(chan struct{}, 1),
	}
}

// State reports the engine's current lifecycle stage.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Plug opens the transport, performs the handshake if the transport
// requires one, and starts the read/write loops. It returns once the
// handshake either completes or fails; the loops continue running in
// background goroutines managed by e.wg.
func (e *Engine) Plug(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return errors.New("engine: already plugged")
	}
	e.state = StateHandshaking
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if !e.tr.Open(runCtx) {
		e.error(ReasonConnection, errors.New("engine: transport failed to open"))
		return errors.New("engine: transport failed to open")
	}

	if e.tr.RequiresHandshake() {
		if err := e.handshake(runCtx); err != nil {
			reason := ReasonConnection
			if errors.Is(err, ErrHandshakeTimeout) {
				reason = ReasonTimeout
			}
			e.error(reason, err)
			return err
		}
	}

	e.mu.Lock()
	e.state = StateRunning
	e.mu.Unlock()

	e.opts.Hooks.Emit(monitor.NewEvent(monitor.ConnectionReady, e.endpoint, nil))

	e.wg.Add(2)
	go e.readLoop(runCtx)
	go e.writeLoop(runCtx)
	return nil
}

// handshake drives the transport's handshake to completion, arming a
// one-shot deadline derived from HandshakeTimeout (if set) around the
// whole retry loop. A stalled peer then fails with ErrHandshakeTimeout
// instead of blocking forever; classification of the failure into a
// monitor event happens in error(), not here.
func (e *Engine) handshake(ctx context.Context) error {
	hctx := ctx
	if e.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, e.opts.HandshakeTimeout)
		defer cancel()
	}

	timedOut := func(err error) bool {
		return e.opts.HandshakeTimeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
	}

	for {
		err := e.tr.Handshake(hctx, e.opts.Role)
		if err == nil {
			return nil
		}
		if !errors.Is(err, transport.ErrWouldBlock) {
			if timedOut(err) {
				return ErrHandshakeTimeout
			}
			return err
		}
		if waitErr := e.waitReadable(hctx); waitErr != nil {
			if timedOut(waitErr) {
				return ErrHandshakeTimeout
			}
			return waitErr
		}
	}
}

// RestartInput resumes the read loop after a Session that previously
// returned ErrBackpressure from PushMsg is ready for more.
func (e *Engine) RestartInput() {
	e.mu.Lock()
	e.inputStopped = false
	e.mu.Unlock()
	select {
	case e.inputResume <- struct{}{}:
	default:
	}
}

// RestartOutput resumes the write loop after a Session that previously
// returned ErrNoMessage from PullMsg has a message ready.
func (e *Engine) RestartOutput() {
	e.mu.Lock()
	e.outputStopped = false
	e.mu.Unlock()
	select {
	case e.outputResume <- struct{}{}:
	default:
	}
}

// Terminate tears the engine down: it cancels the background loops,
// closes the transport, and waits for both loops to exit. Terminate is
// idempotent.
func (e *Engine) Terminate() {
	e.mu.Lock()
	if e.state == StateTerminating {
		e.mu.Unlock()
		return
	}
	e.state = StateTerminating
	e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	_ = e.tr.Close()
	e.wg.Wait()
}

// error is the engine's single entry point for fatal conditions: it
// marks the engine terminating, notifies the session so it can detach
// its pipe, emits the matching monitor event(s), and tears down the
// transport. Safe to call more than once.
func (e *Engine) error(reason Reason, cause error) {
	e.mu.Lock()
	wasHandshaking := e.state == StateHandshaking
	already := e.state == StateTerminating
	e.state = StateTerminating
	e.mu.Unlock()

	if already {
		return
	}

	if wasHandshaking {
		e.opts.Hooks.Emit(monitor.NewEvent(classifyHandshakeFailure(cause), e.endpoint, cause))
	}
	e.opts.Hooks.Emit(monitor.NewDisconnectEvent(e.endpoint, cause, disconnectReason(reason, wasHandshaking, cause)))
	e.opts.Logger.WithError(cause).WithField("endpoint", e.endpoint).Warn("engine: tearing down")

	if e.session != nil {
		e.session.EngineError(wasHandshaking, reason, cause)
		e.session.Flush()
	}

	if e.cancel != nil {
		e.cancel()
	}
	_ = e.tr.Close()
}

// classifyHandshakeFailure sub-classifies a handshake failure cause
// into the monitor's three-way handshake-failure taxonomy: a TLS
// certificate/authority/hostname mismatch is an auth failure, a
// malformed TLS record is a protocol failure, and anything else
// (including a handshake timeout) is reported with no further detail.
func classifyHandshakeFailure(cause error) monitor.Code {
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var certInvalid x509.CertificateInvalidError
	if errors.As(cause, &unknownAuthority) || errors.As(cause, &hostnameErr) || errors.As(cause, &certInvalid) {
		return monitor.HandshakeFailedAuth
	}

	var recordHeaderErr tls.RecordHeaderError
	if errors.As(cause, &recordHeaderErr) {
		return monitor.HandshakeFailedProtocol
	}

	return monitor.HandshakeFailedNoDetail
}

// disconnectReason maps the engine's internal teardown reason (plus
// whether teardown happened mid-handshake, and the underlying cause)
// onto the monitor's externally-observed reason taxonomy.
func disconnectReason(reason Reason, wasHandshaking bool, cause error) monitor.Reason {
	switch {
	case wasHandshaking:
		return monitor.ReasonHandshakeFailed
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		return monitor.ReasonCtxTerm
	case reason == ReasonConnection, reason == ReasonProtocol, reason == ReasonTimeout:
		return monitor.ReasonTransportError
	default:
		return monitor.ReasonUnknown
	}
}

// waitReadable blocks until the transport is probably readable again,
// using the injected Poller if one was supplied, or else a
// spin/sleep retry discipline.
func (e *Engine) waitReadable(ctx context.Context) error {
	if e.opts.Poller != nil {
		return e.opts.Poller.WaitReadable(ctx)
	}
	return e.retryDelay(ctx)
}

func (e *Engine) waitWritable(ctx context.Context) error {
	if e.opts.Poller != nil {
		return e.opts.Poller.WaitWritable(ctx)
	}
	return e.retryDelay(ctx)
}

func (e *Engine) retryDelay(ctx context.Context) error {
	if e.opts.RetryDelay <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(e.opts.RetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
