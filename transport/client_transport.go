// Package transport implements the client side of a bulb connection.
//
// ClientTransport lets many concurrent calls share one TCP connection. Each
// request gets a unique correlation id, and a background goroutine (recvLoop)
// reads every inbound line and routes it: responses go to the waiting caller
// via the Tracker, notifications go to the Dispatcher.
//
//	goroutine-1 ──Call(id=1)──┐
//	goroutine-2 ──Call(id=2)──┼──→ single TCP conn ──→ bulb
//	goroutine-3 ──Call(id=3)──┘
//
//	recvLoop:  ←── {"id":2,...}            → tracker   → goroutine-2 wakes up
//	           ←── {"method":"props",...}  → dispatcher → subscriber
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"yeectl/codec"
	"yeectl/message"
	"yeectl/protocol"
)

// DefaultPort is the bulb's control port.
const DefaultPort = 55443

// ClientTransport manages a single multiplexed connection to one bulb.
type ClientTransport struct {
	conn    net.Conn
	reader  *protocol.Reader
	codec   codec.Codec
	logger  *zap.Logger
	seq     atomic.Uint64 // last correlation id handed out
	state   atomic.Int32
	sending sync.Mutex // one writer at a time, so lines never interleave
	pending *Tracker
	notify  *Dispatcher

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the bulb at address:port and starts the read loop.
func Dial(ctx context.Context, address string, port uint16, opts ...Option) (*ClientTransport, error) {
	o := buildOptions(opts)
	addr := net.JoinHostPort(address, strconv.Itoa(int(port)))

	t := newClientTransport(o)
	t.logger.Debug("connecting", zap.String("addr", addr))

	d := net.Dialer{KeepAlive: o.keepAlive}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.state.Store(int32(StateClosed))
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, err)
	}
	t.start(conn)
	return t, nil
}

// NewClientTransport wraps an established connection and starts the read
// loop.
func NewClientTransport(conn net.Conn, opts ...Option) *ClientTransport {
	t := newClientTransport(buildOptions(opts))
	t.start(conn)
	return t
}

func newClientTransport(o options) *ClientTransport {
	t := &ClientTransport{
		codec:   o.codec,
		logger:  o.logger,
		pending: NewTracker(),
		notify:  NewDispatcher(o.notifyBuffer, o.observer),
		done:    make(chan struct{}),
	}
	t.state.Store(int32(StateConnecting))
	return t
}

func (t *ClientTransport) start(conn net.Conn) {
	t.conn = conn
	t.reader = protocol.NewReader(conn)
	t.logger = t.logger.With(zap.String("remote", conn.RemoteAddr().String()))
	t.state.Store(int32(StateOpen))
	go t.recvLoop()
}

// Send encodes and writes a request, returning its correlation id and a
// channel that receives the outcome. Most callers want Call instead.
func (t *ClientTransport) Send(ctx context.Context, method string, params []any) (uint64, <-chan Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, fmt.Errorf("%w: %s: %w", ErrTimeout, method, err)
	}

	id := t.seq.Add(1)
	line, err := t.codec.EncodeRequest(&message.Request{ID: id, Method: method, Params: params})
	if err != nil {
		return 0, nil, err
	}

	// Register BEFORE writing, otherwise a fast response could beat us to
	// the tracker and be dropped as unmatched.
	ch, err := t.pending.Register(id)
	if err != nil {
		return 0, nil, err
	}

	t.sending.Lock()
	deadline, _ := ctx.Deadline()
	_ = t.conn.SetWriteDeadline(deadline)
	err = protocol.Encode(t.conn, line)
	t.sending.Unlock()

	if err != nil {
		t.pending.Cancel(id)
		if t.State() == StateClosed {
			return 0, nil, fmt.Errorf("%w: %v", ErrDisconnected, t.Err())
		}
		err = fmt.Errorf("%w: write %s: %w", ErrIO, method, err)
		// A partially written line leaves the stream unusable.
		t.shutdown(err)
		return 0, nil, err
	}

	t.logger.Debug("request sent", zap.Uint64("id", id), zap.String("method", method))
	return id, ch, nil
}

// Call sends a request and waits for its response. If ctx ends first the
// pending entry is removed and a late response is dropped. An error response
// from the bulb is returned as a Response, not as an error.
func (t *ClientTransport) Call(ctx context.Context, method string, params []any) (*message.Response, error) {
	id, ch, err := t.Send(ctx, method, params)
	if err != nil {
		return nil, err
	}

	select {
	case out := <-ch:
		return out.Response, out.Err
	case <-ctx.Done():
		t.pending.Cancel(id)
		return nil, fmt.Errorf("%w: %s (id %d): %w", ErrTimeout, method, id, ctx.Err())
	}
}

// Subscribe registers the connection's notification subscription,
// superseding any previous one.
func (t *ClientTransport) Subscribe() (*Subscription, error) {
	return t.notify.Subscribe()
}

// recvLoop runs in a dedicated goroutine. It is the only reader of the
// socket, which keeps line boundaries intact.
func (t *ClientTransport) recvLoop() {
	for {
		line, err := t.reader.ReadLine()
		if err != nil {
			t.shutdown(err)
			return
		}

		env, err := t.codec.Decode(line)
		if err != nil {
			t.logger.Warn("skipping malformed line", zap.ByteString("line", line), zap.Error(err))
			continue
		}

		switch {
		case env.Response != nil:
			if !t.pending.Resolve(env.Response.ID, env.Response) {
				t.logger.Debug("dropping unmatched response", zap.Uint64("id", env.Response.ID))
			}
		case env.Notification != nil:
			t.notify.Dispatch(*env.Notification)
		}
	}
}

// shutdown closes the socket and fails everything waiting on it. It runs
// once, whichever side closes first.
func (t *ClientTransport) shutdown(cause error) {
	t.closeOnce.Do(func() {
		t.state.Store(int32(StateClosed))
		t.errMu.Lock()
		t.err = cause
		t.errMu.Unlock()

		_ = t.conn.Close()
		t.pending.FailAll(fmt.Errorf("%w: %v", ErrDisconnected, cause))
		t.notify.Close()
		close(t.done)

		if cause == errClosedByClient {
			t.logger.Debug("connection closed")
		} else {
			t.logger.Info("connection lost", zap.Error(cause))
		}
	})
}

// Close disconnects from the bulb. Pending calls fail with ErrDisconnected.
// It is safe to call more than once.
func (t *ClientTransport) Close() error {
	t.shutdown(errClosedByClient)
	return nil
}

// State returns the current lifecycle state.
func (t *ClientTransport) State() State {
	return State(t.state.Load())
}

// Done is closed once the connection is closed.
func (t *ClientTransport) Done() <-chan struct{} {
	return t.done
}

// Err returns why the connection closed, or nil while it is open.
func (t *ClientTransport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// Pending returns the number of calls awaiting a response.
func (t *ClientTransport) Pending() int {
	return t.pending.Len()
}

// RemoteAddr returns the bulb's address.
func (t *ClientTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Option configures a ClientTransport.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	codec        codec.Codec
	notifyBuffer int
	observer     Observer
	keepAlive    time.Duration
}

func buildOptions(opts []Option) options {
	o := options{
		logger:       zap.NewNop(),
		codec:        codec.New(),
		notifyBuffer: DefaultNotificationBuffer,
		keepAlive:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger; the transport names it "transport".
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.Named("transport")
		}
	}
}

// WithCodec replaces the wire codec.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithNotificationBuffer sets how many notifications a slow subscriber may
// fall behind before the oldest are dropped.
func WithNotificationBuffer(n int) Option {
	return func(o *options) { o.notifyBuffer = n }
}

// WithObserver reports notification traffic, e.g. to metrics.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithKeepAlive sets the TCP keep-alive period used by Dial. The bulb
// protocol has no heartbeat message, so dead peers are detected by TCP.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) { o.keepAlive = d }
}
