// Package server emulates a Yeelight bulb on the LAN control protocol.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads lines)
//	  → for each request: go handleRequest (parallel processing)
//	    → quota → latency → middleware chain → Device.Apply → write response
//	    → state changes broadcast as props notifications to every connection
//
// Because requests run concurrently, responses on one connection may be
// written out of order, which real clients must tolerate anyway.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"yeectl/codec"
	"yeectl/message"
	"yeectl/middleware"
	"yeectl/protocol"
	"yeectl/registry"
)

// HandlerFunc replaces the emulated behaviour of one method.
type HandlerFunc func(params []any) (message.Result, *message.ErrorObject)

// Server is an emulated bulb.
type Server struct {
	codec       codec.Codec
	logger      *zap.Logger
	device      *Device
	middlewares []middleware.Middleware
	handler     middleware.Invoker // middleware(...(dispatch))
	quota       float64            // commands per minute per connection, 0 = unlimited

	mu        sync.Mutex
	listener  net.Listener
	conns     map[*conn]struct{}
	overrides map[string]HandlerFunc
	latency   map[string]time.Duration

	wg       sync.WaitGroup // in-flight requests, for graceful shutdown
	shutdown atomic.Bool    // suppresses the Accept error caused by Shutdown
	closing  chan struct{}
	served   chan struct{}

	registry registry.Registry
	regName  string
	regTTL   time.Duration
}

// conn is one client connection with its own write lock and quota.
type conn struct {
	net.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter
}

// NewServer returns an emulator with a fresh Device.
func NewServer(opts ...Option) *Server {
	s := &Server{
		codec:     codec.New(),
		logger:    zap.NewNop(),
		device:    NewDevice(),
		conns:     make(map[*conn]struct{}),
		overrides: make(map[string]HandlerFunc),
		latency:   make(map[string]time.Duration),
		closing:   make(chan struct{}),
		served:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.device.onTimer = s.broadcast
	return s
}

// Use registers a middleware. Middlewares apply in the order added and must
// be registered before Start.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Device exposes the emulated state.
func (s *Server) Device() *Device {
	return s.device
}

// Start listens on address and accepts connections in the background.
func (s *Server) Start(network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	// Build the chain once at startup, not per request.
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("emulated bulb listening", zap.String("addr", ln.Addr().String()))

	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.registry.Register(ctx, registry.Entry{Name: s.regName, Addr: ln.Addr().String()}, s.regTTL)
		cancel()
		if err != nil {
			s.logger.Warn("registration failed", zap.String("name", s.regName), zap.Error(err))
		}
	}

	go s.acceptLoop(ln)
	return nil
}

// Serve is Start followed by waiting until the server is shut down.
func (s *Server) Serve(network, address string) error {
	if err := s.Start(network, address); err != nil {
		return err
	}
	<-s.served
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.served)
	for {
		nc, err := ln.Accept()
		if err != nil {
			// Shutdown closes the listener, which surfaces here as an error.
			if !s.shutdown.Load() {
				s.logger.Error("accept failed", zap.Error(err))
			}
			return
		}
		c := &conn{Conn: nc}
		if s.quota > 0 {
			// the bulb's quota is per connection with no burst allowance
			// beyond the per-minute budget
			c.limiter = rate.NewLimiter(rate.Limit(s.quota/60), int(s.quota))
		}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		go s.handleConn(c)
	}
}

// handleConn reads lines sequentially (a single reader keeps line
// boundaries intact) and hands every request to its own goroutine.
func (s *Server) handleConn(c *conn) {
	logger := s.logger.With(zap.String("remote", c.RemoteAddr().String()))
	logger.Debug("client connected")
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
		logger.Debug("client disconnected")
	}()

	r := protocol.NewReader(c)
	for {
		line, err := r.ReadLine()
		if err != nil {
			return
		}
		req, err := s.codec.DecodeRequest(line)
		if err != nil {
			// the bulb ignores lines it cannot parse
			logger.Debug("ignoring malformed request", zap.ByteString("line", line), zap.Error(err))
			continue
		}
		// the flag and Add share mu with Shutdown so that no Add can race
		// its Wait
		s.mu.Lock()
		if s.shutdown.Load() {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleRequest(c, req)
	}
}

func (s *Server) handleRequest(c *conn, req *message.Request) {
	defer s.wg.Done()

	var resp *message.Response
	if c.limiter != nil && !c.limiter.Allow() {
		resp = &message.Response{ID: req.ID, Error: reply(errQuotaExceeded)}
	} else {
		if !s.wait(req.Method) {
			return
		}
		var err error
		resp, err = s.handler(context.Background(), req)
		if err != nil {
			s.logger.Warn("handler failed", zap.String("method", req.Method), zap.Error(err))
			resp = &message.Response{ID: req.ID, Error: reply(errInternalFailure)}
		}
	}

	line, err := s.codec.EncodeResponse(resp)
	if err != nil {
		s.logger.Error("encoding response failed", zap.Uint64("id", req.ID), zap.Error(err))
		return
	}
	s.write(c, line)
}

// wait applies the configured latency for method. It reports false when the
// server shut down while waiting.
func (s *Server) wait(method string) bool {
	s.mu.Lock()
	d := s.latency[method]
	s.mu.Unlock()
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-s.closing:
		return false
	}
}

// dispatch is the innermost handler: overrides first, then the Device.
func (s *Server) dispatch(_ context.Context, req *message.Request) (*message.Response, error) {
	s.mu.Lock()
	override := s.overrides[req.Method]
	s.mu.Unlock()

	if override != nil {
		res, e := override(req.Params)
		return &message.Response{ID: req.ID, Result: res, Error: e}, nil
	}

	res, changes, e := s.device.Apply(req.Method, req.Params)
	if e != nil {
		return &message.Response{ID: req.ID, Error: e}, nil
	}
	if len(changes) > 0 {
		s.broadcast(changes)
	}
	return &message.Response{ID: req.ID, Result: res}, nil
}

// Notify sends a props notification to every connection, as if the state
// had been changed by another controller.
func (s *Server) Notify(props map[string]string) {
	s.broadcast(props)
}

func (s *Server) broadcast(props map[string]string) {
	line, err := s.codec.EncodeNotification(&message.Notification{Method: message.MethodProps, Params: props})
	if err != nil {
		s.logger.Error("encoding notification failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	targets := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		s.write(c, line)
	}
}

func (s *Server) write(c *conn, line []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := protocol.Encode(c, line); err != nil {
		s.logger.Debug("write failed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
	}
}

// SetLatency delays every response to method by d. Zero removes the delay.
func (s *Server) SetLatency(method string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		delete(s.latency, method)
		return
	}
	s.latency[method] = d
}

// Handle overrides the behaviour of method. A nil fn restores the default.
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.overrides, method)
		return
	}
	s.overrides[method] = fn
}

// DropConnections closes every client connection while continuing to
// accept new ones.
func (s *Server) DropConnections() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for c := range s.conns {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// Connections returns the number of connected clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (clients stop resolving to this emulator)
//  2. Set shutdown flag and close the listener
//  3. Wait for in-flight requests to finish (with timeout)
//  4. Close the remaining connections
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		return nil
	}
	s.shutdown.Store(true)
	s.mu.Unlock()
	var errs error

	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := s.registry.Deregister(ctx, s.regName)
		cancel()
		if err != nil && !errors.Is(err, registry.ErrNotFound) {
			errs = multierr.Append(errs, fmt.Errorf("deregister %s: %w", s.regName, err))
		}
	}

	close(s.closing)
	s.device.stop()
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		errs = multierr.Append(errs, ln.Close())
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		errs = multierr.Append(errs, errors.New("timeout waiting for ongoing requests to finish"))
	}

	errs = multierr.Append(errs, s.DropConnections())
	if ln != nil {
		<-s.served
	}
	return errs
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger; the server names it "server".
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l.Named("server")
		}
	}
}

// WithCodec replaces the wire codec.
func WithCodec(c codec.Codec) Option {
	return func(s *Server) { s.codec = c }
}

// WithDevice starts the emulator from existing state.
func WithDevice(d *Device) Option {
	return func(s *Server) { s.device = d }
}

// WithQuota limits each connection to perMinute commands, answering the rest
// with "client quota exceeded" like real firmware. Zero means unlimited.
func WithQuota(perMinute float64) Option {
	return func(s *Server) { s.quota = perMinute }
}

// WithRegistration registers the emulator as name while it is running.
func WithRegistration(reg registry.Registry, name string, ttl time.Duration) Option {
	return func(s *Server) {
		s.registry = reg
		s.regName = name
		s.regTTL = ttl
	}
}
