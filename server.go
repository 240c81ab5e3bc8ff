// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package changer

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hons82/go-gender-changer/log"
	"github.com/hons82/go-gender-changer/metrics"
)

// ServerConfig defines configuration for the Server.
type ServerConfig struct {
	// PublicAddr is TCP address to listen for TLS connections from the dial
	// side. Ignored if PublicListener is set.
	PublicAddr string
	// PrivateAddr is TCP address to listen for plain connections from local
	// peers. Ignored if PrivateListener is set.
	PrivateAddr string
	// PublicListener specifies optional listener for the public endpoint.
	PublicListener net.Listener
	// PrivateListener specifies optional listener for the private endpoint.
	PrivateListener net.Listener
	// TLSConfig is used for the server side handshake on public connections,
	// see ServerTLSConfig.
	TLSConfig *tls.Config
	// HandshakeTimeout bounds the handshake of a paired public connection.
	// If zero DefaultTimeout is used, if negative there is no limit.
	HandshakeTimeout time.Duration
	// Logger is optional logger. If nil logging is disabled.
	Logger log.Logger
}

// Server is the relay side of the tunnel. It pairs the N-th connection
// accepted on the public endpoint with the N-th connection accepted on the
// private endpoint and relays between them.
type Server struct {
	config  *ServerConfig
	public  net.Listener
	private net.Listener
	logger  log.Logger

	closeOnce sync.Once
	stopped   int32
}

// NewServer creates a new Server, binding both endpoints.
func NewServer(config *ServerConfig) (*Server, error) {
	if config.TLSConfig == nil {
		return nil, errMissingTLSConfig
	}

	public, err := listener(config.PublicListener, config.PublicAddr)
	if err != nil {
		return nil, fmt.Errorf("public listener failed: %s", err)
	}
	private, err := listener(config.PrivateListener, config.PrivateAddr)
	if err != nil {
		public.Close()
		return nil, fmt.Errorf("private listener failed: %s", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Server{
		config:  config,
		public:  public,
		private: private,
		logger:  logger,
	}, nil
}

func listener(l net.Listener, addr string) (net.Listener, error) {
	if l != nil {
		return l, nil
	}
	if addr == "" {
		return nil, errMissingAddr
	}
	return net.Listen("tcp", addr)
}

// Start accepts and pairs connections until the server is closed. Each
// pairing is served in its own goroutine, Start does not wait for it. Start
// returns nil after Close and the accept error if an endpoint failed for
// good, in that case both endpoints are closed.
func (s *Server) Start() error {
	s.logger.Log(
		"level", log.LevelInfo,
		"action", "start",
		"public", s.public.Addr(),
		"private", s.private.Addr(),
	)

	for {
		public, private, err := s.acceptPair()
		if err != nil {
			if atomic.LoadInt32(&s.stopped) == 1 {
				s.logger.Log(
					"level", log.LevelInfo,
					"action", "listeners closed",
				)
				return nil
			}
			s.logger.Log(
				"level", log.LevelError,
				"msg", "accept failed",
				"err", err,
			)
			return err
		}

		go s.handleSession(public, private)
	}
}

// acceptPair waits for one connection on each endpoint. If either endpoint
// fails for good the server is closed and a connection accepted on the
// other endpoint is dropped.
func (s *Server) acceptPair() (public, private net.Conn, err error) {
	var (
		wg         sync.WaitGroup
		publicErr  error
		privateErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		public, publicErr = s.accept(s.public, "public")
	}()
	go func() {
		defer wg.Done()
		private, privateErr = s.accept(s.private, "private")
	}()
	wg.Wait()

	if publicErr == nil && privateErr == nil {
		return public, private, nil
	}

	if public != nil {
		public.Close()
	}
	if private != nil {
		private.Close()
	}
	// the endpoint that did not fail was closed to unblock its accept,
	// report the cause
	if publicErr == nil || (errors.Is(publicErr, net.ErrClosed) && privateErr != nil) {
		return nil, nil, privateErr
	}
	return nil, nil, publicErr
}

// accept returns the next connection of l. Temporary errors are logged and
// retried with a growing delay, any other error closes both endpoints.
func (s *Server) accept(l net.Listener, endpoint string) (net.Conn, error) {
	var delay time.Duration

	for {
		conn, err := l.Accept()
		if err == nil {
			return conn, nil
		}

		var ne net.Error
		if errors.Is(err, net.ErrClosed) || !errors.As(err, &ne) || !ne.Timeout() && !isTemporary(ne) {
			s.closeListeners()
			return nil, err
		}

		if delay == 0 {
			delay = 5 * time.Millisecond
		} else {
			delay *= 2
		}
		if delay > time.Second {
			delay = time.Second
		}

		s.logger.Log(
			"level", log.LevelError,
			"msg", "accept failed",
			"endpoint", endpoint,
			"addr", l.Addr(),
			"retry", delay,
			"err", err,
		)
		time.Sleep(delay)
	}
}

func isTemporary(err net.Error) bool {
	t, ok := err.(interface{ Temporary() bool })
	return ok && t.Temporary()
}

func (s *Server) handleSession(public, private net.Conn) {
	sess := newSession(metrics.SideRelay, s.logger)
	sess.logger = sess.logger.With(
		"public", public.RemoteAddr(),
		"private", private.RemoteAddr(),
	)

	for _, conn := range []net.Conn{public, private} {
		if err := keepAlive(conn); err != nil {
			sess.logger.Log(
				"level", log.LevelDebug,
				"msg", "TCP keepalive for tunneled connection failed",
				"err", err,
			)
		}
	}

	sess.transition(Handshaking)

	tlsConn, peer, err := serverHandshake(public, s.config.TLSConfig, s.handshakeTimeout())
	if err != nil {
		metrics.HandshakeFailuresTotal.WithLabelValues(metrics.SideRelay).Inc()
		public.Close()
		private.Close()
		sess.abort("handshake failed", err)
		return
	}

	sess.logger.Log(
		"level", log.LevelInfo,
		"action", "paired",
		"identity", peer,
	)
	sess.transition(Relaying)

	if err := transfer(tlsConn, private, sess.logger); err != nil {
		sess.abort("relay failed", err)
		return
	}
	sess.transition(Closed)
}

func (s *Server) handshakeTimeout() time.Duration {
	switch t := s.config.HandshakeTimeout; {
	case t == 0:
		return DefaultTimeout
	case t < 0:
		return 0
	default:
		return t
	}
}

// PublicAddr returns the address of the public endpoint.
func (s *Server) PublicAddr() string {
	return s.public.Addr().String()
}

// PrivateAddr returns the address of the private endpoint.
func (s *Server) PrivateAddr() string {
	return s.private.Addr().String()
}

// Close stops accepting connections on both endpoints. Sessions already
// paired keep running until they complete.
func (s *Server) Close() error {
	atomic.StoreInt32(&s.stopped, 1)
	return s.closeListeners()
}

func (s *Server) closeListeners() error {
	var err error
	s.closeOnce.Do(func() {
		perr := s.public.Close()
		err = s.private.Close()
		if err == nil {
			err = perr
		}
	})
	return err
}
