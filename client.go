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
	"time"

	"github.com/hons82/go-gender-changer/log"
	"github.com/hons82/go-gender-changer/metrics"
)

var errClientStopped = errors.New("client stopped")

// ClientConfig is configuration of the Client.
type ClientConfig struct {
	// RelayAddr is TCP address of the public endpoint of the relay.
	RelayAddr string
	// DestAddr is TCP address of the service exposed through the tunnel.
	DestAddr string
	// TLSClientConfig specifies the tls configuration used when connecting
	// to the relay, see ClientTLSConfig.
	TLSClientConfig *tls.Config
	// Dial specifies the dial function for relay and destination
	// connections. If nil net.DialTimeout with DefaultTimeout is used.
	Dial func(network, addr string) (net.Conn, error)
	// Backoff specifies how to retry a failed connection to the relay. If
	// nil the first failure is returned from Start.
	Backoff Backoff
	// Logger is optional logger. If nil logging is disabled.
	Logger log.Logger
}

// Client is the dial side of the tunnel. It keeps one authenticated
// connection to the relay ready: as soon as a connection is established it
// is handed, together with a fresh destination connection, to its own
// goroutine and the next connection is dialed.
type Client struct {
	config *ClientConfig
	logger log.Logger

	mu      sync.Mutex
	pending net.Conn
	stopped bool
	stop    chan struct{}
}

// NewClient creates a new unconnected Client.
func NewClient(config *ClientConfig) *Client {
	logger := config.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Client{
		config: config,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Start runs the redial loop. It returns an error when a connection to the
// relay cannot be established or authenticated, and nil after Stop.
func (c *Client) Start() error {
	if c.config.RelayAddr == "" || c.config.DestAddr == "" {
		return errMissingAddr
	}
	if c.config.TLSClientConfig == nil {
		return errMissingTLSConfig
	}

	c.logger.Log(
		"level", log.LevelInfo,
		"action", "start",
		"relay", c.config.RelayAddr,
		"destination", c.config.DestAddr,
	)

	for {
		sess, conn, err := c.connect()
		if err != nil {
			if c.isStopped() {
				return nil
			}
			return err
		}

		go c.serve(sess, conn)
	}
}

// connect returns an authenticated relay connection. Without Backoff the
// first failure is returned.
func (c *Client) connect() (*session, net.Conn, error) {
	b := c.config.Backoff

	for {
		sess := newSession(metrics.SideDial, c.logger)
		conn, err := c.dialRelay(sess)
		if err == nil {
			if b != nil {
				b.Reset()
			}
			return sess, conn, nil
		}

		if c.isStopped() {
			sess.transition(Aborted)
			return nil, nil, err
		}
		sess.abort("relay connect failed", err)

		if b == nil {
			return nil, nil, err
		}
		d := b.NextBackOff()
		if d < 0 {
			return nil, nil, fmt.Errorf("backoff limit exceeded: %s", err)
		}

		c.logger.Log(
			"level", log.LevelInfo,
			"action", "backoff",
			"sleep", d,
		)

		select {
		case <-time.After(d):
		case <-c.stop:
			return nil, nil, errClientStopped
		}
	}
}

func (c *Client) dialRelay(sess *session) (net.Conn, error) {
	conn, err := c.dial(c.config.RelayAddr)
	if err != nil {
		metrics.DialFailuresTotal.WithLabelValues("relay").Inc()
		return nil, err
	}
	if !c.track(conn) {
		conn.Close()
		return nil, errClientStopped
	}
	defer c.track(nil)

	if err := keepAlive(conn); err != nil {
		sess.logger.Log(
			"level", log.LevelDebug,
			"msg", "TCP keepalive for relay connection failed",
			"err", err,
		)
	}

	sess.transition(Handshaking)

	tlsConn, peer, err := clientHandshake(conn, c.config.TLSClientConfig, 0)
	if err != nil {
		metrics.HandshakeFailuresTotal.WithLabelValues(metrics.SideDial).Inc()
		conn.Close()
		return nil, fmt.Errorf("handshake with relay %s failed: %w", c.config.RelayAddr, err)
	}

	sess.logger.Log(
		"level", log.LevelDebug,
		"action", "relay authenticated",
		"identity", peer,
	)

	return tlsConn, nil
}

func (c *Client) serve(sess *session, relay net.Conn) {
	dest, err := c.dial(c.config.DestAddr)
	if err != nil {
		metrics.DialFailuresTotal.WithLabelValues("destination").Inc()
		relay.Close()
		sess.abort("destination connect failed", err)
		return
	}

	if err := keepAlive(dest); err != nil {
		sess.logger.Log(
			"level", log.LevelDebug,
			"msg", "TCP keepalive for destination connection failed",
			"err", err,
		)
	}

	sess.logger.Log(
		"level", log.LevelInfo,
		"action", "connected",
		"destination", dest.RemoteAddr(),
	)
	sess.transition(Relaying)

	if err := transfer(relay, dest, sess.logger); err != nil {
		sess.abort("relay failed", err)
		return
	}
	sess.transition(Closed)
}

func (c *Client) dial(addr string) (net.Conn, error) {
	if c.config.Dial != nil {
		return c.config.Dial("tcp", addr)
	}
	return net.DialTimeout("tcp", addr, DefaultTimeout)
}

// track records conn as the in-flight relay connection so that Stop can
// interrupt its handshake. It returns false if the client is stopped.
func (c *Client) track(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}
	c.pending = conn
	return true
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Stop ends the redial loop, the connection being established is closed.
// Sessions already relaying are left to complete on their own.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stop)

	if c.pending != nil {
		c.pending.Close()
	}
}
