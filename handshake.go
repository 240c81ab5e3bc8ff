// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package changer

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/hons82/go-gender-changer/id"
)

// serverHandshake performs the relay side handshake on conn. A positive
// timeout bounds the handshake, the deadline is cleared before returning.
// On success the ID of the authenticated peer is returned.
func serverHandshake(conn net.Conn, config *tls.Config, timeout time.Duration) (*tls.Conn, id.ID, error) {
	tlsConn := tls.Server(conn, config)
	return handshake(tlsConn, timeout)
}

// clientHandshake performs the dial side handshake on conn. It is not
// bounded by default, the relay starts its side of the handshake only after
// pairing the connection with a private peer.
func clientHandshake(conn net.Conn, config *tls.Config, timeout time.Duration) (*tls.Conn, id.ID, error) {
	tlsConn := tls.Client(conn, config)
	return handshake(tlsConn, timeout)
}

func handshake(conn *tls.Conn, timeout time.Duration) (*tls.Conn, id.ID, error) {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, id.ID{}, err
		}
	}

	peer, err := id.PeerID(conn)
	if err != nil {
		return nil, id.ID{}, err
	}

	if timeout > 0 {
		if err := conn.SetDeadline(time.Time{}); err != nil {
			return nil, id.ID{}, err
		}
	}

	return conn, peer, nil
}
