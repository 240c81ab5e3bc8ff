// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package id

import (
	"crypto/tls"
	"errors"
)

var emptyID ID

// errNoPeerCertificate is returned by PeerID when the handshake completed
// without the peer presenting a certificate.
var errNoPeerCertificate = errors.New("id: peer presented no certificate")

// PeerID returns the ID of the end-entity certificate presented by the peer
// of conn. Handshake is performed explicitly, so if PeerID returns
// successfully the connection is valid and verified by conn's
// configuration. Intermediate certificates are ignored.
func PeerID(conn *tls.Conn) (ID, error) {
	if err := conn.Handshake(); err != nil {
		return emptyID, err
	}

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return emptyID, errNoPeerCertificate
	}

	return New(certs[0].Raw), nil
}
