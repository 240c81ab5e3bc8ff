// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package changer

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/hons82/go-gender-changer/id"
)

// Verifier decides whether a peer certificate chain is trusted. rawCerts
// holds the DER certificates presented by the peer, end-entity first.
type Verifier interface {
	Verify(rawCerts [][]byte) error
}

// Pin is a Verifier trusting exactly one certificate. It is immutable and
// safe for concurrent use by any number of sessions.
type Pin struct {
	cert []byte
	id   id.ID
}

// NewPin returns a Pin for the DER encoded certificate der. der is copied.
func NewPin(der []byte) *Pin {
	cert := make([]byte, len(der))
	copy(cert, der)
	return &Pin{
		cert: cert,
		id:   id.New(cert),
	}
}

// ID returns the identifier of the pinned certificate.
func (p *Pin) ID() id.ID {
	return p.id
}

// Verify accepts rawCerts if and only if the end-entity certificate is
// byte-identical to the pinned one. Intermediates, validity period, key
// usage and names are ignored.
func (p *Pin) Verify(rawCerts [][]byte) error {
	if len(rawCerts) == 0 {
		return &VerificationError{Reason: fmt.Errorf("%w: %s", ErrApplicationVerification, errNoCertificate)}
	}
	if !bytes.Equal(rawCerts[0], p.cert) {
		return &VerificationError{Reason: ErrApplicationVerification}
	}
	return nil
}

// VerifyPeerCertificate has the signature of
// tls.Config.VerifyPeerCertificate.
func (p *Pin) VerifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return p.Verify(rawCerts)
}

// ServerTLSConfig returns configuration for the relay side of the public
// endpoint: cert is presented to the peer, a client certificate is required
// and v is the only trust decision made about it.
func ServerTLSConfig(cert tls.Certificate, v Verifier) *tls.Config {
	return &tls.Config{
		Certificates:           []tls.Certificate{cert},
		ClientAuth:             tls.RequireAnyClientCert,
		VerifyPeerCertificate:  verifyFunc(v),
		SessionTicketsDisabled: true,
		MinVersion:             tls.VersionTLS12,
	}
}

// ClientTLSConfig returns configuration for the dial side: cert is presented
// as client certificate and v is the only trust decision made about the
// relay certificate. CA and host name validation are disabled,
// VerifyPeerCertificate still runs.
func ClientTLSConfig(cert tls.Certificate, v Verifier) *tls.Config {
	return &tls.Config{
		Certificates:           []tls.Certificate{cert},
		ServerName:             PlaceholderServerName,
		InsecureSkipVerify:     true,
		VerifyPeerCertificate:  verifyFunc(v),
		SessionTicketsDisabled: true,
		MinVersion:             tls.VersionTLS12,
	}
}

func verifyFunc(v Verifier) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		return v.Verify(rawCerts)
	}
}
