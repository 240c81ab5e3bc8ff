// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

// Package identity loads and generates the DER encoded certificates and
// private keys used as local identities and pinned references.
package identity

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// CommonName is used as subject of generated certificates. It carries no
// trust semantics, peers are authenticated by exact certificate bytes.
const CommonName = "secure-tcp-gender-changer"

// Validity of generated certificates. Expiry is never checked by the
// tunnel, the value only keeps other tools that inspect the files happy.
var Validity = 10 * 365 * 24 * time.Hour

// LoadKeyPair reads a DER certificate and a DER private key (PKCS#8,
// PKCS#1 or SEC 1) and returns them as a tls.Certificate.
func LoadKeyPair(certFile, keyFile string) (tls.Certificate, error) {
	certDER, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read certificate %q: %s", certFile, err)
	}
	keyDER, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read private key %q: %s", keyFile, err)
	}
	return KeyPair(certDER, keyDER)
}

// KeyPair assembles a tls.Certificate from DER certificate and key bytes.
func KeyPair(certDER, keyDER []byte) (tls.Certificate, error) {
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to parse certificate: %s", err)
	}
	key, err := parsePrivateKey(keyDER)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// LoadCertificate reads a DER certificate used as pinned reference. The
// bytes are returned as read, only a parse check is made so that a wrong
// file is reported at startup rather than as handshake failures.
func LoadCertificate(certFile string) ([]byte, error) {
	certDER, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate %q: %s", certFile, err)
	}
	if _, err := x509.ParseCertificate(certDER); err != nil {
		return nil, fmt.Errorf("failed to parse certificate %q: %s", certFile, err)
	}
	return certDER, nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("failed to parse private key: unsupported DER encoding")
}

// Generate creates a self-signed ECDSA P-256 certificate usable for both
// client and server authentication. It returns the DER certificate and the
// PKCS#8 DER private key.
func Generate() (certDER, keyDER []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %s", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial: %s", err)
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: CommonName},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(Validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		DNSNames: []string{CommonName},
	}

	certDER, err = x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %s", err)
	}
	keyDER, err = x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal key: %s", err)
	}
	return certDER, keyDER, nil
}

// Paths returns the certificate and key file names for name in dir, e.g.
// certs/server_cert.der and certs/server_key.der.
func Paths(dir, name string) (certFile, keyFile string) {
	return filepath.Join(dir, name+"_cert.der"), filepath.Join(dir, name+"_key.der")
}

// GenerateFiles generates an identity for every name and writes it to dir,
// creating dir if needed. Keys are written with mode 0600.
func GenerateFiles(dir string, names ...string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for _, name := range names {
		certDER, keyDER, err := Generate()
		if err != nil {
			return fmt.Errorf("%s: %s", name, err)
		}
		certFile, keyFile := Paths(dir, name)
		if err := os.WriteFile(certFile, certDER, 0644); err != nil {
			return err
		}
		if err := os.WriteFile(keyFile, keyDER, 0600); err != nil {
			return err
		}
	}
	return nil
}
