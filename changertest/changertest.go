// Package changertest contains common testing tools shared by unit tests and
// third party tests.
package changertest

import (
	"crypto/rand"
	"crypto/tls"
	"io"
	"net"
	"testing"

	"github.com/hons82/go-gender-changer/identity"
)

// Identity is a generated certificate with its key.
type Identity struct {
	// Cert is the DER encoded certificate, the value to pin.
	Cert []byte
	// KeyPair is Cert with its private key.
	KeyPair tls.Certificate
}

// NewIdentity generates a fresh self-signed identity or fails the test.
func NewIdentity(t testing.TB) Identity {
	t.Helper()

	certDER, keyDER, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	kp, err := identity.KeyPair(certDER, keyDER)
	if err != nil {
		t.Fatal(err)
	}
	return Identity{Cert: certDER, KeyPair: kp}
}

// Corrupt returns a copy of der with the last byte flipped, a certificate
// differing from the original by exactly one byte.
func Corrupt(der []byte) []byte {
	c := make([]byte, len(der))
	copy(c, der)
	c[len(c)-1] ^= 0xff
	return c
}

// EchoTCP accepts connections and copies back received bytes. When the peer
// closes its write half the echo closes its own write half.
func EchoTCP(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			io.Copy(conn, conn)
			if c, ok := conn.(interface{ CloseWrite() error }); ok {
				c.CloseWrite()
			}
		}()
	}
}

// RandBytes creates a randomly initialised byte slice of length n.
func RandBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return b
}
