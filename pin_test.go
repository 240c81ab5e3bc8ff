package changer

import (
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/hons82/go-gender-changer/changertest"
	"golang.org/x/net/nettest"
)

func TestPinVerify(t *testing.T) {
	t.Parallel()

	pinned := changertest.NewIdentity(t).Cert
	other := changertest.NewIdentity(t).Cert
	p := NewPin(pinned)

	tests := []struct {
		name     string
		rawCerts [][]byte
		accepted bool
	}{
		{"exact", [][]byte{pinned}, true},
		{"exact with intermediates", [][]byte{pinned, other}, true},
		{"single byte differs", [][]byte{changertest.Corrupt(pinned)}, false},
		{"other certificate", [][]byte{other}, false},
		{"pinned only as intermediate", [][]byte{other, pinned}, false},
		{"prefix", [][]byte{pinned[:len(pinned)-1]}, false},
		{"none", nil, false},
	}

	for _, tt := range tests {
		err := p.Verify(tt.rawCerts)
		if tt.accepted {
			if err != nil {
				t.Errorf("%s: unexpected error %s", tt.name, err)
			}
			continue
		}

		if !errors.Is(err, ErrApplicationVerification) {
			t.Errorf("%s: expected application verification failure, got %v", tt.name, err)
		}
		var verr *VerificationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected *VerificationError, got %T", tt.name, err)
		}
		if !strings.Contains(err.Error(), "application verification failure") {
			t.Errorf("%s: unexpected message %q", tt.name, err)
		}
	}
}

func TestPinIsImmutable(t *testing.T) {
	t.Parallel()

	der := changertest.NewIdentity(t).Cert
	orig := make([]byte, len(der))
	copy(orig, der)

	p := NewPin(der)
	der[0] ^= 0xff

	if err := p.Verify([][]byte{orig}); err != nil {
		t.Fatalf("pin changed with its input: %s", err)
	}
	if err := p.VerifyPeerCertificate([][]byte{der}, nil); err == nil {
		t.Fatal("expected mutated input to be rejected")
	}
}

type handshakeResult struct {
	conn *tls.Conn
	err  error
}

// handshakePair runs the relay and dial side handshakes against each other
// over loopback TCP.
func handshakePair(t *testing.T, serverConfig, clientConfig *tls.Config) (server, client handshakeResult) {
	t.Helper()

	l, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	sc := make(chan handshakeResult, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			sc <- handshakeResult{err: err}
			return
		}
		tlsConn, _, err := serverHandshake(conn, serverConfig, testTimeout)
		if err != nil {
			conn.Close()
		}
		sc <- handshakeResult{tlsConn, err}
	}()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	tlsConn, _, err := clientHandshake(conn, clientConfig, testTimeout)
	if err != nil {
		conn.Close()
	}
	client = handshakeResult{tlsConn, err}
	server = <-sc

	t.Cleanup(func() {
		for _, r := range []handshakeResult{server, client} {
			if r.conn != nil {
				r.conn.Close()
			}
		}
	})

	return server, client
}

func TestHandshakePinned(t *testing.T) {
	t.Parallel()

	srv := changertest.NewIdentity(t)
	cli := changertest.NewIdentity(t)
	stranger := changertest.NewIdentity(t)

	corrupted := cli.KeyPair
	corrupted.Certificate = [][]byte{changertest.Corrupt(cli.Cert)}
	corrupted.Leaf = nil

	t.Run("positive", func(t *testing.T) {
		s, c := handshakePair(t,
			ServerTLSConfig(srv.KeyPair, NewPin(cli.Cert)),
			ClientTLSConfig(cli.KeyPair, NewPin(srv.Cert)),
		)
		if s.err != nil || c.err != nil {
			t.Fatalf("server: %v client: %v", s.err, c.err)
		}

		go s.conn.Write([]byte("ping"))
		if b := readN(t, c.conn, 4); string(b) != "ping" {
			t.Errorf("unexpected data %q", b)
		}
	})

	clientRole := []struct {
		name   string
		server tls.Certificate
	}{
		{"relay presents other certificate", stranger.KeyPair},
	}
	for _, tt := range clientRole {
		t.Run(tt.name, func(t *testing.T) {
			_, c := handshakePair(t,
				ServerTLSConfig(tt.server, NewPin(cli.Cert)),
				ClientTLSConfig(cli.KeyPair, NewPin(srv.Cert)),
			)
			if !errors.Is(c.err, ErrApplicationVerification) {
				t.Fatalf("expected dial side pin rejection, got %v", c.err)
			}
		})
	}

	serverRole := []struct {
		name   string
		client tls.Certificate
	}{
		{"peer presents other certificate", stranger.KeyPair},
		{"peer certificate differs by one byte", corrupted},
	}
	for _, tt := range serverRole {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := handshakePair(t,
				ServerTLSConfig(srv.KeyPair, NewPin(cli.Cert)),
				ClientTLSConfig(tt.client, NewPin(srv.Cert)),
			)
			if !errors.Is(s.err, ErrApplicationVerification) {
				t.Fatalf("expected relay side pin rejection, got %v", s.err)
			}
		})
	}

	t.Run("peer presents no certificate", func(t *testing.T) {
		config := ClientTLSConfig(cli.KeyPair, NewPin(srv.Cert))
		config.Certificates = nil

		s, _ := handshakePair(t, ServerTLSConfig(srv.KeyPair, NewPin(cli.Cert)), config)
		if s.err == nil {
			t.Fatal("expected relay side handshake failure")
		}
	})
}

func TestClientTLSConfigPlaceholderName(t *testing.T) {
	t.Parallel()

	c := ClientTLSConfig(tls.Certificate{}, NewPin(nil))
	if c.ServerName != PlaceholderServerName {
		t.Errorf("unexpected server name %q", c.ServerName)
	}
	if c.VerifyPeerCertificate == nil {
		t.Error("missing pin verification")
	}
}
