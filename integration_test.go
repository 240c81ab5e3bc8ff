package changer_test

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	changer "github.com/hons82/go-gender-changer"
	"github.com/hons82/go-gender-changer/changertest"
	"golang.org/x/net/nettest"
)

const testTimeout = 10 * time.Second

// tunnel is a relay and a dial side connected to each other, exposing the
// service behind dest on the relay's private endpoint.
type tunnel struct {
	server *changer.Server
	client *changer.Client
}

func newTunnel(t *testing.T, dest string) *tunnel {
	t.Helper()

	srv := changertest.NewIdentity(t)
	cli := changertest.NewIdentity(t)

	s, err := changer.NewServer(&changer.ServerConfig{
		PublicAddr:  "127.0.0.1:0",
		PrivateAddr: "127.0.0.1:0",
		TLSConfig:   changer.ServerTLSConfig(srv.KeyPair, changer.NewPin(cli.Cert)),
	})
	if err != nil {
		t.Fatal(err)
	}
	go s.Start()

	c := changer.NewClient(&changer.ClientConfig{
		RelayAddr:       s.PublicAddr(),
		DestAddr:        dest,
		TLSClientConfig: changer.ClientTLSConfig(cli.KeyPair, changer.NewPin(srv.Cert)),
	})
	go func() {
		if err := c.Start(); err != nil {
			t.Errorf("client: %s", err)
		}
	}()

	t.Cleanup(func() {
		c.Stop()
		s.Close()
	})

	return &tunnel{server: s, client: c}
}

func (tn *tunnel) dial(t *testing.T) *net.TCPConn {
	t.Helper()

	conn, err := net.Dial("tcp", tn.server.PrivateAddr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn.(*net.TCPConn)
}

func TestPingPong(t *testing.T) {
	t.Parallel()

	dest, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	defer dest.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := dest.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		b := make([]byte, 4)
		if _, err := io.ReadFull(conn, b); err != nil {
			received <- nil
			return
		}
		received <- b
		conn.Write([]byte("pong"))
	}()

	tn := newTunnel(t, dest.Addr().String())
	conn := tn.dial(t)

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}

	select {
	case b := <-received:
		if string(b) != "ping" {
			t.Fatalf("destination received %q", b)
		}
	case <-time.After(testTimeout):
		t.Fatal("destination received nothing")
	}

	conn.SetReadDeadline(time.Now().Add(testTimeout))
	b := make([]byte, 4)
	if _, err := io.ReadFull(conn, b); err != nil {
		t.Fatal(err)
	}
	if string(b) != "pong" {
		t.Fatalf("unexpected reply %q", b)
	}
}

func TestConcurrentSessions(t *testing.T) {
	t.Parallel()

	dest, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	defer dest.Close()
	go changertest.EchoTCP(dest)

	tn := newTunnel(t, dest.Addr().String())

	const sessions = 8
	conns := make([]*net.TCPConn, sessions)
	for i := range conns {
		conns[i] = tn.dial(t)
	}

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *net.TCPConn) {
			defer wg.Done()

			payload := changertest.RandBytes(1024 * (i + 1) * 16)
			go func() {
				conn.Write(payload)
				// half-close travels to the destination and the echo's
				// half-close travels back
				conn.CloseWrite()
			}()

			conn.SetReadDeadline(time.Now().Add(testTimeout))
			got, err := io.ReadAll(conn)
			if err != nil {
				t.Errorf("session %d: %s", i, err)
				return
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("session %d: payload mismatch, sent %d got %d bytes", i, len(payload), len(got))
			}
		}(i, conn)
	}
	wg.Wait()
}

func TestDestinationHalfClosesFirst(t *testing.T) {
	t.Parallel()

	dest, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	defer dest.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := dest.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		conn.Write([]byte("hello"))
		conn.(*net.TCPConn).CloseWrite()

		conn.SetReadDeadline(time.Now().Add(testTimeout))
		b, err := io.ReadAll(conn)
		if err != nil {
			received <- err.Error()
			return
		}
		received <- string(b)
	}()

	tn := newTunnel(t, dest.Addr().String())
	conn := tn.dial(t)

	// the destination is done sending, its end-of-stream reaches the local
	// peer while the other direction stays open
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected hello followed by EOF, got %q", got)
	}

	if _, err := conn.Write([]byte("late")); err != nil {
		t.Fatal(err)
	}
	conn.CloseWrite()

	select {
	case s := <-received:
		if s != "late" {
			t.Fatalf("destination received %q", s)
		}
	case <-time.After(testTimeout):
		t.Fatal("destination received nothing")
	}
}
