package changer

import (
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/net/nettest"
)

const testTimeout = 5 * time.Second

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	l, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- conn
	}()

	dialed, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	conn := <-accepted
	if conn == nil {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		dialed.Close()
		conn.Close()
	})

	return dialed.(*net.TCPConn), conn.(*net.TCPConn)
}

// readAll reads conn until EOF, failing the test if that takes longer than
// testTimeout.
func readAll(t *testing.T, conn net.Conn) []byte {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(testTimeout))
	defer conn.SetReadDeadline(time.Time{})

	b, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read failed: %s", err)
	}
	return b
}

// readN reads exactly n bytes from conn within testTimeout.
func readN(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(testTimeout))
	defer conn.SetReadDeadline(time.Time{})

	b := make([]byte, n)
	if _, err := io.ReadFull(conn, b); err != nil {
		t.Fatalf("read failed: %s", err)
	}
	return b
}
