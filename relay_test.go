package changer

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/hons82/go-gender-changer/changertest"
)

type relayResult struct {
	aToB, bToA int64
	err        error
}

func startRelay(a, b io.ReadWriteCloser) <-chan relayResult {
	done := make(chan relayResult, 1)
	go func() {
		aToB, bToA, err := Relay(a, b)
		done <- relayResult{aToB, bToA, err}
	}()
	return done
}

func waitRelay(t *testing.T, done <-chan relayResult) relayResult {
	t.Helper()

	select {
	case r := <-done:
		return r
	case <-time.After(testTimeout):
		t.Fatal("relay did not complete")
	}
	return relayResult{}
}

func TestRelayFidelity(t *testing.T) {
	t.Parallel()

	sizes := []int{0, 1, 4096, 1 << 20}

	for _, size := range sizes {
		left, a := tcpPair(t)
		b, right := tcpPair(t)
		done := startRelay(a, b)

		forward := changertest.RandBytes(size)
		backward := changertest.RandBytes(size / 2)

		go func() {
			left.Write(forward)
			left.CloseWrite()
		}()
		go func() {
			right.Write(backward)
			right.CloseWrite()
		}()

		if got := readAll(t, right); !bytes.Equal(got, forward) {
			t.Errorf("size %d: forward mismatch, got %d bytes", size, len(got))
		}
		if got := readAll(t, left); !bytes.Equal(got, backward) {
			t.Errorf("size %d: backward mismatch, got %d bytes", size, len(got))
		}

		r := waitRelay(t, done)
		if r.err != nil {
			t.Errorf("size %d: unexpected error %s", size, r.err)
		}
		if r.aToB != int64(len(forward)) || r.bToA != int64(len(backward)) {
			t.Errorf("size %d: unexpected counts %d %d", size, r.aToB, r.bToA)
		}
	}
}

func TestRelayHalfClose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		// swap makes the peer behind b close its write half first
		swap bool
	}{
		{"a closes first", false},
		{"b closes first", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, a := tcpPair(t)
			b, right := tcpPair(t)
			done := startRelay(a, b)

			first, second := left, right
			if tt.swap {
				first, second = right, left
			}

			first.Write([]byte("ping"))
			first.CloseWrite()

			if got := readAll(t, second); string(got) != "ping" {
				t.Fatalf("expected ping followed by EOF, got %q", got)
			}

			select {
			case <-done:
				t.Fatal("relay completed with one direction still open")
			case <-time.After(50 * time.Millisecond):
			}

			second.Write([]byte("pong"))
			second.CloseWrite()

			if got := readAll(t, first); string(got) != "pong" {
				t.Fatalf("expected pong followed by EOF, got %q", got)
			}

			if r := waitRelay(t, done); r.err != nil {
				t.Fatalf("unexpected error %s", r.err)
			}
		})
	}
}

var errBoom = errors.New("boom")

type failingStream struct {
	closed chan struct{}
}

func (s *failingStream) Read([]byte) (int, error) {
	return 0, errBoom
}

func (s *failingStream) Write(p []byte) (int, error) {
	return len(p), nil
}

func (s *failingStream) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

func TestRelayErrorClosesBoth(t *testing.T) {
	t.Parallel()

	b, right := tcpPair(t)
	a := &failingStream{closed: make(chan struct{})}

	r := waitRelay(t, startRelay(a, b))
	if !errors.Is(r.err, errBoom) {
		t.Fatalf("expected boom, got %v", r.err)
	}

	select {
	case <-a.closed:
	default:
		t.Error("failing stream not closed")
	}
	if got := readAll(t, right); len(got) != 0 {
		t.Errorf("unexpected data %q", got)
	}
}

func TestRelayClosesStreamWithoutHalfClose(t *testing.T) {
	t.Parallel()

	aPeer, a := net.Pipe()
	b, bPeer := net.Pipe()
	defer aPeer.Close()
	defer bPeer.Close()

	done := startRelay(a, b)

	go func() {
		aPeer.Write([]byte("ping"))
		aPeer.Close()
	}()

	if got := readAll(t, bPeer); string(got) != "ping" {
		t.Fatalf("expected ping followed by EOF, got %q", got)
	}

	r := waitRelay(t, done)
	if r.err != nil {
		t.Fatalf("unexpected error %s", r.err)
	}
	if r.aToB != 4 || r.bToA != 0 {
		t.Errorf("unexpected counts %d %d", r.aToB, r.bToA)
	}
}
