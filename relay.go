// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package changer

import (
	"errors"
	"io"
	"net"
	"sync/atomic"

	"github.com/hons82/go-gender-changer/log"
	"github.com/hons82/go-gender-changer/metrics"
)

// WriteHalfCloser is implemented by streams that can signal end-of-stream
// to the peer while the read half stays usable, such as *net.TCPConn and
// *tls.Conn.
type WriteHalfCloser interface {
	CloseWrite() error
}

type copyResult struct {
	n   int64
	err error
}

// Relay copies bytes from a to b and from b to a concurrently. When one
// direction reaches end-of-stream the write half of its destination is
// closed. A destination that is not a WriteHalfCloser is closed entirely,
// which also ends the other direction. Relay returns once both directions
// are done and both streams are closed. If a direction fails both streams
// are closed at once so the other direction unblocks, and the first error
// is returned.
func Relay(a, b io.ReadWriteCloser) (aToB, bToA int64, err error) {
	ab := make(chan copyResult, 1)
	ba := make(chan copyResult, 1)

	var shut int32
	go func() { ab <- halfCopy(b, a, &shut) }()
	go func() { ba <- halfCopy(a, b, &shut) }()

	var closed bool
	closeBoth := func() {
		if !closed {
			closed = true
			a.Close()
			b.Close()
		}
	}

	for pending := 2; pending > 0; pending-- {
		var r copyResult
		select {
		case r = <-ab:
			aToB = r.n
			ab = nil
		case r = <-ba:
			bToA = r.n
			ba = nil
		}
		if r.err != nil {
			if atomic.LoadInt32(&shut) == 1 && isClosedErr(r.err) {
				closeBoth()
				continue
			}
			if err == nil {
				err = r.err
			}
			closeBoth()
		}
	}
	closeBoth()

	return aToB, bToA, err
}

// halfCopy copies src to dst until end-of-stream and then closes the write
// half of dst, or dst itself if it cannot be half-closed. shut is set
// before such a full close.
func halfCopy(dst io.ReadWriteCloser, src io.Reader, shut *int32) copyResult {
	n, err := io.Copy(dst, src)
	if err != nil {
		return copyResult{n, err}
	}

	if c, ok := dst.(WriteHalfCloser); ok {
		if err := c.CloseWrite(); err != nil && !errors.Is(err, net.ErrClosed) {
			return copyResult{n, err}
		}
		return copyResult{n, nil}
	}

	atomic.StoreInt32(shut, 1)
	if err := dst.Close(); err != nil && !isClosedErr(err) {
		return copyResult{n, err}
	}
	return copyResult{n, nil}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// transfer relays between the tunnel stream and the plain stream and logs
// the outcome. It is the body of every session once it is Relaying.
func transfer(tunnel, plain io.ReadWriteCloser, logger log.Logger) error {
	sent, received, err := Relay(tunnel, plain)

	metrics.BytesRelayedTotal.WithLabelValues("tunnel_to_plain").Add(float64(sent))
	metrics.BytesRelayedTotal.WithLabelValues("plain_to_tunnel").Add(float64(received))

	if err != nil {
		logger.Log(
			"level", log.LevelDebug,
			"msg", "copy error",
			"err", err,
		)
	}

	logger.Log(
		"level", log.LevelTrace,
		"action", "transferred",
		"tunnel_to_plain", sent,
		"plain_to_tunnel", received,
	)

	return err
}
