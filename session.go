// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package changer

import (
	"sync/atomic"
	"time"

	"github.com/hons82/go-gender-changer/log"
	"github.com/hons82/go-gender-changer/metrics"
)

// SessionState is the lifecycle state of one relay unit.
type SessionState int

// Session states, Aborted is reachable from Handshaking and Relaying.
const (
	Connecting SessionState = iota
	Handshaking
	Relaying
	Closed
	Aborted
)

var sessionStateNames = [...]string{
	Connecting:  "connecting",
	Handshaking: "handshaking",
	Relaying:    "relaying",
	Closed:      "closed",
	Aborted:     "aborted",
}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(sessionStateNames) {
		return "unknown"
	}
	return sessionStateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s SessionState) Terminal() bool {
	return s == Closed || s == Aborted
}

var sessionSeq uint64

// session tracks the state of one relay unit for logging and metrics. It is
// owned by a single goroutine.
type session struct {
	side    string
	state   SessionState
	started time.Time
	logger  *log.Context
}

func newSession(side string, logger log.Logger) *session {
	n := atomic.AddUint64(&sessionSeq, 1)

	metrics.SessionsTotal.WithLabelValues(side).Inc()
	metrics.SessionsActive.WithLabelValues(side).Inc()

	return &session{
		side:    side,
		state:   Connecting,
		started: time.Now(),
		logger:  log.NewContext(logger).With("session", n, "side", side),
	}
}

func (s *session) transition(to SessionState) {
	if s.state.Terminal() {
		return
	}

	s.logger.Log(
		"level", log.LevelTrace,
		"action", "state",
		"from", s.state,
		"to", to,
	)
	s.state = to

	if to.Terminal() {
		metrics.SessionsActive.WithLabelValues(s.side).Dec()
		metrics.SessionDurationSeconds.WithLabelValues(s.side).Observe(time.Since(s.started).Seconds())
	}
}

// abort moves the session to Aborted and logs err.
func (s *session) abort(msg string, err error) {
	s.logger.Log(
		"level", log.LevelError,
		"msg", msg,
		"state", s.state,
		"err", err,
	)
	s.transition(Aborted)
}
