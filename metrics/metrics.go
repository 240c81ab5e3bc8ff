// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

// Package metrics holds the Prometheus collectors of the tunnel and the
// HTTP endpoint exposing them.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Values of the side label.
const (
	SideRelay = "relay"
	SideDial  = "dial"
)

var (
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gchanger_sessions_total",
		Help: "Sessions started, by side",
	}, []string{"side"})
	SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gchanger_sessions_active",
		Help: "Sessions currently handshaking or relaying, by side",
	}, []string{"side"})
	HandshakeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gchanger_handshake_failures_total",
		Help: "TLS handshakes that failed, including pin mismatches, by side",
	}, []string{"side"})
	DialFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gchanger_dial_failures_total",
		Help: "Outbound connects that failed, by target",
	}, []string{"target"})
	BytesRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gchanger_bytes_relayed_total",
		Help: "Bytes copied by the relay engine, by direction",
	}, []string{"direction"})
	SessionDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gchanger_session_duration_seconds",
		Help:    "Session lifetime from creation to close or abort, by side; dial side sessions start at the relay connect",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
	}, []string{"side"})
)

// Handler returns the mux serving /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve blocks serving Handler on addr.
func Serve(addr string) error {
	if err := http.ListenAndServe(addr, Handler()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
