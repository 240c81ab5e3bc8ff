// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package main

import "github.com/urfave/cli/v2"

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to optional YAML configuration file, flags take precedence",
		EnvVars: []string{"GCHANGER_CONFIG"},
	}

	logFlag = &cli.StringFlag{
		Name:    "log",
		Value:   "stdout",
		Usage:   "Write log messages to this file, file name or 'stdout', 'stderr', 'none'",
		EnvVars: []string{"GCHANGER_LOG"},
	}

	logLevelFlag = &cli.IntFlag{
		Name:    "log-level",
		Value:   1,
		Usage:   "Level of messages to log, 0-3",
		EnvVars: []string{"GCHANGER_LOG_LEVEL"},
	}

	metricsAddrFlag = &cli.StringFlag{
		Name:    "metrics-addr",
		Usage:   "Serve Prometheus metrics and health check on this address",
		EnvVars: []string{"GCHANGER_METRICS_ADDR"},
	}

	certsDirFlag = &cli.StringFlag{
		Name:    "dir",
		Value:   "certs",
		Usage:   "Directory to write generated certificates and keys to",
		EnvVars: []string{"GCHANGER_CERTS_DIR"},
	}

	proxyPortFlag = &cli.UintFlag{
		Name:    "proxy-port",
		Usage:   "Port accepting TLS connections from the client side",
		EnvVars: []string{"GCHANGER_PROXY_PORT"},
	}

	incomingPortFlag = &cli.UintFlag{
		Name:    "incoming-port",
		Usage:   "Port accepting plain connections relayed to the client side",
		EnvVars: []string{"GCHANGER_INCOMING_PORT"},
	}

	serverCertFlag = &cli.StringFlag{
		Name:    "server-cert",
		Usage:   "DER encoded server certificate",
		EnvVars: []string{"GCHANGER_SERVER_CERT"},
	}

	serverPrivateKeyFlag = &cli.StringFlag{
		Name:    "server-private-key",
		Usage:   "DER encoded server private key",
		EnvVars: []string{"GCHANGER_SERVER_PRIVATE_KEY"},
	}

	clientCertFlag = &cli.StringFlag{
		Name:    "client-cert",
		Usage:   "DER encoded client certificate",
		EnvVars: []string{"GCHANGER_CLIENT_CERT"},
	}

	clientPrivateKeyFlag = &cli.StringFlag{
		Name:    "client-private-key",
		Usage:   "DER encoded client private key",
		EnvVars: []string{"GCHANGER_CLIENT_PRIVATE_KEY"},
	}

	proxyHostFlag = &cli.StringFlag{
		Name:    "proxy-host",
		Usage:   "Address of the server proxy port, host:port",
		EnvVars: []string{"GCHANGER_PROXY_HOST"},
	}

	outgoingHostFlag = &cli.StringFlag{
		Name:    "outgoing-host",
		Usage:   "Address of the exposed service, host:port",
		EnvVars: []string{"GCHANGER_OUTGOING_HOST"},
	}

	handshakeTimeoutFlag = &cli.DurationFlag{
		Name:    "handshake-timeout",
		Usage:   "Limit for the TLS handshake of a paired connection, negative disables it",
		EnvVars: []string{"GCHANGER_HANDSHAKE_TIMEOUT"},
	}
)

var serverFlags = []cli.Flag{
	configFlag,
	proxyPortFlag,
	incomingPortFlag,
	serverCertFlag,
	serverPrivateKeyFlag,
	clientCertFlag,
	handshakeTimeoutFlag,
}

var clientFlags = []cli.Flag{
	configFlag,
	proxyHostFlag,
	outgoingHostFlag,
	clientCertFlag,
	clientPrivateKeyFlag,
	serverCertFlag,
}
