// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"

	"github.com/hons82/go-gender-changer"
	"github.com/hons82/go-gender-changer/id"
)

// BackoffConfig enables retrying a failed connection to the server. Zero
// fields take the defaults.
type BackoffConfig struct {
	InitialInterval time.Duration `yaml:"interval,omitempty"`
	Multiplier      float64       `yaml:"multiplier,omitempty"`
	MaxInterval     time.Duration `yaml:"max_interval,omitempty"`
	MaxElapsedTime  time.Duration `yaml:"max_time,omitempty"`
}

// Config holds the settings of both the server and the client command,
// each uses its own subset.
type Config struct {
	ProxyPort        uint           `yaml:"proxy_port,omitempty"`
	IncomingPort     uint           `yaml:"incoming_port,omitempty"`
	ProxyHost        string         `yaml:"proxy_host,omitempty"`
	OutgoingHost     string         `yaml:"outgoing_host,omitempty"`
	ServerCert       string         `yaml:"server_cert,omitempty"`
	ServerPrivateKey string         `yaml:"server_private_key,omitempty"`
	ClientCert       string         `yaml:"client_cert,omitempty"`
	ClientPrivateKey string         `yaml:"client_private_key,omitempty"`
	ServerID         *id.ID         `yaml:"server_id,omitempty"`
	ClientID         *id.ID         `yaml:"client_id,omitempty"`
	HandshakeTimeout time.Duration  `yaml:"handshake_timeout,omitempty"`
	MetricsAddr      string         `yaml:"metrics_addr,omitempty"`
	Backoff          *BackoffConfig `yaml:"backoff,omitempty"`
}

var defaultBackoffConfig = BackoffConfig{
	InitialInterval: 500 * time.Millisecond,
	Multiplier:      1.5,
	MaxInterval:     60 * time.Second,
	MaxElapsedTime:  15 * time.Minute,
}

// loadConfiguration reads the file at path, an empty path gives an empty
// configuration.
func loadConfiguration(path string) (*Config, error) {
	var config Config
	if path == "" {
		return &config, nil
	}

	configBuf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %s", path, err)
	}

	if err = yaml.UnmarshalStrict(configBuf, &config); err != nil {
		return nil, fmt.Errorf("failed to parse file %q: %s", path, err)
	}

	if b := config.Backoff; b != nil {
		if b.InitialInterval == 0 {
			b.InitialInterval = defaultBackoffConfig.InitialInterval
		}
		if b.Multiplier == 0 {
			b.Multiplier = defaultBackoffConfig.Multiplier
		}
		if b.MaxInterval == 0 {
			b.MaxInterval = defaultBackoffConfig.MaxInterval
		}
		if b.MaxElapsedTime == 0 {
			b.MaxElapsedTime = defaultBackoffConfig.MaxElapsedTime
		}
	}

	return &config, nil
}

// applyFlags overrides the file settings with flags set on the command line
// or in the environment.
func (config *Config) applyFlags(c *cli.Context) {
	setUint(c, proxyPortFlag.Name, &config.ProxyPort)
	setUint(c, incomingPortFlag.Name, &config.IncomingPort)
	setString(c, proxyHostFlag.Name, &config.ProxyHost)
	setString(c, outgoingHostFlag.Name, &config.OutgoingHost)
	setString(c, serverCertFlag.Name, &config.ServerCert)
	setString(c, serverPrivateKeyFlag.Name, &config.ServerPrivateKey)
	setString(c, clientCertFlag.Name, &config.ClientCert)
	setString(c, clientPrivateKeyFlag.Name, &config.ClientPrivateKey)
	setString(c, metricsAddrFlag.Name, &config.MetricsAddr)
	if c.IsSet(handshakeTimeoutFlag.Name) {
		config.HandshakeTimeout = c.Duration(handshakeTimeoutFlag.Name)
	}
}

func setString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}

func setUint(c *cli.Context, name string, dst *uint) {
	if c.IsSet(name) {
		*dst = c.Uint(name)
	}
}

// serverAddrs validates the server settings and returns the addresses of
// the proxy and incoming listeners.
func (config *Config) serverAddrs() (proxy, incoming string, err error) {
	if err := required(
		"server_cert", config.ServerCert,
		"server_private_key", config.ServerPrivateKey,
		"client_cert", config.ClientCert,
	); err != nil {
		return "", "", err
	}

	if proxy, err = listenAddress(config.ProxyPort); err != nil {
		return "", "", fmt.Errorf("proxy_port: %s", err)
	}
	if incoming, err = listenAddress(config.IncomingPort); err != nil {
		return "", "", fmt.Errorf("incoming_port: %s", err)
	}
	if proxy == incoming {
		return "", "", fmt.Errorf("proxy_port and incoming_port must differ")
	}

	return proxy, incoming, nil
}

// clientAddrs validates the client settings and returns the normalized
// addresses of the server proxy port and the exposed service.
func (config *Config) clientAddrs() (proxy, outgoing string, err error) {
	if err := required(
		"proxy_host", config.ProxyHost,
		"outgoing_host", config.OutgoingHost,
		"client_cert", config.ClientCert,
		"client_private_key", config.ClientPrivateKey,
		"server_cert", config.ServerCert,
	); err != nil {
		return "", "", err
	}

	if proxy, err = normalizeAddress(config.ProxyHost); err != nil {
		return "", "", fmt.Errorf("proxy_host: %s", err)
	}
	if outgoing, err = normalizeAddress(config.OutgoingHost); err != nil {
		return "", "", fmt.Errorf("outgoing_host: %s", err)
	}

	return proxy, outgoing, nil
}

// required takes name, value pairs and reports the first empty value.
func required(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i+1] == "" {
			return fmt.Errorf("%s: missing", fields[i])
		}
	}
	return nil
}

// expBackoff returns nil when no backoff is configured, the client then
// gives up on the first failure.
func expBackoff(c *BackoffConfig) changer.Backoff {
	if c == nil {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.Multiplier = c.Multiplier
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = c.MaxElapsedTime
	b.Reset()

	return b
}

// checkID fails if expected is set and differs from the ID of the pinned
// certificate, catching a wrong certificate file before any peer connects.
func checkID(name string, expected *id.ID, pin *changer.Pin) error {
	if expected == nil || expected.Equal(pin.ID()) {
		return nil
	}
	return fmt.Errorf("%s: pinned certificate has id %s, expected %s", name, pin.ID(), *expected)
}
