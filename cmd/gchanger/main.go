// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"

	"github.com/hons82/go-gender-changer"
	"github.com/hons82/go-gender-changer/id"
	"github.com/hons82/go-gender-changer/identity"
	"github.com/hons82/go-gender-changer/log"
	"github.com/hons82/go-gender-changer/metrics"
)

var version = "snapshot"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fatal("%s", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "gchanger",
		Usage:   "Expose a TCP service behind NAT through a public server, trust is one pinned certificate per side",
		Version: version,
		Flags: []cli.Flag{
			logFlag,
			logLevelFlag,
			metricsAddrFlag,
		},
		Commands: []*cli.Command{
			{
				Name:   "generate",
				Usage:  "Write self-signed server and client certificates and keys",
				Flags:  []cli.Flag{certsDirFlag},
				Action: runGenerate,
			},
			{
				Name:   "server",
				Usage:  "Pair connections on the proxy port with connections on the incoming port",
				Flags:  serverFlags,
				Action: runServer,
			},
			{
				Name:   "client",
				Usage:  "Keep a connection to the server ready and relay it to the outgoing host",
				Flags:  clientFlags,
				Action: runClient,
			},
			{
				Name:      "id",
				Usage:     "Show the identifier of a DER encoded certificate, or check it against an expected one",
				ArgsUsage: "<cert.der> [id]",
				Action:    runID,
			},
		},
	}
}

func runGenerate(c *cli.Context) error {
	dir := c.String(certsDirFlag.Name)
	if err := identity.GenerateFiles(dir, "server", "client"); err != nil {
		return fmt.Errorf("failed to generate certificates: %s", err)
	}

	for _, name := range []string{"server", "client"} {
		certFile, keyFile := identity.Paths(dir, name)
		fmt.Println(certFile)
		fmt.Println(keyFile)
	}
	return nil
}

func runID(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return fmt.Errorf("id takes a certificate file and an optional id")
	}

	der, err := identity.LoadCertificate(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to load certificate: %s", err)
	}

	if c.NArg() == 1 {
		fmt.Println(id.New(der))
		return nil
	}

	var expected id.ID
	if err := expected.UnmarshalText([]byte(c.Args().Get(1))); err != nil {
		return fmt.Errorf("invalid id: %s", err)
	}
	if err := checkID("certificate", &expected, changer.NewPin(der)); err != nil {
		return err
	}
	fmt.Println("OK")

	return nil
}

func runServer(c *cli.Context) error {
	logger, config, err := setup(c)
	if err != nil {
		return err
	}

	proxyAddr, incomingAddr, err := config.serverAddrs()
	if err != nil {
		return fmt.Errorf("configuration error: %s", err)
	}

	cert, err := identity.LoadKeyPair(config.ServerCert, config.ServerPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to load server key pair: %s", err)
	}
	pinned, err := identity.LoadCertificate(config.ClientCert)
	if err != nil {
		return fmt.Errorf("failed to load client certificate: %s", err)
	}
	pin := changer.NewPin(pinned)
	if err := checkID("client_id", config.ClientID, pin); err != nil {
		return fmt.Errorf("configuration error: %s", err)
	}

	logger.Log(
		"level", log.LevelInfo,
		"msg", "pinned client certificate",
		"identity", pin.ID(),
	)

	server, err := changer.NewServer(&changer.ServerConfig{
		PublicAddr:       proxyAddr,
		PrivateAddr:      incomingAddr,
		TLSConfig:        changer.ServerTLSConfig(cert, pin),
		HandshakeTimeout: config.HandshakeTimeout,
		Logger:           log.NewContext(logger).WithPrefix("role", "server"),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %s", err)
	}

	serveMetrics(config.MetricsAddr, logger)

	if err := server.Start(); err != nil {
		return fmt.Errorf("server failed: %s", err)
	}
	return nil
}

func runClient(c *cli.Context) error {
	logger, config, err := setup(c)
	if err != nil {
		return err
	}

	proxyAddr, outgoingAddr, err := config.clientAddrs()
	if err != nil {
		return fmt.Errorf("configuration error: %s", err)
	}

	cert, err := identity.LoadKeyPair(config.ClientCert, config.ClientPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to load client key pair: %s", err)
	}
	pinned, err := identity.LoadCertificate(config.ServerCert)
	if err != nil {
		return fmt.Errorf("failed to load server certificate: %s", err)
	}
	pin := changer.NewPin(pinned)
	if err := checkID("server_id", config.ServerID, pin); err != nil {
		return fmt.Errorf("configuration error: %s", err)
	}

	logger.Log(
		"level", log.LevelInfo,
		"msg", "pinned server certificate",
		"identity", pin.ID(),
	)

	client := changer.NewClient(&changer.ClientConfig{
		RelayAddr:       proxyAddr,
		DestAddr:        outgoingAddr,
		TLSClientConfig: changer.ClientTLSConfig(cert, pin),
		Backoff:         expBackoff(config.Backoff),
		Logger:          log.NewContext(logger).WithPrefix("role", "client"),
	})

	serveMetrics(config.MetricsAddr, logger)

	return client.Start()
}

// setup creates the logger and merges the configuration file with flags.
func setup(c *cli.Context) (log.Logger, *Config, error) {
	logger, err := log.NewLogger(c.String(logFlag.Name), c.Int(logLevelFlag.Name))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %s", err)
	}

	config, err := loadConfiguration(c.String(configFlag.Name))
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %s", err)
	}
	config.applyFlags(c)

	b, err := yaml.Marshal(config)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %s", err)
	}
	logger.Log(
		"level", log.LevelDebug,
		"msg", "configuration",
		"config", string(b),
	)

	return logger, config, nil
}

func serveMetrics(addr string, logger log.Logger) {
	if addr == "" {
		return
	}

	go func() {
		logger.Log(
			"level", log.LevelInfo,
			"action", "serving metrics",
			"addr", addr,
		)
		if err := metrics.Serve(addr); err != nil {
			logger.Log(
				"level", log.LevelError,
				"msg", "metrics server failed",
				"err", err,
			)
		}
	}()
}

func fatal(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprint(os.Stderr, "\n")
	os.Exit(1)
}
