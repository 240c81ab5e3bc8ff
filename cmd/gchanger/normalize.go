// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"strconv"
)

func normalizeAddress(addr string) (string, error) {
	// normalize port to addr
	if _, err := strconv.Atoi(addr); err == nil {
		addr = ":" + addr
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}

	if host == "" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port), nil
}

// listenAddress returns the address binding port on all IPv4 interfaces.
func listenAddress(port uint) (string, error) {
	if port == 0 || port > 65535 {
		return "", fmt.Errorf("invalid port %d", port)
	}
	return net.JoinHostPort("0.0.0.0", strconv.FormatUint(uint64(port), 10)), nil
}
