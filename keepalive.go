// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package changer

import (
	"fmt"
	"net"
)

func keepAlive(conn net.Conn) error {
	c, ok := conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("bad connection type: %T", conn)
	}

	if err := c.SetKeepAlive(DefaultKeepAliveInterval > 0); err != nil {
		return err
	}
	if DefaultKeepAliveInterval > 0 {
		return c.SetKeepAlivePeriod(DefaultKeepAliveInterval)
	}
	return nil
}
