// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package changer

import "time"

// PlaceholderServerName is sent as TLS server name. It only satisfies the
// handshake API, the relay certificate is never checked against it.
const PlaceholderServerName = "secure-tcp-gender-changer"

var (
	// DefaultTimeout specifies a general purpose timeout, it bounds outbound
	// connects and the relay side TLS handshake.
	DefaultTimeout = 10 * time.Second

	// DefaultKeepAliveInterval specifies the TCP keepalive period set on
	// tunneled connections.
	DefaultKeepAliveInterval = 25 * time.Second
)
