// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package changer

import "time"

// Backoff paces the Client's retries of a relay connection that failed to
// connect or authenticate. *backoff.ExponentialBackOff from
// github.com/cenkalti/backoff satisfies it.
type Backoff interface {
	// NextBackOff returns how long to wait before the next attempt, a
	// negative value gives up.
	NextBackOff() time.Duration

	// Reset is called after an authenticated connection was established.
	Reset()
}
