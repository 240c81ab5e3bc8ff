// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package changer

import "errors"

var (
	errMissingTLSConfig = errors.New("missing TLSConfig")
	errMissingAddr      = errors.New("missing address")
	errNoCertificate    = errors.New("no certificate presented")
)

// ErrApplicationVerification is the reason of every pin rejection.
var ErrApplicationVerification = errors.New("application verification failure")

// VerificationError is returned when a peer presented a certificate that is
// not the pinned one.
type VerificationError struct {
	// Reason is ErrApplicationVerification, possibly wrapped with a detail.
	Reason error
}

func (e *VerificationError) Error() string {
	return "invalid peer certificate: " + e.Reason.Error()
}

func (e *VerificationError) Unwrap() error {
	return e.Reason
}
