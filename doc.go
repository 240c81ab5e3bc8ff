// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

// Package changer is a secure TCP gender changer. It lets a TCP service on a
// private network be reached through a public relay without trusting any
// certificate authority: each side pins exactly one peer certificate.
//
// The relay side (Server) listens on a public endpoint for TLS connections
// from the dial side and on a private endpoint for plain connections from
// local peers, pairs them in arrival order and relays bytes between them.
// The dial side (Client) keeps dialing the relay, and for every
// authenticated connection dials the destination and relays bytes.
package changer
