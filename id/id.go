// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

// Package id derives short printable identifiers from certificates so that
// operators can compare pinned identities by eye.
package id

import (
	"bytes"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"github.com/calmh/luhn"
)

const (
	// encodedLen is the length of the base32 encoding of an ID.
	encodedLen = 52
	// chunkLen is the length of a chunk guarded by one check character.
	chunkLen = 13
)

var alphabet = luhn.Alphabet("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567")

// ID is the SHA-256 digest of a DER encoded certificate.
type ID [sha256.Size]byte

// New returns the ID of the DER encoded certificate data.
func New(data []byte) ID {
	return ID(sha256.Sum256(data))
}

// String returns the canonical representation: 56 characters of base32 with
// a Luhn check character after every 13, split into groups of 7.
func (i ID) String() string {
	s := base32.StdEncoding.EncodeToString(i[:])
	s = strings.TrimRight(s, "=")
	s, err := luhnify(s)
	if err != nil {
		panic(err)
	}
	return chunkify(s)
}

// Equal reports whether i and other are the same ID.
func (i ID) Equal(other ID) bool {
	return bytes.Equal(i[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, it accepts the
// canonical form with or without dashes and with any letter case.
func (i *ID) UnmarshalText(text []byte) error {
	s := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(string(text)))
	if len(s) != encodedLen+encodedLen/chunkLen {
		return fmt.Errorf("id: unexpected length %d", len(s))
	}

	raw, err := unluhnify(s)
	if err != nil {
		return err
	}

	b, err := base32.StdEncoding.DecodeString(raw + "====")
	if err != nil {
		return fmt.Errorf("id: %s", err)
	}
	copy(i[:], b)
	return nil
}

func luhnify(s string) (string, error) {
	if len(s) != encodedLen {
		return "", fmt.Errorf("id: unsupported string length %d", len(s))
	}

	var b strings.Builder
	for c := 0; c < encodedLen/chunkLen; c++ {
		p := s[c*chunkLen : (c+1)*chunkLen]
		l, err := alphabet.Generate(p)
		if err != nil {
			return "", err
		}
		b.WriteString(p)
		b.WriteRune(l)
	}
	return b.String(), nil
}

func unluhnify(s string) (string, error) {
	var b strings.Builder
	for c := 0; c < encodedLen/chunkLen; c++ {
		p := s[c*(chunkLen+1) : (c+1)*(chunkLen+1)]
		l, err := alphabet.Generate(p[:chunkLen])
		if err != nil {
			return "", err
		}
		if rune(p[chunkLen]) != l {
			return "", errors.New("id: check character mismatch")
		}
		b.WriteString(p[:chunkLen])
	}
	return b.String(), nil
}

func chunkify(s string) string {
	var parts []string
	for len(s) > 7 {
		parts = append(parts, s[:7])
		s = s[7:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "-")
}
