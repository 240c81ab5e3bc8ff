// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package log

import (
	"io"
	"os"

	kitlog "github.com/go-kit/log"
)

// Levels used as the value of the "level" key.
const (
	LevelError = 0
	LevelInfo  = 1
	LevelDebug = 2
	LevelTrace = 3
)

// Logger is the fundamental interface for all log operations. Log creates a
// log event from keyvals, a variadic sequence of alternating keys and values.
// Implementations must be safe for concurrent use by multiple goroutines. In
// particular, any implementation of Logger that appends to keyvals or
// modifies any of its elements must make a copy first.
type Logger interface {
	Log(keyvals ...interface{}) error
}

// NewLogger returns a JSON logger writing to "stdout", "stderr", a file
// path, or nowhere for "none". Events with a "level" above level are
// dropped.
func NewLogger(to string, level int) (Logger, error) {
	var w io.Writer

	switch to {
	case "none":
		return NewNopLogger(), nil
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		w = f
	}

	var logger kitlog.Logger
	logger = kitlog.NewJSONLogger(kitlog.NewSyncWriter(w))
	logger = kitlog.WithPrefix(logger, "time", kitlog.DefaultTimestampUTC)
	return NewFilterLogger(logger, level), nil
}

type nopLogger struct{}

// NewNopLogger returns a logger that discards all events.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Log(...interface{}) error { return nil }
