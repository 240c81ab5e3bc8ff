// Copyright (C) 2017 Michał Matczuk
// Use of this source code is governed by an AGPL-style
// license that can be found in the LICENSE file.

package log

type filterLogger struct {
	level  int
	logger Logger
}

// NewFilterLogger returns a Logger that drops events whose "level" value is
// greater than level. Events without an int "level" are passed through.
func NewFilterLogger(logger Logger, level int) Logger {
	return filterLogger{
		level:  level,
		logger: logger,
	}
}

func (p filterLogger) Log(keyvals ...interface{}) error {
	for i := 0; i+1 < len(keyvals); i += 2 {
		if k, ok := keyvals[i].(string); !ok || k != "level" {
			continue
		}
		if l, ok := keyvals[i+1].(int); ok && l > p.level {
			return nil
		}
		break
	}
	return p.logger.Log(keyvals...)
}
