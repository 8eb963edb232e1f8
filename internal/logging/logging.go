// Package logging provides the structured logger used across the
// orchestration engine.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging surface every package in this module depends on.
// Kept narrow so providers and the session state machine never import
// zerolog directly.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	With(kv ...interface{}) Logger
}

// NoOpLogger discards everything. Used by tests and zero-value construction.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...interface{})    {}
func (NoOpLogger) Info(string, ...interface{})     {}
func (NoOpLogger) Warn(string, ...interface{})     {}
func (NoOpLogger) Error(string, ...interface{})    {}
func (n NoOpLogger) With(...interface{}) Logger     { return n }

// zlog wraps a zerolog.Logger to satisfy Logger. Args are treated as
// alternating key/value pairs, matching the teacher's (key, value, key,
// value, ...) calling convention.
type zlog struct {
	z zerolog.Logger
}

// New builds a Logger writing to w (os.Stdout in production) at the given
// level ("debug", "info", "warn", "error"). Console-formatted in dev mode,
// JSON otherwise.
func New(w io.Writer, level string, pretty bool) Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var out io.Writer = w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &zlog{z: z}
}

func fields(e *zerolog.Event, args []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}

func (l *zlog) Debug(msg string, args ...interface{}) { fields(l.z.Debug(), args).Msg(msg) }
func (l *zlog) Info(msg string, args ...interface{})  { fields(l.z.Info(), args).Msg(msg) }
func (l *zlog) Warn(msg string, args ...interface{})  { fields(l.z.Warn(), args).Msg(msg) }
func (l *zlog) Error(msg string, args ...interface{}) { fields(l.z.Error(), args).Msg(msg) }

func (l *zlog) With(kv ...interface{}) Logger {
	ctx := l.z.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return &zlog{z: ctx.Logger()}
}
