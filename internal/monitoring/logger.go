// Package monitoring owns the diagnostic log streams shared by the tracking
// pipeline.
//
// There are three streams:
//   - ops: lifecycle events and actionable warnings (open/close, init failures)
//   - diag: per-frame failures and tuning context
//   - trace: high-frequency capture telemetry
//
// Each stream is a zerolog logger tagged with its stream name. A nil writer
// disables the stream.
package monitoring

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Stream names a log stream.
type Stream string

const (
	StreamOps   Stream = "ops"
	StreamDiag  Stream = "diag"
	StreamTrace Stream = "trace"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	mu          sync.RWMutex
	opsLogger   = newLogger(StreamOps, os.Stderr)
	diagLogger  = zerolog.Nop()
	traceLogger = zerolog.Nop()
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger(StreamOps, w.Ops)
	diagLogger = newLogger(StreamDiag, w.Diag)
	traceLogger = newLogger(StreamTrace, w.Trace)
}

// newLogger creates a zerolog.Logger for a given writer, or a no-op logger
// if w is nil.
func newLogger(stream Stream, w io.Writer) zerolog.Logger {
	if w == nil {
		return zerolog.Nop()
	}
	return zerolog.New(w).With().Timestamp().Str("stream", string(stream)).Logger()
}

// Logger returns the zerolog logger behind a stream, for adapters that need
// a structured logger rather than printf-style calls.
func Logger(stream Stream) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	switch stream {
	case StreamDiag:
		return diagLogger
	case StreamTrace:
		return traceLogger
	default:
		return opsLogger
	}
}

// Opsf logs to the ops stream (actionable warnings, errors, lifecycle events).
func Opsf(format string, args ...interface{}) {
	l := Logger(StreamOps)
	l.Info().Msgf(format, args...)
}

// Diagf logs to the diag stream (day-to-day diagnostics, tuning context).
func Diagf(format string, args ...interface{}) {
	l := Logger(StreamDiag)
	l.Debug().Msgf(format, args...)
}

// Tracef logs to the trace stream (high-frequency frame telemetry).
func Tracef(format string, args ...interface{}) {
	l := Logger(StreamTrace)
	l.Debug().Msgf(format, args...)
}
