package facetrack

import (
	"errors"
	"fmt"

	"github.com/banshee-data/headtrack/internal/hint"
	"github.com/banshee-data/headtrack/internal/monitoring"
	"github.com/banshee-data/headtrack/internal/sensor"
)

// State is the outcome of the previous tracking attempt.
type State int

const (
	NeverTracked State = iota
	LastSucceeded
	LastFailed
)

func (s State) String() string {
	switch s {
	case NeverTracked:
		return "never_tracked"
	case LastSucceeded:
		return "last_succeeded"
	case LastFailed:
		return "last_failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Mode is the engine call made by an attempt.
type Mode int

const (
	// ModeNone means no engine call was made because frames were missing.
	ModeNone Mode = iota
	ModeStart
	ModeContinue
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeStart:
		return "start"
	case ModeContinue:
		return "continue"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Attempt describes one Session.Update call.
type Attempt struct {
	Mode Mode
	OK   bool
	Err  error
}

// Session runs the start/continue state machine over an Engine. It is owned
// by the caller goroutine.
type Session struct {
	engine Engine
	state  State
	result Result
}

// NewSession wraps an initialised engine.
func NewSession(engine Engine) *Session {
	return &Session{engine: engine}
}

// Update runs one tracking attempt. The previous attempt's outcome picks
// the call: ContinueTracking after a success, StartTracking otherwise. An
// attempt succeeds only if the call and the engine status are both healthy.
// Missing frames count as a failure without calling the engine.
func (s *Session) Update(data *sensor.SensorData, h *hint.Hint) Attempt {
	if !data.Available() {
		return s.fail(ModeNone, sensor.ErrFrameUnavailable)
	}

	mode := ModeStart
	if s.state == LastSucceeded {
		mode = ModeContinue
	}

	var err error
	if mode == ModeContinue {
		err = s.engine.ContinueTracking(data, h, &s.result)
	} else {
		err = s.engine.StartTracking(data, h, &s.result)
	}
	if err == nil {
		if serr := s.engine.Status(); serr != nil {
			err = fmt.Errorf("result status: %w", serr)
		}
	}
	if err != nil {
		if !errors.Is(err, ErrTrackingFailed) {
			err = fmt.Errorf("%w: %w", ErrTrackingFailed, err)
		}
		return s.fail(mode, err)
	}

	s.state = LastSucceeded
	s.result.Valid = true
	return Attempt{Mode: mode, OK: true}
}

func (s *Session) fail(mode Mode, err error) Attempt {
	s.state = LastFailed
	s.engine.Reset()
	s.result.Reset()
	monitoring.Diagf("face tracking %s attempt failed: %v", mode, err)
	return Attempt{Mode: mode, Err: err}
}

// State returns the outcome of the previous attempt.
func (s *Session) State() State {
	return s.state
}

// LastTrackSucceeded reports whether the previous attempt succeeded.
func (s *Session) LastTrackSucceeded() bool {
	return s.state == LastSucceeded
}

// Result returns the session-owned result. It is meaningful only while
// LastTrackSucceeded is true and is overwritten by the next Update.
func (s *Session) Result() *Result {
	return &s.result
}

// Reset returns the session to NeverTracked.
func (s *Session) Reset() {
	s.state = NeverTracked
	s.engine.Reset()
	s.result.Reset()
}

// Close releases the engine.
func (s *Session) Close() error {
	s.result.Reset()
	return s.engine.Close()
}
