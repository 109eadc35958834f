package facetrack

import (
	"errors"
	"sync"

	"github.com/banshee-data/headtrack/internal/hint"
	"github.com/banshee-data/headtrack/internal/sensor"
)

// Call records one tracking call made on a MockEngine.
type Call struct {
	Mode Mode
	Hint *hint.Hint
}

// MockEngine is a scripted Engine for tests. Each tracking call pops the
// next entry of CallErrors (nil when the script is exhausted) and the next
// entry of StatusErrors for the following Status call.
type MockEngine struct {
	mu sync.Mutex

	// CallErrors scripts the return values of StartTracking and
	// ContinueTracking, in call order.
	CallErrors []error
	// StatusErrors scripts the return values of Status, in call order.
	StatusErrors []error
	// CloseError is returned by Close if set
	CloseError error

	calls  []Call
	status error
	resets int
	closed bool
}

var _ Engine = (*MockEngine)(nil)

// MockFactory returns an EngineFactory that hands out engine, or fails with
// ErrEngineInitFailed when engine is nil.
func MockFactory(engine *MockEngine) EngineFactory {
	return func(video, depth CameraConfig) (Engine, error) {
		if engine == nil {
			return nil, ErrEngineInitFailed
		}
		return engine, nil
	}
}

// StartTracking records the call and returns the scripted error.
func (m *MockEngine) StartTracking(data *sensor.SensorData, h *hint.Hint, res *Result) error {
	return m.track(ModeStart, h, res)
}

// ContinueTracking records the call and returns the scripted error.
func (m *MockEngine) ContinueTracking(data *sensor.SensorData, h *hint.Hint, res *Result) error {
	return m.track(ModeContinue, h, res)
}

func (m *MockEngine) track(mode Mode, h *hint.Hint, res *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("mock engine closed")
	}
	c := Call{Mode: mode}
	if h != nil {
		cp := *h
		c.Hint = &cp
		res.Pose.Translation = h.Head
	}
	m.calls = append(m.calls, c)
	res.Pose.Scale = 1

	var err error
	if len(m.CallErrors) > 0 {
		err, m.CallErrors = m.CallErrors[0], m.CallErrors[1:]
	}
	m.status = nil
	if len(m.StatusErrors) > 0 {
		m.status, m.StatusErrors = m.StatusErrors[0], m.StatusErrors[1:]
	}
	return err
}

// Status returns the scripted status of the last call.
func (m *MockEngine) Status() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Reset counts the reset.
func (m *MockEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.status = nil
}

// Close marks the engine closed.
func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseError
}

// Calls returns the recorded tracking calls.
func (m *MockEngine) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Modes returns the modes of the recorded tracking calls.
func (m *MockEngine) Modes() []Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	modes := make([]Mode, len(m.calls))
	for i, c := range m.calls {
		modes[i] = c.Mode
	}
	return modes
}

// Resets returns the number of Reset calls.
func (m *MockEngine) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Closed reports whether Close was called.
func (m *MockEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
