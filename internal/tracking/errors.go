package tracking

import "fmt"

// Init stages, in acquisition order.
const (
	StageFrameSource = "frame source"
	StageEngine      = "engine"
)

// InitializationError reports which Init stage failed. errors.Is reaches
// the underlying sentinel (sensor.ErrHardwareUnavailable,
// sensor.ErrStreamOpenFailed or facetrack.ErrEngineInitFailed).
type InitializationError struct {
	Stage string
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("tracking init: %s: %v", e.Stage, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}
