package facetrack

import (
	"errors"
	"image"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/headtrack/internal/config"
	"github.com/banshee-data/headtrack/internal/hint"
	"github.com/banshee-data/headtrack/internal/sensor"
)

var (
	// ErrEngineInitFailed is returned by an EngineFactory that cannot create
	// or initialise its engine.
	ErrEngineInitFailed = errors.New("face tracking engine init failed")
	// ErrTrackingFailed marks a tracking attempt the engine rejected or whose
	// result status is unhealthy.
	ErrTrackingFailed = errors.New("face tracking failed")
)

// CameraConfig describes one camera as seen by the engine.
type CameraConfig struct {
	Width       int
	Height      int
	FocalLength float64 // pixels
}

// CameraConfigs returns the video and depth camera descriptions for cfg.
func CameraConfigs(cfg *config.TrackingConfig) (video, depth CameraConfig) {
	video = CameraConfig{Width: cfg.GetColorWidth(), Height: cfg.GetColorHeight(), FocalLength: cfg.GetColorFocalLength()}
	depth = CameraConfig{Width: cfg.GetDepthWidth(), Height: cfg.GetDepthHeight(), FocalLength: cfg.GetDepthFocalLength()}
	return video, depth
}

// Pose is a head pose. Rotation holds pitch, yaw and roll in degrees;
// Translation is in metres in camera space.
type Pose struct {
	Scale       float64
	Rotation    r3.Vec
	Translation r3.Vec
}

// Result is the output of a tracking attempt. It is owned by the Session
// and overwritten in place by every attempt.
type Result struct {
	Pose     Pose
	FaceRect image.Rectangle // video pixels
	Points   []r2.Vec        // 2D landmarks, video pixels
	Valid    bool
}

// Reset invalidates the result.
func (r *Result) Reset() {
	r.Pose = Pose{}
	r.FaceRect = image.Rectangle{}
	r.Points = r.Points[:0]
	r.Valid = false
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	c := *r
	c.Points = append([]r2.Vec(nil), r.Points...)
	return &c
}

// Engine is the capability set of a face tracking engine. h is nil when no
// hint is available for the frame.
type Engine interface {
	// StartTracking searches the frame for a face, seeded by h.
	StartTracking(data *sensor.SensorData, h *hint.Hint, res *Result) error
	// ContinueTracking follows the face found by the previous attempt.
	ContinueTracking(data *sensor.SensorData, h *hint.Hint, res *Result) error
	// Status reports the health of the last attempt's result.
	Status() error
	// Reset drops all engine-side tracking state.
	Reset()
	// Close releases the engine.
	Close() error
}

// EngineFactory creates an initialised engine for the given cameras. It
// returns an error wrapping ErrEngineInitFailed on failure.
type EngineFactory func(video, depth CameraConfig) (Engine, error)
