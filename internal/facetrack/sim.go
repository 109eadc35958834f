package facetrack

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/headtrack/internal/hint"
	"github.com/banshee-data/headtrack/internal/sensor"
)

// MaxContinueJump is the largest L1 head displacement, in metres, that
// SimEngine follows between two consecutive continue attempts.
const MaxContinueJump = 0.5

// faceHalfSize is half the edge of the simulated face box, in metres.
const faceHalfSize = 0.09

// SimEngine is a deterministic engine that places the face at the hinted
// head. Yaw is the bearing of the head from the sensor axis; pitch and roll
// come from the lean of the neck-to-head vector. It reads frame headers
// only, never pixel contents.
type SimEngine struct {
	video CameraConfig
	depth CameraConfig

	locked bool
	last   hint.Hint
	status error
	closed bool
}

var _ Engine = (*SimEngine)(nil)

// NewSimEngine implements EngineFactory.
func NewSimEngine(video, depth CameraConfig) (Engine, error) {
	for name, c := range map[string]CameraConfig{"video": video, "depth": depth} {
		if c.Width <= 0 || c.Height <= 0 || c.FocalLength <= 0 {
			return nil, fmt.Errorf("%w: %s camera %dx%d f=%.2f", ErrEngineInitFailed, name, c.Width, c.Height, c.FocalLength)
		}
	}
	return &SimEngine{video: video, depth: depth}, nil
}

// StartTracking locks onto h. It fails without a hint.
func (e *SimEngine) StartTracking(data *sensor.SensorData, h *hint.Hint, res *Result) error {
	if err := e.check(data); err != nil {
		return e.setStatus(err)
	}
	if h == nil {
		return e.setStatus(fmt.Errorf("%w: no face candidate", ErrTrackingFailed))
	}
	e.locked = true
	e.last = *h
	e.render(data, res)
	return e.setStatus(nil)
}

// ContinueTracking follows the locked face to h, or holds the last pose
// when h is nil. A jump beyond MaxContinueJump loses the lock.
func (e *SimEngine) ContinueTracking(data *sensor.SensorData, h *hint.Hint, res *Result) error {
	if err := e.check(data); err != nil {
		return e.setStatus(err)
	}
	if !e.locked {
		return e.setStatus(fmt.Errorf("%w: continue without a lock", ErrTrackingFailed))
	}
	if h != nil {
		if d := hint.L1(h.Head, e.last.Head); d > MaxContinueJump {
			e.locked = false
			return e.setStatus(fmt.Errorf("%w: face moved %.2fm", ErrTrackingFailed, d))
		}
		e.last = *h
	}
	e.render(data, res)
	return e.setStatus(nil)
}

// Status returns the error of the last attempt.
func (e *SimEngine) Status() error {
	return e.status
}

// Reset drops the lock.
func (e *SimEngine) Reset() {
	e.locked = false
	e.last = hint.Hint{}
	e.status = nil
}

// Close marks the engine closed; later attempts fail.
func (e *SimEngine) Close() error {
	e.closed = true
	e.Reset()
	return nil
}

func (e *SimEngine) setStatus(err error) error {
	e.status = err
	return err
}

func (e *SimEngine) check(data *sensor.SensorData) error {
	if e.closed {
		return errors.New("engine closed")
	}
	if !data.Available() {
		return sensor.ErrFrameUnavailable
	}
	if len(data.Video.Pix) == 0 || len(data.Depth.Pix) == 0 {
		return fmt.Errorf("%w: empty frame", ErrTrackingFailed)
	}
	return nil
}

func (e *SimEngine) render(data *sensor.SensorData, res *Result) {
	head, neck := e.last.Head, e.last.Neck
	up := r3.Sub(head, neck)

	res.Pose = Pose{
		Scale: 1,
		Rotation: r3.Vec{
			X: degrees(math.Atan2(-up.Z, up.Y)),
			Y: degrees(math.Atan2(head.X, head.Z)),
			Z: degrees(math.Atan2(-up.X, up.Y)),
		},
		Translation: head,
	}

	center := e.project(data, head)
	half := 0.0
	if head.Z > 0 {
		half = e.video.FocalLength * zoomOf(data) * faceHalfSize / head.Z
	}
	res.FaceRect = image.Rect(
		int(math.Round(center.X-half)), int(math.Round(center.Y-half)),
		int(math.Round(center.X+half)), int(math.Round(center.Y+half)),
	)

	res.Points = res.Points[:0]
	for _, off := range []r2.Vec{
		{X: -0.35, Y: -0.25}, // left eye
		{X: 0.35, Y: -0.25},  // right eye
		{X: 0, Y: 0.05},      // nose tip
		{X: -0.3, Y: 0.45},   // mouth left
		{X: 0.3, Y: 0.45},    // mouth right
	} {
		res.Points = append(res.Points, r2.Add(center, r2.Scale(half, off)))
	}
}

// project maps a camera-space point to video pixels.
func (e *SimEngine) project(data *sensor.SensorData, p r3.Vec) r2.Vec {
	c := r2.Vec{
		X: float64(e.video.Width)/2 + float64(data.ViewOffset.X),
		Y: float64(e.video.Height)/2 + float64(data.ViewOffset.Y),
	}
	if p.Z <= 0 {
		return c
	}
	f := e.video.FocalLength * zoomOf(data)
	return r2.Vec{X: c.X + f*p.X/p.Z, Y: c.Y - f*p.Y/p.Z}
}

func zoomOf(data *sensor.SensorData) float64 {
	if data.ZoomFactor <= 0 {
		return 1
	}
	return data.ZoomFactor
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
