package sensor

import (
	"fmt"
	"image"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// SkeletonCount is the number of skeleton slots the sensor reports per frame.
const SkeletonCount = 6

// Joint indexes the sensor's skeleton joint table.
type Joint int

const (
	JointHipCenter Joint = iota
	JointSpine
	JointShoulderCenter
	JointHead
	JointShoulderLeft
	JointElbowLeft
	JointWristLeft
	JointHandLeft
	JointShoulderRight
	JointElbowRight
	JointWristRight
	JointHandRight
	JointHipLeft
	JointKneeLeft
	JointAnkleLeft
	JointFootLeft
	JointHipRight
	JointKneeRight
	JointAnkleRight
	JointFootRight

	JointCount
)

// JointTrackingState is the sensor's confidence in one joint position.
type JointTrackingState uint8

const (
	JointNotTracked JointTrackingState = iota
	JointInferred
	JointTracked
)

// SkeletonTrackingState is the sensor's state for a whole skeleton slot.
type SkeletonTrackingState uint8

const (
	SkeletonNotTracked SkeletonTrackingState = iota
	SkeletonPositionOnly
	SkeletonTracked
)

// SkeletonData is one slot of a skeleton frame. Positions are in metres in
// camera space, +Z pointing away from the sensor.
type SkeletonData struct {
	TrackingState SkeletonTrackingState
	TrackingID    uint32
	Position      r3.Vec
	Joints        [JointCount]r3.Vec
	JointStates   [JointCount]JointTrackingState
}

// JointTracked reports whether joint j is fully tracked in this slot.
func (s *SkeletonData) JointTracked(j Joint) bool {
	return s.JointStates[j] == JointTracked
}

// SkeletonFrame is one skeleton frame as delivered by the sensor. Slot
// indices are assigned by the sensor and stable across frames.
type SkeletonFrame struct {
	FrameNumber uint32
	Timestamp   time.Time
	Skeletons   [SkeletonCount]SkeletonData
}

// ImageFormat is the pixel layout of a frame buffer.
type ImageFormat int

const (
	FormatUnknown  ImageFormat = iota
	FormatB8G8R8X8             // 32-bit color
	FormatD13P3                // 16-bit little-endian: depth mm << 3 | player index
)

// BytesPerPixel returns the pixel stride of the format.
func (f ImageFormat) BytesPerPixel() int {
	switch f {
	case FormatB8G8R8X8:
		return 4
	case FormatD13P3:
		return 2
	default:
		return 0
	}
}

func (f ImageFormat) String() string {
	switch f {
	case FormatB8G8R8X8:
		return "B8G8R8X8"
	case FormatD13P3:
		return "D13P3"
	default:
		return "unknown"
	}
}

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Frame is an owned, fixed-resolution pixel buffer. Frames returned by
// FrameSource share their pixel storage with the capture goroutine: Pix is
// valid until the next capture cycle of the same stream.
type Frame struct {
	Width     int
	Height    int
	Format    ImageFormat
	Pix       []byte
	Seq       uint64
	Timestamp time.Time
}

func newFrame(res Resolution, format ImageFormat) *Frame {
	return &Frame{
		Width:  res.Width,
		Height: res.Height,
		Format: format,
		Pix:    make([]byte, res.Width*res.Height*format.BytesPerPixel()),
	}
}

// DepthAt decodes the depth in millimetres and the player index at (x, y)
// of a D13P3 frame.
func (f *Frame) DepthAt(x, y int) (depthMM uint16, player uint8, err error) {
	if f.Format != FormatD13P3 {
		return 0, 0, fmt.Errorf("frame format %s has no depth", f.Format)
	}
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, 0, fmt.Errorf("pixel (%d,%d) outside %dx%d frame", x, y, f.Width, f.Height)
	}
	i := (y*f.Width + x) * 2
	v := uint16(f.Pix[i]) | uint16(f.Pix[i+1])<<8
	return v >> 3, uint8(v & 0x7), nil
}

// EncodeDepth packs a depth in millimetres and a player index into a D13P3
// pixel value.
func EncodeDepth(depthMM uint16, player uint8) uint16 {
	return depthMM<<3 | uint16(player&0x7)
}

// RawFrame is a frame as handed out by a backend stream. Pitch is the row
// stride in bytes; a zero pitch marks a texture the driver failed to lock.
type RawFrame struct {
	FrameNumber uint32
	Timestamp   time.Time
	Pitch       int
	Data        []byte
}

// CopyTo copies the frame payload into dst. It fails with ErrBogusFrame for
// an empty or unlocked texture and ErrTruncatedFrame when the payload is
// shorter than dst.
func (r *RawFrame) CopyTo(dst []byte) error {
	if r == nil || r.Pitch == 0 || len(r.Data) == 0 {
		return ErrBogusFrame
	}
	if len(r.Data) < len(dst) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrTruncatedFrame, len(r.Data), len(dst))
	}
	copy(dst, r.Data)
	return nil
}

// SensorData bundles what the face tracking engine consumes for one frame.
type SensorData struct {
	Video      *Frame
	Depth      *Frame
	ZoomFactor float64
	ViewOffset image.Point
}

// Available reports whether both the color and the depth frame are present.
func (d *SensorData) Available() bool {
	return d != nil && d.Video != nil && d.Depth != nil
}
