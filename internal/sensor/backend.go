package sensor

import (
	"errors"
	"fmt"
)

var (
	// ErrHardwareUnavailable is returned when the device cannot be opened.
	ErrHardwareUnavailable = errors.New("sensor hardware unavailable")
	// ErrStreamOpenFailed is returned when a color, depth or skeleton stream
	// cannot be opened.
	ErrStreamOpenFailed = errors.New("sensor stream open failed")
	// ErrFrameUnavailable is returned when no frame is pending on a stream
	// or no frame has been captured yet.
	ErrFrameUnavailable = errors.New("sensor frame unavailable")
	// ErrBogusFrame marks a frame whose texture could not be locked.
	ErrBogusFrame = errors.New("sensor frame has no pixel data")
	// ErrTruncatedFrame marks a frame whose payload is shorter than the
	// owned buffer.
	ErrTruncatedFrame = errors.New("sensor frame truncated")
)

// DefaultBufferCount is the number of driver-side buffers requested per
// image stream.
const DefaultBufferCount = 2

// InitFlags selects the sensor subsystems to power up.
type InitFlags struct {
	Color    bool
	Depth    bool // depth with player index
	Skeleton bool
}

// StreamConfig describes an image stream to open.
type StreamConfig struct {
	Resolution  Resolution
	Format      ImageFormat
	NearMode    bool
	BufferCount int
}

// SkeletonConfig describes the skeleton stream to open.
type SkeletonConfig struct {
	NearRange bool
	Seated    bool
}

// Backend is the capability set of a sensor driver.
//
// Implementations must guarantee:
//   - Shutdown releases every stream opened since Open and is safe to call
//     after a failed Open or more than once.
//   - Stream ready channels stay valid (possibly never firing) after Shutdown.
type Backend interface {
	// Open powers up the device. Fails when no device is present.
	Open(flags InitFlags) error
	// OpenColorStream opens the color image stream.
	OpenColorStream(cfg StreamConfig) (Stream, error)
	// OpenDepthStream opens the depth + player index image stream.
	OpenDepthStream(cfg StreamConfig) (Stream, error)
	// OpenSkeletonStream enables skeleton tracking.
	OpenSkeletonStream(cfg SkeletonConfig) (SkeletonStream, error)
	// Shutdown releases the device and all streams.
	Shutdown() error
}

// Stream is an open image stream.
type Stream interface {
	// Ready is signalled while at least one frame is pending.
	Ready() <-chan struct{}
	// NextFrame returns the pending frame without waiting. The frame must be
	// handed back with ReleaseFrame.
	NextFrame() (*RawFrame, error)
	// ReleaseFrame returns a frame to the driver.
	ReleaseFrame(*RawFrame) error
}

// SkeletonStream is an open skeleton stream.
type SkeletonStream interface {
	// Ready is signalled while a skeleton frame is pending.
	Ready() <-chan struct{}
	// NextSkeletonFrame returns the pending skeleton frame without waiting.
	NextSkeletonFrame() (SkeletonFrame, error)
}

// classify wraps err with sentinel unless it already matches it.
func classify(sentinel error, what string, err error) error {
	if errors.Is(err, sentinel) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%s: %w: %w", what, sentinel, err)
}
