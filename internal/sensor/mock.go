package sensor

import (
	"errors"
	"sync"
)

// FakeBackend implements Backend with configurable failures for testing.
// Frames are injected with PushVideo, PushDepth and PushSkeleton.
type FakeBackend struct {
	mu sync.Mutex

	// OpenError is returned by Open if set
	OpenError error
	// ColorOpenError is returned by OpenColorStream if set
	ColorOpenError error
	// DepthOpenError is returned by OpenDepthStream if set
	DepthOpenError error
	// SkeletonOpenError is returned by OpenSkeletonStream if set
	SkeletonOpenError error
	// ShutdownError is returned by Shutdown if set
	ShutdownError error

	// Opens records the number of Open calls
	Opens int
	// Shutdowns records the number of Shutdown calls
	Shutdowns int

	LastFlags    InitFlags
	LastColor    StreamConfig
	LastDepth    StreamConfig
	LastSkeleton SkeletonConfig

	open     bool
	color    *FakeStream
	depth    *FakeStream
	skeleton *FakeSkeletonStream
}

// NewFakeBackend creates a FakeBackend with no injected failures.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{}
}

// Open marks the device as powered up.
func (b *FakeBackend) Open(flags InitFlags) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Opens++
	b.LastFlags = flags
	if b.OpenError != nil {
		return b.OpenError
	}
	b.open = true
	return nil
}

// OpenColorStream returns a new FakeStream.
func (b *FakeBackend) OpenColorStream(cfg StreamConfig) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.LastColor = cfg
	if b.ColorOpenError != nil {
		return nil, b.ColorOpenError
	}
	if !b.open {
		return nil, errors.New("fake sensor not open")
	}
	b.color = NewFakeStream()
	return b.color, nil
}

// OpenDepthStream returns a new FakeStream.
func (b *FakeBackend) OpenDepthStream(cfg StreamConfig) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.LastDepth = cfg
	if b.DepthOpenError != nil {
		return nil, b.DepthOpenError
	}
	if !b.open {
		return nil, errors.New("fake sensor not open")
	}
	b.depth = NewFakeStream()
	return b.depth, nil
}

// OpenSkeletonStream returns a new FakeSkeletonStream.
func (b *FakeBackend) OpenSkeletonStream(cfg SkeletonConfig) (SkeletonStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.LastSkeleton = cfg
	if b.SkeletonOpenError != nil {
		return nil, b.SkeletonOpenError
	}
	if !b.open {
		return nil, errors.New("fake sensor not open")
	}
	b.skeleton = NewFakeSkeletonStream()
	return b.skeleton, nil
}

// Shutdown releases the device and forgets all streams.
func (b *FakeBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Shutdowns++
	b.open = false
	b.color, b.depth, b.skeleton = nil, nil, nil
	return b.ShutdownError
}

// IsOpen reports whether the device is powered up.
func (b *FakeBackend) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// OpenStreams returns the number of streams currently held open.
func (b *FakeBackend) OpenStreams() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	if b.color != nil {
		n++
	}
	if b.depth != nil {
		n++
	}
	if b.skeleton != nil {
		n++
	}
	return n
}

// PushVideo queues a color frame. It reports false if the color stream is
// not open.
func (b *FakeBackend) PushVideo(raw *RawFrame) bool {
	b.mu.Lock()
	s := b.color
	b.mu.Unlock()
	if s == nil {
		return false
	}
	s.Push(raw)
	return true
}

// PushDepth queues a depth frame. It reports false if the depth stream is
// not open.
func (b *FakeBackend) PushDepth(raw *RawFrame) bool {
	b.mu.Lock()
	s := b.depth
	b.mu.Unlock()
	if s == nil {
		return false
	}
	s.Push(raw)
	return true
}

// PushSkeleton queues a skeleton frame. It reports false if the skeleton
// stream is not open.
func (b *FakeBackend) PushSkeleton(f SkeletonFrame) bool {
	b.mu.Lock()
	s := b.skeleton
	b.mu.Unlock()
	if s == nil {
		return false
	}
	s.Push(f)
	return true
}

// ColorStream returns the open color stream, or nil.
func (b *FakeBackend) ColorStream() *FakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.color
}

// DepthStream returns the open depth stream, or nil.
func (b *FakeBackend) DepthStream() *FakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depth
}

// signal sets a ready channel without blocking, like an auto-reset event.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// FakeStream is a queue-backed Stream.
type FakeStream struct {
	mu       sync.Mutex
	ready    chan struct{}
	pending  []*RawFrame
	released int
	nextErr  error
}

// NewFakeStream creates an empty FakeStream.
func NewFakeStream() *FakeStream {
	return &FakeStream{ready: make(chan struct{}, 1)}
}

// Push queues a frame and signals readiness.
func (s *FakeStream) Push(raw *RawFrame) {
	s.mu.Lock()
	s.pending = append(s.pending, raw)
	s.mu.Unlock()
	signal(s.ready)
}

// FailNext makes the next NextFrame call return err and signals readiness.
func (s *FakeStream) FailNext(err error) {
	s.mu.Lock()
	s.nextErr = err
	s.mu.Unlock()
	signal(s.ready)
}

// Ready implements Stream.
func (s *FakeStream) Ready() <-chan struct{} { return s.ready }

// NextFrame pops the oldest queued frame.
func (s *FakeStream) NextFrame() (*RawFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextErr != nil {
		err := s.nextErr
		s.nextErr = nil
		if len(s.pending) > 0 {
			signal(s.ready)
		}
		return nil, err
	}
	if len(s.pending) == 0 {
		return nil, ErrFrameUnavailable
	}
	raw := s.pending[0]
	s.pending = s.pending[1:]
	if len(s.pending) > 0 {
		signal(s.ready)
	}
	return raw, nil
}

// ReleaseFrame counts the release.
func (s *FakeStream) ReleaseFrame(*RawFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
	return nil
}

// Released returns the number of frames handed back.
func (s *FakeStream) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// FakeSkeletonStream is a queue-backed SkeletonStream.
type FakeSkeletonStream struct {
	mu      sync.Mutex
	ready   chan struct{}
	pending []SkeletonFrame
}

// NewFakeSkeletonStream creates an empty FakeSkeletonStream.
func NewFakeSkeletonStream() *FakeSkeletonStream {
	return &FakeSkeletonStream{ready: make(chan struct{}, 1)}
}

// Push queues a skeleton frame and signals readiness.
func (s *FakeSkeletonStream) Push(f SkeletonFrame) {
	s.mu.Lock()
	s.pending = append(s.pending, f)
	s.mu.Unlock()
	signal(s.ready)
}

// Ready implements SkeletonStream.
func (s *FakeSkeletonStream) Ready() <-chan struct{} { return s.ready }

// NextSkeletonFrame pops the oldest queued skeleton frame.
func (s *FakeSkeletonStream) NextSkeletonFrame() (SkeletonFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return SkeletonFrame{}, ErrFrameUnavailable
	}
	f := s.pending[0]
	s.pending = s.pending[1:]
	if len(s.pending) > 0 {
		signal(s.ready)
	}
	return f, nil
}
