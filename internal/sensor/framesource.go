package sensor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/headtrack/internal/config"
	"github.com/banshee-data/headtrack/internal/monitoring"
	"github.com/banshee-data/headtrack/internal/observe"
	"github.com/banshee-data/headtrack/internal/timeutil"
)

// Config holds the stream setup for a FrameSource.
type Config struct {
	Color        StreamConfig
	Depth        StreamConfig
	Skeleton     SkeletonConfig
	PollInterval time.Duration // bounded wait of the capture loop
}

// DefaultConfig returns the 640x480 color / 320x240 depth near-mode setup
// with seated skeleton tracking and a 100ms poll.
func DefaultConfig() Config {
	return ConfigFromTracking(config.EmptyTrackingConfig())
}

// ConfigFromTracking builds a Config from a loaded TrackingConfig.
func ConfigFromTracking(cfg *config.TrackingConfig) Config {
	return Config{
		Color: StreamConfig{
			Resolution:  Resolution{Width: cfg.GetColorWidth(), Height: cfg.GetColorHeight()},
			Format:      FormatB8G8R8X8,
			BufferCount: DefaultBufferCount,
		},
		Depth: StreamConfig{
			Resolution:  Resolution{Width: cfg.GetDepthWidth(), Height: cfg.GetDepthHeight()},
			Format:      FormatD13P3,
			NearMode:    cfg.GetNearMode(),
			BufferCount: DefaultBufferCount,
		},
		Skeleton: SkeletonConfig{
			NearRange: cfg.GetNearMode(),
			Seated:    cfg.GetSeatedSupport(),
		},
		PollInterval: cfg.GetPollInterval(),
	}
}

func (c Config) validate() error {
	for name, s := range map[string]StreamConfig{"color": c.Color, "depth": c.Depth} {
		if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
			return fmt.Errorf("%s resolution %dx%d is invalid", name, s.Resolution.Width, s.Resolution.Height)
		}
		if s.Format.BytesPerPixel() == 0 {
			return fmt.Errorf("%s format %s is invalid", name, s.Format)
		}
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	return nil
}

// Stats is a snapshot of FrameSource counters since the last Open.
type Stats struct {
	Running        bool
	VideoFrames    uint64
	DepthFrames    uint64
	SkeletonFrames uint64
	CopyFailures   uint64
	IdleWaits      uint64
	MailboxDrops   uint64
}

// doubleBuffer holds the published (front) frame and the frame the capture
// goroutine writes next (back). Only the capture goroutine touches the back
// frame; the lock covers the swap.
type doubleBuffer struct {
	mu     sync.Mutex
	frames [2]*Frame
	front  int
	seq    uint64
	ready  bool
}

func (b *doubleBuffer) allocate(cfg StreamConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames[0] = newFrame(cfg.Resolution, cfg.Format)
	b.frames[1] = newFrame(cfg.Resolution, cfg.Format)
	b.front = 0
	b.seq = 0
	b.ready = false
}

func (b *doubleBuffer) back() *Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames[1-b.front]
}

func (b *doubleBuffer) publish(ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := 1 - b.front
	b.seq++
	b.frames[idx].Seq = b.seq
	b.frames[idx].Timestamp = ts
	b.front = idx
	b.ready = true
}

func (b *doubleBuffer) latest() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return Frame{}, false
	}
	return *b.frames[b.front], true
}

func (b *doubleBuffer) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = [2]*Frame{}
	b.ready = false
}

// FrameSource owns the sensor streams and the capture goroutine.
type FrameSource struct {
	backend Backend
	clock   timeutil.Clock
	metrics *observe.Metrics

	// lifeMu serialises Open and Close.
	lifeMu sync.Mutex
	open   bool
	stopCh chan struct{}
	doneCh chan struct{}

	video   doubleBuffer
	depth   doubleBuffer
	mailbox Mailbox

	running        atomic.Bool
	videoFrames    atomic.Uint64
	depthFrames    atomic.Uint64
	skeletonFrames atomic.Uint64
	copyFailures   atomic.Uint64
	idleWaits      atomic.Uint64
}

// Option configures a FrameSource.
type Option func(*FrameSource)

// WithClock sets the clock driving the poll timer and frame timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(fs *FrameSource) { fs.clock = c }
}

// WithMetrics sets the metrics sink. Defaults to observe.Default().
func WithMetrics(m *observe.Metrics) Option {
	return func(fs *FrameSource) { fs.metrics = m }
}

// NewFrameSource creates a closed FrameSource over backend.
func NewFrameSource(backend Backend, opts ...Option) *FrameSource {
	fs := &FrameSource{
		backend: backend,
		clock:   timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(fs)
	}
	if fs.metrics == nil {
		fs.metrics = observe.Default()
	}
	return fs
}

type streams struct {
	color    Stream
	depth    Stream
	skeleton SkeletonStream
}

// Open acquires the device and its streams and starts the capture goroutine.
// An already open source is closed first. On failure every acquired
// resource is released and the error wraps ErrHardwareUnavailable or
// ErrStreamOpenFailed.
func (fs *FrameSource) Open(cfg Config) error {
	if err := fs.Close(); err != nil {
		monitoring.Opsf("frame source: closing previous session: %v", err)
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamOpenFailed, err)
	}

	fs.lifeMu.Lock()
	defer fs.lifeMu.Unlock()

	if err := fs.backend.Open(InitFlags{Color: true, Depth: true, Skeleton: true}); err != nil {
		fs.shutdownBackend()
		return classify(ErrHardwareUnavailable, "open sensor", err)
	}

	var s streams
	var err error
	if s.skeleton, err = fs.backend.OpenSkeletonStream(cfg.Skeleton); err != nil {
		fs.shutdownBackend()
		return classify(ErrStreamOpenFailed, "open skeleton stream", err)
	}
	if s.color, err = fs.backend.OpenColorStream(cfg.Color); err != nil {
		fs.shutdownBackend()
		return classify(ErrStreamOpenFailed, "open color stream", err)
	}
	if s.depth, err = fs.backend.OpenDepthStream(cfg.Depth); err != nil {
		fs.shutdownBackend()
		return classify(ErrStreamOpenFailed, "open depth stream", err)
	}

	fs.video.allocate(cfg.Color)
	fs.depth.allocate(cfg.Depth)
	fs.mailbox.Reset()
	fs.resetCounters()

	fs.stopCh = make(chan struct{})
	fs.doneCh = make(chan struct{})
	fs.open = true
	fs.running.Store(true)
	go fs.captureLoop(fs.stopCh, fs.doneCh, s, cfg.PollInterval)

	monitoring.Opsf("frame source opened: color %dx%d, depth %dx%d near=%v, poll=%v",
		cfg.Color.Resolution.Width, cfg.Color.Resolution.Height,
		cfg.Depth.Resolution.Width, cfg.Depth.Resolution.Height, cfg.Depth.NearMode,
		cfg.PollInterval)
	return nil
}

func (fs *FrameSource) shutdownBackend() {
	if err := fs.backend.Shutdown(); err != nil {
		monitoring.Opsf("frame source: sensor shutdown after failed open: %v", err)
	}
}

// Close stops the capture goroutine, waits for it to exit and then releases
// the device. It is safe to call more than once.
func (fs *FrameSource) Close() error {
	fs.lifeMu.Lock()
	defer fs.lifeMu.Unlock()

	if !fs.open {
		return nil
	}
	fs.open = false

	close(fs.stopCh)
	<-fs.doneCh
	fs.running.Store(false)

	err := fs.backend.Shutdown()
	fs.video.release()
	fs.depth.release()
	fs.mailbox.Reset()

	monitoring.Opsf("frame source closed: video=%d depth=%d skeleton=%d copy_failures=%d",
		fs.videoFrames.Load(), fs.depthFrames.Load(), fs.skeletonFrames.Load(), fs.copyFailures.Load())
	if err != nil {
		return fmt.Errorf("sensor shutdown: %w", err)
	}
	return nil
}

// captureLoop waits on the stop signal, the three stream signals and a poll
// timer. The stop signal is re-checked after every wake-up, so shutdown
// latency is bounded by one poll interval even if a stream never goes quiet.
func (fs *FrameSource) captureLoop(stop <-chan struct{}, done chan<- struct{}, s streams, poll time.Duration) {
	defer close(done)

	timer := fs.clock.NewTimer(poll)
	defer timer.Stop()

	for {
		fired := false
		select {
		case <-stop:
			return
		case <-s.depth.Ready():
			fs.copyImage(s.depth, &fs.depth, "depth", &fs.depthFrames)
		case <-s.color.Ready():
			fs.copyImage(s.color, &fs.video, "video", &fs.videoFrames)
		case <-s.skeleton.Ready():
			fs.takeSkeleton(s.skeleton)
		case <-timer.C():
			fired = true
			fs.idleWaits.Add(1)
			fs.metrics.IdleWaits.Add(context.Background(), 1)
		}

		select {
		case <-stop:
			return
		default:
		}

		if !fired && !timer.Stop() {
			select {
			case <-timer.C():
			default:
			}
		}
		timer.Reset(poll)
	}
}

func (fs *FrameSource) copyImage(s Stream, buf *doubleBuffer, stream string, counter *atomic.Uint64) {
	raw, err := s.NextFrame()
	if err != nil {
		fs.copyFailed(stream, err)
		return
	}
	defer func() {
		if err := s.ReleaseFrame(raw); err != nil {
			monitoring.Diagf("%s: release frame %d: %v", stream, raw.FrameNumber, err)
		}
	}()

	back := buf.back()
	if err := raw.CopyTo(back.Pix); err != nil {
		fs.copyFailed(stream, err)
		return
	}
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = fs.clock.Now()
	}
	buf.publish(ts)

	n := counter.Add(1)
	fs.metrics.RecordCapture(context.Background(), stream)
	monitoring.Tracef("%s frame %d copied (seq %d)", stream, raw.FrameNumber, n)
}

func (fs *FrameSource) takeSkeleton(s SkeletonStream) {
	frame, err := s.NextSkeletonFrame()
	if err != nil {
		fs.copyFailed("skeleton", err)
		return
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = fs.clock.Now()
	}
	if fs.mailbox.Put(frame) {
		fs.metrics.MailboxDrops.Add(context.Background(), 1)
	}
	fs.skeletonFrames.Add(1)
	fs.metrics.RecordCapture(context.Background(), "skeleton")
	monitoring.Tracef("skeleton frame %d queued", frame.FrameNumber)
}

func (fs *FrameSource) copyFailed(stream string, err error) {
	fs.copyFailures.Add(1)
	fs.metrics.RecordCopyFailure(context.Background(), stream)
	monitoring.Diagf("%s capture skipped: %v", stream, err)
}

func (fs *FrameSource) resetCounters() {
	fs.videoFrames.Store(0)
	fs.depthFrames.Store(0)
	fs.skeletonFrames.Store(0)
	fs.copyFailures.Store(0)
	fs.idleWaits.Store(0)
}

// LatestVideoFrame returns the most recent complete color frame. ok is false
// until the first frame has been captured. Pix stays valid until the next
// color capture cycle.
func (fs *FrameSource) LatestVideoFrame() (Frame, bool) {
	return fs.video.latest()
}

// LatestDepthFrame returns the most recent complete depth frame. ok is false
// until the first frame has been captured.
func (fs *FrameSource) LatestDepthFrame() (Frame, bool) {
	return fs.depth.latest()
}

// TakeSkeletonFrame consumes the latest skeleton frame, if one arrived since
// the previous call.
func (fs *FrameSource) TakeSkeletonFrame() (SkeletonFrame, bool) {
	return fs.mailbox.Take()
}

// Stats returns a snapshot of the capture counters.
func (fs *FrameSource) Stats() Stats {
	return Stats{
		Running:        fs.running.Load(),
		VideoFrames:    fs.videoFrames.Load(),
		DepthFrames:    fs.depthFrames.Load(),
		SkeletonFrames: fs.skeletonFrames.Load(),
		CopyFailures:   fs.copyFailures.Load(),
		IdleWaits:      fs.idleWaits.Load(),
		MailboxDrops:   fs.mailbox.Drops(),
	}
}
