package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// SimConfig configures the synthetic scene of a SimBackend.
type SimConfig struct {
	// People is the number of simulated people, at most SkeletonCount.
	People int
	// FrameRate is the generated frame rate in Hz. Default 30.
	FrameRate float64
	// Epoch is the timestamp of frame zero. Defaults to the Open time.
	Epoch time.Time
}

// SimBackend is a Backend that renders a deterministic scene: people walk
// on fixed parametric paths in front of the sensor and periodically step
// out of view. Frame content depends only on the frame number.
type SimBackend struct {
	cfg SimConfig

	mu       sync.Mutex
	open     bool
	epoch    time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	color    *simStream
	depth    *simStream
	skeleton *simSkeletonStream
}

// NewSimBackend creates a SimBackend.
func NewSimBackend(cfg SimConfig) *SimBackend {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.People < 0 {
		cfg.People = 0
	}
	if cfg.People > SkeletonCount {
		cfg.People = SkeletonCount
	}
	return &SimBackend{cfg: cfg}
}

// Open starts the frame generator.
func (b *SimBackend) Open(flags InitFlags) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return errors.New("simulated sensor already open")
	}
	b.epoch = b.cfg.Epoch
	if b.epoch.IsZero() {
		b.epoch = time.Now()
	}
	b.open = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.generate(b.stopCh, b.doneCh)
	return nil
}

// OpenColorStream opens a color stream filled with a static gradient.
func (b *SimBackend) OpenColorStream(cfg StreamConfig) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil, errors.New("simulated sensor not open")
	}
	if cfg.Format != FormatB8G8R8X8 {
		return nil, fmt.Errorf("unsupported color format %s", cfg.Format)
	}
	b.color = newSimStream(cfg, colorPattern(cfg.Resolution))
	return b.color, nil
}

// OpenDepthStream opens a depth stream showing a flat wall.
func (b *SimBackend) OpenDepthStream(cfg StreamConfig) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil, errors.New("simulated sensor not open")
	}
	if cfg.Format != FormatD13P3 {
		return nil, fmt.Errorf("unsupported depth format %s", cfg.Format)
	}
	wall := uint16(4000)
	if cfg.NearMode {
		wall = 3000
	}
	b.depth = newSimStream(cfg, depthPattern(cfg.Resolution, wall))
	return b.depth, nil
}

// OpenSkeletonStream opens the skeleton stream.
func (b *SimBackend) OpenSkeletonStream(cfg SkeletonConfig) (SkeletonStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil, errors.New("simulated sensor not open")
	}
	b.skeleton = &simSkeletonStream{ready: make(chan struct{}, 1)}
	return b.skeleton, nil
}

// Shutdown stops the generator and drops all streams.
func (b *SimBackend) Shutdown() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return nil
	}
	b.open = false
	stop, done := b.stopCh, b.doneCh
	b.mu.Unlock()

	close(stop)
	<-done

	b.mu.Lock()
	b.color, b.depth, b.skeleton = nil, nil, nil
	b.mu.Unlock()
	return nil
}

func (b *SimBackend) generate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	period := time.Duration(float64(time.Second) / b.cfg.FrameRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var frameNo uint32
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		frameNo++

		b.mu.Lock()
		color, depth, skel, epoch := b.color, b.depth, b.skeleton, b.epoch
		b.mu.Unlock()

		ts := epoch.Add(time.Duration(frameNo) * period)
		if color != nil {
			color.emit(frameNo, ts)
		}
		if depth != nil {
			depth.emit(frameNo, ts)
		}
		if skel != nil {
			skel.emit(SimSkeletonFrame(frameNo, b.cfg.People, b.cfg.FrameRate, ts))
		}
	}
}

// SimSkeletonFrame renders the skeleton frame the simulated scene shows at
// frameNo. Person i occupies slot (2i+1) mod SkeletonCount.
func SimSkeletonFrame(frameNo uint32, people int, frameRate float64, ts time.Time) SkeletonFrame {
	f := SkeletonFrame{FrameNumber: frameNo, Timestamp: ts}
	t := float64(frameNo) / frameRate
	for i := 0; i < people && i < SkeletonCount; i++ {
		// Each person leaves the field of view for one cycle in five.
		cycle := 90 + 17*i
		if (int(frameNo)/cycle)%5 == 4 {
			continue
		}
		phase := float64(i) * 1.3
		hip := r3.Vec{
			X: 0.8*math.Sin(0.4*t+phase) + 0.3*float64(i) - 0.6,
			Y: -0.2 + 0.02*math.Sin(4*t+phase),
			Z: 1.6 + 0.6*float64(i) + 0.3*math.Cos(0.25*t+phase),
		}
		slot := (2*i + 1) % SkeletonCount
		f.Skeletons[slot] = simSkeleton(uint32(i+1), hip)
	}
	return f
}

func simSkeleton(id uint32, hip r3.Vec) SkeletonData {
	s := SkeletonData{TrackingState: SkeletonTracked, TrackingID: id, Position: hip}
	offsets := [JointCount]r3.Vec{
		JointHipCenter:      {},
		JointSpine:          {Y: 0.1},
		JointShoulderCenter: {Y: 0.45},
		JointHead:           {Y: 0.65},
		JointShoulderLeft:   {X: -0.18, Y: 0.4},
		JointElbowLeft:      {X: -0.25, Y: 0.15},
		JointWristLeft:      {X: -0.28, Y: -0.05},
		JointHandLeft:       {X: -0.29, Y: -0.12},
		JointShoulderRight:  {X: 0.18, Y: 0.4},
		JointElbowRight:     {X: 0.25, Y: 0.15},
		JointWristRight:     {X: 0.28, Y: -0.05},
		JointHandRight:      {X: 0.29, Y: -0.12},
		JointHipLeft:        {X: -0.1, Y: -0.05},
		JointKneeLeft:       {X: -0.1, Y: -0.45},
		JointAnkleLeft:      {X: -0.1, Y: -0.85},
		JointFootLeft:       {X: -0.1, Y: -0.9, Z: -0.08},
		JointHipRight:       {X: 0.1, Y: -0.05},
		JointKneeRight:      {X: 0.1, Y: -0.45},
		JointAnkleRight:     {X: 0.1, Y: -0.85},
		JointFootRight:      {X: 0.1, Y: -0.9, Z: -0.08},
	}
	for j := range offsets {
		s.Joints[j] = r3.Add(hip, offsets[j])
		s.JointStates[j] = JointTracked
	}
	return s
}

func colorPattern(res Resolution) []byte {
	pix := make([]byte, res.Width*res.Height*4)
	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			i := (y*res.Width + x) * 4
			pix[i] = byte(x)
			pix[i+1] = byte(y)
			pix[i+2] = byte(x + y)
		}
	}
	return pix
}

func depthPattern(res Resolution, wallMM uint16) []byte {
	pix := make([]byte, res.Width*res.Height*2)
	v := EncodeDepth(wallMM, 0)
	for i := 0; i < len(pix); i += 2 {
		binary.LittleEndian.PutUint16(pix[i:], v)
	}
	return pix
}

// simStream publishes the latest generated frame; the payload is shared and
// never written after creation.
type simStream struct {
	cfg     StreamConfig
	payload []byte

	mu     sync.Mutex
	ready  chan struct{}
	latest *RawFrame
}

func newSimStream(cfg StreamConfig, payload []byte) *simStream {
	return &simStream{cfg: cfg, payload: payload, ready: make(chan struct{}, 1)}
}

func (s *simStream) emit(frameNo uint32, ts time.Time) {
	s.mu.Lock()
	s.latest = &RawFrame{
		FrameNumber: frameNo,
		Timestamp:   ts,
		Pitch:       s.cfg.Resolution.Width * s.cfg.Format.BytesPerPixel(),
		Data:        s.payload,
	}
	s.mu.Unlock()
	signal(s.ready)
}

func (s *simStream) Ready() <-chan struct{} { return s.ready }

func (s *simStream) NextFrame() (*RawFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, ErrFrameUnavailable
	}
	raw := s.latest
	s.latest = nil
	return raw, nil
}

func (s *simStream) ReleaseFrame(*RawFrame) error { return nil }

type simSkeletonStream struct {
	mu     sync.Mutex
	ready  chan struct{}
	latest *SkeletonFrame
}

func (s *simSkeletonStream) emit(f SkeletonFrame) {
	s.mu.Lock()
	s.latest = &f
	s.mu.Unlock()
	signal(s.ready)
}

func (s *simSkeletonStream) Ready() <-chan struct{} { return s.ready }

func (s *simSkeletonStream) NextSkeletonFrame() (SkeletonFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return SkeletonFrame{}, ErrFrameUnavailable
	}
	f := *s.latest
	s.latest = nil
	return f, nil
}
