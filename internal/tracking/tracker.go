package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/headtrack/internal/config"
	"github.com/banshee-data/headtrack/internal/facetrack"
	"github.com/banshee-data/headtrack/internal/hint"
	"github.com/banshee-data/headtrack/internal/monitoring"
	"github.com/banshee-data/headtrack/internal/observe"
	"github.com/banshee-data/headtrack/internal/sensor"
	"github.com/banshee-data/headtrack/internal/timeutil"
)

// Sample is one successful tracking result handed to a ResultSink.
type Sample struct {
	SessionID  string
	FrameSeq   uint64 // sequence number of the video frame tracked
	RecordedAt time.Time
	Mode       facetrack.Mode
	Slot       int
	Hint       hint.Hint
	Pose       facetrack.Pose
}

// ResultSink receives successful tracking results. Submit is called on the
// caller goroutine and must not block.
type ResultSink interface {
	Submit(Sample)
}

// SessionStarter is implemented by sinks that want to know when Init
// starts a new tracking session.
type SessionStarter interface {
	StartSession(id string, startedAt time.Time) error
}

// Status is a snapshot of the tracker, safe to read from any goroutine.
type Status struct {
	Initialized      bool            `json:"initialized"`
	SessionID        string          `json:"session_id,omitempty"`
	State            facetrack.State `json:"state"`
	LastMode         facetrack.Mode  `json:"last_mode"`
	LastError        string          `json:"last_error,omitempty"`
	Hint             *hint.Hint      `json:"hint,omitempty"`
	Slot             int             `json:"slot"`
	TrackedSkeletons int             `json:"tracked_skeletons"`
	Updates          uint64          `json:"updates"`
	Successes        uint64          `json:"successes"`
	Failures         uint64          `json:"failures"`
	LastUpdate       time.Time       `json:"last_update,omitzero"`
	Sensor           sensor.Stats    `json:"sensor"`
}

// Tracker owns the whole pipeline for one sensor. Init, Update, Result and
// Destroy must be called from a single goroutine; Status and
// AttachAdminRoutes may be used from any goroutine.
type Tracker struct {
	cfg     *config.TrackingConfig
	backend sensor.Backend
	factory facetrack.EngineFactory
	sink    ResultSink
	metrics *observe.Metrics
	clock   timeutil.Clock

	source *sensor.FrameSource
	pipe   *pipeline
	data   sensor.SensorData
	video  sensor.Frame
	depth  sensor.Frame

	mu     sync.Mutex // guards status and live
	status Status
	live   *sensor.FrameSource
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSink sets the sink receiving successful results.
func WithSink(s ResultSink) Option {
	return func(t *Tracker) { t.sink = s }
}

// WithMetrics sets the metrics sink. Defaults to observe.Default().
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithClock sets the clock used for timestamps and the capture poll timer.
func WithClock(c timeutil.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// New creates an uninitialised Tracker. A nil cfg uses the built-in
// defaults.
func New(cfg *config.TrackingConfig, backend sensor.Backend, factory facetrack.EngineFactory, opts ...Option) *Tracker {
	if cfg == nil {
		cfg = config.EmptyTrackingConfig()
	}
	t := &Tracker{
		cfg:     cfg,
		backend: backend,
		factory: factory,
		clock:   timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = observe.Default()
	}
	t.status.Slot = -1
	return t
}

// Init acquires the frame source and the engine. An initialised tracker is
// destroyed first. On failure everything acquired so far is released and
// an *InitializationError is returned.
func (t *Tracker) Init() error {
	t.Destroy()

	source := sensor.NewFrameSource(t.backend, sensor.WithClock(t.clock), sensor.WithMetrics(t.metrics))
	if err := source.Open(sensor.ConfigFromTracking(t.cfg)); err != nil {
		return &InitializationError{Stage: StageFrameSource, Err: err}
	}

	video, depth := facetrack.CameraConfigs(t.cfg)
	engine, err := t.factory(video, depth)
	if err == nil && engine == nil {
		err = errors.New("factory returned no engine")
	}
	if err != nil {
		if cerr := source.Close(); cerr != nil {
			monitoring.Opsf("tracking: releasing frame source after engine failure: %v", cerr)
		}
		if !errors.Is(err, facetrack.ErrEngineInitFailed) {
			err = fmt.Errorf("%w: %w", facetrack.ErrEngineInitFailed, err)
		}
		return &InitializationError{Stage: StageEngine, Err: err}
	}

	t.source = source
	t.pipe = newPipeline(engine)
	zx, zy := t.cfg.GetViewOffset()
	t.data = sensor.SensorData{ZoomFactor: t.cfg.GetZoomFactor()}
	t.data.ViewOffset.X, t.data.ViewOffset.Y = zx, zy

	id := uuid.NewString()
	now := t.clock.Now()
	t.mu.Lock()
	t.status = Status{Initialized: true, SessionID: id, Slot: -1}
	t.live = source
	t.mu.Unlock()

	if s, ok := t.sink.(SessionStarter); ok {
		if err := s.StartSession(id, now); err != nil {
			monitoring.Opsf("tracking: sink refused session %s: %v", id, err)
		}
	}
	monitoring.Opsf("tracking session %s started", id)
	return nil
}

// Update runs one pipeline step on the latest captured data. It never
// fails: per-frame problems show up as LastTrackSucceeded() == false. It is
// a no-op before Init and after Destroy.
func (t *Tracker) Update() {
	if t.pipe == nil {
		return
	}
	ctx := context.Background()
	start := t.clock.Now()

	t.data.Video, t.data.Depth = nil, nil
	if f, ok := t.source.LatestVideoFrame(); ok {
		t.video = f
		t.data.Video = &t.video
	}
	if f, ok := t.source.LatestDepthFrame(); ok {
		t.depth = f
		t.data.Depth = &t.depth
	}
	var skel *sensor.SkeletonFrame
	if f, ok := t.source.TakeSkeletonFrame(); ok {
		skel = &f
	}

	res := t.pipe.step(&t.data, skel)
	ok := res.Attempt.OK

	if ok && t.sink != nil {
		s := Sample{
			SessionID:  t.SessionID(),
			RecordedAt: t.clock.Now(),
			Mode:       res.Attempt.Mode,
			Slot:       res.Slot,
			Pose:       t.pipe.session.Result().Pose,
		}
		if t.data.Video != nil {
			s.FrameSeq = t.data.Video.Seq
		}
		if res.Hint != nil {
			s.Hint = *res.Hint
		}
		t.sink.Submit(s)
	}

	t.metrics.RecordAttempt(ctx, res.Attempt.Mode.String(), ok)
	t.metrics.TrackedSkeletons.Record(ctx, int64(res.Tracked))
	t.metrics.UpdateDuration.Record(ctx, t.clock.Since(start).Seconds())

	t.mu.Lock()
	st := &t.status
	st.Updates++
	if ok {
		st.Successes++
		st.LastError = ""
	} else {
		st.Failures++
		if res.Attempt.Err != nil {
			st.LastError = res.Attempt.Err.Error()
		}
	}
	st.State = t.pipe.session.State()
	st.LastMode = res.Attempt.Mode
	st.Hint, st.Slot = t.pipe.selector.Current()
	st.TrackedSkeletons = res.Tracked
	st.LastUpdate = start
	t.mu.Unlock()
}

// Run calls Update at the configured update rate until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	period := time.Duration(float64(time.Second) / t.cfg.GetUpdateRateHz())
	timer := t.clock.NewTimer(period)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C():
			t.Update()
			timer.Reset(period)
		}
	}
}

// LastTrackSucceeded reports whether the last Update produced a pose.
func (t *Tracker) LastTrackSucceeded() bool {
	return t.pipe != nil && t.pipe.session.LastTrackSucceeded()
}

// Result returns a copy of the last pose, or nil unless the last Update
// succeeded.
func (t *Tracker) Result() *facetrack.Result {
	if !t.LastTrackSucceeded() {
		return nil
	}
	return t.pipe.session.Result().Clone()
}

// SessionID returns the id of the current session, or "" when not
// initialised.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.SessionID
}

// Status returns a snapshot of the tracker.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.status
	if st.Hint != nil {
		h := *st.Hint
		st.Hint = &h
	}
	if t.live != nil {
		st.Sensor = t.live.Stats()
	}
	return st
}

// Destroy releases the engine, the skeleton state and the frame source in
// reverse acquisition order. It is safe to call more than once and after a
// failed Init.
func (t *Tracker) Destroy() {
	if t.pipe == nil && t.source == nil {
		return
	}
	if t.pipe != nil {
		if err := t.pipe.close(); err != nil {
			monitoring.Opsf("tracking: closing engine: %v", err)
		}
		t.pipe = nil
	}
	if t.source != nil {
		if err := t.source.Close(); err != nil {
			monitoring.Opsf("tracking: closing frame source: %v", err)
		}
		t.source = nil
	}
	t.data = sensor.SensorData{}
	t.video, t.depth = sensor.Frame{}, sensor.Frame{}

	t.mu.Lock()
	id := t.status.SessionID
	t.status = Status{Slot: -1}
	t.live = nil
	t.mu.Unlock()
	monitoring.Opsf("tracking session %s destroyed", id)
}
