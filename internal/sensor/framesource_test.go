package sensor

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/headtrack/internal/timeutil"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

// smallConfig uses tiny frames so tests can build payloads by hand.
func smallConfig() Config {
	return Config{
		Color:        StreamConfig{Resolution: Resolution{Width: 4, Height: 2}, Format: FormatB8G8R8X8, BufferCount: DefaultBufferCount},
		Depth:        StreamConfig{Resolution: Resolution{Width: 2, Height: 2}, Format: FormatD13P3, NearMode: true, BufferCount: DefaultBufferCount},
		Skeleton:     SkeletonConfig{NearRange: true, Seated: true},
		PollInterval: 100 * time.Millisecond,
	}
}

func openSource(t *testing.T, b *FakeBackend, opts ...Option) *FrameSource {
	t.Helper()
	fs := NewFrameSource(b, opts...)
	require.NoError(t, fs.Open(smallConfig()))
	t.Cleanup(func() { _ = fs.Close() })
	return fs
}

func colorPayload(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 4*2*4)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, Resolution{Width: 640, Height: 480}, cfg.Color.Resolution)
	assert.Equal(t, FormatB8G8R8X8, cfg.Color.Format)
	assert.Equal(t, Resolution{Width: 320, Height: 240}, cfg.Depth.Resolution)
	assert.Equal(t, FormatD13P3, cfg.Depth.Format)
	assert.True(t, cfg.Depth.NearMode)
	assert.Equal(t, DefaultBufferCount, cfg.Color.BufferCount)
	assert.Equal(t, SkeletonConfig{NearRange: true, Seated: true}, cfg.Skeleton)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.NoError(t, cfg.validate())
}

func TestFrameSource_OpenRequestsStreams(t *testing.T) {
	b := NewFakeBackend()
	fs := openSource(t, b)

	assert.Equal(t, InitFlags{Color: true, Depth: true, Skeleton: true}, b.LastFlags)
	assert.Equal(t, smallConfig().Color, b.LastColor)
	assert.Equal(t, smallConfig().Depth, b.LastDepth)
	assert.Equal(t, smallConfig().Skeleton, b.LastSkeleton)
	assert.Equal(t, 3, b.OpenStreams())
	assert.True(t, fs.Stats().Running)
}

func TestFrameSource_OpenFailuresRollBack(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		setup   func(b *FakeBackend)
		wantErr error
	}{
		{"device", func(b *FakeBackend) { b.OpenError = boom }, ErrHardwareUnavailable},
		{"skeleton", func(b *FakeBackend) { b.SkeletonOpenError = boom }, ErrStreamOpenFailed},
		{"color", func(b *FakeBackend) { b.ColorOpenError = boom }, ErrStreamOpenFailed},
		{"depth", func(b *FakeBackend) { b.DepthOpenError = boom }, ErrStreamOpenFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := NewFakeBackend()
			tt.setup(b)
			fs := NewFrameSource(b)

			err := fs.Open(smallConfig())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, boom)

			assert.False(t, b.IsOpen())
			assert.Equal(t, 0, b.OpenStreams())
			assert.Equal(t, 1, b.Shutdowns)
			assert.False(t, fs.Stats().Running)

			_, ok := fs.LatestVideoFrame()
			assert.False(t, ok)
			assert.NoError(t, fs.Close())
			assert.Equal(t, 1, b.Shutdowns, "Close after failed Open must not touch the backend")
		})
	}
}

func TestFrameSource_OpenInvalidConfig(t *testing.T) {
	b := NewFakeBackend()
	fs := NewFrameSource(b)
	cfg := smallConfig()
	cfg.PollInterval = 0

	err := fs.Open(cfg)
	assert.ErrorIs(t, err, ErrStreamOpenFailed)
	assert.Equal(t, 0, b.Opens)
}

func TestFrameSource_NoFrameBeforeFirstCapture(t *testing.T) {
	fs := openSource(t, NewFakeBackend())

	_, ok := fs.LatestVideoFrame()
	assert.False(t, ok)
	_, ok = fs.LatestDepthFrame()
	assert.False(t, ok)
	_, ok = fs.TakeSkeletonFrame()
	assert.False(t, ok)
}

func TestFrameSource_CopiesVideo(t *testing.T) {
	b := NewFakeBackend()
	fs := openSource(t, b)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, b.PushVideo(&RawFrame{FrameNumber: 7, Timestamp: ts, Pitch: 16, Data: colorPayload(0xAB)}))
	require.Eventually(t, func() bool { return fs.Stats().VideoFrames == 1 }, waitFor, tick)

	f, ok := fs.LatestVideoFrame()
	require.True(t, ok)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 2, f.Height)
	assert.Equal(t, FormatB8G8R8X8, f.Format)
	assert.Equal(t, uint64(1), f.Seq)
	assert.Equal(t, ts, f.Timestamp)
	assert.Equal(t, colorPayload(0xAB), f.Pix)

	require.Eventually(t, func() bool { return b.ColorStream().Released() == 1 }, waitFor, tick)
}

func TestFrameSource_DoubleBufferAdvancesSeq(t *testing.T) {
	b := NewFakeBackend()
	fs := openSource(t, b)

	for i := byte(1); i <= 3; i++ {
		require.True(t, b.PushVideo(&RawFrame{FrameNumber: uint32(i), Pitch: 16, Data: colorPayload(i)}))
	}
	require.Eventually(t, func() bool { return fs.Stats().VideoFrames == 3 }, waitFor, tick)

	f, ok := fs.LatestVideoFrame()
	require.True(t, ok)
	assert.Equal(t, uint64(3), f.Seq)
	assert.Equal(t, colorPayload(3), f.Pix)
	assert.False(t, f.Timestamp.IsZero(), "missing driver timestamp falls back to the clock")
}

func TestFrameSource_CopiesDepth(t *testing.T) {
	b := NewFakeBackend()
	fs := openSource(t, b)

	data := make([]byte, 2*2*2)
	v := EncodeDepth(1234, 2)
	data[6], data[7] = byte(v), byte(v>>8)
	require.True(t, b.PushDepth(&RawFrame{FrameNumber: 1, Pitch: 4, Data: data}))
	require.Eventually(t, func() bool { return fs.Stats().DepthFrames == 1 }, waitFor, tick)

	f, ok := fs.LatestDepthFrame()
	require.True(t, ok)
	mm, player, err := f.DepthAt(1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), mm)
	assert.Equal(t, uint8(2), player)
}

func TestFrameSource_SkipsBadFrames(t *testing.T) {
	b := NewFakeBackend()
	fs := openSource(t, b)

	require.True(t, b.PushVideo(&RawFrame{FrameNumber: 1, Pitch: 0, Data: colorPayload(1)}))
	require.True(t, b.PushVideo(&RawFrame{FrameNumber: 2, Pitch: 16, Data: []byte{1, 2, 3}}))
	b.ColorStream().FailNext(errors.New("driver hiccup"))

	require.Eventually(t, func() bool { return fs.Stats().CopyFailures == 3 }, waitFor, tick)

	_, ok := fs.LatestVideoFrame()
	assert.False(t, ok, "failed copies must not publish a frame")
	assert.Equal(t, uint64(0), fs.Stats().VideoFrames)
	assert.Equal(t, 2, b.ColorStream().Released(), "fetched frames are released even when the copy fails")

	require.True(t, b.PushVideo(&RawFrame{FrameNumber: 3, Pitch: 16, Data: colorPayload(9)}))
	require.Eventually(t, func() bool { return fs.Stats().VideoFrames == 1 }, waitFor, tick)
}

func TestFrameSource_SkeletonMailboxLatestWins(t *testing.T) {
	b := NewFakeBackend()
	fs := openSource(t, b)

	require.True(t, b.PushSkeleton(SkeletonFrame{FrameNumber: 1}))
	require.True(t, b.PushSkeleton(SkeletonFrame{FrameNumber: 2}))
	require.Eventually(t, func() bool { return fs.Stats().SkeletonFrames == 2 }, waitFor, tick)

	f, ok := fs.TakeSkeletonFrame()
	require.True(t, ok)
	assert.Equal(t, uint32(2), f.FrameNumber)
	assert.False(t, f.Timestamp.IsZero())
	assert.Equal(t, uint64(1), fs.Stats().MailboxDrops)

	_, ok = fs.TakeSkeletonFrame()
	assert.False(t, ok, "a frame is consumed exactly once")
}

func TestFrameSource_IdleWaits(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	fs := openSource(t, NewFakeBackend(), WithClock(clock))

	require.Eventually(t, func() bool {
		clock.Advance(100 * time.Millisecond)
		return fs.Stats().IdleWaits >= 3
	}, waitFor, tick)
	assert.Equal(t, uint64(0), fs.Stats().CopyFailures)
}

func TestFrameSource_CloseLatency(t *testing.T) {
	b := NewFakeBackend()
	fs := NewFrameSource(b)
	require.NoError(t, fs.Open(smallConfig()))

	// Let the loop settle into its poll wait.
	time.Sleep(30 * time.Millisecond)

	start := time.Now()
	require.NoError(t, fs.Close())
	assert.LessOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.False(t, fs.Stats().Running)
	assert.False(t, b.IsOpen())
}

func TestFrameSource_CloseIdempotent(t *testing.T) {
	b := NewFakeBackend()
	fs := NewFrameSource(b)
	assert.NoError(t, fs.Close(), "closing a never-opened source is a no-op")

	require.NoError(t, fs.Open(smallConfig()))
	require.NoError(t, fs.Close())
	require.NoError(t, fs.Close())
	assert.Equal(t, 1, b.Shutdowns)

	_, ok := fs.LatestVideoFrame()
	assert.False(t, ok)
}

func TestFrameSource_CloseReportsShutdownError(t *testing.T) {
	b := NewFakeBackend()
	fs := NewFrameSource(b)
	require.NoError(t, fs.Open(smallConfig()))

	b.ShutdownError = errors.New("usb gone")
	assert.ErrorContains(t, fs.Close(), "usb gone")
	assert.False(t, fs.Stats().Running)
}

func TestFrameSource_DoubleOpenRestarts(t *testing.T) {
	b := NewFakeBackend()
	fs := openSource(t, b)

	require.True(t, b.PushVideo(&RawFrame{FrameNumber: 1, Pitch: 16, Data: colorPayload(1)}))
	require.Eventually(t, func() bool { return fs.Stats().VideoFrames == 1 }, waitFor, tick)

	require.NoError(t, fs.Open(smallConfig()))
	assert.Equal(t, 2, b.Opens)
	assert.Equal(t, 1, b.Shutdowns)
	assert.True(t, fs.Stats().Running)
	assert.Equal(t, uint64(0), fs.Stats().VideoFrames, "counters restart with the session")

	_, ok := fs.LatestVideoFrame()
	assert.False(t, ok)

	require.True(t, b.PushVideo(&RawFrame{FrameNumber: 1, Pitch: 16, Data: colorPayload(2)}))
	require.Eventually(t, func() bool { return fs.Stats().VideoFrames == 1 }, waitFor, tick)
}
