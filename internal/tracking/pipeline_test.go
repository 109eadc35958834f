package tracking

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/headtrack/internal/config"
	"github.com/banshee-data/headtrack/internal/facetrack"
	"github.com/banshee-data/headtrack/internal/hint"
	"github.com/banshee-data/headtrack/internal/sensor"
)

type replayStep struct {
	Hint *hint.Hint
	Slot int
	Mode facetrack.Mode
	OK   bool
}

// replay runs a fresh pipeline over a deterministic recording: the
// simulated scene, with skeleton frames dropped every 7th frame and the
// video missing every 50th.
func replay(t *testing.T, frames int) []replayStep {
	t.Helper()
	video, depth := facetrack.CameraConfigs(config.EmptyTrackingConfig())
	engine, err := facetrack.NewSimEngine(video, depth)
	require.NoError(t, err)
	p := newPipeline(engine)

	vf := &sensor.Frame{Width: 1, Height: 1, Format: sensor.FormatB8G8R8X8, Pix: make([]byte, 4)}
	df := &sensor.Frame{Width: 1, Height: 1, Format: sensor.FormatD13P3, Pix: make([]byte, 2)}
	epoch := time.Unix(1_700_000_000, 0)

	var out []replayStep
	for n := 1; n <= frames; n++ {
		data := &sensor.SensorData{Video: vf, Depth: df, ZoomFactor: 1}
		if n%50 == 0 {
			data.Video = nil
		}
		var skel *sensor.SkeletonFrame
		if n%7 != 0 {
			f := sensor.SimSkeletonFrame(uint32(n), 3, 30, epoch.Add(time.Duration(n)*time.Second/30))
			skel = &f
		}
		res := p.step(data, skel)
		out = append(out, replayStep{Hint: res.Hint, Slot: res.Slot, Mode: res.Attempt.Mode, OK: res.Attempt.OK})
	}
	require.NoError(t, p.close())
	return out
}

func TestReplayIsDeterministic(t *testing.T) {
	first := replay(t, 600)
	second := replay(t, 600)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("replay mismatch (-first +second):\n%s", diff)
	}

	counts := map[facetrack.Mode]int{}
	for _, s := range first {
		counts[s.Mode]++
	}
	require.Positive(t, counts[facetrack.ModeStart])
	require.Positive(t, counts[facetrack.ModeContinue])
	require.Positive(t, counts[facetrack.ModeNone])
}

func TestPipelineContinuesOnlyAfterSuccess(t *testing.T) {
	steps := replay(t, 600)
	require.NotEqual(t, facetrack.ModeContinue, steps[0].Mode)
	for i := 1; i < len(steps); i++ {
		wantContinue := steps[i-1].OK && steps[i].Mode != facetrack.ModeNone
		require.Equal(t, wantContinue, steps[i].Mode == facetrack.ModeContinue, "step %d", i)
	}
}
