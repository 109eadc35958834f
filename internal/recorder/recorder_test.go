package recorder

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/headtrack/internal/config"
	"github.com/banshee-data/headtrack/internal/facetrack"
	"github.com/banshee-data/headtrack/internal/hint"
	"github.com/banshee-data/headtrack/internal/testutil"
	"github.com/banshee-data/headtrack/internal/tracking"
	"github.com/banshee-data/headtrack/internal/version"
)

func openTemp(t *testing.T, cfg Config) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poses.db")
	r, err := Open(path, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, path
}

func sample(session string, seq uint64, at time.Time) tracking.Sample {
	head := r3.Vec{X: 0.1 * float64(seq), Y: 0.5, Z: 1.5}
	return tracking.Sample{
		SessionID:  session,
		FrameSeq:   seq,
		RecordedAt: at,
		Mode:       facetrack.ModeContinue,
		Slot:       3,
		Hint:       hint.Hint{Head: head, Neck: r3.Sub(head, r3.Vec{Y: 0.2})},
		Pose: facetrack.Pose{
			Scale:       1,
			Rotation:    r3.Vec{X: -2, Y: 15, Z: 0.5},
			Translation: head,
		},
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	r, path := openTemp(t, Config{})
	v, dirty, err := schemaVersion(r.db)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(SchemaVersion), v)

	// Reopening an existing database is a no-op migration.
	require.NoError(t, r.Close())
	again, err := Open(path, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = again.Close() })
	v, _, err = schemaVersion(again.db)
	require.NoError(t, err)
	assert.Equal(t, uint(SchemaVersion), v)
}

func TestRoundTrip(t *testing.T) {
	r, _ := openTemp(t, Config{FlushInterval: time.Hour})
	start := time.Unix(1_700_000_000, 0)
	require.NoError(t, r.StartSession("s1", start))

	var want []tracking.Sample
	for i := uint64(1); i <= 5; i++ {
		s := sample("s1", i, start.Add(time.Duration(i)*33*time.Millisecond))
		if i == 1 {
			s.Mode = facetrack.ModeStart
		}
		want = append(want, s)
		r.Submit(s)
	}
	require.NoError(t, r.Sync(context.Background()))

	got, err := r.Samples("s1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Stats{Written: 5}, r.Stats())

	sessions, err := r.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.True(t, sessions[0].StartedAt.Equal(start))
	assert.Equal(t, version.Version, sessions[0].Version)
	assert.Equal(t, 5, sessions[0].Samples)
}

func TestBatchFlushWithoutSync(t *testing.T) {
	r, _ := openTemp(t, Config{FlushInterval: time.Hour, BatchSize: 4})
	require.NoError(t, r.StartSession("s1", time.Now()))
	for i := uint64(0); i < 4; i++ {
		r.Submit(sample("s1", i, time.Unix(0, int64(i))))
	}
	require.Eventually(t, func() bool { return r.Stats().Written == 4 }, 2*time.Second, 5*time.Millisecond)
}

func TestIntervalFlush(t *testing.T) {
	r, _ := openTemp(t, Config{FlushInterval: 10 * time.Millisecond})
	require.NoError(t, r.StartSession("s1", time.Now()))
	r.Submit(sample("s1", 1, time.Now()))
	require.Eventually(t, func() bool { return r.Stats().Written == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestUnknownSessionFailsBatch(t *testing.T) {
	r, _ := openTemp(t, Config{FlushInterval: time.Hour})
	r.Submit(sample("missing", 1, time.Now()))
	require.NoError(t, r.Sync(context.Background()))
	assert.Equal(t, Stats{Failed: 1}, r.Stats())
}

func TestSubmitNeverBlocks(t *testing.T) {
	r, _ := openTemp(t, Config{FlushInterval: time.Hour, QueueSize: 1, BatchSize: 1000})
	require.NoError(t, r.StartSession("s1", time.Now()))

	const n = 500
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				r.Submit(sample("s1", uint64(w*n+i), time.Unix(0, int64(w*n+i))))
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, r.Sync(context.Background()))

	st := r.Stats()
	assert.Equal(t, uint64(4*n), st.Written+st.Dropped)
	assert.Zero(t, st.Failed)
}

func TestCloseFlushesAndDropsLateSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poses.db")
	r, err := Open(path, Config{FlushInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, r.StartSession("s1", time.Now()))
	r.Submit(sample("s1", 1, time.Now()))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	r.Submit(sample("s1", 2, time.Now()))
	assert.Equal(t, uint64(1), r.Stats().Written)
	assert.Equal(t, uint64(1), r.Stats().Dropped)
	assert.NoError(t, r.Sync(context.Background()), "sync after close returns at once")

	reopened, err := Open(path, Config{})
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Samples("s1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestConfigFromTracking(t *testing.T) {
	cfg := ConfigFromTracking(config.EmptyTrackingConfig())
	assert.Equal(t, time.Second, cfg.FlushInterval)
	assert.Equal(t, 256, cfg.QueueSize)
}

func TestAttachAdminRoutes(t *testing.T) {
	r, _ := openTemp(t, Config{})
	require.NoError(t, r.StartSession("s1", time.Unix(10, 0)))

	mux := http.NewServeMux()
	require.NoError(t, r.AttachAdminRoutes(mux))

	rec := testutil.ServeDebug(t, mux, http.MethodGet, "/debug/recorder")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions []Session `json:"sessions"`
	}
	testutil.DecodeJSON(t, rec, &body)
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "s1", body.Sessions[0].ID)
}
