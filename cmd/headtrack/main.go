// Command headtrack runs the head tracking pipeline against the simulated
// sensor and engine, exposing Prometheus metrics and debug pages over HTTP
// and optionally recording poses to sqlite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/headtrack/internal/config"
	"github.com/banshee-data/headtrack/internal/facetrack"
	"github.com/banshee-data/headtrack/internal/monitoring"
	"github.com/banshee-data/headtrack/internal/observe"
	"github.com/banshee-data/headtrack/internal/recorder"
	"github.com/banshee-data/headtrack/internal/security"
	"github.com/banshee-data/headtrack/internal/sensor"
	"github.com/banshee-data/headtrack/internal/tracking"
	"github.com/banshee-data/headtrack/internal/version"
)

var (
	configPath  = flag.String("config", "", "Tracking config file (json, yaml or toml); built-in defaults when empty")
	listen      = flag.String("listen", "", "Listen address for /metrics and /debug/ (overrides config)")
	recordPath  = flag.String("record", "", "Record poses to this sqlite file (overrides config)")
	people      = flag.Int("people", 2, "Number of simulated people (0-6)")
	duration    = flag.Duration("duration", 0, "Stop after this long; 0 runs until interrupted")
	showVersion = flag.Bool("version", false, "Print version and exit")
	verbose     = flag.Bool("v", false, "Enable the diag log stream")
)

// statusInterval is how often the status line is logged.
const statusInterval = time.Second

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	writers := monitoring.LogWriters{Ops: os.Stderr}
	if *verbose {
		writers.Diag = os.Stderr
	}
	monitoring.SetLogWriters(writers)

	cfg, err := loadConfig(*configPath, *listen, *recordPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *people < 0 || *people > sensor.SkeletonCount {
		log.Fatalf("-people must be between 0 and %d, got %d", sensor.SkeletonCount, *people)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version.Version})
	if err != nil {
		log.Fatalf("failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("metrics shutdown: %v", err)
		}
	}()

	monitoring.Opsf("%s starting", version.String())
	if err := run(ctx, cfg, *people, *duration); err != nil {
		log.Fatalf("headtrack: %v", err)
	}
	monitoring.Opsf("headtrack stopped")
}

// loadConfig reads the config file (or the defaults) and applies the flag
// overrides.
func loadConfig(path, listenAddr, record string) (*config.TrackingConfig, error) {
	cfg := config.EmptyTrackingConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadTrackingConfig(path); err != nil {
			return nil, err
		}
	}
	if listenAddr != "" {
		cfg.Listen = &listenAddr
	}
	if record != "" {
		cfg.RecordPath = &record
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if path := cfg.GetRecordPath(); path != "" {
		if err := security.ValidateRecordPath(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// run drives the tracker until ctx is done or d elapses.
func run(ctx context.Context, cfg *config.TrackingConfig, numPeople int, d time.Duration) error {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var opts []tracking.Option
	var rec *recorder.Recorder
	if path := cfg.GetRecordPath(); path != "" {
		var err error
		if rec, err = recorder.Open(path, recorder.ConfigFromTracking(cfg)); err != nil {
			return err
		}
		defer rec.Close()
		opts = append(opts, tracking.WithSink(rec))
	}

	backend := sensor.NewSimBackend(sensor.SimConfig{People: numPeople, FrameRate: 30})
	tr := tracking.New(cfg, backend, facetrack.NewSimEngine, opts...)
	if err := tr.Init(); err != nil {
		return err
	}
	defer tr.Destroy()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreDone(tr.Run(gctx))
	})

	g.Go(func() error {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				monitoring.Opsf("%s", statusLine(tr.Status()))
			}
		}
	})

	if addr := cfg.GetListen(); addr != "" {
		mux, err := newMux(tr, rec)
		if err != nil {
			return err
		}
		server := &http.Server{Addr: addr, Handler: mux}
		g.Go(func() error {
			monitoring.Opsf("serving /metrics and /debug/ on %s", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func ignoreDone(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// newMux builds the HTTP routes: Prometheus metrics plus the tracker and
// recorder debug pages.
func newMux(tr *tracking.Tracker, rec *recorder.Recorder) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.Handler())
	tr.AttachAdminRoutes(mux)
	if rec != nil {
		if err := rec.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func statusLine(st tracking.Status) string {
	slot := "-"
	if st.Slot >= 0 {
		slot = fmt.Sprintf("%d", st.Slot)
	}
	return fmt.Sprintf("state=%s mode=%s slot=%s tracked=%d ok=%d failed=%d video=%d depth=%d skeleton=%d drops=%d",
		st.State, st.LastMode, slot, st.TrackedSkeletons, st.Successes, st.Failures,
		st.Sensor.VideoFrames, st.Sensor.DepthFrames, st.Sensor.SkeletonFrames, st.Sensor.MailboxDrops)
}
