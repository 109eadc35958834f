// Package observe provides the OpenTelemetry instruments recorded by the
// tracking pipeline and the Prometheus bridge used by the binary.
//
// Tests should build a Metrics with NewMetrics and an SDK MeterProvider backed
// by a ManualReader; production code uses Default, which binds to the global
// provider installed by InitProvider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all headtrack metrics.
const meterName = "github.com/banshee-data/headtrack"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
type Metrics struct {
	// CaptureFrames counts frames copied out of the sensor. Use with
	// attribute.String("stream", "video"|"depth"|"skeleton").
	CaptureFrames metric.Int64Counter

	// CopyFailures counts capture cycles skipped because a frame could not
	// be fetched or copied. Use with attribute.String("stream", ...).
	CopyFailures metric.Int64Counter

	// MailboxDrops counts skeleton frames overwritten before being consumed.
	MailboxDrops metric.Int64Counter

	// IdleWaits counts capture waits that timed out with nothing ready.
	IdleWaits metric.Int64Counter

	// TrackAttempts counts tracking engine attempts. Use with
	// attribute.String("mode", "start"|"continue"|"none") and
	// attribute.String("status", "ok"|"failed").
	TrackAttempts metric.Int64Counter

	// UpdateDuration tracks the wall time of one Update call.
	UpdateDuration metric.Float64Histogram

	// TrackedSkeletons records how many skeleton slots were tracked per update.
	TrackedSkeletons metric.Int64Histogram

	// RecorderDropped counts pose samples dropped by a full recorder queue.
	RecorderDropped metric.Int64Counter
}

// updateBuckets defines histogram bucket boundaries (in seconds) for a
// 30 Hz caller loop.
var updateBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.033, 0.05, 0.1,
}

// NewMetrics creates a fully initialised Metrics using the given
// MeterProvider. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureFrames, err = m.Int64Counter("headtrack.capture.frames",
		metric.WithDescription("Frames copied from the sensor."),
	); err != nil {
		return nil, err
	}
	if met.CopyFailures, err = m.Int64Counter("headtrack.capture.copy_failures",
		metric.WithDescription("Capture cycles skipped after a fetch or copy failure."),
	); err != nil {
		return nil, err
	}
	if met.MailboxDrops, err = m.Int64Counter("headtrack.capture.mailbox_drops",
		metric.WithDescription("Skeleton frames overwritten before being consumed."),
	); err != nil {
		return nil, err
	}
	if met.IdleWaits, err = m.Int64Counter("headtrack.capture.idle_waits",
		metric.WithDescription("Capture waits that timed out with no stream ready."),
	); err != nil {
		return nil, err
	}
	if met.TrackAttempts, err = m.Int64Counter("headtrack.track.attempts",
		metric.WithDescription("Face tracking attempts by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.UpdateDuration, err = m.Float64Histogram("headtrack.update.duration",
		metric.WithDescription("Latency of one tracking update."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(updateBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TrackedSkeletons, err = m.Int64Histogram("headtrack.skeletons.tracked",
		metric.WithDescription("Tracked skeleton slots per update."),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 4, 5, 6),
	); err != nil {
		return nil, err
	}
	if met.RecorderDropped, err = m.Int64Counter("headtrack.recorder.dropped",
		metric.WithDescription("Pose samples dropped because the recorder queue was full."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordCapture counts one frame copied from the given stream.
func (m *Metrics) RecordCapture(ctx context.Context, stream string) {
	m.CaptureFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("stream", stream)))
}

// RecordCopyFailure counts one failed capture cycle on the given stream.
func (m *Metrics) RecordCopyFailure(ctx context.Context, stream string) {
	m.CopyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stream", stream)))
}

// RecordAttempt counts one tracking attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, mode string, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.TrackAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	))
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns a Metrics bound to the global MeterProvider. Until
// InitProvider installs an SDK provider the instruments are no-ops.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// The global delegating provider does not fail instrument creation.
			panic("observe: creating default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
