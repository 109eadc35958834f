// Package recorder persists successful head tracking results to sqlite.
//
// Submit never blocks the tracking loop: samples go through a bounded queue
// to a writer goroutine that inserts them in batched transactions. Samples
// arriving while the queue is full are dropped and counted.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/headtrack/internal/config"
	"github.com/banshee-data/headtrack/internal/facetrack"
	"github.com/banshee-data/headtrack/internal/monitoring"
	"github.com/banshee-data/headtrack/internal/observe"
	"github.com/banshee-data/headtrack/internal/tracking"
	"github.com/banshee-data/headtrack/internal/version"
)

// Config tunes the writer goroutine.
type Config struct {
	// FlushInterval bounds how long a sample waits before being written.
	FlushInterval time.Duration
	// QueueSize is the capacity of the submission queue.
	QueueSize int
	// BatchSize triggers an early flush once this many samples are pending.
	BatchSize int
	// Metrics defaults to observe.Default().
	Metrics *observe.Metrics
}

// ConfigFromTracking builds a Config from a loaded TrackingConfig.
func ConfigFromTracking(cfg *config.TrackingConfig) Config {
	return Config{
		FlushInterval: cfg.GetRecordFlushInterval(),
		QueueSize:     cfg.GetRecordQueueSize(),
	}
}

func (c *Config) applyDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.Metrics == nil {
		c.Metrics = observe.Default()
	}
}

// Session is a recorded tracking session.
type Session struct {
	ID        string
	StartedAt time.Time
	Version   string
	Samples   int
}

// Stats reports the writer counters.
type Stats struct {
	Written uint64
	Dropped uint64
	Failed  uint64
}

// Recorder is a tracking.ResultSink backed by sqlite.
type Recorder struct {
	db   *sql.DB
	path string
	cfg  Config

	queue  chan tracking.Sample
	syncCh chan chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	closeMu sync.RWMutex // held for reading while submitting
	closed  bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

var (
	_ tracking.ResultSink     = (*Recorder)(nil)
	_ tracking.SessionStarter = (*Recorder)(nil)
)

// Open opens (or creates) the database at path, applies the embedded
// migrations and starts the writer goroutine.
func Open(path string, cfg Config) (*Recorder, error) {
	cfg.applyDefaults()

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open recorder database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open recorder database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	r := &Recorder{
		db:     db,
		path:   path,
		cfg:    cfg,
		queue:  make(chan tracking.Sample, cfg.QueueSize),
		syncCh: make(chan chan struct{}),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go r.run()
	monitoring.Opsf("recorder opened %s (flush=%v queue=%d)", path, cfg.FlushInterval, cfg.QueueSize)
	return r, nil
}

// StartSession inserts the session row. Samples of a session are only
// accepted by the foreign key once this has run.
func (r *Recorder) StartSession(id string, startedAt time.Time) error {
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO sessions (session_id, started_at, version) VALUES (?, ?, ?)`,
		id, startedAt.UnixNano(), version.Version,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", id, err)
	}
	return nil
}

// Submit queues s for writing without blocking. It drops s when the queue
// is full or the recorder is closed.
func (r *Recorder) Submit(s tracking.Sample) {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		r.drop()
		return
	}
	select {
	case r.queue <- s:
	default:
		r.drop()
	}
}

func (r *Recorder) drop() {
	r.dropped.Add(1)
	r.cfg.Metrics.RecorderDropped.Add(context.Background(), 1)
}

// Sync blocks until every sample submitted before the call is written.
func (r *Recorder) Sync(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case r.syncCh <- done:
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the writer counters.
func (r *Recorder) Stats() Stats {
	return Stats{Written: r.written.Load(), Dropped: r.dropped.Load(), Failed: r.failed.Load()}
}

// Close flushes pending samples, stops the writer and closes the database.
// It is safe to call more than once.
func (r *Recorder) Close() error {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return nil
	}
	r.closed = true
	r.closeMu.Unlock()

	close(r.stopCh)
	<-r.doneCh
	st := r.Stats()
	monitoring.Opsf("recorder closed: written=%d dropped=%d failed=%d", st.Written, st.Dropped, st.Failed)
	return r.db.Close()
}

func (r *Recorder) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]tracking.Sample, 0, r.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.write(batch)
		batch = batch[:0]
	}
	drain := func() {
		for {
			select {
			case s := <-r.queue:
				batch = append(batch, s)
			default:
				return
			}
		}
	}

	for {
		select {
		case s := <-r.queue:
			batch = append(batch, s)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case done := <-r.syncCh:
			drain()
			flush()
			close(done)
		case <-r.stopCh:
			drain()
			flush()
			return
		}
	}
}

const insertSample = `INSERT INTO pose_samples (
	session_id, frame_seq, recorded_at, mode, slot,
	head_x, head_y, head_z, neck_x, neck_y, neck_z,
	scale, pitch, yaw, roll, tx, ty, tz
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *Recorder) write(batch []tracking.Sample) {
	if err := r.writeTx(batch); err != nil {
		r.failed.Add(uint64(len(batch)))
		monitoring.Opsf("recorder: dropping batch of %d samples: %v", len(batch), err)
		return
	}
	r.written.Add(uint64(len(batch)))
	monitoring.Tracef("recorder wrote %d samples", len(batch))
}

func (r *Recorder) writeTx(batch []tracking.Sample) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertSample)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, s := range batch {
		p := s.Pose
		if _, err := stmt.Exec(
			s.SessionID, int64(s.FrameSeq), s.RecordedAt.UnixNano(), s.Mode.String(), s.Slot,
			s.Hint.Head.X, s.Hint.Head.Y, s.Hint.Head.Z,
			s.Hint.Neck.X, s.Hint.Neck.Y, s.Hint.Neck.Z,
			p.Scale, p.Rotation.X, p.Rotation.Y, p.Rotation.Z,
			p.Translation.X, p.Translation.Y, p.Translation.Z,
		); err != nil {
			return fmt.Errorf("insert sample for session %s: %w", s.SessionID, err)
		}
	}
	return tx.Commit()
}

// Sessions lists recorded sessions, oldest first.
func (r *Recorder) Sessions() ([]Session, error) {
	rows, err := r.db.Query(`
		SELECT s.session_id, s.started_at, s.version, COUNT(p.session_id)
		FROM sessions s
		LEFT JOIN pose_samples p ON p.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_at, s.session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var startedAt int64
		if err := rows.Scan(&s.ID, &startedAt, &s.Version, &s.Samples); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(0, startedAt)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Samples returns the samples of one session in recording order.
func (r *Recorder) Samples(sessionID string) ([]tracking.Sample, error) {
	rows, err := r.db.Query(`
		SELECT frame_seq, recorded_at, mode, slot,
			head_x, head_y, head_z, neck_x, neck_y, neck_z,
			scale, pitch, yaw, roll, tx, ty, tz
		FROM pose_samples
		WHERE session_id = ?
		ORDER BY recorded_at, rowid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []tracking.Sample
	for rows.Next() {
		s := tracking.Sample{SessionID: sessionID}
		var seq, recordedAt int64
		var mode string
		p := &s.Pose
		if err := rows.Scan(&seq, &recordedAt, &mode, &s.Slot,
			&s.Hint.Head.X, &s.Hint.Head.Y, &s.Hint.Head.Z,
			&s.Hint.Neck.X, &s.Hint.Neck.Y, &s.Hint.Neck.Z,
			&p.Scale, &p.Rotation.X, &p.Rotation.Y, &p.Rotation.Z,
			&p.Translation.X, &p.Translation.Y, &p.Translation.Z,
		); err != nil {
			return nil, err
		}
		s.FrameSeq = uint64(seq)
		s.RecordedAt = time.Unix(0, recordedAt)
		s.Mode = parseMode(mode)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func parseMode(s string) facetrack.Mode {
	switch s {
	case facetrack.ModeStart.String():
		return facetrack.ModeStart
	case facetrack.ModeContinue.String():
		return facetrack.ModeContinue
	default:
		return facetrack.ModeNone
	}
}
