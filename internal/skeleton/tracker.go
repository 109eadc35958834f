package skeleton

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/headtrack/internal/sensor"
)

// Record is the head tracking view of one skeleton slot. Head and Neck are
// the zero vector when Tracked is false.
type Record struct {
	Head    r3.Vec
	Neck    r3.Vec
	Tracked bool
}

// Tracker holds one Record per sensor skeleton slot. It is owned by the
// caller goroutine and is not safe for concurrent use.
type Tracker struct {
	records [sensor.SkeletonCount]Record
	frame   uint32
}

// NewTracker returns a Tracker with every slot untracked.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Apply recomputes every slot from frame. A slot is tracked iff both its
// head and shoulder-centre joints are reported as tracked.
func (t *Tracker) Apply(frame *sensor.SkeletonFrame) {
	t.frame = frame.FrameNumber
	for i := range frame.Skeletons {
		s := &frame.Skeletons[i]
		if !s.JointTracked(sensor.JointHead) || !s.JointTracked(sensor.JointShoulderCenter) {
			t.records[i] = Record{}
			continue
		}
		t.records[i] = Record{
			Head:    s.Joints[sensor.JointHead],
			Neck:    s.Joints[sensor.JointShoulderCenter],
			Tracked: true,
		}
	}
}

// Records returns a copy of the slot table.
func (t *Tracker) Records() [sensor.SkeletonCount]Record {
	return t.records
}

// TrackedCount returns the number of tracked slots.
func (t *Tracker) TrackedCount() int {
	n := 0
	for i := range t.records {
		if t.records[i].Tracked {
			n++
		}
	}
	return n
}

// FrameNumber returns the sensor frame number of the last applied frame.
func (t *Tracker) FrameNumber() uint32 {
	return t.frame
}

// Reset marks every slot untracked.
func (t *Tracker) Reset() {
	t.records = [sensor.SkeletonCount]Record{}
	t.frame = 0
}
