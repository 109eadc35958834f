// Package hint picks the skeleton that seeds the face tracking engine.
//
// With no previous hint the closest tracked person (smallest head depth)
// wins. Once a hint exists the tracked head nearest to the previous head by
// L1 distance wins, which keeps the lock on one person across frames.
// Ties go to the lowest slot index.
package hint

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/headtrack/internal/sensor"
	"github.com/banshee-data/headtrack/internal/skeleton"
)

// Hint is a neck and head position pair in camera space, in metres.
type Hint struct {
	Neck r3.Vec
	Head r3.Vec
}

// L1 returns the Manhattan distance between a and b.
func L1(a, b r3.Vec) float64 {
	return math.Abs(a.X-b.X) + math.Abs(a.Y-b.Y) + math.Abs(a.Z-b.Z)
}

// Select returns the hint chosen from records and its slot index. prev is
// the previous hint, or nil when none has been chosen yet. ok is false when
// no slot is tracked.
func Select(records *[sensor.SkeletonCount]skeleton.Record, prev *Hint) (h Hint, slot int, ok bool) {
	best := 0.0
	slot = -1
	for i := range records {
		r := &records[i]
		if !r.Tracked {
			continue
		}
		score := r.Head.Z
		if prev != nil {
			score = L1(r.Head, prev.Head)
		}
		if slot < 0 || score < best {
			best = score
			slot = i
		}
	}
	if slot < 0 {
		return Hint{}, -1, false
	}
	return Hint{Neck: records[slot].Neck, Head: records[slot].Head}, slot, true
}

// Selector keeps the hint across updates.
type Selector struct {
	prev *Hint
	slot int
}

// NewSelector returns a Selector with no previous hint.
func NewSelector() *Selector {
	return &Selector{slot: -1}
}

// Next selects the hint for the current records. On success the stored hint
// is replaced; otherwise the previous hint is kept for future frames and ok
// is false.
func (s *Selector) Next(records *[sensor.SkeletonCount]skeleton.Record) (Hint, int, bool) {
	h, slot, ok := Select(records, s.prev)
	if !ok {
		return Hint{}, -1, false
	}
	s.prev = &h
	s.slot = slot
	return h, slot, true
}

// Current returns the stored hint and the slot it came from, or nil and -1.
func (s *Selector) Current() (*Hint, int) {
	if s.prev == nil {
		return nil, -1
	}
	h := *s.prev
	return &h, s.slot
}

// Reset forgets the stored hint.
func (s *Selector) Reset() {
	s.prev = nil
	s.slot = -1
}
