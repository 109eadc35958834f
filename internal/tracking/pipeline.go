package tracking

import (
	"github.com/banshee-data/headtrack/internal/facetrack"
	"github.com/banshee-data/headtrack/internal/hint"
	"github.com/banshee-data/headtrack/internal/sensor"
	"github.com/banshee-data/headtrack/internal/skeleton"
)

// stepResult is the outcome of one pipeline step.
type stepResult struct {
	Hint     *hint.Hint
	Slot     int
	Tracked  int
	Attempt  facetrack.Attempt
	Skeleton bool // a new skeleton frame was applied
}

// pipeline holds the per-session state fed by the caller goroutine:
// skeleton slots, the persistent hint and the engine session.
type pipeline struct {
	skeletons *skeleton.Tracker
	selector  *hint.Selector
	session   *facetrack.Session
}

func newPipeline(engine facetrack.Engine) *pipeline {
	return &pipeline{
		skeletons: skeleton.NewTracker(),
		selector:  hint.NewSelector(),
		session:   facetrack.NewSession(engine),
	}
}

// step applies skel (when non-nil), selects a hint and runs one tracking
// attempt on data. Without a tracked slot the engine runs unseeded while
// the selector keeps its previous hint.
func (p *pipeline) step(data *sensor.SensorData, skel *sensor.SkeletonFrame) stepResult {
	var res stepResult
	if skel != nil {
		p.skeletons.Apply(skel)
		res.Skeleton = true
	}
	records := p.skeletons.Records()
	res.Tracked = p.skeletons.TrackedCount()

	res.Slot = -1
	if h, slot, ok := p.selector.Next(&records); ok {
		res.Hint = &h
		res.Slot = slot
	}
	res.Attempt = p.session.Update(data, res.Hint)
	return res
}

// close releases the pipeline in reverse acquisition order.
func (p *pipeline) close() error {
	err := p.session.Close()
	p.selector.Reset()
	p.skeletons.Reset()
	return err
}
