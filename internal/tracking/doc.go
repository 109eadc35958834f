// Package tracking is the caller-facing facade of the head tracking
// pipeline.
//
// Responsibilities: acquiring the frame source and the face tracking engine
// in order (with rollback), running one pipeline step per Update, exposing
// the pose and a status snapshot, and releasing everything on Destroy.
// Key types: Tracker, Sample, ResultSink, Status.
//
// Dependency rule: tracking sits on top of sensor, skeleton, hint and
// facetrack. Storage lives behind ResultSink; this package has no SQL.
package tracking
