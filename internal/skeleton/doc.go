// Package skeleton reduces sensor skeleton frames to per-slot head and neck
// positions.
//
// Responsibilities: deciding which of the SkeletonCount slots are usable
// for head tracking and extracting the head and shoulder-centre joints.
// Key types: Tracker, Record.
//
// Dependency rule: skeleton may depend on sensor, but never on hint,
// facetrack or tracking. No smoothing or identity tracking happens here.
package skeleton
