// Package facetrack drives a face tracking engine frame by frame.
//
// Responsibilities: choosing between starting a fresh track and continuing
// the previous one, judging success from both the engine call and the
// engine's result status, and invalidating the result on failure.
// Key types: Engine, Session, Result, Attempt.
//
// Dependency rule: facetrack may depend on sensor and hint, but never on
// tracking. The engine itself is opaque; SimEngine and MockEngine are the
// in-tree implementations.
package facetrack
