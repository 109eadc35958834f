// Package sensor owns the hardware layer of the head tracking pipeline.
//
// Responsibilities: opening the color, depth and skeleton streams of a
// motion-sensing camera through a Backend, running the capture goroutine
// that copies ready frames into double-buffered owned frames, and handing
// skeleton frames over through a single-slot latest-wins Mailbox.
// Key types: Backend, FrameSource, Frame, SkeletonFrame, SensorData.
//
// Dependency rule: sensor depends on nothing else in the pipeline; skeleton,
// hint, facetrack and tracking build on top of it.
package sensor
