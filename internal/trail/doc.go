// Package trail converts a stream of 3D position samples into a bounded,
// smoothed, speed-coloured line strip that a renderer can draw every frame.
//
// Data flow per tracked object:
//
//	sample -> ControlPointBuffer.Push -> CurveSmoother.Resample
//	       -> colour per dense point -> TrailRenderBuffer (in place)
//
// Everything in this package is single-threaded: a Trail is owned by one
// render/update loop and is never locked. Buffers are sized once from Config
// and reused for the lifetime of the Trail, so Push and Update do not
// allocate.
package trail
