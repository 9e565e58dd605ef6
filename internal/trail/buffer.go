package trail

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// speedAlpha is the EMA weight of the newest raw displacement.
	speedAlpha = 0.15

	// minSegmentLengthSq drops duplicate or stationary samples.
	minSegmentLengthSq = 1e-8
)

// ControlPoint is one stored trail vertex.
type ControlPoint struct {
	Position r3.Vec

	// IncomingSegmentLength is the distance from the previous point. It is
	// only counted towards the arc length for points that are not the head.
	IncomingSegmentLength float32

	// SmoothedSpeed is the EMA of raw displacement at the time the point
	// was appended.
	SmoothedSpeed float32
}

// ControlPoints is a read-only ordered view, index 0 oldest.
type ControlPoints interface {
	Len() int
	At(i int) ControlPoint
}

// ControlPointSlice adapts a plain slice to ControlPoints.
type ControlPointSlice []ControlPoint

func (s ControlPointSlice) Len() int              { return len(s) }
func (s ControlPointSlice) At(i int) ControlPoint { return s[i] }

// PushResult reports what a Push did to the buffer.
type PushResult int

const (
	// PushBaseline stored the first sample after creation or Reset. The
	// baseline becomes the oldest control point; it draws nothing until a
	// second point arrives.
	PushBaseline PushResult = iota
	// PushAppended appended a new control point.
	PushAppended
	// PushStationary skipped a sample that did not move.
	PushStationary
	// PushTeleport reset the buffer on a discontinuity and re-baselined.
	PushTeleport
)

// String returns the string representation of a PushResult.
func (r PushResult) String() string {
	switch r {
	case PushBaseline:
		return "baseline"
	case PushAppended:
		return "appended"
	case PushStationary:
		return "stationary"
	case PushTeleport:
		return "teleport"
	default:
		return "unknown"
	}
}

// BufferStats counts buffer activity since creation.
type BufferStats struct {
	Pushes     uint64
	Appended   uint64
	Stationary uint64
	Teleports  uint64
	Evictions  uint64
	Resets     uint64
}

// ControlPointBuffer is a fixed-capacity ring of control points bounded by
// a hard count cap and a soft arc-length budget. Eviction moves the head
// index; nothing is shifted.
type ControlPointBuffer struct {
	points   []ControlPoint
	capacity int
	head     int // index of the oldest point
	count    int

	arcLength      float64
	maxArcLength   float64
	maxSegmentJump float64

	hasBaseline   bool
	prevRaw       r3.Vec
	prevRendered  r3.Vec
	smoothedSpeed float64

	stats BufferStats
}

// NewControlPointBuffer allocates a buffer holding at most capacity points.
func NewControlPointBuffer(capacity int, maxArcLength, maxSegmentJump float64) *ControlPointBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &ControlPointBuffer{
		points:         make([]ControlPoint, capacity),
		capacity:       capacity,
		maxArcLength:   maxArcLength,
		maxSegmentJump: maxSegmentJump,
	}
}

// Push ingests one sample. raw drives teleport detection and speed, rendered
// is the position stored in the trail geometry. Callers that only have one
// stream pass the same value twice.
func (b *ControlPointBuffer) Push(raw, rendered r3.Vec) PushResult {
	b.stats.Pushes++

	if !b.hasBaseline {
		b.rebaseline(raw, rendered)
		return PushBaseline
	}

	rawSegLen := r3.Norm(r3.Sub(raw, b.prevRaw))
	if rawSegLen > b.maxSegmentJump {
		b.stats.Teleports++
		b.Reset()
		b.rebaseline(raw, rendered)
		return PushTeleport
	}
	b.prevRaw = raw
	b.smoothedSpeed = speedAlpha*rawSegLen + (1-speedAlpha)*b.smoothedSpeed

	segLenSq := r3.Norm2(r3.Sub(rendered, b.prevRendered))
	if segLenSq < minSegmentLengthSq {
		b.stats.Stationary++
		return PushStationary
	}
	b.prevRendered = rendered
	segLen := float32(math.Sqrt(segLenSq))

	// Hard safety valve, independent of arc length.
	if b.count == b.capacity {
		b.evictHead()
	}
	b.append(ControlPoint{
		Position:              rendered,
		IncomingSegmentLength: segLen,
		SmoothedSpeed:         float32(b.smoothedSpeed),
	})
	b.arcLength += float64(segLen)

	// Arc-length eviction runs after the append so the bound holds once the
	// newest segment is counted.
	for b.count > 1 && b.arcLength > b.maxArcLength {
		b.evictHead()
	}

	b.stats.Appended++
	return PushAppended
}

// Reset empties the buffer and forgets the baseline, so the next Push starts
// a new trail.
func (b *ControlPointBuffer) Reset() {
	b.head = 0
	b.count = 0
	b.arcLength = 0
	b.smoothedSpeed = 0
	b.hasBaseline = false
	b.stats.Resets++
}

func (b *ControlPointBuffer) rebaseline(raw, rendered r3.Vec) {
	b.prevRaw = raw
	b.prevRendered = rendered
	b.smoothedSpeed = 0
	b.hasBaseline = true
	b.append(ControlPoint{Position: rendered})
}

func (b *ControlPointBuffer) append(p ControlPoint) {
	b.points[(b.head+b.count)%b.capacity] = p
	b.count++
}

func (b *ControlPointBuffer) evictHead() {
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.stats.Evictions++

	if b.count <= 1 {
		b.arcLength = 0
		return
	}
	// The new head's incoming segment no longer belongs to the trail.
	b.arcLength -= float64(b.points[b.head].IncomingSegmentLength)
	if b.arcLength < 0 {
		b.arcLength = 0
	}
}

// Len returns the number of stored control points.
func (b *ControlPointBuffer) Len() int { return b.count }

// Capacity returns the hard cap on stored control points.
func (b *ControlPointBuffer) Capacity() int { return b.capacity }

// At returns the i-th point, 0 being the oldest.
func (b *ControlPointBuffer) At(i int) ControlPoint {
	return b.points[(b.head+i)%b.capacity]
}

// ArcLength returns the path length over the stored points.
func (b *ControlPointBuffer) ArcLength() float64 { return b.arcLength }

// SmoothedSpeed returns the current EMA of raw displacement.
func (b *ControlPointBuffer) SmoothedSpeed() float64 { return b.smoothedSpeed }

// Stats returns the activity counters.
func (b *ControlPointBuffer) Stats() BufferStats { return b.stats }

// Snapshot copies the points oldest first into dst and returns it. It is
// meant for debugging and tests, not the render path.
func (b *ControlPointBuffer) Snapshot(dst []ControlPoint) []ControlPoint {
	dst = dst[:0]
	for i := 0; i < b.count; i++ {
		dst = append(dst, b.At(i))
	}
	return dst
}
