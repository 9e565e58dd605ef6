package trail

import "gonum.org/v1/gonum/spatial/r3"

// Drawable is what a render consumer reads each frame: flat xyz positions,
// flat rgb colours and the number of valid vertices. Only the first
// ValidCount vertices are live.
type Drawable interface {
	Positions() []float32
	Colors() []float32
	ValidCount() int
}

// Consumer draws a vertex prefix, for example as a GPU line strip.
type Consumer interface {
	Consume(positions, colors []float32, validCount int)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(positions, colors []float32, validCount int)

// Consume calls f.
func (f ConsumerFunc) Consume(positions, colors []float32, validCount int) {
	f(positions, colors, validCount)
}

// Render hands the live prefix of d to c.
func Render(c Consumer, d Drawable) {
	c.Consume(d.Positions(), d.Colors(), d.ValidCount())
}

// TrailRenderBuffer is fixed-capacity vertex storage rewritten in place.
type TrailRenderBuffer struct {
	positions  []float32
	colors     []float32
	capacity   int
	validCount int
	version    uint64
}

// NewTrailRenderBuffer allocates storage for capacity vertices.
func NewTrailRenderBuffer(capacity int) *TrailRenderBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &TrailRenderBuffer{
		positions: make([]float32, capacity*3),
		colors:    make([]float32, capacity*3),
		capacity:  capacity,
	}
}

// Write replaces the buffer contents with points coloured by speed and age.
// Points beyond the capacity are dropped from the oldest end.
func (rb *TrailRenderBuffer) Write(points []r3.Vec, speeds []float32, minSpeed, maxSpeed float64) {
	if len(points) > rb.capacity {
		drop := len(points) - rb.capacity
		points = points[drop:]
		speeds = speeds[drop:]
	}

	total := len(points)
	for k := 0; k < total; k++ {
		p := points[k]
		o := k * 3
		rb.positions[o] = float32(p.X)
		rb.positions[o+1] = float32(p.Y)
		rb.positions[o+2] = float32(p.Z)

		t := SpeedT(float64(speeds[k]), minSpeed, maxSpeed)
		writeRGB(rb.colors, k, SpeedAgeColor(t, AgeFactor(k, total)))
	}
	rb.validCount = total
	rb.version++
}

// Clear marks the buffer empty without releasing storage.
func (rb *TrailRenderBuffer) Clear() {
	rb.validCount = 0
	rb.version++
}

// Positions returns the live xyz prefix.
func (rb *TrailRenderBuffer) Positions() []float32 {
	n := rb.validCount * 3
	return rb.positions[:n:n]
}

// Colors returns the live rgb prefix.
func (rb *TrailRenderBuffer) Colors() []float32 {
	n := rb.validCount * 3
	return rb.colors[:n:n]
}

// ValidCount returns the number of live vertices.
func (rb *TrailRenderBuffer) ValidCount() int { return rb.validCount }

// Capacity returns the fixed vertex capacity.
func (rb *TrailRenderBuffer) Capacity() int { return rb.capacity }

// Version increments on every rewrite so consumers can skip unchanged frames.
func (rb *TrailRenderBuffer) Version() uint64 { return rb.version }
