package trail

import (
	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/spatial/r3"
)

// StaticOptions configures colouring of a StaticTrailSet.
type StaticOptions struct {
	MinSpeed float64
	MaxSpeed float64
	Opacity  float64

	// Override, when set, replaces speed colouring with a fixed colour that
	// is only dimmed by age.
	Override *colorful.Color
}

// StaticTrailSet colours a fixed point sequence, for imported or recorded
// observations. It never evicts.
type StaticTrailSet struct {
	points     []r3.Vec
	positions  []float32
	colors     []float32
	validCount int
	opts       StaticOptions
}

// NewStaticTrailSet copies points and colours them once.
func NewStaticTrailSet(points []r3.Vec, opts StaticOptions) *StaticTrailSet {
	s := &StaticTrailSet{
		points:    append([]r3.Vec(nil), points...),
		positions: make([]float32, len(points)*3),
		colors:    make([]float32, len(points)*3),
		opts:      opts,
	}
	for k, p := range s.points {
		o := k * 3
		s.positions[o] = float32(p.X)
		s.positions[o+1] = float32(p.Y)
		s.positions[o+2] = float32(p.Z)
	}
	s.validCount = len(s.points)
	s.recolor()
	return s
}

func (s *StaticTrailSet) recolor() {
	total := s.validCount
	for k := 0; k < total; k++ {
		age := AgeFactor(k, total)
		if s.opts.Override != nil {
			writeRGB(s.colors, k, Scale(*s.opts.Override, age))
			continue
		}
		segLen := 0.0
		if k > 0 {
			segLen = r3.Norm(r3.Sub(s.points[k], s.points[k-1]))
		}
		writeRGB(s.colors, k, SpeedAgeColor(SpeedT(segLen, s.opts.MinSpeed, s.opts.MaxSpeed), age))
	}
}

// SetOverride switches between a fixed colour and speed colouring (nil).
func (s *StaticTrailSet) SetOverride(c *colorful.Color) {
	if c != nil {
		cp := *c
		c = &cp
	}
	s.opts.Override = c
	s.recolor()
}

// SetSpeedRange changes the gradient domain and recolours.
func (s *StaticTrailSet) SetSpeedRange(minSpeed, maxSpeed float64) {
	s.opts.MinSpeed = minSpeed
	s.opts.MaxSpeed = maxSpeed
	s.recolor()
}

// Clear drops every point. The set stays usable but draws nothing.
func (s *StaticTrailSet) Clear() {
	s.points = s.points[:0]
	s.validCount = 0
}

// Points returns the source points.
func (s *StaticTrailSet) Points() []r3.Vec { return s.points }

// Options returns the current colouring options.
func (s *StaticTrailSet) Options() StaticOptions { return s.opts }

// Opacity is the pass-through rendering hint.
func (s *StaticTrailSet) Opacity() float64 { return s.opts.Opacity }

// Positions returns the live xyz prefix.
func (s *StaticTrailSet) Positions() []float32 {
	n := s.validCount * 3
	return s.positions[:n:n]
}

// Colors returns the live rgb prefix.
func (s *StaticTrailSet) Colors() []float32 {
	n := s.validCount * 3
	return s.colors[:n:n]
}

// ValidCount returns the number of live vertices.
func (s *StaticTrailSet) ValidCount() int { return s.validCount }
