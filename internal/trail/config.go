package trail

import "fmt"

// Config holds the per-trail parameters. All lengths are world units and
// speeds are world units per sample.
type Config struct {
	// MaxControlPoints is the hard cap on stored control points.
	MaxControlPoints int

	// MaxSegmentJump is the teleport threshold. A single raw displacement
	// larger than this resets the trail instead of drawing a line.
	MaxSegmentJump float64

	// MaxArcLength is the soft cap on the visible trail length.
	MaxArcLength float64

	// MinSpeed and MaxSpeed bound the colour gradient domain.
	MinSpeed float64
	MaxSpeed float64

	// Opacity is passed through to the renderer untouched.
	Opacity float64

	// SmoothSteps is the number of subdivisions per control-point segment.
	// 1 draws the raw polyline, 6-12 looks smooth.
	SmoothSteps int
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		MaxControlPoints: 600,
		MaxSegmentJump:   50,
		MaxArcLength:     200,
		MinSpeed:         0,
		MaxSpeed:         0.5,
		Opacity:          0.85,
		SmoothSteps:      8,
	}
}

// Validate checks that the configuration can size a trail. A degenerate
// speed range (MaxSpeed <= MinSpeed) is allowed; colouring floors it.
func (c Config) Validate() error {
	if c.MaxControlPoints < 2 {
		return fmt.Errorf("max_control_points must be at least 2, got %d", c.MaxControlPoints)
	}
	if c.SmoothSteps < 1 {
		return fmt.Errorf("smooth_steps must be at least 1, got %d", c.SmoothSteps)
	}
	if !(c.MaxArcLength > 0) {
		return fmt.Errorf("max_arc_length must be positive, got %f", c.MaxArcLength)
	}
	if !(c.MaxSegmentJump > 0) {
		return fmt.Errorf("max_segment_jump must be positive, got %f", c.MaxSegmentJump)
	}
	if c.Opacity < 0 || c.Opacity > 1 {
		return fmt.Errorf("opacity must be between 0 and 1, got %f", c.Opacity)
	}
	return nil
}

// RenderCapacity is the number of dense vertices a trail with this
// configuration can ever produce.
func (c Config) RenderCapacity() int {
	return (c.MaxControlPoints-1)*c.SmoothSteps + 1
}
