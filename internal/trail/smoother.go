package trail

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// knotEpsilon guards the centripetal knot spacing against coincident points.
const knotEpsilon = 1e-4

// cubic holds the Hermite coefficients of one axis of one segment.
type cubic struct {
	c0, c1, c2, c3 float64
}

func (c cubic) eval(w float64) float64 {
	return c.c0 + w*(c.c1+w*(c.c2+w*c.c3))
}

// nonuniformCubic builds the segment between x1 and x2 from the centripetal
// knot intervals dt0, dt1, dt2.
func nonuniformCubic(x0, x1, x2, x3, dt0, dt1, dt2 float64) cubic {
	t1 := (x1-x0)/dt0 - (x2-x0)/(dt0+dt1) + (x2-x1)/dt1
	t2 := (x2-x1)/dt1 - (x3-x1)/(dt1+dt2) + (x3-x2)/dt2
	t1 *= dt1
	t2 *= dt1
	return cubic{
		c0: x1,
		c1: t1,
		c2: -3*x1 + 3*x2 - 2*t1 - t2,
		c3: 2*x1 - 2*x2 + t1 + t2,
	}
}

type segment struct {
	x, y, z cubic
}

// CurveSmoother resamples control points along a centripetal Catmull-Rom
// spline. Its output slices are owned by the smoother and overwritten by the
// next call.
type CurveSmoother struct {
	steps    int
	segments []segment
	points   []r3.Vec
	speeds   []float32
}

// NewCurveSmoother preallocates scratch for up to maxControlPoints inputs.
func NewCurveSmoother(maxControlPoints, smoothSteps int) *CurveSmoother {
	if maxControlPoints < 2 {
		maxControlPoints = 2
	}
	if smoothSteps < 1 {
		smoothSteps = 1
	}
	capacity := (maxControlPoints-1)*smoothSteps + 1
	return &CurveSmoother{
		steps:    smoothSteps,
		segments: make([]segment, maxControlPoints-1),
		points:   make([]r3.Vec, capacity),
		speeds:   make([]float32, capacity),
	}
}

// Steps returns the number of subdivisions per segment.
func (s *CurveSmoother) Steps() int { return s.steps }

// RenderCount is the number of dense points produced for n control points.
func (s *CurveSmoother) RenderCount(n int) int {
	if n < 2 {
		return 0
	}
	return (n-1)*s.steps + 1
}

// Resample evaluates the spline through cps and returns the dense positions
// and a per-point speed blended linearly between the originating control
// points. Fewer than two control points yield nothing. Inputs longer than
// the preallocated capacity are truncated to their newest points.
func (s *CurveSmoother) Resample(cps ControlPoints) ([]r3.Vec, []float32) {
	n := cps.Len()
	offset := 0
	if n > len(s.segments)+1 {
		offset = n - (len(s.segments) + 1)
		n = len(s.segments) + 1
	}
	if n < 2 {
		return s.points[:0], s.speeds[:0]
	}

	for i := 0; i < n-1; i++ {
		s.segments[i] = s.buildSegment(cps, offset, n, i)
	}

	renderCount := s.RenderCount(n)
	stepF := float64(s.steps)
	for i := 0; i < renderCount; i++ {
		// Equivalent to floor(t*(n-1)) with t = i/(renderCount-1), computed
		// on integers so knots land exactly.
		seg := i / s.steps
		k := i % s.steps

		if seg >= n-1 {
			last := cps.At(offset + n - 1)
			s.points[i] = last.Position
			s.speeds[i] = last.SmoothedSpeed
			continue
		}

		from := cps.At(offset + seg)
		to := cps.At(offset + seg + 1)
		if k == 0 {
			s.points[i] = from.Position
			s.speeds[i] = from.SmoothedSpeed
			continue
		}

		w := float64(k) / stepF
		sg := &s.segments[seg]
		s.points[i] = r3.Vec{X: sg.x.eval(w), Y: sg.y.eval(w), Z: sg.z.eval(w)}
		s.speeds[i] = from.SmoothedSpeed + float32(w)*(to.SmoothedSpeed-from.SmoothedSpeed)
	}

	return s.points[:renderCount], s.speeds[:renderCount]
}

func (s *CurveSmoother) buildSegment(cps ControlPoints, offset, n, i int) segment {
	p1 := cps.At(offset + i).Position
	p2 := cps.At(offset + i + 1).Position

	// End segments get a reflected phantom point.
	var p0, p3 r3.Vec
	if i > 0 {
		p0 = cps.At(offset + i - 1).Position
	} else {
		p0 = r3.Sub(r3.Scale(2, p1), p2)
	}
	if i+2 < n {
		p3 = cps.At(offset + i + 2).Position
	} else {
		p3 = r3.Sub(r3.Scale(2, p2), p1)
	}

	dt0 := math.Pow(r3.Norm2(r3.Sub(p1, p0)), 0.25)
	dt1 := math.Pow(r3.Norm2(r3.Sub(p2, p1)), 0.25)
	dt2 := math.Pow(r3.Norm2(r3.Sub(p3, p2)), 0.25)
	if dt1 < knotEpsilon {
		dt1 = 1
	}
	if dt0 < knotEpsilon {
		dt0 = dt1
	}
	if dt2 < knotEpsilon {
		dt2 = dt1
	}

	return segment{
		x: nonuniformCubic(p0.X, p1.X, p2.X, p3.X, dt0, dt1, dt2),
		y: nonuniformCubic(p0.Y, p1.Y, p2.Y, p3.Y, dt0, dt1, dt2),
		z: nonuniformCubic(p0.Z, p1.Z, p2.Z, p3.Z, dt0, dt1, dt2),
	}
}
