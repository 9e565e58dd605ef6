package trail

import "gonum.org/v1/gonum/spatial/r3"

// Trail is the streaming trail of one tracked object: control points,
// smoother and render buffer sized once from Config.
//
// Geometry, speed and teleport detection are all driven from the same
// sample stream by Push. PushRendered accepts a separate rendered stream for
// callers that interpolate positions themselves.
type Trail struct {
	cfg      Config
	buffer   *ControlPointBuffer
	smoother *CurveSmoother
	render   *TrailRenderBuffer
	dirty    bool
}

// NewTrail validates cfg and allocates every buffer the trail will use.
func NewTrail(cfg Config) (*Trail, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trail{
		cfg:      cfg,
		buffer:   NewControlPointBuffer(cfg.MaxControlPoints, cfg.MaxArcLength, cfg.MaxSegmentJump),
		smoother: NewCurveSmoother(cfg.MaxControlPoints, cfg.SmoothSteps),
		render:   NewTrailRenderBuffer(cfg.RenderCapacity()),
	}, nil
}

// Push ingests one sample.
func (t *Trail) Push(sample r3.Vec) PushResult {
	return t.PushRendered(sample, sample)
}

// PushRendered ingests a raw sample together with the position the renderer
// is currently showing for it.
func (t *Trail) PushRendered(raw, rendered r3.Vec) PushResult {
	res := t.buffer.Push(raw, rendered)
	if res != PushStationary {
		t.dirty = true
	}
	return res
}

// Reset drops the trail on loss of tracking.
func (t *Trail) Reset() {
	t.buffer.Reset()
	t.dirty = true
}

// Update regenerates the render buffer if the control points changed since
// the last call and reports whether it did.
func (t *Trail) Update() bool {
	if !t.dirty {
		return false
	}
	t.dirty = false

	if t.buffer.Len() < 2 {
		t.render.Clear()
		return true
	}
	points, speeds := t.smoother.Resample(t.buffer)
	t.render.Write(points, speeds, t.cfg.MinSpeed, t.cfg.MaxSpeed)
	return true
}

// Config returns the trail configuration.
func (t *Trail) Config() Config { return t.cfg }

// Opacity is the pass-through rendering hint.
func (t *Trail) Opacity() float64 { return t.cfg.Opacity }

// Buffer exposes the control points read-only.
func (t *Trail) Buffer() *ControlPointBuffer { return t.buffer }

// RenderBuffer exposes the vertex storage.
func (t *Trail) RenderBuffer() *TrailRenderBuffer { return t.render }

// Positions returns the live xyz prefix.
func (t *Trail) Positions() []float32 { return t.render.Positions() }

// Colors returns the live rgb prefix.
func (t *Trail) Colors() []float32 { return t.render.Colors() }

// ValidCount returns the number of live vertices.
func (t *Trail) ValidCount() int { return t.render.ValidCount() }
