package trail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxControlPoints = 32
	cfg.SmoothSteps = 4
	cfg.MaxArcLength = 100
	cfg.MaxSegmentJump = 5
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"too few control points", func(c *Config) { c.MaxControlPoints = 1 }},
		{"zero steps", func(c *Config) { c.SmoothSteps = 0 }},
		{"zero arc", func(c *Config) { c.MaxArcLength = 0 }},
		{"negative jump", func(c *Config) { c.MaxSegmentJump = -1 }},
		{"opacity above one", func(c *Config) { c.Opacity = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := NewTrail(cfg)
			assert.Error(t, err)
		})
	}

	degenerate := DefaultConfig()
	degenerate.MinSpeed, degenerate.MaxSpeed = 1, 1
	assert.NoError(t, degenerate.Validate())
}

func TestConfig_RenderCapacity(t *testing.T) {
	cfg := Config{MaxControlPoints: 10, SmoothSteps: 8}
	assert.Equal(t, 73, cfg.RenderCapacity())
}

func TestTrail_UpdateLifecycle(t *testing.T) {
	tr, err := NewTrail(testConfig())
	require.NoError(t, err)

	tr.Push(vec(0, 0, 0))
	assert.True(t, tr.Update())
	assert.Zero(t, tr.ValidCount(), "a single point draws nothing")

	tr.Push(vec(1, 0, 0))
	tr.Push(vec(2, 1, 0))
	assert.True(t, tr.Update())
	assert.Equal(t, 2*4+1, tr.ValidCount())
	assert.Len(t, tr.Positions(), tr.ValidCount()*3)
	assert.Len(t, tr.Colors(), tr.ValidCount()*3)

	// First and last vertices sit on the control points.
	assert.Equal(t, []float32{0, 0, 0}, tr.Positions()[:3])
	assert.Equal(t, []float32{2, 1, 0}, tr.Positions()[len(tr.Positions())-3:])

	assert.False(t, tr.Update(), "nothing changed")

	assert.Equal(t, PushStationary, tr.Push(vec(2, 1, 0)))
	assert.False(t, tr.Update())
}

func TestTrail_ResetClearsRender(t *testing.T) {
	tr, err := NewTrail(testConfig())
	require.NoError(t, err)
	tr.Push(vec(0, 0, 0))
	tr.Push(vec(1, 0, 0))
	tr.Update()
	require.NotZero(t, tr.ValidCount())

	tr.Reset()
	assert.True(t, tr.Update())
	assert.Zero(t, tr.ValidCount())
	assert.Zero(t, tr.Buffer().Len())
}

func TestTrail_TeleportDrawsNoBridge(t *testing.T) {
	tr, err := NewTrail(testConfig())
	require.NoError(t, err)
	tr.Push(vec(0, 0, 0))
	tr.Push(vec(1, 0, 0))
	tr.Update()

	assert.Equal(t, PushTeleport, tr.Push(vec(100, 0, 0)))
	tr.Update()
	assert.Zero(t, tr.ValidCount())

	tr.Push(vec(101, 0, 0))
	tr.Update()
	for i := 0; i < tr.ValidCount(); i++ {
		assert.GreaterOrEqual(t, tr.Positions()[i*3], float32(99))
	}
}

func TestTrail_BoundedUnderLongRun(t *testing.T) {
	cfg := testConfig()
	cfg.MaxArcLength = 10
	tr, err := NewTrail(cfg)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		tr.Push(r3.Vec{X: float64(i) * 0.3, Y: float64(i%7) * 0.1})
		tr.Update()
		require.LessOrEqual(t, tr.ValidCount(), cfg.RenderCapacity())
		require.LessOrEqual(t, tr.Buffer().Len(), cfg.MaxControlPoints)
		if tr.Buffer().Len() > 1 {
			require.LessOrEqual(t, tr.Buffer().ArcLength(), cfg.MaxArcLength+1e-9)
		}
	}
}

func TestTrail_SteadyStateNoAllocations(t *testing.T) {
	tr, err := NewTrail(testConfig())
	require.NoError(t, err)

	i := 0
	allocs := testing.AllocsPerRun(200, func() {
		i++
		tr.Push(r3.Vec{X: float64(i) * 0.5, Z: float64(i%5) * 0.2})
		tr.Update()
	})
	assert.Zero(t, allocs)
}
