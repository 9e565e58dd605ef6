package trail

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeedToHue(t *testing.T) {
	assert.Equal(t, 240.0, SpeedToHue(0))
	assert.Equal(t, 0.0, SpeedToHue(1))
	assert.Equal(t, 120.0, SpeedToHue(0.5))

	// Out-of-range inputs clamp.
	assert.Equal(t, 240.0, SpeedToHue(-3))
	assert.Equal(t, 0.0, SpeedToHue(7))

	prev := math.Inf(1)
	for i := 0; i <= 100; i++ {
		h := SpeedToHue(float64(i) / 100)
		assert.LessOrEqual(t, h, prev)
		prev = h
	}
}

func TestHueToRGB(t *testing.T) {
	tests := []struct {
		name    string
		hue     float64
		r, g, b float64
	}{
		{"red", 0, 1, 0.1, 0.1},
		{"green", 120, 0.1, 1, 0.1},
		{"blue", 240, 0.1, 0.1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := HueToRGB(tt.hue)
			assert.InDelta(t, tt.r, c.R, 1e-9)
			assert.InDelta(t, tt.g, c.G, 1e-9)
			assert.InDelta(t, tt.b, c.B, 1e-9)
		})
	}
}

func TestSpeedT(t *testing.T) {
	assert.InDelta(t, 0.6, SpeedT(0.3, 0, 0.5), 1e-12)
	assert.Equal(t, 1.0, SpeedT(10, 0, 0.5))
	assert.Equal(t, 0.0, SpeedT(-1, 0, 0.5))

	// Degenerate ranges stay finite.
	for _, v := range []float64{SpeedT(1, 1, 1), SpeedT(2, 1, 1), SpeedT(0, 1, 0.5)} {
		assert.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, 0.0, SpeedT(1, 1, 1))
	assert.Equal(t, 1.0, SpeedT(2, 1, 1))
}

func TestAgeFactor(t *testing.T) {
	assert.InDelta(t, MinAgeFactor, AgeFactor(0, 10), 1e-12)
	assert.InDelta(t, 1.0, AgeFactor(9, 10), 1e-12)
	assert.InDelta(t, MinAgeFactor, AgeFactor(0, 1), 1e-12)
	assert.InDelta(t, 0.525, AgeFactor(1, 3), 1e-12)
}

func TestSpeedAgeColor_Deterministic(t *testing.T) {
	a := SpeedAgeColor(0.37, 0.5)
	b := SpeedAgeColor(0.37, 0.5)
	assert.Equal(t, a, b)

	dim := SpeedAgeColor(1, MinAgeFactor)
	assert.InDelta(t, 0.05, dim.R, 1e-9)
	assert.InDelta(t, 0.005, dim.G, 1e-9)
}
