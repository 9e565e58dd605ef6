package trail

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

const (
	// SlowHue is the hue (degrees) of the slowest speed, blue.
	SlowHue = 240.0

	trailSaturation = 1.0
	trailLightness  = 0.55

	// MinAgeFactor is the brightness of the oldest point.
	MinAgeFactor = 0.05

	speedRangeEpsilon = 1e-6
)

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// SpeedToHue maps a normalised speed to a hue in degrees: 0 (slow) is blue
// at 240, 1 (fast) is red at 0.
func SpeedToHue(t float64) float64 {
	return (1 - clamp01(t)) * SlowHue
}

// HueToRGB converts a hue in degrees to the fully saturated trail colour.
func HueToRGB(hue float64) colorful.Color {
	return colorful.Hsl(hue, trailSaturation, trailLightness)
}

// SpeedT normalises a speed into [0,1] within [minSpeed, maxSpeed]. The
// denominator is floored so a zero-width range still yields a value.
func SpeedT(segLen, minSpeed, maxSpeed float64) float64 {
	return clamp01((segLen - minSpeed) / math.Max(maxSpeed-minSpeed, speedRangeEpsilon))
}

// AgeFactor is the brightness multiplier for the point at index out of
// total, oldest first. The newest point is 1.0 and the oldest MinAgeFactor.
func AgeFactor(index, total int) float64 {
	den := total - 1
	if den < 1 {
		den = 1
	}
	return MinAgeFactor + (1-MinAgeFactor)*float64(index)/float64(den)
}

// Scale multiplies each channel of c by f.
func Scale(c colorful.Color, f float64) colorful.Color {
	return colorful.Color{R: c.R * f, G: c.G * f, B: c.B * f}
}

// SpeedAgeColor is the colour of a point with normalised speed t and the
// given age factor.
func SpeedAgeColor(t, age float64) colorful.Color {
	return Scale(HueToRGB(SpeedToHue(t)), age)
}

func writeRGB(dst []float32, i int, c colorful.Color) {
	o := i * 3
	dst[o] = float32(c.R)
	dst[o+1] = float32(c.G)
	dst[o+2] = float32(c.B)
}
