// Package observation manages static observation sets: trajectories imported
// from files or recorded from a finished tracking pass, each drawn as a
// trail.StaticTrailSet.
package observation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/slr.track/internal/units"
)

// MaxFileSize caps observation file uploads and imports.
const MaxFileSize = 16 << 20

var (
	ErrEmptyFile          = errors.New("expected a non-empty array of points")
	ErrUnrecognisedFormat = errors.New("unrecognised format, expected {x,y,z} or {az,el,dist}")
	ErrMixedFormat        = errors.New("mixed point formats")
	ErrFileTooLarge       = errors.New("observation file too large")
)

// Format is the point encoding of an observation file.
type Format int

const (
	FormatCartesian Format = iota + 1
	FormatSpherical
)

func (f Format) String() string {
	switch f {
	case FormatCartesian:
		return "cartesian"
	case FormatSpherical:
		return "spherical"
	default:
		return "unknown"
	}
}

type filePoint struct {
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	Z    *float64 `json:"z"`
	Az   *float64 `json:"az"`
	El   *float64 `json:"el"`
	Dist *float64 `json:"dist"`
}

func (p filePoint) format() Format {
	switch {
	case p.X != nil && p.Y != nil && p.Z != nil:
		return FormatCartesian
	case p.Az != nil && p.El != nil && p.Dist != nil:
		return FormatSpherical
	default:
		return 0
	}
}

// ParseFile reads a JSON array of points. The first element decides the
// format: {x,y,z} scene coordinates or {az,el,dist} station angles in
// degrees. Every later element must use the same format.
func ParseFile(r io.Reader) ([]r3.Vec, Format, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read observation file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, 0, ErrFileTooLarge
	}

	var raw []filePoint
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, 0, ErrEmptyFile
	}

	format := raw[0].format()
	if format == 0 {
		return nil, 0, ErrUnrecognisedFormat
	}

	points := make([]r3.Vec, len(raw))
	for i, p := range raw {
		if p.format() != format {
			return nil, 0, fmt.Errorf("%w: point %d is not %s", ErrMixedFormat, i, format)
		}
		if format == FormatCartesian {
			points[i] = r3.Vec{X: *p.X, Y: *p.Y, Z: *p.Z}
		} else {
			points[i] = units.SphericalToCartesian(*p.Az, *p.El, *p.Dist)
		}
		if !finite(points[i]) {
			return nil, 0, fmt.Errorf("point %d is not finite", i)
		}
	}
	return points, format, nil
}

func finite(p r3.Vec) bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
