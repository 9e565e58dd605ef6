// Package units holds the angle units and coordinate conversions shared by
// the telemetry parsers and the observation importer.
package units

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Angle unit constants
const (
	Degrees = "deg"
	Radians = "rad"
)

// ValidAngleUnits contains all accepted angle units.
var ValidAngleUnits = []string{Degrees, Radians}

// IsValidAngle reports whether unit is an accepted angle unit.
func IsValidAngle(unit string) bool {
	for _, u := range ValidAngleUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// GetValidAngleUnitsString returns the accepted units for error messages.
func GetValidAngleUnitsString() string {
	return strings.Join(ValidAngleUnits, ", ")
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }

// ToRadians converts an angle in unit to radians. Unknown units are treated
// as degrees, which is what stations report by default.
func ToRadians(angle float64, unit string) float64 {
	if unit == Radians {
		return angle
	}
	return DegToRad(angle)
}

// SphericalToCartesian converts an azimuth/elevation/distance observation
// (degrees) into the scene frame: y up, azimuth measured from +z towards +x.
func SphericalToCartesian(azDeg, elDeg, dist float64) r3.Vec {
	az := DegToRad(azDeg)
	el := DegToRad(elDeg)
	return r3.Vec{
		X: dist * math.Cos(el) * math.Sin(az),
		Y: dist * math.Sin(el),
		Z: dist * math.Cos(el) * math.Cos(az),
	}
}

// Spherical is an azimuth/elevation/distance triple in degrees.
type Spherical struct {
	Az   float64 `json:"az"`
	El   float64 `json:"el"`
	Dist float64 `json:"dist"`
}

// CartesianToSpherical inverts SphericalToCartesian. The origin maps to the
// zero value.
func CartesianToSpherical(p r3.Vec) Spherical {
	dist := r3.Norm(p)
	if dist == 0 {
		return Spherical{}
	}
	return Spherical{
		Az:   RadToDeg(math.Atan2(p.X, p.Z)),
		El:   RadToDeg(math.Asin(p.Y / dist)),
		Dist: dist,
	}
}

// StationToCartesian converts the physics convention used on the station
// position topics: theta is the azimuth in the x/y plane and phi the polar
// angle from +z, both in unit.
func StationToCartesian(r, theta, phi float64, unit string) r3.Vec {
	th := ToRadians(theta, unit)
	ph := ToRadians(phi, unit)
	return r3.Vec{
		X: r * math.Sin(ph) * math.Cos(th),
		Y: r * math.Sin(ph) * math.Sin(th),
		Z: r * math.Cos(ph),
	}
}
